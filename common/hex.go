package common

import "encoding/hex"

// EncodeToString returns the lowercase hex representation of data, the
// form every hash returned over the RPC boundary (§6) is encoded in.
func EncodeToString(data []byte) string {
	return hex.EncodeToString(data)
}

// DecodeString is the inverse of EncodeToString.
func DecodeString(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
