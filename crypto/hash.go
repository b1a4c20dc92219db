// Package crypto is the facade over the cryptographic primitives the
// engine treats as opaque: BLAKE3 hashing, Ed25519 signature
// verification, and EIP-712/secp256k1 signature recovery for
// custody-address authorization.
package crypto

import "github.com/zeebo/blake3"

// HashSize is the length, in bytes, of every hash the engine produces:
// message hashes, trie leaf/node hashes, and exclusion-set hashes.
const HashSize = 20

// Hash returns the truncated 20-byte BLAKE3 digest of data, the hash
// function used throughout the engine for message identity (§3) and
// the sync trie's aggregated node hashes (§4.4).
func Hash(data []byte) [HashSize]byte {
	full := blake3.Sum256(data)
	var out [HashSize]byte
	copy(out[:], full[:HashSize])
	return out
}

// ZeroHash is the all-zero digest adopted by convention (§9, Open
// question) as H(empty) for exclusion-set levels with no left
// siblings.
var ZeroHash = [HashSize]byte{}

// CombineSorted hashes the concatenation of byte slices that the
// caller has already sorted into ascending byte-label order (trie
// children, §4.4 / §9). It is a thin
// wrapper so call sites read as "hash the sorted concatenation" rather
// than repeating the byte-building logic.
func CombineSorted(parts ...[]byte) [HashSize]byte {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return Hash(buf)
}
