// Package message defines the wire data model (§3): the Message
// envelope, its nine body variants, and the Sync ID derived from a
// merged message.
package message

import "fmt"

// FarcasterEpochUnixSeconds is 2021-01-01T00:00:00Z expressed as Unix seconds;
// every in-message Timestamp is milliseconds since this instant.
const FarcasterEpochUnixSeconds int64 = 1609459200

// Network identifies which Farcaster network a message belongs to.
type Network uint8

const (
	NetworkUnknown Network = iota
	NetworkMainnet
	NetworkTestnet
	NetworkDevnet
)

func (n Network) String() string {
	switch n {
	case NetworkMainnet:
		return "MAINNET"
	case NetworkTestnet:
		return "TESTNET"
	case NetworkDevnet:
		return "DEVNET"
	default:
		return "UNKNOWN"
	}
}

// Type is the tagged variant discriminator for a Message's body (§3).
type Type uint8

const (
	TypeUnknown Type = iota
	TypeSignerAdd
	TypeSignerRemove
	TypeUserDataAdd
	TypeCastAdd
	TypeCastRemove
	TypeReactionAdd
	TypeReactionRemove
	TypeVerificationAddEthAddress
	TypeVerificationRemove
)

func (t Type) String() string {
	switch t {
	case TypeSignerAdd:
		return "SIGNER_ADD"
	case TypeSignerRemove:
		return "SIGNER_REMOVE"
	case TypeUserDataAdd:
		return "USER_DATA_ADD"
	case TypeCastAdd:
		return "CAST_ADD"
	case TypeCastRemove:
		return "CAST_REMOVE"
	case TypeReactionAdd:
		return "REACTION_ADD"
	case TypeReactionRemove:
		return "REACTION_REMOVE"
	case TypeVerificationAddEthAddress:
		return "VERIFICATION_ADD_ETH_ADDRESS"
	case TypeVerificationRemove:
		return "VERIFICATION_REMOVE"
	default:
		return "UNKNOWN"
	}
}

// SignatureScheme identifies the signature algorithm a Message was
// signed under (§3).
type SignatureScheme uint8

const (
	SignatureSchemeUnknown SignatureScheme = iota
	SignatureSchemeEd25519
	SignatureSchemeEip712
)

// HashScheme identifies the hash function used to derive Message.Hash.
type HashScheme uint8

const (
	HashSchemeUnknown HashScheme = iota
	HashSchemeBlake3
)

// signatureSchemeFor returns the signature scheme required for t,
// per the table in §3.
func signatureSchemeFor(t Type) SignatureScheme {
	switch t {
	case TypeSignerAdd, TypeSignerRemove:
		return SignatureSchemeEip712
	case TypeUserDataAdd, TypeCastAdd, TypeCastRemove,
		TypeReactionAdd, TypeReactionRemove,
		TypeVerificationAddEthAddress, TypeVerificationRemove:
		return SignatureSchemeEd25519
	default:
		return SignatureSchemeUnknown
	}
}

// Data is the type-tagged, signed payload of a Message: the part that
// is canonically encoded and hashed (§3, §4.1 step 2).
type Data struct {
	Type      Type
	Fid       uint64
	Timestamp uint32 // milliseconds since FarcasterEpoch
	Network   Network

	SignerAdd      *SignerBody
	SignerRemove   *SignerBody
	UserDataAdd    *UserDataBody
	CastAdd        *CastAddBody
	CastRemove     *CastRemoveBody
	ReactionAdd    *ReactionBody
	ReactionRemove *ReactionBody
	VerificationAddEthAddress *VerificationAddBody
	VerificationRemove        *VerificationRemoveBody
}

// Message is the immutable, signed record the engine validates and
// merges (§3). Identity is Hash.
type Message struct {
	Data Data

	Hash       [20]byte
	HashScheme HashScheme

	Signature       []byte
	SignatureScheme SignatureScheme

	// Signer is the 32-byte Ed25519 public key or the 20-byte Ethereum
	// address that produced Signature, per Data.Type's required scheme.
	Signer []byte
}

// RequiredSignatureScheme returns the signature scheme this message's
// type must carry (§3 table).
func (m *Message) RequiredSignatureScheme() SignatureScheme {
	return signatureSchemeFor(m.Data.Type)
}

// Less implements the total lexicographic order on hashes (§3):
// byte-wise unsigned comparison.
func Less(a, b [20]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Greater is the complement of Less, used throughout the tie-break
// ladders in §4.2 ("higher hash" wins).
func Greater(a, b [20]byte) bool {
	return Less(b, a)
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{type=%s fid=%d hash=%x}", m.Data.Type, m.Data.Fid, m.Hash)
}
