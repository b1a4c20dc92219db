// Package validate implements the message validator (C2, §4.1):
// structural, encoding, signature, semantic, and authorization-binding
// checks, in that order, for every inbound Message.
package validate

import (
	"bytes"
	"fmt"
	"time"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/crypto"
	"github.com/farcasterxyz/hubcore/message"
)

// FutureTolerance is the maximum amount of clock skew a message's
// timestamp may exceed "now" by before being rejected (§4.1 step 4).
const FutureTolerance = 600_000 * time.Millisecond

// CustodyLookup resolves the current custody address of a fid,
// backing the EIP-712 branch of the authorization check (§4.1 step
// 5). Implemented by fidregistry.Registry.
type CustodyLookup interface {
	CustodyAddress(fid uint64) ([20]byte, bool)
}

// SignerLookup reports whether signer is in the Signer CRDT's
// add-set for fid, backing the Ed25519 branch of the authorization
// check (§4.1 step 5). Implemented by crdt.ActiveSigners.
type SignerLookup interface {
	IsActiveSigner(fid uint64, signer [32]byte) bool
}

// Validator runs every check in §4.1 against a Message.
type Validator struct {
	Network    message.Network
	Custody    CustodyLookup
	Signers    SignerLookup
	Now        func() time.Time // overridable for tests
	FarcasterEpoch int64
}

// New constructs a Validator bound to the engine's configured network
// and identity-resolution collaborators.
func New(network message.Network, custody CustodyLookup, signers SignerLookup) *Validator {
	return &Validator{
		Network:        network,
		Custody:        custody,
		Signers:        signers,
		Now:            time.Now,
		FarcasterEpoch: message.FarcasterEpochUnixSeconds,
	}
}

// Validate runs the full §4.1 pipeline and returns nil on success or
// a *common.HubErr naming the first failed check.
func (v *Validator) Validate(m *message.Message) error {
	if err := v.checkStructural(m); err != nil {
		return err
	}
	if err := v.checkEncoding(m); err != nil {
		return err
	}
	if err := v.checkSignature(m); err != nil {
		return err
	}
	if err := v.checkSemantic(m); err != nil {
		return err
	}
	if err := v.checkAuthorization(m); err != nil {
		return err
	}
	return nil
}

// checkStructural verifies required fields and byte-length
// constraints per the signature scheme declared by the message's
// type (§4.1 step 1).
func (v *Validator) checkStructural(m *message.Message) error {
	scheme := m.RequiredSignatureScheme()
	if scheme == message.SignatureSchemeUnknown {
		return common.NewHubErr(common.MalformedBytes, fmt.Sprintf("unknown message type %v", m.Data.Type))
	}
	if m.SignatureScheme != scheme {
		return common.NewHubErr(common.MalformedBytes,
			fmt.Sprintf("type %v requires signature scheme %v, got %v", m.Data.Type, scheme, m.SignatureScheme))
	}

	switch scheme {
	case message.SignatureSchemeEd25519:
		if len(m.Signer) != crypto.Ed25519PublicKeySize {
			return common.NewHubErr(common.MalformedBytes, "ed25519 signer must be 32 bytes")
		}
		if len(m.Signature) != crypto.Ed25519SignatureSize {
			return common.NewHubErr(common.MalformedBytes, "ed25519 signature must be 64 bytes")
		}
	case message.SignatureSchemeEip712:
		if len(m.Signer) != crypto.EthAddressSize {
			return common.NewHubErr(common.MalformedBytes, "eip712 signer must be 20 bytes")
		}
		if len(m.Signature) != crypto.EIP712SignatureSize {
			return common.NewHubErr(common.MalformedBytes, "eip712 signature must be 65 bytes")
		}
	}

	if m.HashScheme != message.HashSchemeBlake3 {
		return common.NewHubErr(common.MalformedBytes, "unsupported hash scheme")
	}

	return v.checkBodyPresence(m)
}

func (v *Validator) checkBodyPresence(m *message.Message) error {
	d := &m.Data
	present := 0
	for _, b := range []bool{
		d.SignerAdd != nil, d.SignerRemove != nil, d.UserDataAdd != nil,
		d.CastAdd != nil, d.CastRemove != nil, d.ReactionAdd != nil,
		d.ReactionRemove != nil, d.VerificationAddEthAddress != nil, d.VerificationRemove != nil,
	} {
		if b {
			present++
		}
	}
	if present != 1 {
		return common.NewHubErr(common.MalformedBytes, fmt.Sprintf("expected exactly one body, got %d", present))
	}
	return nil
}

// checkEncoding re-derives the canonical encoding of m.Data and
// checks it hashes to m.Hash (§4.1 step 2).
func (v *Validator) checkEncoding(m *message.Message) error {
	encoded, err := message.EncodeData(&m.Data)
	if err != nil {
		return common.WrapHubErr(common.MalformedBytes, "canonical encode failed", err)
	}
	digest := crypto.Hash(encoded)
	if !bytes.Equal(digest[:], m.Hash[:]) {
		return common.NewHubErr(common.HashMismatch, fmt.Sprintf("got %x want %x", digest, m.Hash))
	}
	return nil
}

// checkSignature verifies m.Signature over m.Hash under m.Signer
// using m.SignatureScheme (§4.1 step 3). Authorization — that
// m.Signer is the *right* signer for m.Data.Fid — is checked
// separately in checkAuthorization.
func (v *Validator) checkSignature(m *message.Message) error {
	switch m.SignatureScheme {
	case message.SignatureSchemeEd25519:
		if !crypto.VerifyEd25519(m.Signer, m.Signature, m.Hash[:]) {
			return common.NewHubErr(common.BadSignature, "ed25519 verification failed")
		}
	case message.SignatureSchemeEip712:
		var custody [20]byte
		copy(custody[:], m.Signer)
		if !crypto.VerifySignerSignature(m.Hash[:], m.Signature, custody) {
			return common.NewHubErr(common.BadSignature, "eip712 verification failed")
		}
	default:
		return common.NewHubErr(common.MalformedBytes, "unknown signature scheme")
	}
	return nil
}

// checkSemantic enforces network match, future-timestamp bound, and
// per-type body constraints (§4.1 step 4, §6).
func (v *Validator) checkSemantic(m *message.Message) error {
	if m.Data.Network == message.NetworkUnknown {
		return common.NewHubErr(common.WrongNetwork, "network not set")
	}
	if m.Data.Network != v.Network {
		return common.NewHubErr(common.WrongNetwork, fmt.Sprintf("got %v want %v", m.Data.Network, v.Network))
	}

	nowMs := uint32((v.Now().Unix() - v.FarcasterEpoch) * 1000)
	limit := nowMs + uint32(FutureTolerance.Milliseconds())
	if m.Data.Timestamp > limit {
		return common.NewHubErr(common.FutureTimestamp, fmt.Sprintf("timestamp %d exceeds now+tolerance %d", m.Data.Timestamp, limit))
	}

	return validateBody(m)
}

// checkAuthorization binds the signer to the fid's current identity
// state (§4.1 step 5).
func (v *Validator) checkAuthorization(m *message.Message) error {
	switch m.SignatureScheme {
	case message.SignatureSchemeEip712:
		custody, ok := v.Custody.CustodyAddress(m.Data.Fid)
		if !ok {
			return common.NewHubErr(common.UnknownFid, fmt.Sprintf("fid %d has no known custody address", m.Data.Fid))
		}
		var signer [20]byte
		copy(signer[:], m.Signer)
		if signer != custody {
			return common.NewHubErr(common.UnauthorizedSigner, "eip712 signer is not the fid's custody address")
		}
	case message.SignatureSchemeEd25519:
		var signer [32]byte
		copy(signer[:], m.Signer)
		if !v.Signers.IsActiveSigner(m.Data.Fid, signer) {
			return common.NewHubErr(common.UnauthorizedSigner, "signer is not in the fid's active signer set")
		}
	}
	return nil
}
