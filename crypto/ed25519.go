package crypto

import "crypto/ed25519"

// Ed25519PublicKeySize and Ed25519SignatureSize are the wire sizes the
// validator's structural check (§4.1 step 1) enforces.
const (
	Ed25519PublicKeySize = ed25519.PublicKeySize
	Ed25519SignatureSize = ed25519.SignatureSize
)

// VerifyEd25519 verifies sig over hash under the 32-byte Ed25519
// public key signer. Used for every message type whose signature
// scheme is Ed25519 (§3): UserDataAdd, CastAdd/Remove,
// Reaction(Add/Remove), Verification(Add/Remove).
func VerifyEd25519(signer, sig, hash []byte) bool {
	if len(signer) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(signer), hash, sig)
}
