package crdt

import (
	"fmt"

	"github.com/farcasterxyz/hubcore/message"
)

// SignerCapacity is the per-fid... per-CRDT capacity bound for the
// Signer two-phase set (§3).
const SignerCapacity = 100

// NewSignerConfig builds the Config for the Signer CRDT (C4, §4.2):
// conflict key (fid, body.signer); tie-break ladder "higher
// timestamp; else is SignerRemove (SignerAdd loses); else higher
// hash".
func NewSignerConfig() Config {
	return Config{
		Name:     "signer",
		Capacity: SignerCapacity,
		ConflictKey: func(m *message.Message) (string, error) {
			signer, err := SignerOf(m)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d|%x", m.Data.Fid, signer), nil
		},
		IsRemoveVariant: func(m *message.Message) bool {
			return m.Data.Type == message.TypeSignerRemove
		},
		Wins: func(existing, candidate *message.Message) bool {
			if existing.Data.Timestamp != candidate.Data.Timestamp {
				return candidate.Data.Timestamp > existing.Data.Timestamp
			}
			existingIsRemove := existing.Data.Type == message.TypeSignerRemove
			candidateIsRemove := candidate.Data.Type == message.TypeSignerRemove
			if existingIsRemove != candidateIsRemove {
				return candidateIsRemove // SignerAdd loses to SignerRemove
			}
			return message.Greater(candidate.Hash, existing.Hash)
		},
		StorageKey: func(m *message.Message) [26]byte {
			signer, _ := SignerOf(m)
			var identity [20]byte
			copy(identity[:], signer[:])
			return message.BuildStorageKey(m.Data.Type, m.Data.Fid, identity)
		},
	}
}

// SignerOf returns the Ed25519 public key a SignerAdd/SignerRemove
// body names (the pubkey being authorized or revoked), exported so
// the revocation cascade can key C5 discards off it.
func SignerOf(m *message.Message) ([32]byte, error) {
	switch m.Data.Type {
	case message.TypeSignerAdd:
		if m.Data.SignerAdd == nil {
			return [32]byte{}, fmt.Errorf("SignerAdd message missing body")
		}
		return m.Data.SignerAdd.Signer, nil
	case message.TypeSignerRemove:
		if m.Data.SignerRemove == nil {
			return [32]byte{}, fmt.Errorf("SignerRemove message missing body")
		}
		return m.Data.SignerRemove.Signer, nil
	default:
		return [32]byte{}, fmt.Errorf("not a signer message: %v", m.Data.Type)
	}
}

// ActiveSigners is implemented by the Signer store to satisfy
// validate.SignerLookup: the set of currently-authorized signers per
// fid (§4.1 step 5).
type ActiveSigners struct {
	store *Store
}

// NewActiveSigners wraps a Signer CRDT store for validator lookups.
func NewActiveSigners(store *Store) *ActiveSigners {
	return &ActiveSigners{store: store}
}

// IsActiveSigner reports whether signer is in the Signer CRDT's
// add-set for fid.
func (a *ActiveSigners) IsActiveSigner(fid uint64, signer [32]byte) bool {
	key := fmt.Sprintf("%d|%x", fid, signer)
	e, ok := a.store.entries[key]
	return ok && !e.inRemove
}
