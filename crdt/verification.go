package crdt

import (
	"fmt"

	"github.com/farcasterxyz/hubcore/message"
)

// VerificationCapacity is the Verification CRDT's bound (§3); it
// carries no TTL.
const VerificationCapacity = 50

func verificationAddress(m *message.Message) ([20]byte, error) {
	switch m.Data.Type {
	case message.TypeVerificationAddEthAddress:
		if m.Data.VerificationAddEthAddress == nil {
			return [20]byte{}, fmt.Errorf("VerificationAdd message missing body")
		}
		return m.Data.VerificationAddEthAddress.Address, nil
	case message.TypeVerificationRemove:
		if m.Data.VerificationRemove == nil {
			return [20]byte{}, fmt.Errorf("VerificationRemove message missing body")
		}
		return m.Data.VerificationRemove.Address, nil
	default:
		return [20]byte{}, fmt.Errorf("not a verification message: %v", m.Data.Type)
	}
}

// NewVerificationConfig builds the Config for the Verification CRDT
// (C5, §4.2): conflict key (fid, body.address); tie-break "higher
// timestamp; else is VerificationRemove (VerificationAdd loses); else
// higher hash".
func NewVerificationConfig() Config {
	return Config{
		Name:     "verification",
		Capacity: VerificationCapacity,
		ConflictKey: func(m *message.Message) (string, error) {
			addr, err := verificationAddress(m)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d|%x", m.Data.Fid, addr), nil
		},
		IsRemoveVariant: func(m *message.Message) bool {
			return m.Data.Type == message.TypeVerificationRemove
		},
		Wins: func(existing, candidate *message.Message) bool {
			if existing.Data.Timestamp != candidate.Data.Timestamp {
				return candidate.Data.Timestamp > existing.Data.Timestamp
			}
			existingIsRemove := existing.Data.Type == message.TypeVerificationRemove
			candidateIsRemove := candidate.Data.Type == message.TypeVerificationRemove
			if existingIsRemove != candidateIsRemove {
				return candidateIsRemove // VerificationAdd loses to VerificationRemove
			}
			return message.Greater(candidate.Hash, existing.Hash)
		},
		StorageKey: func(m *message.Message) [26]byte {
			addr, _ := verificationAddress(m)
			var identity [20]byte
			copy(identity[:], addr[:])
			return message.BuildStorageKey(m.Data.Type, m.Data.Fid, identity)
		},
	}
}
