package crdt

import (
	"fmt"
	"time"

	"github.com/farcasterxyz/hubcore/message"
)

// CastCapacity and CastTTL are the Cast CRDT's bounds (§3).
const (
	CastCapacity = 10000
	CastTTL      = 365 * 24 * time.Hour
)

// castIdentity returns the 20-byte value Cast conflict keys are built
// from: the message's own hash for CastAdd, or target_hash for
// CastRemove (§4.2).
func castIdentity(m *message.Message) ([20]byte, error) {
	switch m.Data.Type {
	case message.TypeCastAdd:
		if m.Data.CastAdd == nil {
			return [20]byte{}, fmt.Errorf("CastAdd message missing body")
		}
		return m.Hash, nil
	case message.TypeCastRemove:
		if m.Data.CastRemove == nil {
			return [20]byte{}, fmt.Errorf("CastRemove message missing body")
		}
		return m.Data.CastRemove.TargetHash, nil
	default:
		return [20]byte{}, fmt.Errorf("not a cast message: %v", m.Data.Type)
	}
}

// NewCastConfig builds the Config for the Cast CRDT (C5, §4.2):
// conflict key (fid, hash) for CastAdd or (fid, target_hash) for
// CastRemove, pairing Add<->Remove and Remove<->Remove on a shared
// target; tie-break "is CastRemove (CastAdd loses); else higher
// timestamp; else higher hash".
func NewCastConfig() Config {
	return Config{
		Name:     "cast",
		Capacity: CastCapacity,
		TTL:      CastTTL,
		ConflictKey: func(m *message.Message) (string, error) {
			id, err := castIdentity(m)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d|%x", m.Data.Fid, id), nil
		},
		IsRemoveVariant: func(m *message.Message) bool {
			return m.Data.Type == message.TypeCastRemove
		},
		Wins: func(existing, candidate *message.Message) bool {
			existingRemove := existing.Data.Type == message.TypeCastRemove
			candidateRemove := candidate.Data.Type == message.TypeCastRemove
			if existingRemove != candidateRemove {
				return candidateRemove
			}
			if existing.Data.Timestamp != candidate.Data.Timestamp {
				return candidate.Data.Timestamp > existing.Data.Timestamp
			}
			return message.Greater(candidate.Hash, existing.Hash)
		},
		StorageKey: func(m *message.Message) [26]byte {
			id, _ := castIdentity(m)
			return message.BuildStorageKey(m.Data.Type, m.Data.Fid, id)
		},
	}
}
