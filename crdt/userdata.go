package crdt

import (
	"fmt"

	"github.com/farcasterxyz/hubcore/message"
)

// NewUserDataConfig builds the Config for the UserData CRDT (C5,
// §4.2): grow-only set, conflict key (fid, body.type), tie-break
// "higher timestamp; else higher hash", unbounded capacity, no TTL.
func NewUserDataConfig() Config {
	return Config{
		Name:     "userdata",
		Capacity: 0,
		GrowOnly: true,
		ConflictKey: func(m *message.Message) (string, error) {
			if m.Data.Type != message.TypeUserDataAdd || m.Data.UserDataAdd == nil {
				return "", fmt.Errorf("not a UserDataAdd message")
			}
			return fmt.Sprintf("%d|%d", m.Data.Fid, m.Data.UserDataAdd.Type), nil
		},
		Wins: func(existing, candidate *message.Message) bool {
			if existing.Data.Timestamp != candidate.Data.Timestamp {
				return candidate.Data.Timestamp > existing.Data.Timestamp
			}
			return message.Greater(candidate.Hash, existing.Hash)
		},
		StorageKey: func(m *message.Message) [26]byte {
			return message.BuildStorageKey(m.Data.Type, m.Data.Fid, m.Hash)
		},
	}
}
