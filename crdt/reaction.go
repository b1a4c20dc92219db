package crdt

import (
	"fmt"
	"time"

	"github.com/farcasterxyz/hubcore/message"
)

// ReactionCapacity and ReactionTTL are the Reaction CRDT's bounds (§3).
const (
	ReactionCapacity = 5000
	ReactionTTL      = 90 * 24 * time.Hour
)

func reactionBody(m *message.Message) (*message.ReactionBody, error) {
	switch m.Data.Type {
	case message.TypeReactionAdd:
		if m.Data.ReactionAdd == nil {
			return nil, fmt.Errorf("ReactionAdd message missing body")
		}
		return m.Data.ReactionAdd, nil
	case message.TypeReactionRemove:
		if m.Data.ReactionRemove == nil {
			return nil, fmt.Errorf("ReactionRemove message missing body")
		}
		return m.Data.ReactionRemove, nil
	default:
		return nil, fmt.Errorf("not a reaction message: %v", m.Data.Type)
	}
}

// NewReactionConfig builds the Config for the Reaction CRDT (C5,
// §4.2): conflict key (fid, body.type, body.target); tie-break
// "higher timestamp; else is ReactionRemove (ReactionAdd loses); else
// higher hash".
func NewReactionConfig() Config {
	return Config{
		Name:     "reaction",
		Capacity: ReactionCapacity,
		TTL:      ReactionTTL,
		ConflictKey: func(m *message.Message) (string, error) {
			body, err := reactionBody(m)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d|%d|%d|%x", m.Data.Fid, body.Type, body.Target.Fid, body.Target.Hash), nil
		},
		IsRemoveVariant: func(m *message.Message) bool {
			return m.Data.Type == message.TypeReactionRemove
		},
		Wins: func(existing, candidate *message.Message) bool {
			if existing.Data.Timestamp != candidate.Data.Timestamp {
				return candidate.Data.Timestamp > existing.Data.Timestamp
			}
			existingIsRemove := existing.Data.Type == message.TypeReactionRemove
			candidateIsRemove := candidate.Data.Type == message.TypeReactionRemove
			if existingIsRemove != candidateIsRemove {
				return candidateIsRemove // ReactionAdd loses to ReactionRemove
			}
			return message.Greater(candidate.Hash, existing.Hash)
		},
		StorageKey: func(m *message.Message) [26]byte {
			return message.BuildStorageKey(m.Data.Type, m.Data.Fid, m.Hash)
		},
	}
}
