package message

import (
	"encoding/binary"
	"fmt"
)

// SyncIDSize is the fixed length of a Sync ID (§3): a 10-byte
// zero-padded decimal timestamp followed by a 26-byte storage key.
const SyncIDSize = 36

// SyncID is the chronologically-sortable identifier the sync trie
// indexes messages by (§3, §4.4). Byte order equals chronological
// order because the timestamp prefix is left-padded with ASCII '0'.
type SyncID [SyncIDSize]byte

// NewSyncID builds a Sync ID from a message timestamp and a
// 26-byte storage key that a CRDT derives deterministically from
// (fid, body discriminator, hash).
func NewSyncID(timestamp uint32, storageKey [26]byte) SyncID {
	var id SyncID
	copy(id[:10], []byte(fmt.Sprintf("%010d", timestamp)))
	copy(id[10:], storageKey[:])
	return id
}

// Timestamp extracts the chronological prefix of a Sync ID.
func (id SyncID) Timestamp() uint32 {
	var ts uint32
	for _, b := range id[:10] {
		ts = ts*10 + uint32(b-'0')
	}
	return ts
}

// StorageKey extracts the per-CRDT storage key suffix.
func (id SyncID) StorageKey() [26]byte {
	var key [26]byte
	copy(key[:], id[10:])
	return key
}

// Less implements the byte-wise unsigned ordering the trie relies on
// for chronological in-order traversal (§4.4).
func (id SyncID) Less(other SyncID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

func (id SyncID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// BuildStorageKey derives the 26-byte per-CRDT storage key (§3): one
// discriminator byte for the message type, 8 bytes of fid, and the
// leading 17 bytes of the message hash. Every CRDT's StorageKey
// config function is this applied to its own conflicting identifier
// (which is not always m.Hash — CastRemove keys off target_hash, for
// instance — so callers pass whichever 20-byte value the CRDT treats
// as identity).
func BuildStorageKey(t Type, fid uint64, identity [20]byte) [26]byte {
	var key [26]byte
	key[0] = byte(t)
	binary.BigEndian.PutUint64(key[1:9], fid)
	copy(key[9:], identity[:17])
	return key
}
