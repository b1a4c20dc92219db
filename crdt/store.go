// Package crdt implements the generic two-phase/grow-only set merge
// engine (C4, C5; §4.2) and the five concrete CRDTs built on it:
// Signer, UserData, Cast, Reaction, and Verification.
package crdt

import (
	"fmt"
	"time"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/message"
)

// MergeOutcome reports what a Merge call actually did, so callers
// (the sync trie indexer, metrics) can react without re-deriving it.
type MergeOutcome int

const (
	// NoOp: the incoming message lost a conflict or was a duplicate.
	NoOp MergeOutcome = iota
	// Inserted: the message was added; any conflicting message it beat
	// (named in Evicted) was removed.
	Inserted
)

// MergeResult is returned by Store.Merge.
type MergeResult struct {
	Outcome MergeOutcome
	// Evicted lists every message removed as a direct consequence of
	// this merge: the loser of a conflict, or messages dropped to
	// capacity/TTL pressure immediately after.
	Evicted []*message.Message
}

// Config parameterizes the generic engine per CRDT (§4.2 table).
type Config struct {
	// Name identifies the CRDT for persistence namespacing (§6) and
	// logging.
	Name string

	// Capacity bounds |A|+|R|. Zero means unbounded (UserData).
	Capacity int

	// TTL bounds message age. Zero means no TTL.
	TTL time.Duration

	// GrowOnly CRDTs (UserData) have no remove-set; messages never
	// move to R, they are simply replaced in A by the tie-break
	// ladder's winner.
	GrowOnly bool

	// ConflictKey returns the conflict key K(m) for m (§4.2).
	ConflictKey func(m *message.Message) (string, error)

	// IsRemoveVariant reports whether m is the "remove" side of this
	// CRDT's add/remove pair (SignerRemove, CastRemove,
	// ReactionRemove, VerificationRemove). Grow-only CRDTs never
	// return true.
	IsRemoveVariant func(m *message.Message) bool

	// Wins reports whether candidate beats existing under this
	// CRDT's tie-break ladder (§4.2). Called only when both messages
	// share a conflict key.
	Wins func(existing, candidate *message.Message) bool

	// StorageKey derives the 26-byte Sync ID suffix for m (§3): a
	// per-CRDT-deterministic function of (fid, body discriminator,
	// hash).
	StorageKey func(m *message.Message) [26]byte
}

// entry is what the store keeps per conflict key.
type entry struct {
	msg      *message.Message
	inRemove bool
}

// SyncIndexer is notified of every Sync ID insertion/removal the
// store performs, so the sync trie (C7) stays in lockstep with the
// CRDT it indexes (§5 "write-then-index ordering").
type SyncIndexer interface {
	Insert(id message.SyncID)
	Remove(id message.SyncID)
}

// Store is the generic two-phase/grow-only set engine (§4.2).
type Store struct {
	cfg   Config
	now   func() time.Time
	index SyncIndexer

	entries  map[string]*entry
	bySyncID map[message.SyncID]*message.Message
	evicted  *common.RollingSet
}

// New constructs a Store for the given Config, indexing Sync ID
// changes into idx.
func New(cfg Config, idx SyncIndexer) *Store {
	capacityWindow := cfg.Capacity
	if capacityWindow <= 0 {
		capacityWindow = 1 << 20 // unbounded CRDTs still cap the evicted-key LRU
	}
	return &Store{
		cfg:      cfg,
		now:      time.Now,
		index:    idx,
		entries:  make(map[string]*entry),
		bySyncID: make(map[message.SyncID]*message.Message),
		evicted:  common.NewRollingSet(capacityWindow),
	}
}

// indexInsert adds m to the sync trie and to the Sync-ID lookup table
// together, so the two are never allowed to drift apart (§5
// "write-then-index ordering").
func (s *Store) indexInsert(m *message.Message) {
	id := s.syncID(m)
	s.index.Insert(id)
	s.bySyncID[id] = m
}

// indexRemove is indexInsert's inverse.
func (s *Store) indexRemove(m *message.Message) {
	id := s.syncID(m)
	s.index.Remove(id)
	delete(s.bySyncID, id)
}

// MessageBySyncID resolves a Sync ID to the message currently stored
// under it, for the GetAllMessagesBySyncIds RPC (§4.5 step 4, §6).
func (s *Store) MessageBySyncID(id message.SyncID) (*message.Message, bool) {
	m, ok := s.bySyncID[id]
	return m, ok
}

// SetClock overrides the store's notion of "now", for deterministic
// TTL tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Merge runs the §4.2 algorithm. The caller (validate.Validator) is
// assumed to have already run §4.1 validation; Merge only applies
// CRDT-level conflict resolution.
func (s *Store) Merge(m *message.Message) (MergeResult, error) {
	key, err := s.cfg.ConflictKey(m)
	if err != nil {
		return MergeResult{}, common.WrapHubErr(common.MalformedBytes, "conflict key derivation failed", err)
	}

	var evictedByConflict []*message.Message
	if existing, ok := s.entries[key]; ok {
		if !s.cfg.Wins(existing.msg, m) {
			return MergeResult{Outcome: NoOp}, nil
		}
		s.indexRemove(existing.msg)
		delete(s.entries, key)
		s.rememberEvicted(key, existing.msg)
		evictedByConflict = []*message.Message{existing.msg}
	} else if s.evicted.Contains(evictedMarker(key, m.Hash)) {
		// A message cannot be re-admitted once its exact (key, hash)
		// combination has left the store permanently (§4.2 "Eviction
		// permanence", §8 scenario 2 and 6).
		return MergeResult{Outcome: NoOp}, nil
	}

	s.insert(key, m)
	evictedByBounds := s.enforceBounds()

	return MergeResult{Outcome: Inserted, Evicted: append(evictedByConflict, evictedByBounds...)}, nil
}

func (s *Store) insert(key string, m *message.Message) {
	inRemove := !s.cfg.GrowOnly && s.cfg.IsRemoveVariant != nil && s.cfg.IsRemoveVariant(m)
	s.entries[key] = &entry{msg: m, inRemove: inRemove}
	s.indexInsert(m)
}

// Discard unconditionally removes m's conflict-key entry, if any,
// bypassing conflict resolution. Used by the revocation cascade
// (§4.3): discards never leave a tombstone in R.
func (s *Store) Discard(m *message.Message) bool {
	key, err := s.cfg.ConflictKey(m)
	if err != nil {
		return false
	}
	e, ok := s.entries[key]
	if !ok || e.msg.Hash != m.Hash {
		return false
	}
	s.indexRemove(e.msg)
	delete(s.entries, key)
	return true
}

// DiscardAllByFidAndSigner unconditionally removes every message in
// this CRDT authored by fid and signed by signer, for the §4.3
// cascade ("every message m in C5 CRDTs with m.data.fid=f ∧
// m.signer=s"). It returns the discarded messages.
func (s *Store) DiscardAllByFidAndSigner(fid uint64, signer []byte) []*message.Message {
	var discarded []*message.Message
	for key, e := range s.entries {
		if e.msg.Data.Fid != fid {
			continue
		}
		if !bytesEqual(e.msg.Signer, signer) {
			continue
		}
		s.indexRemove(e.msg)
		delete(s.entries, key)
		discarded = append(discarded, e.msg)
	}
	return discarded
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Store) rememberEvicted(key string, m *message.Message) {
	s.evicted.Add(evictedMarker(key, m.Hash))
}

func evictedMarker(key string, hash [20]byte) string {
	return key + "|" + string(hash[:])
}

// enforceBounds implements the capacity and TTL half of §4.2's
// pseudocode: evict the globally-oldest entry until capacity is
// respected, then drop everything past TTL.
func (s *Store) enforceBounds() []*message.Message {
	var evicted []*message.Message

	if s.cfg.Capacity > 0 {
		for len(s.entries) > s.cfg.Capacity {
			key, e := s.oldestEntry()
			if e == nil {
				break
			}
			s.indexRemove(e.msg)
			delete(s.entries, key)
			s.rememberEvicted(key, e.msg)
			evicted = append(evicted, e.msg)
		}
	}

	if s.cfg.TTL > 0 {
		cutoff := s.now().Add(-s.cfg.TTL)
		for key, e := range s.entries {
			if messageTime(e.msg).Before(cutoff) {
				s.indexRemove(e.msg)
				delete(s.entries, key)
				s.rememberEvicted(key, e.msg)
				evicted = append(evicted, e.msg)
			}
		}
	}

	return evicted
}

// oldestEntry finds the entry with the smallest (timestamp, hash)
// ordering, the eviction victim per §4.2.
func (s *Store) oldestEntry() (string, *entry) {
	var bestKey string
	var best *entry
	for key, e := range s.entries {
		if best == nil || isOlder(e.msg, best.msg) {
			bestKey, best = key, e
		}
	}
	return bestKey, best
}

func isOlder(a, b *message.Message) bool {
	if a.Data.Timestamp != b.Data.Timestamp {
		return a.Data.Timestamp < b.Data.Timestamp
	}
	return message.Less(a.Hash, b.Hash)
}

func messageTime(m *message.Message) time.Time {
	epoch := time.Unix(message.FarcasterEpochUnixSeconds, 0).UTC()
	return epoch.Add(time.Duration(m.Data.Timestamp) * time.Millisecond)
}

func (s *Store) syncID(m *message.Message) message.SyncID {
	return message.NewSyncID(m.Data.Timestamp, s.cfg.StorageKey(m))
}

// Get returns the message currently stored under m's conflict key,
// if any, and whether it is in the remove-set.
func (s *Store) Get(m *message.Message) (*message.Message, bool, bool) {
	key, err := s.cfg.ConflictKey(m)
	if err != nil {
		return nil, false, false
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, false, false
	}
	return e.msg, e.inRemove, true
}

// Len returns |A|+|R| for this CRDT (§8 invariant 1).
func (s *Store) Len() int {
	return len(s.entries)
}

// All returns every message currently present, for diagnostics and
// tests.
func (s *Store) All() []*message.Message {
	out := make([]*message.Message, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.msg)
	}
	return out
}

func (s *Store) String() string {
	return fmt.Sprintf("crdt.Store{%s: %d entries}", s.cfg.Name, len(s.entries))
}
