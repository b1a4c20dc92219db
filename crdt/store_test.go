package crdt

import (
	"testing"
	"time"

	"github.com/farcasterxyz/hubcore/message"
)

type fakeIndex struct {
	inserted []message.SyncID
	removed  []message.SyncID
}

func (f *fakeIndex) Insert(id message.SyncID) { f.inserted = append(f.inserted, id) }
func (f *fakeIndex) Remove(id message.SyncID) { f.removed = append(f.removed, id) }

func signerAdd(fid uint64, signer [32]byte, ts uint32, hash byte) *message.Message {
	m := &message.Message{
		Data: message.Data{
			Type:      message.TypeSignerAdd,
			Fid:       fid,
			Timestamp: ts,
			SignerAdd: &message.SignerBody{Signer: signer},
		},
	}
	m.Hash[19] = hash
	return m
}

func signerRemove(fid uint64, signer [32]byte, ts uint32, hash byte) *message.Message {
	m := &message.Message{
		Data: message.Data{
			Type:         message.TypeSignerRemove,
			Fid:          fid,
			Timestamp:    ts,
			SignerRemove: &message.SignerBody{Signer: signer},
		},
	}
	m.Hash[19] = hash
	return m
}

func TestStoreSignerHigherTimestampWins(t *testing.T) {
	idx := &fakeIndex{}
	s := New(NewSignerConfig(), idx)

	var signer [32]byte
	signer[0] = 0xAA

	older := signerAdd(1, signer, 100, 1)
	newer := signerAdd(1, signer, 200, 1)

	if _, err := s.Merge(older); err != nil {
		t.Fatalf("merge older: %v", err)
	}
	res, err := s.Merge(newer)
	if err != nil {
		t.Fatalf("merge newer: %v", err)
	}
	if res.Outcome != Inserted {
		t.Fatalf("expected newer message to win, got outcome %v", res.Outcome)
	}
	if len(res.Evicted) != 1 || res.Evicted[0].Hash != older.Hash {
		t.Fatalf("expected older message evicted, got %v", res.Evicted)
	}

	got, inRemove, ok := s.Get(newer)
	if !ok || inRemove || got.Hash != newer.Hash {
		t.Fatalf("expected newer message to be current entry, got %v inRemove=%v ok=%v", got, inRemove, ok)
	}
}

func TestStoreSignerRemoveBeatsAddAtSameTimestamp(t *testing.T) {
	idx := &fakeIndex{}
	s := New(NewSignerConfig(), idx)

	var signer [32]byte
	signer[0] = 0xBB

	add := signerAdd(1, signer, 100, 1)
	remove := signerRemove(1, signer, 100, 2)

	if _, err := s.Merge(add); err != nil {
		t.Fatalf("merge add: %v", err)
	}
	res, err := s.Merge(remove)
	if err != nil {
		t.Fatalf("merge remove: %v", err)
	}
	if res.Outcome != Inserted {
		t.Fatalf("expected remove to beat add at equal timestamp, got %v", res.Outcome)
	}

	_, inRemove, ok := s.Get(remove)
	if !ok || !inRemove {
		t.Fatalf("expected signer to end up in the remove-set, inRemove=%v ok=%v", inRemove, ok)
	}
}

func TestStoreSignerHigherHashTieBreak(t *testing.T) {
	idx := &fakeIndex{}
	s := New(NewSignerConfig(), idx)

	var signer [32]byte
	signer[0] = 0xCC

	low := signerAdd(1, signer, 100, 1)
	high := signerAdd(1, signer, 100, 2)

	if _, err := s.Merge(low); err != nil {
		t.Fatalf("merge low: %v", err)
	}
	res, err := s.Merge(high)
	if err != nil {
		t.Fatalf("merge high: %v", err)
	}
	if res.Outcome != Inserted {
		t.Fatalf("expected higher hash to win tie, got %v", res.Outcome)
	}

	// Re-submitting the evicted low-hash message must not be re-admitted.
	res2, err := s.Merge(low)
	if err != nil {
		t.Fatalf("re-merge low: %v", err)
	}
	if res2.Outcome != NoOp {
		t.Fatalf("expected permanently-evicted message to stay rejected, got %v", res2.Outcome)
	}
}

func TestStoreCapacityEvictsOldest(t *testing.T) {
	idx := &fakeIndex{}
	cfg := NewSignerConfig()
	cfg.Capacity = 2
	s := New(cfg, idx)

	var a, b, c [32]byte
	a[0], b[0], c[0] = 1, 2, 3

	if _, err := s.Merge(signerAdd(1, a, 100, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Merge(signerAdd(1, b, 200, 1)); err != nil {
		t.Fatal(err)
	}
	res, err := s.Merge(signerAdd(1, c, 300, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Inserted || len(res.Evicted) != 1 {
		t.Fatalf("expected one eviction from capacity pressure, got %+v", res)
	}
	if s.Len() != 2 {
		t.Fatalf("expected store to stay at capacity 2, got %d", s.Len())
	}
}

func TestStoreTTLEviction(t *testing.T) {
	idx := &fakeIndex{}
	cfg := NewUserDataConfig()
	cfg.TTL = time.Hour
	s := New(cfg, idx)

	epoch := time.Unix(message.FarcasterEpochUnixSeconds, 0).UTC()
	now := epoch
	s.SetClock(func() time.Time { return now })

	stale := &message.Message{Data: message.Data{
		Type: message.TypeUserDataAdd, Fid: 1, Timestamp: 0,
		UserDataAdd: &message.UserDataBody{Type: message.UserDataTypeBio, Value: "old"},
	}}
	if _, err := s.Merge(stale); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected stale message inserted while still fresh, got len %d", s.Len())
	}

	// Advance the clock past the TTL window and merge an unrelated
	// message; the sweep this triggers should evict the now-stale one.
	now = epoch.Add(2 * time.Hour)
	fresh := &message.Message{Data: message.Data{
		Type: message.TypeUserDataAdd, Fid: 2, Timestamp: uint32(2 * time.Hour / time.Millisecond),
		UserDataAdd: &message.UserDataBody{Type: message.UserDataTypeBio, Value: "new"},
	}}
	res, err := s.Merge(fresh)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Evicted) != 1 || res.Evicted[0].Data.Fid != 1 {
		t.Fatalf("expected the stale fid-1 message to be TTL-evicted, got %+v", res.Evicted)
	}
}

func TestStoreDiscardAllByFidAndSigner(t *testing.T) {
	idx := &fakeIndex{}
	s := New(NewSignerConfig(), idx)

	var signer [32]byte
	signer[0] = 0xDD
	var custody [20]byte
	custody[0] = 0xDD

	// DiscardAllByFidAndSigner matches the envelope signer (the custody
	// address for Signer messages), not the body's Ed25519 key.
	m := signerAdd(7, signer, 100, 1)
	m.Signer = custody[:]
	if _, err := s.Merge(m); err != nil {
		t.Fatal(err)
	}

	discarded := s.DiscardAllByFidAndSigner(7, custody[:])
	if len(discarded) != 1 {
		t.Fatalf("expected one discarded message, got %d", len(discarded))
	}
	if s.Len() != 0 {
		t.Fatalf("expected store empty after discard, got len %d", s.Len())
	}
	if discarded[0].Data.Fid != 7 {
		t.Fatalf("expected discarded message for fid 7, got fid %d", discarded[0].Data.Fid)
	}
}

func TestStoreMessageBySyncIDTracksIndex(t *testing.T) {
	idx := &fakeIndex{}
	s := New(NewSignerConfig(), idx)

	var signer [32]byte
	signer[0] = 0xEE

	m := signerAdd(9, signer, 150, 7)
	if _, err := s.Merge(m); err != nil {
		t.Fatal(err)
	}
	if len(idx.inserted) != 1 {
		t.Fatalf("expected exactly one index insert, got %d", len(idx.inserted))
	}

	got, ok := s.MessageBySyncID(idx.inserted[0])
	if !ok || got.Hash != m.Hash {
		t.Fatalf("expected MessageBySyncID to resolve the inserted message, got %v ok=%v", got, ok)
	}

	s.Discard(m)
	if len(idx.removed) != 1 {
		t.Fatalf("expected exactly one index removal after discard, got %d", len(idx.removed))
	}
	if _, ok := s.MessageBySyncID(idx.inserted[0]); ok {
		t.Fatalf("expected MessageBySyncID to forget a discarded message's sync ID")
	}
}
