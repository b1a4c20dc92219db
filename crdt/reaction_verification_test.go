package crdt

import (
	"testing"
	"time"

	"github.com/farcasterxyz/hubcore/message"
)

// reactionEpoch pins the store clock to the Farcaster epoch instant so
// the Reaction config's 90-day TTL does not sweep the test messages.
var reactionEpoch = time.Unix(message.FarcasterEpochUnixSeconds, 0).UTC()

func reactionAdd(fid uint64, target message.CastId, ts uint32, hash byte) *message.Message {
	m := &message.Message{Data: message.Data{
		Type: message.TypeReactionAdd, Fid: fid, Timestamp: ts,
		ReactionAdd: &message.ReactionBody{Type: message.ReactionTypeLike, Target: target},
	}}
	m.Hash[19] = hash
	return m
}

func reactionRemove(fid uint64, target message.CastId, ts uint32, hash byte) *message.Message {
	m := &message.Message{Data: message.Data{
		Type: message.TypeReactionRemove, Fid: fid, Timestamp: ts,
		ReactionRemove: &message.ReactionBody{Type: message.ReactionTypeLike, Target: target},
	}}
	m.Hash[19] = hash
	return m
}

func TestReactionStoreRemoveBeatsAddAtSameTimestamp(t *testing.T) {
	s := New(NewReactionConfig(), &fakeIndex{})
	s.SetClock(func() time.Time { return reactionEpoch })
	target := message.CastId{Fid: 5, Hash: [20]byte{1}}

	add := reactionAdd(1, target, 100, 1)
	remove := reactionRemove(1, target, 100, 2)

	if _, err := s.Merge(add); err != nil {
		t.Fatal(err)
	}
	res, err := s.Merge(remove)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Inserted {
		t.Fatalf("expected ReactionRemove to beat ReactionAdd at equal timestamp, got %v", res.Outcome)
	}
	_, inRemove, ok := s.Get(remove)
	if !ok || !inRemove {
		t.Fatalf("expected reaction to end up in the remove-set, inRemove=%v ok=%v", inRemove, ok)
	}
}

func TestReactionStoreDistinctTargetsDoNotConflict(t *testing.T) {
	s := New(NewReactionConfig(), &fakeIndex{})
	s.SetClock(func() time.Time { return reactionEpoch })
	a := reactionAdd(1, message.CastId{Fid: 5, Hash: [20]byte{1}}, 100, 1)
	b := reactionAdd(1, message.CastId{Fid: 5, Hash: [20]byte{2}}, 100, 1)

	if _, err := s.Merge(a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Merge(b); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected reactions to distinct targets to coexist, got len %d", s.Len())
	}
}

func TestReactionStoreHigherHashTieBreak(t *testing.T) {
	s := New(NewReactionConfig(), &fakeIndex{})
	target := message.CastId{Fid: 5, Hash: [20]byte{1}}

	low := reactionAdd(1, target, 100, 1)
	high := reactionAdd(1, target, 100, 2)

	if _, err := s.Merge(low); err != nil {
		t.Fatal(err)
	}
	res, err := s.Merge(high)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Inserted {
		t.Fatalf("expected higher hash to win tie, got %v", res.Outcome)
	}
}

func verificationAdd(fid uint64, addr [20]byte, ts uint32, hash byte) *message.Message {
	m := &message.Message{Data: message.Data{
		Type: message.TypeVerificationAddEthAddress, Fid: fid, Timestamp: ts,
		VerificationAddEthAddress: &message.VerificationAddBody{Address: addr},
	}}
	m.Hash[19] = hash
	return m
}

func verificationRemove(fid uint64, addr [20]byte, ts uint32, hash byte) *message.Message {
	m := &message.Message{Data: message.Data{
		Type: message.TypeVerificationRemove, Fid: fid, Timestamp: ts,
		VerificationRemove: &message.VerificationRemoveBody{Address: addr},
	}}
	m.Hash[19] = hash
	return m
}

func TestVerificationStoreRemoveBeatsAddAtSameTimestamp(t *testing.T) {
	s := New(NewVerificationConfig(), &fakeIndex{})
	var addr [20]byte
	addr[0] = 0x42

	add := verificationAdd(1, addr, 100, 1)
	remove := verificationRemove(1, addr, 100, 2)

	if _, err := s.Merge(add); err != nil {
		t.Fatal(err)
	}
	res, err := s.Merge(remove)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Inserted {
		t.Fatalf("expected VerificationRemove to beat VerificationAdd at equal timestamp, got %v", res.Outcome)
	}
}

func TestVerificationStoreCapacityBound(t *testing.T) {
	cfg := NewVerificationConfig()
	cfg.Capacity = 2
	s := New(cfg, &fakeIndex{})

	var a, b, c [20]byte
	a[0], b[0], c[0] = 1, 2, 3

	if _, err := s.Merge(verificationAdd(1, a, 100, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Merge(verificationAdd(1, b, 200, 1)); err != nil {
		t.Fatal(err)
	}
	res, err := s.Merge(verificationAdd(1, c, 300, 1))
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
