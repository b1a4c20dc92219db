package diffsync

import (
	"context"
	"testing"

	"github.com/farcasterxyz/hubcore/message"
	"github.com/farcasterxyz/hubcore/rpc"
	"github.com/farcasterxyz/hubcore/synctrie"
)

// fakeNode is a minimal rpc.Source backed by an in-memory trie and
// message set, standing in for a peer Hub during diff-sync tests.
type fakeNode struct {
	trie     *synctrie.Trie
	messages map[message.SyncID]*message.Message
}

func newFakeNode() *fakeNode {
	return &fakeNode{trie: synctrie.New(), messages: make(map[message.SyncID]*message.Message)}
}

func (n *fakeNode) add(id message.SyncID, m *message.Message) {
	n.trie.Insert(id)
	n.messages[id] = m
}

func (n *fakeNode) Version() string  { return "test" }
func (n *fakeNode) Nickname() string { return "fake" }
func (n *fakeNode) IsSynced() bool   { return true }
func (n *fakeNode) RootHash() [20]byte { return n.trie.RootHash() }
func (n *fakeNode) SyncIDsByPrefix(prefix []byte) []message.SyncID { return n.trie.LeavesByPrefix(prefix) }
func (n *fakeNode) MessagesBySyncIDs(ids []message.SyncID) []*message.Message {
	out := make([]*message.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := n.messages[id]; ok {
			out = append(out, m)
		}
	}
	return out
}
func (n *fakeNode) Metadata(prefix []byte) synctrie.Metadata { return n.trie.Metadata(prefix) }
func (n *fakeNode) Snapshot(prefix []byte) synctrie.Snapshot { return n.trie.Snapshot(prefix) }

type recordingIngestor struct {
	ingested []*message.Message
}

func (r *recordingIngestor) Ingest(m *message.Message) error {
	r.ingested = append(r.ingested, m)
	return nil
}

func userDataMessage(fid uint64, timestamp uint32, value string) *message.Message {
	return &message.Message{Data: message.Data{
		Type:        message.TypeUserDataAdd,
		Fid:         fid,
		Timestamp:   timestamp,
		UserDataAdd: &message.UserDataBody{Type: message.UserDataTypeBio, Value: value},
	}}
}

func syncIDFor(timestamp uint32, tag byte) message.SyncID {
	var key [26]byte
	key[0] = tag
	return message.NewSyncID(timestamp, key)
}

func newConnectedPair(t *testing.T, source rpc.Source) (*rpc.InmemTransport, string) {
	t.Helper()
	serverAddr, serverTransport := rpc.NewInmemTransport("")
	_, clientTransport := rpc.NewInmemTransport("")
	clientTransport.Connect(serverAddr, serverTransport)

	srv := rpc.NewServer(nil, serverTransport, source)
	go srv.Serve()
	t.Cleanup(srv.Stop)

	return clientTransport, serverAddr
}

func TestSyncWithImportsRemoteOnlyLeaves(t *testing.T) {
	remote := newFakeNode()
	id1 := syncIDFor(100, 1)
	id2 := syncIDFor(200, 2)
	remote.add(id1, userDataMessage(1, 100, "alice"))
	remote.add(id2, userDataMessage(2, 200, "bob"))

	clientTransport, serverAddr := newConnectedPair(t, remote)

	localTrie := synctrie.New()
	ingestor := &recordingIngestor{}
	syncer := New(nil, localTrie, clientTransport, ingestor)

	result, err := syncer.SyncWith(context.Background(), serverAddr)
	if err != nil {
		t.Fatalf("SyncWith: %v", err)
	}
	if result.AlreadyInSync {
		t.Fatalf("expected divergence to be detected, not already-in-sync")
	}
	if result.Imported != 2 {
		t.Fatalf("expected both remote leaves to import, got imported=%d dropped=%d", result.Imported, result.Dropped)
	}
	if len(ingestor.ingested) != 2 {
		t.Fatalf("expected the ingestor to receive 2 messages, got %d", len(ingestor.ingested))
	}
}

func TestSyncWithReportsAlreadyInSync(t *testing.T) {
	remote := newFakeNode()
	id1 := syncIDFor(100, 1)
	remote.add(id1, userDataMessage(1, 100, "alice"))

	clientTransport, serverAddr := newConnectedPair(t, remote)

	localTrie := synctrie.New()
	localTrie.Insert(id1)
	ingestor := &recordingIngestor{}
	syncer := New(nil, localTrie, clientTransport, ingestor)

	result, err := syncer.SyncWith(context.Background(), serverAddr)
	if err != nil {
		t.Fatalf("SyncWith: %v", err)
	}
	if !result.AlreadyInSync {
		t.Fatalf("expected identical tries to report already-in-sync")
	}
	if len(ingestor.ingested) != 0 {
		t.Fatalf("expected no messages ingested when already in sync")
	}
}

func TestSyncWithSkipsFaultyPeer(t *testing.T) {
	remote := newFakeNode()
	clientTransport, serverAddr := newConnectedPair(t, remote)

	localTrie := synctrie.New()
	syncer := New(nil, localTrie, clientTransport, &recordingIngestor{})
	syncer.faulty[serverAddr] = true

	if _, err := syncer.SyncWith(context.Background(), serverAddr); err == nil {
		t.Fatalf("expected SyncWith to refuse a peer already marked faulty")
	}
}

func TestRandomPeerSelectorAvoidsImmediateRepeat(t *testing.T) {
	sel := NewRandomPeerSelector([]string{"a", "b"}, "")
	first, ok := sel.Next()
	if !ok {
		t.Fatalf("expected a selectable peer")
	}
	sel.UpdateLast(first)

	for i := 0; i < 20; i++ {
		next, ok := sel.Next()
		if !ok {
			t.Fatalf("expected a selectable peer")
		}
		if next == first {
			t.Fatalf("expected Next to avoid immediately repeating %q", first)
		}
	}
}

func TestRandomPeerSelectorExcludesSelf(t *testing.T) {
	sel := NewRandomPeerSelector([]string{"a", "self"}, "self")
	peers := sel.Peers()
	for _, p := range peers {
		if p == "self" {
			t.Fatalf("expected self to be excluded from the selectable peer set")
		}
	}
}

func TestRandomPeerSelectorNoPeers(t *testing.T) {
	sel := NewRandomPeerSelector(nil, "")
	if _, ok := sel.Next(); ok {
		t.Fatalf("expected Next to report no selectable peer when none are configured")
	}
}
