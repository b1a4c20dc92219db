package rpc

import (
	"testing"

	"github.com/farcasterxyz/hubcore/message"
	"github.com/farcasterxyz/hubcore/synctrie"
)

type fakeSource struct {
	version  string
	nickname string
	synced   bool
	root     [20]byte
	ids      []message.SyncID
	messages []*message.Message
	metadata synctrie.Metadata
	snapshot synctrie.Snapshot
}

func (f *fakeSource) Version() string                                        { return f.version }
func (f *fakeSource) Nickname() string                                       { return f.nickname }
func (f *fakeSource) IsSynced() bool                                         { return f.synced }
func (f *fakeSource) RootHash() [20]byte                                     { return f.root }
func (f *fakeSource) SyncIDsByPrefix(prefix []byte) []message.SyncID         { return f.ids }
func (f *fakeSource) MessagesBySyncIDs(ids []message.SyncID) []*message.Message { return f.messages }
func (f *fakeSource) Metadata(prefix []byte) synctrie.Metadata               { return f.metadata }
func (f *fakeSource) Snapshot(prefix []byte) synctrie.Snapshot               { return f.snapshot }

// newConnectedPair wires a client-only InmemTransport to a
// server-backed one and starts the server's dispatch loop, returning
// the client transport and the server's address.
func newConnectedPair(t *testing.T, source Source) (*InmemTransport, string) {
	t.Helper()
	serverAddr, serverTransport := NewInmemTransport("")
	_, clientTransport := NewInmemTransport("")

	clientTransport.Connect(serverAddr, serverTransport)

	srv := NewServer(nil, serverTransport, source)
	go srv.Serve()
	t.Cleanup(srv.Stop)

	return clientTransport, serverAddr
}

func TestGetInfoRoundTrip(t *testing.T) {
	var root [20]byte
	root[0] = 0xAB
	source := &fakeSource{version: "1.2.3", nickname: "alice", synced: true, root: root}
	client, addr := newConnectedPair(t, source)

	var resp GetInfoResponse
	if err := client.GetInfo(addr, &GetInfoRequest{}, &resp); err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if resp.Version != "1.2.3" || resp.Nickname != "alice" || !resp.IsSynced {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RootHash != hashString(root) {
		t.Fatalf("expected root hash %s, got %s", hashString(root), resp.RootHash)
	}
}

func TestGetAllSyncIdsByPrefixRoundTrip(t *testing.T) {
	id := message.NewSyncID(42, [26]byte{9})
	source := &fakeSource{ids: []message.SyncID{id}}
	client, addr := newConnectedPair(t, source)

	var resp GetAllSyncIdsByPrefixResponse
	if err := client.GetAllSyncIdsByPrefix(addr, &GetAllSyncIdsByPrefixRequest{Prefix: nil}, &resp); err != nil {
		t.Fatalf("GetAllSyncIdsByPrefix: %v", err)
	}
	if len(resp.SyncIds) != 1 {
		t.Fatalf("expected one sync id, got %d", len(resp.SyncIds))
	}
}

func TestGetAllMessagesBySyncIdsRoundTrip(t *testing.T) {
	m := &message.Message{Data: message.Data{
		Type: message.TypeUserDataAdd, Fid: 1,
		UserDataAdd: &message.UserDataBody{Type: message.UserDataTypeBio, Value: "hi"},
	}}
	source := &fakeSource{messages: []*message.Message{m}}
	client, addr := newConnectedPair(t, source)

	var resp GetAllMessagesBySyncIdsResponse
	if err := client.GetAllMessagesBySyncIds(addr, &GetAllMessagesBySyncIdsRequest{}, &resp); err != nil {
		t.Fatalf("GetAllMessagesBySyncIds: %v", err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("expected one encoded message, got %d", len(resp.Messages))
	}
}

func TestGetSyncMetadataByPrefixRoundTrip(t *testing.T) {
	source := &fakeSource{metadata: synctrie.Metadata{NumMessages: 3, Children: []byte{0x01}}}
	client, addr := newConnectedPair(t, source)

	var resp GetSyncMetadataByPrefixResponse
	if err := client.GetSyncMetadataByPrefix(addr, &GetSyncMetadataByPrefixRequest{}, &resp); err != nil {
		t.Fatalf("GetSyncMetadataByPrefix: %v", err)
	}
	if resp.NumMessages != 3 {
		t.Fatalf("expected NumMessages 3, got %d", resp.NumMessages)
	}
}

func TestGetSyncSnapshotByPrefixRoundTrip(t *testing.T) {
	source := &fakeSource{snapshot: synctrie.Snapshot{NumMessages: 5}}
	client, addr := newConnectedPair(t, source)

	var resp GetSyncSnapshotByPrefixResponse
	if err := client.GetSyncSnapshotByPrefix(addr, &GetSyncSnapshotByPrefixRequest{}, &resp); err != nil {
		t.Fatalf("GetSyncSnapshotByPrefix: %v", err)
	}
	if resp.NumMessages != 5 {
		t.Fatalf("expected NumMessages 5, got %d", resp.NumMessages)
	}
}

func TestGetInfoFailsWithoutRoute(t *testing.T) {
	_, client := NewInmemTransport("")
	var resp GetInfoResponse
	if err := client.GetInfo("nowhere", &GetInfoRequest{}, &resp); err == nil {
		t.Fatalf("expected an error dispatching to an unconnected peer")
	}
}
