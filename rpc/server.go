package rpc

import (
	"github.com/sirupsen/logrus"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/message"
	"github.com/farcasterxyz/hubcore/synctrie"
)

// Source is what a Hub exposes to answer the five sync RPCs (§6). The
// Hub implements it directly; the server package depends only on this
// narrow view so it never imports the hub package.
type Source interface {
	Version() string
	Nickname() string
	IsSynced() bool
	RootHash() [20]byte
	SyncIDsByPrefix(prefix []byte) []message.SyncID
	MessagesBySyncIDs(ids []message.SyncID) []*message.Message
	Metadata(prefix []byte) synctrie.Metadata
	Snapshot(prefix []byte) synctrie.Snapshot
}

// Server answers inbound RPCs against a Source by draining a
// Transport's Consumer channel (§6), dispatching each of the five
// sync RPCs to its handler.
type Server struct {
	logger    *logrus.Entry
	transport Transport
	source    Source
	shutdown  chan struct{}
}

// NewServer wires transport's inbound RPCs to source.
func NewServer(logger *logrus.Logger, transport Transport, source Source) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		logger:    logger.WithField("component", "rpc-server"),
		transport: transport,
		source:    source,
		shutdown:  make(chan struct{}),
	}
}

// Serve runs the dispatch loop until Stop is called. Callers run it in
// its own goroutine alongside transport.Listen().
func (s *Server) Serve() {
	for {
		select {
		case req := <-s.transport.Consumer():
			s.dispatch(req)
		case <-s.shutdown:
			return
		}
	}
}

// Stop ends the dispatch loop. It does not close the transport.
func (s *Server) Stop() {
	close(s.shutdown)
}

func (s *Server) dispatch(req RPC) {
	switch cmd := req.Command.(type) {
	case *GetInfoRequest:
		req.Respond(s.getInfo(cmd))
	case *GetAllSyncIdsByPrefixRequest:
		req.Respond(s.getAllSyncIdsByPrefix(cmd))
	case *GetAllMessagesBySyncIdsRequest:
		req.Respond(s.getAllMessagesBySyncIds(cmd))
	case *GetSyncMetadataByPrefixRequest:
		req.Respond(s.getSyncMetadataByPrefix(cmd))
	case *GetSyncSnapshotByPrefixRequest:
		req.Respond(s.getSyncSnapshotByPrefix(cmd))
	default:
		s.logger.Warnf("rpc: unrecognized command %T", cmd)
	}
}

func (s *Server) getInfo(*GetInfoRequest) (*GetInfoResponse, error) {
	return &GetInfoResponse{
		Version:  s.source.Version(),
		IsSynced: s.source.IsSynced(),
		Nickname: s.source.Nickname(),
		RootHash: hashString(s.source.RootHash()),
	}, nil
}

func (s *Server) getAllSyncIdsByPrefix(req *GetAllSyncIdsByPrefixRequest) (*GetAllSyncIdsByPrefixResponse, error) {
	ids := s.source.SyncIDsByPrefix(req.Prefix)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = common.EncodeToString(id[:])
	}
	return &GetAllSyncIdsByPrefixResponse{SyncIds: out}, nil
}

func (s *Server) getAllMessagesBySyncIds(req *GetAllMessagesBySyncIdsRequest) (*GetAllMessagesBySyncIdsResponse, error) {
	ids := make([]message.SyncID, 0, len(req.SyncIds))
	for _, hexID := range req.SyncIds {
		raw, err := common.DecodeString(hexID)
		if err != nil || len(raw) != message.SyncIDSize {
			continue
		}
		var id message.SyncID
		copy(id[:], raw)
		ids = append(ids, id)
	}

	msgs := s.source.MessagesBySyncIDs(ids)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		encoded, err := message.EncodeMessage(m)
		if err != nil {
			s.logger.WithError(err).Warn("rpc: failed to encode message for sync response")
			continue
		}
		out = append(out, common.EncodeToString(encoded))
	}
	return &GetAllMessagesBySyncIdsResponse{Messages: out}, nil
}

func (s *Server) getSyncMetadataByPrefix(req *GetSyncMetadataByPrefixRequest) (*GetSyncMetadataByPrefixResponse, error) {
	md := s.source.Metadata(req.Prefix)
	return &GetSyncMetadataByPrefixResponse{
		Prefix:      md.Prefix,
		NumMessages: md.NumMessages,
		Hash:        hashString(md.Hash),
		Children:    md.Children,
	}, nil
}

func (s *Server) getSyncSnapshotByPrefix(req *GetSyncSnapshotByPrefixRequest) (*GetSyncSnapshotByPrefixResponse, error) {
	snap := s.source.Snapshot(req.Prefix)
	excluded := make([]string, len(snap.ExcludedHashes))
	for i, h := range snap.ExcludedHashes {
		excluded[i] = hashString(h)
	}
	return &GetSyncSnapshotByPrefixResponse{
		Prefix:         snap.Prefix,
		ExcludedHashes: excluded,
		NumMessages:    snap.NumMessages,
		RootHash:       hashString(snap.RootHash),
	}, nil
}
