// Package diffsync implements the diff-sync protocol (C8, §4.5): the
// divergence-detection walk over two Hubs' sync tries, and the
// scheduler that triggers it on startup, periodically, and on demand.
package diffsync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/message"
	"github.com/farcasterxyz/hubcore/rpc"
	"github.com/farcasterxyz/hubcore/synctrie"
)

// maxDivergenceSteps bounds the exclusion-hash walk (§4.5 step 2) to
// the Sync ID's fixed depth, so a misbehaving peer can never make it
// loop forever.
const maxDivergenceSteps = message.SyncIDSize

// maxRequeueDepth bounds how many ingest attempts, the first one
// included, an out-of-order message gets while it keeps failing with
// UnauthorizedSigner (§4.5 step 4) before it is dropped.
const maxRequeueDepth = 5

// rpcTimeout is the independent per-RPC deadline (§5 "Timeouts").
const rpcTimeout = 15 * time.Second

// Ingestor runs a decoded message through validation and the CRDT
// merge pipeline (§4.2). The Hub implements this; diffsync depends
// only on the narrow interface to avoid importing it.
type Ingestor interface {
	Ingest(m *message.Message) error
}

// Result summarizes one SyncWith call, for logging and tests.
type Result struct {
	Peer           string
	DivergentAt    []byte
	Imported       int
	Dropped        int
	AlreadyInSync  bool
}

// Syncer runs the diff-sync algorithm against peers (§4.5).
type Syncer struct {
	logger    *logrus.Entry
	trie      *synctrie.Trie
	transport rpc.Transport
	ingestor  Ingestor

	faulty map[string]bool
}

// New builds a Syncer over the local trie, using transport to reach
// peers and ingestor to apply imported messages.
func New(logger *logrus.Logger, trie *synctrie.Trie, transport rpc.Transport, ingestor Ingestor) *Syncer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Syncer{
		logger:    logger.WithField("component", "diffsync"),
		trie:      trie,
		transport: transport,
		ingestor:  ingestor,
		faulty:    make(map[string]bool),
	}
}

// IsFaulty reports whether peer was marked faulty this session (§4.5
// "Failure semantics").
func (s *Syncer) IsFaulty(peer string) bool {
	return s.faulty[peer]
}

func (s *Syncer) markFaulty(peer string, reason error) {
	s.faulty[peer] = true
	s.logger.WithFields(logrus.Fields{"peer": peer, "reason": reason}).
		Warn("diffsync: marking peer faulty for the remainder of the session")
}

// SyncWith runs the full algorithm (§4.5 steps 1-4) against peer.
func (s *Syncer) SyncWith(ctx context.Context, peer string) (Result, error) {
	if s.faulty[peer] {
		return Result{Peer: peer}, fmt.Errorf("diffsync: peer %q is marked faulty", peer)
	}

	var info rpc.GetInfoResponse
	if err := s.callWithDeadline(ctx, func() error {
		return s.transport.GetInfo(peer, &rpc.GetInfoRequest{}, &info)
	}); err != nil {
		return Result{Peer: peer}, common.WrapHubErr(common.RpcTimeout, "GetInfo", err)
	}

	localRoot := s.trie.RootHash()
	if info.RootHash == common.EncodeToString(localRoot[:]) {
		return Result{Peer: peer, AlreadyInSync: true}, nil
	}

	prefix, err := s.locateDivergencePrefix(ctx, peer)
	if err != nil {
		return Result{Peer: peer}, err
	}

	onlyRemote, err := s.diffLeaves(ctx, peer, prefix)
	if err != nil {
		return Result{Peer: peer, DivergentAt: prefix}, err
	}

	imported, dropped := s.importLeaves(ctx, peer, onlyRemote)
	return Result{
		Peer:        peer,
		DivergentAt: prefix,
		Imported:    imported,
		Dropped:     dropped,
	}, nil
}

// locateDivergencePrefix implements §4.5 step 2: it repeatedly
// compares snapshot exclusion-hashes with the peer, extending the
// prefix down the rightmost (newest) edge as long as every earlier
// level agrees, and stops at the first level that disagrees (or when
// no further rightmost child exists).
func (s *Syncer) locateDivergencePrefix(ctx context.Context, peer string) ([]byte, error) {
	prefix := []byte{}

	for step := 0; step < maxDivergenceSteps; step++ {
		localSnap := s.trie.Snapshot(prefix)

		var remoteWire rpc.GetSyncSnapshotByPrefixResponse
		if err := s.callWithDeadline(ctx, func() error {
			return s.transport.GetSyncSnapshotByPrefix(peer, &rpc.GetSyncSnapshotByPrefixRequest{Prefix: prefix}, &remoteWire)
		}); err != nil {
			return prefix, common.WrapHubErr(common.RpcTimeout, "GetSyncSnapshotByPrefix", err)
		}
		remoteExcluded, err := decodeHashes(remoteWire.ExcludedHashes)
		if err != nil {
			s.markFaulty(peer, err)
			return prefix, common.WrapHubErr(common.TrieRootMismatch, "peer returned malformed exclusion hashes", err)
		}

		i := firstDivergentLevel(localSnap.ExcludedHashes, remoteExcluded)

		next := s.trie.RightmostPath(prefix, i)
		if len(next) == len(prefix) {
			return prefix, nil // no further rightmost edge to descend; stop here
		}
		prefix = next
		if i == 0 {
			return prefix, nil
		}
	}
	return prefix, nil
}

// firstDivergentLevel returns the smallest index where a and b
// differ, or min(len(a), len(b)) if one is a strict prefix of the
// other (§4.5 step 2b).
func firstDivergentLevel(a, b [][20]byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func decodeHashes(hexHashes []string) ([][20]byte, error) {
	out := make([][20]byte, len(hexHashes))
	for i, h := range hexHashes {
		raw, err := common.DecodeString(h)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("diffsync: malformed hash %q", h)
		}
		copy(out[i][:], raw)
	}
	return out, nil
}

// diffLeaves implements §4.5 step 3: it fetches the peer's full leaf
// set under prefix, verifies it against the hash the peer advertises
// for that subtree (marking the peer faulty on mismatch), and returns
// the Sync IDs present on the peer but not locally.
func (s *Syncer) diffLeaves(ctx context.Context, peer string, prefix []byte) ([]message.SyncID, error) {
	var metaWire rpc.GetSyncMetadataByPrefixResponse
	if err := s.callWithDeadline(ctx, func() error {
		return s.transport.GetSyncMetadataByPrefix(peer, &rpc.GetSyncMetadataByPrefixRequest{Prefix: prefix}, &metaWire)
	}); err != nil {
		return nil, common.WrapHubErr(common.RpcTimeout, "GetSyncMetadataByPrefix", err)
	}

	var idsWire rpc.GetAllSyncIdsByPrefixResponse
	if err := s.callWithDeadline(ctx, func() error {
		return s.transport.GetAllSyncIdsByPrefix(peer, &rpc.GetAllSyncIdsByPrefixRequest{Prefix: prefix}, &idsWire)
	}); err != nil {
		return nil, common.WrapHubErr(common.RpcTimeout, "GetAllSyncIdsByPrefix", err)
	}

	remoteLeaves := make([]message.SyncID, 0, len(idsWire.SyncIds))
	for _, hexID := range idsWire.SyncIds {
		raw, err := common.DecodeString(hexID)
		if err != nil || len(raw) != message.SyncIDSize {
			s.markFaulty(peer, fmt.Errorf("malformed sync id %q", hexID))
			return nil, common.NewHubErr(common.SyncIdNotFound, "peer returned malformed sync id")
		}
		var id message.SyncID
		copy(id[:], raw)
		remoteLeaves = append(remoteLeaves, id)
	}

	if err := verifySubtreeHash(remoteLeaves, prefix, metaWire.Hash); err != nil {
		s.markFaulty(peer, err)
		return nil, common.WrapHubErr(common.TrieRootMismatch, "peer's leaf set does not match its advertised subtree hash", err)
	}

	localLeaves := s.trie.LeavesByPrefix(prefix)
	localSet := make(map[message.SyncID]bool, len(localLeaves))
	for _, id := range localLeaves {
		localSet[id] = true
	}

	var onlyRemote []message.SyncID
	for _, id := range remoteLeaves {
		if !localSet[id] {
			onlyRemote = append(onlyRemote, id)
		}
	}
	return onlyRemote, nil
}

// verifySubtreeHash rebuilds a scratch trie from leaves and checks
// that the subtree hash it derives at prefix matches claimedHex, the
// hash the peer advertised for that subtree (§4.5 "Failure semantics",
// §7 TrieRootMismatch).
func verifySubtreeHash(leaves []message.SyncID, prefix []byte, claimedHex string) error {
	scratch := synctrie.New()
	for _, id := range leaves {
		scratch.Insert(id)
	}
	got := scratch.Metadata(prefix).Hash
	want, err := common.DecodeString(claimedHex)
	if err != nil || len(want) != 20 {
		return fmt.Errorf("malformed advertised hash %q", claimedHex)
	}
	if common.EncodeToString(got[:]) != common.EncodeToString(want) {
		return fmt.Errorf("rebuilt subtree hash %x does not match advertised %x", got, want)
	}
	return nil
}

// importLeaves implements §4.5 step 4: fetch full messages for ids,
// feed Signer messages through the merge pipeline first, then
// everything else, re-queueing UnauthorizedSigner failures up to
// maxRequeueDepth.
func (s *Syncer) importLeaves(ctx context.Context, peer string, ids []message.SyncID) (imported, dropped int) {
	if len(ids) == 0 {
		return 0, 0
	}

	hexIDs := make([]string, len(ids))
	for i, id := range ids {
		hexIDs[i] = common.EncodeToString(id[:])
	}

	var msgsWire rpc.GetAllMessagesBySyncIdsResponse
	if err := s.callWithDeadline(ctx, func() error {
		return s.transport.GetAllMessagesBySyncIds(peer, &rpc.GetAllMessagesBySyncIdsRequest{SyncIds: hexIDs}, &msgsWire)
	}); err != nil {
		s.logger.WithError(err).Warn("diffsync: failed to fetch messages for sync ids")
		return 0, len(ids)
	}

	var signers, others []*message.Message
	for _, hexMsg := range msgsWire.Messages {
		raw, err := common.DecodeString(hexMsg)
		if err != nil {
			dropped++
			continue
		}
		m, err := message.DecodeMessage(raw)
		if err != nil {
			dropped++
			continue
		}
		if m.Data.Type == message.TypeSignerAdd || m.Data.Type == message.TypeSignerRemove {
			signers = append(signers, m)
		} else {
			others = append(others, m)
		}
	}

	for _, m := range signers {
		if err := s.ingestor.Ingest(m); err != nil {
			s.logger.WithError(err).Debug("diffsync: signer message rejected")
			dropped++
			continue
		}
		imported++
	}

	queue := others
	for depth := 0; depth < maxRequeueDepth && len(queue) > 0; depth++ {
		var retry []*message.Message
		for _, m := range queue {
			err := s.ingestor.Ingest(m)
			switch {
			case err == nil:
				imported++
			case common.Is(err, common.UnauthorizedSigner):
				retry = append(retry, m)
			default:
				dropped++
			}
		}
		queue = retry
	}
	dropped += len(queue)

	return imported, dropped
}

func (s *Syncer) callWithDeadline(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	deadline, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	select {
	case err := <-done:
		return err
	case <-deadline.Done():
		return deadline.Err()
	}
}
