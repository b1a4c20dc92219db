// Package hub wires together every component of the engine — the fid
// registry, the five CRDT stores, the revocation cascade, the sync
// trie, the validator, the RPC server, and the diff-sync scheduler —
// into one object with an explicit lifecycle: a sequence of init steps
// followed by Start/Stop.
package hub

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/farcasterxyz/hubcore/cascade"
	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/crdt"
	"github.com/farcasterxyz/hubcore/diffsync"
	"github.com/farcasterxyz/hubcore/fidregistry"
	"github.com/farcasterxyz/hubcore/message"
	"github.com/farcasterxyz/hubcore/rpc"
	"github.com/farcasterxyz/hubcore/synctrie"
	"github.com/farcasterxyz/hubcore/validate"
)

// Options configures a Hub at construction. cmd/hub builds one of
// these from the resolved config.Config; tests build one by hand.
type Options struct {
	Version  string
	Nickname string
	Network  message.Network

	// StorePath is a directory for the badger database; empty means
	// in-memory only (§6 "Persisted state layout" is then a no-op).
	StorePath string

	// ShardCount is the number of serial per-fid merge queues (§5). It
	// defaults to DefaultShardCount when zero.
	ShardCount int

	// SyncInterval is how often the diff-sync scheduler runs a
	// periodic cycle (§4.5 "(ii) periodically").
	SyncInterval time.Duration

	Transport rpc.Transport
	Peers     []string
}

// Hub owns every component's lifecycle and is the single entry point
// gossip/RPC handlers and chain-event ingestion call into.
type Hub struct {
	logger *logrus.Entry
	opts   Options

	db *badger.DB

	registry  *fidregistry.Registry
	validator *validate.Validator

	signerStore       *crdt.PersistentStore
	userDataStore     *crdt.PersistentStore
	castStore         *crdt.PersistentStore
	reactionStore     *crdt.PersistentStore
	verificationStore *crdt.PersistentStore

	cascade *cascade.Cascade
	trie    *synctrie.PersistentTrie

	transport rpc.Transport
	server    *rpc.Server
	selector  *diffsync.RandomPeerSelector
	syncer    *diffsync.Syncer
	scheduler *diffsync.Scheduler

	shards *shardPool

	cancel context.CancelFunc
}

// New builds a Hub from opts but does not start it; call Start to open
// storage, bring up the RPC server, and begin diff-sync cycles.
func New(logger *logrus.Logger, opts Options) (*Hub, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ShardCount <= 0 {
		opts.ShardCount = DefaultShardCount
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 30 * time.Second
	}

	badgerOpts := badger.DefaultOptions(opts.StorePath)
	if opts.StorePath == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, common.WrapHubErr(common.StorageCorruption, "open badger store", err)
	}

	h := &Hub{
		logger:   logger.WithField("component", "hub"),
		opts:     opts,
		db:       db,
		registry: fidregistry.New(),
		shards:   newShardPool(opts.ShardCount),
	}

	h.trie = synctrie.NewPersistentTrie(db)
	if err := h.trie.Load(); err != nil {
		return nil, common.WrapHubErr(common.StorageCorruption, "replay sync trie from disk", err)
	}

	h.signerStore = crdt.NewPersistentStore(crdt.NewSignerConfig(), h.trie, db)
	h.userDataStore = crdt.NewPersistentStore(crdt.NewUserDataConfig(), h.trie, db)
	h.castStore = crdt.NewPersistentStore(crdt.NewCastConfig(), h.trie, db)
	h.reactionStore = crdt.NewPersistentStore(crdt.NewReactionConfig(), h.trie, db)
	h.verificationStore = crdt.NewPersistentStore(crdt.NewVerificationConfig(), h.trie, db)
	for _, store := range h.allStores() {
		if err := store.Load(); err != nil {
			return nil, common.WrapHubErr(common.StorageCorruption, "replay CRDT store from disk", err)
		}
	}

	h.cascade = cascade.New(logger, h.signerStore,
		h.userDataStore, h.castStore, h.reactionStore, h.verificationStore)
	h.registry.AddTransferListener(h.cascade)

	activeSigners := crdt.NewActiveSigners(h.signerStore.Store)
	h.validator = validate.New(opts.Network, h.registry, activeSigners)

	h.transport = opts.Transport
	if h.transport == nil {
		_, inmem := rpc.NewInmemTransport("")
		h.transport = inmem
	}
	h.server = rpc.NewServer(logger, h.transport, h)

	h.selector = diffsync.NewRandomPeerSelector(opts.Peers, h.transport.AdvertiseAddr())
	h.syncer = diffsync.New(logger, h.trie.Trie, h.transport, h)
	h.scheduler = diffsync.NewScheduler(logger, h.syncer, h.selector, opts.SyncInterval)

	return h, nil
}

// Start brings the Hub's background components up: the RPC server's
// listen/dispatch loop and the diff-sync scheduler.
func (h *Hub) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go h.transport.Listen()
	go h.server.Serve()
	go h.scheduler.Run(ctx)

	h.logger.WithFields(logrus.Fields{
		"nickname": h.opts.Nickname,
		"addr":     h.transport.AdvertiseAddr(),
	}).Info("hub: started")
}

// Stop ends the scheduler and RPC server and closes the badger handle.
func (h *Hub) Stop() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.scheduler.Stop()
	h.server.Stop()
	h.shards.Stop()
	if err := h.transport.Close(); err != nil {
		h.logger.WithError(err).Warn("hub: error closing transport")
	}
	return h.db.Close()
}

// Ingest implements diffsync.Ingestor and is the sole entry point for
// applying a message to the engine, whether it arrived over gossip,
// diff-sync, or a directly-submitted RPC. It runs validation (§4.1)
// and the CRDT merge (§4.2) on m's fid shard, so concurrent messages
// for the same fid are always applied one at a time (§5), then
// cascades any Signer revocation the merge produced (§4.3).
func (h *Hub) Ingest(m *message.Message) error {
	return h.shards.Do(m.Data.Fid, func() error {
		if err := h.validator.Validate(m); err != nil {
			return err
		}

		store, ok := h.storeFor(m.Data.Type)
		if !ok {
			return common.NewHubErr(common.MalformedBytes, fmt.Sprintf("no CRDT store for type %v", m.Data.Type))
		}

		result, err := store.Merge(m, message.EncodeMessage)
		if err != nil {
			return err
		}
		if store == h.signerStore {
			h.cascade.ApplyEvicted(result.Evicted)
		}
		return nil
	})
}

// ApplyRegister and ApplyTransfer forward on-chain ID Registry events
// to the fid registry (§3); the engine treats chain ingestion itself
// as an external collaborator and only needs to apply the resulting
// state transitions.
func (h *Hub) ApplyRegister(fid uint64, custody [20]byte, block uint64) {
	h.registry.ApplyRegister(fid, custody, block)
}

func (h *Hub) ApplyTransfer(fid uint64, to [20]byte, block uint64) {
	h.shards.Do(fid, func() error {
		h.registry.ApplyTransfer(fid, to, block)
		return nil
	})
}

func (h *Hub) storeFor(t message.Type) (*crdt.PersistentStore, bool) {
	switch t {
	case message.TypeSignerAdd, message.TypeSignerRemove:
		return h.signerStore, true
	case message.TypeUserDataAdd:
		return h.userDataStore, true
	case message.TypeCastAdd, message.TypeCastRemove:
		return h.castStore, true
	case message.TypeReactionAdd, message.TypeReactionRemove:
		return h.reactionStore, true
	case message.TypeVerificationAddEthAddress, message.TypeVerificationRemove:
		return h.verificationStore, true
	default:
		return nil, false
	}
}

func (h *Hub) allStores() []*crdt.PersistentStore {
	return []*crdt.PersistentStore{h.signerStore, h.userDataStore, h.castStore, h.reactionStore, h.verificationStore}
}

// --- rpc.Source ---

func (h *Hub) Version() string  { return h.opts.Version }
func (h *Hub) Nickname() string { return h.opts.Nickname }

// IsSynced reports whether the last diff-sync cycle against a peer
// found the local trie already matching the peer's root hash. A Hub
// with no configured peers is trivially synced.
func (h *Hub) IsSynced() bool {
	if len(h.selector.Peers()) == 0 {
		return true
	}
	return h.scheduler.IsSynced()
}

func (h *Hub) RootHash() [20]byte { return h.trie.RootHash() }

func (h *Hub) SyncIDsByPrefix(prefix []byte) []message.SyncID {
	return h.trie.LeavesByPrefix(prefix)
}

// MessagesBySyncIDs resolves Sync IDs to full messages by asking every
// CRDT store in turn, since a Sync ID's storage-key prefix does not by
// itself say which CRDT produced it.
func (h *Hub) MessagesBySyncIDs(ids []message.SyncID) []*message.Message {
	out := make([]*message.Message, 0, len(ids))
	for _, id := range ids {
		for _, store := range h.allStores() {
			if m, ok := store.MessageBySyncID(id); ok {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (h *Hub) Metadata(prefix []byte) synctrie.Metadata { return h.trie.Metadata(prefix) }
func (h *Hub) Snapshot(prefix []byte) synctrie.Snapshot  { return h.trie.Snapshot(prefix) }
