package crdt

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/message"
)

// PersistentStore wraps an in-memory Store with write-through
// persistence to a namespaced badger key-value store (§6 "Persisted
// state layout": crdt/<name>/add/<conflict_key>,
// crdt/<name>/remove/<conflict_key>). Every mutation commits as one
// badger transaction, giving the atomic multi-put/multi-delete
// guarantee §6 and §9 require.
type PersistentStore struct {
	*Store
	db     *badger.DB
	prefix string // "crdt/<name>/"
}

// NewPersistentStore wraps a fresh in-memory Store of cfg, writing
// through to the already-open badger database db.
func NewPersistentStore(cfg Config, idx SyncIndexer, db *badger.DB) *PersistentStore {
	return &PersistentStore{
		Store:  New(cfg, idx),
		db:     db,
		prefix: fmt.Sprintf("crdt/%s/", cfg.Name),
	}
}

type storedMessage struct {
	InRemove bool   `json:"in_remove"`
	Message  []byte `json:"message"`
}

func (p *PersistentStore) addKey(conflictKey string) []byte {
	return []byte(p.prefix + "add/" + conflictKey)
}

func (p *PersistentStore) removeKey(conflictKey string) []byte {
	return []byte(p.prefix + "remove/" + conflictKey)
}

func (p *PersistentStore) evictedKey(marker string) []byte {
	return []byte(p.prefix + "evicted/" + marker)
}

// Merge runs the in-memory §4.2 algorithm, then commits the resulting
// diff (deletes for everything evicted, a put for the new winner) in
// a single badger transaction.
func (p *PersistentStore) Merge(m *message.Message, encode func(*message.Message) ([]byte, error)) (MergeResult, error) {
	key, err := p.cfg.ConflictKey(m)
	if err != nil {
		return MergeResult{}, err
	}

	result, err := p.Store.Merge(m)
	if err != nil {
		return result, err
	}
	if result.Outcome == NoOp {
		return result, nil
	}

	return result, p.db.Update(func(txn *badger.Txn) error {
		for _, evicted := range result.Evicted {
			evictedKey, _ := p.cfg.ConflictKey(evicted)
			if err := txn.Delete(p.addKey(evictedKey)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Delete(p.removeKey(evictedKey)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			// Persist the eviction itself (§4.2 "Eviction permanence"),
			// so a restart cannot forget that (evictedKey, evicted.Hash)
			// already lost and let it be re-admitted.
			if err := txn.Set(p.evictedKey(evictedMarker(evictedKey, evicted.Hash)), nil); err != nil {
				return err
			}
		}

		payload, err := encode(m)
		if err != nil {
			return common.WrapHubErr(common.MalformedBytes, "encode message for persistence", err)
		}
		_, inRemove, _ := p.Store.Get(m)
		record, err := json.Marshal(storedMessage{InRemove: inRemove, Message: payload})
		if err != nil {
			return err
		}

		target := p.addKey(key)
		if inRemove {
			target = p.removeKey(key)
			_ = txn.Delete(p.addKey(key))
		} else {
			_ = txn.Delete(p.removeKey(key))
		}
		return txn.Set(target, record)
	})
}

// Load rebuilds the wrapped in-memory Store from every persisted
// add/remove record and evicted marker, for startup recovery. It must
// run after the sync trie's own Load, since it re-derives each
// message's Sync ID and re-inserts it into the trie (a harmless no-op
// for leaves the trie already replayed).
func (p *PersistentStore) Load() error {
	return p.db.View(func(txn *badger.Txn) error {
		if err := p.loadEntries(txn, p.prefix+"add/"); err != nil {
			return err
		}
		if err := p.loadEntries(txn, p.prefix+"remove/"); err != nil {
			return err
		}
		return p.loadEvicted(txn)
	})
}

func (p *PersistentStore) loadEntries(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := string(item.KeyCopy(nil)[len(prefix):])

		var record storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return common.WrapHubErr(common.StorageCorruption, "decode persisted message record", err)
		}

		m, err := message.DecodeMessage(record.Message)
		if err != nil {
			return common.WrapHubErr(common.StorageCorruption, "decode persisted message payload", err)
		}

		p.Store.insert(key, m)
	}
	return nil
}

func (p *PersistentStore) loadEvicted(txn *badger.Txn) error {
	prefix := p.prefix + "evicted/"
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		marker := string(key[len(prefix):])
		p.Store.evicted.Add(marker)
	}
	return nil
}

// DiscardAllByFidAndSigner overrides Store's in-memory-only method
// with a persisted equivalent, so the revocation cascade's discards
// (§4.3) survive a restart. Each discarded message's on-disk record is
// deleted in the same badger transaction as the in-memory removal,
// giving per-store atomicity for the discard batch; cascades spanning
// several CRDTs commit as one transaction per store, sequentially,
// rather than as a single cross-store transaction (see DESIGN.md).
func (p *PersistentStore) DiscardAllByFidAndSigner(fid uint64, signer []byte) []*message.Message {
	discarded := p.Store.DiscardAllByFidAndSigner(fid, signer)
	if len(discarded) == 0 {
		return discarded
	}

	_ = p.db.Update(func(txn *badger.Txn) error {
		for _, m := range discarded {
			key, err := p.cfg.ConflictKey(m)
			if err != nil {
				continue
			}
			if err := txn.Delete(p.addKey(key)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Delete(p.removeKey(key)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	return discarded
}
