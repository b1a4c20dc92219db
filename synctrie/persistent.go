package synctrie

import (
	badger "github.com/dgraph-io/badger/v4"

	"github.com/farcasterxyz/hubcore/message"
)

// PersistentTrie write-throughs every Insert/Remove to badger under
// the trie/leaf/ namespace (§6 "Persisted state layout"), storing the
// leaf set only: the trie's internal nodes are fully determined by
// their leaves, so recovery replays the leaf set into a fresh Trie
// rather than serializing every internal node (grounded on the same
// write-through pattern as crdt.PersistentStore).
type PersistentTrie struct {
	*Trie
	db *badger.DB
}

// NewPersistentTrie opens a fresh in-memory Trie backed by db. Call
// Load to repopulate it from a prior run.
func NewPersistentTrie(db *badger.DB) *PersistentTrie {
	return &PersistentTrie{Trie: New(), db: db}
}

func leafKey(id message.SyncID) []byte {
	return append([]byte("trie/leaf/"), id[:]...)
}

// Insert persists id, then applies it in memory.
func (p *PersistentTrie) Insert(id message.SyncID) {
	_ = p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(leafKey(id), nil)
	})
	p.Trie.Insert(id)
}

// Remove deletes id from persistence, then applies it in memory.
func (p *PersistentTrie) Remove(id message.SyncID) {
	_ = p.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(leafKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	p.Trie.Remove(id)
}

// Load rebuilds the in-memory trie from every persisted leaf, for
// startup recovery.
func (p *PersistentTrie) Load() error {
	return p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("trie/leaf/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			raw := key[len("trie/leaf/"):]
			if len(raw) != message.SyncIDSize {
				continue
			}
			var id message.SyncID
			copy(id[:], raw)
			p.Trie.Insert(id)
		}
		return nil
	})
}
