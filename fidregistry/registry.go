// Package fidregistry implements the fid-ownership registry (C3,
// §3): the mapping from fid to its current custody address, mutated
// only by on-chain Register/Transfer events applied in block order.
package fidregistry

import "sync"

// Entry is the fid-ownership record the registry keeps per fid.
type Entry struct {
	Fid           uint64
	CustodyAddr   [20]byte
	LastBlock     uint64 // block number of the most recent Register/Transfer
}

// TransferListener is notified synchronously, inside the registry's
// write lock, whenever a fid's custody address changes. The
// revocation cascade (C6) registers itself here so a fid transfer and
// its cascade commit as one atomic step (§9 "Cascade atomicity").
type TransferListener interface {
	OnFidTransfer(fid uint64, from, to [20]byte, block uint64)
}

// Registry tracks custody address per fid (§3). It is read-mostly;
// writes are serialized with respect to the cascade (§5).
type Registry struct {
	mu        sync.RWMutex
	byFid     map[uint64]*Entry
	listeners []TransferListener
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byFid: make(map[uint64]*Entry)}
}

// AddTransferListener subscribes l to future custody changes.
func (r *Registry) AddTransferListener(l TransferListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// CustodyAddress returns the current custody address of fid, and
// whether fid is known to the registry at all (§4.1 step 5).
func (r *Registry) CustodyAddress(fid uint64) ([20]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byFid[fid]
	if !ok {
		return [20]byte{}, false
	}
	return e.CustodyAddr, true
}

// Entry returns a copy of the fid's full registry record.
func (r *Registry) Entry(fid uint64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byFid[fid]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ApplyRegister handles an on-chain Register event: fid is claimed
// for the first time by custody at block. Out-of-order application
// (block <= LastBlock) is ignored, since the caller (§5) drains chain
// events in block-number order and this makes the method idempotent
// under retry.
func (r *Registry) ApplyRegister(fid uint64, custody [20]byte, block uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byFid[fid]; ok && block <= e.LastBlock {
		return
	}

	r.byFid[fid] = &Entry{Fid: fid, CustodyAddr: custody, LastBlock: block}
}

// ApplyTransfer handles an on-chain Transfer event: custody of fid
// moves from its current holder to to at block. Listeners (the
// cascade) fire synchronously before the lock releases, so a reader
// can never observe the new custody address without the cascade
// having already run (§9 "Cascade atomicity").
func (r *Registry) ApplyTransfer(fid uint64, to [20]byte, block uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byFid[fid]
	if ok && block <= e.LastBlock {
		return
	}

	var from [20]byte
	if ok {
		from = e.CustodyAddr
	}

	r.byFid[fid] = &Entry{Fid: fid, CustodyAddr: to, LastBlock: block}

	// Listeners (the revocation cascade) run inside the write lock so
	// no reader can observe the new custody address before the
	// cascade that it triggers has completed (§9 "Cascade atomicity").
	for _, l := range r.listeners {
		l.OnFidTransfer(fid, from, to, block)
	}
}
