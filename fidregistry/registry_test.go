package fidregistry

import "testing"

func TestApplyRegisterSetsCustodyAddress(t *testing.T) {
	r := New()
	var custody [20]byte
	custody[0] = 0x11

	r.ApplyRegister(1, custody, 10)

	got, ok := r.CustodyAddress(1)
	if !ok || got != custody {
		t.Fatalf("expected fid 1 to resolve to %x, got %x ok=%v", custody, got, ok)
	}
}

func TestApplyRegisterIgnoresOutOfOrderBlocks(t *testing.T) {
	r := New()
	var first, second [20]byte
	first[0], second[0] = 0x11, 0x22

	r.ApplyRegister(1, first, 10)
	r.ApplyRegister(1, second, 5) // earlier block, must be ignored

	got, _ := r.CustodyAddress(1)
	if got != first {
		t.Fatalf("expected the later-block register to stick, got %x", got)
	}
}

func TestApplyTransferMovesCustodyAndFiresListenerInsideTheLock(t *testing.T) {
	r := New()
	var original, next [20]byte
	original[0], next[0] = 0x11, 0x22
	r.ApplyRegister(1, original, 10)

	var observedFrom, observedTo [20]byte
	var observedBlock uint64
	var custodyDuringCallback [20]byte
	l := transferListenerFunc(func(fid uint64, from, to [20]byte, block uint64) {
		observedFrom, observedTo, observedBlock = from, to, block
		// The listener runs while ApplyTransfer holds r.mu, so it reads
		// the entry directly; CustodyAddress would block on that lock.
		custodyDuringCallback = r.byFid[fid].CustodyAddr
	})
	r.AddTransferListener(l)

	r.ApplyTransfer(1, next, 20)

	if observedFrom != original || observedTo != next || observedBlock != 20 {
		t.Fatalf("unexpected listener callback args: from=%x to=%x block=%d", observedFrom, observedTo, observedBlock)
	}
	if custodyDuringCallback != next {
		t.Fatalf("expected the listener to observe the new custody address already applied, got %x", custodyDuringCallback)
	}
}

func TestApplyTransferIgnoresOutOfOrderBlocks(t *testing.T) {
	r := New()
	var original, next [20]byte
	original[0], next[0] = 0x11, 0x22
	r.ApplyRegister(1, original, 10)
	r.ApplyTransfer(1, next, 5) // earlier block than the register, must be ignored

	got, _ := r.CustodyAddress(1)
	if got != original {
		t.Fatalf("expected an out-of-order transfer to be ignored, got %x", got)
	}
}

func TestCustodyAddressReportsUnknownFid(t *testing.T) {
	r := New()
	if _, ok := r.CustodyAddress(999); ok {
		t.Fatalf("expected an unregistered fid to report ok=false")
	}
}

type transferListenerFunc func(fid uint64, from, to [20]byte, block uint64)

func (f transferListenerFunc) OnFidTransfer(fid uint64, from, to [20]byte, block uint64) {
	f(fid, from, to, block)
}
