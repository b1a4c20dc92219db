package fidregistry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJSONStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)

	r := New()
	var a, b [20]byte
	a[0], b[0] = 0x11, 0x22
	r.ApplyRegister(1, a, 10)
	r.ApplyRegister(2, b, 20)

	if err := store.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got1, ok1 := loaded.CustodyAddress(1)
	got2, ok2 := loaded.CustodyAddress(2)
	if !ok1 || got1 != a {
		t.Fatalf("expected fid 1 to round-trip to %x, got %x ok=%v", a, got1, ok1)
	}
	if !ok2 || got2 != b {
		t.Fatalf("expected fid 2 to round-trip to %x, got %x ok=%v", b, got2, ok2)
	}
}

func TestJSONStoreLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "nonexistent"))

	r, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := r.CustodyAddress(1); ok {
		t.Fatalf("expected an empty registry when the snapshot file is missing")
	}
}

func TestJSONStoreSaveOverwritesPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)

	r := New()
	var a [20]byte
	a[0] = 0x11
	r.ApplyRegister(1, a, 10)
	if err := store.Save(r); err != nil {
		t.Fatal(err)
	}

	r2 := New()
	var b [20]byte
	b[0] = 0x22
	r2.ApplyRegister(1, b, 20)
	if err := store.Save(r2); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	got, _ := loaded.CustodyAddress(1)
	if got != b {
		t.Fatalf("expected the second Save to overwrite the first, got %x", got)
	}

	if _, err := os.Stat(filepath.Join(dir, "fids.json")); err != nil {
		t.Fatalf("expected fids.json to exist: %v", err)
	}
}
