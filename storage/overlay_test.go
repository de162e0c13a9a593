package storage

import "testing"

func TestOverlayBuffersUntilCommit(t *testing.T) {
	base := NewMemDB()
	defer base.Close()
	if err := base.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ov := NewOverlay(base)
	if err := ov.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := ov.Delete([]byte("a")); err != nil {
		t.Fatalf("overlay delete: %v", err)
	}

	// Overlay sees its own mutations.
	if got, _ := ov.Get([]byte("b")); string(got) != "2" {
		t.Fatalf("overlay read: got %q", got)
	}
	if got, _ := ov.Get([]byte("a")); got != nil {
		t.Fatalf("overlay should hide deleted key, got %q", got)
	}

	// Base is untouched until commit.
	if got, _ := base.Get([]byte("a")); string(got) != "1" {
		t.Fatalf("base mutated before commit")
	}
	if ok, _ := base.Has([]byte("b")); ok {
		t.Fatalf("base observed buffered write")
	}

	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, _ := base.Has([]byte("a")); ok {
		t.Fatalf("delete not applied on commit")
	}
	if got, _ := base.Get([]byte("b")); string(got) != "2" {
		t.Fatalf("write not applied on commit")
	}
	if ov.Dirty() {
		t.Fatalf("overlay should be clean after commit")
	}
}

func TestOverlayDiscard(t *testing.T) {
	base := NewMemDB()
	defer base.Close()

	ov := NewOverlay(base)
	if err := ov.Put([]byte("x"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	ov.Discard()
	if ov.Dirty() {
		t.Fatalf("overlay should be clean after discard")
	}
	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if base.Len() != 0 {
		t.Fatalf("discarded writes leaked to base")
	}
}

func TestOverlayCommitBatchesOnLevelDB(t *testing.T) {
	base, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer base.Close()
	if err := base.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ov := NewOverlay(base)
	if _, ok := ov.base.(batchWriter); !ok {
		t.Fatalf("leveldb base should flush through a batch")
	}
	if err := ov.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ov.Delete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, _ := base.Has([]byte("a")); ok {
		t.Fatalf("delete not applied on commit")
	}
	if got, _ := base.Get([]byte("b")); string(got) != "2" {
		t.Fatalf("write not applied on commit, got %q", got)
	}
	if ov.Dirty() {
		t.Fatalf("overlay should be clean after commit")
	}
}

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	value, err := db.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil for missing key, got %q", value)
	}
}
