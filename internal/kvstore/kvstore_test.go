package kvstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/optimumenergyco/sorbet/internal/logging"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), ".sorbet", "cache.db"), logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		store.Close() //nolint:errcheck // test cleanup
	})
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	payload := []byte("serialized tree bytes")
	if err := store.Put("a.rb", 42, payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := store.Get("a.rb", 42)
	if !ok {
		t.Fatal("expected a hit for the stored key")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip corrupted payload: %q", got)
	}
}

func TestGetMissesOnDifferentHash(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Put("a.rb", 42, []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := store.Get("a.rb", 43); ok {
		t.Error("stale content hash must miss")
	}
	if _, ok := store.Get("b.rb", 42); ok {
		t.Error("unknown path must miss")
	}
}

func TestPutEvictsStaleRows(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Put("a.rb", 1, []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put("a.rb", 2, []byte("v2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := store.Get("a.rb", 1); ok {
		t.Error("old hash row must be evicted by the newer write")
	}
	if got, ok := store.Get("a.rb", 2); !ok || string(got) != "v2" {
		t.Error("newest row must survive")
	}
}

func TestClearMintsNewGeneration(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Put("a.rb", 1, []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	before := store.Generation()

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := store.Get("a.rb", 1); ok {
		t.Error("cleared store must miss")
	}
	if store.Generation() == before {
		t.Error("Clear must mint a fresh generation id")
	}
}

func TestGenerationSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	logger := logging.NewDiscardLogger()

	first, err := Open(path, logger)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	gen := first.Generation()
	first.Close() //nolint:errcheck // test cleanup

	second, err := Open(path, logger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close() //nolint:errcheck // test cleanup

	if second.Generation() != gen {
		t.Errorf("generation changed across reopen: %q vs %q", second.Generation(), gen)
	}
}
