package storage

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir, DefaultDriver)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustUpdate(t *testing.T, store *Store, fn func(tx *Tx) error) {
	t.Helper()

	if err := store.Update(context.Background(), fn); err != nil {
		t.Fatalf("update failed: %v", err)
	}
}

func mustView(t *testing.T, store *Store, fn func(tx *Tx) error) {
	t.Helper()

	if err := store.View(context.Background(), fn); err != nil {
		t.Fatalf("view failed: %v", err)
	}
}
