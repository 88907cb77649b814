package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenCreatesDatabaseAndAppliesMigrations(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPure} {
		t.Run(driver, func(t *testing.T) {
			dataDir := t.TempDir()
			store, dbPath, err := Open(dataDir, driver)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					t.Fatalf("Close failed: %v", err)
				}
			}()

			if dbPath != filepath.Join(dataDir, DefaultDBFileName) {
				t.Fatalf("unexpected db path: got %q", dbPath)
			}
			if _, err := os.Stat(dbPath); err != nil {
				t.Fatalf("database file not created: %v", err)
			}
			if store.Driver() != driver {
				t.Fatalf("expected driver %q, got %q", driver, store.Driver())
			}

			var version int
			if err := store.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
				t.Fatalf("read user_version: %v", err)
			}
			if version != len(migrations) {
				t.Fatalf("expected schema version %d, got %d", len(migrations), version)
			}

			var journalMode string
			if err := store.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
				t.Fatalf("read journal_mode: %v", err)
			}
			if journalMode != "wal" {
				t.Fatalf("expected journal_mode wal, got %q", journalMode)
			}

			expectedTables := []string{
				"messages",
				"data_vars",
				"count_snapshots",
				"asset_balances",
				"asset_transfers",
				"seen_calls",
				"security_events",
				"known_nodes",
			}
			for _, table := range expectedTables {
				var count int
				if err := store.db.QueryRow(
					"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name = ?",
					table,
				).Scan(&count); err != nil {
					t.Fatalf("check table %q: %v", table, err)
				}
				if count != 1 {
					t.Fatalf("expected table %q to exist", table)
				}
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, _, err := Open(t.TempDir(), "postgres"); err == nil {
		t.Fatalf("expected unknown driver to be rejected")
	}
}

func TestReopenKeepsData(t *testing.T) {
	dataDir := t.TempDir()
	store, _, err := Open(dataDir, DefaultDriver)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	mustUpdate(t, store, func(tx *Tx) error {
		return tx.SetVar("message-count", 3)
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, _, err := Open(dataDir, DefaultDriver)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	mustView(t, reopened, func(tx *Tx) error {
		got, err := tx.Var("message-count")
		if err != nil {
			return err
		}
		if got != 3 {
			t.Fatalf("expected persisted var 3, got %d", got)
		}
		return nil
	})
}

func TestUpdateRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("boom")

	err := store.Update(context.Background(), func(tx *Tx) error {
		if err := tx.SetVar("balance", 10); err != nil {
			return err
		}
		if err := tx.PutSnapshot(5, 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to be returned, got %v", err)
	}

	mustView(t, store, func(tx *Tx) error {
		balance, err := tx.Var("balance")
		if err != nil {
			return err
		}
		if balance != 0 {
			t.Fatalf("expected rolled back balance 0, got %d", balance)
		}
		if _, err := tx.SnapshotAtOrBefore(10); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected no snapshot after rollback, got %v", err)
		}
		return nil
	})
}

func TestClosedStoreRejectsTransactions(t *testing.T) {
	store, _, err := Open(t.TempDir(), DefaultDriver)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err = store.Update(context.Background(), func(tx *Tx) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseWaitsForOpenTransactions(t *testing.T) {
	store, _, err := Open(t.TempDir(), DefaultDriver)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ctx := context.Background()
	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.Update(ctx, func(tx *Tx) error {
			close(inside)
			<-release
			return tx.SetVar("message-count", 1)
		})
	}()
	<-inside

	closed := make(chan error, 1)
	go func() { closed <- store.Close() }()

	select {
	case <-closed:
		t.Fatalf("Close returned while a transaction was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight Update failed: %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.View(ctx, func(tx *Tx) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
