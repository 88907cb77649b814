package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DefaultDBFileName is the SQLite filename under the node data dir.
	DefaultDBFileName = "registry.db"
	// DefaultWALCheckpointInterval controls periodic WAL truncation.
	DefaultWALCheckpointInterval = 24 * time.Hour

	// DriverCGO is the mattn/go-sqlite3 driver name.
	DriverCGO = "sqlite3"
	// DriverPure is the modernc.org/sqlite driver name.
	DriverPure = "sqlite"
	// DefaultDriver is used when no driver is configured.
	DefaultDriver = DriverCGO
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS messages (
  id         INTEGER PRIMARY KEY,
  author     TEXT NOT NULL,
  recipient  TEXT,
  content    TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  is_read    INTEGER NOT NULL DEFAULT 0
);
`,
	`
CREATE TABLE IF NOT EXISTS data_vars (
  name  TEXT PRIMARY KEY,
  value INTEGER NOT NULL CHECK(value >= 0)
);
`,
	`
CREATE TABLE IF NOT EXISTS count_snapshots (
  height        INTEGER PRIMARY KEY,
  message_count INTEGER NOT NULL CHECK(message_count >= 0)
);
`,
	`
CREATE TABLE IF NOT EXISTS asset_balances (
  account TEXT PRIMARY KEY,
  amount  INTEGER NOT NULL CHECK(amount >= 0)
);
`,
	`
CREATE TABLE IF NOT EXISTS asset_transfers (
  event_id  TEXT PRIMARY KEY,
  call_id   TEXT NOT NULL DEFAULT '',
  asset     TEXT NOT NULL,
  amount    INTEGER NOT NULL CHECK(amount > 0),
  sender    TEXT NOT NULL,
  recipient TEXT NOT NULL,
  height    INTEGER NOT NULL,
  timestamp INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_asset_transfers_height
ON asset_transfers (height, timestamp, event_id);
`,
	`
CREATE INDEX IF NOT EXISTS idx_asset_transfers_call
ON asset_transfers (call_id);
`,
	`
CREATE TABLE IF NOT EXISTS seen_calls (
  call_id     TEXT PRIMARY KEY,
  height      INTEGER NOT NULL,
  received_at INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_seen_calls_received_at
ON seen_calls (received_at);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_author
ON messages (author, id);
`,
	`
CREATE TABLE IF NOT EXISTS security_events (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  event_type TEXT NOT NULL,
  sender     TEXT,
  call_id    TEXT,
  details    TEXT NOT NULL DEFAULT '{}',
  severity   TEXT NOT NULL CHECK(severity IN ('INFO', 'WARNING', 'CRITICAL')),
  timestamp  INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_security_events_timestamp
ON security_events (timestamp);
`,
	`
CREATE TABLE IF NOT EXISTS known_nodes (
  node_id        TEXT PRIMARY KEY,
  node_name      TEXT NOT NULL,
  registry       TEXT NOT NULL,
  owner          TEXT NOT NULL DEFAULT '',
  variant        TEXT NOT NULL DEFAULT '',
  version        TEXT NOT NULL DEFAULT '',
  address        TEXT NOT NULL,
  port           INTEGER NOT NULL CHECK(port > 0),
  first_seen     INTEGER NOT NULL,
  last_seen      INTEGER NOT NULL
);
`,
}

// Store is a thin wrapper around a SQLite connection.
//
// Writers are serialised: each Update call runs alone, in one transaction.
// Close waits for open transactions to finish.
type Store struct {
	db     *sql.DB
	driver string

	writeMu sync.Mutex
	// dbMu guards db against Close while a transaction is open.
	dbMu sync.RWMutex

	walCheckpointInterval time.Duration
	walCheckpointStop     chan struct{}
	walCheckpointWG       sync.WaitGroup
	closeOnce             sync.Once
}

// Open opens (or creates) registry.db under the given data directory and runs migrations.
func Open(dataDir, driver string) (*Store, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create storage directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFileName)
	store, err := OpenPath(driver, dbPath)
	if err != nil {
		return nil, "", err
	}

	return store, dbPath, nil
}

// OpenPath opens SQLite at an explicit path and runs schema migrations.
func OpenPath(driver, dbPath string) (*Store, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	dsn, err := buildDSN(driver, dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &Store{
		db:                    db,
		driver:                driver,
		walCheckpointInterval: DefaultWALCheckpointInterval,
		walCheckpointStop:     make(chan struct{}),
	}
	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.checkpointWAL(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.startWALCheckpointLoop()

	return store, nil
}

func buildDSN(driver, dbPath string) (string, error) {
	path := filepath.ToSlash(dbPath)
	switch driver {
	case DriverCGO:
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path), nil
	case DriverPure:
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", path), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// Driver returns the database/sql driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the SQLite connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		if s.walCheckpointStop != nil {
			close(s.walCheckpointStop)
			s.walCheckpointWG.Wait()
		}
		s.dbMu.Lock()
		defer s.dbMu.Unlock()
		if s.db == nil {
			return
		}
		closeErr = s.db.Close()
		s.db = nil
	})
	return closeErr
}

// Update runs fn inside one write transaction. Any error from fn rolls back
// every write fn made; a nil return commits them together.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if s == nil {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(&Tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit write transaction: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	if s == nil {
		return ErrClosed
	}

	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	return fn(&Tx{ctx: ctx, tx: sqlTx})
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	return nil
}

func (s *Store) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *Store) checkpointWAL() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint truncate: %w", err)
	}
	return nil
}

func (s *Store) startWALCheckpointLoop() {
	interval := s.walCheckpointInterval
	if interval <= 0 || s.walCheckpointStop == nil {
		return
	}

	s.walCheckpointWG.Add(1)
	go func() {
		defer s.walCheckpointWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.checkpointWAL()
			case <-s.walCheckpointStop:
				return
			}
		}
	}()
}
