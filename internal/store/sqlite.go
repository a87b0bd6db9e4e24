package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// schemaVersion is bumped whenever the table layout changes.
const schemaVersion = 1

// DB is the SQLite database holding embeddings, cache metadata, favorites
// and query statistics.
// WAL mode lets a serving process keep reading while `chatlens index`
// appends from another process.
type DB struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// validateIntegrity checks an existing database before opening it.
// Returns nil if the file is absent or healthy.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens (creating if needed) the database at path.
// An empty path opens a private in-memory database, for tests.
//
// Unlike a derived search index, the database also holds favorites, so a
// corrupt file is reported rather than silently cleared.
func Open(path string) (*DB, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageWrite,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if err := validateIntegrity(path); err != nil {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageCorrupt,
				fmt.Sprintf("embedding cache at %s is unreadable", path), err).
				WithSuggestion(fmt.Sprintf("Move %s aside and run 'chatlens index' to re-embed", path))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to open database", err)
	}

	// Single connection: one writer, and :memory: stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to set pragma", err)
		}
	}

	d := &DB{db: db, path: path}
	if err := d.initSchema(); err != nil {
		_ = db.Close()
		return nil, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to initialize schema", err)
	}

	return d, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- seq preserves insertion order, which breaks similarity ties
	CREATE TABLE IF NOT EXISTS embeddings (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		kind            TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		dims            INTEGER NOT NULL,
		vector          BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_conversation ON embeddings(conversation_id);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS favorites (
		conversation_id TEXT PRIMARY KEY,
		created_at      INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS query_counts (
		date  TEXT NOT NULL,
		key   TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (date, key)
	);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		query      TEXT NOT NULL,
		type       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return err
	}
	_, err := d.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

// Path returns the database file path ("" for in-memory).
func (d *DB) Path() string {
	return d.path
}

// Close closes the database. Safe to call more than once.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	// Fold the WAL back into the main file so the cache is a single file at rest.
	if d.path != "" {
		_, _ = d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return d.db.Close()
}

func (d *DB) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// errClosed is returned by stores whose DB has been closed.
func errClosed() error {
	return lenserrors.New(lenserrors.ErrCodeStorageRead, "database is closed", nil)
}
