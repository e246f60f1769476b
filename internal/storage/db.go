package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"agentcore/internal/config"
	"agentcore/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// DB wraps a sqlite connection pool for conversation/session/snapshot
// persistence.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if necessary) the sqlite database at path and runs
// any pending migrations.
func Open(path string) (*DB, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// Build DSN with _pragma parameters so that every new connection in
	// the pool is configured identically. Setting PRAGMAs via db.Exec()
	// only applies to whichever connection happens to be pulled from the
	// pool at that moment — any other pooled connection would lack
	// WAL/busy_timeout and could surface SQLITE_BUSY under concurrent load
	// (e.g. two sessions mutating files at once).
	dsn := buildDSN(expandedPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows only one concurrent writer; keeping the pool small
	// avoids SQLITE_BUSY contention while WAL mode still allows concurrent
	// readers.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: db, path: expandedPath}, nil
}

// buildDSN constructs a modernc.org/sqlite DSN with _pragma parameters so
// every pooled connection inherits the same configuration.
func buildDSN(path string) string {
	v := url.Values{}
	v.Set("_pragma", "journal_mode=WAL")
	v.Add("_pragma", "foreign_keys=ON")
	v.Add("_pragma", "busy_timeout=30000") // generous for concurrent tool execution
	v.Add("_pragma", "synchronous=NORMAL") // safe with WAL; reduces fsync pressure
	v.Add("_txlock", "immediate")          // acquire the write lock at BEGIN, fail fast instead of deadlocking
	return path + "?" + v.Encode()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Tx wraps a sqlite transaction.
type Tx struct {
	*sql.Tx
}

// Begin starts a transaction.
func (db *DB) Begin() (*Tx, error) {
	tx, err := db.DB.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx}, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back if fn returns an error.
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
