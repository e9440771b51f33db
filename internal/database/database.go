package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as TEXT in these layouts.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

// Open connects to the SQLite database at path and applies the connection pragmas.
func Open(path string, maxOpen int) (*sqlx.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sqlx.Open("sqlite", path+sep+"_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if maxOpen <= 0 {
		maxOpen = 10
	}
	// SQLite handles one writer plus readers with WAL
	db.SetMaxOpenConns(maxOpen)
	// an in-memory database lives only as long as its connection
	db.SetMaxIdleConns(max(1, maxOpen/2))
	db.SetConnMaxLifetime(0)

	if !strings.HasPrefix(path, ":memory:") {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// OpenMemory returns a single-connection in-memory database with the schema applied.
func OpenMemory() (*sqlx.DB, error) {
	db, err := Open(":memory:", 1)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates every table and index that does not exist yet.
func Migrate(db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Now returns the current time in TimeLayout.
func Now() string {
	return time.Now().Format(TimeLayout)
}

// Today returns the current date in DateLayout.
func Today() string {
	return time.Now().Format(DateLayout)
}
