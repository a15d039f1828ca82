package org

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations run in order after schema.sql; PRAGMA user_version records
// how many have been applied.
var migrations = []string{
	// ChangedSince keyset paging.
	`CREATE INDEX IF NOT EXISTS idx_accounts_modified ON accounts(last_modified_date, id)`,
}

var currentSchemaVersion = len(migrations)

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// Org is one sandbox CRM org.
// Uses SQLite with a single connection; safe for concurrent use.
type Org struct {
	db     *sql.DB
	system System
	clock  Clock
	ids    IDGenerator
	logger *slog.Logger
}

// Open opens the sandbox database of a system at path, creating and
// migrating it as needed. ":memory:" gives a throwaway sandbox. Opening
// the same path again is safe.
func Open(path string, system System, opts ...Option) (*Org, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s sandbox: %w", system, err)
	}
	// One connection: SQLite has a single writer, and ":memory:" is
	// private to the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s sandbox: %w", system, err)
	}
	return New(db, system, opts...), nil
}

// New wraps an already prepared database handle.
// The schema must already be in place.
func New(db *sql.DB, system System, opts ...Option) *Org {
	o := &Org{
		db:     db,
		system: system,
		clock:  systemClock{},
		ids:    UUIDGenerator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("system", string(system))
	return o
}

// System returns which side of the synchronisation this org is.
func (o *Org) System() System {
	return o.system
}

// Close closes the database connection.
func (o *Org) Close() error {
	if o.db == nil {
		return nil
	}
	return o.db.Close()
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var applied int
	if err := db.QueryRow("PRAGMA user_version").Scan(&applied); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := applied; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}
