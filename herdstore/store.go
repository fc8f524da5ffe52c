// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

// Package herdstore provides the durable on-device store for the herd
// record-keeping core: animals, their journaled events, planned tasks, and
// the pending-operations queue that backs offline synchronization.
//
// The store owns schema evolution (versioned, forward-only migrations), the
// atomic multi-collection transaction used by the repository and the sync
// service, and a change notifier that powers live queries.
package herdstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/bartoszzontek/highlander-farm/herdstore/migrations"
)

// ErrNotFound is returned by point lookups when no record matches.
var ErrNotFound = errors.New("herdstore: not found")

// Store is the durable local container for all collections. It is safe for
// concurrent use; writes are serialized through a single mutex to avoid
// SQLite lock contention.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	writeMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]*Subscription
	nextSub int
}

// Open opens (or creates) the store at path and upgrades its schema to the
// current version. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps in-memory databases coherent and serializes
	// writers at the pool level.
	db.SetMaxOpenConns(1)
	store, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an already-open SQLite handle and upgrades its schema to the
// current version. The caller keeps ownership of db's lifetime only until
// Close is called on the store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: slog.Default(),
		subs:   make(map[int]*Subscription),
	}, nil
}

// migrate applies all pending schema versions. Opening an on-device store at
// any persisted version upgrades it forward.
func migrate(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetLogger replaces the store's logger (slog.Default() otherwise).
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// DB exposes the underlying handle for read-only queries. Mutations must go
// through Update so that subscribers are notified.
func (s *Store) DB() *sql.DB { return s.db }

// Update runs fn inside a single atomic transaction and, once the commit
// succeeds, notifies subscribers watching any of the touched collections.
// Readers never observe a half-applied state: either the whole transaction
// is visible or none of it.
func (s *Store) Update(ctx context.Context, fn func(tx *sql.Tx) error, touched ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	s.notify(touched)
	return nil
}

// EnsureDeviceID returns the persisted per-device identity, generating and
// storing one on first use.
func (s *Store) EnsureDeviceID(ctx context.Context) (string, error) {
	var deviceID string
	err := s.db.QueryRowContext(ctx, `SELECT device_id FROM client_info LIMIT 1`).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		deviceID = uuid.New().String()
		if _, err := s.db.ExecContext(ctx, `INSERT INTO client_info (device_id) VALUES (?)`, deviceID); err != nil {
			return "", fmt.Errorf("failed to insert client info: %w", err)
		}
		s.logger.Info("generated device id", "device_id", deviceID)
		return deviceID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query client info: %w", err)
	}
	return deviceID, nil
}

// TempIDInUse reports whether id already identifies any local record or
// queued create. Used by the repository when minting provisional ids.
func (s *Store) TempIDInUse(ctx context.Context, id int64) (bool, error) {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM animals WHERE id = ?)
		    OR EXISTS(SELECT 1 FROM animal_events WHERE id = ?)
		    OR EXISTS(SELECT 1 FROM tasks WHERE id = ?)
		    OR EXISTS(SELECT 1 FROM pending_operations WHERE temp_id = ?)
	`, id, id, id, id).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("failed to check temp id: %w", err)
	}
	return inUse, nil
}
