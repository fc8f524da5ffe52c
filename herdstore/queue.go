// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdstore

import (
	"context"
	"database/sql"
	"fmt"
)

// PendingOperations returns the whole queue in ascending sequence order.
// Replay order is FIFO; the auto-increment id is the sequence.
func (s *Store) PendingOperations(ctx context.Context) ([]PendingOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_id, temp_id, payload FROM pending_operations ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ops []PendingOperation
	for rows.Next() {
		var op PendingOperation
		var payload string
		if err := rows.Scan(&op.ID, &op.Action, &op.EntityID, &op.TempID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan pending operation: %w", err)
		}
		op.Payload = []byte(payload)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending operations: %w", err)
	}
	return ops, nil
}

// PendingCount returns the queue depth.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return n, nil
}

// Enqueue appends one operation to the queue inside tx and assigns its
// sequence id.
func (s *Store) Enqueue(tx *sql.Tx, op *PendingOperation) error {
	payload := string(op.Payload)
	if payload == "" {
		payload = "{}"
	}
	res, err := tx.Exec(`
		INSERT INTO pending_operations (action, entity_id, temp_id, payload)
		VALUES (?, ?, ?, ?)
	`, op.Action, op.EntityID, op.TempID, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", op.Action, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read queue id: %w", err)
	}
	op.ID = id
	return nil
}

// DeletePending removes one queue entry inside tx.
func (s *Store) DeletePending(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending operation %d: %w", id, err)
	}
	return nil
}

// DeletePendingReferencing drops every queue entry tied to a provisional id:
// its own creates/updates and any queued payload that references it as an
// animal. Used when a never-synced entity is discarded locally so the remote
// never learns about it.
func (s *Store) DeletePendingReferencing(tx *sql.Tx, tempID int64) error {
	_, err := tx.Exec(`
		DELETE FROM pending_operations
		WHERE temp_id = ? OR entity_id = ? OR json_extract(payload, '$.animal') = ?
	`, tempID, tempID, tempID)
	if err != nil {
		return fmt.Errorf("failed to purge pending operations for %d: %w", tempID, err)
	}
	return nil
}

// RemapPendingPayloadAnimal rewrites the animal reference inside still-queued
// payloads when a provisional animal id is reconciled. This is what lets an
// event queued against an offline-created animal upload cleanly once the
// parent has an authoritative id.
func (s *Store) RemapPendingPayloadAnimal(tx *sql.Tx, oldAnimalID, newAnimalID int64) error {
	_, err := tx.Exec(`
		UPDATE pending_operations
		SET payload = json_set(payload, '$.animal', ?)
		WHERE json_extract(payload, '$.animal') = ?
	`, newAnimalID, oldAnimalID)
	if err != nil {
		return fmt.Errorf("failed to remap queued payloads %d -> %d: %w", oldAnimalID, newAnimalID, err)
	}
	return nil
}
