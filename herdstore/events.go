// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdstore

import (
	"context"
	"database/sql"
	"fmt"
)

const eventColumns = `id, animal, event_type, date, notes`

// EventsByAnimal returns the animal's journal, newest first.
func (s *Store) EventsByAnimal(ctx context.Context, animalID int64) ([]AnimalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM animal_events WHERE animal = ? ORDER BY date DESC, id DESC
	`, animalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for animal %d: %w", animalID, err)
	}
	defer rows.Close()

	var events []AnimalEvent
	for rows.Next() {
		var e AnimalEvent
		if err := rows.Scan(&e.ID, &e.Animal, &e.EventType, &e.Date, &e.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// PutEvent inserts or replaces one event inside tx.
func (s *Store) PutEvent(tx *sql.Tx, e *AnimalEvent) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO animal_events (id, animal, event_type, date, notes)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Animal, e.EventType, e.Date, e.Notes)
	if err != nil {
		return fmt.Errorf("failed to put event %d: %w", e.ID, err)
	}
	return nil
}

// ReplaceEventsForAnimal swaps the animal's cached journal for a server
// snapshot.
func (s *Store) ReplaceEventsForAnimal(tx *sql.Tx, animalID int64, events []AnimalEvent) error {
	if err := s.DeleteEventsByAnimal(tx, animalID); err != nil {
		return err
	}
	for i := range events {
		if err := s.PutEvent(tx, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEventsByAnimal removes the animal's journal inside tx (cascade step
// of animal deletion).
func (s *Store) DeleteEventsByAnimal(tx *sql.Tx, animalID int64) error {
	if _, err := tx.Exec(`DELETE FROM animal_events WHERE animal = ?`, animalID); err != nil {
		return fmt.Errorf("failed to delete events for animal %d: %w", animalID, err)
	}
	return nil
}

// RemapEventAnimal rewrites the owning-animal reference on stored events when
// a provisional animal id is reconciled.
func (s *Store) RemapEventAnimal(tx *sql.Tx, oldAnimalID, newAnimalID int64) error {
	if _, err := tx.Exec(`UPDATE animal_events SET animal = ? WHERE animal = ?`, newAnimalID, oldAnimalID); err != nil {
		return fmt.Errorf("failed to remap event animal %d -> %d: %w", oldAnimalID, newAnimalID, err)
	}
	return nil
}

// RemapEventID rewrites an event's provisional id to the authoritative one.
// Events are not referenced by further foreign keys, so no cascade is needed.
func (s *Store) RemapEventID(tx *sql.Tx, oldID, newID int64) error {
	if _, err := tx.Exec(`UPDATE animal_events SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to remap event %d -> %d: %w", oldID, newID, err)
	}
	return nil
}
