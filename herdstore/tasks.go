// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdstore

import (
	"context"
	"database/sql"
	"fmt"
)

// TaskFilter narrows Tasks results. Nil fields match everything.
type TaskFilter struct {
	Animal    *int64
	Completed *bool
}

// Tasks returns planned work matching the filter, most recent due date first.
func (s *Store) Tasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	query := `SELECT id, animal, title, due_date, is_completed FROM tasks WHERE 1=1`
	var args []any
	if filter.Animal != nil {
		query += ` AND animal = ?`
		args = append(args, *filter.Animal)
	}
	if filter.Completed != nil {
		query += ` AND is_completed = ?`
		args = append(args, *filter.Completed)
	}
	query += ` ORDER BY due_date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Animal, &t.Title, &t.DueDate, &t.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// PutTask inserts or replaces one task inside tx.
func (s *Store) PutTask(tx *sql.Tx, t *Task) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO tasks (id, animal, title, due_date, is_completed)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.Animal, t.Title, t.DueDate, t.Completed)
	if err != nil {
		return fmt.Errorf("failed to put task %d: %w", t.ID, err)
	}
	return nil
}

// ReplaceTasks upserts a server snapshot into the local cache.
func (s *Store) ReplaceTasks(tx *sql.Tx, tasks []Task) error {
	for i := range tasks {
		if err := s.PutTask(tx, &tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTask removes one task inside tx.
func (s *Store) DeleteTask(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	return nil
}

// DeleteTasksByAnimal removes tasks tied to an animal inside tx (cascade step
// of animal deletion).
func (s *Store) DeleteTasksByAnimal(tx *sql.Tx, animalID int64) error {
	if _, err := tx.Exec(`DELETE FROM tasks WHERE animal = ?`, animalID); err != nil {
		return fmt.Errorf("failed to delete tasks for animal %d: %w", animalID, err)
	}
	return nil
}

// RemapTaskAnimal rewrites the animal reference on stored tasks when a
// provisional animal id is reconciled.
func (s *Store) RemapTaskAnimal(tx *sql.Tx, oldAnimalID, newAnimalID int64) error {
	if _, err := tx.Exec(`UPDATE tasks SET animal = ? WHERE animal = ?`, newAnimalID, oldAnimalID); err != nil {
		return fmt.Errorf("failed to remap task animal %d -> %d: %w", oldAnimalID, newAnimalID, err)
	}
	return nil
}

// RemapTaskID rewrites a task's provisional id to the authoritative one.
func (s *Store) RemapTaskID(tx *sql.Tx, oldID, newID int64) error {
	if _, err := tx.Exec(`UPDATE tasks SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to remap task %d -> %d: %w", oldID, newID, err)
	}
	return nil
}
