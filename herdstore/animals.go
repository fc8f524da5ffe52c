// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const animalColumns = `id, tag_id, name, breed, birth_date, sex, photo`

func scanAnimal(row interface{ Scan(...any) error }) (*Animal, error) {
	var a Animal
	if err := row.Scan(&a.ID, &a.TagID, &a.Name, &a.Breed, &a.BirthDate, &a.Sex, &a.Photo); err != nil {
		return nil, err
	}
	return &a, nil
}

// Animals returns every animal ordered by tag code.
func (s *Store) Animals(ctx context.Context) ([]Animal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+animalColumns+` FROM animals ORDER BY tag_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query animals: %w", err)
	}
	defer rows.Close()

	var animals []Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan animal: %w", err)
		}
		animals = append(animals, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating animals: %w", err)
	}
	return animals, nil
}

// AnimalByID looks up a single animal. Returns ErrNotFound when absent.
func (s *Store) AnimalByID(ctx context.Context, id int64) (*Animal, error) {
	a, err := scanAnimal(s.db.QueryRowContext(ctx,
		`SELECT `+animalColumns+` FROM animals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("animal %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query animal %d: %w", id, err)
	}
	return a, nil
}

// AnimalByTag looks up a single animal by its tag code. Returns ErrNotFound
// when absent.
func (s *Store) AnimalByTag(ctx context.Context, tag string) (*Animal, error) {
	a, err := scanAnimal(s.db.QueryRowContext(ctx,
		`SELECT `+animalColumns+` FROM animals WHERE tag_id = ? LIMIT 1`, tag))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("animal tag %q: %w", tag, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query animal by tag %q: %w", tag, err)
	}
	return a, nil
}

// AnimalTagInUse reports whether any animal other than excludeID carries the
// tag code. Pass excludeID 0 for creates.
func (s *Store) AnimalTagInUse(ctx context.Context, tag string, excludeID int64) (bool, error) {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM animals WHERE tag_id = ? AND id != ?)
	`, tag, excludeID).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("failed to check tag %q: %w", tag, err)
	}
	return inUse, nil
}

// PutAnimal inserts or replaces one animal inside tx.
func (s *Store) PutAnimal(tx *sql.Tx, a *Animal) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO animals (id, tag_id, name, breed, birth_date, sex, photo)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TagID, a.Name, a.Breed, a.BirthDate, a.Sex, a.Photo)
	if err != nil {
		return fmt.Errorf("failed to put animal %d: %w", a.ID, err)
	}
	return nil
}

// ReplaceAnimals upserts a server snapshot into the local cache.
func (s *Store) ReplaceAnimals(tx *sql.Tx, animals []Animal) error {
	for i := range animals {
		if err := s.PutAnimal(tx, &animals[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAnimalRow removes the animal record only; callers cascade events and
// tasks explicitly so the whole removal stays in one transaction.
func (s *Store) DeleteAnimalRow(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM animals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete animal %d: %w", id, err)
	}
	return nil
}

// RemapAnimalID rewrites an animal's provisional id to the authoritative one
// assigned by the remote store. Referencing collections are rewritten by
// their own remap helpers inside the same transaction.
func (s *Store) RemapAnimalID(tx *sql.Tx, oldID, newID int64) error {
	if _, err := tx.Exec(`UPDATE animals SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to remap animal %d -> %d: %w", oldID, newID, err)
	}
	return nil
}

// AnimalStats is the locally computed herd summary.
type AnimalStats struct {
	Total      int            `json:"total"`
	BySex      map[string]int `json:"by_sex"`
	ByBreed    map[string]int `json:"by_breed"`
	AverageAge float64        `json:"average_age"`
}

// Stats aggregates the local animals collection. Computed on-device so it
// works offline.
func (s *Store) Stats(ctx context.Context) (*AnimalStats, error) {
	stats := &AnimalStats{
		BySex:   make(map[string]int),
		ByBreed: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT sex, breed, birth_date FROM animals`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var ageSum float64
	for rows.Next() {
		var sex, breed, birthDate string
		if err := rows.Scan(&sex, &breed, &birthDate); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Total++
		stats.BySex[sex]++
		stats.ByBreed[breed]++
		if born, err := time.Parse("2006-01-02", birthDate); err == nil {
			ageSum += now.Sub(born).Hours() / (24 * 365.25)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}
	if stats.Total > 0 {
		stats.AverageAge = ageSum / float64(stats.Total)
	}
	return stats, nil
}
