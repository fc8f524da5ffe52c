// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

// Package herdsync implements the offline-first synchronization core of the
// herd record-keeping application: the repository that mediates every read
// and write between the application and the local store, the thin remote
// HTTP client, and the sync service that drains the pending-operation queue
// and reconciles provisional identities with the remote store.
package herdsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bartoszzontek/highlander-farm/herdstore"
)

// AnimalInput is the mutable subset of an animal accepted by create/update.
type AnimalInput struct {
	TagID     string `json:"tag_id"`
	Name      string `json:"name"`
	Breed     string `json:"breed"`
	BirthDate string `json:"birth_date"`
	Sex       string `json:"sex"`
}

func (in *AnimalInput) validate() error {
	switch {
	case in.TagID == "":
		return missingField("tag_id")
	case in.Name == "":
		return missingField("name")
	case in.BirthDate == "":
		return missingField("birth_date")
	}
	if in.Sex != herdstore.SexFemale && in.Sex != herdstore.SexMale {
		return fmt.Errorf("%w: sex", ErrMissingField)
	}
	return nil
}

// EventInput is one new journal entry.
type EventInput struct {
	Animal    int64               `json:"animal"`
	EventType herdstore.EventType `json:"event_type"`
	Date      string              `json:"date"`
	Notes     string              `json:"notes"`
}

func (in *EventInput) validate() error {
	switch {
	case in.Animal == 0:
		return missingField("animal")
	case !in.EventType.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidEventType, in.EventType)
	case in.Date == "":
		return missingField("date")
	}
	return nil
}

// TaskInput is one new or updated task.
type TaskInput struct {
	Animal    *int64 `json:"animal"`
	Title     string `json:"title"`
	DueDate   string `json:"due_date"`
	Completed bool   `json:"is_completed"`
}

func (in *TaskInput) validate() error {
	switch {
	case in.Title == "":
		return missingField("title")
	case in.DueDate == "":
		return missingField("due_date")
	}
	return nil
}

// Repository is the single mutation and read surface between the application
// and storage. Every write either goes through to the remote store (online)
// or lands as an optimistic local mutation plus a queued operation (offline).
type Repository struct {
	store  *herdstore.Store
	remote *RemoteClient
	conn   Connectivity
	logger *slog.Logger
}

// NewRepository wires the repository. conn and logger may be nil
// (AlwaysOnline and slog.Default are used).
func NewRepository(store *herdstore.Store, remote *RemoteClient, conn Connectivity, logger *slog.Logger) *Repository {
	if conn == nil {
		conn = AlwaysOnline
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, remote: remote, conn: conn, logger: logger}
}

// Store exposes the underlying local store for read queries.
func (r *Repository) Store() *herdstore.Store { return r.store }

// mintTempID fabricates a provisional identity for an entity created offline:
// the negation of the current wall clock in milliseconds. Negativity marks it
// as not-yet-authoritative; the millisecond clock makes same-device
// collisions vanishingly unlikely, and the probe below removes even those.
func (r *Repository) mintTempID(ctx context.Context) (int64, error) {
	id := -time.Now().UnixMilli()
	for {
		inUse, err := r.store.TempIDInUse(ctx, id)
		if err != nil {
			return 0, err
		}
		if !inUse {
			return id, nil
		}
		id--
	}
}

// Animals returns the local animal list.
func (r *Repository) Animals(ctx context.Context) ([]herdstore.Animal, error) {
	return r.store.Animals(ctx)
}

// Animal returns one local animal, or ErrAnimalNotFound.
func (r *Repository) Animal(ctx context.Context, id int64) (*herdstore.Animal, error) {
	a, err := r.store.AnimalByID(ctx, id)
	if errors.Is(err, herdstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrAnimalNotFound, id)
	}
	return a, err
}

// EventsForAnimal returns the animal's local journal, newest first.
func (r *Repository) EventsForAnimal(ctx context.Context, animalID int64) ([]herdstore.AnimalEvent, error) {
	return r.store.EventsByAnimal(ctx, animalID)
}

// Tasks returns local tasks matching the filter.
func (r *Repository) Tasks(ctx context.Context, filter herdstore.TaskFilter) ([]herdstore.Task, error) {
	return r.store.Tasks(ctx, filter)
}

// Stats aggregates the local herd.
func (r *Repository) Stats(ctx context.Context) (*herdstore.AnimalStats, error) {
	return r.store.Stats(ctx)
}

// SearchByTag resolves a tag code to an animal: against the remote store
// when online (scanner flow looks up animals that may not be cached yet),
// falling back to the local store when offline.
func (r *Repository) SearchByTag(ctx context.Context, tag string) (*herdstore.Animal, error) {
	if r.conn.Online() {
		return r.remote.SearchAnimal(ctx, tag)
	}
	a, err := r.store.AnimalByTag(ctx, tag)
	if errors.Is(err, herdstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: tag %q", ErrAnimalNotFound, tag)
	}
	return a, err
}

// CreateAnimal registers a new animal. Online it writes through to the
// remote store and caches the authoritative record; offline it stores an
// optimistic record under a provisional negative id and queues the create.
// A duplicate tag code is rejected before any write.
func (r *Repository) CreateAnimal(ctx context.Context, in AnimalInput) (*herdstore.Animal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	inUse, err := r.store.AnimalTagInUse(ctx, in.TagID, 0)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTag, in.TagID)
	}

	if r.conn.Online() {
		created, err := r.remote.CreateAnimal(ctx, in)
		if err != nil {
			return nil, err
		}
		err = r.store.Update(ctx, func(tx *sql.Tx) error {
			return r.store.PutAnimal(tx, created)
		}, herdstore.CollectionAnimals)
		if err != nil {
			return nil, err
		}
		return created, nil
	}

	tempID, err := r.mintTempID(ctx)
	if err != nil {
		return nil, err
	}
	optimistic := &herdstore.Animal{
		ID:        tempID,
		TagID:     in.TagID,
		Name:      in.Name,
		Breed:     in.Breed,
		BirthDate: in.BirthDate,
		Sex:       in.Sex,
	}
	payload, err := json.Marshal(optimistic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	op := &herdstore.PendingOperation{
		Action:  herdstore.ActionCreateAnimal,
		TempID:  &optimistic.ID,
		Payload: payload,
	}
	err = r.store.Update(ctx, func(tx *sql.Tx) error {
		if err := r.store.PutAnimal(tx, optimistic); err != nil {
			return err
		}
		return r.store.Enqueue(tx, op)
	}, herdstore.CollectionAnimals, herdstore.CollectionPending)
	if err != nil {
		return nil, err
	}
	r.logger.Info("animal saved locally, pending sync", "tag", in.TagID, "temp_id", tempID)
	return optimistic, nil
}

// UpdateAnimal edits an existing animal, online or offline. The duplicate-tag
// rule applies, excluding the record being updated.
func (r *Repository) UpdateAnimal(ctx context.Context, id int64, in AnimalInput) (*herdstore.Animal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	current, err := r.Animal(ctx, id)
	if err != nil {
		return nil, err
	}
	inUse, err := r.store.AnimalTagInUse(ctx, in.TagID, id)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTag, in.TagID)
	}

	if r.conn.Online() {
		if current.Provisional() {
			return nil, fmt.Errorf("%w: id %d", ErrUnsyncedParent, id)
		}
		updated, err := r.remote.UpdateAnimal(ctx, id, in)
		if err != nil {
			return nil, err
		}
		err = r.store.Update(ctx, func(tx *sql.Tx) error {
			return r.store.PutAnimal(tx, updated)
		}, herdstore.CollectionAnimals)
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	updated := &herdstore.Animal{
		ID:        id,
		TagID:     in.TagID,
		Name:      in.Name,
		Breed:     in.Breed,
		BirthDate: in.BirthDate,
		Sex:       in.Sex,
		Photo:     current.Photo,
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	op := &herdstore.PendingOperation{
		Action:   herdstore.ActionUpdateAnimal,
		EntityID: &updated.ID,
		Payload:  payload,
	}
	err = r.store.Update(ctx, func(tx *sql.Tx) error {
		if err := r.store.PutAnimal(tx, updated); err != nil {
			return err
		}
		return r.store.Enqueue(tx, op)
	}, herdstore.CollectionAnimals, herdstore.CollectionPending)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAnimal removes the animal and everything hanging off it (events,
// tasks) locally, unconditionally and first. The remote delete (online) or
// the queued delete (offline, authoritative ids only) happens afterward; a
// failing remote call does not resurrect the local copy. Never-synced
// animals are simply discarded along with their queued operations — the
// remote never learned about them.
func (r *Repository) DeleteAnimal(ctx context.Context, id int64) error {
	online := r.conn.Online()
	err := r.store.Update(ctx, func(tx *sql.Tx) error {
		if err := r.store.DeleteEventsByAnimal(tx, id); err != nil {
			return err
		}
		if err := r.store.DeleteTasksByAnimal(tx, id); err != nil {
			return err
		}
		if err := r.store.DeleteAnimalRow(tx, id); err != nil {
			return err
		}
		if id < 0 {
			return r.store.DeletePendingReferencing(tx, id)
		}
		if !online {
			op := &herdstore.PendingOperation{
				Action:   herdstore.ActionDeleteAnimal,
				EntityID: &id,
			}
			return r.store.Enqueue(tx, op)
		}
		return nil
	}, herdstore.CollectionAnimals, herdstore.CollectionEvents, herdstore.CollectionTasks, herdstore.CollectionPending)
	if err != nil {
		return err
	}

	if online && id > 0 {
		if err := r.remote.DeleteAnimal(ctx, id); err != nil {
			r.logger.Warn("remote delete failed after local removal", "animal", id, "error", err)
			return err
		}
	}
	return nil
}

// CreateEvent journals an occurrence for an animal. The referenced animal
// must exist locally. Online writes against a still-provisional animal are
// rejected with ErrUnsyncedParent; offline the provisional reference is
// queued and remapped at reconciliation.
func (r *Repository) CreateEvent(ctx context.Context, in EventInput) (*herdstore.AnimalEvent, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := r.Animal(ctx, in.Animal); err != nil {
		return nil, err
	}

	if r.conn.Online() {
		if in.Animal < 0 {
			return nil, fmt.Errorf("%w: animal %d", ErrUnsyncedParent, in.Animal)
		}
		created, err := r.remote.CreateEvent(ctx, in)
		if err != nil {
			return nil, err
		}
		err = r.store.Update(ctx, func(tx *sql.Tx) error {
			return r.store.PutEvent(tx, created)
		}, herdstore.CollectionEvents)
		if err != nil {
			return nil, err
		}
		return created, nil
	}

	tempID, err := r.mintTempID(ctx)
	if err != nil {
		return nil, err
	}
	optimistic := &herdstore.AnimalEvent{
		ID:        tempID,
		Animal:    in.Animal,
		EventType: in.EventType,
		Date:      in.Date,
		Notes:     in.Notes,
	}
	payload, err := json.Marshal(optimistic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	op := &herdstore.PendingOperation{
		Action:  herdstore.ActionCreateEvent,
		TempID:  &optimistic.ID,
		Payload: payload,
	}
	err = r.store.Update(ctx, func(tx *sql.Tx) error {
		if err := r.store.PutEvent(tx, optimistic); err != nil {
			return err
		}
		return r.store.Enqueue(tx, op)
	}, herdstore.CollectionEvents, herdstore.CollectionPending)
	if err != nil {
		return nil, err
	}
	return optimistic, nil
}

// CreateTask plans a piece of work, optionally tied to an animal.
func (r *Repository) CreateTask(ctx context.Context, in TaskInput) (*herdstore.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Animal != nil {
		if _, err := r.Animal(ctx, *in.Animal); err != nil {
			return nil, err
		}
	}

	if r.conn.Online() {
		if in.Animal != nil && *in.Animal < 0 {
			return nil, fmt.Errorf("%w: animal %d", ErrUnsyncedParent, *in.Animal)
		}
		created, err := r.remote.CreateTask(ctx, in)
		if err != nil {
			return nil, err
		}
		err = r.store.Update(ctx, func(tx *sql.Tx) error {
			return r.store.PutTask(tx, created)
		}, herdstore.CollectionTasks)
		if err != nil {
			return nil, err
		}
		return created, nil
	}

	tempID, err := r.mintTempID(ctx)
	if err != nil {
		return nil, err
	}
	optimistic := &herdstore.Task{
		ID:      tempID,
		Animal:  in.Animal,
		Title:   in.Title,
		DueDate: in.DueDate,
	}
	payload, err := json.Marshal(optimistic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	op := &herdstore.PendingOperation{
		Action:  herdstore.ActionCreateTask,
		TempID:  &optimistic.ID,
		Payload: payload,
	}
	err = r.store.Update(ctx, func(tx *sql.Tx) error {
		if err := r.store.PutTask(tx, optimistic); err != nil {
			return err
		}
		return r.store.Enqueue(tx, op)
	}, herdstore.CollectionTasks, herdstore.CollectionPending)
	if err != nil {
		return nil, err
	}
	return optimistic, nil
}

// UpdateTask edits a task, online or offline.
func (r *Repository) UpdateTask(ctx context.Context, id int64, in TaskInput) (*herdstore.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if r.conn.Online() && id > 0 {
		updated, err := r.remote.UpdateTask(ctx, id, in)
		if err != nil {
			return nil, err
		}
		err = r.store.Update(ctx, func(tx *sql.Tx) error {
			return r.store.PutTask(tx, updated)
		}, herdstore.CollectionTasks)
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	updated := &herdstore.Task{
		ID:        id,
		Animal:    in.Animal,
		Title:     in.Title,
		DueDate:   in.DueDate,
		Completed: in.Completed,
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	op := &herdstore.PendingOperation{
		Action:   herdstore.ActionUpdateTask,
		EntityID: &updated.ID,
		Payload:  payload,
	}
	err = r.store.Update(ctx, func(tx *sql.Tx) error {
		if err := r.store.PutTask(tx, updated); err != nil {
			return err
		}
		return r.store.Enqueue(tx, op)
	}, herdstore.CollectionTasks, herdstore.CollectionPending)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task locally first, then remotely (online) or via the
// queue (offline, authoritative ids only).
func (r *Repository) DeleteTask(ctx context.Context, id int64) error {
	online := r.conn.Online()
	err := r.store.Update(ctx, func(tx *sql.Tx) error {
		if err := r.store.DeleteTask(tx, id); err != nil {
			return err
		}
		if id < 0 {
			return r.store.DeletePendingReferencing(tx, id)
		}
		if !online {
			op := &herdstore.PendingOperation{
				Action:   herdstore.ActionDeleteTask,
				EntityID: &id,
			}
			return r.store.Enqueue(tx, op)
		}
		return nil
	}, herdstore.CollectionTasks, herdstore.CollectionPending)
	if err != nil {
		return err
	}

	if online && id > 0 {
		if err := r.remote.DeleteTask(ctx, id); err != nil {
			r.logger.Warn("remote task delete failed after local removal", "task", id, "error", err)
			return err
		}
	}
	return nil
}

// RefreshAnimals pulls the remote animal list into the local cache. A no-op
// when offline.
func (r *Repository) RefreshAnimals(ctx context.Context) error {
	if !r.conn.Online() {
		return nil
	}
	animals, err := r.remote.Animals(ctx)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, func(tx *sql.Tx) error {
		return r.store.ReplaceAnimals(tx, animals)
	}, herdstore.CollectionAnimals)
}

// RefreshEvents replaces the animal's cached journal with the remote copy.
// A no-op when offline.
func (r *Repository) RefreshEvents(ctx context.Context, animalID int64) error {
	if !r.conn.Online() {
		return nil
	}
	events, err := r.remote.EventsForAnimal(ctx, animalID)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, func(tx *sql.Tx) error {
		return r.store.ReplaceEventsForAnimal(tx, animalID, events)
	}, herdstore.CollectionEvents)
}

// RefreshTasks pulls remote tasks into the local cache. A no-op when offline.
func (r *Repository) RefreshTasks(ctx context.Context) error {
	if !r.conn.Online() {
		return nil
	}
	tasks, err := r.remote.Tasks(ctx)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, func(tx *sql.Tx) error {
		return r.store.ReplaceTasks(tx, tasks)
	}, herdstore.CollectionTasks)
}
