// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdstore

import (
	"encoding/json"
	"fmt"
)

// Collection names used for transaction change notification and live-query
// subscriptions. Every Update call names the collections it touched so that
// subscribers watching any of them are woken after commit.
const (
	CollectionAnimals = "animals"
	CollectionEvents  = "animal_events"
	CollectionTasks   = "tasks"
	CollectionPending = "pending_operations"
)

// Animal sexes (closed set, matching the remote API).
const (
	SexFemale = "F"
	SexMale   = "M"
)

// Animal is one tracked individual. Positive ids are authoritative (assigned
// by the remote store); negative ids are provisional local identities minted
// when the animal was created offline.
type Animal struct {
	ID        int64   `json:"id"`
	TagID     string  `json:"tag_id"`
	Name      string  `json:"name"`
	Breed     string  `json:"breed"`
	BirthDate string  `json:"birth_date"` // YYYY-MM-DD
	Sex       string  `json:"sex"`
	Photo     *string `json:"photo"`
}

// Provisional reports whether the animal was created offline and has not been
// reconciled with the remote store yet.
func (a *Animal) Provisional() bool { return a.ID < 0 }

// EventType is the closed enumeration of journaled occurrences.
type EventType string

const (
	EventTreatment   EventType = "treatment"
	EventVaccination EventType = "vaccination"
	EventBirth       EventType = "birth"
	EventInspection  EventType = "inspection"
	EventOther       EventType = "other"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTreatment, EventVaccination, EventBirth, EventInspection, EventOther:
		return true
	}
	return false
}

// AnimalEvent is one journaled occurrence for an animal. The Animal field may
// hold a provisional (negative) id until reconciliation remaps it.
type AnimalEvent struct {
	ID        int64     `json:"id"`
	Animal    int64     `json:"animal"`
	EventType EventType `json:"event_type"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Notes     string    `json:"notes"`
}

// Task is a planned piece of work, optionally tied to an animal.
type Task struct {
	ID        int64  `json:"id"`
	Animal    *int64 `json:"animal"`
	Title     string `json:"title"`
	DueDate   string `json:"due_date"` // YYYY-MM-DD
	Completed bool   `json:"is_completed"`
}

// Pending operation kinds. The names are the wire vocabulary of the remote
// batch-sync endpoint.
const (
	ActionCreateAnimal = "createAnimal"
	ActionUpdateAnimal = "updateAnimal"
	ActionDeleteAnimal = "deleteAnimal"
	ActionCreateEvent  = "createEvent"
	ActionCreateTask   = "createTask"
	ActionUpdateTask   = "updateTask"
	ActionDeleteTask   = "deleteTask"
)

// PendingOperation is one not-yet-acknowledged local mutation. The
// auto-incrementing ID defines replay order. Creates carry TempID (the
// provisional negative id); updates and deletes against already-synced
// entities carry EntityID. Payload is a snapshot of the mutation taken when
// it was queued.
type PendingOperation struct {
	ID       int64           `json:"id"`
	Action   string          `json:"action"`
	EntityID *int64          `json:"entityId,omitempty"`
	TempID   *int64          `json:"tempId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func (op *PendingOperation) String() string {
	switch {
	case op.TempID != nil:
		return fmt.Sprintf("%s#%d(temp %d)", op.Action, op.ID, *op.TempID)
	case op.EntityID != nil:
		return fmt.Sprintf("%s#%d(entity %d)", op.Action, op.ID, *op.EntityID)
	}
	return fmt.Sprintf("%s#%d", op.Action, op.ID)
}
