// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the application shell. Validation and session
// errors are returned synchronously from repository calls; they are never
// queued for later sync.
var (
	// ErrDuplicateTag means another non-deleted animal already carries the
	// tag code locally.
	ErrDuplicateTag = errors.New("duplicate tag code")

	// ErrUnsyncedParent means an online write referenced an animal that still
	// has a provisional id; the caller must wait for sync to finish.
	ErrUnsyncedParent = errors.New("animal has not been synced yet")

	// ErrUnauthorized means the remote rejected the session credential. The
	// remote client has already invoked the session-invalidation hook.
	ErrUnauthorized = errors.New("session expired")

	// ErrMissingField means a required field was empty.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidEventType means the event type is not one of the known kinds.
	ErrInvalidEventType = errors.New("unknown event type")

	// ErrAnimalNotFound means the referenced animal does not exist in the
	// local store.
	ErrAnimalNotFound = errors.New("animal not found")
)

// APIError is a normalized remote failure: HTTP status plus a flattened,
// human-readable message assembled from the server's error body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}
