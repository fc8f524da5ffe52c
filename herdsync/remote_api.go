// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bartoszzontek/highlander-farm/herdstore"
)

// Animals fetches every animal from the remote store.
func (c *RemoteClient) Animals(ctx context.Context) ([]herdstore.Animal, error) {
	var animals []herdstore.Animal
	if err := c.do(ctx, "GET", "/animals", nil, &animals); err != nil {
		return nil, err
	}
	return animals, nil
}

// Animal fetches one animal by authoritative id.
func (c *RemoteClient) Animal(ctx context.Context, id int64) (*herdstore.Animal, error) {
	var a herdstore.Animal
	if err := c.do(ctx, "GET", fmt.Sprintf("/animals/%d", id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SearchAnimal looks an animal up by tag code.
func (c *RemoteClient) SearchAnimal(ctx context.Context, tag string) (*herdstore.Animal, error) {
	var a herdstore.Animal
	if err := c.do(ctx, "GET", "/animals/search?tag="+url.QueryEscape(tag), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAnimal writes through to the remote store and returns the
// authoritative representation.
func (c *RemoteClient) CreateAnimal(ctx context.Context, in AnimalInput) (*herdstore.Animal, error) {
	var a herdstore.Animal
	if err := c.do(ctx, "POST", "/animals", in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAnimal patches an animal on the remote store.
func (c *RemoteClient) UpdateAnimal(ctx context.Context, id int64, in AnimalInput) (*herdstore.Animal, error) {
	var a herdstore.Animal
	if err := c.do(ctx, "PATCH", fmt.Sprintf("/animals/%d", id), in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAnimal removes an animal from the remote store.
func (c *RemoteClient) DeleteAnimal(ctx context.Context, id int64) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/animals/%d", id), nil, nil)
}

// EventsForAnimal fetches an animal's journal from the remote store.
func (c *RemoteClient) EventsForAnimal(ctx context.Context, animalID int64) ([]herdstore.AnimalEvent, error) {
	var events []herdstore.AnimalEvent
	if err := c.do(ctx, "GET", fmt.Sprintf("/events?animal=%d", animalID), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent writes one event through to the remote store.
func (c *RemoteClient) CreateEvent(ctx context.Context, in EventInput) (*herdstore.AnimalEvent, error) {
	var e herdstore.AnimalEvent
	if err := c.do(ctx, "POST", "/events", in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Tasks fetches planned work from the remote store.
func (c *RemoteClient) Tasks(ctx context.Context) ([]herdstore.Task, error) {
	var tasks []herdstore.Task
	if err := c.do(ctx, "GET", "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask writes one task through to the remote store.
func (c *RemoteClient) CreateTask(ctx context.Context, in TaskInput) (*herdstore.Task, error) {
	var t herdstore.Task
	if err := c.do(ctx, "POST", "/tasks", in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask patches a task on the remote store.
func (c *RemoteClient) UpdateTask(ctx context.Context, id int64, in TaskInput) (*herdstore.Task, error) {
	var t herdstore.Task
	if err := c.do(ctx, "PATCH", fmt.Sprintf("/tasks/%d", id), in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTask removes a task from the remote store.
func (c *RemoteClient) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/tasks/%d", id), nil, nil)
}

// SyncBatch submits the pending queue to the batch-sync endpoint and returns
// the per-operation verdicts.
func (c *RemoteClient) SyncBatch(ctx context.Context, ops []herdstore.PendingOperation) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.do(ctx, "POST", "/sync", &BatchRequest{Operations: ops}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
