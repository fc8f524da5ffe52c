// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"context"

	"github.com/bartoszzontek/highlander-farm/herdstore"
)

// liveQuery re-runs query after every committed transaction touching one of
// the watched collections and emits the fresh result. The channel always
// holds the latest result only; slow consumers see the newest state, not a
// backlog. The first emission is the current snapshot.
func liveQuery[T any](ctx context.Context, r *Repository, query func(context.Context) (T, error), collections ...string) (<-chan T, error) {
	initial, err := query(ctx)
	if err != nil {
		return nil, err
	}

	sub := r.store.Subscribe(collections...)
	out := make(chan T, 1)
	out <- initial

	go func() {
		defer sub.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.C:
			}
			result, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Error("live query re-evaluation failed", "error", err)
				continue
			}
			// Latest-wins: drop a stale pending emission before publishing.
			select {
			case out <- result:
			default:
				select {
				case <-out:
				default:
				}
				out <- result
			}
		}
	}()
	return out, nil
}

// LiveAnimals emits the animal list now and after every change to it,
// including background reconciliation. This is how the UI observes identity
// remapping without polling.
func (r *Repository) LiveAnimals(ctx context.Context) (<-chan []herdstore.Animal, error) {
	return liveQuery(ctx, r, r.store.Animals, herdstore.CollectionAnimals)
}

// LiveEvents emits an animal's journal now and after every change. It also
// watches the animals collection because reconciliation rewrites the owning
// id on events when the parent is remapped.
func (r *Repository) LiveEvents(ctx context.Context, animalID int64) (<-chan []herdstore.AnimalEvent, error) {
	query := func(ctx context.Context) ([]herdstore.AnimalEvent, error) {
		return r.store.EventsByAnimal(ctx, animalID)
	}
	return liveQuery(ctx, r, query, herdstore.CollectionEvents, herdstore.CollectionAnimals)
}

// LiveTasks emits tasks matching the filter now and after every change.
func (r *Repository) LiveTasks(ctx context.Context, filter herdstore.TaskFilter) (<-chan []herdstore.Task, error) {
	query := func(ctx context.Context) ([]herdstore.Task, error) {
		return r.store.Tasks(ctx, filter)
	}
	return liveQuery(ctx, r, query, herdstore.CollectionTasks)
}

// LiveQueueDepth emits the pending-operation count now and after every queue
// change; the UI uses it for the "pending sync" badge.
func (r *Repository) LiveQueueDepth(ctx context.Context) (<-chan int, error) {
	return liveQuery(ctx, r, r.store.PendingCount, herdstore.CollectionPending)
}
