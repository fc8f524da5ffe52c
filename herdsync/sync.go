// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bartoszzontek/highlander-farm/herdstore"
)

// SyncOutcome is the aggregate report of one queue drain. Sync failures are
// notifications, not exceptions: no caller is synchronously waiting on a
// background sync.
type SyncOutcome struct {
	Drained int `json:"drained"` // operations submitted
	Applied int `json:"applied"` // accepted by the remote (ok or merged)
	Failed  int `json:"failed"`  // rejected; not retried
}

// SyncService drains the pending-operation queue against the remote batch
// endpoint and applies the verdicts to the local store in one atomic
// reconciliation transaction, remapping provisional identities.
type SyncService struct {
	store  *herdstore.Store
	remote *RemoteClient
	conn   Connectivity
	logger *slog.Logger

	metrics    *Metrics
	retryDelay time.Duration

	// OnOutcome, when set, receives the aggregate report of every completed
	// run; the shell surfaces it as a dismissible notification.
	OnOutcome func(SyncOutcome)

	// 0 = idle, 1 = running. Guards against overlapping runs triggered by
	// connectivity-restored events, manual triggers, and the follow-up timer.
	running int32
}

// NewSyncService wires the sync service. conn and logger may be nil.
func NewSyncService(store *herdstore.Store, remote *RemoteClient, conn Connectivity, cfg *Config, logger *slog.Logger) *SyncService {
	if conn == nil {
		conn = AlwaysOnline
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SyncService{
		store:      store,
		remote:     remote,
		conn:       conn,
		logger:     logger,
		retryDelay: cfg.RetryDelay.Std(),
	}
}

// SetMetrics attaches Prometheus instrumentation to the service.
func (s *SyncService) SetMetrics(m *Metrics) { s.metrics = m }

// Running reports whether a drain is currently in flight.
func (s *SyncService) Running() bool { return atomic.LoadInt32(&s.running) == 1 }

// ProcessQueue performs one drain of the pending-operation queue. It is a
// no-op (nil outcome, nil error) when a run is already in flight or the
// device is offline. The flag is released on every exit path.
func (s *SyncService) ProcessQueue(ctx context.Context) (*SyncOutcome, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil, nil
	}
	defer atomic.StoreInt32(&s.running, 0)

	if !s.conn.Online() {
		return nil, nil
	}

	ops, err := s.store.PendingOperations(ctx)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return &SyncOutcome{}, nil
	}

	s.logger.Info("starting sync", "pending", len(ops))
	resp, err := s.remote.SyncBatch(ctx, ops)
	if err != nil {
		// No verdicts received: the queue is left untouched for the next run.
		s.observeRun("error")
		return nil, fmt.Errorf("batch sync failed: %w", err)
	}
	if resp.Status != StatusOK {
		s.observeRun("error")
		return nil, fmt.Errorf("batch sync rejected: %s", resp.Message)
	}

	outcome, err := s.applyResults(ctx, ops, resp.Results)
	if err != nil {
		s.observeRun("error")
		return nil, err
	}
	outcome.Drained = len(ops)

	s.logger.Info("sync finished",
		"drained", outcome.Drained, "applied", outcome.Applied, "failed", outcome.Failed)
	s.observeRun("ok")
	s.observeOutcome(ctx, outcome)
	if s.OnOutcome != nil {
		s.OnOutcome(*outcome)
	}

	// Operations queued while this run was in flight get one follow-up drain
	// after a short fixed delay. This is not a retry of the failures above.
	if remaining, err := s.store.PendingCount(ctx); err == nil && remaining > 0 && s.conn.Online() {
		s.scheduleFollowUp(ctx)
	}
	return outcome, nil
}

// applyResults applies every verdict inside one atomic transaction spanning
// all collections, so live queries never observe a half-remapped store.
// Verdicts whose queue entry is already gone are skipped, which makes replay
// of a duplicated response a no-op.
func (s *SyncService) applyResults(ctx context.Context, ops []herdstore.PendingOperation, results []OperationResult) (*SyncOutcome, error) {
	byQueueID := make(map[int64]*herdstore.PendingOperation, len(ops))
	for i := range ops {
		byQueueID[ops[i].ID] = &ops[i]
	}

	outcome := &SyncOutcome{}
	err := s.store.Update(ctx, func(tx *sql.Tx) error {
		for i := range results {
			res := &results[i]
			op, ok := byQueueID[res.QueueID]
			if !ok {
				continue
			}

			if res.Succeeded() {
				if err := s.applySuccess(tx, op, res); err != nil {
					return err
				}
				outcome.Applied++
			} else {
				if err := s.applyFailure(tx, op, res); err != nil {
					return err
				}
				outcome.Failed++
			}

			// Every verdict retires its queue entry; the server has spoken
			// and failures are not replayed automatically.
			if err := s.store.DeletePending(tx, op.ID); err != nil {
				return err
			}
			delete(byQueueID, res.QueueID)
		}
		return nil
	}, herdstore.CollectionAnimals, herdstore.CollectionEvents, herdstore.CollectionTasks, herdstore.CollectionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to apply sync results: %w", err)
	}
	return outcome, nil
}

// applySuccess performs the identity remapping for acknowledged creates.
func (s *SyncService) applySuccess(tx *sql.Tx, op *herdstore.PendingOperation, res *OperationResult) error {
	if res.RealID == nil || op.TempID == nil {
		return nil
	}
	tempID, realID := *op.TempID, *res.RealID

	switch op.Action {
	case herdstore.ActionCreateAnimal:
		// Rewrite the animal itself, then cascade the id change into every
		// collection that references it: stored events, stored tasks, and
		// still-queued payloads.
		if err := s.store.RemapAnimalID(tx, tempID, realID); err != nil {
			return err
		}
		if err := s.store.RemapEventAnimal(tx, tempID, realID); err != nil {
			return err
		}
		if err := s.store.RemapTaskAnimal(tx, tempID, realID); err != nil {
			return err
		}
		if err := s.store.RemapPendingPayloadAnimal(tx, tempID, realID); err != nil {
			return err
		}
		s.logger.Debug("remapped animal", "temp_id", tempID, "real_id", realID)
	case herdstore.ActionCreateEvent:
		if err := s.store.RemapEventID(tx, tempID, realID); err != nil {
			return err
		}
	case herdstore.ActionCreateTask:
		if err := s.store.RemapTaskID(tx, tempID, realID); err != nil {
			return err
		}
	}
	return nil
}

// applyFailure handles a rejected operation. The queue entry is discarded by
// the caller; the one extra step is the uniqueness collision on an
// offline-created animal, whose optimistic local copy is deleted too so it
// cannot linger forever as an un-syncable duplicate.
func (s *SyncService) applyFailure(tx *sql.Tx, op *herdstore.PendingOperation, res *OperationResult) error {
	s.logger.Warn("sync operation rejected",
		"action", op.Action, "queue_id", op.ID, "error", res.Error)

	if op.Action == herdstore.ActionCreateAnimal && op.TempID != nil && isUniqueViolation(res.Error) {
		tempID := *op.TempID
		if err := s.store.DeleteEventsByAnimal(tx, tempID); err != nil {
			return err
		}
		if err := s.store.DeleteTasksByAnimal(tx, tempID); err != nil {
			return err
		}
		if err := s.store.DeleteAnimalRow(tx, tempID); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation matches the remote's uniqueness-conflict error text.
func isUniqueViolation(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "unique") || strings.Contains(lower, "integrityerror")
}

// scheduleFollowUp triggers one more ProcessQueue after the configured
// delay. Re-entrancy is handled by the running flag.
func (s *SyncService) scheduleFollowUp(ctx context.Context) {
	go func() {
		timer := time.NewTimer(s.retryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if _, err := s.ProcessQueue(ctx); err != nil {
			s.logger.Warn("follow-up sync failed", "error", err)
		}
	}()
}

func (s *SyncService) observeRun(result string) {
	if s.metrics != nil {
		s.metrics.Runs.WithLabelValues(result).Inc()
	}
}

func (s *SyncService) observeOutcome(ctx context.Context, outcome *SyncOutcome) {
	if s.metrics == nil {
		return
	}
	s.metrics.Operations.WithLabelValues("applied").Add(float64(outcome.Applied))
	s.metrics.Operations.WithLabelValues("failed").Add(float64(outcome.Failed))
	if depth, err := s.store.PendingCount(ctx); err == nil {
		s.metrics.QueueDepth.Set(float64(depth))
	}
}
