// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"github.com/bartoszzontek/highlander-farm/herdstore"
)

// Per-operation verdicts returned by the batch-sync endpoint. Anything else
// is a failure with the reason in OperationResult.Error.
const (
	StatusOK     = "ok"
	StatusMerged = "merged"
)

// BatchRequest is the body of POST /sync: the whole pending queue in
// ascending sequence order.
type BatchRequest struct {
	Operations []herdstore.PendingOperation `json:"operations"`
}

// OperationResult is the server's verdict for one submitted operation,
// correlated by QueueID. For successful creates RealID carries the
// authoritative id assigned by the remote store.
type OperationResult struct {
	QueueID  int64  `json:"queueId"`
	Action   string `json:"action"`
	TempID   *int64 `json:"tempId,omitempty"`
	EntityID *int64 `json:"entityId,omitempty"`
	RealID   *int64 `json:"realId,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Succeeded reports whether the remote accepted the operation.
func (r *OperationResult) Succeeded() bool {
	return r.Status == StatusOK || r.Status == StatusMerged
}

// BatchResponse is the body of the batch-sync response. Results may arrive
// in any order; correlation is by queue id.
type BatchResponse struct {
	Status  string            `json:"status"`
	Results []OperationResult `json:"results"`
	Message string            `json:"message,omitempty"`
}
