// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package workflow implements the Workflow Scheduler (spec §3.6, §4.5,
// §4.6): a Task/Workflow/Queue model that drives the daemon's multi-step
// operations — query, apply, refresh-plugin-info, quit — as a sequence of
// fan-out request/collect-replies steps, with per-task timeout and the
// apply pipeline's query→apply→verify-with-retry structure.
//
// Grounded 1:1 on original_source/src/daemon/workflow.rs and
// src/daemon/commander/{state,plugin,workflow}.rs: WorkFlow here plays the
// role of WorkFlow there, Task of Task, and Queue of WorkFlowQueue.
package workflow

import (
	"time"

	"github.com/google/uuid"
	"nipart.dev/nipart/internal/event"
)

// Kind identifies what a Task asks every addressed provider to do (spec
// §3.6's task kinds).
type Kind int

const (
	KindQueryNetState Kind = iota
	KindQueryRelatedNetState
	KindApplyNetState
	KindRefreshPluginInfo
	KindQueryPluginInfo
	KindQuit
)

func (k Kind) String() string {
	switch k {
	case KindQueryNetState:
		return "query_net_state"
	case KindQueryRelatedNetState:
		return "query_related_net_state"
	case KindApplyNetState:
		return "apply_net_state"
	case KindRefreshPluginInfo:
		return "refresh_plugin_info"
	case KindQueryPluginInfo:
		return "query_plugin_info"
	case KindQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Task is one fan-out step of a Workflow: a request is sent to
// ExpectedReplies providers, and the task is Done once that many replies
// have arrived or it has expired.
type Task struct {
	UUID            uuid.UUID
	Kind            Kind
	ExpectedReplies int
	Replies         []event.Event
	Deadline        time.Time

	retriesLeft   uint32
	retryInterval time.Duration
}

// NewTask returns a Task expecting replyCount replies, expiring after
// timeout unless replies arrive first.
func NewTask(id uuid.UUID, kind Kind, replyCount int, timeout time.Duration) *Task {
	return &Task{
		UUID:            id,
		Kind:            kind,
		ExpectedReplies: replyCount,
		Deadline:        time.Now().Add(timeout),
	}
}

// SetRetry configures the task to be retried count times, resetting its
// deadline by interval on each retry (used by the apply pipeline's verify
// task, spec §4.6: five retries at one-second intervals before rollback).
func (t *Task) SetRetry(count uint32, interval time.Duration) {
	t.retriesLeft = count
	t.retryInterval = interval
}

// CanRetry reports whether the task has retries remaining.
func (t *Task) CanRetry() bool { return t.retriesLeft > 0 }

// Retry consumes one retry, clears collected replies, and pushes the
// deadline out by the configured retry interval.
func (t *Task) Retry() {
	t.retriesLeft--
	t.Replies = nil
	t.Deadline = time.Now().Add(t.retryInterval)
}

// AddReply records a reply event correlated to this task.
func (t *Task) AddReply(e event.Event) {
	t.Replies = append(t.Replies, e)
}

// IsDone reports whether enough replies have arrived.
func (t *Task) IsDone() bool {
	if t.ExpectedReplies <= 0 {
		return true
	}
	return len(t.Replies) >= t.ExpectedReplies
}

// IsExpired reports whether the task's deadline has passed without
// collecting enough replies.
func (t *Task) IsExpired() bool {
	return !t.IsDone() && time.Now().After(t.Deadline)
}
