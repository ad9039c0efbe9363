// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package workflow

import (
	"fmt"

	"github.com/google/uuid"
	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
)

// ShareData is the mutable scratch space a Workflow's callbacks thread
// through its tasks (spec §4.5's WorkFlowShareData): the desired state
// supplied by the caller, the state observed before apply, and the merge
// engine's output once computed.
type ShareData struct {
	DesiredState  *nstate.NetworkState
	PreApplyState *nstate.NetworkState
	MergedIfaces  *nstate.MergedInterfaces
	MergedRoutes  *nstate.MergedRoutes
}

// Callback runs when a task completes, inspecting its replies and
// share data to decide what (if anything) to send next. Returning a
// non-nil error fails the workflow unless the task has retries left.
type Callback func(task *Task, share *ShareData) (*event.Event, error)

// RequestBuilder produces the request event for a task, given the current
// share data (spec §4.5's Task::gen_request).
type RequestBuilder func(task *Task, share *ShareData) event.Event

// Workflow drives a sequence of Tasks to completion (spec §3.6, §4.5),
// advancing to the next task once the current one is Done, running that
// task's Callback, and forwarding whatever event the callback emits.
type Workflow struct {
	Kind      string
	UUID      uuid.UUID
	Tasks     []*Task
	Callbacks []Callback
	Requests  []RequestBuilder

	curTaskIdx      int
	initRequestSent bool
	failed          bool
}

// New builds a Workflow from parallel task/callback/request slices (all
// must be the same length).
func New(kind string, id uuid.UUID, tasks []*Task, callbacks []Callback, requests []RequestBuilder) *Workflow {
	return &Workflow{Kind: kind, UUID: id, Tasks: tasks, Callbacks: callbacks, Requests: requests}
}

func (w *Workflow) String() string {
	return fmt.Sprintf("%s(%s)", w.Kind, w.UUID)
}

// CurTask returns the task currently in flight, or nil once the workflow
// is exhausted.
func (w *Workflow) CurTask() *Task {
	if w.curTaskIdx < 0 || w.curTaskIdx >= len(w.Tasks) {
		return nil
	}
	return w.Tasks[w.curTaskIdx]
}

// IsExpired reports whether the current task has timed out.
func (w *Workflow) IsExpired() bool {
	t := w.CurTask()
	if t == nil {
		return true
	}
	return t.IsExpired()
}

// IsDone reports whether every task has completed, in order.
func (w *Workflow) IsDone() bool {
	return w.curTaskIdx == len(w.Tasks)-1 && w.CurTask() != nil && w.CurTask().IsDone()
}

// IsFailed reports whether a callback returned a non-retryable error.
func (w *Workflow) IsFailed() bool { return w.failed }

// AddReply records a reply against the current task.
func (w *Workflow) AddReply(e event.Event) {
	if t := w.CurTask(); t != nil {
		t.AddReply(e)
	}
}

func (w *Workflow) genCurTaskRequest(share *ShareData) (event.Event, error) {
	t := w.CurTask()
	if t == nil {
		return event.Event{}, nerr.Errorf(nerr.KindBug, "workflow %s has no current task", w.Kind)
	}
	builder := w.Requests[w.curTaskIdx]
	req := builder(t, share)
	req.UUID = t.UUID
	return req, nil
}

// Process advances the workflow by one tick: sending the initial request
// if not yet sent, failing on expiry, or — once the current task is
// done — running its callback and moving on to the next task. It returns
// zero or more events to forward (spec §4.5's WorkFlow::process).
func (w *Workflow) Process(share *ShareData) ([]event.Event, error) {
	var out []event.Event

	if !w.initRequestSent {
		req, err := w.genCurTaskRequest(share)
		if err != nil {
			return nil, err
		}
		w.initRequestSent = true
		return append(out, req), nil
	}

	if w.IsExpired() {
		errEvent := event.Event{
			UUID:        w.UUID,
			Action:      event.ActionDone,
			Kind:        "Error",
			UserPayload: event.ErrorPayload{Kind: nerr.KindTimeout.String(), Message: fmt.Sprintf("timeout on workflow %s", w)},
			Src:         event.Daemon(),
			Dst:         event.User(),
		}
		w.failed = true
		return []event.Event{errEvent}, nil
	}

	if w.CurTask().IsDone() {
		callbackEvent, retried, err := w.runCurTaskCallback(share)
		if err != nil {
			w.failed = true
			errEvent := event.Event{
				UUID:        w.UUID,
				Action:      event.ActionDone,
				Kind:        "Error",
				UserPayload: event.ErrorPayload{Kind: nerr.GetKind(err).String(), Message: err.Error()},
				Src:         event.Daemon(),
				Dst:         event.User(),
			}
			return []event.Event{errEvent}, nil
		}
		if callbackEvent != nil {
			out = append(out, *callbackEvent)
		}
		if !retried && w.curTaskIdx+1 < len(w.Tasks) {
			w.curTaskIdx++
			req, err := w.genCurTaskRequest(share)
			if err != nil {
				return nil, err
			}
			out = append(out, req)
		}
	}

	return out, nil
}

// runCurTaskCallback runs the current task's Callback. On error, if the
// task has retries left, it retries in place (clearing replies, pushing
// the deadline, and re-sending the request) instead of failing the
// workflow (spec §4.6's verify-retry behavior); the bool return reports
// whether that happened, so Process knows not to advance to the next task.
func (w *Workflow) runCurTaskCallback(share *ShareData) (*event.Event, bool, error) {
	cb := w.Callbacks[w.curTaskIdx]
	if cb == nil {
		return nil, false, nil
	}
	t := w.CurTask()
	result, err := cb(t, share)
	if err != nil {
		if t.CanRetry() {
			t.Retry()
			req, reqErr := w.genCurTaskRequest(share)
			if reqErr != nil {
				return nil, false, reqErr
			}
			return &req, true, nil
		}
		return nil, false, err
	}
	return result, false, nil
}
