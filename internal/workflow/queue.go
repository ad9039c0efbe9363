// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package workflow

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
)

// inFlightWorkflows tracks the number of workflows currently in the
// Commander's queue, exported for operational visibility (spec §4.9's
// metrics surface, grounded on the teacher's prometheus client_golang use
// in internal/audit and internal/monitor).
var inFlightWorkflows = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "nipart",
	Subsystem: "commander",
	Name:      "workflows_in_flight",
	Help:      "Number of workflows currently queued or executing.",
})

func init() {
	prometheus.MustRegister(inFlightWorkflows)
}

// entry pairs a Workflow with its ShareData; the Commander owns both for
// the workflow's lifetime (spec §4.5's WorkFlowQueue).
type entry struct {
	workflow *Workflow
	share    *ShareData
}

// Queue holds every in-flight workflow, keyed by UUID. The Commander is
// the sole owner of a Queue and drives it from a single goroutine, so no
// internal locking is needed — this is NOT one of spec §5's two
// shared-mutable-state exceptions.
type Queue struct {
	log     *logging.Logger
	entries map[uuid.UUID]*entry
}

// NewQueue returns an empty Queue.
func NewQueue(log *logging.Logger) *Queue {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &Queue{log: log, entries: make(map[uuid.UUID]*entry)}
}

// Add registers a new workflow and its share data, returning the initial
// request event(s) to send.
func (q *Queue) Add(w *Workflow, share *ShareData) ([]event.Event, error) {
	q.entries[w.UUID] = &entry{workflow: w, share: share}
	inFlightWorkflows.Set(float64(len(q.entries)))
	return w.Process(share)
}

// AddReply routes a reply to the workflow it's correlated with by UUID.
// A reply for a UUID with no matching workflow is silently dropped —
// it belongs to a workflow that already expired or finished.
func (q *Queue) AddReply(e event.Event) {
	if ent, ok := q.entries[e.UUID]; ok {
		ent.workflow.AddReply(e)
	}
}

// Reaped describes one workflow that left the queue during a Tick, so the
// caller can react to how it ended — in particular, the daemon's apply
// pipeline wiring uses a Failed "apply_net_state" Reaped entry's Share to
// build the rollback workflow internal/workflow/apply_workflow.go's own
// doc comment defers to the daemon (spec §4.6).
type Reaped struct {
	UUID   uuid.UUID
	Kind   string
	Failed bool
	Share  *ShareData
}

// Tick advances every workflow by one Process() step, collecting the
// events to forward, and reaps any workflow that finished, failed, or
// expired (spec §4.5's WorkFlowQueue::process).
func (q *Queue) Tick() ([]event.Event, []Reaped, error) {
	var out []event.Event
	var done []uuid.UUID

	for id, ent := range q.entries {
		events, err := ent.workflow.Process(ent.share)
		if err != nil {
			return nil, nil, nerr.Wrapf(err, nerr.KindBug, "workflow %s failed to process", ent.workflow)
		}
		out = append(out, events...)

		if ent.workflow.IsDone() || ent.workflow.IsFailed() || ent.workflow.IsExpired() {
			done = append(done, id)
		}
	}

	var reaped []Reaped
	for _, id := range done {
		ent := q.entries[id]
		switch {
		case ent.workflow.IsDone():
			q.log.Debug("workflow finished", "workflow", ent.workflow.String())
		case ent.workflow.IsExpired():
			q.log.Debug("workflow expired", "workflow", ent.workflow.String())
		case ent.workflow.IsFailed():
			q.log.Debug("workflow failed", "workflow", ent.workflow.String())
		}
		reaped = append(reaped, Reaped{
			UUID:   id,
			Kind:   ent.workflow.Kind,
			Failed: ent.workflow.IsFailed(),
			Share:  ent.share,
		})
		delete(q.entries, id)
	}
	inFlightWorkflows.Set(float64(len(q.entries)))

	return out, reaped, nil
}

// Len reports how many workflows are currently queued.
func (q *Queue) Len() int { return len(q.entries) }
