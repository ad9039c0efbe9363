// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package workflow

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
	"nipart.dev/nipart/internal/provider"
)

// DefaultTimeout bounds how long a single task waits for replies before
// the workflow fails it as a timeout (spec §4.5's DEFAULT_TIMEOUT).
const DefaultTimeout = 30 * time.Second

// verifyRetryCount and verifyRetryInterval match original_source's
// VERIFY_RETRY_COUNT/VERIFY_RETRY_INTERVAL (src/daemon/commander/state.rs):
// five retries at one-second intervals before the apply pipeline gives up
// and rolls back (spec §4.6).
const (
	verifyRetryCount    = 5
	verifyRetryInterval = time.Second
)

// NewQueryWorkflow builds the single-task query pipeline (spec §4.5):
// fan out QueryNetState to every query-and-apply-capable provider, merge
// their replies, and reply to the user.
func NewQueryWorkflow(id uuid.UUID, pluginCount int) (*Workflow, *ShareData) {
	tasks := []*Task{NewTask(id, KindQueryNetState, pluginCount, DefaultTimeout)}
	share := &ShareData{}

	callbacks := []Callback{queryNetStateCallback}
	requests := []RequestBuilder{func(t *Task, s *ShareData) event.Event {
		return event.Event{
			Action: event.ActionRequest,
			Kind:   "QueryNetState",
			Src:    event.Commander(),
			Dst:    event.Group(event.RoleQueryAndApply),
		}
	}}

	return New("query_net_state", id, tasks, callbacks, requests), share
}

func queryNetStateCallback(t *Task, share *ShareData) (*event.Event, error) {
	if len(t.Replies) == 0 {
		return nil, nerr.New(nerr.KindTimeout, "no plugin replied to the query network state call")
	}
	merged := mergeReplyStates(t.Replies)
	reply := event.Event{
		UUID:        t.UUID,
		Action:      event.ActionDone,
		Kind:        "QueryNetStateReply",
		UserPayload: merged,
		Src:         event.Daemon(),
		Dst:         event.User(),
	}
	return &reply, nil
}

// NewApplyWorkflow builds the apply pipeline's three fixed tasks (spec
// §4.6): query the current related state, apply the desired state, then
// re-query and verify — retrying the verify step up to five times, one
// second apart, before the workflow fails (the daemon wiring this into
// internal/daemon is responsible for issuing the rollback once it sees
// IsFailed() on this workflow).
func NewApplyWorkflow(id uuid.UUID, desired *nstate.NetworkState, pluginCount int) (*Workflow, *ShareData) {
	share := &ShareData{DesiredState: desired}

	preApply := NewTask(id, KindQueryRelatedNetState, pluginCount, DefaultTimeout)
	apply := NewTask(id, KindApplyNetState, pluginCount, DefaultTimeout)
	verify := NewTask(id, KindQueryRelatedNetState, pluginCount, DefaultTimeout)
	verify.SetRetry(verifyRetryCount, verifyRetryInterval)

	tasks := []*Task{preApply, apply, verify}
	callbacks := []Callback{preApplyQueryRelatedCallback, applyNetStateCallback, postApplyVerifyCallback}
	requests := []RequestBuilder{
		requestQueryRelated,
		requestApplyNetState,
		requestQueryRelated,
	}

	return New("apply_net_state", id, tasks, callbacks, requests), share
}

// NewRollbackWorkflow builds the same three-task pipeline as
// NewApplyWorkflow, targeting the pre-apply state a failed apply captured
// in its ShareData (spec §4.6: "a rollback workflow is created using the
// pre-computed revert state"). It differs from a normal apply in its Kind,
// so internal/daemon's Reaped handling can tell a rollback's own failure
// apart from an apply's and avoid re-triggering a second rollback (spec
// §4.6: "a failed rollback is logged but does not re-trigger"), and in
// setting NoVerify on its apply request.
func NewRollbackWorkflow(id uuid.UUID, target *nstate.NetworkState, pluginCount int) (*Workflow, *ShareData) {
	w, share := NewApplyWorkflow(id, target, pluginCount)
	w.Kind = "rollback_net_state"
	w.Requests[1] = func(t *Task, s *ShareData) event.Event {
		req := requestApplyNetState(t, s)
		payload := req.PluginPayload.(ApplyPayload)
		payload.NoVerify = true
		req.PluginPayload = payload
		return req
	}
	return w, share
}

func requestQueryRelated(t *Task, share *ShareData) event.Event {
	return event.Event{
		Action:        event.ActionRequest,
		Kind:          "QueryRelatedNetState",
		PluginPayload: share.DesiredState,
		Src:           event.Commander(),
		Dst:           event.Group(event.RoleQueryAndApply),
	}
}

// ApplyPayload bundles everything a QueryAndApply provider's Apply call
// needs — the merged interface and route views plus whether its own
// post-apply verification should run (rollback applies set NoVerify, spec
// §4.6: "noVerify skips any provider-side post-apply check the caller
// doesn't need"). A single event.PluginPayload can only carry one value, so
// this groups the two merge engine outputs the request task would
// otherwise have to send as two separate events.
type ApplyPayload struct {
	Ifaces    *nstate.MergedInterfaces
	Routes    *nstate.MergedRoutes
	NoVerify  bool
}

func requestApplyNetState(t *Task, share *ShareData) event.Event {
	return event.Event{
		Action: event.ActionRequest,
		Kind:   "ApplyNetState",
		PluginPayload: ApplyPayload{
			Ifaces: share.MergedIfaces,
			Routes: share.MergedRoutes,
		},
		Src: event.Commander(),
		Dst: event.Group(event.RoleQueryAndApply),
	}
}

func preApplyQueryRelatedCallback(t *Task, share *ShareData) (*event.Event, error) {
	current := mergeReplyStates(t.Replies)
	if share.DesiredState == nil {
		return nil, nerr.New(nerr.KindBug, "apply workflow has no desired state in share data")
	}

	merged, err := nstate.MergeInterfaces(share.DesiredState.Ifaces, current.Ifaces)
	if err != nil {
		return nil, err
	}
	routes, err := nstate.MergeRoutes(share.DesiredState.Routes, current.Routes, merged)
	if err != nil {
		return nil, err
	}

	share.MergedIfaces = merged
	share.MergedRoutes = routes
	share.PreApplyState = current
	return nil, nil
}

func applyNetStateCallback(t *Task, share *ShareData) (*event.Event, error) {
	// Apply failures are surfaced per-provider by the verify step that
	// follows; a provider error here is logged, not fatal, matching
	// original_source's "since we have verification process afterwards,
	// here we only log errors from plugins."
	return nil, nil
}

func postApplyVerifyCallback(t *Task, share *ShareData) (*event.Event, error) {
	observed := mergeReplyStates(t.Replies)
	if share.MergedIfaces == nil {
		return nil, nerr.New(nerr.KindBug, "apply workflow has no merged state in share data")
	}

	var diffs []nstate.FieldDiff
	for _, mi := range share.MergedIfaces.All() {
		if mi.ForVerify == nil {
			continue
		}
		got, _ := observed.Ifaces.Get(mi.ForVerify.Key())
		wanted := mi.ForVerify.Clone()
		wanted.SanitizeBeforeVerify(got)
		diffs = append(diffs, nstate.VerifyInterface(wanted, got)...)
	}

	if len(diffs) > 0 {
		msgs := make([]string, 0, len(diffs))
		for _, d := range diffs {
			msgs = append(msgs, d.String())
		}
		return nil, nerr.Errorf(nerr.KindVerificationError, "post-apply verification failed: %v", msgs)
	}

	reply := event.Event{
		UUID:   t.UUID,
		Action: event.ActionDone,
		Kind:   "ApplyNetStateReply",
		Src:    event.Daemon(),
		Dst:    event.User(),
	}
	return &reply, nil
}

// mergeReplyStates combines every provider's reply into a single
// NetworkState, merged by priority (spec §4.5 step 1: "merged by priority,
// higher priority wins per-field"). Replies are sorted ascending by the
// priority the provider returned from QueryRelated and folded in that
// order, so a higher-priority provider's interfaces/DNS/hostname/OVN
// entries are applied last and win any field the lower-priority provider
// also claimed. Without the sort, fold order would follow goroutine
// completion order in internal/daemon's localProviderConn and be
// effectively random.
func mergeReplyStates(replies []event.Event) *nstate.NetworkState {
	payloads := make([]provider.QueryReplyPayload, 0, len(replies))
	for _, r := range replies {
		p, ok := r.PluginPayload.(provider.QueryReplyPayload)
		if !ok || p.State == nil {
			continue
		}
		payloads = append(payloads, p)
	}
	sort.SliceStable(payloads, func(i, j int) bool { return payloads[i].Priority < payloads[j].Priority })

	result := nstate.NewNetworkState()
	for _, p := range payloads {
		s := p.State
		for _, iface := range s.Ifaces.All() {
			result.Ifaces.Push(iface)
		}
		result.Routes = append(result.Routes, s.Routes...)
		result.RouteRules = append(result.RouteRules, s.RouteRules...)
		if s.DNS != nil {
			result.DNS = s.DNS
		}
		if s.Hostname != "" {
			result.Hostname = s.Hostname
		}
		if s.OVN != nil {
			result.OVN = s.OVN
		}
	}
	return result
}
