// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package linkmonitor implements the Link Monitor (spec §3, §4.9):
// debounced link up/down notification subscribed to by rules, paused for
// the duration of an apply and resumed afterward. Grounded on the
// teacher's internal/monitor/service.go (RWMutex-guarded result map,
// ticker-driven background loop) generalized from "ping a route's
// monitor-ip" to "track kernel link state per interface and fan out
// subscribed rule events", and on
// original_source/src/daemon/monitor/monitor_worker.rs for the
// subscribe/debounce/pause semantics themselves.
package linkmonitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/logging"
)

// Kind is the link transition a rule watches for (spec §4.9).
type Kind int

const (
	KindUp Kind = iota
	KindDown
)

func (k Kind) String() string {
	if k == KindUp {
		return "up"
	}
	return "down"
}

// reemitWindow is the 30-second re-emission window (spec §4.9). It is a
// fixed constant; a Monitor offers no way to change it.
const reemitWindow = 30 * time.Second

// Rule binds an interface and link-state kind to the requester that should
// be notified (spec §4.9's MonitorRule). An interface name of "" combined
// with WifiAny selects the WiFi-any special case: per-type monitoring
// rather than per-interface (spec §9 open question).
type Rule struct {
	UUID      string
	Iface     string
	WifiAny   bool
	Kind      Kind
	Requester event.Address
}

func (r Rule) key() string {
	if r.WifiAny {
		return "wifi-any:" + r.Kind.String()
	}
	return r.Iface + ":" + r.Kind.String()
}

type linkState struct {
	isUp      bool
	changedAt time.Time
}

type subscription struct {
	rule        Rule
	lastEmitted time.Time
	hasEmitted  bool
}

// Monitor tracks per-interface link state and the rules subscribed to it,
// emitting a Link event on the out channel whenever a subscription's
// condition newly holds (spec §4.9).
type Monitor struct {
	log *logging.Logger
	out chan<- event.Event

	mu     sync.RWMutex
	links  map[string]linkState
	subs   map[string]*subscription // keyed by rule UUID
	paused bool
}

// New returns a Monitor that publishes Link events to out.
func New(log *logging.Logger, out chan<- event.Event) *Monitor {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &Monitor{
		log:   log,
		out:   out,
		links: make(map[string]linkState),
		subs:  make(map[string]*subscription),
	}
}

// NotifyLinkChange records a kernel link-state transition for iface and
// re-evaluates every subscribed rule against it (spec §4.9). Call this
// from the kernel provider's netlink listener.
func (m *Monitor) NotifyLinkChange(iface string, isUp bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, known := m.links[iface]
	now := time.Now()
	changed := !known || prev.isUp != isUp
	m.links[iface] = linkState{isUp: isUp, changedAt: now}

	if m.paused {
		return
	}
	for _, sub := range m.subs {
		if sub.rule.WifiAny || sub.rule.Iface != iface {
			continue
		}
		m.evaluateLocked(sub, isUp, now, changed)
	}
}

// Subscribe registers rule. If the current state already satisfies it, the
// matching event is emitted immediately (spec §4.9); otherwise the
// subscription waits for a future NotifyLinkChange.
func (m *Monitor) Subscribe(rule Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscription{rule: rule}
	m.subs[rule.UUID] = sub

	if rule.WifiAny {
		return // no current per-type state to check against; waits for the first report
	}
	if ls, known := m.links[rule.Iface]; known && !m.paused {
		m.evaluateLocked(sub, ls.isUp, time.Now(), true)
	}
}

// Unsubscribe removes a rule by UUID.
func (m *Monitor) Unsubscribe(uuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, uuid)
}

// evaluateLocked decides whether sub's condition is satisfied by
// (isUp, now) and, if so, emits — unless this rule already emitted the
// same kind within reemitWindow and the intervening state did not differ
// (spec §4.9: "at most once per rule unless the previous emission ... is
// older than 30 seconds or the intervening state differed").
func (m *Monitor) evaluateLocked(sub *subscription, isUp bool, now time.Time, stateDiffered bool) {
	satisfied := (sub.rule.Kind == KindUp && isUp) || (sub.rule.Kind == KindDown && !isUp)
	if !satisfied {
		return
	}
	if sub.hasEmitted && now.Sub(sub.lastEmitted) < reemitWindow && !stateDiffered {
		return
	}

	sub.lastEmitted = now
	sub.hasEmitted = true

	kindName := "LinkUp"
	if sub.rule.Kind == KindDown {
		kindName = "LinkDown"
	}
	evt := event.Event{
		UUID:        uuid.New(),
		Action:      event.ActionOneShot,
		Kind:        kindName,
		UserPayload: LinkEventPayload{RuleUUID: sub.rule.UUID, Iface: sub.rule.Iface},
		Src:         event.Daemon(),
		Dst:         sub.rule.Requester,
		CreatedAt:   now,
	}
	select {
	case m.out <- evt:
	default:
		m.log.Warn("link monitor: out channel full, dropping event", "rule", sub.rule.UUID, "iface", sub.rule.Iface)
	}
}

// Pause suspends emission for the duration of an apply (spec §4.5 step 2:
// "Link monitor is paused for the duration").
func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume re-enables emission and immediately re-evaluates every
// subscription against current state (spec §4.9: "resumed ... emitting
// current state for subscribed rules").
func (m *Monitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false

	now := time.Now()
	for _, sub := range m.subs {
		if sub.rule.WifiAny {
			continue
		}
		if ls, known := m.links[sub.rule.Iface]; known {
			m.evaluateLocked(sub, ls.isUp, now, true)
		}
	}
}

// NotifyWifiAny re-evaluates every WifiAny-scoped subscription against the
// aggregate "is any WiFi config active" observation supplied by the WiFi
// provider (spec §9 open question: WiFi-any disables per-interface
// monitoring in favor of this per-type path).
func (m *Monitor) NotifyWifiAny(anyActive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	now := time.Now()
	for _, sub := range m.subs {
		if sub.rule.WifiAny {
			m.evaluateLocked(sub, anyActive, now, true)
		}
	}
}

// LinkEventPayload is the UserPayload carried by a LinkUp/LinkDown
// notification: the rule it satisfies (spec §4.9's opaque client-supplied
// uuid field) and the interface observed.
type LinkEventPayload struct {
	RuleUUID string
	Iface    string
}
