// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package eswitch implements the Event Switch (spec §3.7, §5): the
// central goroutine that receives events from the API listener and from
// every connected provider, and forwards each one to its addressed
// destination — unicast to a single provider, fanned out to every
// provider advertising a role, or routed to the sole Commander.
//
// Grounded on original_source/src/daemon/switch.rs's run_event_switch,
// rendered as a single-goroutine select loop over channels rather than
// Rust's FuturesUnordered, matching the teacher's monitor.Service
// ticker-select style (internal/monitor/service.go).
package eswitch

import (
	"context"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/registry"
)

// Conn is the minimal send capability the switch needs toward one
// provider connection; internal/ipc.Conn satisfies it.
type Conn interface {
	Send(ctx context.Context, e event.Event) error
}

// Switch is the event bus (spec §3.7): one inbound channel fed by the API
// listener and by every provider connection's receive loop, dispatched by
// destination address.
type Switch struct {
	log       *logging.Logger
	registry  *registry.Registry
	conns     map[string]Conn
	toAPI     chan<- event.Event
	inbound   chan event.Event
}

// New returns a Switch that dispatches events to conns (keyed by provider
// name) and forwards User-addressed events to toAPI.
func New(reg *registry.Registry, conns map[string]Conn, toAPI chan<- event.Event, log *logging.Logger) *Switch {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &Switch{
		log:      log,
		registry: reg,
		conns:    conns,
		toAPI:    toAPI,
		inbound:  make(chan event.Event, 64),
	}
}

// Inbound returns the channel provider connection goroutines and the API
// listener should send received events on.
func (s *Switch) Inbound() chan<- event.Event { return s.inbound }

// BroadcastPluginInfo announces the full provider roster to the Commander
// on startup (spec §5, grounded on switch.rs's one-shot UpdateAllPluginInfo
// send before entering the dispatch loop), so the Commander's read-mostly
// registry mirror (internal/registry.Registry) is populated before any
// workflow can run.
func (s *Switch) BroadcastPluginInfo(ctx context.Context, infos []registry.Info) {
	commanderName, ok := s.registry.Commander()
	if !ok {
		s.log.Error("no commander registered, cannot announce plugin roster")
		return
	}
	e := event.Event{
		Action:      event.ActionOneShot,
		Kind:        "UpdateAllPluginInfo",
		UserPayload: infos,
		Src:         event.Daemon(),
		Dst:         event.Group(event.RoleCommander),
	}
	if conn, ok := s.conns[commanderName]; ok {
		if err := conn.Send(ctx, e); err != nil {
			s.log.Warn("failed to announce plugin roster to commander", "error", err)
		}
	}
}

// Run drives the dispatch loop until ctx is cancelled. Each event read
// from Inbound() is routed to its Dst; an event whose Src equals its Dst
// is discarded as a dead loop (spec §5, switch.rs: "Discarding event which
// holds the same src and dst").
func (s *Switch) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.inbound:
			s.dispatch(ctx, e)
		}
	}
}

func (s *Switch) dispatch(ctx context.Context, e event.Event) {
	if e.Src.Equal(e.Dst) {
		s.log.Warn("discarding event with matching src and dst", "kind", e.Kind)
		return
	}

	switch e.Dst.Kind {
	case event.AddrUser:
		s.sendToAPI(e)
	case event.AddrDaemon:
		s.log.Error("BUG: event addressed to daemon reached the switch", "kind", e.Kind)
	case event.AddrCommander:
		s.sendToCommander(ctx, e)
	case event.AddrUnicast:
		s.sendTo(ctx, e.Dst.Name, e)
	case event.AddrGroup:
		s.sendToRole(ctx, e.Dst.GroupRole, e)
	case event.AddrAllPlugins:
		for name := range s.conns {
			s.sendTo(ctx, name, e)
		}
	case event.AddrAllPluginsNoCommander:
		commanderName, _ := s.registry.Commander()
		for name := range s.conns {
			if name == commanderName {
				continue
			}
			s.sendTo(ctx, name, e)
		}
	default:
		s.log.Error("BUG: event with unknown destination kind reached the switch", "kind", e.Kind)
	}
}

func (s *Switch) sendToAPI(e event.Event) {
	if s.toAPI == nil {
		return
	}
	select {
	case s.toAPI <- e:
	default:
		s.log.Warn("api channel full, dropping event", "kind", e.Kind)
	}
}

func (s *Switch) sendToCommander(ctx context.Context, e event.Event) {
	name, ok := s.registry.Commander()
	if !ok {
		s.log.Error("no commander registered, cannot route event", "kind", e.Kind)
		return
	}
	s.sendTo(ctx, name, e)
}

func (s *Switch) sendToRole(ctx context.Context, role event.Role, e event.Event) {
	for _, name := range s.registry.NamesForRole(role) {
		s.sendTo(ctx, name, e)
	}
}

func (s *Switch) sendTo(ctx context.Context, name string, e event.Event) {
	conn, ok := s.conns[name]
	if !ok {
		s.log.Warn("no connection for addressed provider", "name", name, "kind", e.Kind)
		return
	}
	if err := conn.Send(ctx, e); err != nil {
		s.log.Warn("failed to forward event", "name", name, "kind", e.Kind, "error", err)
	}
}
