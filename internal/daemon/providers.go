// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemon

import (
	"context"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/linkmonitor"
	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nstate"
	"nipart.dev/nipart/internal/provider"
	"nipart.dev/nipart/internal/workflow"
)

// localProviderConn is an eswitch.Conn for a provider that lives in the
// same process as the daemon (spec §6's "providers" are ordinarily
// separate processes reached over IPC; the four sample providers here
// implement the same provider.QueryAndApply/Dhcp/MonitorProvider
// interfaces directly in Go, so this adapter plays the role an
// ipc.Conn-backed Conn would play for an external plugin). Send spawns a
// goroutine per call so a slow provider never blocks the switch's single
// dispatch loop.
type localProviderConn struct {
	name    string
	log     *logging.Logger
	inbound chan<- event.Event

	qa         provider.QueryAndApply
	dhcpCtl    provider.Dhcp
	monitorCtl provider.MonitorProvider
}

func (c *localProviderConn) Send(ctx context.Context, e event.Event) error {
	go c.handle(ctx, e)
	return nil
}

func (c *localProviderConn) handle(ctx context.Context, e event.Event) {
	switch e.Kind {
	case "QueryNetState":
		c.reply(ctx, e, c.queryRelated(ctx, nil))
	case "QueryRelatedNetState":
		desired, _ := e.PluginPayload.(*nstate.NetworkState)
		c.reply(ctx, e, c.queryRelated(ctx, desired))
	case "ApplyNetState":
		c.reply(ctx, e, c.apply(ctx, e))
	case "RegisterMonitorRule":
		c.registerMonitorRule(e)
	default:
		c.log.Warn("provider connection received unsupported event", "provider", c.name, "kind", e.Kind)
	}
}

func (c *localProviderConn) queryRelated(ctx context.Context, desired *nstate.NetworkState) event.Event {
	if c.qa == nil {
		return event.Event{Kind: "Error"}
	}
	state, priority, err := c.qa.QueryRelated(ctx, desired)
	if err != nil {
		c.log.Warn("provider query failed", "provider", c.name, "error", err)
		return event.Event{Kind: "Error", UserPayload: err.Error()}
	}
	return event.Event{
		Kind:          "QueryNetStateReply",
		PluginPayload: provider.QueryReplyPayload{State: state, Priority: priority},
	}
}

func (c *localProviderConn) apply(ctx context.Context, req event.Event) event.Event {
	payload, ok := req.PluginPayload.(workflow.ApplyPayload)
	if !ok {
		c.log.Error("apply request carried no ApplyPayload", "provider", c.name)
		return event.Event{Kind: "Error"}
	}
	if c.qa == nil {
		return event.Event{Kind: "ApplyNetStateReply"}
	}
	if err := c.qa.Apply(ctx, payload.Ifaces, payload.Routes, payload.NoVerify); err != nil {
		// Logged, not fatal: the apply workflow's verify step is what
		// actually fails the pipeline (apply_workflow.go's
		// applyNetStateCallback comment).
		c.log.Warn("provider apply failed", "provider", c.name, "error", err)
	}

	if c.dhcpCtl != nil && payload.Ifaces != nil {
		c.reconcileDhcp(ctx, payload.Ifaces)
	}
	return event.Event{Kind: "ApplyNetStateReply"}
}

// reconcileDhcp starts or stops the lease client per interface according
// to its merged Ipv4.Dhcp flag (spec §6: "DHCP providers observe the
// merged interface state and start/stop leases accordingly").
func (c *localProviderConn) reconcileDhcp(ctx context.Context, ifaces *nstate.MergedInterfaces) {
	for _, mi := range ifaces.All() {
		if mi.ForApply == nil || mi.ForApply.IPv4 == nil {
			continue
		}
		var err error
		if mi.ForApply.IPv4.Dhcp {
			err = c.dhcpCtl.StartIfaceDhcp(ctx, mi.ForApply.Name)
		} else {
			err = c.dhcpCtl.StopIfaceDhcp(ctx, mi.ForApply.Name)
		}
		if err != nil {
			c.log.Warn("dhcp reconcile failed", "iface", mi.ForApply.Name, "error", err)
		}
	}
}

func (c *localProviderConn) registerMonitorRule(e event.Event) {
	if c.monitorCtl == nil {
		return
	}
	rule, ok := e.PluginPayload.(linkmonitor.Rule)
	if !ok {
		c.log.Warn("RegisterMonitorRule event carried wrong payload type", "provider", c.name)
		return
	}
	if err := c.monitorCtl.RegisterMonitorRule(rule); err != nil {
		c.log.Warn("monitor rule registration failed", "provider", c.name, "error", err)
	}
}

func (c *localProviderConn) reply(ctx context.Context, req event.Event, reply event.Event) {
	reply.UUID = req.UUID
	reply.Action = event.ActionDone
	reply.Src = event.Unicast(c.name)
	reply.Dst = event.Commander()

	select {
	case c.inbound <- reply:
	case <-ctx.Done():
	}
}

// commanderConn is the eswitch.Conn registered under the "commander" name
// (event.RoleCommander), bridging the switch's routing to the scheduler's
// own inbox. It is what lets the Commander actor participate in the
// registry/switch exactly like a real out-of-process provider connection
// would, even though it never leaves this binary.
type commanderConn struct {
	inbox chan<- event.Event
}

func (c *commanderConn) Send(ctx context.Context, e event.Event) error {
	select {
	case c.inbox <- e:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
