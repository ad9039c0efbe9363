// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package daemon wires the core packages — registry, event switch,
// workflow scheduler, commit store, lock vault, link monitor, and the
// sample providers — into the running nipartd process (spec §2's system
// overview, §5's actor model). No single teacher file does this; the shape
// here — a struct holding every long-lived component, a Run(ctx) that
// starts one goroutine per actor, and a ticker-plus-inbox select loop for
// the one serialized piece of state (the workflow Queue) — follows the
// teacher's own per-actor goroutine style (internal/monitor/service.go's
// stopCh/wg pattern, generalized to several actors sharing one context).
package daemon

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"nipart.dev/nipart/internal/commit"
	"nipart.dev/nipart/internal/daemonconfig"
	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/eswitch"
	"nipart.dev/nipart/internal/ipc"
	"nipart.dev/nipart/internal/linkmonitor"
	"nipart.dev/nipart/internal/lockvault"
	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
	"nipart.dev/nipart/internal/provider/dhcp"
	"nipart.dev/nipart/internal/provider/kernel"
	"nipart.dev/nipart/internal/provider/ovsdb"
	"nipart.dev/nipart/internal/provider/wifi"
	"nipart.dev/nipart/internal/registry"
	"nipart.dev/nipart/internal/workflow"
)

// Daemon owns every long-lived component of one nipartd process.
type Daemon struct {
	log   *logging.Logger
	cfg   daemonconfig.Config
	reg   *registry.Registry
	sw    *eswitch.Switch
	queue *workflow.Queue

	commits *commit.Store
	vault   *lockvault.Vault
	monitor *linkmonitor.Monitor
	stream  *ipc.EventStream

	kernelProv *kernel.Provider
	dhcpProv   *dhcp.Provider
	ovsProv    *ovsdb.Provider
	wifiProv   *wifi.Provider

	commanderInbox chan event.Event
	monitorOut     chan event.Event
	toAPI          chan event.Event
	pluginCount    int

	clientsMu sync.Mutex
	clients   map[uuid.UUID]*ipc.Conn

	savedWifiMu sync.Mutex
	savedWifi   map[string]*nstate.Interface

	listener *ipc.Listener
}

// New assembles a Daemon from cfg. It opens the commit store and lock
// vault on disk, builds the registry and event switch, and registers the
// four sample providers (spec §6) plus an in-process Commander connection.
func New(cfg daemonconfig.Config, log *logging.Logger) (*Daemon, error) {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "daemon: creating state dir %s", cfg.StateDir)
	}
	commits, err := commit.Open(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	vault, err := lockvault.Open(cfg.LockVaultPath)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	toAPI := make(chan event.Event, 64)
	conns := make(map[string]eswitch.Conn)
	sw := eswitch.New(reg, conns, toAPI, log.WithComponent("eswitch"))
	inbound := sw.Inbound()

	kernelProv := kernel.New(log.WithComponent("kernel"), "")
	dhcpProv := dhcp.New(log.WithComponent("dhcp"))
	ovsProv := ovsdb.New(log.WithComponent("ovsdb"), cfg.OvsdbSocketPath)
	wifiProv := wifi.New(log.WithComponent("wifi"))

	conns["kernel"] = &localProviderConn{name: "kernel", log: log.WithComponent("kernel"), inbound: inbound, qa: kernelProv}
	conns["dhcp"] = &localProviderConn{name: "dhcp", log: log.WithComponent("dhcp"), inbound: inbound, qa: dhcpProv, dhcpCtl: dhcpProv}
	conns["ovsdb"] = &localProviderConn{name: "ovsdb", log: log.WithComponent("ovsdb"), inbound: inbound, qa: ovsProv}
	conns["wifi"] = &localProviderConn{name: "wifi", log: log.WithComponent("wifi"), inbound: inbound, qa: wifiProv, monitorCtl: wifiProv}

	commanderInbox := make(chan event.Event, 64)
	conns["commander"] = &commanderConn{inbox: commanderInbox}

	infos := []registry.Info{
		{Name: "kernel", Roles: []event.Role{event.RoleKernel, event.RoleQueryAndApply}},
		{Name: "dhcp", Roles: []event.Role{event.RoleDhcp, event.RoleQueryAndApply}},
		{Name: "ovsdb", Roles: []event.Role{event.RoleOvs, event.RoleQueryAndApply}},
		{Name: "wifi", Roles: []event.Role{event.RoleMonitor, event.RoleQueryAndApply}},
		{Name: "commander", Roles: []event.Role{event.RoleCommander}},
	}
	if err := reg.Replace(infos); err != nil {
		return nil, err
	}

	monitorOut := make(chan event.Event, 32)
	mon := linkmonitor.New(log.WithComponent("linkmonitor"), monitorOut)

	return &Daemon{
		log:            log,
		cfg:            cfg,
		reg:            reg,
		sw:             sw,
		queue:          workflow.NewQueue(log.WithComponent("workflow")),
		commits:        commits,
		vault:          vault,
		monitor:        mon,
		stream:         ipc.NewEventStream(log.WithComponent("eventstream")),
		kernelProv:     kernelProv,
		dhcpProv:       dhcpProv,
		ovsProv:        ovsProv,
		wifiProv:       wifiProv,
		commanderInbox: commanderInbox,
		monitorOut:     monitorOut,
		toAPI:          toAPI,
		pluginCount:    len(reg.NamesForRole(event.RoleQueryAndApply)),
		clients:        make(map[uuid.UUID]*ipc.Conn),
		savedWifi:      make(map[string]*nstate.Interface),
	}, nil
}

// Run starts every actor goroutine and blocks accepting client connections
// until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	listener, err := ipc.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	defer listener.Close()

	go d.sw.Run(ctx)
	go d.schedulerLoop(ctx)
	go d.apiReplyLoop(ctx)
	go d.wifiReconcileLoop(ctx)

	if d.cfg.TrackListenAddr != "" {
		srv := &http.Server{Addr: d.cfg.TrackListenAddr, Handler: d.stream.Router()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.log.Error("track show listener failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	d.sw.BroadcastPluginInfo(ctx, d.reg.All())

	listener.Serve(ctx, d.handleClient)
	return nil
}

// handleClient reads framed events off one client connection until it
// errors or ctx is cancelled, recording which connection each request came
// from so its eventual reply can be routed back to the right socket
// (spec §6's IPC framing says nothing about multi-client correlation; this
// gateway-style map is the straightforward way to support more than one
// concurrent client on the single well-known socket).
func (d *Daemon) handleClient(ctx context.Context, c *ipc.Conn) {
	defer c.Close()
	for {
		e, err := c.Receive(ctx)
		if err != nil {
			if nerr.GetKind(err) != nerr.KindIpcClosed {
				d.log.Warn("ipc: client receive failed", "error", err)
			}
			return
		}
		d.clientsMu.Lock()
		d.clients[e.UUID] = c
		d.clientsMu.Unlock()

		select {
		case d.sw.Inbound() <- e:
		case <-ctx.Done():
			return
		}
	}
}

// apiReplyLoop drains events the switch routed to AddrUser, publishes each
// to the track-show stream, and sends terminal replies back to whichever
// client connection originated the matching request UUID.
func (d *Daemon) apiReplyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.toAPI:
			d.stream.Publish(e)

			d.clientsMu.Lock()
			c, ok := d.clients[e.UUID]
			if ok {
				delete(d.clients, e.UUID)
			}
			d.clientsMu.Unlock()

			if !ok {
				continue // no live client waiting (e.g. a rollback's own reply)
			}
			if err := c.Send(ctx, e); err != nil {
				d.log.Warn("ipc: failed to send reply to client", "error", err)
			}
		}
	}
}

// schedulerLoop is the Queue's single owner: every mutation — starting a
// new workflow, routing a provider reply, advancing every in-flight
// workflow on tick — happens on this one goroutine, so Queue itself never
// needs a mutex (internal/workflow/queue.go's own doc comment).
func (d *Daemon) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SchedulerTick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.commanderInbox:
			d.handleCommanderEvent(e)
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Daemon) handleCommanderEvent(e event.Event) {
	if e.Action == event.ActionRequest {
		d.startWorkflow(e)
		return
	}
	d.queue.AddReply(e)
}

// startWorkflow builds the workflow matching a client request's Kind,
// reusing the request's own UUID as the workflow's correlation id so every
// task request/reply and the eventual client-facing reply share one UUID
// end to end — no separate translation table is needed.
func (d *Daemon) startWorkflow(e event.Event) {
	var w *workflow.Workflow
	var share *workflow.ShareData

	switch e.Kind {
	case "QueryNetState":
		w, share = workflow.NewQueryWorkflow(e.UUID, d.pluginCount)
	case "ApplyNetState":
		desired, ok := e.UserPayload.(*nstate.NetworkState)
		if !ok || desired == nil {
			d.log.Error("apply request missing desired state", "request", e.UUID)
			return
		}
		w, share = workflow.NewApplyWorkflow(e.UUID, desired, d.pluginCount)
	default:
		d.log.Warn("commander: unsupported request kind", "kind", e.Kind)
		return
	}

	events, err := d.queue.Add(w, share)
	if err != nil {
		d.log.Error("commander: failed to start workflow", "kind", e.Kind, "error", err)
		return
	}
	d.monitor.Pause()
	d.forward(events)
}

func (d *Daemon) tick() {
	events, reaped, err := d.queue.Tick()
	if err != nil {
		d.log.Error("scheduler: tick failed", "error", err)
		return
	}
	d.forward(events)
	for _, r := range reaped {
		d.handleReaped(r)
	}
}

func (d *Daemon) forward(events []event.Event) {
	for _, e := range events {
		select {
		case d.sw.Inbound() <- e:
		default:
			d.log.Warn("scheduler: switch inbound full, dropping event", "kind", e.Kind)
		}
	}
}

// Close releases the lock vault's database handle. The commit store keeps
// no open handles, so there is nothing of it to close.
func (d *Daemon) Close() error {
	return d.vault.Close()
}
