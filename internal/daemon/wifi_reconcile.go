// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Wifi link reconciliation is a feature original_source carries
// (src/daemon/monitor/monitor_worker.rs ties a WiFi interface's carrier
// state to re-asserting or dropping its IP configuration) that spec.md's
// distillation left implicit in the generic link-monitor module. It is
// wired here as the one daemon-level consumer of internal/linkmonitor's
// LinkUp/LinkDown events.
package daemon

import (
	"context"

	"github.com/google/uuid"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/linkmonitor"
	"nipart.dev/nipart/internal/nstate"
)

// wifiReconcileLoop watches LinkUp/LinkDown events for saved WiFi
// interfaces and re-asserts or clears their IP configuration directly
// against the kernel provider, bypassing the full apply pipeline —
// carrier flaps on a single interface don't need a whole-state query/
// apply/verify round trip (spec §4.6 describes that pipeline for
// client-driven applies, not for link-level reconciliation).
func (d *Daemon) wifiReconcileLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.monitorOut:
			d.handleLinkEvent(ctx, e)
		}
	}
}

func (d *Daemon) handleLinkEvent(ctx context.Context, e event.Event) {
	payload, ok := e.UserPayload.(linkmonitor.LinkEventPayload)
	if !ok {
		return
	}

	d.savedWifiMu.Lock()
	saved, known := d.savedWifi[payload.Iface]
	d.savedWifiMu.Unlock()
	if !known {
		return
	}

	switch e.Kind {
	case "LinkUp":
		d.reapplyWifiIface(ctx, saved)
	case "LinkDown":
		cleared := saved.Clone()
		cleared.IPv4 = &nstate.IPv4Config{Enabled: false}
		cleared.IPv6 = &nstate.IPv6Config{Enabled: false}
		d.reapplyWifiIface(ctx, cleared)
	}
}

// reapplyWifiIface drives a single interface's configuration straight to
// the kernel provider, skipping post-apply verification — a link-state
// echo of a previous client-approved config needs no re-verification of
// the state the client already verified once.
func (d *Daemon) reapplyWifiIface(ctx context.Context, iface *nstate.Interface) {
	desired := nstate.NewNetworkState()
	desired.Ifaces.Push(iface)

	merged, err := nstate.MergeInterfaces(desired.Ifaces, nstate.NewInterfaces())
	if err != nil {
		d.log.Warn("wifi reconcile: merge failed", "iface", iface.Name, "error", err)
		return
	}
	routes, err := nstate.MergeRoutes(nil, nil, merged)
	if err != nil {
		d.log.Warn("wifi reconcile: route merge failed", "iface", iface.Name, "error", err)
		return
	}

	if err := d.kernelProv.Apply(ctx, merged, routes, true); err != nil {
		d.log.Warn("wifi reconcile: kernel apply failed", "iface", iface.Name, "error", err)
	}
}

// SaveWifiConfig remembers iface's last client-applied configuration so a
// later carrier transition can restore or clear it. The apply pipeline
// calls this for every WifiCfg-typed interface in a successfully applied
// desired state.
func (d *Daemon) SaveWifiConfig(iface *nstate.Interface) {
	if iface == nil || iface.Type != nstate.TypeWifiCfg {
		return
	}
	d.savedWifiMu.Lock()
	d.savedWifi[iface.Name] = iface.Clone()
	d.savedWifiMu.Unlock()

	d.monitor.Subscribe(linkmonitor.Rule{
		UUID:      uuid.New().String(),
		Iface:     iface.Name,
		Kind:      linkmonitor.KindUp,
		Requester: event.Daemon(),
	})
	d.monitor.Subscribe(linkmonitor.Rule{
		UUID:      uuid.New().String(),
		Iface:     iface.Name,
		Kind:      linkmonitor.KindDown,
		Requester: event.Daemon(),
	})
}
