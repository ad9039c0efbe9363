// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package wifi implements the WiFi provider's contract surface against
// wpa_supplicant (spec §3.1's Wifi variant; spec §6's provider protocol).
// Grounded on original_source/src/lib/no_daemon/wifi/dbus.rs: the
// original talks to wpa_supplicant over its D-Bus API
// (fi.w1.wpa_supplicant1), proxying CreateInterface/RemoveInterface/
// GetInterface plus the Interface/Network/BSS object interfaces.
//
// No D-Bus client exists anywhere in the retrieved pack (the closest
// candidate, godbus/dbus, is a real ecosystem choice but isn't a
// dependency the teacher or any sibling example carries), so this
// provider is deliberately left contract-only: it satisfies
// provider.QueryAndApply and provider.MonitorProvider so it wires into
// the registry and scheduler like any other provider, but Apply reports
// KindNoSupport for any WifiCfg interface, QueryRelated reports no state,
// and RegisterMonitorRule only logs the rule. This keeps
// the shape of a WiFi provider concrete and exercised (registry
// registration, role advertisement, monitor-rule plumbing) without
// inventing a hand-rolled D-Bus client on top of raw Unix-socket framing,
// which — unlike OVSDB's JSON-RPC — is not how the original project
// itself talks to wpa_supplicant.
package wifi

import (
	"context"

	"nipart.dev/nipart/internal/linkmonitor"
	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
)

// Priority is this provider's QueryRelated priority (spec §4.5 step 1).
const Priority = 40

// Provider is the WiFi provider. The daemon registers it with RoleMonitor
// and RoleQueryAndApply; it holds no supplicant connection (see the
// package doc).
type Provider struct {
	log *logging.Logger
}

// New returns a WiFi provider.
func New(log *logging.Logger) *Provider {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &Provider{log: log}
}

// QueryRelated reports no WiFi state until a supplicant transport exists.
func (p *Provider) QueryRelated(ctx context.Context, desired *nstate.NetworkState) (*nstate.NetworkState, int, error) {
	return nstate.NewNetworkState(), Priority, nil
}

// Apply refuses to drive WiFi state until a supplicant transport exists,
// but only for interfaces the merged state actually asks it to own —
// it must stay silent (not error) for every other interface so a mixed
// apply batch doesn't fail for a provider that has nothing to do.
func (p *Provider) Apply(ctx context.Context, ifaces *nstate.MergedInterfaces, routes *nstate.MergedRoutes, noVerify bool) error {
	for _, mi := range ifaces.All() {
		if mi.ForApply != nil && mi.ForApply.Type == nstate.TypeWifiCfg {
			return nerr.New(nerr.KindNoSupport, "wifi provider: no wpa_supplicant transport wired in")
		}
	}
	return nil
}

// RegisterMonitorRule accepts a link monitor rule so the WiFi-any
// per-type path (spec §9 open question) has a concrete registration point
// even before a supplicant transport can emit real BSS-association
// events.
func (p *Provider) RegisterMonitorRule(rule linkmonitor.Rule) error {
	p.log.Debug("wifi provider: monitor rule registered, no transport to emit from yet", "rule", rule.UUID)
	return nil
}
