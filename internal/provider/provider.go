// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package provider defines the contracts the core requires from a
// provider (spec §1 Non-goals: "only the contracts the core requires from
// them are specified"; spec §6 "Provider protocol"). Concrete providers
// (internal/provider/kernel, .../dhcp, .../wifi, .../ovsdb) implement
// whichever of these a given role needs.
package provider

import (
	"context"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/linkmonitor"
	"nipart.dev/nipart/internal/nstate"
)

// Info is what a provider advertises on connect (spec §6: "providers
// advertise {name, roles[]} on connect").
type Info struct {
	Name  string
	Roles []event.Role
}

// QueryAndApply is implemented by providers answering the apply pipeline's
// query-related and apply tasks (spec §6: "Kernel providers answer
// QueryRelatedNetState and ApplyNetState").
type QueryAndApply interface {
	// QueryRelated returns the slice of current state this provider owns
	// that intersects desired, plus a priority used to resolve conflicting
	// fields when the scheduler merges replies from multiple providers
	// (spec §4.5 step 1).
	QueryRelated(ctx context.Context, desired *nstate.NetworkState) (state *nstate.NetworkState, priority int, err error)

	// Apply drives merged interface/route state to the kernel or
	// userspace backend this provider owns (spec §4.5 step 2). noVerify
	// skips any provider-side post-apply check the caller doesn't need
	// (used by rollback applies, spec §4.6).
	Apply(ctx context.Context, ifaces *nstate.MergedInterfaces, routes *nstate.MergedRoutes, noVerify bool) error
}

// QueryReplyPayload is the event.Event.PluginPayload a QueryAndApply
// provider's QueryNetState/QueryRelatedNetState reply carries: the state it
// owns plus the priority the scheduler uses to resolve conflicting fields
// when merging several providers' replies into one NetworkState (spec §4.5
// step 1: "merged by priority, higher priority wins per-field").
type QueryReplyPayload struct {
	State    *nstate.NetworkState
	Priority int
}

// Dhcp is implemented by the DHCP provider's lease control surface (spec
// §6: "DHCP providers ... accept StartIfaceDhcp(iface)/StopIfaceDhcp(iface)").
type Dhcp interface {
	StartIfaceDhcp(ctx context.Context, iface string) error
	StopIfaceDhcp(ctx context.Context, iface string) error
}

// MonitorProvider is implemented by a provider that can accept a link
// monitor rule subscription forwarded from the daemon's own
// internal/linkmonitor.Monitor (spec §6: "Monitor providers accept
// RegisterMonitorRule and emit GotMonitorEvent").
type MonitorProvider interface {
	RegisterMonitorRule(rule linkmonitor.Rule) error
}
