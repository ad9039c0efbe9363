// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package registry tracks which providers are connected and what roles
// (spec §3.7, §5) they advertise, so the Event Switch can route a
// Group-addressed event to the right set of connections and enforce the
// single-Commander invariant.
//
// The registry is one of the two shared-mutable-state exceptions spec §5
// calls out for this otherwise single-threaded-actor design: every
// provider connection goroutine reads it on every inbound event to decide
// where to forward, while the discovery goroutine writes it rarely (at
// startup, and whenever a provider reconnects). It is guarded by a
// sync.RWMutex rather than routed through a channel, matching the
// read-mostly shape of the teacher's monitor.Service results map.
package registry

import (
	"sync"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/nerr"
)

// Info describes one connected provider (spec §3.7's plugin info).
type Info struct {
	Name    string
	Roles   []event.Role
	Socket  string
}

func (i Info) hasRole(r event.Role) bool {
	for _, role := range i.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// Registry is the read-mostly shared provider directory.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Info
	byRole   map[event.Role][]string
	commander string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]Info),
		byRole: make(map[event.Role][]string),
	}
}

// Replace atomically swaps the entire provider directory, rebuilding the
// role index and re-deriving the single Commander (spec §5's "Commander
// uniqueness" invariant: more than one is a startup error, zero is a
// startup error).
func (r *Registry) Replace(infos []Info) error {
	byName := make(map[string]Info, len(infos))
	byRole := make(map[event.Role][]string)
	var commanders []string

	for _, info := range infos {
		byName[info.Name] = info
		for _, role := range info.Roles {
			byRole[role] = append(byRole[role], info.Name)
			if role == event.RoleCommander {
				commanders = append(commanders, info.Name)
			}
		}
	}

	if len(commanders) == 0 {
		return nerr.New(nerr.KindBug, "no commander plugin found")
	}
	if len(commanders) > 1 {
		return nerr.Errorf(nerr.KindBug, "only one commander plugin is supported, found %v", commanders)
	}

	r.mu.Lock()
	r.byName = byName
	r.byRole = byRole
	r.commander = commanders[0]
	r.mu.Unlock()
	return nil
}

// Commander returns the name of the single registered commander plugin.
func (r *Registry) Commander() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commander, r.commander != ""
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	return info, ok
}

// NamesForRole returns the names of every provider advertising the given
// role, used to fan a Group(role)-addressed event out to every recipient.
func (r *Registry) NamesForRole(role event.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byRole[role]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// All returns every registered provider's info.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.byName))
	for _, info := range r.byName {
		out = append(out, info)
	}
	return out
}

// Count reports how many providers are currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
