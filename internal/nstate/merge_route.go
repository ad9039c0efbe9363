// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import "nipart.dev/nipart/internal/nerr"

// MergedRoutes is the Merge Engine's route-side output (spec §4.3).
type MergedRoutes struct {
	// Merged is the full resulting route table: desired routes layered over
	// current routes, with ignored/forbidden/absent entries already
	// resolved.
	Merged []*RouteEntry

	// Changed holds only the routes that differ from current — what the
	// apply task actually needs to add or remove.
	Changed []*RouteEntry

	// ChangedIfaces is the set of interface names that own at least one
	// changed route, so the apply task knows which interfaces to touch
	// even when the interface itself has no other pending change.
	ChangedIfaces map[string]bool
}

// MergeRoutes implements spec §4.3's MergedRoutes::new algorithm:
//  1. reject a non-absent desired route whose next-hop interface is
//     forbidden (see forbiddenNextHops), and drop current routes through
//     such an interface
//  2. validate unicast routes carry a next-hop
//  3. layer desired over current under the ordering key (metric excluded)
//  4. compute the changed set and the set of interfaces it touches
//
// Routes are not filtered by ignored interfaces.
func MergeRoutes(desiredRoutes, currentRoutes []*RouteEntry, ifaces *MergedInterfaces) (*MergedRoutes, error) {
	forbidden := forbiddenNextHops(ifaces)

	filteredDesired := make([]*RouteEntry, 0, len(desiredRoutes))
	for _, r := range desiredRoutes {
		if forbidden[r.NextHopInterface] && !r.IsAbsent() {
			return nil, nerr.Errorf(nerr.KindInvalidArgument,
				"route %s: next-hop interface %q is absent or has its IP stack disabled",
				r.Destination, r.NextHopInterface)
		}
		if err := r.sanitize(); err != nil {
			return nil, err
		}
		filteredDesired = append(filteredDesired, r)
	}

	current := make([]*RouteEntry, 0, len(currentRoutes))
	for _, r := range currentRoutes {
		if forbidden[r.NextHopInterface] {
			continue
		}
		current = append(current, r)
	}

	byKey := make(map[orderingKey]*RouteEntry, len(current))
	var order []orderingKey
	for _, r := range current {
		k := r.orderingKey()
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = r
	}

	changedKeys := make(map[orderingKey]bool)
	for _, r := range filteredDesired {
		k := r.orderingKey()
		if r.IsAbsent() {
			if _, existed := byKey[k]; existed {
				delete(byKey, k)
				changedKeys[k] = true
			}
			continue
		}
		if prior, existed := byKey[k]; !existed || !routeEqual(prior, r) {
			changedKeys[k] = true
		}
		if _, existed := byKey[k]; !existed {
			order = append(order, k)
		}
		byKey[k] = r
	}

	merged := make([]*RouteEntry, 0, len(order))
	changed := make([]*RouteEntry, 0, len(changedKeys))
	changedIfaces := make(map[string]bool)
	for _, k := range order {
		r, ok := byKey[k]
		if !ok {
			continue // removed by an absent wildcard
		}
		merged = append(merged, r)
		if changedKeys[k] {
			changed = append(changed, r)
			if r.NextHopInterface != "" {
				changedIfaces[r.NextHopInterface] = true
			}
		}
	}
	// Routes removed outright (absent wildcards with no surviving entry)
	// still mark their interface touched.
	for k := range changedKeys {
		if _, stillPresent := byKey[k]; !stillPresent {
			if iface := k.nextIface; iface != "" {
				changedIfaces[iface] = true
			}
		}
	}

	return &MergedRoutes{Merged: DeduplicateRoutes(merged), Changed: changed, ChangedIfaces: changedIfaces}, nil
}

func routeEqual(a, b *RouteEntry) bool {
	return *a == *b
}

// forbiddenNextHops returns the set of interface names a route's next-hop
// may not reference (spec §4.3): absent interfaces, and interfaces with
// both IPv4 and IPv6 disabled (a missing IPv4 or IPv6 section counts as
// disabled). An interface with only one stack disabled is not forbidden,
// for routes of either address family.
func forbiddenNextHops(ifaces *MergedInterfaces) map[string]bool {
	forbidden := make(map[string]bool)
	for _, mi := range ifaces.All() {
		if mi.Merged == nil {
			continue
		}
		name := mi.Merged.Name
		if mi.Merged.IsAbsent() {
			forbidden[name] = true
			continue
		}
		v4Disabled := mi.Merged.IPv4 == nil || !mi.Merged.IPv4.Enabled
		v6Disabled := mi.Merged.IPv6 == nil || !mi.Merged.IPv6.Enabled
		if v4Disabled && v6Disabled {
			forbidden[name] = true
		}
	}
	return forbidden
}
