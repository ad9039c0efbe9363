// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import "nipart.dev/nipart/internal/nerr"

// RouteType classifies a RouteEntry (spec §3.4).
type RouteType string

const (
	RouteUnicast    RouteType = "unicast"
	RouteBlackhole  RouteType = "blackhole"
	RouteUnreachable RouteType = "unreachable"
	RouteProhibit   RouteType = "prohibit"
)

// RouteEntry is a single route (spec §3.4).
type RouteEntry struct {
	Destination      string         `json:"destination" yaml:"destination"`
	NextHopInterface string         `json:"next-hop-interface,omitempty" yaml:"next-hop-interface,omitempty"`
	NextHopAddress   string         `json:"next-hop-address,omitempty" yaml:"next-hop-address,omitempty"`
	Metric           int64          `json:"metric,omitempty" yaml:"metric,omitempty"`
	TableID          uint32         `json:"table-id,omitempty" yaml:"table-id,omitempty"`
	Weight           uint16         `json:"weight,omitempty" yaml:"weight,omitempty"` // ECMP weight [1,256]
	RouteType        RouteType      `json:"route-type,omitempty" yaml:"route-type,omitempty"`
	Source           string         `json:"source,omitempty" yaml:"source,omitempty"`
	MTU              uint32         `json:"mtu,omitempty" yaml:"mtu,omitempty"`
	Cwnd             uint32         `json:"cwnd,omitempty" yaml:"cwnd,omitempty"`
	InitCwnd         uint32         `json:"initcwnd,omitempty" yaml:"initcwnd,omitempty"`
	InitRwnd         uint32         `json:"initrwnd,omitempty" yaml:"initrwnd,omitempty"`
	QuickAck         bool           `json:"quickack,omitempty" yaml:"quickack,omitempty"`
	AdvMSS           uint32         `json:"advmss,omitempty" yaml:"advmss,omitempty"`
	State            InterfaceState `json:"state,omitempty" yaml:"state,omitempty"` // Absent marks a deletion wildcard
}

// Clone returns a copy of the route entry.
func (r *RouteEntry) Clone() *RouteEntry {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// effectiveRouteType defaults an empty RouteType to Unicast.
func (r *RouteEntry) effectiveRouteType() RouteType {
	if r.RouteType == "" {
		return RouteUnicast
	}
	return r.RouteType
}

// IsAbsent reports whether this entry is a deletion wildcard.
func (r *RouteEntry) IsAbsent() bool { return r.State == StateAbsent }

// orderingKey is the tuple used for duplicate detection and for the
// changed_routes set (spec §3.4). Metric is not part of the key, so two
// routes that differ only in metric share a key and count as duplicates.
type orderingKey struct {
	destination string
	nextIface   string
	nextAddr    string
	tableID     uint32
	routeType   RouteType
}

func (r *RouteEntry) orderingKey() orderingKey {
	return orderingKey{
		destination: r.Destination,
		nextIface:   r.NextHopInterface,
		nextAddr:    r.NextHopAddress,
		tableID:     r.TableID,
		routeType:   r.effectiveRouteType(),
	}
}

// EqualUnderOrderingKey reports whether two routes share the ordering key
// (spec §3.4): "equality under this key detects duplicates." Metric is
// deliberately excluded.
func (r *RouteEntry) EqualUnderOrderingKey(o *RouteEntry) bool {
	return r.orderingKey() == o.orderingKey()
}

// sanitize validates a single route entry (spec §4.1/§4.3: "route next-hop
// absence only for non-unicast route types", ECMP weight range).
func (r *RouteEntry) sanitize() error {
	if r.IsAbsent() {
		return nil // wildcards used only for deletion carry no other constraints
	}
	if r.effectiveRouteType() == RouteUnicast {
		if r.NextHopInterface == "" && r.NextHopAddress == "" {
			return nerr.Errorf(nerr.KindInvalidArgument,
				"unicast route to %s requires a next-hop interface or address", r.Destination)
		}
	}
	if r.Weight != 0 && (r.Weight < 1 || r.Weight > 256) {
		return nerr.Errorf(nerr.KindInvalidArgument,
			"route to %s: ecmp weight %d out of range [1,256]", r.Destination, r.Weight)
	}
	return nil
}

// DeduplicateRoutes removes routes that are duplicates under the ordering
// key, keeping the first occurrence.
func DeduplicateRoutes(routes []*RouteEntry) []*RouteEntry {
	seen := make(map[orderingKey]bool, len(routes))
	out := make([]*RouteEntry, 0, len(routes))
	for _, r := range routes {
		k := r.orderingKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
