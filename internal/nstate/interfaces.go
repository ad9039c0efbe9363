// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

// Interfaces is the keyed collection described in spec §3.2: a map keyed by
// kernel-visible name, a map keyed by (name, type) for user-space-only
// interfaces, and an insert_order list that preserves the client's
// dependency ordering so up-priority assignment (spec §4.2 step 6) can
// resolve nests deeper than four levels.
type Interfaces struct {
	Kernel      map[string]*Interface
	User        map[Key]*Interface
	InsertOrder []Key
}

// NewInterfaces returns an empty Interfaces collection.
func NewInterfaces() *Interfaces {
	return &Interfaces{
		Kernel: make(map[string]*Interface),
		User:   make(map[Key]*Interface),
	}
}

// Push inserts iface, routing it to Kernel or User depending on
// IsUserspace, and appending its key to InsertOrder if not already present.
func (ifs *Interfaces) Push(iface *Interface) {
	key := iface.Key()
	if _, seen := ifs.lookupOrderIndex(key); !seen {
		ifs.InsertOrder = append(ifs.InsertOrder, key)
	}
	if iface.IsUserspace() {
		ifs.User[key] = iface
	} else {
		ifs.Kernel[iface.Name] = iface
	}
}

func (ifs *Interfaces) lookupOrderIndex(key Key) (int, bool) {
	for i, k := range ifs.InsertOrder {
		if k == key {
			return i, true
		}
	}
	return -1, false
}

// Get looks up an interface by (name, type), checking both maps.
func (ifs *Interfaces) Get(key Key) (*Interface, bool) {
	if iface, ok := ifs.Kernel[key.Name]; ok && iface.Type.MatchType() == key.Type {
		return iface, true
	}
	if iface, ok := ifs.User[key]; ok {
		return iface, true
	}
	return nil, false
}

// GetByName looks up a kernel interface by name alone (used for route
// next-hop resolution, which only ever refers to kernel-visible
// interfaces).
func (ifs *Interfaces) GetByName(name string) (*Interface, bool) {
	iface, ok := ifs.Kernel[name]
	return iface, ok
}

// Remove deletes an interface by key and returns it, if present.
func (ifs *Interfaces) Remove(key Key) (*Interface, bool) {
	if iface, ok := ifs.Kernel[key.Name]; ok && iface.Type.MatchType() == key.Type {
		delete(ifs.Kernel, key.Name)
		return iface, true
	}
	if iface, ok := ifs.User[key]; ok {
		delete(ifs.User, key)
		return iface, true
	}
	return nil, false
}

// All returns every interface across both maps, in InsertOrder where
// possible, falling back to map iteration for anything not in InsertOrder
// (defensive; Push always maintains it).
func (ifs *Interfaces) All() []*Interface {
	out := make([]*Interface, 0, len(ifs.Kernel)+len(ifs.User))
	seen := make(map[Key]bool, len(ifs.InsertOrder))
	for _, key := range ifs.InsertOrder {
		if iface, ok := ifs.Get(key); ok {
			out = append(out, iface)
			seen[key] = true
		}
	}
	for _, iface := range ifs.Kernel {
		if !seen[iface.Key()] {
			out = append(out, iface)
		}
	}
	for key, iface := range ifs.User {
		if !seen[key] {
			out = append(out, iface)
		}
	}
	return out
}

// Clone returns a deep copy of the collection.
func (ifs *Interfaces) Clone() *Interfaces {
	out := NewInterfaces()
	for name, iface := range ifs.Kernel {
		out.Kernel[name] = iface.Clone()
	}
	for key, iface := range ifs.User {
		out.User[key] = iface.Clone()
	}
	out.InsertOrder = append([]Key(nil), ifs.InsertOrder...)
	return out
}

// DNSConfig is the top-level dns-resolver state entity (spec §6).
type DNSConfig struct {
	Servers []string `json:"server,omitempty" yaml:"server,omitempty"`
	Search  []string `json:"search,omitempty" yaml:"search,omitempty"`
}

func (c *DNSConfig) Clone() *DNSConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Servers = append([]string(nil), c.Servers...)
	out.Search = append([]string(nil), c.Search...)
	return &out
}

// OVNConfig is the top-level ovn state entity (spec §6); the core only
// round-trips it, it is not interpreted further (an OVN provider would own
// its semantics, out of this core's scope per spec §1).
type OVNConfig struct {
	BridgeMappings map[string]string `json:"bridge-mappings,omitempty" yaml:"bridge-mappings,omitempty"`
}

func (c *OVNConfig) Clone() *OVNConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.BridgeMappings != nil {
		out.BridgeMappings = make(map[string]string, len(c.BridgeMappings))
		for k, v := range c.BridgeMappings {
			out.BridgeMappings[k] = v
		}
	}
	return &out
}

// NetworkState is a full declarative snapshot (spec §6): the top-level
// document clients send as desired state, or that providers return as
// current state.
type NetworkState struct {
	Ifaces     *Interfaces
	Routes     []*RouteEntry
	RouteRules []*RouteRule
	DNS        *DNSConfig
	Hostname   string
	OVN        *OVNConfig
}

// NewNetworkState returns an empty NetworkState ready for Push.
func NewNetworkState() *NetworkState {
	return &NetworkState{Ifaces: NewInterfaces()}
}

// IsEmpty reports whether the state carries no interfaces, routes, rules,
// DNS, hostname, or OVN config.
func (s *NetworkState) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.Ifaces.Kernel) == 0 && len(s.Ifaces.User) == 0 &&
		len(s.Routes) == 0 && len(s.RouteRules) == 0 &&
		s.DNS == nil && s.Hostname == "" && s.OVN == nil
}

// Clone returns a deep copy of the state.
func (s *NetworkState) Clone() *NetworkState {
	if s == nil {
		return nil
	}
	out := &NetworkState{
		Ifaces:   s.Ifaces.Clone(),
		Hostname: s.Hostname,
		DNS:      s.DNS.Clone(),
		OVN:      s.OVN.Clone(),
	}
	for _, r := range s.Routes {
		out.Routes = append(out.Routes, r.Clone())
	}
	for _, r := range s.RouteRules {
		c := *r
		out.RouteRules = append(out.RouteRules, &c)
	}
	return out
}

// RouteRule is a policy-routing rule (spec §6 "route-rules" top-level
// entity). Its contents aren't subject to the merge/verify algebra this
// core specifies in depth; it round-trips opaquely alongside routes.
type RouteRule struct {
	IPFrom  string `json:"ip-from,omitempty" yaml:"ip-from,omitempty"`
	IPTo    string `json:"ip-to,omitempty" yaml:"ip-to,omitempty"`
	Priority int   `json:"priority,omitempty" yaml:"priority,omitempty"`
	TableID int    `json:"route-table,omitempty" yaml:"route-table,omitempty"`
}
