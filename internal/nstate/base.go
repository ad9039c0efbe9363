// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nstate implements the State Model (spec §3) and Merge Engine
// (spec §4.1-§4.3): a typed representation of interfaces, IP configuration,
// routes, and DNS, together with the merge/diff/sanitize/verify algebra
// every interface variant provides, and the MergedNetworkState the apply
// pipeline is built from.
//
// Interface is modeled as a single struct carrying a BaseInterface plus one
// optional type-specific configuration block per variant (Bond, Vlan,
// LinuxBridge, ...), mirroring the shape of the on-wire YAML/JSON state
// document itself (spec §6) rather than a closed Rust-style enum — the
// idiomatic Go rendition of spec §3.1's "tagged variant" requirement.
package nstate

import "nipart.dev/nipart/internal/nerr"

// InterfaceType is the variant discriminator (spec §3.1).
type InterfaceType string

const (
	TypeEthernet     InterfaceType = "ethernet"
	TypeVeth         InterfaceType = "veth"
	TypeBond         InterfaceType = "bond"
	TypeLinuxBridge  InterfaceType = "linux-bridge"
	TypeOvsBridge    InterfaceType = "ovs-bridge"
	TypeOvsInterface InterfaceType = "ovs-interface"
	TypeVlan         InterfaceType = "vlan"
	TypeLoopback     InterfaceType = "loopback"
	TypeDummy        InterfaceType = "dummy"
	TypeWireguard    InterfaceType = "wireguard"
	TypeWifiPhy      InterfaceType = "wifi-phy"
	TypeWifiCfg      InterfaceType = "wifi-cfg"
	TypeUnknown      InterfaceType = "unknown"
)

// MatchType collapses Ethernet and Veth into one bucket for lookups, per
// spec §3.1 ("Ethernet and Veth are unified to Ethernet for matching").
func (t InterfaceType) MatchType() InterfaceType {
	if t == TypeVeth {
		return TypeEthernet
	}
	return t
}

// IsUserspace reports whether interfaces of this type have no kernel index
// and live only in user-space stores (spec §3.1).
func (t InterfaceType) IsUserspace() bool {
	switch t {
	case TypeOvsBridge, TypeWifiCfg:
		return true
	default:
		return false
	}
}

// InterfaceState is the interface's desired or observed activation state.
type InterfaceState string

const (
	StateUp     InterfaceState = "up"
	StateDown   InterfaceState = "down"
	StateAbsent InterfaceState = "absent"
	StateIgnore InterfaceState = "ignore"
)

// ControllerType names the kind of aggregation an interface's Controller
// field refers to.
type ControllerType string

const (
	ControllerBond        ControllerType = "bond"
	ControllerLinuxBridge ControllerType = "linux-bridge"
	ControllerOvsBridge   ControllerType = "ovs-bridge"
	ControllerVrf         ControllerType = "vrf"
)

// BaseInterface carries the attributes common to every interface variant
// (spec §3.1).
type BaseInterface struct {
	Name                string         `json:"name" yaml:"name"`
	Type                InterfaceType  `json:"type" yaml:"type"`
	IfaceIndex          int            `json:"-" yaml:"-"` // runtime-only; cleared on sanitize
	State               InterfaceState `json:"state,omitempty" yaml:"state,omitempty"`
	Controller          string         `json:"controller,omitempty" yaml:"controller,omitempty"`
	ControllerType      ControllerType `json:"controller-type,omitempty" yaml:"controller-type,omitempty"`
	MacAddress          string         `json:"mac-address,omitempty" yaml:"mac-address,omitempty"`
	PermanentMacAddress string         `json:"permanent-mac-address,omitempty" yaml:"permanent-mac-address,omitempty"`
	MTU                 int            `json:"mtu,omitempty" yaml:"mtu,omitempty"`
	MinMTU              int            `json:"min-mtu,omitempty" yaml:"min-mtu,omitempty"`
	MaxMTU              int            `json:"max-mtu,omitempty" yaml:"max-mtu,omitempty"`
	IPv4                *IPv4Config    `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
	IPv6                *IPv6Config    `json:"ipv6,omitempty" yaml:"ipv6,omitempty"`
	UpPriority          uint32         `json:"-" yaml:"-"` // computed by the merge engine
}

// Interface is the full tagged-variant representation: BaseInterface plus
// at most one non-nil type-specific configuration block, selected by Type.
type Interface struct {
	BaseInterface `json:",inline" yaml:",inline"`

	Bond        *BondConfig        `json:"bond,omitempty" yaml:"bond,omitempty"`
	LinuxBridge *LinuxBridgeConfig `json:"bridge,omitempty" yaml:"bridge,omitempty"`
	OvsBridge   *OvsBridgeConfig   `json:"ovs-bridge,omitempty" yaml:"ovs-bridge,omitempty"`
	Vlan        *VlanConfig        `json:"vlan,omitempty" yaml:"vlan,omitempty"`
	Wireguard   *WireguardConfig   `json:"wireguard,omitempty" yaml:"wireguard,omitempty"`
	Wifi        *WifiConfig        `json:"wifi,omitempty" yaml:"wifi,omitempty"`
}

// Key returns the (name, type) key used for the user_ifaces map and for
// insert_order (spec §3.2), matching Ethernet and Veth together.
type Key struct {
	Name string
	Type InterfaceType
}

func (i *Interface) Key() Key {
	return Key{Name: i.Name, Type: i.Type.MatchType()}
}

// CanHaveIP reports whether this interface may carry an IP stack (spec
// §3.1): true iff there is no controller, or the type is OvsInterface, or
// the controller type is Vrf.
func (i *Interface) CanHaveIP() bool {
	if i.Controller == "" {
		return true
	}
	if i.Type == TypeOvsInterface {
		return true
	}
	return i.ControllerType == ControllerVrf
}

// IsUserspace reports whether this interface lives only in user-space
// stores (spec §3.1).
func (i *Interface) IsUserspace() bool {
	return i.Type.IsUserspace()
}

// Parent returns the name of the interface this one is logically nested
// under for up-priority propagation (spec §4.2 step 6): a VLAN's base
// interface, or its Controller otherwise.
func (i *Interface) Parent() string {
	if i.Vlan != nil && i.Vlan.BaseIface != "" {
		return i.Vlan.BaseIface
	}
	return i.Controller
}

// Clone returns a deep copy of the interface. Every view held by a
// MergedInterface (desired/current/merged/for_apply/for_verify, spec §9
// DESIGN NOTES) is an independently owned snapshot produced this way;
// mutating one must never affect another.
func (i *Interface) Clone() *Interface {
	if i == nil {
		return nil
	}
	out := *i
	out.IPv4 = i.IPv4.Clone()
	out.IPv6 = i.IPv6.Clone()
	out.Bond = i.Bond.Clone()
	out.LinuxBridge = i.LinuxBridge.Clone()
	out.OvsBridge = i.OvsBridge.Clone()
	out.Vlan = i.Vlan.Clone()
	out.Wireguard = i.Wireguard.Clone()
	out.Wifi = i.Wifi.Clone()
	return &out
}

// IsAbsent reports whether the interface is marked for removal.
func (i *Interface) IsAbsent() bool { return i.State == StateAbsent }

// AbsentStub returns the minimal {name, type, state} representation an
// Absent interface carries after deserialization (spec §3.1 invariant).
func AbsentStub(name string, t InterfaceType) *Interface {
	return &Interface{BaseInterface: BaseInterface{Name: name, Type: t, State: StateAbsent}}
}

// validateMTU checks mtu against [min_mtu, max_mtu] (spec §4.1 sanitize).
func (i *Interface) validateMTU() error {
	if i.MTU == 0 {
		return nil
	}
	if i.MinMTU != 0 && i.MTU < i.MinMTU {
		return nerr.Errorf(nerr.KindInvalidArgument,
			"interface %s: mtu %d is below min-mtu %d", i.Name, i.MTU, i.MinMTU)
	}
	if i.MaxMTU != 0 && i.MTU > i.MaxMTU {
		return nerr.Errorf(nerr.KindInvalidArgument,
			"interface %s: mtu %d exceeds max-mtu %d", i.Name, i.MTU, i.MaxMTU)
	}
	return nil
}
