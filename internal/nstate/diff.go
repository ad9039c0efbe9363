// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// FieldDiff is one leaf-level disagreement found while verifying applied
// state against observed state (spec §4.1's "verify" step: compare
// for_verify against what the provider reports back).
type FieldDiff struct {
	Interface string
	Path      string // dotted path, e.g. "bond.mode" or "ipv4.address[0].ip"
	Wanted    string
	Got       string
}

func (d FieldDiff) String() string {
	return fmt.Sprintf("%s: %s: wanted %q, got %q", d.Interface, d.Path, d.Wanted, d.Got)
}

// VerifyInterface walks wanted (the for_verify view) against got (what a
// provider reports as current), returning every leaf mismatch. Absent
// interfaces are verified only for continued absence.
func VerifyInterface(wanted, got *Interface) []FieldDiff {
	if wanted == nil {
		return nil
	}
	if wanted.IsAbsent() {
		if got != nil && !got.IsAbsent() {
			return []FieldDiff{{Interface: wanted.Name, Path: "state", Wanted: string(StateAbsent), Got: string(got.State)}}
		}
		return nil
	}
	if got == nil {
		return []FieldDiff{{Interface: wanted.Name, Path: "(interface)", Wanted: "present", Got: "absent"}}
	}

	var diffs []FieldDiff
	add := func(path, a, b string) {
		if a != b {
			diffs = append(diffs, FieldDiff{Interface: wanted.Name, Path: path, Wanted: a, Got: b})
		}
	}

	if wanted.State != "" && wanted.State != StateIgnore {
		add("state", string(wanted.State), string(got.State))
	}
	if wanted.MTU != 0 {
		add("mtu", fmt.Sprint(wanted.MTU), fmt.Sprint(got.MTU))
	}
	if wanted.MacAddress != "" {
		add("mac-address", strings.ToLower(wanted.MacAddress), strings.ToLower(got.MacAddress))
	}
	if wanted.Controller != "" {
		add("controller", wanted.Controller, got.Controller)
	}

	if wanted.IPv4 != nil {
		diffs = append(diffs, verifyIPv4(wanted.Name, wanted.IPv4, got.IPv4)...)
	}
	if wanted.IPv6 != nil {
		diffs = append(diffs, verifyIPv6(wanted.Name, wanted.IPv6, got.IPv6)...)
	}

	switch {
	case wanted.Bond != nil:
		diffs = append(diffs, verifyBond(wanted.Name, wanted.Bond, got.Bond)...)
	case wanted.LinuxBridge != nil:
		diffs = append(diffs, verifyBridge(wanted.Name, wanted.LinuxBridge, got.LinuxBridge)...)
	case wanted.Vlan != nil:
		diffs = append(diffs, verifyVlan(wanted.Name, wanted.Vlan, got.Vlan)...)
	case wanted.Wireguard != nil:
		diffs = append(diffs, verifyWireguard(wanted.Name, wanted.Wireguard, got.Wireguard)...)
	}

	return diffs
}

func verifyIPv4(name string, wanted, got *IPv4Config) []FieldDiff {
	if got == nil {
		got = &IPv4Config{}
	}
	var diffs []FieldDiff
	if wanted.Enabled != got.Enabled {
		diffs = append(diffs, FieldDiff{Interface: name, Path: "ipv4.enabled", Wanted: fmt.Sprint(wanted.Enabled), Got: fmt.Sprint(got.Enabled)})
	}
	diffs = append(diffs, verifyAddresses(name, "ipv4.address", wanted.Addresses, got.Addresses)...)
	return diffs
}

func verifyIPv6(name string, wanted, got *IPv6Config) []FieldDiff {
	if got == nil {
		got = &IPv6Config{}
	}
	var diffs []FieldDiff
	if wanted.Enabled != got.Enabled {
		diffs = append(diffs, FieldDiff{Interface: name, Path: "ipv6.enabled", Wanted: fmt.Sprint(wanted.Enabled), Got: fmt.Sprint(got.Enabled)})
	}
	diffs = append(diffs, verifyAddresses(name, "ipv6.address", wanted.Addresses, got.Addresses)...)
	return diffs
}

func verifyAddresses(iface, path string, wanted, got []Address) []FieldDiff {
	byIP := make(map[string]Address, len(got))
	for _, a := range got {
		byIP[a.IP] = a
	}
	var diffs []FieldDiff
	for _, w := range wanted {
		g, ok := byIP[w.IP]
		if !ok {
			diffs = append(diffs, FieldDiff{Interface: iface, Path: path, Wanted: w.IP, Got: "(missing)"})
			continue
		}
		if w.PrefixLength != g.PrefixLength {
			diffs = append(diffs, FieldDiff{
				Interface: iface,
				Path:      fmt.Sprintf("%s[%s].prefix-length", path, w.IP),
				Wanted:    fmt.Sprint(w.PrefixLength),
				Got:       fmt.Sprint(g.PrefixLength),
			})
		}
	}
	return diffs
}

func verifyBond(name string, wanted, got *BondConfig) []FieldDiff {
	if got == nil {
		got = &BondConfig{}
	}
	var diffs []FieldDiff
	if wanted.Mode != "" && wanted.Mode != got.Mode {
		diffs = append(diffs, FieldDiff{Interface: name, Path: "bond.mode", Wanted: wanted.Mode, Got: got.Mode})
	}
	if wanted.Ports != nil {
		if d := diffStringSets(name, "bond.port", wanted.Ports, got.Ports); d != nil {
			diffs = append(diffs, *d)
		}
	}
	return diffs
}

func verifyBridge(name string, wanted, got *LinuxBridgeConfig) []FieldDiff {
	if got == nil {
		got = &LinuxBridgeConfig{}
	}
	var diffs []FieldDiff
	if d := diffStringSets(name, "bridge.port", wanted.PortNames(), got.PortNames()); d != nil {
		diffs = append(diffs, *d)
	}
	if wanted.VlanFiltering != got.VlanFiltering {
		diffs = append(diffs, FieldDiff{Interface: name, Path: "bridge.vlan-filtering", Wanted: fmt.Sprint(wanted.VlanFiltering), Got: fmt.Sprint(got.VlanFiltering)})
	}
	return diffs
}

func verifyVlan(name string, wanted, got *VlanConfig) []FieldDiff {
	if got == nil {
		got = &VlanConfig{}
	}
	var diffs []FieldDiff
	if wanted.BaseIface != "" && wanted.BaseIface != got.BaseIface {
		diffs = append(diffs, FieldDiff{Interface: name, Path: "vlan.base-iface", Wanted: wanted.BaseIface, Got: got.BaseIface})
	}
	if wanted.ID != 0 && wanted.ID != got.ID {
		diffs = append(diffs, FieldDiff{Interface: name, Path: "vlan.id", Wanted: fmt.Sprint(wanted.ID), Got: fmt.Sprint(got.ID)})
	}
	return diffs
}

func verifyWireguard(name string, wanted, got *WireguardConfig) []FieldDiff {
	if got == nil {
		got = &WireguardConfig{}
	}
	var diffs []FieldDiff
	if wanted.ListenPort != 0 && wanted.ListenPort != got.ListenPort {
		diffs = append(diffs, FieldDiff{Interface: name, Path: "wireguard.listen-port", Wanted: fmt.Sprint(wanted.ListenPort), Got: fmt.Sprint(got.ListenPort)})
	}
	wantedKeys := make([]string, len(wanted.Peers))
	for i, p := range wanted.Peers {
		wantedKeys[i] = p.PublicKey
	}
	gotKeys := make([]string, len(got.Peers))
	for i, p := range got.Peers {
		gotKeys[i] = p.PublicKey
	}
	if d := diffStringSets(name, "wireguard.peer", wantedKeys, gotKeys); d != nil {
		diffs = append(diffs, *d)
	}
	return diffs
}

func diffStringSets(iface, path string, wanted, got []string) *FieldDiff {
	w := append([]string(nil), wanted...)
	g := append([]string(nil), got...)
	sort.Strings(w)
	sort.Strings(g)
	if strings.Join(w, ",") == strings.Join(g, ",") {
		return nil
	}
	return &FieldDiff{Interface: iface, Path: path, Wanted: strings.Join(w, ","), Got: strings.Join(g, ",")}
}

// RenderUnifiedDiff renders a human-readable unified diff between two YAML
// (or any line-oriented text) renderings of network state (spec §4.7).
// Neither the daemon nor the commit store calls it.
func RenderUnifiedDiff(fromLabel, toLabel, fromText, toText string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(fromText),
		B:        difflib.SplitLines(toText),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
