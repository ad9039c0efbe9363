// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import "nipart.dev/nipart/internal/nerr"

// Merge returns a new Interface where fields present in new override self,
// and fields new leaves unset retain self's values (spec §4.1). A zero
// value (empty string, 0, nil pointer) on new is "absent"; this is the
// field-wise override contract spec §4.1 requires, rendered directly
// instead of via the marshal-overlay-remarshal technique spec §9 DESIGN
// NOTES allows as an alternative (that technique is used instead for the
// daemon-config layer, internal/daemonconfig, where HCL's dynamic decoding
// already produces the overlay structure for free).
func (i *Interface) Merge(new *Interface) *Interface {
	out := i.Clone()
	if new == nil {
		return out
	}

	if new.Name != "" {
		out.Name = new.Name
	}
	if new.Type != "" {
		out.Type = new.Type
	}
	if new.State != "" {
		out.State = new.State
	}
	if new.Controller != "" {
		out.Controller = new.Controller
	}
	if new.ControllerType != "" {
		out.ControllerType = new.ControllerType
	}
	if new.MacAddress != "" {
		out.MacAddress = new.MacAddress
	}
	if new.PermanentMacAddress != "" {
		out.PermanentMacAddress = new.PermanentMacAddress
	}
	if new.MTU != 0 {
		out.MTU = new.MTU
	}
	if new.MinMTU != 0 {
		out.MinMTU = new.MinMTU
	}
	if new.MaxMTU != 0 {
		out.MaxMTU = new.MaxMTU
	}
	if new.IPv4 != nil {
		out.IPv4 = new.IPv4.Clone()
	}
	if new.IPv6 != nil {
		out.IPv6 = new.IPv6.Clone()
	}

	if new.Bond != nil {
		out.Bond = new.Bond.Clone()
	}
	if new.LinuxBridge != nil {
		out.LinuxBridge = new.LinuxBridge.Clone()
	}
	if new.OvsBridge != nil {
		out.OvsBridge = new.OvsBridge.Clone()
	}
	if new.Vlan != nil {
		out.Vlan = new.Vlan.Clone()
	}
	if new.Wireguard != nil {
		out.Wireguard = new.Wireguard.Clone()
	}
	if new.Wifi != nil {
		out.Wifi = new.Wifi.Clone()
	}

	out.postMerge(i)
	return out
}

// postMerge runs type-specific post-merge hooks (spec §4.1): VLAN's
// reorder_headers defaults to true; WiFi SSID is inherited from the prior
// value if the merged result left it empty.
func (i *Interface) postMerge(prior *Interface) {
	if i.Vlan != nil {
		i.Vlan.postMerge()
	}
	if i.Wifi != nil && i.Wifi.SSID == "" && prior != nil && prior.Wifi != nil {
		i.Wifi.SSID = prior.Wifi.SSID
	}
}

// Sanitize validates the interface against constraints and clears
// runtime-only fields (spec §4.1). current is the pre-existing interface
// of the same key, if any (nil on first creation) — required to know
// whether this is a creation (bond mode / VLAN id+base become mandatory)
// or an update of an already-existing interface.
func (i *Interface) Sanitize(current *Interface) error {
	if i.IsAbsent() {
		*i = *AbsentStub(i.Name, i.Type)
		return nil
	}

	if err := i.validateMTU(); err != nil {
		return err
	}
	if err := sanitizeIPv4(i.Name, i.IPv4); err != nil {
		return err
	}
	if err := sanitizeIPv6(i.Name, i.IPv6); err != nil {
		return err
	}
	if !i.CanHaveIP() {
		i.IPv4 = nil
		i.IPv6 = nil
	}

	creating := current == nil
	switch i.Type {
	case TypeBond:
		if i.Bond == nil || i.Bond.Mode == "" {
			if creating {
				return nerr.Errorf(nerr.KindInvalidArgument,
					"bond %s: mode is mandatory on creation", i.Name)
			}
		}
	case TypeVlan:
		if creating {
			if i.Vlan == nil || i.Vlan.BaseIface == "" || i.Vlan.ID == 0 {
				return nerr.Errorf(nerr.KindInvalidArgument,
					"vlan %s: base-iface and id are required on creation", i.Name)
			}
		}
	case TypeLinuxBridge:
		if i.LinuxBridge != nil {
			if err := sanitizeBridgeSTP(i.Name, i.LinuxBridge); err != nil {
				return err
			}
			reconcileGroupForwardMask(i.LinuxBridge)
		}
	}

	// Clear runtime-only fields.
	i.IfaceIndex = 0
	i.UpPriority = 0

	return nil
}

func sanitizeBridgeSTP(name string, c *LinuxBridgeConfig) error {
	if c.STP == nil || !c.STP.Enabled {
		return nil
	}
	if c.STP.HelloTime != 0 && (c.STP.HelloTime < 1 || c.STP.HelloTime > 10) {
		return nerr.Errorf(nerr.KindInvalidArgument,
			"bridge %s: stp hello-time %d out of range [1,10]", name, c.STP.HelloTime)
	}
	if c.STP.ForwardDelay != 0 && (c.STP.ForwardDelay < 6 || c.STP.ForwardDelay > 40) {
		return nerr.Errorf(nerr.KindInvalidArgument,
			"bridge %s: stp forward-delay %d out of range [6,40]", name, c.STP.ForwardDelay)
	}
	if c.STP.MaxAge != 0 && (c.STP.MaxAge < 2 || c.STP.MaxAge > 30) {
		return nerr.Errorf(nerr.KindInvalidArgument,
			"bridge %s: stp max-age %d out of range [2,30]", name, c.STP.MaxAge)
	}
	return nil
}

// reconcileGroupForwardMask aliases group-fwd-mask onto group-forward-mask
// when only one of the two equivalent knobs was set (spec §4.1: "bridge
// group-forward-mask aliases reconciled").
func reconcileGroupForwardMask(c *LinuxBridgeConfig) {
	if c.GroupForwardMask == 0 && c.GroupFwdMaskAlias != 0 {
		c.GroupForwardMask = c.GroupFwdMaskAlias
	}
	c.GroupFwdMaskAlias = c.GroupForwardMask
}

// SanitizeBeforeVerify smooths kernel quirks immediately before
// verification (spec §4.1): canonical bridge port reordering and
// omitted-lifetime fill-in from current. It does not adjust multicast
// timers and does not hide secrets; an unset dhcp is already false because
// Dhcp is a plain bool.
func (i *Interface) SanitizeBeforeVerify(current *Interface) {
	if i.LinuxBridge != nil {
		canonicalizePortOrder(i.LinuxBridge)
	}
	if current == nil {
		return
	}
	if i.IPv4 != nil && current.IPv4 != nil {
		fillLifeTimes(i.IPv4.Addresses, current.IPv4.Addresses)
	}
	if i.IPv6 != nil && current.IPv6 != nil {
		fillLifeTimes(i.IPv6.Addresses, current.IPv6.Addresses)
	}
}

func canonicalizePortOrder(c *LinuxBridgeConfig) {
	ports := append([]BridgePort(nil), c.Ports...)
	for a := 0; a < len(ports); a++ {
		for b := a + 1; b < len(ports); b++ {
			if ports[b].Name < ports[a].Name {
				ports[a], ports[b] = ports[b], ports[a]
			}
		}
	}
	c.Ports = ports
}

// fillLifeTimes fills an address's omitted lifetime fields from the
// matching current address (matched by IP), preventing a spurious diff
// when the desired document simply didn't repeat a dynamic lifetime.
func fillLifeTimes(desired []Address, current []Address) {
	byIP := make(map[string]Address, len(current))
	for _, a := range current {
		byIP[a.IP] = a
	}
	for i := range desired {
		if desired[i].ValidLifeTime == "" {
			if cur, ok := byIP[desired[i].IP]; ok {
				desired[i].ValidLifeTime = cur.ValidLifeTime
				if desired[i].PreferredLifeTime == "" {
					desired[i].PreferredLifeTime = cur.PreferredLifeTime
				}
			}
		}
	}
}

// IncludeDiffContext pulls in identifying context when emitting an
// incremental diff (spec §4.1): VLAN base-iface/id when any VLAN field
// changed, SSID when any WiFi field changed, bridge port names and VLAN
// filtering when any port config changed.
func (i *Interface) IncludeDiffContext(desired, current *Interface) {
	if desired.Vlan != nil && i.Vlan == nil && current != nil {
		i.Vlan = current.Vlan.Clone()
	}
	if desired.Wifi != nil && i.Wifi == nil && current != nil {
		i.Wifi = current.Wifi.Clone()
	}
	if desired.LinuxBridge != nil && current != nil && current.LinuxBridge != nil {
		if i.LinuxBridge == nil {
			i.LinuxBridge = &LinuxBridgeConfig{}
		}
		if i.LinuxBridge.Ports == nil {
			i.LinuxBridge.Ports = append([]BridgePort(nil), current.LinuxBridge.Ports...)
		}
		i.LinuxBridge.VlanFiltering = current.LinuxBridge.VlanFiltering
	}
}

// IncludeRevertContext re-injects state needed to undo a change while
// building the revert payload (spec §4.1): e.g. re-adding previous static
// addresses when reverting an IP disable.
func (i *Interface) IncludeRevertContext(desired, preApply *Interface) {
	if preApply == nil {
		return
	}
	if desired.IPv4 != nil && !desired.IPv4.Enabled && preApply.IPv4 != nil && preApply.IPv4.Enabled {
		i.IPv4 = preApply.IPv4.Clone()
	}
	if desired.IPv6 != nil && !desired.IPv6.Enabled && preApply.IPv6 != nil && preApply.IPv6.Enabled {
		i.IPv6 = preApply.IPv6.Clone()
	}
}
