// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import "nipart.dev/nipart/internal/nerr"

// MergedInterface holds every view of one logical interface produced by the
// merge engine (spec §3.5, §9 DESIGN NOTES): desired (what the client
// asked for, if anything), current (what was observed, if anything),
// merged (the fixed point of desired-over-current), for_apply (what the
// apply task actually sends a provider), and for_verify (what the verify
// task compares observed state against). Each is an independently owned
// clone; mutating one must never affect another.
type MergedInterface struct {
	Desired  *Interface
	Current  *Interface
	Merged   *Interface
	ForApply *Interface
	ForVerify *Interface
}

// MergedInterfaces is the merge engine's interface-side output (spec §3.5).
type MergedInterfaces struct {
	Kernel      map[string]*MergedInterface
	User        map[Key]*MergedInterface
	InsertOrder []Key
}

func newMergedInterfaces() *MergedInterfaces {
	return &MergedInterfaces{
		Kernel: make(map[string]*MergedInterface),
		User:   make(map[Key]*MergedInterface),
	}
}

// Get looks up the MergedInterface for key.
func (m *MergedInterfaces) Get(key Key) (*MergedInterface, bool) {
	return m.get(key)
}

func (m *MergedInterfaces) get(key Key) (*MergedInterface, bool) {
	if key.Type.MatchType() == TypeEthernet {
		if mi, ok := m.Kernel[key.Name]; ok {
			return mi, true
		}
	}
	if mi, ok := m.User[key]; ok {
		return mi, true
	}
	if mi, ok := m.Kernel[key.Name]; ok {
		return mi, true
	}
	return nil, false
}

func (m *MergedInterfaces) set(key Key, mi *MergedInterface, userspace bool) {
	if _, seen := m.orderIndex(key); !seen {
		m.InsertOrder = append(m.InsertOrder, key)
	}
	if userspace {
		m.User[key] = mi
	} else {
		m.Kernel[key.Name] = mi
	}
}

func (m *MergedInterfaces) orderIndex(key Key) (int, bool) {
	for i, k := range m.InsertOrder {
		if k == key {
			return i, true
		}
	}
	return -1, false
}

// All returns every MergedInterface in insert order.
func (m *MergedInterfaces) All() []*MergedInterface {
	out := make([]*MergedInterface, 0, len(m.Kernel)+len(m.User))
	seen := make(map[Key]bool, len(m.InsertOrder))
	for _, key := range m.InsertOrder {
		if mi, ok := m.get(key); ok {
			out = append(out, mi)
			seen[key] = true
		}
	}
	for name, mi := range m.Kernel {
		k := Key{Name: name, Type: TypeEthernet}
		if mi.Merged != nil {
			k.Type = mi.Merged.Type.MatchType()
		}
		if !seen[k] {
			out = append(out, mi)
		}
	}
	return out
}

// MergeInterfaces runs the Merge Engine's interface-side algorithm (spec
// §4.2 steps 1-6).
func MergeInterfaces(desired, current *Interfaces) (*MergedInterfaces, error) {
	result := newMergedInterfaces()
	remaining := current.Clone()

	// Step 3: merge each desired interface against its current
	// counterpart. Step 2 runs below, in applyControllerPortManagement.
	for _, d := range desired.All() {
		key := d.Key()
		cur, hadCurrent := remaining.Get(key)
		if hadCurrent {
			remaining.Remove(key)
		}

		if err := d.Sanitize(cur); err != nil {
			return nil, err
		}

		var merged *Interface
		if hadCurrent {
			merged = cur.Merge(d)
		} else {
			merged = d.Clone()
		}

		forApply := d.Clone()
		if hadCurrent {
			forApply.IfaceIndex = cur.IfaceIndex // extras_from_current: minimum context needed at apply time
		}

		mi := &MergedInterface{
			Desired:   d.Clone(),
			Current:   cur,
			Merged:    merged,
			ForApply:  forApply,
			ForVerify: d.Clone(),
		}
		result.set(key, mi, d.IsUserspace())
	}

	// Step 4: remaining current interfaces, untouched by desired.
	for _, c := range remaining.All() {
		key := c.Key()
		if _, already := result.get(key); already {
			continue
		}
		mi := &MergedInterface{
			Current: c,
			Merged:  c.Clone(),
		}
		result.set(key, mi, c.IsUserspace())
	}

	applyControllerPortManagement(result, desired, current)
	postMergeSanitize(result)
	if err := assignUpPriority(result); err != nil {
		return nil, err
	}

	return result, nil
}

// applyControllerPortManagement implements spec §4.2 step 2: if a
// controller appears in desired with an explicit ports list, ports
// currently attached but not desired are detached. A desired-absent
// controller has already been reduced to a stub without a ports list by
// Sanitize, so it is skipped here; postMergeSanitize marks its ports that
// require a controller Absent instead.
func applyControllerPortManagement(result *MergedInterfaces, desired, current *Interfaces) {
	for _, d := range desired.All() {
		desiredPortNames, ok := explicitPortList(d)
		if !ok {
			continue
		}
		desiredSet := make(map[string]bool, len(desiredPortNames))
		for _, p := range desiredPortNames {
			desiredSet[p] = true
		}

		controllerAbsent := d.IsAbsent()
		for _, c := range current.All() {
			if c.Controller != d.Name {
				continue
			}
			if controllerAbsent || !desiredSet[c.Name] {
				detachPort(result, c)
			}
		}
	}
}

func explicitPortList(iface *Interface) ([]string, bool) {
	switch {
	case iface.Bond != nil:
		return iface.Bond.Ports, true
	case iface.LinuxBridge != nil:
		return iface.LinuxBridge.PortNames(), true
	case iface.OvsBridge != nil:
		return iface.OvsBridge.PortNames(), true
	default:
		return nil, false
	}
}

func detachPort(result *MergedInterfaces, port *Interface) {
	key := port.Key()
	mi, ok := result.get(key)
	if !ok {
		mi = &MergedInterface{Current: port, Merged: port.Clone()}
		result.set(key, mi, port.IsUserspace())
	}
	if mi.Merged == nil {
		mi.Merged = port.Clone()
	}
	mi.Merged.Controller = ""
	mi.Merged.ControllerType = ""
	if mi.ForApply == nil {
		mi.ForApply = port.Clone()
	}
	mi.ForApply.Controller = ""
	mi.ForApply.ControllerType = ""
}

// postMergeSanitize implements spec §4.2 step 5: pair veths (a no-op here
// since Ethernet/Veth share matching, left as a documented seam for a
// provider that distinguishes them at apply time) and propagate
// controller/port transitions. WiFi post-merge is not done here; it
// already ran inside Interface.Merge.
func postMergeSanitize(result *MergedInterfaces) {
	byName := make(map[string]*MergedInterface)
	for _, mi := range result.All() {
		if mi.Merged != nil {
			byName[mi.Merged.Name] = mi
		}
	}

	for _, mi := range result.All() {
		if mi.Merged == nil || mi.Merged.Controller == "" {
			continue
		}
		controller, ok := byName[mi.Merged.Controller]
		if !ok || controller.Merged == nil {
			continue
		}
		wasAttached := mi.Current != nil && mi.Current.Controller == mi.Merged.Controller
		if !wasAttached {
			// A port assigned to a new controller is marked as changed
			// even if it wasn't named in desired.
			if mi.ForApply == nil {
				mi.ForApply = mi.Merged.Clone()
			}
		}
		if requiresController(mi.Merged.Type) && controller.Merged.IsAbsent() {
			mi.Merged.State = StateAbsent
			if mi.ForApply != nil {
				mi.ForApply.State = StateAbsent
			}
		}
	}
}

// requiresController reports whether this interface type cannot exist
// without its controller (e.g. a bridge slave), per spec §4.2 step 5.
func requiresController(t InterfaceType) bool {
	switch t {
	case TypeOvsInterface:
		return false
	default:
		return true
	}
}

const maxUpPriorityPasses = 4

// assignUpPriority implements spec §4.2 step 6: up to four iterations over
// insert order, setting up_priority = controller.up_priority + 1, then one
// additional pass propagating priorities to children via Parent(). Spec
// §3.2 ties this insert-order iteration to the four-pass convergence
// guarantee, so the pass below walks result.InsertOrder (via result.All(),
// which returns interfaces in that order) rather than a map — map
// iteration order is randomized per run and would make convergence for 4+
// levels of nesting succeed or fail non-deterministically on identical
// input.
func assignUpPriority(result *MergedInterfaces) error {
	ordered := result.All()
	byName := make(map[string]*Interface, len(ordered))
	for _, mi := range ordered {
		if mi.Merged != nil {
			byName[mi.Merged.Name] = mi.Merged
		}
	}

	resolved := make(map[string]bool)
	for _, mi := range ordered {
		iface := mi.Merged
		if iface == nil {
			continue
		}
		if iface.Controller == "" {
			iface.UpPriority = 1
			resolved[iface.Name] = true
		}
	}

	for pass := 0; pass < maxUpPriorityPasses; pass++ {
		progressed := false
		for _, mi := range ordered {
			iface := mi.Merged
			if iface == nil || resolved[iface.Name] {
				continue
			}
			controller, ok := byName[iface.Controller]
			if !ok || !resolved[controller.Name] {
				continue
			}
			iface.UpPriority = controller.UpPriority + 1
			resolved[iface.Name] = true
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, mi := range ordered {
		iface := mi.Merged
		if iface != nil && !resolved[iface.Name] {
			return nerr.Errorf(nerr.KindInvalidArgument,
				"interface %s: could not resolve up-priority after %d passes, reorder interfaces so controllers precede ports",
				iface.Name, maxUpPriorityPasses)
		}
	}

	// Additional pass: propagate priorities to children via Parent().
	for _, mi := range ordered {
		iface := mi.Merged
		if iface == nil {
			continue
		}
		parent := iface.Parent()
		if parent == "" {
			continue
		}
		if p, ok := byName[parent]; ok && iface.UpPriority <= p.UpPriority {
			iface.UpPriority = p.UpPriority + 1
		}
	}

	return nil
}
