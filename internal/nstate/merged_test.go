// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeInterfacesCreatesNewInterface(t *testing.T) {
	desired := NewInterfaces()
	desired.Push(&Interface{BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, MTU: 1500}})
	current := NewInterfaces()

	merged, err := MergeInterfaces(desired, current)
	require.NoError(t, err)

	mi, ok := merged.get(Key{Name: "eth0", Type: TypeEthernet})
	require.True(t, ok)
	assert.Equal(t, 1500, mi.Merged.MTU)
	assert.Nil(t, mi.Current)
}

func TestMergeInterfacesPreservesUntouchedCurrent(t *testing.T) {
	desired := NewInterfaces()
	current := NewInterfaces()
	current.Push(&Interface{BaseInterface: BaseInterface{Name: "eth1", Type: TypeEthernet, MTU: 1500}})

	merged, err := MergeInterfaces(desired, current)
	require.NoError(t, err)

	mi, ok := merged.get(Key{Name: "eth1", Type: TypeEthernet})
	require.True(t, ok)
	assert.Equal(t, 1500, mi.Merged.MTU)
	assert.Nil(t, mi.Desired)
}

func TestMergeInterfacesDetachesPortDroppedFromBondList(t *testing.T) {
	desired := NewInterfaces()
	desired.Push(&Interface{
		BaseInterface: BaseInterface{Name: "bond0", Type: TypeBond},
		Bond:          &BondConfig{Mode: "active-backup", Ports: []string{"eth0"}},
	})
	current := NewInterfaces()
	current.Push(&Interface{BaseInterface: BaseInterface{Name: "bond0", Type: TypeBond}, Bond: &BondConfig{Mode: "active-backup", Ports: []string{"eth0", "eth1"}}})
	current.Push(&Interface{BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, Controller: "bond0"}})
	current.Push(&Interface{BaseInterface: BaseInterface{Name: "eth1", Type: TypeEthernet, Controller: "bond0"}})

	merged, err := MergeInterfaces(desired, current)
	require.NoError(t, err)

	port, ok := merged.get(Key{Name: "eth1", Type: TypeEthernet})
	require.True(t, ok)
	assert.Equal(t, "", port.Merged.Controller, "port removed from bond's port list must be detached")

	keptPort, ok := merged.get(Key{Name: "eth0", Type: TypeEthernet})
	require.True(t, ok)
	assert.Equal(t, "bond0", keptPort.Merged.Controller)
}

func TestAssignUpPriorityOrdersControllerBeforePort(t *testing.T) {
	desired := NewInterfaces()
	desired.Push(&Interface{BaseInterface: BaseInterface{Name: "br0", Type: TypeLinuxBridge}})
	desired.Push(&Interface{BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, Controller: "br0"}})
	current := NewInterfaces()

	merged, err := MergeInterfaces(desired, current)
	require.NoError(t, err)

	controller, _ := merged.get(Key{Name: "br0", Type: TypeLinuxBridge})
	port, _ := merged.get(Key{Name: "eth0", Type: TypeEthernet})

	assert.Less(t, controller.Merged.UpPriority, port.Merged.UpPriority)
}

func TestAssignUpPriorityPropagatesThroughVlanParent(t *testing.T) {
	desired := NewInterfaces()
	desired.Push(&Interface{BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet}})
	desired.Push(&Interface{
		BaseInterface: BaseInterface{Name: "eth0.100", Type: TypeVlan},
		Vlan:          &VlanConfig{BaseIface: "eth0", ID: 100},
	})
	current := NewInterfaces()

	merged, err := MergeInterfaces(desired, current)
	require.NoError(t, err)

	base, _ := merged.get(Key{Name: "eth0", Type: TypeEthernet})
	vlan, _ := merged.get(Key{Name: "eth0.100", Type: TypeVlan})

	assert.Less(t, base.Merged.UpPriority, vlan.Merged.UpPriority)
}
