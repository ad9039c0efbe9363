// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterfaceMergeOverridesOnlySetFields(t *testing.T) {
	current := &Interface{
		BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, MTU: 1500, MacAddress: "aa:bb:cc:dd:ee:ff"},
	}
	desired := &Interface{
		BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, MTU: 9000},
	}

	merged := current.Merge(desired)

	assert.Equal(t, 9000, merged.MTU)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", merged.MacAddress, "unset field on new retains current's value")
}

func TestInterfaceMergeVlanPostMergeDefaultsReorderHeaders(t *testing.T) {
	desired := &Interface{
		BaseInterface: BaseInterface{Name: "eth0.100", Type: TypeVlan},
		Vlan:          &VlanConfig{BaseIface: "eth0", ID: 100},
	}
	merged := (&Interface{}).Merge(desired)

	require.NotNil(t, merged.Vlan.ReorderHeaders)
	assert.True(t, *merged.Vlan.ReorderHeaders)
}

func TestInterfaceMergeWifiInheritsSSIDFromPrior(t *testing.T) {
	prior := &Interface{
		BaseInterface: BaseInterface{Name: "wlan0", Type: TypeWifiCfg},
		Wifi:          &WifiConfig{SSID: "home-network"},
	}
	desired := &Interface{
		BaseInterface: BaseInterface{Name: "wlan0", Type: TypeWifiCfg},
		Wifi:          &WifiConfig{PSK: "changed-password"},
	}

	merged := prior.Merge(desired)

	assert.Equal(t, "home-network", merged.Wifi.SSID)
	assert.Equal(t, "changed-password", merged.Wifi.PSK)
}

func TestSanitizeAbsentCollapsesToStub(t *testing.T) {
	iface := &Interface{
		BaseInterface: BaseInterface{Name: "eth1", Type: TypeEthernet, State: StateAbsent, MTU: 9000},
	}
	err := iface.Sanitize(nil)
	require.NoError(t, err)
	assert.Equal(t, "eth1", iface.Name)
	assert.Equal(t, 0, iface.MTU)
}

func TestSanitizeMTUOutOfRange(t *testing.T) {
	iface := &Interface{
		BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, MTU: 100, MinMTU: 576},
	}
	err := iface.Sanitize(nil)
	require.Error(t, err)
}

func TestSanitizeBondModeRequiredOnCreation(t *testing.T) {
	iface := &Interface{
		BaseInterface: BaseInterface{Name: "bond0", Type: TypeBond},
		Bond:          &BondConfig{Ports: []string{"eth0", "eth1"}},
	}
	err := iface.Sanitize(nil)
	require.Error(t, err)

	existing := &Interface{BaseInterface: BaseInterface{Name: "bond0", Type: TypeBond}}
	err = iface.Sanitize(existing)
	assert.NoError(t, err, "mode not mandatory when updating an existing bond")
}

func TestSanitizeVlanRequiresBaseAndIDOnCreation(t *testing.T) {
	iface := &Interface{
		BaseInterface: BaseInterface{Name: "eth0.10", Type: TypeVlan},
		Vlan:          &VlanConfig{BaseIface: "eth0"},
	}
	err := iface.Sanitize(nil)
	require.Error(t, err)
}

func TestSanitizeClearsIPWhenCannotHaveIP(t *testing.T) {
	iface := &Interface{
		BaseInterface: BaseInterface{
			Name:       "eth0",
			Type:       TypeEthernet,
			Controller: "br0",
			IPv4:       &IPv4Config{Enabled: true},
		},
	}
	require.NoError(t, iface.Sanitize(nil))
	assert.Nil(t, iface.IPv4)
}

func TestSanitizeBridgeSTPTimerRanges(t *testing.T) {
	iface := &Interface{
		BaseInterface: BaseInterface{Name: "br0", Type: TypeLinuxBridge},
		LinuxBridge: &LinuxBridgeConfig{
			STP: &LinuxBridgeSTP{Enabled: true, HelloTime: 20},
		},
	}
	err := iface.Sanitize(nil)
	require.Error(t, err)
}

func TestReconcileGroupForwardMaskAliasing(t *testing.T) {
	c := &LinuxBridgeConfig{GroupFwdMaskAlias: 8}
	reconcileGroupForwardMask(c)
	assert.Equal(t, 8, c.GroupForwardMask)
	assert.Equal(t, 8, c.GroupFwdMaskAlias)
}

func TestSanitizeBeforeVerifyFillsOmittedLifetimes(t *testing.T) {
	current := &Interface{
		BaseInterface: BaseInterface{
			Name: "eth0", Type: TypeEthernet,
			IPv4: &IPv4Config{Enabled: true, Dhcp: true, Addresses: []Address{
				{IP: "192.0.2.5", PrefixLength: 24, ValidLifeTime: "3600sec", PreferredLifeTime: "1800sec"},
			}},
		},
	}
	desired := &Interface{
		BaseInterface: BaseInterface{
			Name: "eth0", Type: TypeEthernet,
			IPv4: &IPv4Config{Enabled: true, Dhcp: true, Addresses: []Address{
				{IP: "192.0.2.5", PrefixLength: 24},
			}},
		},
	}

	desired.SanitizeBeforeVerify(current)

	assert.Equal(t, "3600sec", desired.IPv4.Addresses[0].ValidLifeTime)
	assert.Equal(t, "1800sec", desired.IPv4.Addresses[0].PreferredLifeTime)
}

func TestSanitizeBeforeVerifyCanonicalizesPortOrder(t *testing.T) {
	iface := &Interface{
		BaseInterface: BaseInterface{Name: "br0", Type: TypeLinuxBridge},
		LinuxBridge: &LinuxBridgeConfig{
			Ports: []BridgePort{{Name: "eth1"}, {Name: "eth0"}},
		},
	}
	iface.SanitizeBeforeVerify(nil)
	assert.Equal(t, "eth0", iface.LinuxBridge.Ports[0].Name)
	assert.Equal(t, "eth1", iface.LinuxBridge.Ports[1].Name)
}

func TestIncludeRevertContextRestoresStaticAddressOnIPDisable(t *testing.T) {
	preApply := &Interface{
		BaseInterface: BaseInterface{
			Name: "eth0", Type: TypeEthernet,
			IPv4: &IPv4Config{Enabled: true, Addresses: []Address{{IP: "192.0.2.1", PrefixLength: 24}}},
		},
	}
	desired := &Interface{
		BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, IPv4: &IPv4Config{Enabled: false}},
	}
	revert := &Interface{BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet}}

	revert.IncludeRevertContext(desired, preApply)

	require.NotNil(t, revert.IPv4)
	assert.Equal(t, "192.0.2.1", revert.IPv4.Addresses[0].IP)
}
