// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergedIfacesWithOneUp(name string) *MergedInterfaces {
	mi := newMergedInterfaces()
	mi.set(Key{Name: name, Type: TypeEthernet}, &MergedInterface{
		Merged: &Interface{BaseInterface: BaseInterface{
			Name: name, Type: TypeEthernet, State: StateUp,
			IPv4: &IPv4Config{Enabled: true},
		}},
	}, false)
	return mi
}

func TestMergeRoutesAddsNewRoute(t *testing.T) {
	ifaces := mergedIfacesWithOneUp("eth0")
	desired := []*RouteEntry{{Destination: "0.0.0.0/0", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1"}}

	result, err := MergeRoutes(desired, nil, ifaces)
	require.NoError(t, err)

	assert.Len(t, result.Merged, 1)
	assert.Len(t, result.Changed, 1)
	assert.True(t, result.ChangedIfaces["eth0"])
}

func TestMergeRoutesUnicastRequiresNextHop(t *testing.T) {
	ifaces := mergedIfacesWithOneUp("eth0")
	desired := []*RouteEntry{{Destination: "0.0.0.0/0"}}

	_, err := MergeRoutes(desired, nil, ifaces)
	require.Error(t, err)
}

func TestMergeRoutesDropsRouteOnDisabledInterface(t *testing.T) {
	ifaces := newMergedInterfaces()
	ifaces.set(Key{Name: "eth0", Type: TypeEthernet}, &MergedInterface{
		Merged: &Interface{BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, IPv4: &IPv4Config{Enabled: false}}},
	}, false)

	current := []*RouteEntry{{Destination: "198.51.100.0/24", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1"}}

	result, err := MergeRoutes(nil, current, ifaces)
	require.NoError(t, err)
	assert.Empty(t, result.Merged)
}

func TestMergeRoutesRejectsDesiredRouteToDisabledInterface(t *testing.T) {
	ifaces := newMergedInterfaces()
	ifaces.set(Key{Name: "eth0", Type: TypeEthernet}, &MergedInterface{
		Merged: &Interface{BaseInterface: BaseInterface{Name: "eth0", Type: TypeEthernet, IPv4: &IPv4Config{Enabled: false}}},
	}, false)

	desired := []*RouteEntry{{Destination: "198.51.100.0/24", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1"}}

	_, err := MergeRoutes(desired, nil, ifaces)
	require.Error(t, err, "spec.md §8 scenario 5: route to disabled interface rejected")
}

func TestMergeRoutesAbsentWildcardRemovesMatchingCurrent(t *testing.T) {
	ifaces := mergedIfacesWithOneUp("eth0")
	current := []*RouteEntry{{Destination: "198.51.100.0/24", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1"}}
	desired := []*RouteEntry{{Destination: "198.51.100.0/24", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1", State: StateAbsent}}

	result, err := MergeRoutes(desired, current, ifaces)
	require.NoError(t, err)

	assert.Empty(t, result.Merged)
	assert.True(t, result.ChangedIfaces["eth0"])
}

func TestMergeRoutesUnchangedRouteNotInChangedSet(t *testing.T) {
	ifaces := mergedIfacesWithOneUp("eth0")
	route := &RouteEntry{Destination: "198.51.100.0/24", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1"}
	current := []*RouteEntry{route}
	desired := []*RouteEntry{{Destination: "198.51.100.0/24", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1"}}

	result, err := MergeRoutes(desired, current, ifaces)
	require.NoError(t, err)

	assert.Len(t, result.Merged, 1)
	assert.Empty(t, result.Changed)
}

func TestMergeRoutesECMPWeightValidation(t *testing.T) {
	ifaces := mergedIfacesWithOneUp("eth0")
	desired := []*RouteEntry{{Destination: "0.0.0.0/0", NextHopInterface: "eth0", NextHopAddress: "192.0.2.1", Weight: 9000}}

	_, err := MergeRoutes(desired, nil, ifaces)
	require.Error(t, err)
}

func TestDeduplicateRoutesKeepsFirstUnderOrderingKey(t *testing.T) {
	routes := []*RouteEntry{
		{Destination: "0.0.0.0/0", NextHopInterface: "eth0", Metric: 100},
		{Destination: "0.0.0.0/0", NextHopInterface: "eth0", Metric: 200},
	}
	deduped := DeduplicateRoutes(routes)
	assert.Len(t, deduped, 1)
	assert.Equal(t, int64(100), deduped[0].Metric)
}
