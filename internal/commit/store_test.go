// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package commit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nipart.dev/nipart/internal/nstate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func stateWithIface(name string) *nstate.NetworkState {
	s := nstate.NewNetworkState()
	s.Ifaces.Push(&nstate.Interface{BaseInterface: nstate.BaseInterface{Name: name, Type: nstate.TypeEthernet, State: nstate.StateUp}})
	return s
}

func TestAppendCreatesContentAddressedCommit(t *testing.T) {
	s := newTestStore(t)
	desired := stateWithIface("eth0")
	revert := stateWithIface("eth0")

	c, err := s.Append("bring up eth0", desired, revert, true)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, s.Count())

	head, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, c.ID, head.ID)
}

func TestQueryReturnsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append("first", stateWithIface("eth0"), stateWithIface("eth0"), true)
	require.NoError(t, err)
	second, err := s.Append("second", stateWithIface("eth1"), stateWithIface("eth1"), true)
	require.NoError(t, err)

	commits, err := s.Query(0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, second.ID, commits[0].ID)
}

func TestQueryRespectsCount(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Append("a", stateWithIface("eth0"), stateWithIface("eth0"), true)
	_, _ = s.Append("b", stateWithIface("eth1"), stateWithIface("eth1"), true)
	_, _ = s.Append("c", stateWithIface("eth2"), stateWithIface("eth2"), true)

	commits, err := s.Query(2)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestRevertReturnsCommitsRevertState(t *testing.T) {
	s := newTestStore(t)
	revert := stateWithIface("eth0")
	c, err := s.Append("change", stateWithIface("eth0"), revert, true)
	require.NoError(t, err)

	got, err := s.Revert(c.ID)
	require.NoError(t, err)
	_, ok := got.Ifaces.GetByName("eth0")
	assert.True(t, ok)
}

func TestRemoveDetachesCommitsAndReturnsRevertsInReverseOrder(t *testing.T) {
	s := newTestStore(t)
	c1, _ := s.Append("a", stateWithIface("eth0"), stateWithIface("eth0"), true)
	c2, _ := s.Append("b", stateWithIface("eth1"), stateWithIface("eth1"), true)

	reverts, err := s.Remove([]string{c1.ID, c2.ID})
	require.NoError(t, err)
	require.Len(t, reverts, 2)
	_, newestFirst := reverts[0].Ifaces.GetByName("eth1")
	assert.True(t, newestFirst, "the last listed commit's revert comes first")
	assert.Equal(t, 0, s.Count())
}

func TestRollbackComputesCumulativeRevertAfterTarget(t *testing.T) {
	s := newTestStore(t)
	c1, _ := s.Append("a", stateWithIface("eth0"), stateWithIface("eth0"), true)
	_, _ = s.Append("b", stateWithIface("eth1"), stateWithIface("eth1"), true)
	_, _ = s.Append("c", stateWithIface("eth2"), stateWithIface("eth2"), true)

	reverts, err := s.Rollback(c1.ID)
	require.NoError(t, err)
	require.Len(t, reverts, 2)
}

func TestGetUnknownCommitErrors(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("deadbeef")
	assert.Error(t, err)
}

func TestOpenReloadsExistingHistory(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	c, err := s1.Append("first", stateWithIface("eth0"), stateWithIface("eth0"), true)
	require.NoError(t, err)

	s2, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, s2.Count())
	head, err := s2.Head()
	require.NoError(t, err)
	assert.Equal(t, c.ID, head.ID)
}
