// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nipart.dev/nipart/internal/daemonconfig"
	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nstate"
	"nipart.dev/nipart/internal/provider"
	"nipart.dev/nipart/internal/workflow"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	cfg := daemonconfig.Default()
	cfg.StateDir = filepath.Join(dir, "states")
	cfg.LockVaultPath = filepath.Join(dir, "lockvault.db")
	cfg.SocketPath = filepath.Join(dir, "nipartd.sock")

	d, err := New(cfg, logging.New(logging.DefaultConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNewWiresExactlyOneCommanderAndFourProviders(t *testing.T) {
	d := testDaemon(t)
	assert.Equal(t, 4, d.pluginCount)
	name, ok := d.reg.Commander()
	require.True(t, ok)
	assert.Equal(t, "commander", name)
}

func TestHandleReapedRecordsCommitAndSavesWifiConfig(t *testing.T) {
	d := testDaemon(t)

	desired := nstate.NewNetworkState()
	desired.Ifaces.Push(&nstate.Interface{
		BaseInterface: nstate.BaseInterface{Name: "wlan0", Type: nstate.TypeWifiCfg},
	})
	pre := nstate.NewNetworkState()

	d.handleReaped(workflow.Reaped{
		UUID: uuid.New(),
		Kind: "apply_net_state",
		Share: &workflow.ShareData{
			DesiredState:  desired,
			PreApplyState: pre,
		},
	})

	assert.Equal(t, 1, d.commits.Count())
	d.savedWifiMu.Lock()
	_, known := d.savedWifi["wlan0"]
	d.savedWifiMu.Unlock()
	assert.True(t, known, "a successful apply of a WifiCfg interface should be remembered for reconciliation")
}

func TestHandleReapedTriggersRollbackOnFailedApply(t *testing.T) {
	d := testDaemon(t)
	pre := nstate.NewNetworkState()

	d.handleReaped(workflow.Reaped{
		UUID:   uuid.New(),
		Kind:   "apply_net_state",
		Failed: true,
		Share:  &workflow.ShareData{PreApplyState: pre},
	})

	assert.Equal(t, 1, d.queue.Len(), "a rollback workflow should now be queued")
}

func TestHandleReapedDoesNotRetriggerOnFailedRollback(t *testing.T) {
	d := testDaemon(t)

	d.handleReaped(workflow.Reaped{
		UUID:   uuid.New(),
		Kind:   "rollback_net_state",
		Failed: true,
		Share:  &workflow.ShareData{},
	})

	assert.Equal(t, 0, d.queue.Len())
	assert.Equal(t, 0, d.commits.Count())
}

type fakeQueryAndApply struct {
	state      *nstate.NetworkState
	priority   int
	applyErr   error
	applyCalls int
}

func (f *fakeQueryAndApply) QueryRelated(ctx context.Context, desired *nstate.NetworkState) (*nstate.NetworkState, int, error) {
	return f.state, f.priority, nil
}

func (f *fakeQueryAndApply) Apply(ctx context.Context, ifaces *nstate.MergedInterfaces, routes *nstate.MergedRoutes, noVerify bool) error {
	f.applyCalls++
	return f.applyErr
}

func TestLocalProviderConnQueryNetState(t *testing.T) {
	state := nstate.NewNetworkState()
	state.Hostname = "host1"
	fake := &fakeQueryAndApply{state: state, priority: 10}

	inbound := make(chan event.Event, 1)
	c := &localProviderConn{name: "kernel", log: logging.New(logging.DefaultConfig()), inbound: inbound, qa: fake}

	req := event.Event{UUID: uuid.New(), Kind: "QueryNetState", Action: event.ActionRequest}
	require.NoError(t, c.Send(context.Background(), req))

	reply := <-inbound
	assert.Equal(t, "QueryNetStateReply", reply.Kind)
	assert.Equal(t, req.UUID, reply.UUID)
	assert.Equal(t, event.ActionDone, reply.Action)
	got, ok := reply.PluginPayload.(provider.QueryReplyPayload)
	require.True(t, ok)
	require.NotNil(t, got.State)
	assert.Equal(t, "host1", got.State.Hostname)
	assert.Equal(t, 10, got.Priority)
}

func TestLocalProviderConnApplyUsesBundledPayload(t *testing.T) {
	fake := &fakeQueryAndApply{}
	inbound := make(chan event.Event, 1)
	c := &localProviderConn{name: "kernel", log: logging.New(logging.DefaultConfig()), inbound: inbound, qa: fake}

	ifaces, err := nstate.MergeInterfaces(nstate.NewInterfaces(), nstate.NewInterfaces())
	require.NoError(t, err)
	routes, err := nstate.MergeRoutes(nil, nil, ifaces)
	require.NoError(t, err)

	req := event.Event{
		UUID:   uuid.New(),
		Kind:   "ApplyNetState",
		Action: event.ActionRequest,
		PluginPayload: workflow.ApplyPayload{
			Ifaces: ifaces,
			Routes: routes,
		},
	}
	require.NoError(t, c.Send(context.Background(), req))

	reply := <-inbound
	assert.Equal(t, "ApplyNetStateReply", reply.Kind)
	assert.Equal(t, 1, fake.applyCalls)
}

func TestLocalProviderConnApplyRejectsMissingPayload(t *testing.T) {
	fake := &fakeQueryAndApply{}
	inbound := make(chan event.Event, 1)
	c := &localProviderConn{name: "kernel", log: logging.New(logging.DefaultConfig()), inbound: inbound, qa: fake}

	req := event.Event{UUID: uuid.New(), Kind: "ApplyNetState", Action: event.ActionRequest}
	require.NoError(t, c.Send(context.Background(), req))

	reply := <-inbound
	assert.Equal(t, "Error", reply.Kind)
	assert.Equal(t, 0, fake.applyCalls)
}

func TestCommanderConnForwardsToInbox(t *testing.T) {
	inbox := make(chan event.Event, 1)
	c := &commanderConn{inbox: inbox}

	e := event.Event{UUID: uuid.New(), Kind: "QueryNetState"}
	require.NoError(t, c.Send(context.Background(), e))

	got := <-inbox
	assert.Equal(t, e.UUID, got.UUID)
}
