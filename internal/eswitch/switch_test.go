// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eswitch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/registry"
)

type recordingConn struct {
	received []event.Event
}

func (c *recordingConn) Send(ctx context.Context, e event.Event) error {
	c.received = append(c.received, e)
	return nil
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	err := r.Replace([]registry.Info{
		{Name: "sima", Roles: []event.Role{event.RoleCommander}},
		{Name: "nispor", Roles: []event.Role{event.RoleKernel}},
		{Name: "mozim", Roles: []event.Role{event.RoleDhcp}},
	})
	require.NoError(t, err)
	return r
}

func TestDispatchUnicastRoutesToNamedProvider(t *testing.T) {
	reg := newTestRegistry(t)
	nispor := &recordingConn{}
	sw := New(reg, map[string]Conn{"nispor": nispor}, nil, nil)

	sw.dispatch(context.Background(), event.Event{Kind: "QueryInterfaces", Src: event.Daemon(), Dst: event.Unicast("nispor")})

	require.Len(t, nispor.received, 1)
}

func TestDispatchDiscardsSameSrcDst(t *testing.T) {
	reg := newTestRegistry(t)
	nispor := &recordingConn{}
	sw := New(reg, map[string]Conn{"nispor": nispor}, nil, nil)

	sw.dispatch(context.Background(), event.Event{Kind: "Noop", Src: event.Unicast("nispor"), Dst: event.Unicast("nispor")})

	assert.Empty(t, nispor.received)
}

func TestDispatchCommanderRoutesToSoleCommander(t *testing.T) {
	reg := newTestRegistry(t)
	sima := &recordingConn{}
	sw := New(reg, map[string]Conn{"sima": sima}, nil, nil)

	sw.dispatch(context.Background(), event.Event{Kind: "Apply", Src: event.User(), Dst: event.Commander()})

	require.Len(t, sima.received, 1)
}

func TestDispatchGroupFansOutToEveryRoleMember(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Replace([]registry.Info{
		{Name: "sima", Roles: []event.Role{event.RoleCommander}},
		{Name: "nispor", Roles: []event.Role{event.RoleKernel}},
		{Name: "baize", Roles: []event.Role{event.RoleKernel}},
	}))
	nispor := &recordingConn{}
	baize := &recordingConn{}
	sw := New(reg, map[string]Conn{"nispor": nispor, "baize": baize}, nil, nil)

	sw.dispatch(context.Background(), event.Event{Kind: "QueryInterfaces", Src: event.Commander(), Dst: event.Group(event.RoleKernel)})

	assert.Len(t, nispor.received, 1)
	assert.Len(t, baize.received, 1)
}

func TestDispatchUserAddressedEventForwardedToAPIChannel(t *testing.T) {
	reg := newTestRegistry(t)
	toAPI := make(chan event.Event, 1)
	sw := New(reg, nil, toAPI, nil)

	sw.dispatch(context.Background(), event.Event{Kind: "ApplyReply", Src: event.Commander(), Dst: event.User()})

	select {
	case e := <-toAPI:
		assert.Equal(t, "ApplyReply", e.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected event on API channel")
	}
}

func TestRunDispatchesUntilCancelled(t *testing.T) {
	reg := newTestRegistry(t)
	nispor := &recordingConn{}
	sw := New(reg, map[string]Conn{"nispor": nispor}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	sw.Inbound() <- event.Event{Kind: "QueryInterfaces", Src: event.Daemon(), Dst: event.Unicast("nispor")}
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
	assert.Len(t, nispor.received, 1)
}
