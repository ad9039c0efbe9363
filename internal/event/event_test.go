// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewGeneratesUniqueUUID(t *testing.T) {
	a := New("ApplyNetState", nil, User(), Commander(), time.Second)
	b := New("ApplyNetState", nil, User(), Commander(), time.Second)
	assert.NotEqual(t, a.UUID, b.UUID)
	assert.Equal(t, ActionRequest, a.Action)
}

func TestReplyCorrelatesByUUID(t *testing.T) {
	req := New("ApplyNetState", nil, User(), Commander(), 0)
	reply := req.Reply("ApplyNetStateReply", "ok")

	assert.True(t, reply.IsReplyTo(req))
	assert.Equal(t, req.Dst, reply.Src)
	assert.Equal(t, req.Src, reply.Dst)
	assert.Equal(t, ActionDone, reply.Action)
}

func TestAddressEquality(t *testing.T) {
	assert.True(t, Unicast("kernel-1").Equal(Unicast("kernel-1")))
	assert.False(t, Unicast("kernel-1").Equal(Unicast("kernel-2")))
	assert.True(t, Group(RoleKernel).Equal(Group(RoleKernel)))
	assert.False(t, Group(RoleKernel).Equal(Group(RoleDhcp)))
	assert.False(t, Unicast("x").Equal(Group(RoleKernel)))
	assert.True(t, Daemon().Equal(Daemon()))
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "unicast(kernel-1)", Unicast("kernel-1").String())
	assert.Equal(t, "group(kernel)", Group(RoleKernel).String())
}
