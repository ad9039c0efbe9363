// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndKind(t *testing.T) {
	err := New(KindInvalidArgument, "bad mtu")
	assert.Equal(t, KindInvalidArgument, GetKind(err))
	assert.Equal(t, "bad mtu", err.Error())
}

func TestWrapPreservesUnderlying(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base, KindPluginFailure, "apply failed")
	require.Error(t, wrapped)
	assert.True(t, Is(wrapped, base))
	assert.Equal(t, "apply failed: boom", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindBug, "should stay nil"))
}

func TestAttrAccumulatesAcrossChain(t *testing.T) {
	inner := Attr(New(KindInvalidArgument, "bad"), "iface", "eth1")
	outer := Wrap(inner, KindVerificationError, "verify failed")
	outer = Attr(outer, "attempt", 3)

	attrs := GetAttributes(outer)
	assert.Equal(t, "eth1", attrs["iface"])
	assert.Equal(t, 3, attrs["attempt"])
}

func TestAttrOnPlainError(t *testing.T) {
	err := Attr(errors.New("plain"), "k", "v")
	assert.Equal(t, KindBug, GetKind(err))
	assert.Equal(t, "v", GetAttributes(err)["k"])
}

func TestCanRetry(t *testing.T) {
	assert.False(t, KindInvalidArgument.CanRetry())
	assert.False(t, KindBug.CanRetry())
	assert.True(t, KindPluginFailure.CanRetry())
	assert.True(t, KindTimeout.CanRetry())
}

func TestGetKindUnknownForPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, GetKind(errors.New("plain")))
}
