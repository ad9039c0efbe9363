// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lockvault

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(filepath.Join(t.TempDir(), "locks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestLockGrantsUnheldEntries(t *testing.T) {
	v := newTestVault(t)
	err := v.Lock([]Entry{"eth0", "eth1"}, "session-a", Options{Timeout: time.Minute})
	require.NoError(t, err)

	holder, ok := v.Holder("eth0")
	require.True(t, ok)
	assert.Equal(t, "session-a", holder)
}

func TestLockConflictsWithActiveHolder(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Lock([]Entry{"eth0"}, "session-a", Options{Timeout: time.Minute}))

	err := v.Lock([]Entry{"eth0"}, "session-b", Options{Timeout: time.Minute})
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "session-a", conflict.Session)
}

func TestLockIsAtomicAcrossEntries(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Lock([]Entry{"eth0"}, "session-a", Options{Timeout: time.Minute}))

	err := v.Lock([]Entry{"eth1", "eth0"}, "session-b", Options{Timeout: time.Minute})
	require.Error(t, err)

	_, held := v.Holder("eth1")
	assert.False(t, held, "eth1 must not be granted when the batch as a whole failed")
}

func TestLockSucceedsAfterExpiry(t *testing.T) {
	v := newTestVault(t)
	original := nowFunc
	defer func() { nowFunc = original }()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return base }
	require.NoError(t, v.Lock([]Entry{"eth0"}, "session-a", Options{Timeout: time.Second}))

	nowFunc = func() time.Time { return base.Add(2 * time.Second) }
	err := v.Lock([]Entry{"eth0"}, "session-b", Options{Timeout: time.Minute})
	require.NoError(t, err)

	holder, ok := v.Holder("eth0")
	require.True(t, ok)
	assert.Equal(t, "session-b", holder)
}

func TestUnlockReleasesOwnHoldsOnly(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Lock([]Entry{"eth0"}, "session-a", Options{Timeout: time.Minute}))

	require.NoError(t, v.Unlock([]Entry{"eth0"}, "session-b"))
	_, held := v.Holder("eth0")
	assert.True(t, held, "unlock by a non-holding session must be a no-op")

	require.NoError(t, v.Unlock([]Entry{"eth0"}, "session-a"))
	_, held = v.Holder("eth0")
	assert.False(t, held)
}

func TestVaultReloadsHoldsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locks.db")

	v1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, v1.Lock([]Entry{"eth0"}, "session-a", Options{Timeout: time.Minute}))
	require.NoError(t, v1.Close())

	v2, err := Open(path)
	require.NoError(t, err)
	defer v2.Close()

	holder, ok := v2.Holder("eth0")
	require.True(t, ok)
	assert.Equal(t, "session-a", holder)
}
