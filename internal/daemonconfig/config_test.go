// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nipart.dev/nipart/internal/logging"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/run/nipart/nipartd.sock", cfg.SocketPath)
	assert.Equal(t, logging.LevelInfo, cfg.Level())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nipartd.hcl")
	writeHCL(t, path, `
socket_path = "/run/nipart/custom.sock"
scheduler_tick_ms = 50
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/run/nipart/custom.sock", cfg.SocketPath)
	assert.Equal(t, 50, cfg.SchedulerTickMS)
	assert.Equal(t, logging.LevelDebug, cfg.Level())
	// untouched fields keep their defaults
	assert.Equal(t, "nipart-provider-", cfg.ProviderExecPrefix)
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.hcl")
	writeHCL(t, path, `socket_path = `)

	_, err := Load(path)
	require.Error(t, err)
}

func writeHCL(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
