// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package daemonconfig decodes the daemon's own ambient settings — socket
// path, provider search path, scheduler tick interval, log level, state
// directory — distinct from the network state documents the core
// merges/diffs/applies (spec §6, which are YAML/JSON, not HCL). Grounded
// on the teacher's internal/config/hcl.go: the same tag-driven
// hcl:"field,optional" struct plus hclsimple.Decode pattern, scaled down
// to the handful of settings this daemon actually needs.
package daemonconfig

import (
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
)

// Config is the daemon's own settings document, conventionally loaded from
// /etc/nipart/nipartd.hcl.
type Config struct {
	// SocketPath is where the IPC listener binds (spec §6's "well-known
	// socket path").
	SocketPath string `hcl:"socket_path,optional"`

	// ProviderSearchPath overrides the directories scanned for external
	// provider executables (spec §6's "Environment": "a search path for
	// external provider executables can be overridden; otherwise the
	// daemon scans its own binary's directory").
	ProviderSearchPath []string `hcl:"provider_search_path,optional"`

	// ProviderExecPrefix is the fixed filename prefix the daemon looks
	// for when falling back to scanning its own binary's directory.
	ProviderExecPrefix string `hcl:"provider_exec_prefix,optional"`

	// SchedulerTickMS is the workflow scheduler's poll interval, in
	// milliseconds.
	SchedulerTickMS int `hcl:"scheduler_tick_ms,optional"`

	// LogLevel is one of "debug", "info", "warn", "error" (internal/logging.Level).
	LogLevel string `hcl:"log_level,optional"`

	// StateDir holds the commit store's object/work directories. No
	// separate applied-state document is written to it.
	StateDir string `hcl:"state_dir,optional"`

	// LockVaultPath is the SQLite file backing the lock vault.
	LockVaultPath string `hcl:"lock_vault_path,optional"`

	// OvsdbSocketPath is the ovsdb-server JSON-RPC socket the OVS
	// provider connects to.
	OvsdbSocketPath string `hcl:"ovsdb_socket_path,optional"`

	// TrackListenAddr, if non-empty, is the HTTP address the `track show`
	// event stream (internal/ipc/eventstream.go) listens on. Left empty,
	// the daemon still publishes to the stream internally but serves no
	// HTTP endpoint for it.
	TrackListenAddr string `hcl:"track_listen_addr,optional"`
}

// Default returns the built-in defaults, overridden field-by-field by
// whatever Load actually decodes.
func Default() Config {
	return Config{
		SocketPath:         "/run/nipart/nipartd.sock",
		ProviderExecPrefix: "nipart-provider-",
		SchedulerTickMS:    200,
		LogLevel:           "info",
		StateDir:           "/etc/nipart/states",
		LockVaultPath:      "/etc/nipart/states/lockvault.db",
		OvsdbSocketPath:    "/run/openvswitch/db.sock",
	}
}

// SchedulerTick returns SchedulerTickMS as a time.Duration.
func (c Config) SchedulerTick() time.Duration {
	return time.Duration(c.SchedulerTickMS) * time.Millisecond
}

// Level parses LogLevel into internal/logging's Level, defaulting to Info
// on an empty or unrecognized value.
func (c Config) Level() logging.Level {
	switch c.LogLevel {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// Load decodes an HCL document at path over Default()'s values.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, nerr.Wrapf(err, nerr.KindInvalidArgument, "daemonconfig: decode %s", path)
	}
	return cfg, nil
}
