// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"context"
	"time"

	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
)

// retryCount and retryInterval mirror original_source/src/daemon/switch.rs's
// connect_plugin: five attempts, half a second apart, before giving up on a
// configured provider socket.
const (
	retryCount    = 5
	retryInterval = 500 * time.Millisecond
)

// Connector queries a single provider socket for its advertised Info. A
// real Connector dials the provider's IPC socket (internal/ipc) and sends
// a QueryPluginInfo request; tests substitute a stub.
type Connector func(ctx context.Context, socket string) (Info, error)

// ConfiguredProvider is one (name, socket) pair read from daemon config
// (spec §4.9's provider-socket list).
type ConfiguredProvider struct {
	Name   string
	Socket string
}

// Discover connects to every configured provider, retrying each one up to
// retryCount times before giving up on it, and returns the Info collected
// from those that answered. A provider that never answers is logged and
// skipped rather than aborting discovery for the rest (spec §5: daemon
// startup proceeds with whichever providers are reachable).
func Discover(ctx context.Context, providers []ConfiguredProvider, connect Connector, log *logging.Logger) []Info {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	infos := make([]Info, 0, len(providers))
	for _, p := range providers {
		info, err := connectWithRetry(ctx, p, connect, log)
		if err != nil {
			log.Error("failed to reach provider", "name", p.Name, "socket", p.Socket, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

func connectWithRetry(ctx context.Context, p ConfiguredProvider, connect Connector, log *logging.Logger) (Info, error) {
	var lastErr error
	for attempt := 0; attempt < retryCount; attempt++ {
		info, err := connect(ctx, p.Socket)
		if err == nil {
			return info, nil
		}
		lastErr = err
		if attempt == retryCount-1 {
			break
		}
		log.Debug("retrying provider connection", "name", p.Name, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return Info{}, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return Info{}, nerr.Wrapf(lastErr, nerr.KindIpcFailure,
		"provider %s unreachable after %d attempts", p.Name, retryCount)
}
