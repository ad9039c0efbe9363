// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command nipartd is the host network configuration daemon: it loads its
// own settings, wires up the registry/switch/scheduler/commit/lockvault/
// link-monitor stack, and serves client requests on its IPC socket until
// signalled to stop.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"nipart.dev/nipart/internal/daemon"
	"nipart.dev/nipart/internal/daemonconfig"
	"nipart.dev/nipart/internal/logging"
)

func main() {
	configPath := flag.String("config", "/etc/nipart/nipartd.hcl", "Path to HCL config file")
	flag.Parse()

	cfg := daemonconfig.Default()
	if _, err := os.Stat(*configPath); err == nil {
		cfg, err = daemonconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("nipartd: loading config: %v", err)
		}
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Level()
	logger := logging.New(logCfg).WithComponent("nipartd")

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build daemon", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("nipartd starting", "socket", cfg.SocketPath)
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("nipartd stopped")
}
