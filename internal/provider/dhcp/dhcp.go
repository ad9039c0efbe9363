// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

// Package dhcp implements the DHCP provider (spec §1, §6): a client-side
// lease manager started/stopped per interface by the scheduler, and a
// QueryAndApply answerer that reports leased addresses back into the merge
// pipeline. The teacher's internal/services/dhcp/service.go is a DHCP
// *server* (dhcpv4.WithX reply modifiers against server4) — useful only
// for confirming the dhcpv4 message-building API shape. The client
// exchange itself is enriched from the insomniacslk/dhcp module's
// dhcpv4/client4 package, the client-side counterpart of the same
// library the teacher already depends on, since nothing in the pack
// implements a DHCP client.
package dhcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/client4"

	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
)

// Priority is this provider's QueryRelated priority (spec §4.5 step 1):
// below the kernel provider so a kernel-observed address always wins a
// field conflict, but present so a lease not yet visible to the kernel
// query still surfaces.
const Priority = 50

// renewMargin triggers a renewal this far before lease expiry.
const renewMargin = 30 * time.Second

// lease is one interface's currently-held DHCPv4 lease.
type lease struct {
	ack      *dhcpv4.DHCPv4
	obtained time.Time
	cancel   context.CancelFunc
}

// Provider is the DHCP provider (spec §3.7's RoleDhcp).
type Provider struct {
	log *logging.Logger

	mu     sync.RWMutex
	leases map[string]*lease
}

// New returns a DHCP provider.
func New(log *logging.Logger) *Provider {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &Provider{log: log, leases: make(map[string]*lease)}
}

// StartIfaceDhcp begins (or restarts) DHCPv4 lease acquisition on iface
// (spec §6: "DHCP providers accept StartIfaceDhcp(iface)"). It runs in the
// background, renewing before expiry until StopIfaceDhcp is called.
func (p *Provider) StartIfaceDhcp(ctx context.Context, iface string) error {
	p.mu.Lock()
	if existing, ok := p.leases[iface]; ok {
		existing.cancel()
		delete(p.leases, iface)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	p.leases[iface] = &lease{cancel: cancel}
	p.mu.Unlock()

	ack, err := p.exchange(ctx, iface)
	if err != nil {
		p.mu.Lock()
		delete(p.leases, iface)
		p.mu.Unlock()
		cancel()
		return err
	}

	p.mu.Lock()
	p.leases[iface] = &lease{ack: ack, obtained: time.Now(), cancel: cancel}
	p.mu.Unlock()

	go p.renewLoop(runCtx, iface)
	return nil
}

// StopIfaceDhcp releases iface's lease and stops renewal (spec §6).
func (p *Provider) StopIfaceDhcp(ctx context.Context, iface string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.leases[iface]
	if !ok {
		return nil
	}
	l.cancel()
	delete(p.leases, iface)
	return nil
}

func (p *Provider) exchange(ctx context.Context, iface string) (*dhcpv4.DHCPv4, error) {
	cl := client4.NewClient()
	cl.ReadTimeout = 10 * time.Second
	cl.WriteTimeout = 10 * time.Second

	conv, err := cl.Exchange(iface)
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindPluginFailure, "dhcp provider: exchange on %s", iface)
	}
	for _, pkt := range conv {
		if pkt.MessageType() == dhcpv4.MessageTypeAck {
			return pkt, nil
		}
	}
	return nil, nerr.Errorf(nerr.KindPluginFailure, "dhcp provider: no ACK received on %s", iface)
}

func (p *Provider) renewLoop(ctx context.Context, iface string) {
	for {
		p.mu.RLock()
		l, ok := p.leases[iface]
		p.mu.RUnlock()
		if !ok {
			return
		}

		leaseTime := leaseDuration(l.ack)
		wait := leaseTime - time.Since(l.obtained) - renewMargin
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		ack, err := p.exchange(ctx, iface)
		if err != nil {
			p.log.Warn("dhcp provider: renewal failed", "iface", iface, "error", err)
			continue
		}
		p.mu.Lock()
		if cur, ok := p.leases[iface]; ok {
			cur.ack = ack
			cur.obtained = time.Now()
		}
		p.mu.Unlock()
	}
}

func leaseDuration(ack *dhcpv4.DHCPv4) time.Duration {
	if ack == nil {
		return time.Hour
	}
	d := ack.IPAddressLeaseTime(time.Hour)
	return d
}

// QueryRelated reports the currently-held lease's address for every
// DHCP-enabled interface in desired (spec §4.5 step 1).
func (p *Provider) QueryRelated(ctx context.Context, desired *nstate.NetworkState) (*nstate.NetworkState, int, error) {
	result := nstate.NewNetworkState()
	for _, d := range desired.Ifaces.All() {
		wantsDhcp := (d.IPv4 != nil && d.IPv4.Dhcp) || (d.IPv6 != nil && d.IPv6.Dhcp)
		if !wantsDhcp {
			continue
		}
		p.mu.RLock()
		l, ok := p.leases[d.Name]
		p.mu.RUnlock()
		if !ok || l.ack == nil {
			continue
		}

		iface := &nstate.Interface{BaseInterface: nstate.BaseInterface{Name: d.Name, Type: d.Type}}
		iface.IPv4 = &nstate.IPv4Config{
			Enabled: true,
			Dhcp:    true,
			Addresses: []nstate.Address{{
				IP:           l.ack.YourIPAddr.String(),
				PrefixLength: prefixLenFromMask(l.ack),
			}},
		}
		result.Ifaces.Push(iface)
	}
	return result, Priority, nil
}

func prefixLenFromMask(ack *dhcpv4.DHCPv4) uint8 {
	mask := ack.SubnetMask()
	if mask == nil {
		return 24
	}
	ones, _ := mask.Size()
	return uint8(ones)
}

// Apply starts or stops DHCPv4 client leases for every interface whose
// merged IPv4/IPv6 Dhcp flag changed (spec §4.5 step 2). noVerify is
// accepted for interface-contract symmetry with the kernel provider; a
// rollback apply still needs leases started or stopped to match the
// reverted state.
func (p *Provider) Apply(ctx context.Context, ifaces *nstate.MergedInterfaces, routes *nstate.MergedRoutes, noVerify bool) error {
	for _, mi := range ifaces.All() {
		if mi.ForApply == nil {
			continue
		}
		iface := mi.ForApply
		wantsDhcp := (iface.IPv4 != nil && iface.IPv4.Dhcp) || (iface.IPv6 != nil && iface.IPv6.Dhcp)

		p.mu.RLock()
		_, running := p.leases[iface.Name]
		p.mu.RUnlock()

		switch {
		case iface.IsAbsent() || !wantsDhcp:
			if running {
				if err := p.StopIfaceDhcp(ctx, iface.Name); err != nil {
					return err
				}
			}
		case wantsDhcp && !running:
			if err := p.StartIfaceDhcp(ctx, iface.Name); err != nil {
				return fmt.Errorf("dhcp provider: start on %s: %w", iface.Name, err)
			}
		}
	}
	return nil
}
