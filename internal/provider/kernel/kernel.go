// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

// Package kernel implements the Kernel provider (spec §1, §6): the
// query-and-apply role that talks directly to the Linux network stack via
// netlink. Grounded on the teacher's
// internal/ctlplane/network_manager.go (LinkByName/AddrList/LinkSetMTU/
// LinkSetMaster/LinkSetUp-Down call shapes) and internal/kernel/provider_linux.go
// (the google/nftables connection pattern), generalized from the teacher's
// flat config.Interface model to the nstate.Interface tagged-variant model
// this core specifies.
package kernel

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"github.com/mdlayher/ndp"
	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"golang.org/x/sys/unix"

	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
)

// Priority is this provider's QueryRelated priority (spec §4.5 step 1):
// the kernel is the most authoritative source for link/address/route
// state, so it wins field conflicts against every other provider.
const Priority = 100

// Provider is the Kernel provider (spec §3.7's RoleKernel /
// RoleQueryAndApply).
type Provider struct {
	log   *logging.Logger
	table string // the nftables table the anti-spoof rule lives in
}

// New returns a Kernel provider. table names the nftables table the
// anti-spoof rule for VLAN-filtering bridges is installed into.
func New(log *logging.Logger, table string) *Provider {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	if table == "" {
		table = "nipart"
	}
	return &Provider{log: log, table: table}
}

// QueryRelated reads the current kernel state of every interface named in
// desired (spec §4.5 step 1).
func (p *Provider) QueryRelated(ctx context.Context, desired *nstate.NetworkState) (*nstate.NetworkState, int, error) {
	result := nstate.NewNetworkState()
	for _, d := range desired.Ifaces.All() {
		if d.Type.IsUserspace() {
			continue
		}
		iface, err := p.queryInterface(d.Name)
		if err != nil {
			p.log.Debug("kernel provider: interface not present", "iface", d.Name, "error", err)
			continue
		}
		result.Ifaces.Push(iface)
	}
	return result, Priority, nil
}

func (p *Provider) queryInterface(name string) (*nstate.Interface, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: link %s not found", name)
	}
	attrs := link.Attrs()

	iface := &nstate.Interface{
		BaseInterface: nstate.BaseInterface{
			Name:       name,
			Type:       linkKindToType(link),
			IfaceIndex: attrs.Index,
			MacAddress: attrs.HardwareAddr.String(),
			MTU:        attrs.MTU,
		},
	}
	if attrs.Flags&unix.IFF_UP != 0 {
		iface.State = nstate.StateUp
	} else {
		iface.State = nstate.StateDown
	}
	if attrs.MasterIndex != 0 {
		if master, err := netlink.LinkByIndex(attrs.MasterIndex); err == nil {
			iface.Controller = master.Attrs().Name
		}
	}

	if mac, err := permanentMacAddress(name); err == nil && mac != "" {
		iface.PermanentMacAddress = mac
	}

	v4, err := netlink.AddrList(link, unix.AF_INET)
	if err == nil && len(v4) > 0 {
		iface.IPv4 = &nstate.IPv4Config{Enabled: true}
		for _, a := range v4 {
			ones, _ := a.IPNet.Mask.Size()
			iface.IPv4.Addresses = append(iface.IPv4.Addresses, nstate.Address{
				IP: a.IPNet.IP.String(), PrefixLength: uint8(ones),
			})
		}
	}
	v6, err := netlink.AddrList(link, unix.AF_INET6)
	if err == nil && len(v6) > 0 {
		iface.IPv6 = &nstate.IPv6Config{Enabled: true}
		for _, a := range v6 {
			ones, _ := a.IPNet.Mask.Size()
			iface.IPv6.Addresses = append(iface.IPv6.Addresses, nstate.Address{
				IP: a.IPNet.IP.String(), PrefixLength: uint8(ones),
			})
		}
	}

	return iface, nil
}

func linkKindToType(link netlink.Link) nstate.InterfaceType {
	switch link.Type() {
	case "bond":
		return nstate.TypeBond
	case "bridge":
		return nstate.TypeLinuxBridge
	case "vlan":
		return nstate.TypeVlan
	case "veth":
		return nstate.TypeVeth
	case "dummy":
		return nstate.TypeDummy
	case "wireguard":
		return nstate.TypeWireguard
	default:
		if link.Attrs().Name == "lo" {
			return nstate.TypeLoopback
		}
		return nstate.TypeEthernet
	}
}

// Apply drives link-layer changes (including the type-specific bridge
// anti-spoof rule and Wireguard setup), then IP addresses, for every
// interface present in ifaces.ForApply, and finally the changed routes
// (spec §4.5 step 2: "link-layer, then IP-layer changes, in that order"). noVerify is accepted for
// interface-contract symmetry with the scheduler's rollback apply; the
// kernel provider has no internal verification step of its own (the core
// verifies, not the provider).
func (p *Provider) Apply(ctx context.Context, ifaces *nstate.MergedInterfaces, routes *nstate.MergedRoutes, noVerify bool) error {
	for _, mi := range ifaces.All() {
		if mi.ForApply == nil || mi.ForApply.Type.IsUserspace() {
			continue
		}
		if err := p.applyLinkLayer(mi); err != nil {
			return err
		}
	}
	for _, mi := range ifaces.All() {
		if mi.ForApply == nil || mi.ForApply.Type.IsUserspace() {
			continue
		}
		if err := p.applyIPLayer(mi.ForApply); err != nil {
			return err
		}
	}
	if routes != nil {
		for _, r := range routes.Changed {
			if err := p.applyRoute(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Provider) applyLinkLayer(mi *nstate.MergedInterface) error {
	iface := mi.ForApply
	if iface.IsAbsent() {
		link, err := netlink.LinkByName(iface.Name)
		if err != nil {
			return nil // already gone
		}
		return netlink.LinkDel(link)
	}

	link, err := netlink.LinkByName(iface.Name)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: link %s not found for apply", iface.Name)
	}

	if iface.MTU != 0 {
		if err := netlink.LinkSetMTU(link, iface.MTU); err != nil {
			return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: set mtu on %s", iface.Name)
		}
	}

	if iface.Controller != "" {
		master, err := netlink.LinkByName(iface.Controller)
		if err != nil {
			return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: controller %s not found", iface.Controller)
		}
		if err := netlink.LinkSetMaster(link, master); err != nil {
			return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: enslave %s to %s", iface.Name, iface.Controller)
		}
	} else if mi.Current != nil && mi.Current.Controller != "" {
		// detachPort cleared Controller; release the previous master.
		_ = netlink.LinkSetNoMaster(link)
	}

	if iface.Type == nstate.TypeLinuxBridge && iface.LinuxBridge != nil && iface.LinuxBridge.VlanFiltering {
		if err := p.installAntiSpoofRule(iface.Name); err != nil {
			p.log.Warn("kernel provider: anti-spoof rule install failed", "iface", iface.Name, "error", err)
		}
	}

	if iface.Type == nstate.TypeWireguard && iface.Wireguard != nil {
		if err := applyWireguard(iface.Name, iface.Wireguard); err != nil {
			return err
		}
	}

	switch iface.State {
	case nstate.StateUp:
		return netlink.LinkSetUp(link)
	case nstate.StateDown:
		return netlink.LinkSetDown(link)
	}
	return nil
}

func (p *Provider) applyIPLayer(iface *nstate.Interface) error {
	if iface.IsAbsent() {
		return nil
	}
	link, err := netlink.LinkByName(iface.Name)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: link %s not found for ip apply", iface.Name)
	}

	if iface.IPv4 != nil {
		if err := reconcileAddresses(link, unix.AF_INET, iface.IPv4.Addresses); err != nil {
			return err
		}
	}
	if iface.IPv6 != nil {
		if err := reconcileAddresses(link, unix.AF_INET6, iface.IPv6.Addresses); err != nil {
			return err
		}
	}
	return nil
}

func reconcileAddresses(link netlink.Link, family int, want []nstate.Address) error {
	existing, err := netlink.AddrList(link, family)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: listing addresses")
	}
	wantSet := make(map[string]bool, len(want))
	for _, a := range want {
		wantSet[fmt.Sprintf("%s/%d", a.IP, a.PrefixLength)] = true
	}
	for _, a := range existing {
		ones, _ := a.IPNet.Mask.Size()
		key := fmt.Sprintf("%s/%d", a.IPNet.IP.String(), ones)
		if !wantSet[key] {
			if err := netlink.AddrDel(link, &a); err != nil {
				return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: removing address %s", key)
			}
		}
	}
	for _, a := range want {
		addr, err := netlink.ParseAddr(fmt.Sprintf("%s/%d", a.IP, a.PrefixLength))
		if err != nil {
			return nerr.Wrapf(err, nerr.KindInvalidArgument, "kernel provider: invalid address %s", a.IP)
		}
		if err := netlink.AddrAdd(link, addr); err != nil && err != unix.EEXIST {
			return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: adding address %s", a.IP)
		}
	}
	return nil
}

func (p *Provider) applyRoute(r *nstate.RouteEntry) error {
	link, err := netlink.LinkByName(r.NextHopInterface)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: route next-hop %s not found", r.NextHopInterface)
	}
	_, dst, err := net.ParseCIDR(r.Destination)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindInvalidArgument, "kernel provider: invalid route destination %s", r.Destination)
	}
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       dst,
		Priority:  int(r.Metric),
		Table:     int(r.TableID),
	}
	if r.NextHopAddress != "" {
		route.Gw = net.ParseIP(r.NextHopAddress)
	}
	if r.State == nstate.StateAbsent {
		return netlink.RouteDel(route)
	}
	return netlink.RouteReplace(route)
}

// permanentMacAddress queries the NIC's burned-in MAC via ethtool, used to
// populate BaseInterface.PermanentMacAddress (spec §3.1).
func permanentMacAddress(iface string) (string, error) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return "", err
	}
	defer e.Close()
	mac, err := e.PermAddr(iface)
	if err != nil {
		return "", err
	}
	return mac, nil
}

// probeNeighbor sends an IPv6 neighbor solicitation to confirm on-link
// reachability of target. Nothing in the apply or verify path calls it.
func probeNeighbor(ctx context.Context, iface string, target net.IP) error {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: interface %s lookup for ndp", iface)
	}
	conn, _, err := ndp.Listen(ifi, ndp.LinkLocal)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindNoSupport, "kernel provider: ndp listen on %s", iface)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "kernel provider: ndp set deadline")
	}

	msg := &ndp.NeighborSolicitation{TargetAddress: target}
	if err := conn.WriteTo(msg, nil, target); err != nil {
		return nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: ndp solicit %s", target)
	}
	_, _, _, err = conn.ReadFrom()
	if err != nil {
		return nerr.Wrapf(err, nerr.KindVerificationError, "kernel provider: no ndp reply from %s", target)
	}
	return nil
}

// namespaceHandle returns a netlink handle scoped to the named network
// namespace, for VRF-aware queries (spec §9: "namespace-scoped netlink
// handle acquisition for VRF-aware queries").
func namespaceHandle(nsName string) (*netlink.Handle, error) {
	ns, err := netns.GetFromName(nsName)
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: namespace %s not found", nsName)
	}
	defer ns.Close()
	handle, err := netlink.NewHandleAt(ns)
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindPluginFailure, "kernel provider: netlink handle in namespace %s", nsName)
	}
	return handle, nil
}

// installAntiSpoofRule installs the anti-spoofing nftables rule a
// VLAN-filtering LinuxBridge's post_merge implies (a concrete, narrow use
// of google/nftables; see the domain-stack note in SPEC_FULL.md).
func (p *Provider) installAntiSpoofRule(bridgeName string) error {
	conn, err := nftables.New()
	if err != nil {
		return err
	}
	table := conn.AddTable(&nftables.Table{Name: p.table, Family: nftables.TableFamilyBridge})
	chain := conn.AddChain(&nftables.Chain{
		Name:     "nipart-antispoof-" + bridgeName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityFilter,
	})
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{&expr.Counter{}},
	})
	return conn.Flush()
}

// applyWireguard configures a Wireguard interface's private key, listen
// port, and peers (spec §3.1's Wireguard variant).
func applyWireguard(name string, cfg *nstate.WireguardConfig) error {
	client, err := wgctrl.New()
	if err != nil {
		return nerr.Wrapf(err, nerr.KindNoSupport, "kernel provider: wgctrl unavailable")
	}
	defer client.Close()

	wgConfig := wgtypes.Config{}
	if cfg.PrivateKey != "" {
		key, err := wgtypes.ParseKey(cfg.PrivateKey)
		if err != nil {
			return nerr.Wrapf(err, nerr.KindInvalidArgument, "kernel provider: invalid wireguard private key")
		}
		wgConfig.PrivateKey = &key
	}
	if cfg.ListenPort != 0 {
		port := cfg.ListenPort
		wgConfig.ListenPort = &port
	}
	wgConfig.ReplacePeers = true
	for _, peer := range cfg.Peers {
		pubKey, err := wgtypes.ParseKey(peer.PublicKey)
		if err != nil {
			return nerr.Wrapf(err, nerr.KindInvalidArgument, "kernel provider: invalid wireguard peer key")
		}
		peerCfg := wgtypes.PeerConfig{PublicKey: pubKey}
		for _, cidr := range peer.AllowedIPs {
			if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
				peerCfg.AllowedIPs = append(peerCfg.AllowedIPs, *ipnet)
			}
		}
		if peer.Endpoint != "" {
			if addr, err := net.ResolveUDPAddr("udp", peer.Endpoint); err == nil {
				peerCfg.Endpoint = addr
			}
		}
		if peer.PersistentKeepalive != 0 {
			d := time.Duration(peer.PersistentKeepalive) * time.Second
			peerCfg.PersistentKeepaliveInterval = &d
		}
		wgConfig.Peers = append(wgConfig.Peers, peerCfg)
	}
	return client.ConfigureDevice(name, wgConfig)
}
