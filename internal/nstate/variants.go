// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

// BondConfig is the Bond-variant type-specific configuration (spec §3.1,
// §4.1 "bond mode mandatory on creation").
type BondConfig struct {
	Mode  string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Ports []string `json:"port,omitempty" yaml:"port,omitempty"`
}

func (c *BondConfig) Clone() *BondConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Ports = append([]string(nil), c.Ports...)
	return &out
}

// BridgePort is one port entry of a LinuxBridge or OvsBridge.
type BridgePort struct {
	Name       string `json:"name" yaml:"name"`
	STPEnabled bool   `json:"stp-enabled,omitempty" yaml:"stp-enabled,omitempty"`
	VlanMode   string `json:"vlan-mode,omitempty" yaml:"vlan-mode,omitempty"`
}

// LinuxBridgeSTP holds the bridge's spanning-tree timers (spec §4.1:
// "bridge STP timers within [1..10]/[6..40]/[2..30] seconds").
type LinuxBridgeSTP struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	HelloTime   int  `json:"hello-time,omitempty" yaml:"hello-time,omitempty"`     // [1,10]
	ForwardDelay int `json:"forward-delay,omitempty" yaml:"forward-delay,omitempty"` // [6,40]
	MaxAge      int  `json:"max-age,omitempty" yaml:"max-age,omitempty"`           // [2,30]
}

// LinuxBridgeConfig is the LinuxBridge-variant configuration.
type LinuxBridgeConfig struct {
	Ports              []BridgePort    `json:"port,omitempty" yaml:"port,omitempty"`
	STP                *LinuxBridgeSTP `json:"stp,omitempty" yaml:"stp,omitempty"`
	VlanFiltering      bool            `json:"vlan-filtering,omitempty" yaml:"vlan-filtering,omitempty"`
	GroupForwardMask   int             `json:"group-forward-mask,omitempty" yaml:"group-forward-mask,omitempty"`
	GroupFwdMaskAlias  int             `json:"group-fwd-mask,omitempty" yaml:"group-fwd-mask,omitempty"` // alias reconciled with GroupForwardMask (spec §4.1)
	MulticastQuerierInterval int       `json:"multicast-querier-interval,omitempty" yaml:"multicast-querier-interval,omitempty"`
}

func (c *LinuxBridgeConfig) Clone() *LinuxBridgeConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Ports = append([]BridgePort(nil), c.Ports...)
	if c.STP != nil {
		stp := *c.STP
		out.STP = &stp
	}
	return &out
}

// PortNames returns the current set of attached port names.
func (c *LinuxBridgeConfig) PortNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.Ports))
	for i, p := range c.Ports {
		names[i] = p.Name
	}
	return names
}

// OvsBridgeConfig is the OvsBridge-variant configuration.
type OvsBridgeConfig struct {
	Ports []BridgePort `json:"port,omitempty" yaml:"port,omitempty"`
}

func (c *OvsBridgeConfig) Clone() *OvsBridgeConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Ports = append([]BridgePort(nil), c.Ports...)
	return &out
}

func (c *OvsBridgeConfig) PortNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.Ports))
	for i, p := range c.Ports {
		names[i] = p.Name
	}
	return names
}

// VlanConfig is the Vlan-variant configuration (spec §4.1 "VLAN id+base
// required on creation").
type VlanConfig struct {
	BaseIface     string `json:"base-iface,omitempty" yaml:"base-iface,omitempty"`
	ID            uint16 `json:"id,omitempty" yaml:"id,omitempty"`
	ReorderHeaders *bool `json:"reorder-headers,omitempty" yaml:"reorder-headers,omitempty"`
}

func (c *VlanConfig) Clone() *VlanConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.ReorderHeaders != nil {
		v := *c.ReorderHeaders
		out.ReorderHeaders = &v
	}
	return &out
}

// postMerge applies the VLAN post-merge hook: reorder_headers defaults to
// true (spec §4.1).
func (c *VlanConfig) postMerge() {
	if c == nil {
		return
	}
	if c.ReorderHeaders == nil {
		t := true
		c.ReorderHeaders = &t
	}
}

// WireguardPeer is one peer entry of a Wireguard interface.
type WireguardPeer struct {
	PublicKey           string   `json:"public-key" yaml:"public-key"`
	Endpoint            string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AllowedIPs          []string `json:"allowed-ips,omitempty" yaml:"allowed-ips,omitempty"`
	PersistentKeepalive int      `json:"persistent-keepalive,omitempty" yaml:"persistent-keepalive,omitempty"`
}

// WireguardConfig is the Wireguard-variant configuration.
type WireguardConfig struct {
	PrivateKey string          `json:"private-key,omitempty" yaml:"private-key,omitempty"`
	ListenPort int             `json:"listen-port,omitempty" yaml:"listen-port,omitempty"`
	Peers      []WireguardPeer `json:"peer,omitempty" yaml:"peer,omitempty"`
}

func (c *WireguardConfig) Clone() *WireguardConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Peers = append([]WireguardPeer(nil), c.Peers...)
	return &out
}

// WifiConfig is shared by the WifiPhy (observed radio) and WifiCfg (desired
// network profile) variants.
type WifiConfig struct {
	SSID      string `json:"ssid,omitempty" yaml:"ssid,omitempty"`
	BaseIface string `json:"base-iface,omitempty" yaml:"base-iface,omitempty"`
	PSK       string `json:"psk,omitempty" yaml:"psk,omitempty"`
}

func (c *WifiConfig) Clone() *WifiConfig {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
