// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nstate

import (
	"strconv"
	"strings"

	"nipart.dev/nipart/internal/nerr"
)

// LifeTimeForever is the sentinel value meaning "never expires" (spec §3.3).
const LifeTimeForever = "forever"

// Address is a single IP address entry within an IPv4Config/IPv6Config.
type Address struct {
	IP                string `json:"ip" yaml:"ip"`
	PrefixLength      uint8  `json:"prefix-length" yaml:"prefix-length"`
	ValidLifeTime     string `json:"valid-life-time,omitempty" yaml:"valid-life-time,omitempty"`
	PreferredLifeTime string `json:"preferred-life-time,omitempty" yaml:"preferred-life-time,omitempty"`
}

// IsDynamic reports whether the address carries a non-"forever" lifetime,
// marking it as DHCP/autoconf-assigned rather than static (spec §3.3).
func (a Address) IsDynamic() bool {
	return a.ValidLifeTime != "" && a.ValidLifeTime != LifeTimeForever
}

// ParseLifeTimeSeconds parses an "Nsec" lifetime string into seconds.
// Returns false for "forever" or an empty string.
func ParseLifeTimeSeconds(s string) (int64, bool) {
	if s == "" || s == LifeTimeForever {
		return 0, false
	}
	trimmed := strings.TrimSuffix(s, "sec")
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatLifeTimeSeconds renders a lease duration in seconds as the "Nsec"
// wire format (spec §8 scenario 4: "3600sec").
func FormatLifeTimeSeconds(seconds int64) string {
	return strconv.FormatInt(seconds, 10) + "sec"
}

// IPv4Config is the IPv4 stack configuration of an interface (spec §3.3).
type IPv4Config struct {
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	Dhcp      bool      `json:"dhcp,omitempty" yaml:"dhcp,omitempty"`
	Addresses []Address `json:"address,omitempty" yaml:"address,omitempty"`
}

func (c *IPv4Config) Clone() *IPv4Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Addresses = append([]Address(nil), c.Addresses...)
	return &out
}

// IPv6Config is the IPv6 stack configuration of an interface (spec §3.3).
type IPv6Config struct {
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	Autoconf  bool      `json:"autoconf,omitempty" yaml:"autoconf,omitempty"`
	Dhcp      bool      `json:"dhcp,omitempty" yaml:"dhcp,omitempty"`
	Addresses []Address `json:"address,omitempty" yaml:"address,omitempty"`
}

func (c *IPv6Config) Clone() *IPv6Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Addresses = append([]Address(nil), c.Addresses...)
	return &out
}

// isLinkLocalV6 reports whether ip looks like an IPv6 link-local address
// (fe80::/10), used by sanitize to strip link-local addresses from desired
// state (spec §3.3).
func isLinkLocalV6(ip string) bool {
	lower := strings.ToLower(ip)
	return strings.HasPrefix(lower, "fe8") || strings.HasPrefix(lower, "fe9") ||
		strings.HasPrefix(lower, "fea") || strings.HasPrefix(lower, "feb")
}

// sanitizeIPv4 validates family and prefix range, stripping nothing
// (link-local stripping is an IPv6-only rule per spec §3.3).
func sanitizeIPv4(name string, c *IPv4Config) error {
	if c == nil {
		return nil
	}
	for _, a := range c.Addresses {
		if strings.Contains(a.IP, ":") {
			return nerr.Errorf(nerr.KindInvalidArgument,
				"interface %s: ipv6 address %s found in ipv4 slot", name, a.IP)
		}
		if a.PrefixLength == 0 || a.PrefixLength > 32 {
			return nerr.Errorf(nerr.KindInvalidArgument,
				"interface %s: ipv4 prefix length %d out of range", name, a.PrefixLength)
		}
	}
	return nil
}

// sanitizeIPv6 validates family and prefix range and strips link-local
// addresses from desired state (spec §3.3).
func sanitizeIPv6(name string, c *IPv6Config) error {
	if c == nil {
		return nil
	}
	filtered := c.Addresses[:0:0]
	for _, a := range c.Addresses {
		if !strings.Contains(a.IP, ":") {
			return nerr.Errorf(nerr.KindInvalidArgument,
				"interface %s: ipv4 address %s found in ipv6 slot", name, a.IP)
		}
		if a.PrefixLength == 0 || a.PrefixLength > 128 {
			return nerr.Errorf(nerr.KindInvalidArgument,
				"interface %s: ipv6 prefix length %d out of range", name, a.PrefixLength)
		}
		if isLinkLocalV6(a.IP) {
			continue
		}
		filtered = append(filtered, a)
	}
	c.Addresses = filtered
	return nil
}
