// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package event defines the typed event and address model the nipart
// daemon routes between its API endpoint, the Commander, and role-addressed
// providers (spec §3.7). A single Event type carries both requests and the
// replies correlated against them via a shared UUID.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is an addressable provider capability tag (GLOSSARY).
type Role int

const (
	RoleUnknown Role = iota
	RoleDaemon
	RoleCommander
	RoleKernel
	RoleDhcp
	RoleOvs
	RoleMonitor
	RoleConfig
	RoleLocker
	RoleQueryAndApply
	RoleTrack
)

func (r Role) String() string {
	switch r {
	case RoleDaemon:
		return "daemon"
	case RoleCommander:
		return "commander"
	case RoleKernel:
		return "kernel"
	case RoleDhcp:
		return "dhcp"
	case RoleOvs:
		return "ovs"
	case RoleMonitor:
		return "monitor"
	case RoleConfig:
		return "config"
	case RoleLocker:
		return "locker"
	case RoleQueryAndApply:
		return "query_and_apply"
	case RoleTrack:
		return "track"
	default:
		return "unknown"
	}
}

// AddressKind discriminates the Address tagged union.
type AddressKind int

const (
	AddrUser AddressKind = iota
	AddrDaemon
	AddrCommander
	AddrLocker
	AddrDhcp
	AddrUnicast
	AddrGroup
	AddrAllPlugins
	AddrAllPluginsNoCommander
)

// Address is a tagged union identifying an event's source or destination.
// Only the field relevant to Kind is meaningful: Name for AddrUnicast,
// GroupRole for AddrGroup.
type Address struct {
	Kind      AddressKind
	Name      string
	GroupRole Role
}

func User() Address      { return Address{Kind: AddrUser} }
func Daemon() Address     { return Address{Kind: AddrDaemon} }
func Commander() Address  { return Address{Kind: AddrCommander} }
func Locker() Address     { return Address{Kind: AddrLocker} }
func Dhcp() Address       { return Address{Kind: AddrDhcp} }
func Unicast(name string) Address { return Address{Kind: AddrUnicast, Name: name} }
func Group(role Role) Address     { return Address{Kind: AddrGroup, GroupRole: role} }
func AllPlugins() Address             { return Address{Kind: AddrAllPlugins} }
func AllPluginsNoCommander() Address  { return Address{Kind: AddrAllPluginsNoCommander} }

func (a Address) String() string {
	switch a.Kind {
	case AddrUser:
		return "user"
	case AddrDaemon:
		return "daemon"
	case AddrCommander:
		return "commander"
	case AddrLocker:
		return "locker"
	case AddrDhcp:
		return "dhcp"
	case AddrUnicast:
		return fmt.Sprintf("unicast(%s)", a.Name)
	case AddrGroup:
		return fmt.Sprintf("group(%s)", a.GroupRole)
	case AddrAllPlugins:
		return "all_plugins"
	case AddrAllPluginsNoCommander:
		return "all_plugins_no_commander"
	default:
		return "invalid"
	}
}

// Equal reports whether two addresses denote the same destination. Two
// Unicast addresses are equal iff their names match; two Group addresses
// iff their roles match.
func (a Address) Equal(b Address) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AddrUnicast:
		return a.Name == b.Name
	case AddrGroup:
		return a.GroupRole == b.GroupRole
	default:
		return true
	}
}

// Action classifies an Event's lifecycle role.
type Action int

const (
	ActionRequest Action = iota
	ActionDone
	ActionOneShot
)

func (a Action) String() string {
	switch a {
	case ActionRequest:
		return "request"
	case ActionDone:
		return "done"
	case ActionOneShot:
		return "one_shot"
	default:
		return "unknown"
	}
}

// Event is the single message type routed by the event bus (spec §3.7).
// UserPayload and PluginPayload are carried as `any` so that a single Event
// type serves every data-type-name in the IPC vocabulary (§6); callers type
// assert or route on Kind/Action as appropriate.
type Event struct {
	UUID          uuid.UUID
	RefUUID       uuid.UUID // zero value means "not a reply"
	Action        Action
	Kind          string // data-type-name selecting the payload's meaning
	UserPayload   any
	PluginPayload any
	Src           Address
	Dst           Address
	Timeout       time.Duration
	CreatedAt     time.Time
}

// New creates a fresh request-class Event with a new UUID.
func New(kind string, payload any, src, dst Address, timeout time.Duration) Event {
	return Event{
		UUID:      uuid.New(),
		Action:    ActionRequest,
		Kind:      kind,
		UserPayload: payload,
		Src:       src,
		Dst:       dst,
		Timeout:   timeout,
		CreatedAt: time.Now(),
	}
}

// Reply builds a Done-action Event correlated to this Event via RefUUID,
// addressed back to the original source.
func (e Event) Reply(kind string, payload any) Event {
	return Event{
		UUID:        uuid.New(),
		RefUUID:     e.UUID,
		Action:      ActionDone,
		Kind:        kind,
		UserPayload: payload,
		Src:         e.Dst,
		Dst:         e.Src,
		CreatedAt:   time.Now(),
	}
}

// IsReplyTo reports whether e is a reply correlated to req via UUID.
func (e Event) IsReplyTo(req Event) bool {
	return e.RefUUID == req.UUID
}

// ErrorPayload is the UserPayload carried by an error reply (spec §7):
// workflow failure emits a single error event to the original requester
// carrying the workflow UUID.
type ErrorPayload struct {
	Kind       string
	Message    string
	Attributes map[string]any
}
