// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ipc implements the client/provider transport (spec §6, "Client
// IPC"): a length-prefixed framed stream over a well-known Unix-domain or
// TCP socket, each frame holding a JSON-encoded envelope. No teacher file
// implements a framed stream protocol directly, so Conn's wire format is
// grounded on spec §6's own description (length-prefixed, 10 MiB max
// frame, JSON payload) built from stdlib encoding/binary, encoding/json,
// and io — the same ambient "stdlib for protocol plumbing, real
// dependencies for everything domain-specific" split the teacher's own
// internal/services packages use for their socket code.
package ipc

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/nerr"
)

// MaxFrameSize is the largest frame Conn will read or write (spec §6:
// "maximum frame size is 10 MiB; larger frames are rejected with
// IpcMessageTooLarge").
const MaxFrameSize = 10 * 1024 * 1024

// frame is the on-wire envelope: { kind, data } (spec §6). kind selects
// among a data-type-name, an error-kind, or "log-entry"; here it always
// carries a serialized event.Event, since that is the single message type
// routed internally (spec §3.7) — the envelope's own kind/data split is
// what lets a non-Go client recognize which payload shape "data" holds.
type frame struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// wireAddress is event.Address's JSON-safe projection.
type wireAddress struct {
	Kind      int    `json:"kind"`
	Name      string `json:"name,omitempty"`
	GroupRole int    `json:"group_role,omitempty"`
}

func toWireAddress(a event.Address) wireAddress {
	return wireAddress{Kind: int(a.Kind), Name: a.Name, GroupRole: int(a.GroupRole)}
}

func fromWireAddress(w wireAddress) event.Address {
	return event.Address{Kind: event.AddressKind(w.Kind), Name: w.Name, GroupRole: event.Role(w.GroupRole)}
}

// wireEvent is event.Event's JSON-safe projection.
type wireEvent struct {
	UUID          uuid.UUID   `json:"uuid"`
	RefUUID       uuid.UUID   `json:"ref_uuid,omitempty"`
	Action        int         `json:"action"`
	Kind          string      `json:"kind"`
	UserPayload   any         `json:"user_payload,omitempty"`
	PluginPayload any         `json:"plugin_payload,omitempty"`
	Src           wireAddress `json:"src"`
	Dst           wireAddress `json:"dst"`
	TimeoutMS     int64       `json:"timeout_ms,omitempty"`
}

func encodeEvent(e event.Event) (json.RawMessage, error) {
	w := wireEvent{
		UUID:          e.UUID,
		RefUUID:       e.RefUUID,
		Action:        int(e.Action),
		Kind:          e.Kind,
		UserPayload:   e.UserPayload,
		PluginPayload: e.PluginPayload,
		Src:           toWireAddress(e.Src),
		Dst:           toWireAddress(e.Dst),
		TimeoutMS:     e.Timeout.Milliseconds(),
	}
	return json.Marshal(w)
}

func decodeEvent(raw json.RawMessage) (event.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return event.Event{}, err
	}
	return event.Event{
		UUID:          w.UUID,
		RefUUID:       w.RefUUID,
		Action:        event.Action(w.Action),
		Kind:          w.Kind,
		UserPayload:   w.UserPayload,
		PluginPayload: w.PluginPayload,
		Src:           fromWireAddress(w.Src),
		Dst:           fromWireAddress(w.Dst),
		Timeout:       time.Duration(w.TimeoutMS) * time.Millisecond,
	}, nil
}

// Conn wraps a net.Conn (Unix-domain or TCP) in length-prefixed framing.
// It satisfies internal/eswitch.Conn's Send method, so a Conn can be
// registered directly into the switch's connection map.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader

	mu sync.Mutex // serializes concurrent Send calls onto one socket
}

// NewConn wraps an already-established connection.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, r: bufio.NewReader(raw)}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// Send frames and writes one event (spec §6). Concurrent calls are
// serialized so two goroutines cannot interleave partial frames onto the
// same socket.
func (c *Conn) Send(ctx context.Context, e event.Event) error {
	raw, err := encodeEvent(e)
	if err != nil {
		return nerr.Wrap(err, nerr.KindBug, "ipc: encode event")
	}
	body, err := json.Marshal(frame{Kind: "event", Data: raw})
	if err != nil {
		return nerr.Wrap(err, nerr.KindBug, "ipc: encode frame")
	}
	if len(body) > MaxFrameSize {
		return nerr.Errorf(nerr.KindIpcMessageTooLarge, "ipc: frame of %d bytes exceeds max %d", len(body), MaxFrameSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.raw.SetWriteDeadline(deadline)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := c.raw.Write(lenBuf[:]); err != nil {
		return nerr.Wrap(err, nerr.KindIpcFailure, "ipc: write frame length")
	}
	if _, err := c.raw.Write(body); err != nil {
		return nerr.Wrap(err, nerr.KindIpcFailure, "ipc: write frame body")
	}
	return nil
}

// Receive blocks until one full frame arrives and returns its decoded
// event. It returns KindIpcClosed on a clean peer shutdown and
// KindIpcMessageTooLarge if the peer announces a frame larger than
// MaxFrameSize.
func (c *Conn) Receive(ctx context.Context) (event.Event, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.raw.SetReadDeadline(deadline)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return event.Event{}, nerr.Wrap(err, nerr.KindIpcClosed, "ipc: connection closed")
		}
		return event.Event{}, nerr.Wrap(err, nerr.KindIpcFailure, "ipc: read frame length")
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > MaxFrameSize {
		return event.Event{}, nerr.Errorf(nerr.KindIpcMessageTooLarge, "ipc: peer announced frame of %d bytes, max %d", size, MaxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return event.Event{}, nerr.Wrap(err, nerr.KindIpcFailure, "ipc: read frame body")
	}

	var f frame
	if err := json.Unmarshal(body, &f); err != nil {
		return event.Event{}, nerr.Wrap(err, nerr.KindIpcFailure, "ipc: decode frame")
	}
	e, err := decodeEvent(f.Data)
	if err != nil {
		return event.Event{}, nerr.Wrap(err, nerr.KindIpcFailure, "ipc: decode event")
	}
	return e, nil
}
