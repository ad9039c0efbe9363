// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ipc

import (
	"context"
	"net"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/logging"
	"nipart.dev/nipart/internal/nerr"
)

// Listener accepts client and provider connections on a single well-known
// socket (spec §6: "length-prefixed framed stream on a well-known socket
// path").
type Listener struct {
	log *logging.Logger
	ln  net.Listener
}

// Listen binds network ("unix" or "tcp") at address.
func Listen(network, address string) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindIpcFailure, "ipc: listen on %s %s", network, address)
	}
	return &Listener{log: logging.New(logging.DefaultConfig()), ln: ln}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next inbound connection, wrapping it as a framed
// Conn.
func (l *Listener) Accept() (*Conn, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, nerr.Wrap(err, nerr.KindIpcFailure, "ipc: accept")
	}
	return NewConn(raw), nil
}

// Serve accepts connections until ctx is cancelled, handing each to
// onConnect in its own goroutine. onConnect is responsible for reading
// frames off the connection (via Conn.Receive) and forwarding them to the
// switch's Inbound channel, and for Conn.Send-ing outbound events back.
func (l *Listener) Serve(ctx context.Context, onConnect func(ctx context.Context, c *Conn)) {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()
	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn("ipc: accept failed", "error", err)
			continue
		}
		go onConnect(ctx, c)
	}
}

// ReceiveLoop reads frames from c until it errors or ctx is cancelled,
// forwarding each decoded event onto inbound. Intended as the body of an
// onConnect callback passed to Serve.
func ReceiveLoop(ctx context.Context, c *Conn, inbound chan<- event.Event, log *logging.Logger) {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	for {
		e, err := c.Receive(ctx)
		if err != nil {
			if nerr.GetKind(err) != nerr.KindIpcClosed {
				log.Warn("ipc: receive failed", "error", err)
			}
			return
		}
		select {
		case inbound <- e:
		case <-ctx.Done():
			return
		}
	}
}
