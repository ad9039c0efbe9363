// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// eventstream.go is the secondary push channel the CLI's "track show"
// surface (spec §6's CLI surface) uses to receive Done/OneShot events as
// they happen, instead of polling the framed socket. No teacher file
// pushes events over a websocket, but github.com/gorilla/mux and
// github.com/gorilla/websocket are both already teacher dependencies
// (internal/ebpf/controlplane/controlplane.go builds its HTTP surface on
// mux.NewRouter() exactly as here); this file is the one place in the
// domain-stack table that gives the websocket half of that pair a job.
package ipc

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"nipart.dev/nipart/internal/event"
	"nipart.dev/nipart/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // local trusted socket only
}

// EventStream fans out every event it is told about to every currently
// connected "track show" websocket client.
type EventStream struct {
	log *logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan event.Event
}

// NewEventStream returns an empty EventStream.
func NewEventStream(log *logging.Logger) *EventStream {
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &EventStream{log: log, clients: make(map[*websocket.Conn]chan event.Event)}
}

// Router returns a mux.Router exposing the "/track" upgrade endpoint; the
// daemon uses it as the whole handler of its track-show HTTP server.
func (s *EventStream) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/track", s.handleUpgrade)
	return r
}

func (s *EventStream) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("eventstream: upgrade failed", "error", err)
		return
	}

	out := make(chan event.Event, 32)
	s.mu.Lock()
	s.clients[conn] = out
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for e := range out {
		raw, err := encodeEvent(e)
		if err != nil {
			continue
		}
		if err := conn.WriteJSON(frame{Kind: "event", Data: raw}); err != nil {
			return
		}
	}
}

// Publish fans e out to every connected track-show client (spec §4.9-style
// non-blocking delivery: a slow client drops rather than stalling the
// publisher).
func (s *EventStream) Publish(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- e:
		default:
			s.log.Warn("eventstream: client channel full, dropping event", "kind", e.Kind)
			_ = conn // retained only as the map key; no action needed on drop
		}
	}
}
