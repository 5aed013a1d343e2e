// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/session"
)

// Websocket timings.
const (
	writeWait  = 10 * time.Second
	pongWait   = 45 * time.Second
	pingPeriod = 30 * time.Second

	// eventQueueSize is how many events may wait for a slow client before
	// it is disconnected.
	eventQueueSize = 256
)

// EventReady is the first frame of every stream. It carries the chat list.
const EventReady session.EventKind = "ready"

// EventFrame is one websocket frame. Message events carry the updated
// message; chat events carry the chat when it still exists.
type EventFrame struct {
	session.Event
	Chat          *model.Chat    `json:"chat,omitempty"`
	Message       *model.Message `json:"message,omitempty"`
	Chats         []model.Chat   `json:"chats,omitempty"`
	CurrentChatID string         `json:"currentChatId,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     localOrigin,
}

// localOrigin accepts non-browser clients and pages served from the same
// host or from loopback.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// frameFor attaches the data a client needs to apply ev without a
// follow-up request.
func frameFor(state *session.State, ev session.Event) EventFrame {
	frame := EventFrame{Event: ev}
	switch ev.Kind {
	case session.EventMessageAdded, session.EventMessageUpdated:
		if msg, err := state.Message(ev.MessageIndex); err == nil && msg.ChatID == ev.ChatID {
			frame.Message = &msg
		}
	case session.EventChatCreated, session.EventChatRenamed, session.EventCurrentChanged:
		if c, ok := state.Chat(ev.ChatID); ok {
			frame.Chat = &c
		}
	case session.EventChatsLoaded:
		frame.Chats = state.Chats()
	}
	return frame
}

// handleEvents streams session state changes over a websocket until the
// client goes away, falls too far behind, or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.stats.eventClients.Add(1)
	defer s.stats.eventClients.Add(-1)

	state := s.orch.State()
	queue := make(chan EventFrame, eventQueueSize)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe := state.Subscribe(func(ev session.Event) {
		select {
		case queue <- frameFor(state, ev):
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	// The reader only watches for the client closing and answers pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := state.Snapshot()
	ready := EventFrame{
		Event:         session.Event{Kind: EventReady, MessageIndex: -1, PartIndex: -1},
		Chats:         snap.Chats,
		CurrentChatID: snap.CurrentChatID,
	}
	if err := s.writeFrame(conn, ready); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case frame := <-queue:
			if err := s.writeFrame(conn, frame); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-overflow:
			s.logger.Warn("event client too slow, disconnecting", "remote", clientIP(r))
			s.closeFrame(conn, websocket.CloseTryAgainLater, "event queue overflow")
			return
		case <-s.closing:
			s.closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-closed:
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame EventFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func (s *Server) closeFrame(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
