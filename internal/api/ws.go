package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Run progress over WebSocket, framed like graphql-transport-ws:
// connection_init/connection_ack, subscribe/next/complete, ping/pong.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	RunID string `json:"runId"`
}

// RunsWSHandler handles /v1/runs/ws
func (s *Server) RunsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	_, tenant := s.withTenant(r)

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	// Track subscriptions: id -> runID and channel
	type sub struct {
		runID string
		ch    chan SSEEvent
	}
	var subsMu sync.Mutex
	subs := map[string]sub{}
	drop := func(id string) {
		subsMu.Lock()
		s0, ok := subs[id]
		delete(subs, id)
		subsMu.Unlock()
		if ok {
			s.Broker.Unsubscribe(s0.runID, s0.ch)
		}
	}
	done := make(chan struct{})
	defer close(done)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.RunID == "" || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"id and runId required"}`)})
				continue
			}
			ch := s.Broker.Subscribe(pl.RunID)
			run, err := s.Store.GetRun(r.Context(), tenant, pl.RunID)
			if err != nil {
				s.Broker.Unsubscribe(pl.RunID, ch)
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"run not found"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			if run.Finished() {
				s.Broker.Unsubscribe(pl.RunID, ch)
				payload, _ := json.Marshal(completedEvent(run))
				_ = write(wsMessage{Type: "next", ID: msg.ID, Payload: payload})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			drop(msg.ID)
			subsMu.Lock()
			subs[msg.ID] = sub{runID: pl.RunID, ch: ch}
			subsMu.Unlock()
			// Fanout goroutine
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					payload, _ := json.Marshal(evt)
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						log.WithError(err).Debug("ws write failed")
					}
					if evt.Type == EventRunCompleted {
						drop(id)
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			drop(msg.ID)
		default:
			// ignore
		}
	}
	// Cleanup
	subsMu.Lock()
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	subsMu.Unlock()
	for _, id := range ids {
		drop(id)
	}
}
