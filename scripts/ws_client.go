// Package main runs a demo WebSocket client that follows the progress of an
// asynchronous solve.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoInstance = `{
  "planDate": "2024-09-05",
  "async": true,
  "drivers": [
    {"id": 1, "capacity": 6, "start": {"lat": 40.7128, "lng": -74.0060}},
    {"id": 2, "capacity": 6, "start": {"lat": 40.7306, "lng": -73.9866}}
  ],
  "orders": [
    {"id": 101, "items": 2, "pickup": {"lat": 40.7150, "lng": -74.0020}, "delivery": {"lat": 40.7420, "lng": -73.9890}},
    {"id": 102, "items": 1, "pickup": {"lat": 40.7200, "lng": -73.9980}, "delivery": {"lat": 40.7060, "lng": -74.0090},
     "deliveryWindow": {"start": 0, "end": 3600}},
    {"id": 103, "items": 3, "pickup": {"lat": 40.7310, "lng": -73.9890}, "delivery": {"lat": 40.7480, "lng": -73.9850}},
    {"id": 104, "items": 2, "pickup": {"lat": 40.7250, "lng": -73.9950}, "delivery": {"lat": 40.7180, "lng": -73.9750}}
  ],
  "config": {"numIterations": 2000, "segmentSize": 100}
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Queue a solve
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader([]byte(demoInstance)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("solve: unexpected status %s", resp.Status)
	}
	var run struct {
		ID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", run.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"runId": run.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		switch m.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "complete":
			log.Printf("WS <- complete")
			return
		default:
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}
}
