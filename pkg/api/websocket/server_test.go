package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	ts := httptest.NewServer(NewServer(hub, zap.NewNop()))
	t.Cleanup(ts.Close)
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload interface{}) {
	t.Helper()
	msg := Message{Type: typ}
	if payload != nil {
		data, _ := json.Marshal(payload)
		msg.Payload = data
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("failed to send %s: %v", typ, err)
	}
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	return msg
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	msg := read(t, conn)
	if msg.Type != "event" {
		t.Fatalf("expected event, got %s", msg.Type)
	}
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	return ev
}

func TestConnectAndPing(t *testing.T) {
	hub, url := newTestServer(t)
	conn := dial(t, url)

	send(t, conn, "ping", nil)
	if msg := read(t, conn); msg.Type != "pong" {
		t.Errorf("expected pong, got %s", msg.Type)
	}
	if count := hub.ClientCount(); count != 1 {
		t.Errorf("expected 1 client, got %d", count)
	}
}

func TestInvalidMessages(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	if msg := read(t, conn); msg.Type != "error" {
		t.Errorf("expected error, got %s", msg.Type)
	}

	send(t, conn, "subscribe", SubscribeRequest{})
	if msg := read(t, conn); msg.Type != "error" {
		t.Errorf("expected error for empty id, got %s", msg.Type)
	}

	send(t, conn, "shout", nil)
	msg := read(t, conn)
	if msg.Type != "error" {
		t.Fatalf("expected error, got %s", msg.Type)
	}
	var e ErrorMessage
	_ = json.Unmarshal(msg.Payload, &e)
	if !strings.Contains(e.Error, "shout") {
		t.Errorf("unexpected error message %q", e.Error)
	}
}

func TestSearchEvents(t *testing.T) {
	hub, url := newTestServer(t)
	conn := dial(t, url)

	send(t, conn, "subscribe", SubscribeRequest{ID: "job-1"})
	if msg := read(t, conn); msg.Type != "success" {
		t.Fatalf("expected success, got %s", msg.Type)
	}

	hub.PublishProgress(search.Progress{ID: "job-2", Kind: search.KindStorageChange, Window: locator.Window{Low: 0, High: 10}})
	hub.PublishProgress(search.Progress{ID: "job-1", Kind: search.KindStorageChange, Window: locator.Window{Low: 5, High: 10}})

	ev := readEvent(t, conn)
	if ev.Type != EventProgress || ev.ID != "job-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	data, _ := json.Marshal(ev.Data)
	var p search.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("failed to decode progress: %v", err)
	}
	if p.Window.Low != 5 || p.Window.High != 10 {
		t.Errorf("unexpected window %v", p.Window)
	}

	hub.PublishDone(&search.Record{ID: "job-1", Kind: search.KindStorageChange, Status: search.StatusSucceeded})
	ev = readEvent(t, conn)
	if ev.Type != EventDone || ev.ID != "job-1" {
		t.Errorf("unexpected event %+v", ev)
	}

	send(t, conn, "unsubscribe", UnsubscribeRequest{ID: "job-1"})
	if msg := read(t, conn); msg.Type != "success" {
		t.Fatalf("expected success, got %s", msg.Type)
	}
	hub.PublishDone(&search.Record{ID: "job-1", Status: search.StatusSucceeded})

	send(t, conn, "ping", nil)
	if msg := read(t, conn); msg.Type != "pong" {
		t.Errorf("expected pong, got %s", msg.Type)
	}
}

func TestSubscribeAll(t *testing.T) {
	hub, url := newTestServer(t)
	conn := dial(t, url)

	send(t, conn, "subscribe", SubscribeRequest{ID: AllSearches})
	if msg := read(t, conn); msg.Type != "success" {
		t.Fatalf("expected success, got %s", msg.Type)
	}

	for _, id := range []string{"a", "b"} {
		hub.PublishDone(&search.Record{ID: id, Status: search.StatusFailed})
		if ev := readEvent(t, conn); ev.ID != id {
			t.Errorf("expected event for %s, got %s", id, ev.ID)
		}
	}
}

func TestHubStop(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	hub.Stop()
	hub.Stop()

	hub.PublishDone(&search.Record{ID: "late"})
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients after stop")
	}
}
