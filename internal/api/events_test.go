package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/notebook/internal/model"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// readEvent returns the next event of the given type, skipping others.
func readEvent(t *testing.T, conn *websocket.Conn, typ string) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading %s event: %v", typ, err)
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decoding event %q: %v", msg, err)
		}
		if ev.Type == typ {
			return ev
		}
	}
}

func TestHubBroadcastsStoreChanges(t *testing.T) {
	a := newTestApp(t)
	hub := startHub(t)
	stop := hub.Watch(a)
	defer stop()

	conn := dialHub(t, hub)
	// The upgrade completes before registration; a ping round trip proves the
	// client is registered.
	if err := conn.WriteJSON(Event{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	readEvent(t, conn, "pong")

	if _, err := a.Notes.Create(context.Background(), model.NoteInput{Title: "streamed"}); err != nil {
		t.Fatal(err)
	}

	ev := readEvent(t, conn, "notes")
	raw, _ := json.Marshal(ev.Data)
	var list []model.Note
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decoding notes: %v", err)
	}
	if len(list) != 2 || list[0].Title != "streamed" {
		t.Errorf("notes event = %+v", list)
	}
}

func TestHubPomodoroEvent(t *testing.T) {
	a := newTestApp(t)
	hub := startHub(t)
	defer hub.Watch(a)()

	conn := dialHub(t, hub)
	conn.WriteJSON(Event{Type: "ping"})
	readEvent(t, conn, "pong")

	a.Pomodoro.StartTimer()
	ev := readEvent(t, conn, "pomodoro")
	raw, _ := json.Marshal(ev.Data)
	var view timerView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatal(err)
	}
	if !view.Running {
		t.Errorf("pomodoro event = %+v", view)
	}
}

func TestHubStopWatching(t *testing.T) {
	a := newTestApp(t)
	hub := NewHub(nil)
	stop := hub.Watch(a)
	stop()

	a.Tasks.Create(context.Background(), model.TaskInput{Title: "quiet"})
	select {
	case msg := <-hub.broadcast:
		t.Errorf("event published after stop: %s", msg)
	default:
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < sendBuffer*2; i++ {
		hub.Publish(Event{Type: "notes"})
	}
	if n := len(hub.broadcast); n != sendBuffer {
		t.Errorf("queued = %d, want %d", n, sendBuffer)
	}
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"http://app.example"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": {"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("upgrade from a foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	header.Set("Origin", "http://app.example")
	conn, _, err = websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("no origin header: %v", err)
	}
	conn.Close()
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"empty list", nil, "http://evil.example", "localhost:8080", true},
		{"wildcard", []string{"*"}, "http://evil.example", "localhost:8080", true},
		{"listed", []string{"http://app.example"}, "HTTP://APP.example", "localhost:8080", true},
		{"same host", []string{"http://app.example"}, "http://localhost:8080", "localhost:8080", true},
		{"foreign", []string{"http://app.example"}, "http://evil.example", "localhost:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			r.Header.Set("Origin", tt.origin)
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
			}
		})
	}
}
