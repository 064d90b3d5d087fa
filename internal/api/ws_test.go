package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/smyja/web3event/internal/logstream"
)

func dialLogs(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func waitSubscribers(t *testing.T, hub *logstream.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, hub.Subscribers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamLogs_FiltersByJob(t *testing.T) {
	hub := logstream.NewHub()
	handler := newTestHandler(newMockStore(), &mockEmitter{}).WithLogStream(hub)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	jobA, jobB := uuid.New(), uuid.New()
	conn := dialLogs(t, srv, "?job_id="+jobA.String())
	waitSubscribers(t, hub, 1)

	hub.Publish(logstream.NewEntry(jobB, "info", "other job"))
	hub.Publish(logstream.NewEntry(jobA, "info", "Scraping page 1 for tag token"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msg LogMessage
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Log.Message != "Scraping page 1 for tag token" {
		t.Errorf("message = %q", msg.Log.Message)
	}
	if msg.Log.Level != "info" || msg.Log.Timestamp == "" {
		t.Errorf("entry = %+v", msg.Log)
	}
}

func TestStreamLogs_AllJobs(t *testing.T) {
	hub := logstream.NewHub()
	handler := newTestHandler(newMockStore(), &mockEmitter{}).WithLogStream(hub)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn := dialLogs(t, srv, "")
	waitSubscribers(t, hub, 1)

	hub.Publish(logstream.NewEntry(uuid.New(), "info", "one"))
	hub.Publish(logstream.NewEntry(uuid.New(), "warn", "two"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, want := range []string{"one", "two"} {
		var msg LogMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Log.Message != want {
			t.Errorf("message = %q, want %q", msg.Log.Message, want)
		}
	}
}

func TestStreamLogs_ClientCloseReleasesSubscription(t *testing.T) {
	hub := logstream.NewHub()
	handler := newTestHandler(newMockStore(), &mockEmitter{}).WithLogStream(hub)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn := dialLogs(t, srv, "")
	waitSubscribers(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitSubscribers(t, hub, 0)
}

func TestStreamLogs_ShutdownClosesStream(t *testing.T) {
	hub := logstream.NewHub()
	base, stop := context.WithCancel(context.Background())
	handler := newTestHandler(newMockStore(), &mockEmitter{}).WithLogStream(hub).WithBaseContext(base)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn := dialLogs(t, srv, "")
	waitSubscribers(t, hub, 1)
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("expected going-away close, got %v", err)
	}
}

func TestStreamLogs_InvalidJobID(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{}).WithLogStream(logstream.NewHub())

	w := serve(handler, http.MethodGet, "/ws?job_id=nope", "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
