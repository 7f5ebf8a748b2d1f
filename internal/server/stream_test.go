package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-quiz/internal/notify"
	"github.com/p-n-ai/pai-quiz/internal/server"
)

func dialStream(t *testing.T, h *harness, sessionID string) (context.Context, *websocket.Conn) {
	t.Helper()
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + sessionID + "/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return ctx, conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) server.Message {
	t.Helper()
	var m server.Message
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		t.Fatalf("wsjson.Read() error = %v", err)
	}
	return m
}

func TestStream_PushesViews(t *testing.T) {
	h := newHarness(t)
	id := h.start("guest-course-2", "")
	ctx, conn := dialStream(t, h, id)

	first := readMessage(t, ctx, conn)
	if first.Type != server.MessageView || first.View == nil || first.View.State != "in_progress" {
		t.Fatalf("first frame = %+v, want current view", first)
	}

	h.do(http.MethodPost, "/sessions/"+id+"/answer", "", map[string]int{"option": 3})
	m := readMessage(t, ctx, conn)
	if m.View == nil || m.View.Selected == nil || *m.View.Selected != 3 {
		t.Fatalf("frame = %+v, want selection 3", m)
	}
	if m.View.Version <= first.View.Version {
		t.Errorf("Version = %d, want > %d", m.View.Version, first.View.Version)
	}

	h.do(http.MethodPost, "/sessions/"+id+"/advance", "", nil)
	m = readMessage(t, ctx, conn)
	if m.View == nil || m.View.State != "showing_result" {
		t.Fatalf("frame = %+v, want showing_result", m)
	}
}

func TestStream_DeliversCompletionNotification(t *testing.T) {
	h := newHarness(t)
	id := h.start("guest-course-2", "")
	ctx, conn := dialStream(t, h, id)
	readMessage(t, ctx, conn)

	h.answer(id, 0)
	h.answer(id, 0)

	for {
		m := readMessage(t, ctx, conn)
		if m.Type != server.MessageNotification {
			continue
		}
		if m.Notification.Key != notify.KeyGuestCompleted {
			t.Fatalf("notification = %+v, want guest completion", m.Notification)
		}
		if m.Notification.SessionID != id {
			t.Errorf("SessionID = %q, want %q", m.Notification.SessionID, id)
		}
		return
	}
}

func TestStream_ClosedOnDelete(t *testing.T) {
	h := newHarness(t)
	id := h.start("guest-course-1", "")
	ctx, conn := dialStream(t, h, id)
	readMessage(t, ctx, conn)

	if rec := h.do(http.MethodDelete, "/sessions/"+id, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}

	var m server.Message
	err := wsjson.Read(ctx, conn, &m)
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Fatalf("close status = %v (err %v), want StatusGoingAway", status, err)
	}
}

func TestStream_UnknownSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/sessions/missing/stream", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHub(t *testing.T) {
	hub := server.NewHub()

	updates, unsubscribe := hub.Subscribe("s1")
	if hub.Subscribers("s1") != 1 {
		t.Fatalf("Subscribers() = %d, want 1", hub.Subscribers("s1"))
	}

	hub.Publish("s1", server.Message{Type: server.MessageView})
	hub.Publish("s2", server.Message{Type: server.MessageView})
	if err := hub.Deliver(context.Background(), notify.Notification{Key: "no-session"}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if err := hub.Deliver(context.Background(), notify.Notification{Key: "k", SessionID: "s1"}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if m := <-updates; m.Type != server.MessageView {
		t.Errorf("first message = %+v, want view", m)
	}
	if m := <-updates; m.Type != server.MessageNotification || m.Notification.Key != "k" {
		t.Errorf("second message = %+v, want notification k", m)
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-updates; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if hub.Subscribers("s1") != 0 {
		t.Errorf("Subscribers() = %d, want 0", hub.Subscribers("s1"))
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := server.NewHub()
	updates, unsubscribe := hub.Subscribe("s1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for range 100 {
			hub.Publish("s1", server.Message{Type: server.MessageView})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(updates) == 0 {
		t.Error("expected buffered messages")
	}
}
