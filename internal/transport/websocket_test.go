// SPDX-License-Identifier: MIT
package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"playhead/pkg/playhead"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) PositionMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg PositionMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := NewWebSocketTransport("")
	srv := httptest.NewServer(wst)
	defer srv.Close()
	defer wst.Close()

	a, b := dial(t, srv), dial(t, srv)
	waitFor(t, func() bool { return wst.ClientCount() == 2 })

	pos := playhead.DefaultPositionInfo()
	pos.PPQPosition = 3.25
	pos.IsPlaying = true
	pos.FrameRate = playhead.FPS2997Drop
	if err := wst.Send(PositionMessage{Sequence: 9, Available: true, Position: pos}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		if msg.Sequence != 9 || !msg.Available || msg.Position != pos {
			t.Errorf("received %+v", msg)
		}
	}
}

func TestWebSocketLateClientGetsLatest(t *testing.T) {
	wst := NewWebSocketTransport("")
	srv := httptest.NewServer(wst)
	defer srv.Close()
	defer wst.Close()

	_ = wst.Send(PositionMessage{Sequence: 1})
	_ = wst.Send(PositionMessage{Sequence: 2})
	waitFor(t, func() bool {
		wst.clientsMu.Lock()
		defer wst.clientsMu.Unlock()
		m, ok := wst.last.(PositionMessage)
		return ok && m.Sequence == 2
	})

	conn := dial(t, srv)
	if msg := readMessage(t, conn); msg.Sequence != 2 {
		t.Errorf("late client got sequence %d, want 2", msg.Sequence)
	}
}

func TestWebSocketReplaysOnlyPositions(t *testing.T) {
	wst := NewWebSocketTransport("")
	srv := httptest.NewServer(wst)
	defer srv.Close()
	defer wst.Close()

	early := dial(t, srv)
	waitFor(t, func() bool { return wst.ClientCount() == 1 })

	type event struct {
		Event string `json:"event"`
	}
	_ = wst.Send(PositionMessage{Sequence: 5})
	_ = wst.Send(event{Event: "beat"})

	// The early client sees both, in order, once they were broadcast.
	if msg := readMessage(t, early); msg.Sequence != 5 {
		t.Fatalf("early client got sequence %d, want 5", msg.Sequence)
	}
	_ = early.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev event
	if err := early.ReadJSON(&ev); err != nil || ev.Event != "beat" {
		t.Fatalf("early client event = %+v, %v", ev, err)
	}

	late := dial(t, srv)
	if msg := readMessage(t, late); msg.Sequence != 5 {
		t.Errorf("late client got sequence %d, want the last position (5)", msg.Sequence)
	}
}

func TestWebSocketDisconnect(t *testing.T) {
	wst := NewWebSocketTransport("")
	srv := httptest.NewServer(wst)
	defer srv.Close()
	defer wst.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return wst.ClientCount() == 1 })
	_ = conn.Close()
	waitFor(t, func() bool { return wst.ClientCount() == 0 })
}

func TestWebSocketStartAndClose(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0")
	if err := wst.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if strings.HasSuffix(wst.Addr(), ":0") {
		t.Errorf("Addr() = %s, want the bound port", wst.Addr())
	}

	url := "ws://" + wst.Addr() + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := wst.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := wst.Send(PositionMessage{}); err != ErrClosed {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
}
