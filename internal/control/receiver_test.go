package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pjatk21/sigma-api/internal/bus"
	"github.com/pjatk21/sigma-api/internal/model"
)

var upgrader = websocket.Upgrader{}

// newSocketPair starts a test WebSocket server and returns the client-side
// connection and a function to close the server's connection (simulating a
// peer-initiated close).
func newSocketPair(t *testing.T) (client *websocket.Conn, closeServerConn func()) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	serverConn := <-connCh
	return c, func() { serverConn.Close() }
}

func TestReceiver_PublishesDecodedCommand(t *testing.T) {
	client, _ := newSocketPair(t)

	b := bus.New(10, zap.NewNop())
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	r := New(client, b, zap.NewNop())
	go r.Run(context.Background())

	payload := `{"scrapUntil":"2024-01-15T00:00:00Z"}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-sub:
		if msg.Kind != model.KindCommand {
			t.Fatalf("kind = %v, want KindCommand", msg.Kind)
		}
		want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		if !msg.Command.ScrapUntil.Equal(want) {
			t.Errorf("scrapUntil = %v, want %v", msg.Command.ScrapUntil, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded command")
	}
}

func TestReceiver_DropsMalformedFrameAndContinues(t *testing.T) {
	client, _ := newSocketPair(t)

	b := bus.New(10, zap.NewNop())
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	r := New(client, b, zap.NewNop())
	go r.Run(context.Background())

	if err := client.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"scrapUntil":"2024-02-01T00:00:00Z"}`)); err != nil {
		t.Fatalf("write valid: %v", err)
	}

	select {
	case msg := <-sub:
		if msg.Kind != model.KindCommand {
			t.Fatalf("kind = %v, want KindCommand (malformed frame should have been dropped, not published)", msg.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the valid command after a malformed frame")
	}
}

func TestReceiver_PublishesQuitOnClose(t *testing.T) {
	client, closeServerConn := newSocketPair(t)
	_ = client

	b := bus.New(10, zap.NewNop())
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	r := New(client, b, zap.NewNop())
	go r.Run(context.Background())

	closeServerConn()

	select {
	case msg := <-sub:
		if msg.Kind != model.KindQuit {
			t.Fatalf("kind = %v, want KindQuit", msg.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Quit after peer close")
	}
}
