package ws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin:  func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if c.Subprotocol() != Subprotocol {
			return
		}
		// A text frame must be skipped by the stream reader.
		_ = c.WriteMessage(websocket.TextMessage, []byte("ignored"))
		for {
			mt, b, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, b); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConnStreamsAcrossMessages(t *testing.T) {
	srv := echoServer(t)
	u, err := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, u, DialConfig{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for _, part := range []string{"hello", "wor", "ld"} {
		if n, err := conn.Write([]byte(part)); err != nil || n != len(part) {
			t.Fatalf("Write(%q): n=%d err=%v", part, n, err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, len("helloworld"))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "helloworld" {
		t.Fatalf("got %q", buf)
	}
	if conn.RemoteAddr() == nil || conn.LocalAddr() == nil {
		t.Fatalf("expected addresses")
	}
}

func TestDialFailsOnBadEndpoint(t *testing.T) {
	u, _ := url.Parse("ws://127.0.0.1:1/mqtt")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, u, DialConfig{HandshakeTimeout: time.Second}); err == nil {
		t.Fatalf("expected dial error")
	}
}
