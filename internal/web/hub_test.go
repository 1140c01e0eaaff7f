package web_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"rssreader/internal/render"
	"rssreader/internal/web"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newHubServer(t *testing.T, opts ...web.HubOption) (*web.Hub, string) {
	t.Helper()

	hub := web.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, func() []web.Message { return nil })
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func waitForClients(t *testing.T, hub *web.Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", want, hub.Clients())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// readUntilClose drains conn and returns the error that ended the stream.
func readUntilClose(t *testing.T, conn *websocket.Conn) error {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func TestHubDropsClientThatDoesNotRead(t *testing.T) {
	hub, wsURL := newHubServer(t)
	conn := dial(t, wsURL)
	waitForClients(t, hub, 1)

	// Large fragments fill the socket buffers, after which the send buffer fills too.
	fragment := strings.Repeat("x", 64*1024)
	for i := 0; i < 2000 && hub.Clients() > 0; i++ {
		hub.Publish(render.RegionPosts, fragment)
	}

	if got := hub.Clients(); got != 0 {
		t.Fatalf("expected the slow client to be dropped, got %d clients", got)
	}

	var closeErr *websocket.CloseError
	if err := readUntilClose(t, conn); !errors.As(err, &closeErr) {
		t.Fatalf("expected a close frame, got %v", err)
	}
}

func TestHubCloseDisconnectsAndRefuses(t *testing.T) {
	hub, wsURL := newHubServer(t)
	conn := dial(t, wsURL)
	waitForClients(t, hub, 1)

	hub.Close()

	if got := hub.Clients(); got != 0 {
		t.Fatalf("expected no clients after close, got %d", got)
	}

	var closeErr *websocket.CloseError
	if err := readUntilClose(t, conn); !errors.As(err, &closeErr) {
		t.Fatalf("expected a close frame, got %v", err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected a closed hub to refuse new clients")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from a closed hub, got %v", resp)
	}
	_ = resp.Body.Close()
}

func TestHubPingsClients(t *testing.T) {
	hub, wsURL := newHubServer(t, web.WithKeepalive(20*time.Millisecond, time.Second))
	conn := dial(t, wsURL)

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Pongs keep refreshing the read deadline well past the one second timeout.
	time.Sleep(1500 * time.Millisecond)

	if pings.Load() < 5 {
		t.Fatalf("expected regular pings, got %d", pings.Load())
	}

	if got := hub.Clients(); got != 1 {
		t.Fatalf("expected the answering client to stay connected, got %d clients", got)
	}
}

func TestHubDropsClientWithoutPongs(t *testing.T) {
	hub, wsURL := newHubServer(t, web.WithKeepalive(20*time.Millisecond, 200*time.Millisecond))
	conn := dial(t, wsURL)
	waitForClients(t, hub, 1)

	conn.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	waitForClients(t, hub, 0)
}
