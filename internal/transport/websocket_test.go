package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.PingTimeout = 30 * time.Second
	cfg.BufferSize = 100
	return cfg
}

func TestWebSocket_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	tr := NewWebSocket(testConfig(wsURL(server)), nil)

	if err := tr.Connect(context.Background(), Credentials{Token: "tok-1"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !tr.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := tr.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if tr.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestWebSocket_ConnectWithoutToken(t *testing.T) {
	tr := NewWebSocket(testConfig("ws://127.0.0.1:1"), nil)

	err := tr.Connect(context.Background(), Credentials{})
	if err != ErrMissingToken {
		t.Errorf("Connect error = %v, want ErrMissingToken", err)
	}
}

func TestWebSocket_AuthHeaders(t *testing.T) {
	var gotAuth, gotOrg string
	var mu sync.Mutex

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("X-Organization-ID")
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	tr := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := tr.Connect(context.Background(), Credentials{Token: "tok-1", OrganizationID: "org-1"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", gotAuth)
	}
	if gotOrg != "org-1" {
		t.Errorf("X-Organization-ID = %q, want org-1", gotOrg)
	}
}

func TestWebSocket_SendAndReceive(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Echo everything back
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	})
	defer server.Close()

	tr := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := tr.Connect(context.Background(), Credentials{Token: "tok-1"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	payload := []byte(`{"type":"ping","ts":123}`)
	if err := tr.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-tr.Messages():
		if string(msg.Data) != string(payload) {
			t.Errorf("echoed = %s, want %s", msg.Data, payload)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestWebSocket_SendWhileDisconnected(t *testing.T) {
	tr := NewWebSocket(testConfig("ws://127.0.0.1:1"), nil)

	if err := tr.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
}

func TestWebSocket_ServerDropSurfacesError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the connection immediately after upgrade.
		conn.Close()
	})
	defer server.Close()

	tr := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := tr.Connect(context.Background(), Credentials{Token: "tok-1"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	select {
	case err := <-tr.Errors():
		if err == nil {
			t.Error("expected non-nil transport error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport error")
	}
}

func TestWebSocket_ConnectAfterClose(t *testing.T) {
	tr := NewWebSocket(testConfig("ws://127.0.0.1:1"), nil)
	tr.Close()

	if err := tr.Connect(context.Background(), Credentials{Token: "tok-1"}); err != ErrAlreadyClosed {
		t.Errorf("Connect error = %v, want ErrAlreadyClosed", err)
	}
}
