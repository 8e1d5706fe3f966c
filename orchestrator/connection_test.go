package orchestrator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair upgrades a loopback connection and hands back both ends.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConns := make(chan *websocket.Conn, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server := <-serverConns
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestEnqueueAndSend(t *testing.T) {
	server, client := wsPair(t)
	conn := NewClientConnection(server, "sess", "ws://unused", 8, nil)
	conn.StartSender()
	defer conn.Close(websocket.CloseNormalClosure, "")

	conn.Enqueue([]byte(`{"kind":"transcript"}`))

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"kind":"transcript"}` {
		t.Errorf("frame = %s", data)
	}
}

func TestBackpressureCloses(t *testing.T) {
	server, client := wsPair(t)

	// No sender running, queue capacity 1: the first frame sits in the
	// queue and everything after it is a drop.
	conn := NewClientConnection(server, "sess", "ws://unused", 1, nil)
	conn.Enqueue([]byte("1"))
	for i := 0; i < maxQueueFullDrops+1; i++ {
		conn.Enqueue([]byte("overflow"))
	}

	deadline := time.Now().Add(5 * time.Second)
	for !conn.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("connection never closed under backpressure")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseInternalServerErr {
		t.Errorf("close code = %d, want 1011", closeErr.Code)
	}
	if closeErr.Text != "backpressure" {
		t.Errorf("close reason = %q", closeErr.Text)
	}
}

func TestZeroCapacityQueueDropsEveryEnqueue(t *testing.T) {
	server, client := wsPair(t)

	// Capacity 0 with the sender running: a parked receiver must not make
	// the occasional enqueue succeed; every frame is a drop.
	conn := NewClientConnection(server, "sess", "ws://unused", 0, nil)
	conn.StartSender()

	for i := 0; i < maxQueueFullDrops+1; i++ {
		conn.Enqueue([]byte("frame"))
	}
	if got := conn.queueFullCount.Load(); got != maxQueueFullDrops+1 {
		t.Errorf("drops = %d, want %d", got, maxQueueFullDrops+1)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !conn.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("connection never closed under backpressure")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseInternalServerErr {
		t.Errorf("close code = %d, want 1011", closeErr.Code)
	}
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	server, _ := wsPair(t)
	conn := NewClientConnection(server, "sess", "ws://unused", 1, nil)
	conn.Close(websocket.CloseNormalClosure, "")

	// Must not panic or count drops.
	conn.Enqueue([]byte("late"))
	if got := conn.queueFullCount.Load(); got != 0 {
		t.Errorf("drops after close = %d, want 0", got)
	}
}
