package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromClient(rdb)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client := testClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type note struct {
		Text string `json:"text"`
	}

	var mu sync.Mutex
	var received []note
	done := make(chan struct{})

	go client.Subscribe(ctx, []string{"notes"}, func(ctx context.Context, channel string, payload []byte) error {
		var n note
		if err := json.Unmarshal(payload, &n); err != nil {
			return err
		}
		mu.Lock()
		received = append(received, n)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})

	// The subscription races the publish; keep publishing until delivery.
	deadline := time.After(5 * time.Second)
	for {
		if err := client.Publish(ctx, "notes", note{Text: "hello"}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		select {
		case <-done:
			mu.Lock()
			got := received[0]
			mu.Unlock()
			if got.Text != "hello" {
				t.Errorf("payload = %q, want %q", got.Text, "hello")
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("message never delivered")
		}
	}
}

func TestHandlerErrorDoesNotStopSubscription(t *testing.T) {
	client := testClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 8)
	go client.Subscribe(ctx, []string{"notes"}, func(ctx context.Context, channel string, payload []byte) error {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return err // malformed payload, should be swallowed
		}
		got <- s
		return nil
	})

	deadline := time.After(5 * time.Second)
	for {
		// A malformed payload first, then a good one; both through the
		// same subscription.
		client.rdb.Publish(ctx, "notes", "{not json")
		if err := client.Publish(ctx, "notes", "ok"); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		select {
		case s := <-got:
			if s != "ok" {
				t.Errorf("payload = %q, want %q", s, "ok")
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("subscription stalled after handler error")
		}
	}
}

func TestPing(t *testing.T) {
	client := testClient(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestWaitReady(t *testing.T) {
	client := testClient(t)
	if err := client.WaitReady(context.Background()); err != nil {
		t.Fatalf("wait ready failed: %v", err)
	}
}

func TestWaitReadyCancelled(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	client := NewFromClient(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.WaitReady(ctx); err == nil {
		t.Fatal("expected error with unreachable redis and cancelled context")
	}
}
