package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/protocol"
)

func TestGenerateButton(t *testing.T) {
	spec := protocol.DesignSpec{SpecID: uuid.New(), Component: "button"}
	msg := Generate(spec)

	if !strings.HasPrefix(msg.JSX, "<button") {
		t.Errorf("jsx = %q", msg.JSX)
	}
	if len(msg.NamedExports) != 1 || msg.NamedExports[0] != "MockButton" {
		t.Errorf("exports = %v", msg.NamedExports)
	}
	if msg.SpecID != spec.SpecID {
		t.Error("spec id not carried")
	}
	if !msg.LintPassed {
		t.Error("stub output should pass lint")
	}
}

func TestGenerateFallback(t *testing.T) {
	msg := Generate(protocol.DesignSpec{SpecID: uuid.New(), Component: "modal"})
	if msg.JSX != "<div>modal</div>" {
		t.Errorf("jsx = %q", msg.JSX)
	}
	if len(msg.NamedExports) != 1 || msg.NamedExports[0] != "MockComponent" {
		t.Errorf("exports = %v", msg.NamedExports)
	}
}

func testServer(t *testing.T) (*Server, *httptest.Server, <-chan *redis.Message) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ps := rdb.Subscribe(ctx, protocol.ChannelComponents)
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { ps.Close() })

	cfg := &Config{ServiceName: "code_generator", Host: "127.0.0.1"}
	s := NewServer(cfg, bus.NewFromClient(rdb))
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts, ps.Channel()
}

func TestGenerateEndpointPublishes(t *testing.T) {
	_, ts, components := testServer(t)

	spec := protocol.DesignSpec{SpecID: uuid.New(), Component: "button"}
	body, _ := json.Marshal(spec)
	resp, err := http.Post(ts.URL+"/v1/generate", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var returned protocol.ComponentMsg
	if err := json.NewDecoder(resp.Body).Decode(&returned); err != nil {
		t.Fatal(err)
	}
	if returned.SpecID != spec.SpecID {
		t.Errorf("returned spec id = %s", returned.SpecID)
	}

	select {
	case msg := <-components:
		var published protocol.ComponentMsg
		if err := json.Unmarshal([]byte(msg.Payload), &published); err != nil {
			t.Fatal(err)
		}
		if published.SpecID != spec.SpecID || published.JSX != returned.JSX {
			t.Errorf("published = %+v", published)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("component never published")
	}
}

func TestSpecConsumerPublishes(t *testing.T) {
	s, _, components := testServer(t)

	spec := protocol.DesignSpec{SpecID: uuid.New(), Component: "modal"}
	payload, _ := json.Marshal(spec)
	if err := s.handleSpec(context.Background(), protocol.ChannelDesignSpecs, payload); err != nil {
		t.Fatalf("handleSpec: %v", err)
	}

	select {
	case msg := <-components:
		var published protocol.ComponentMsg
		if err := json.Unmarshal([]byte(msg.Payload), &published); err != nil {
			t.Fatal(err)
		}
		if published.JSX != "<div>modal</div>" {
			t.Errorf("jsx = %q", published.JSX)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("component never published")
	}
}

func TestGenerateEndpointRejectsBadBody(t *testing.T) {
	_, ts, _ := testServer(t)

	resp, err := http.Post(ts.URL+"/v1/generate", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
