package stt

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/protocol"
)

// frameSink collects frames sent down the ingress socket.
type frameSink struct {
	mu     sync.Mutex
	frames []any
}

func (s *frameSink) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, v)
	return nil
}

func (s *frameSink) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.frames...)
}

func TestPipelineEmitsFinalAndPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	busClient := bus.NewFromClient(rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ps := rdb.Subscribe(ctx, protocol.ChannelTranscripts)
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer ps.Close()
	transcripts := ps.Channel()

	lp := -0.2
	provider := &fakeProvider{result: &Result{
		Text:     "make a button",
		Duration: 0.5,
		Segments: []ResultChunk{{AvgLogprob: &lp}},
	}}

	segmenter := testSegmenter([]float32{1, 1, 1, 0, 0}, 200, 150)
	pool := NewPool(provider, 2)
	sink := &frameSink{}
	pipeline := NewPipeline("sess-1", segmenter, pool, busClient, sink.send, "")

	audioIn := make(chan []byte, 4)
	audioIn <- make([]byte, 5*testWindowBytes)
	close(audioIn)

	if err := pipeline.Run(ctx, audioIn); err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	frames := sink.all()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	frame, ok := frames[0].(transcriptFrame)
	if !ok {
		t.Fatalf("frame type = %T", frames[0])
	}
	if frame.Type != "final" {
		t.Errorf("type = %q, want final", frame.Type)
	}
	if frame.Text != "make a button" {
		t.Errorf("text = %q", frame.Text)
	}
	if frame.TsStart != 0 || frame.TsEnd != 0.5 {
		t.Errorf("ts = [%f, %f], want [0, 0.5]", frame.TsStart, frame.TsEnd)
	}
	if frame.Speaker != "sess-1" {
		t.Errorf("speaker = %q", frame.Speaker)
	}
	wantConf := math.Round(math.Exp(-0.2)*1e4) / 1e4
	if frame.Confidence == nil || *frame.Confidence != wantConf {
		t.Errorf("confidence = %v, want %f", frame.Confidence, wantConf)
	}

	select {
	case redisMsg := <-transcripts:
		var published protocol.TranscriptMsg
		if err := json.Unmarshal([]byte(redisMsg.Payload), &published); err != nil {
			t.Fatalf("published payload: %v", err)
		}
		if published.Text != "make a button" {
			t.Errorf("published text = %q", published.Text)
		}
		if published.UtteranceID != frame.UtteranceID {
			t.Error("published utterance id differs from frame")
		}
		if published.Speaker != "sess-1" {
			t.Errorf("published speaker = %q", published.Speaker)
		}
		if published.SchemaVersion != protocol.SchemaVersion {
			t.Errorf("schema version = %q", published.SchemaVersion)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transcript never published to the bus")
	}
}

func TestPipelineEmitsPartialsBeforeFinal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ps := rdb.Subscribe(ctx, protocol.ChannelTranscripts)
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer ps.Close()

	provider := &fakeProvider{result: &Result{Text: "make a button", Duration: 0.4}}
	segmenter := NewSegmenter(&scriptModel{probs: []float32{1, 1, 1, 1, 0, 0}}, SegmenterConfig{
		SampleRate:     1000,
		WindowSamples:  100,
		Threshold:      0.5,
		MinSilenceMs:   200,
		MinSpeechMs:    150,
		PartialEveryMs: 200,
	})
	pool := NewPool(provider, 2)
	sink := &frameSink{}
	pipeline := NewPipeline("sess-1", segmenter, pool, bus.NewFromClient(rdb), sink.send, "")

	audioIn := make(chan []byte, 4)
	audioIn <- make([]byte, 6*testWindowBytes)
	close(audioIn)

	if err := pipeline.Run(ctx, audioIn); err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	frames := sink.all()
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 2 partials + 1 final", len(frames))
	}
	first := frames[0].(transcriptFrame)
	last := frames[2].(transcriptFrame)
	if first.Type != "partial" || frames[1].(transcriptFrame).Type != "partial" {
		t.Errorf("leading frames should be partials: %+v", frames)
	}
	if first.Confidence != nil {
		t.Error("partials carry no confidence")
	}
	if last.Type != "final" {
		t.Errorf("last frame type = %q, want final", last.Type)
	}
	if first.UtteranceID != last.UtteranceID {
		t.Error("partials and final must share an utterance id")
	}

	// Only the final reaches the bus.
	select {
	case <-ps.Channel():
	case <-time.After(5 * time.Second):
		t.Fatal("final transcript never published")
	}
	select {
	case msg := <-ps.Channel():
		t.Fatalf("unexpected extra publication: %s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPipelineSkipsEmptyTranscription(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	provider := &fakeProvider{result: &Result{Text: "   ", Duration: 0.5}}
	segmenter := testSegmenter([]float32{1, 1, 1, 0, 0}, 200, 150)
	pool := NewPool(provider, 2)
	sink := &frameSink{}
	pipeline := NewPipeline("sess-1", segmenter, pool, bus.NewFromClient(rdb), sink.send, "")

	audioIn := make(chan []byte, 4)
	audioIn <- make([]byte, 5*testWindowBytes)
	close(audioIn)

	if err := pipeline.Run(context.Background(), audioIn); err != nil {
		t.Fatalf("pipeline run: %v", err)
	}
	if frames := sink.all(); len(frames) != 0 {
		t.Errorf("blank transcription should emit nothing, got %v", frames)
	}
}

func TestPipelineFlushesOnStreamEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	provider := &fakeProvider{result: &Result{Text: "hello", Duration: 0.2}}
	// Speech never followed by silence: only the flush closes it.
	segmenter := testSegmenter([]float32{1, 1}, 200, 150)
	pool := NewPool(provider, 2)
	sink := &frameSink{}
	pipeline := NewPipeline("sess-1", segmenter, pool, bus.NewFromClient(rdb), sink.send, "")

	audioIn := make(chan []byte, 4)
	audioIn <- make([]byte, 2*testWindowBytes)
	close(audioIn)

	if err := pipeline.Run(context.Background(), audioIn); err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	frames := sink.all()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1 from flush", len(frames))
	}
	if frame := frames[0].(transcriptFrame); frame.Type != "final" || frame.Text != "hello" {
		t.Errorf("frame = %+v", frame)
	}
}
