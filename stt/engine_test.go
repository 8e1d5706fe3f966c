package stt

import (
	"context"
	"math"
	"testing"
	"time"
)

type fakeProvider struct {
	result *Result
	err    error
	block  chan struct{} // when set, Transcribe waits on it
}

func (p *fakeProvider) Transcribe(ctx context.Context, pcm []byte, language string) (*Result, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.result, p.err
}

func TestConfidenceFromAvgLogprob(t *testing.T) {
	lp := -0.2
	r := &Result{Segments: []ResultChunk{{AvgLogprob: &lp}}}

	c := r.Confidence()
	if c == nil {
		t.Fatal("confidence should be derived")
	}
	want := math.Round(math.Exp(-0.2)*1e4) / 1e4
	if *c != want {
		t.Errorf("confidence = %f, want %f", *c, want)
	}
}

func TestConfidenceAbsent(t *testing.T) {
	r := &Result{}
	if r.Confidence() != nil {
		t.Error("no segments should mean nil confidence")
	}
	r = &Result{Segments: []ResultChunk{{}}}
	if r.Confidence() != nil {
		t.Error("segment without avg_logprob should mean nil confidence")
	}
}

func TestPoolReportsSaturation(t *testing.T) {
	block := make(chan struct{})
	provider := &fakeProvider{result: &Result{Text: "hi"}, block: block}
	pool := NewPool(provider, 1)
	ctx := context.Background()

	first, saturated := pool.Go(ctx, []byte{0, 0}, "")
	if saturated {
		t.Error("first submission should not be saturated")
	}

	type submission struct {
		result    <-chan *Result
		saturated bool
	}
	second := make(chan submission, 1)
	go func() {
		ch, sat := pool.Go(ctx, []byte{0, 0}, "")
		second <- submission{ch, sat}
	}()

	// The second submit is parked on the semaphore until the first job
	// completes.
	select {
	case <-second:
		t.Fatal("second submission should block while the pool is full")
	case <-time.After(100 * time.Millisecond):
	}

	close(block)

	sub := <-second
	if !sub.saturated {
		t.Error("second submission should report saturation")
	}
	for _, ch := range []<-chan *Result{first, sub.result} {
		select {
		case r := <-ch:
			if r == nil || r.Text != "hi" {
				t.Errorf("result = %v", r)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("result never delivered")
		}
	}
}

func TestPoolDeliversNilOnProviderError(t *testing.T) {
	provider := &fakeProvider{err: context.DeadlineExceeded}
	pool := NewPool(provider, 2)

	ch, _ := pool.Go(context.Background(), []byte{0, 0}, "")
	select {
	case r := <-ch:
		if r != nil {
			t.Errorf("expected nil result on provider error, got %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("result never delivered")
	}
}
