package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mockpilot/mesh/shared/audio"
)

// Result is one transcription of a speech segment.
type Result struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Segments []ResultChunk `json:"segments,omitempty"`
	Words    []ResultWord  `json:"words,omitempty"`
}

// ResultChunk mirrors the provider's verbose per-segment output.
type ResultChunk struct {
	ID         int      `json:"id"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	AvgLogprob *float64 `json:"avg_logprob,omitempty"`
}

type ResultWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Confidence derives a [0,1] score from the first segment's average
// log-probability, rounded to 4 decimals. Nil when the provider gave none.
func (r *Result) Confidence() *float64 {
	if len(r.Segments) == 0 || r.Segments[0].AvgLogprob == nil {
		return nil
	}
	c := math.Round(math.Exp(*r.Segments[0].AvgLogprob)*1e4) / 1e4
	return &c
}

// Provider converts one PCM segment into a transcription.
type Provider interface {
	Transcribe(ctx context.Context, pcm []byte, language string) (*Result, error)
}

// WhisperClient is the remote provider: it wraps PCM in WAV and POSTs it
// multipart to an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperClient struct {
	url        string
	apiKey     string
	model      string
	sampleRate int
	channels   int
	client     *http.Client
}

func NewWhisperClient(url, apiKey, model string, sampleRate, channels int) *WhisperClient {
	return &WhisperClient{
		url:        url,
		apiKey:     apiKey,
		model:      model,
		sampleRate: sampleRate,
		channels:   channels,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *WhisperClient) Transcribe(ctx context.Context, pcm []byte, language string) (*Result, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty audio segment")
	}

	wav := audio.WrapPCM(pcm, c.sampleRate, c.channels)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write format field: %w", err)
	}
	for _, g := range []string{"segment", "word"} {
		if err := writer.WriteField("timestamp_granularities[]", g); err != nil {
			return nil, fmt.Errorf("write granularity field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("transcription error (status %d): %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Duration == 0 {
		result.Duration = float64(audio.DurationMs(pcm, c.sampleRate, c.channels)) / 1000.0
	}
	return &result, nil
}

// Pool runs transcriptions with bounded concurrency. Submission reports
// whether the pool was saturated at arrival so the caller can signal the
// producer to slow down.
type Pool struct {
	provider Provider
	sem      *semaphore.Weighted
}

func NewPool(provider Provider, maxInFlight int) *Pool {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Pool{
		provider: provider,
		sem:      semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Go schedules a transcription and returns a single-use result channel. A
// provider failure delivers nil; the pipeline keeps going. The second return
// reports saturation at submission time.
func (p *Pool) Go(ctx context.Context, pcm []byte, language string) (<-chan *Result, bool) {
	saturated := false
	if !p.sem.TryAcquire(1) {
		saturated = true
		if err := p.sem.Acquire(ctx, 1); err != nil {
			ch := make(chan *Result, 1)
			ch <- nil
			return ch, saturated
		}
	}

	ch := make(chan *Result, 1)
	go func() {
		defer p.sem.Release(1)
		result, err := p.provider.Transcribe(ctx, pcm, language)
		if err != nil {
			slog.Error("stt: transcription failed", "bytes", len(pcm), "error", err)
			ch <- nil
			return
		}
		ch <- result
	}()
	return ch, saturated
}
