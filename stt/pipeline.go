package stt

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/protocol"
)

// Frames sent down the ingress socket to the audio producer.
type transcriptFrame struct {
	Type        string    `json:"type"` // partial or final
	Text        string    `json:"text"`
	TsStart     float64   `json:"ts_start"`
	TsEnd       float64   `json:"ts_end"`
	UtteranceID uuid.UUID `json:"utterance_id"`
	Speaker     string    `json:"speaker,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
}

type controlFrame struct {
	Type    string `json:"type"` // slow or error
	Message string `json:"message,omitempty"`
}

// SendFunc delivers one frame to the ingress client. Implementations must be
// safe for concurrent use.
type SendFunc func(v any) error

// Pipeline wires one session's audio stream through segmentation and
// transcription to partial/final emission and bus publication.
//
// Utterance accounting: timestamps are utterance-relative. Partials restate
// the whole open utterance under the same utterance id; the final publishes
// to the transcripts channel and rotates the id.
type Pipeline struct {
	sessionID string
	segmenter *Segmenter
	pool      *Pool
	bus       *bus.Client
	send      SendFunc
	language  string

	utteranceID uuid.UUID
}

func NewPipeline(sessionID string, segmenter *Segmenter, pool *Pool, busClient *bus.Client, send SendFunc, language string) *Pipeline {
	return &Pipeline{
		sessionID:   sessionID,
		segmenter:   segmenter,
		pool:        pool,
		bus:         busClient,
		send:        send,
		language:    language,
		utteranceID: uuid.New(),
	}
}

type job struct {
	result <-chan *Result
	final  bool
}

// Run consumes audio chunks until the channel closes, then flushes the
// segmenter and drains in-flight transcriptions. Emission order follows
// segmenter order: results are awaited FIFO even though transcriptions
// overlap up to the pool's capacity.
func (p *Pipeline) Run(ctx context.Context, audioIn <-chan []byte) error {
	jobs := make(chan job, 32)

	go func() {
		defer close(jobs)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-audioIn:
				if !ok {
					if seg := p.segmenter.Flush(); seg != nil {
						p.submit(ctx, *seg, jobs)
					}
					return
				}
				for _, seg := range p.segmenter.Push(chunk) {
					p.submit(ctx, seg, jobs)
				}
			}
		}
	}()

	for j := range jobs {
		var result *Result
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result = <-j.result:
		}
		if result == nil || strings.TrimSpace(result.Text) == "" {
			slog.Debug("stt: no usable text for segment", "session_id", p.sessionID)
			continue
		}
		if err := p.emit(ctx, result, j.final); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (p *Pipeline) submit(ctx context.Context, seg Segment, jobs chan<- job) {
	result, saturated := p.pool.Go(ctx, seg.PCM, p.language)
	if saturated {
		slog.Warn("stt: transcription pool at capacity, signalling slow", "session_id", p.sessionID)
		if err := p.send(controlFrame{Type: "slow"}); err != nil {
			slog.Debug("stt: slow signal send failed", "session_id", p.sessionID, "error", err)
		}
	}
	select {
	case jobs <- job{result: result, final: seg.Final}:
	case <-ctx.Done():
	}
}

func (p *Pipeline) emit(ctx context.Context, result *Result, final bool) error {
	tsEnd := round3(result.Duration)

	frame := transcriptFrame{
		Text:        result.Text,
		TsStart:     0,
		TsEnd:       tsEnd,
		UtteranceID: p.utteranceID,
		Speaker:     p.sessionID,
	}

	if !final {
		frame.Type = "partial"
		return p.send(frame)
	}

	frame.Type = "final"
	frame.Confidence = result.Confidence()
	if err := p.send(frame); err != nil {
		return err
	}

	msg := protocol.NewTranscript(p.utteranceID, result.Text, 0, tsEnd, frame.Confidence)
	msg.Speaker = p.sessionID
	if err := p.bus.Publish(ctx, protocol.ChannelTranscripts, msg); err != nil {
		slog.Error("stt: transcript publish failed", "session_id", p.sessionID, "error", err)
	} else {
		slog.Info("stt: published final transcript",
			"session_id", p.sessionID, "utterance_id", p.utteranceID, "chars", len(result.Text))
	}

	p.utteranceID = uuid.New()
	return nil
}

func round3(x float64) float64 {
	return math.Round(x*1e3) / 1e3
}
