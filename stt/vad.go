package stt

import (
	"log/slog"
	"math"
)

// Model scores one fixed-size window of normalized samples with a speech
// probability in [0, 1].
type Model interface {
	SpeechProb(samples []float32) (float32, error)
}

// Segment is a run of speech detected by the segmenter. Final is set when
// the segment was closed by sufficient trailing silence or a stream flush.
type Segment struct {
	PCM   []byte
	Final bool
}

// SegmenterConfig carries the VAD tuning knobs.
type SegmenterConfig struct {
	SampleRate     int
	WindowSamples  int
	Threshold      float64
	MinSilenceMs   int
	MinSpeechMs    int
	SpeechPadMs    int
	PartialEveryMs int
}

// Segmenter is the speech/silence state machine over a PCM16LE stream. It
// buffers incoming bytes, scores fixed windows through the model and closes
// an utterance once trailing silence reaches MinSilenceMs. Trailing silence
// windows stay in the segment so the transcriber gets a little context, and
// up to SpeechPadMs of pre-speech audio is prepended for the same reason.
// With PartialEveryMs set, a non-final snapshot of the open segment is
// emitted after every PartialEveryMs of speech.
type Segmenter struct {
	model Model
	cfg   SegmenterConfig

	windowMs float64

	buffer    []byte
	speaking  bool
	frames    [][]byte
	prelude   [][]byte
	silenceMs float64
	speechMs  float64
}

func NewSegmenter(model Model, cfg SegmenterConfig) *Segmenter {
	return &Segmenter{
		model:    model,
		cfg:      cfg,
		windowMs: float64(cfg.WindowSamples) / float64(cfg.SampleRate) * 1000.0,
	}
}

// Reset clears all stream state for reuse on a new audio stream.
func (s *Segmenter) Reset() {
	s.buffer = nil
	s.speaking = false
	s.frames = nil
	s.prelude = nil
	s.silenceMs = 0
	s.speechMs = 0
}

// Push feeds a chunk of PCM bytes in and returns any segments completed by
// it. Chunk boundaries carry no meaning; only whole windows are scored.
func (s *Segmenter) Push(chunk []byte) []Segment {
	if len(chunk) == 0 {
		return nil
	}
	s.buffer = append(s.buffer, chunk...)

	var out []Segment
	windowBytes := s.cfg.WindowSamples * 2
	for len(s.buffer) >= windowBytes {
		window := make([]byte, windowBytes)
		copy(window, s.buffer[:windowBytes])
		s.buffer = s.buffer[windowBytes:]

		samples := samplesFromBytes(window)
		if len(samples) == 0 {
			continue
		}

		prob, err := s.model.SpeechProb(samples)
		if err != nil {
			slog.Error("vad: model inference failed", "error", err)
			continue
		}

		if float64(prob) >= s.cfg.Threshold {
			if !s.speaking {
				slog.Debug("vad: speech started", "prob", prob)
				s.speaking = true
				s.frames = append(s.takePrelude(), window)
			} else {
				s.frames = append(s.frames, window)
			}
			s.silenceMs = 0
			s.speechMs += s.windowMs
			if s.cfg.PartialEveryMs > 0 && s.speechMs >= float64(s.cfg.PartialEveryMs) {
				out = append(out, Segment{PCM: s.joinFrames(), Final: false})
				s.speechMs = 0
			}
			continue
		}

		if !s.speaking {
			s.keepPrelude(window)
			continue
		}

		// Silence after speech: keep the window for trailing context and
		// count toward finalization.
		s.frames = append(s.frames, window)
		s.silenceMs += s.windowMs
		if s.silenceMs >= float64(s.cfg.MinSilenceMs) {
			if seg := s.takeSegment(); seg != nil {
				out = append(out, *seg)
			}
			s.speaking = false
			s.frames = nil
			s.silenceMs = 0
			s.speechMs = 0
		}
	}
	return out
}

// keepPrelude retains the most recent pre-speech windows up to SpeechPadMs
// so a new segment starts with a little leading context.
func (s *Segmenter) keepPrelude(window []byte) {
	pad := s.padWindows()
	if pad == 0 {
		return
	}
	s.prelude = append(s.prelude, window)
	if len(s.prelude) > pad {
		s.prelude = s.prelude[len(s.prelude)-pad:]
	}
}

func (s *Segmenter) takePrelude() [][]byte {
	frames := s.prelude
	s.prelude = nil
	return frames
}

func (s *Segmenter) padWindows() int {
	if s.cfg.SpeechPadMs <= 0 || s.windowMs <= 0 {
		return 0
	}
	return int(float64(s.cfg.SpeechPadMs) / s.windowMs)
}

// Flush closes any in-progress segment at end of stream and resets.
func (s *Segmenter) Flush() *Segment {
	defer s.Reset()
	if !s.speaking || len(s.frames) == 0 {
		return nil
	}
	return s.takeSegment()
}

// takeSegment joins the accumulated frames, applying the minimum speech
// duration filter. Too-short segments are dropped with a nil return.
func (s *Segmenter) takeSegment() *Segment {
	pcm := s.joinFrames()
	durationMs := float64(len(pcm)) / float64(s.cfg.SampleRate*2) * 1000.0
	if durationMs < float64(s.cfg.MinSpeechMs) {
		slog.Debug("vad: dropping short speech segment", "duration_ms", durationMs)
		return nil
	}
	return &Segment{PCM: pcm, Final: true}
}

func (s *Segmenter) joinFrames() []byte {
	var size int
	for _, f := range s.frames {
		size += len(f)
	}
	pcm := make([]byte, 0, size)
	for _, f := range s.frames {
		pcm = append(pcm, f...)
	}
	return pcm
}

// samplesFromBytes converts PCM16LE bytes to normalized float32 samples.
// An odd trailing byte is trimmed with a warning.
func samplesFromBytes(b []byte) []float32 {
	if len(b)%2 != 0 {
		slog.Warn("vad: odd-length audio buffer, trimming last byte", "len", len(b))
		b = b[:len(b)-1]
	}
	samples := make([]float32, len(b)/2)
	for i := range samples {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		samples[i] = float32(v) / 32767.0
	}
	return samples
}

// EnergyModel is the dependency-free VAD backend: it maps the RMS energy of
// a window onto a pseudo-probability. Good enough for tests and demos where
// the Silero model file is not available.
type EnergyModel struct {
	// Gain scales RMS into probability space; with the default, full-scale
	// sine input saturates at 1.0 and typical room noise stays near 0.
	Gain float64
}

func NewEnergyModel() *EnergyModel {
	return &EnergyModel{Gain: 8.0}
}

func (m *EnergyModel) SpeechProb(samples []float32) (float32, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	prob := rms * m.Gain
	if prob > 1 {
		prob = 1
	}
	return float32(prob), nil
}
