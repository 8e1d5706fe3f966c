package stt

import (
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"
)

// SileroModel scores windows through the Silero ONNX model. The detector is
// stateful, so each window is scored against a reset detector and the result
// collapsed to a binary probability.
type SileroModel struct {
	mu       sync.Mutex
	detector *speech.Detector
}

func NewSileroModel(modelPath string, sampleRate int, threshold float64) (*SileroModel, error) {
	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           sampleRate,
		Threshold:            float32(threshold),
		MinSilenceDurationMs: 0,
		SpeechPadMs:          0,
	})
	if err != nil {
		return nil, fmt.Errorf("create silero detector: %w", err)
	}
	return &SileroModel{detector: detector}, nil
}

func (m *SileroModel) SpeechProb(samples []float32) (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	segments, err := m.detector.Detect(samples)
	if err != nil {
		return 0, fmt.Errorf("silero detect: %w", err)
	}
	if err := m.detector.Reset(); err != nil {
		return 0, fmt.Errorf("silero reset: %w", err)
	}
	if len(segments) > 0 {
		return 1, nil
	}
	return 0, nil
}

func (m *SileroModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detector.Destroy()
}
