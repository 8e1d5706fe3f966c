// Package stt implements the streaming speech-to-text service: audio ingress
// over WebSocket, VAD segmentation, bounded-concurrency transcription and
// utterance-scoped transcript emission onto the bus.
package stt

import (
	"time"

	"github.com/mockpilot/mesh/shared/config"
)

type Config struct {
	ServiceName string
	Host        string
	Port        int

	RedisURL string

	OpenAIAPIKey string
	WhisperURL   string
	WhisperModel string
	MaxInFlight  int
	PartialEvery time.Duration
	Language     string

	SampleRate int
	Channels   int

	VADBackend    string // energy or silero
	VADModelPath  string
	VADThreshold  float64
	MinSilenceMs  int
	MinSpeechMs   int
	WindowSamples int
	SpeechPadMs   int
}

func LoadConfig() *Config {
	return &Config{
		ServiceName: config.GetEnv("SERVICE_NAME", "speech_to_text"),
		Host:        config.GetEnv("HOST", "0.0.0.0"),
		Port:        config.GetEnvInt("PORT", 8001),

		RedisURL: config.GetEnv("REDIS_URL", "redis://localhost:6379/0"),

		OpenAIAPIKey: config.GetEnv("OPENAI_API_KEY", ""),
		WhisperURL:   config.GetEnv("WHISPER_API_URL", "https://api.openai.com/v1/audio/transcriptions"),
		WhisperModel: config.GetEnv("WHISPER_MODEL_NAME", "whisper-1"),
		MaxInFlight:  config.GetEnvInt("WHISPER_MAX_BUFFERED_CHUNKS", 4),
		PartialEvery: config.GetEnvSecondsWithFallback("WHISPER_PARTIAL_RESULT_INTERVAL_S", "WHISPER_PARTIAL_RESULT_INTERVAL", 400*time.Millisecond),
		Language:     config.GetEnv("WHISPER_LANGUAGE", ""),

		SampleRate: config.GetEnvInt("AUDIO_SAMPLE_RATE", 16000),
		Channels:   config.GetEnvInt("AUDIO_CHANNELS", 1),

		VADBackend:    config.GetEnv("VAD_BACKEND", "energy"),
		VADModelPath:  config.GetEnv("VAD_MODEL_PATH", ""),
		VADThreshold:  config.GetEnvFloat("VAD_THRESHOLD", 0.6),
		MinSilenceMs:  config.GetEnvInt("VAD_MIN_SILENCE_DURATION_MS", 350),
		MinSpeechMs:   config.GetEnvInt("VAD_MIN_SPEECH_DURATION_MS", 100),
		WindowSamples: config.GetEnvInt("VAD_WINDOW_SIZE_SAMPLES", 512),
		SpeechPadMs:   config.GetEnvInt("VAD_SPEECH_PAD_MS", 100),
	}
}
