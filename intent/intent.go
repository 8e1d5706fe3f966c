// Package intent extracts design intents from finalized transcripts with a
// small rule set and republishes them on the intents channel.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/config"
	"github.com/mockpilot/mesh/shared/protocol"
)

var (
	componentRe = regexp.MustCompile(`(?i)\b(button|dropdown|modal|tab|form)\b`)
	styleRe     = regexp.MustCompile(`(?i)\b(hover|pill|rounded|outline)\b`)
	brandRe     = regexp.MustCompile(`(?i)\b(stripe|github|google)\b`)
)

// Detect runs the rules over one utterance. The component mention is
// required; without it there is no intent and Detect returns false.
func Detect(msg protocol.TranscriptMsg) (protocol.IntentMsg, bool) {
	component := componentRe.FindString(msg.Text)
	if component == "" {
		return protocol.IntentMsg{}, false
	}

	var styles []string
	for _, m := range styleRe.FindAllString(msg.Text, -1) {
		styles = appendUnique(styles, strings.ToLower(m))
	}
	var brands []string
	for _, m := range brandRe.FindAllString(msg.Text, -1) {
		brands = appendUnique(brands, titleCase(m))
	}

	return protocol.IntentMsg{
		SchemaVersion: protocol.SchemaVersion,
		UtteranceID:   msg.UtteranceID,
		Component:     strings.ToLower(component),
		Styles:        styles,
		BrandRefs:     brands,
		Confidence:    1.0,
		Speaker:       msg.Speaker,
	}, true
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func titleCase(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type Config struct {
	ServiceName string
	RedisURL    string
}

func LoadConfig() *Config {
	return &Config{
		ServiceName: config.GetEnv("SERVICE_NAME", "intent_extractor"),
		RedisURL:    config.GetEnv("REDIS_URL", "redis://localhost:6379/0"),
	}
}

// Service bridges transcripts to intents over the bus.
type Service struct {
	cfg *Config
	bus *bus.Client
}

func NewService(cfg *Config, busClient *bus.Client) *Service {
	return &Service{cfg: cfg, bus: busClient}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	slog.Info("intent: subscribing", "channel", protocol.ChannelTranscripts)
	s.bus.Subscribe(ctx, []string{protocol.ChannelTranscripts}, s.handleTranscript)
}

func (s *Service) handleTranscript(ctx context.Context, channel string, payload []byte) error {
	var msg protocol.TranscriptMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode transcript: %w", err)
	}

	intent, ok := Detect(msg)
	if !ok {
		slog.Debug("intent: no component mention", "utterance_id", msg.UtteranceID)
		return nil
	}

	if err := s.bus.Publish(ctx, protocol.ChannelIntents, intent); err != nil {
		return fmt.Errorf("publish intent: %w", err)
	}
	slog.Info("intent: published",
		"utterance_id", intent.UtteranceID, "component", intent.Component,
		"styles", intent.Styles, "brands", intent.BrandRefs)
	return nil
}
