// Package insights mines canned audience reactions for design specs and
// tags them with a keyword demographic classifier.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/config"
	"github.com/mockpilot/mesh/shared/protocol"
)

// demographicKeywords maps a demographic label to the keywords that imply it.
var demographicKeywords = map[string][]string{
	"gen z":        {"tiktok", "snapchat"},
	"frontend dev": {"javascript", "react"},
	"designer":     {"figma", "adobe"},
}

// Classify returns the title-cased demographics whose keywords appear in
// text, or ["General"] when none match.
func Classify(text string) []string {
	lowered := strings.ToLower(text)
	var tags []string
	for label, keywords := range demographicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				tags = append(tags, titleWords(label))
				break
			}
		}
	}
	if len(tags) == 0 {
		return []string{"General"}
	}
	return tags
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Mine produces the insight for one spec. Posts are canned reactions; the
// query is the component name.
func Mine(spec protocol.DesignSpec) protocol.InsightMsg {
	return protocol.InsightMsg{
		SchemaVersion: protocol.SchemaVersion,
		SpecID:        spec.SpecID,
		Query:         spec.Component,
		Posts: []protocol.InsightPost{
			{Text: "Looks great", Sentiment: 0.8, Tags: []string{"Gen Z"}},
			{Text: "Not my style", Sentiment: -0.5, Tags: []string{"Designer"}},
		},
	}
}

type Config struct {
	ServiceName string
	RedisURL    string
}

func LoadConfig() *Config {
	return &Config{
		ServiceName: config.GetEnv("SERVICE_NAME", "sentiment_miner"),
		RedisURL:    config.GetEnv("REDIS_URL", "redis://localhost:6379/0"),
	}
}

// Service bridges design specs to insights over the bus.
type Service struct {
	cfg *Config
	bus *bus.Client
}

func NewService(cfg *Config, busClient *bus.Client) *Service {
	return &Service{cfg: cfg, bus: busClient}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	slog.Info("insights: subscribing", "channel", protocol.ChannelDesignSpecs)
	s.bus.Subscribe(ctx, []string{protocol.ChannelDesignSpecs}, s.handleSpec)
}

func (s *Service) handleSpec(ctx context.Context, channel string, payload []byte) error {
	var spec protocol.DesignSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		return fmt.Errorf("decode design spec: %w", err)
	}

	insight := Mine(spec)
	if err := s.bus.Publish(ctx, protocol.ChannelInsights, insight); err != nil {
		return fmt.Errorf("publish insight: %w", err)
	}
	slog.Info("insights: published",
		"spec_id", insight.SpecID, "query", insight.Query, "posts", len(insight.Posts))
	return nil
}
