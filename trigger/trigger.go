// Package trigger turns high-confidence intents into design specs by
// resolving their style and brand references through the mapper service.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mockpilot/mesh/shared/backoff"
	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/config"
	"github.com/mockpilot/mesh/shared/protocol"
)

type Config struct {
	ServiceName         string
	RedisURL            string
	MapperURL           string
	ConfidenceThreshold float64
	MapperTimeout       time.Duration
}

func LoadConfig() *Config {
	return &Config{
		ServiceName:         config.GetEnv("SERVICE_NAME", "trigger"),
		RedisURL:            config.GetEnv("REDIS_URL", "redis://localhost:6379/0"),
		MapperURL:           config.GetEnv("DESIGN_MAPPER_URL", "http://localhost:8002"),
		ConfidenceThreshold: config.GetEnvFloat("CONFIDENCE_THRESHOLD", 0.75),
		MapperTimeout:       config.GetEnvDuration("MAPPER_TIMEOUT", 5*time.Second),
	}
}

// Service subscribes to the intents channel and publishes design specs.
type Service struct {
	cfg    *Config
	bus    *bus.Client
	client *http.Client
	retry  backoff.Strategy
}

func NewService(cfg *Config, busClient *bus.Client) *Service {
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		client: &http.Client{Timeout: cfg.MapperTimeout},
		retry:  backoff.Quick,
	}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	slog.Info("trigger: subscribing",
		"channel", protocol.ChannelIntents, "threshold", s.cfg.ConfidenceThreshold)
	s.bus.Subscribe(ctx, []string{protocol.ChannelIntents}, s.handleIntent)
}

func (s *Service) handleIntent(ctx context.Context, channel string, payload []byte) error {
	var intent protocol.IntentMsg
	if err := json.Unmarshal(payload, &intent); err != nil {
		return fmt.Errorf("decode intent: %w", err)
	}

	if intent.Confidence < s.cfg.ConfidenceThreshold {
		slog.Debug("trigger: intent below threshold, dropping",
			"component", intent.Component, "confidence", intent.Confidence)
		return nil
	}

	tokens := s.resolveTokens(ctx, intent)

	spec := protocol.DesignSpec{
		SchemaVersion: protocol.SchemaVersion,
		SpecID:        uuid.New(),
		Component:     intent.Component,
		ThemeTokens:   tokens,
		SourceUtts:    []uuid.UUID{intent.UtteranceID},
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.bus.Publish(ctx, protocol.ChannelDesignSpecs, spec); err != nil {
		return fmt.Errorf("publish design spec: %w", err)
	}
	slog.Info("trigger: published design spec",
		"spec_id", spec.SpecID, "component", spec.Component, "utterance_id", intent.UtteranceID)
	return nil
}

// resolveTokens calls the mapper, retrying transient failures. When every
// attempt fails the spec still ships with empty tokens.
func (s *Service) resolveTokens(ctx context.Context, intent protocol.IntentMsg) protocol.ThemeTokens {
	reqBody, err := json.Marshal(map[string]any{
		"styles":     intent.Styles,
		"brand_refs": intent.BrandRefs,
		"component":  intent.Component,
	})
	if err != nil {
		slog.Error("trigger: encode mapper request failed", "error", err)
		return protocol.ThemeTokens{}
	}

	var tokens protocol.ThemeTokens
	err = backoff.Retry(ctx, s.retry, func(ctx context.Context, attempt int) error {
		mapped, err := s.postMap(ctx, reqBody)
		if err != nil {
			slog.Warn("trigger: mapper call failed", "attempt", attempt, "error", err)
			return err
		}
		tokens = mapped
		return nil
	})
	if err != nil {
		slog.Warn("trigger: mapper unavailable, using empty tokens", "error", err)
		return protocol.ThemeTokens{}
	}
	return tokens
}

func (s *Service) postMap(ctx context.Context, reqBody []byte) (protocol.ThemeTokens, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.MapperURL+"/v1/map", bytes.NewReader(reqBody))
	if err != nil {
		return protocol.ThemeTokens{}, fmt.Errorf("build mapper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return protocol.ThemeTokens{}, fmt.Errorf("mapper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.ThemeTokens{}, fmt.Errorf("mapper returned status %d", resp.StatusCode)
	}

	var mapped struct {
		ThemeTokens protocol.ThemeTokens `json:"theme_tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mapped); err != nil {
		return protocol.ThemeTokens{}, fmt.Errorf("decode mapper response: %w", err)
	}
	return mapped.ThemeTokens, nil
}
