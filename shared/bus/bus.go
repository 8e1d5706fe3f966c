// Package bus wraps the Redis pub/sub fabric the services communicate over.
// Payloads are JSON documents; channels are flat strings.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mockpilot/mesh/shared/backoff"
)

// reconnectDelay is how long a subscriber waits after losing its connection
// before dialing again.
const reconnectDelay = 5 * time.Second

// Handler receives one decoded bus message. Errors are logged by the
// subscriber loop and never tear the subscription down.
type Handler func(ctx context.Context, channel string, payload []byte) error

type Client struct {
	rdb *redis.Client
}

// New parses a redis:// URL and returns a client. The connection itself is
// established lazily.
func New(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an existing redis client. Used by tests.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// WaitReady pings redis until it answers, backing off between attempts.
// Called at service startup so a slow-starting redis does not kill the
// process.
func (c *Client) WaitReady(ctx context.Context) error {
	return backoff.RetryWithCallback(ctx, backoff.Standard,
		func(ctx context.Context, attempt int) error {
			return c.Ping(ctx)
		},
		func(attempt int, err error, delay time.Duration) {
			slog.Warn("bus: redis not ready, retrying",
				"attempt", attempt, "delay", delay, "error", err)
		})
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish JSON-encodes v and publishes it on channel.
func (c *Client) Publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe runs a resilient subscription over channels until ctx is done.
// Connection loss closes the pubsub, waits and resubscribes. Handler errors
// are logged and swallowed so one bad message cannot stall the stream.
func (c *Client) Subscribe(ctx context.Context, channels []string, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		ps := c.rdb.Subscribe(ctx, channels...)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			if ctx.Err() != nil {
				return
			}
			slog.Error("bus: subscribe failed, retrying", "channels", channels, "error", err)
			if !backoff.Wait(ctx, reconnectDelay) {
				return
			}
			continue
		}
		slog.Info("bus: subscribed", "channels", channels)

		c.consume(ctx, ps, handler)
		_ = ps.Close()

		if ctx.Err() != nil {
			return
		}
		slog.Warn("bus: subscription lost, reconnecting", "channels", channels)
		if !backoff.Wait(ctx, reconnectDelay) {
			return
		}
	}
}

func (c *Client) consume(ctx context.Context, ps *redis.PubSub, handler Handler) {
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			slog.Error("bus: receive failed", "error", err)
			return
		}
		if err := handler(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
			slog.Error("bus: handler failed", "channel", msg.Channel, "error", err)
		}
	}
}
