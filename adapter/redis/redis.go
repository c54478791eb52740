// Package redis publishes capture notifications on a Redis pub/sub channel.
//
// Lifecycle and capture_saved notifications go to Channel. Record batches
// go to RecordsChannel so tap traffic can be subscribed to separately.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/psforever/GameLogger/adapter"
)

// DefaultChannel carries lifecycle and capture_saved notifications.
const DefaultChannel = "gamelogger:events"

// RecordsSuffix is appended to Channel to form the default RecordsChannel.
const RecordsSuffix = ":records"

// DefaultTimeout bounds one PUBLISH.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL     string
	Channel string
	// RecordsChannel defaults to Channel + RecordsSuffix.
	RecordsChannel string
	Encoding       adapter.Encoding
	Timeout        time.Duration
	// Retries applies to session and capture_saved notifications only.
	Retries int
	Backoff time.Duration
}

// Adapter publishes notifications via Redis PUBLISH.
type Adapter struct {
	channel        string
	recordsChannel string
	encoding       adapter.Encoding
	timeout        time.Duration
	delivery       adapter.Delivery
	client         *goredis.Client
}

// New validates cfg and connects lazily; the first Publish dials.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	enc, err := adapter.ParseEncoding(string(cfg.Encoding))
	if err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("redis adapter: retries must be >= 0, got %d", cfg.Retries)
	}

	a := &Adapter{
		channel:        cfg.Channel,
		recordsChannel: cfg.RecordsChannel,
		encoding:       enc,
		timeout:        cfg.Timeout,
		delivery:       adapter.Delivery{Retries: cfg.Retries, Backoff: cfg.Backoff},
		client:         goredis.NewClient(opts),
	}
	if a.channel == "" {
		a.channel = DefaultChannel
	}
	if a.recordsChannel == "" {
		a.recordsChannel = a.channel + RecordsSuffix
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a, nil
}

// ChannelFor returns the channel n is published on.
func (a *Adapter) ChannelFor(n *adapter.Notification) string {
	if n.EventType == adapter.EventRecords {
		return a.recordsChannel
	}
	return a.channel
}

// Publish sends n, retrying retriable notifications on error.
func (a *Adapter) Publish(ctx context.Context, n *adapter.Notification) error {
	body, err := adapter.Marshal(n, a.encoding)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", n.EventType, err)
	}
	channel := a.ChannelFor(n)

	if err := a.delivery.Deliver(ctx, n, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.client.Publish(ctx, channel, body).Err()
	}); err != nil {
		return fmt.Errorf("redis: %s: %w", channel, err)
	}
	return nil
}

// Close closes the client pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
