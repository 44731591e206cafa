// Package notify publishes tracker events to Redis so other processes can
// follow deployments started from this client.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/easydeploy/internal/tracker"
)

const (
	// DefaultChannel is the pub/sub channel events are published on.
	DefaultChannel = "easydeploy:deployments"
	// historyLimit caps the event history list.
	historyLimit = 100
)

// RedisPublisher implements tracker.Notifier on Redis pub/sub, keeping a
// short history list next to the channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

var _ tracker.Notifier = (*RedisPublisher)(nil)

// NewRedisPublisher connects to Redis. url is either host:port or a
// redis:// URL; password and db apply to the host:port form.
func NewRedisPublisher(url, password string, db int, channel string) (*RedisPublisher, error) {
	opts, err := clientOptions(url, password, db)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if channel == "" {
		channel = DefaultChannel
	}

	log.Debug().
		Str("addr", opts.Addr).
		Int("db", opts.DB).
		Str("channel", channel).
		Msg("Redis notifier connected")

	return &RedisPublisher{client: client, channel: channel}, nil
}

func clientOptions(url, password string, db int) (*redis.Options, error) {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opts, nil
	}
	if url == "" {
		return nil, errors.New("redis address is required")
	}
	return &redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	}, nil
}

func (p *RedisPublisher) historyKey() string {
	return p.channel + ":history"
}

// Publish implements tracker.Notifier.
func (p *RedisPublisher) Publish(ctx context.Context, event tracker.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.LPush(ctx, p.historyKey(), data)
	pipe.LTrim(ctx, p.historyKey(), 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("deployment_id", event.Deployment.ID).
		Str("event", string(event.Type)).
		Msg("Event published")
	return nil
}

// Recent returns up to n of the latest events, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, n int) ([]tracker.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := p.client.LRange(ctx, p.historyKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}

	events := make([]tracker.Event, 0, len(raw))
	for _, item := range raw {
		var e tracker.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed event in history")
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Subscribe streams events until ctx is done. The returned channel is
// closed when the subscription ends.
func (p *RedisPublisher) Subscribe(ctx context.Context) (<-chan tracker.Event, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan tracker.Event)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e tracker.Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					log.Warn().Err(err).Msg("Skipping malformed event")
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
