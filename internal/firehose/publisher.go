// Package firehose broadcasts job lifecycle events over Redis so dashboards
// and notification consumers can follow activity without polling Postgres.
package firehose

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"media-jobs/internal/config"
)

const (
	eventsKey  = "firehose:events"
	channelKey = "firehose:channel"

	// Consumers that fall behind only ever need a recent window.
	historyLen = 1000
)

// Kind labels a lifecycle event.
type Kind string

const (
	JobStarted   Kind = "job_started"
	JobSucceeded Kind = "job_succeeded"
	JobFailed    Kind = "job_failed"
	JobDead      Kind = "job_dead"
	JobEnqueued  Kind = "job_enqueued"
)

// Event is the wire payload pushed to Redis.
type Event struct {
	Kind      Kind      `json:"kind"`
	JobToken  string    `json:"job_token"`
	JobType   string    `json:"job_type,omitempty"`
	Worker    string    `json:"worker,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher pushes events into a capped history list and a pub/sub channel.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher builds a publisher from config.
func NewPublisher(cfg config.Config, logger *zap.Logger) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Publisher{client: client, logger: logger}
}

// NewPublisherWithClient wraps an existing client. Useful in tests.
func NewPublisherWithClient(client *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish sends the event best-effort. Job state already lives in Postgres,
// so a lost event must never fail the surrounding operation; failures are
// logged and swallowed. A nil publisher is a no-op.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || p.client == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("marshal firehose event", zap.Error(err))
		return
	}
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, eventsKey, payload)
	pipe.LTrim(ctx, eventsKey, 0, historyLen-1)
	pipe.Publish(ctx, channelKey, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn("publish firehose event", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

// Recent returns up to count of the most recently published events, newest first.
func (p *Publisher) Recent(ctx context.Context, count int64) ([]Event, error) {
	raw, err := p.client.LRange(ctx, eventsKey, 0, count-1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		var e Event
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Close releases the underlying connection.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
