package firehose

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func testPublisher(t *testing.T) *Publisher {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewPublisherWithClient(client, zap.NewNop())
}

func TestPublishAndRecent(t *testing.T) {
	ctx := context.Background()
	p := testPublisher(t)

	p.Publish(ctx, Event{Kind: JobStarted, JobToken: "jdown_aaa", JobType: "media_download", Worker: "w1"})
	p.Publish(ctx, Event{Kind: JobSucceeded, JobToken: "jdown_aaa", JobType: "media_download", Worker: "w1"})

	events, err := p.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Kind != JobSucceeded || events[1].Kind != JobStarted {
		t.Fatalf("unexpected order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[0].Timestamp.IsZero() {
		t.Fatalf("timestamp not set on publish")
	}
}

func TestPublishCapsHistory(t *testing.T) {
	ctx := context.Background()
	p := testPublisher(t)

	for i := 0; i < historyLen+50; i++ {
		p.Publish(ctx, Event{Kind: JobStarted, JobToken: "jdown_bbb"})
	}
	events, err := p.Recent(ctx, historyLen*2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != historyLen {
		t.Fatalf("history should be capped at %d, got %d", historyLen, len(events))
	}
}

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	p.Publish(context.Background(), Event{Kind: JobStarted})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
