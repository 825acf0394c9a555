package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gembot/internal/gate"
)

func newTestQueue(t *testing.T, maxLen int64) *StreamQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStreamQueue(rdb, "gembot:test", "gembot-test", "consumer-1", 100*time.Millisecond, maxLen)
}

func TestEnqueueReadAck(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	job := IntakeJob{
		ChatID:    1,
		ChatType:  "group",
		UserID:    10,
		MessageID: 100,
		Text:      "@gembot hi",
		Entities:  []gate.Entity{{Type: "mention", Offset: 0, Length: 7}},
	}
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs, err := q.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0].Job
	if got.ChatID != 1 || got.Text != "@gembot hi" || got.JobID == "" {
		t.Fatalf("unexpected job %+v", got)
	}
	if len(got.Entities) != 1 || got.Entities[0].Type != "mention" {
		t.Fatalf("entities lost in transit: %+v", got.Entities)
	}
	if got.EnqueuedAt.IsZero() {
		t.Fatal("enqueued_at not set")
	}

	if err := q.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	again, err := q.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read after ack: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty queue after ack, got %d messages", len(again))
	}
}

func TestEnqueueBounded(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(ctx, IntakeJob{ChatID: int64(i), Text: "x"}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	n, err := q.redis.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n > 5 {
		t.Fatalf("stream grew past enqueue count: %d", n)
	}
	if q.maxLen != 2 {
		t.Fatalf("maxLen not carried: %d", q.maxLen)
	}
}

func TestUpdateDeduplicator(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := NewUpdateDeduplicator(rdb, time.Hour)

	first, err := d.MarkFirst(context.Background(), 12345)
	if err != nil {
		t.Fatalf("mark first: %v", err)
	}
	if !first {
		t.Fatal("expected first delivery to be marked first")
	}

	second, err := d.MarkFirst(context.Background(), 12345)
	if err != nil {
		t.Fatalf("mark second: %v", err)
	}
	if second {
		t.Fatal("expected redelivery to be rejected")
	}
}
