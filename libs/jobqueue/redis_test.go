package jobqueue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestRedisQueue_Keys(t *testing.T) {
	q := NewRedisQueue(nil, RedisOptions{})
	k := q.keys("cancellation-mail")
	if k.waiting != "gobarber:q:{cancellation-mail}:waiting" {
		t.Fatalf("unexpected waiting key %q", k.waiting)
	}
	if k.done+"abc" != "gobarber:q:{cancellation-mail}:done:abc" {
		t.Fatalf("unexpected done key %q", k.done)
	}
}

// testRedis returns a client for JOBQUEUE_TEST_REDIS_ADDR when set, and an
// in-process miniredis otherwise.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("JOBQUEUE_TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisQueue_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)

	q := NewRedisQueue(rdb, RedisOptions{Prefix: "test:" + uuid.NewString()})
	clock := &fakeClock{t: time.Now()}
	q.now = clock.Now

	if _, err := q.Add(ctx, Job{ID: "a", Kind: "k", Payload: []byte(`{"n":1}`)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := q.Add(ctx, Job{ID: "a", Kind: "k", Payload: []byte(`{"n":2}`)}); err != nil {
		t.Fatalf("second Add failed: %v", err)
	}

	job, err := q.Claim(ctx, "k", time.Second)
	if err != nil || job.ID != "a" || job.Attempts != 1 || string(job.Payload) != `{"n":1}` {
		t.Fatalf("unexpected claim %+v err=%v", job, err)
	}
	if _, err := q.Claim(ctx, "k", time.Second); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	clock.Advance(2 * time.Second)
	job, err = q.Claim(ctx, "k", time.Second)
	if err != nil || job.Attempts != 2 {
		t.Fatalf("expected lease redelivery, got %+v err=%v", job, err)
	}

	if err := q.Bury(ctx, job, "boom"); err != nil {
		t.Fatalf("Bury failed: %v", err)
	}
	dead, err := q.Dead(ctx, "k", 10)
	if err != nil || len(dead) != 1 || dead[0].LastError != "boom" || dead[0].Attempts != 2 {
		t.Fatalf("unexpected dead set %+v err=%v", dead, err)
	}

	if err := q.Redrive(ctx, "k", "a"); err != nil {
		t.Fatalf("Redrive failed: %v", err)
	}
	job, err = q.Claim(ctx, "k", time.Second)
	if err != nil || job.Attempts != 1 {
		t.Fatalf("expected fresh attempts after redrive, got %+v err=%v", job, err)
	}
	if err := q.Ack(ctx, job); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if _, err := q.Add(ctx, Job{ID: "a", Kind: "k", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}
	s, err := q.Stats(ctx, "k")
	if err != nil || s != (Stats{}) {
		t.Fatalf("expected empty queue after ack, got %+v err=%v", s, err)
	}
}

func TestRedisQueue_RetryParksUntilDue(t *testing.T) {
	ctx := context.Background()
	q := NewRedisQueue(testRedis(t), RedisOptions{Prefix: "test:" + uuid.NewString()})
	clock := &fakeClock{t: time.Now()}
	q.now = clock.Now

	if _, err := q.Add(ctx, Job{ID: "r", Kind: "k", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}
	job, err := q.Claim(ctx, "k", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Retry(ctx, job, clock.Now().Add(30*time.Second), "451 try later"); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if s, _ := q.Stats(ctx, "k"); s.Delayed != 1 || s.Active != 0 {
		t.Fatalf("expected job delayed, got %+v", s)
	}
	if _, err := q.Claim(ctx, "k", time.Minute); !errors.Is(err, ErrEmpty) {
		t.Fatalf("delayed job must not be claimable yet, got %v", err)
	}

	clock.Advance(31 * time.Second)
	job, err = q.Claim(ctx, "k", time.Minute)
	if err != nil || job.ID != "r" || job.Attempts != 2 {
		t.Fatalf("expected promoted job on attempt 2, got %+v err=%v", job, err)
	}
	if err := q.Redrive(ctx, "k", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown dead job, got %v", err)
	}
	if err := q.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
