package jobqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func TestRetryPolicy_DelayDoubles(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Initial: time.Second, Max: time.Minute, Multiplier: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := p.Delay(i+1, errors.New("x")); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
	if got := p.Delay(20, errors.New("x")); got != time.Minute {
		t.Fatalf("expected cap at 1m, got %s", got)
	}
}

func TestRetryPolicy_RetryAfterOverrides(t *testing.T) {
	p := RetryPolicy{Initial: time.Second}
	if got := p.Delay(1, backoff.RetryAfter(90)); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	if p.Exhausted(Job{Attempts: 2}) {
		t.Fatal("2 of 3 attempts must not be exhausted")
	}
	if !p.Exhausted(Job{Attempts: 3}) {
		t.Fatal("3 of 3 attempts must be exhausted")
	}
	if p.Exhausted(Job{Attempts: 3, MaxAttempts: 4}) {
		t.Fatal("job budget must win over the policy")
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(backoff.Permanent(errors.New("bad address"))) {
		t.Fatal("expected permanent")
	}
	if IsPermanent(errors.New("timeout")) {
		t.Fatal("plain errors are transient")
	}
}
