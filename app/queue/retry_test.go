package queue

import (
	"context"
	"testing"
	"time"

	"reelforge/app/config"
	"reelforge/app/taskerr"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 60 * time.Second, MaxDelay: 900 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 480 * time.Second},
		{5, 900 * time.Second}, // 960 capped
		{6, 900 * time.Second},
		{0, 60 * time.Second}, // clamped to the first attempt
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d): got %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayWithoutCap(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	if got := policy.Delay(4); got != 8*time.Second {
		t.Errorf("uncapped Delay(4): got %s, want 8s", got)
	}
}

func TestShouldRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}

	transient := taskerr.Transient(nil, "flaky")
	if !policy.ShouldRetry(transient, 1) {
		t.Error("transient error on the first attempt must retry")
	}
	if !policy.ShouldRetry(transient, 2) {
		t.Error("transient error on the second attempt must retry")
	}
	if policy.ShouldRetry(transient, 3) {
		t.Error("attempt budget exhausted, must not retry")
	}

	if policy.ShouldRetry(taskerr.Fatal(nil, "broken"), 1) {
		t.Error("fatal errors must never retry")
	}
	if policy.ShouldRetry(taskerr.Validation("bad payload"), 1) {
		t.Error("validation errors must never retry")
	}
	if policy.ShouldRetry(context.DeadlineExceeded, 1) {
		t.Error("time-limit failures must never retry")
	}
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.RetryConfig{MaxAttempts: 3, BaseDelay: 60, MaxDelay: 900})
	if policy.MaxAttempts != 3 || policy.BaseDelay != 60*time.Second || policy.MaxDelay != 900*time.Second {
		t.Errorf("unexpected policy: %+v", policy)
	}
}
