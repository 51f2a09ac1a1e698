package router

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAdaptiveRateLimiterWaitAllowsWithinBudget(t *testing.T) {
	l := NewAdaptiveRateLimiter(600000, 600000) // generous TPM, should not block
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Wait(ctx, 100); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestAdaptiveRateLimiterBacksOffOnRateLimitError(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 1000)
	before := l.currentTPM
	l.Observe(ErrProviderRateLimited)
	if l.currentTPM >= before {
		t.Errorf("currentTPM after backoff = %v, want < %v", l.currentTPM, before)
	}
}

func TestAdaptiveRateLimiterRecognizesWrappedRateLimitError(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 1000)
	before := l.currentTPM
	l.Observe(errors.New("upstream returned 429 throttled"))
	if l.currentTPM >= before {
		t.Errorf("currentTPM after wrapped rate-limit error = %v, want < %v", l.currentTPM, before)
	}
}

func TestAdaptiveRateLimiterProbesUpOnSuccess(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 2000)
	l.Observe(errors.New("rate limited"))
	backedOff := l.currentTPM
	l.Observe(nil)
	if l.currentTPM <= backedOff {
		t.Errorf("currentTPM after probe = %v, want > %v", l.currentTPM, backedOff)
	}
}

func TestAdaptiveRateLimiterDoesNotBackoffOnUnrelatedError(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 1000)
	before := l.currentTPM
	l.Observe(errors.New("connection reset by peer"))
	if l.currentTPM != before {
		t.Errorf("currentTPM changed on unrelated error: %v != %v", l.currentTPM, before)
	}
}
