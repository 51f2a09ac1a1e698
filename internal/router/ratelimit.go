package router

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// ErrProviderRateLimited is returned by a Provider when the upstream API
// signals throttling, so AdaptiveRateLimiter can tell a rate-limit response
// apart from any other failure.
var ErrProviderRateLimited = errors.New("router: provider rate limited")

// AdaptiveRateLimiter applies a per-provider AIMD token bucket, adapted from
// goa-ai's features/model/middleware.AdaptiveRateLimiter: process-local only
// (the cluster-coordinated Pulse rmap variant is dropped since this module
// has no Pulse dependency — see DESIGN.md).
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewAdaptiveRateLimiter builds a limiter with an initial and maximum
// tokens-per-minute budget.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wait blocks until estimatedTokens worth of budget is available.
func (l *AdaptiveRateLimiter) Wait(ctx context.Context, estimatedTokens int) error {
	if estimatedTokens <= 0 {
		estimatedTokens = 1
	}
	return l.limiter.WaitN(ctx, estimatedTokens)
}

// Observe adjusts the budget after a completion attempt: halve on a
// rate-limit error, otherwise probe upward toward maxTPM.
func (l *AdaptiveRateLimiter) Observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, ErrProviderRateLimited) || looksRateLimited(err) {
		l.backoff()
	}
}

func looksRateLimited(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "rate limit") ||
		strings.Contains(strings.ToLower(err.Error()), "429") ||
		strings.Contains(strings.ToLower(err.Error()), "throttl")
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM * 0.5
	if next < l.minTPM {
		next = l.minTPM
	}
	l.setTPM(next)
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM + l.recoveryRate
	if next > l.maxTPM {
		next = l.maxTPM
	}
	l.setTPM(next)
}

// setTPM must be called with mu held.
func (l *AdaptiveRateLimiter) setTPM(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// estimateTokens gives WaitN a cheap token estimate from request text, the
// same char/3-plus-buffer heuristic goa-ai's middleware uses.
func estimateTokens(req Request) int {
	chars := len(req.SystemPrompt) + len(req.Prompt)
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
