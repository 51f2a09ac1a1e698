package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// CostEntry records one completion's token usage and computed cost, the
// router's analogue of internal/cost.TokenUsage paired with a priced result.
type CostEntry struct {
	Tier         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	At           time.Time
}

// CalculateCost prices a completion the same way internal/cost.CalculateCost
// does: USD-per-million-token rates applied to input/output counts.
func CalculateCost(inputTokens, outputTokens int, inputPriceMtok, outputPriceMtok float64) float64 {
	inputCost := (float64(inputTokens) / 1_000_000.0) * inputPriceMtok
	outputCost := (float64(outputTokens) / 1_000_000.0) * outputPriceMtok
	return inputCost + outputCost
}

// CostLedger accumulates spend across completions and enforces a daily
// budget. When rdb is non-nil, the daily counter is kept in Redis (shared
// across process instances, using INCRBYFLOAT + an expiring key, the same
// set-with-TTL pattern the registry's result stream mapping uses); otherwise
// it falls back to a process-local atomic counter.
type CostLedger struct {
	mu      sync.Mutex
	entries []CostEntry
	maxLog  int

	rdb       *redis.Client
	keyPrefix string

	localCents atomic.Int64 // cents, used only when rdb == nil
}

func NewCostLedger(rdb *redis.Client, keyPrefix string, maxLog int) *CostLedger {
	if maxLog <= 0 {
		maxLog = 1000
	}
	if keyPrefix == "" {
		keyPrefix = "router:spend:"
	}
	return &CostLedger{rdb: rdb, keyPrefix: keyPrefix, maxLog: maxLog}
}

// Record appends entry to the in-memory ring buffer and adds its cost to
// today's running total.
func (l *CostLedger) Record(ctx context.Context, entry CostEntry) error {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxLog {
		l.entries = l.entries[len(l.entries)-l.maxLog:]
	}
	l.mu.Unlock()

	if l.rdb == nil {
		l.localCents.Add(int64(entry.CostUSD * 100))
		return nil
	}

	key := l.dailyKey()
	if err := l.rdb.IncrByFloat(ctx, key, entry.CostUSD).Err(); err != nil {
		return fmt.Errorf("router: record spend: %w", err)
	}
	return l.rdb.Expire(ctx, key, 48*time.Hour).Err()
}

// DailySpend returns today's running total in USD.
func (l *CostLedger) DailySpend(ctx context.Context) (float64, error) {
	if l.rdb == nil {
		return float64(l.localCents.Load()) / 100, nil
	}
	v, err := l.rdb.Get(ctx, l.dailyKey()).Float64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("router: read spend: %w", err)
	}
	return v, nil
}

// Recent returns the last n recorded entries, most recent last.
func (l *CostLedger) Recent(n int) []CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]CostEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

func (l *CostLedger) dailyKey() string {
	return l.keyPrefix + time.Now().UTC().Format("2006-01-02")
}
