package provider

import (
	"context"
	"sync"
	"time"
)

// Ledger tracks realized spend per provider per UTC day. Add must be
// atomic: concurrent calls never lose or double-count an increment.
type Ledger interface {
	Total(ctx context.Context, provider string) (float64, error)
	Add(ctx context.Context, provider string, amountUSD float64) (float64, error)
	Reset(ctx context.Context, provider string) error
}

func ledgerDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// MemoryLedger is a process-local Ledger for tests and single-instance
// development runs.
type MemoryLedger struct {
	mu     sync.Mutex
	totals map[string]float64
	now    func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		totals: make(map[string]float64),
		now:    time.Now,
	}
}

func (l *MemoryLedger) key(provider string) string {
	return provider + ":" + ledgerDay(l.now())
}

func (l *MemoryLedger) Total(ctx context.Context, provider string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[l.key(provider)], nil
}

func (l *MemoryLedger) Add(ctx context.Context, provider string, amountUSD float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := l.key(provider)
	l.totals[key] += amountUSD
	return l.totals[key], nil
}

func (l *MemoryLedger) Reset(ctx context.Context, provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.totals, l.key(provider))
	return nil
}
