package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ledgerTTL keeps yesterday's key around long enough for reporting, then
// lets Redis reclaim it.
const ledgerTTL = 48 * time.Hour

// RedisLedger is a Ledger shared across worker instances. Increments use
// INCRBYFLOAT, so concurrent workers never under-count spend.
type RedisLedger struct {
	client redis.UniversalClient
	tracer trace.Tracer
	now    func() time.Time
}

func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	if client == nil {
		panic("provider: redis client required")
	}
	return &RedisLedger{
		client: client,
		tracer: otel.Tracer("tutoring.internal.provider.cost_ledger"),
		now:    time.Now,
	}
}

func (l *RedisLedger) key(provider string) string {
	return fmt.Sprintf("cost_ledger:%s:%s", provider, ledgerDay(l.now()))
}

func (l *RedisLedger) Total(ctx context.Context, provider string) (float64, error) {
	raw, err := l.client.Get(ctx, l.key(provider)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("provider: ledger read failed: %w", err)
	}
	total, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("provider: ledger value corrupt: %w", err)
	}
	return total, nil
}

func (l *RedisLedger) Add(ctx context.Context, provider string, amountUSD float64) (float64, error) {
	ctx, span := l.tracer.Start(ctx, "provider.cost_ledger.add")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", provider),
		attribute.Float64("cost.usd", amountUSD),
	)

	key := l.key(provider)
	total, err := l.client.IncrByFloat(ctx, key, amountUSD).Result()
	if err != nil {
		return 0, fmt.Errorf("provider: ledger increment failed: %w", err)
	}
	// Best effort; a key without TTL still rolls over by date.
	l.client.ExpireNX(ctx, key, ledgerTTL)
	return total, nil
}

func (l *RedisLedger) Reset(ctx context.Context, provider string) error {
	if err := l.client.Del(ctx, l.key(provider)).Err(); err != nil {
		return fmt.Errorf("provider: ledger reset failed: %w", err)
	}
	return nil
}
