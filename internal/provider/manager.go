package provider

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/tutoring-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

var analyzeTracer = otel.Tracer("tutoring.internal.provider.manager")

// Manager is the name-keyed provider registry plus budget enforcement.
// All analysis calls go through it so spend is checked and recorded in
// one place.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	active    string

	ledger  Ledger
	ceiling float64
	metrics *metrics.PipelineMetrics
	log     *logging.Logger
}

// NewManager builds an empty registry enforcing ceilingUSD per provider
// per UTC day. Metrics may be nil.
func NewManager(ledger Ledger, ceilingUSD float64, m *metrics.PipelineMetrics, log *logging.Logger) *Manager {
	if ledger == nil {
		panic("provider: ledger required")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		ledger:    ledger,
		ceiling:   ceilingUSD,
		metrics:   m,
		log:       log.Named("provider"),
	}
}

// Register adds a provider. The first registration becomes active.
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
	if m.active == "" {
		m.active = p.Name()
	}
}

// Use switches the active provider. An unknown name fails and leaves the
// active provider unchanged.
func (m *Manager) Use(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	m.active = name
	return nil
}

// ActiveName reports the currently selected provider name.
func (m *Manager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) activeProvider() (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[m.active]
	if !ok {
		return nil, fmt.Errorf("%w: no active provider", ErrUnknownProvider)
	}
	return p, nil
}

// Analyze runs one transcript analysis on the active provider. The daily
// ledger is checked before the call and incremented with the realized
// cost after it; a rejected call leaves the ledger untouched.
func (m *Manager) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	p, err := m.activeProvider()
	if err != nil {
		return nil, err
	}

	ctx, span := analyzeTracer.Start(ctx, "provider.analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", p.Name()),
		attribute.Int("transcript.chars", len(req.Transcript)),
	)

	estimate := p.EstimateCost(len(req.Transcript))
	total, err := m.ledger.Total(ctx, p.Name())
	if err != nil {
		return nil, fmt.Errorf("provider: ledger check failed: %w", err)
	}
	if total+estimate > m.ceiling {
		m.metrics.ObserveBudgetRejection(p.Name())
		m.log.Warn("analysis rejected by daily budget",
			"provider", p.Name(),
			"spent_usd", total,
			"estimate_usd", estimate,
			"ceiling_usd", m.ceiling,
		)
		return nil, fmt.Errorf("%w: spent $%.4f of $%.2f, call estimated at $%.4f",
			ErrBudgetExceeded, total, m.ceiling, estimate)
	}

	result, err := p.Analyze(ctx, req)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveAnalysis(p.Name(), "error", 0)
		return nil, err
	}

	if _, err := m.ledger.Add(ctx, p.Name(), result.CostUSD); err != nil {
		// The analysis itself succeeded; losing the increment
		// under-counts spend, so make it loud.
		m.log.Error("ledger increment failed", "provider", p.Name(), "cost_usd", result.CostUSD, "error", err)
	}

	m.metrics.ObserveAnalysis(p.Name(), "ok", result.ProcessingTime.Seconds())
	m.metrics.AddCost(p.Name(), result.CostUSD)
	return result, nil
}
