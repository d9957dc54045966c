// Package bootstrap wires configuration into runtime collaborators shared
// by the API server, the queue worker, and the Lambda entrypoint.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/tutoring-ai-platform/internal/config"
	"github.com/wolfman30/tutoring-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/tutoring-ai-platform/internal/provider"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// Published per-1K-token prices for the default models. Overriding the
// model id keeps these rates, which is close enough for budget capping.
var providerRates = map[string]provider.Rates{
	"bedrock": {InputPer1K: 0.00025, OutputPer1K: 0.00125},
	"gemini":  {InputPer1K: 0.00030, OutputPer1K: 0.00250},
	"openai":  {InputPer1K: 0.00015, OutputPer1K: 0.00060},
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildCostLedger picks the shared Redis ledger when Redis is reachable
// and falls back to the in-process ledger otherwise. Single-process
// deployments lose nothing with the memory ledger; multi-worker ones
// need Redis for an accurate daily total.
func BuildCostLedger(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) provider.Ledger {
	if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
		logger.Info("cost ledger backed by redis", "addr", cfg.RedisAddr)
		return provider.NewRedisLedger(client)
	}
	logger.Warn("cost ledger running in-memory; daily totals reset on restart")
	return provider.NewMemoryLedger()
}

// BuildProviderManager registers every configured model provider and
// selects the active one. At least one provider must be configured.
func BuildProviderManager(
	ctx context.Context,
	cfg *appconfig.Config,
	awsCfg aws.Config,
	ledger provider.Ledger,
	m *metrics.PipelineMetrics,
	logger *logging.Logger,
) (*provider.Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	manager := provider.NewManager(ledger, cfg.DailyCostCeilingUSD, m, logger)

	clients := map[string]provider.LLMClient{}

	if cfg.BedrockModelID != "" {
		clients["bedrock"] = provider.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := provider.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("gemini client init failed", "error", err)
		} else {
			clients["gemini"] = gemini
		}
	}
	if cfg.OpenAIAPIKey != "" {
		openai, err := provider.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			logger.Error("openai client init failed", "error", err)
		} else {
			clients["openai"] = openai
		}
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("bootstrap: no model provider configured")
	}

	// The fallback provider shadows the active client so a single
	// upstream outage does not stall the whole pipeline.
	if fb := cfg.FallbackProvider; fb != "" && fb != cfg.ActiveProvider {
		primary, okP := clients[cfg.ActiveProvider]
		secondary, okS := clients[fb]
		if okP && okS {
			clients[cfg.ActiveProvider] = provider.NewFallbackClient(primary, secondary, logger)
			logger.Info("fallback provider armed", "primary", cfg.ActiveProvider, "fallback", fb)
		}
	}

	register := func(name, model string) {
		client, ok := clients[name]
		if !ok {
			return
		}
		manager.Register(provider.NewProvider(
			name,
			client,
			model,
			providerRates[name],
			cfg.ProviderTimeout,
			float32(cfg.Temperature),
			int32(cfg.MaxTokens),
		))
	}

	// Register the active provider first so it becomes the default.
	ordered := []struct{ name, model string }{
		{"bedrock", cfg.BedrockModelID},
		{"gemini", cfg.GeminiModelID},
		{"openai", cfg.OpenAIModelID},
	}
	for _, entry := range ordered {
		if entry.name == cfg.ActiveProvider {
			register(entry.name, entry.model)
		}
	}
	for _, entry := range ordered {
		if entry.name != cfg.ActiveProvider {
			register(entry.name, entry.model)
		}
	}

	if cfg.ActiveProvider != "" {
		if err := manager.Use(cfg.ActiveProvider); err != nil {
			return nil, fmt.Errorf("bootstrap: active provider: %w", err)
		}
	}

	logger.Info("provider manager ready",
		"active", manager.ActiveName(),
		"daily_ceiling_usd", cfg.DailyCostCeilingUSD,
		"timeout", cfg.ProviderTimeout.String(),
	)
	return manager, nil
}
