package bootstrap

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/tutoring-ai-platform/internal/calltype"
	appconfig "github.com/wolfman30/tutoring-ai-platform/internal/config"
	"github.com/wolfman30/tutoring-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/tutoring-ai-platform/internal/postsession"
	"github.com/wolfman30/tutoring-ai-platform/internal/prompts"
	"github.com/wolfman30/tutoring-ai-platform/internal/students"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// BuildRepository connects to Postgres when DATABASE_URL is set and falls
// back to the in-memory store for local development.
func BuildRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (students.Repository, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured; student data is in-memory only")
		return students.NewInMemoryRepository(), nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect to postgres: %w", err)
	}
	return students.NewPostgresRepository(pool), pool, nil
}

// BuildCatalog loads the prompt templates and optionally starts the
// fsnotify reload watcher.
func BuildCatalog(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*prompts.Catalog, error) {
	catalog, err := prompts.NewCatalog(cfg.PromptDir, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: prompt catalog: %w", err)
	}
	if cfg.PromptWatchReload {
		if err := catalog.Watch(ctx); err != nil {
			logger.Warn("prompt hot reload unavailable", "error", err)
		}
	}
	return catalog, nil
}

// BuildOrchestrator assembles the single-attempt pipeline from its parts.
// The archiver may be nil.
func BuildOrchestrator(
	cfg *appconfig.Config,
	repo students.Repository,
	catalog *prompts.Catalog,
	analyzer postsession.Analyzer,
	archiver postsession.RawArchiver,
	m *metrics.PipelineMetrics,
	logger *logging.Logger,
) *postsession.Orchestrator {
	opts := []postsession.Option{
		postsession.WithMetrics(m),
		postsession.WithClassifier(calltype.NewClassifier(directoryOf(repo), logger)),
	}
	if cfg.MinTranscriptChars > 0 {
		opts = append(opts, postsession.WithMinTranscriptChars(cfg.MinTranscriptChars))
	}
	if prefix := cfg.PlaceholderNamePrefix; prefix != "" {
		re := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `\s*\d*$`)
		opts = append(opts, postsession.WithPlaceholderNamePredicate(re.MatchString))
	}
	if archiver != nil {
		opts = append(opts, postsession.WithRawArchiver(archiver))
	}
	return postsession.NewOrchestrator(repo, catalog, analyzer, logger, opts...)
}

// directoryOf narrows a repository to the phone-lookup surface the
// classifier needs, when the implementation provides it.
func directoryOf(repo students.Repository) students.Directory {
	if dir, ok := repo.(students.Directory); ok {
		return dir
	}
	return nil
}
