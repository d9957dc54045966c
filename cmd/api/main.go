package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/tutoring-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/tutoring-ai-platform/internal/api/router"
	"github.com/wolfman30/tutoring-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/tutoring-ai-platform/internal/archive"
	appconfig "github.com/wolfman30/tutoring-ai-platform/internal/config"
	"github.com/wolfman30/tutoring-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/tutoring-ai-platform/internal/postsession"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting tutoring-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	var queue postsession.QueueClient
	var jobStore *postsession.JobStore
	if cfg.UseMemoryQueue {
		queue = postsession.NewMemoryQueue(128)
		logger.Warn("using in-memory queue; jobs are lost on restart")
	} else {
		queue = postsession.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.UpdateQueueURL)
		jobStore = postsession.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.UpdateJobsTable, logger)
	}

	var jobs postsession.JobRecorder
	if jobStore != nil {
		jobs = jobStore
	}
	dispatcher := postsession.NewDispatcher(queue, jobs)
	sessionHandler := postsession.NewHandler(dispatcher, jobs, logger)

	// Memory-queue mode runs the pipeline workers inside the API process.
	if cfg.UseMemoryQueue {
		repo, pool, err := bootstrap.BuildRepository(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if pool != nil {
			defer pool.Close()
		}
		catalog, err := bootstrap.BuildCatalog(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to load prompt catalog", "error", err)
			os.Exit(1)
		}
		ledger := bootstrap.BuildCostLedger(ctx, cfg, logger)
		manager, err := bootstrap.BuildProviderManager(ctx, cfg, awsCfg, ledger, pipelineMetrics, logger)
		if err != nil {
			logger.Error("failed to configure model providers", "error", err)
			os.Exit(1)
		}
		archiver := archive.NewStore(s3.NewFromConfig(awsCfg), cfg.RawResponseBucket, logger)

		orchestrator := bootstrap.BuildOrchestrator(cfg, repo, catalog, manager, archiver, pipelineMetrics, logger)
		worker := postsession.NewWorker(orchestrator, queue, nil, logger,
			postsession.WithWorkerCount(cfg.WorkerCount),
			postsession.WithRetryPolicy(cfg.UpdateRetryMaxAttempts, cfg.UpdateRetryBackoff),
		)
		worker.Start(ctx)
		defer worker.Wait()
	}

	r := router.New(&router.Config{
		Logger:           logger,
		Sessions:         sessionHandler,
		MetricsHandler:   promhttp.Handler(),
		AnalyzeRateLimit: 5,
		AnalyzeBurst:     10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
