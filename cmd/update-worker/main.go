package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/tutoring-ai-platform/cmd/mainconfig"
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

	if cfg.UseMemoryQueue {
		logger.Error("update worker cannot run with USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

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

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	ledger := bootstrap.BuildCostLedger(ctx, cfg, logger)
	manager, err := bootstrap.BuildProviderManager(ctx, cfg, awsCfg, ledger, pipelineMetrics, logger)
	if err != nil {
		logger.Error("failed to configure model providers", "error", err)
		os.Exit(1)
	}

	archiver := archive.NewStore(s3.NewFromConfig(awsCfg), cfg.RawResponseBucket, logger)
	orchestrator := bootstrap.BuildOrchestrator(cfg, repo, catalog, manager, archiver, pipelineMetrics, logger)

	queue := postsession.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.UpdateQueueURL)
	jobStore := postsession.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.UpdateJobsTable, logger)

	worker := postsession.NewWorker(orchestrator, queue, jobStore, logger,
		postsession.WithWorkerCount(cfg.WorkerCount),
		postsession.WithRetryPolicy(cfg.UpdateRetryMaxAttempts, cfg.UpdateRetryBackoff),
	)
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down update worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("update worker stopped")
	case <-doneCtx.Done():
		logger.Error("update worker shutdown timed out", "error", doneCtx.Err())
	}
}
