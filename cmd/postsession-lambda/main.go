// postsession-lambda consumes update jobs from SQS via Lambda event
// source mapping, running the same pipeline as the long-lived worker.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/tutoring-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/tutoring-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/tutoring-ai-platform/internal/archive"
	appconfig "github.com/wolfman30/tutoring-ai-platform/internal/config"
	"github.com/wolfman30/tutoring-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/tutoring-ai-platform/internal/postsession"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// jobPayload mirrors the dispatcher's queue message format.
type jobPayload struct {
	ID          string `json:"id"`
	SessionID   int64  `json:"session_id"`
	TrackStatus bool   `json:"track_status"`
}

type handler struct {
	orchestrator *postsession.Orchestrator
	jobs         postsession.JobUpdater
	cfg          *appconfig.Config
	logger       *logging.Logger
}

func (h *handler) handle(ctx context.Context, evt events.SQSEvent) error {
	for _, record := range evt.Records {
		var payload jobPayload
		if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
			h.logger.Error("failed to decode update job", "message_id", record.MessageId, "error", err)
			continue
		}

		result := postsession.RunWithRetry(
			ctx,
			h.orchestrator,
			payload.SessionID,
			h.cfg.UpdateRetryMaxAttempts,
			h.cfg.UpdateRetryBackoff,
			h.logger,
		)

		if payload.TrackStatus && h.jobs != nil {
			var storeErr error
			if result != nil && (result.Success || result.Skipped) {
				storeErr = h.jobs.MarkCompleted(ctx, payload.ID, result)
			} else {
				errMsg := "update failed"
				if result != nil && result.Error != "" {
					errMsg = result.Error
				}
				storeErr = h.jobs.MarkFailed(ctx, payload.ID, errMsg)
			}
			if storeErr != nil {
				h.logger.Error("failed to update job status", "job_id", payload.ID, "error", storeErr)
			}
		}
	}
	// Pipeline retries are handled inside RunWithRetry; failed messages
	// are not returned to the queue.
	return nil
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	repo, _, err := bootstrap.BuildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
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
	jobStore := postsession.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.UpdateJobsTable, logger)

	h := &handler{
		orchestrator: orchestrator,
		jobs:         jobStore,
		cfg:          cfg,
		logger:       logger,
	}
	lambda.Start(h.handle)
}
