package postsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5

	defaultRetryAttempts = 3
	defaultRetryInterval = 2 * time.Second
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	retryAttempts    int
	retryInterval    time.Duration
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithRetryPolicy configures how many attempts a transient provider
// failure gets and the fixed interval between them.
func WithRetryPolicy(attempts int, interval time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if attempts > 0 {
			cfg.retryAttempts = attempts
		}
		if interval > 0 {
			cfg.retryInterval = interval
		}
	}
}

// Worker consumes update jobs from the queue and runs the pipeline.
type Worker struct {
	runner Runner
	queue  QueueClient
	jobs   JobUpdater
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker builds a queue consumer. The job updater may be nil when jobs
// are dispatched without status tracking.
func NewWorker(runner Runner, queue QueueClient, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if runner == nil {
		panic("postsession: runner required")
	}
	if queue == nil {
		panic("postsession: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		retryAttempts:    defaultRetryAttempts,
		retryInterval:    defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		runner: runner,
		queue:  queue,
		jobs:   jobs,
		logger: logger.Named("postsession.worker"),
		cfg:    cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("update worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("update worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive update jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode update job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing update job",
		"job_id", payload.ID,
		"session_id", payload.SessionID,
		"msg_id", msg.ID,
	)

	result := RunWithRetry(ctx, w.runner, payload.SessionID, w.cfg.retryAttempts, w.cfg.retryInterval, w.logger)

	if payload.TrackStatus && w.jobs != nil {
		var storeErr error
		if result != nil && (result.Success || result.Skipped) {
			storeErr = w.jobs.MarkCompleted(ctx, payload.ID, result)
		} else {
			errMsg := "update failed"
			if result != nil && result.Error != "" {
				errMsg = result.Error
			}
			storeErr = w.jobs.MarkFailed(ctx, payload.ID, errMsg)
		}
		if storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
	}

	// The pipeline owns its own retries; a processed message never goes
	// back on the queue.
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete update job", "error", err)
	}
}
