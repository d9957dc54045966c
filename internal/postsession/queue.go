package postsession

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// QueueClient is the transport the dispatcher publishes to and the
// worker consumes from.
type QueueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type queuePayload struct {
	ID          string `json:"id"`
	SessionID   int64  `json:"session_id"`
	TrackStatus bool   `json:"track_status"`
}

// PublishOption customizes a dispatched update job.
type PublishOption func(*queuePayload)

// WithoutJobTracking disables job status persistence for fire-and-forget
// dispatches.
func WithoutJobTracking() PublishOption {
	return func(p *queuePayload) {
		p.TrackStatus = false
	}
}

// Dispatcher enqueues post-session update jobs.
type Dispatcher struct {
	queue QueueClient
	jobs  JobRecorder
}

// NewDispatcher builds a dispatcher. The job recorder may be nil when
// status tracking is not needed.
func NewDispatcher(queue QueueClient, jobs JobRecorder) *Dispatcher {
	if queue == nil {
		panic("postsession: queue required")
	}
	return &Dispatcher{queue: queue, jobs: jobs}
}

// Enqueue schedules an update for one session and returns the job id.
func (d *Dispatcher) Enqueue(ctx context.Context, sessionID int64, opts ...PublishOption) (string, error) {
	payload := queuePayload{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		TrackStatus: true,
	}
	for _, opt := range opts {
		opt(&payload)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("postsession: failed to encode payload: %w", err)
	}

	if payload.TrackStatus && d.jobs != nil {
		if err := d.jobs.PutPending(ctx, &JobRecord{JobID: payload.ID, SessionID: sessionID}); err != nil {
			return "", fmt.Errorf("postsession: failed to record job: %w", err)
		}
	}
	if err := d.queue.Send(ctx, string(body)); err != nil {
		return "", fmt.Errorf("postsession: failed to enqueue job: %w", err)
	}
	return payload.ID, nil
}
