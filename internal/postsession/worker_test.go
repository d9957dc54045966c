package postsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

type recordingRunner struct {
	mu       sync.Mutex
	sessions []int64
	result   *UpdateResult
	done     chan struct{}
}

func (r *recordingRunner) Run(_ context.Context, sessionID int64) *UpdateResult {
	r.mu.Lock()
	r.sessions = append(r.sessions, sessionID)
	r.mu.Unlock()
	if r.done != nil {
		defer close(r.done)
	}
	res := *r.result
	res.SessionID = sessionID
	return &res
}

func TestWorkerProcessesJobAndMarksCompleted(t *testing.T) {
	queue := NewMemoryQueue(8)
	jobs := newMemoryJobStore()
	runner := &recordingRunner{
		result: &UpdateResult{Success: true, ProfileUpdated: true},
		done:   make(chan struct{}),
	}

	d := NewDispatcher(queue, jobs)
	jobID, err := d.Enqueue(context.Background(), 42)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(runner, queue, jobs, logging.New("error"),
		WithWorkerCount(1),
		WithReceiveWaitSeconds(1),
		WithRetryPolicy(1, time.Millisecond),
	)
	w.Start(ctx)

	select {
	case <-runner.done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker never processed the job")
	}
	cancel()
	w.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.sessions) != 1 || runner.sessions[0] != 42 {
		t.Fatalf("sessions = %v", runner.sessions)
	}

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	result, ok := jobs.completed[jobID]
	if !ok {
		t.Fatalf("job %s was not marked completed (failed: %v)", jobID, jobs.failed)
	}
	if !result.Success || result.SessionID != 42 {
		t.Fatalf("stored result = %+v", result)
	}
}

func TestWorkerMarksFailedJobs(t *testing.T) {
	queue := NewMemoryQueue(8)
	jobs := newMemoryJobStore()
	runner := &recordingRunner{
		result: &UpdateResult{Success: false, Error: "parse provider response: no JSON object found"},
		done:   make(chan struct{}),
	}

	d := NewDispatcher(queue, jobs)
	jobID, err := d.Enqueue(context.Background(), 42)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(runner, queue, jobs, logging.New("error"),
		WithWorkerCount(1),
		WithReceiveWaitSeconds(1),
		WithRetryPolicy(1, time.Millisecond),
	)
	w.Start(ctx)

	select {
	case <-runner.done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker never processed the job")
	}
	cancel()
	w.Wait()

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if msg, ok := jobs.failed[jobID]; !ok || msg == "" {
		t.Fatalf("job %s was not marked failed: %v", jobID, jobs.failed)
	}
}

func TestWorkerSkipsStatusWithoutTracking(t *testing.T) {
	queue := NewMemoryQueue(8)
	jobs := newMemoryJobStore()
	runner := &recordingRunner{
		result: &UpdateResult{Success: true},
		done:   make(chan struct{}),
	}

	d := NewDispatcher(queue, jobs)
	if _, err := d.Enqueue(context.Background(), 42, WithoutJobTracking()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(runner, queue, jobs, logging.New("error"),
		WithWorkerCount(1),
		WithReceiveWaitSeconds(1),
	)
	w.Start(ctx)

	select {
	case <-runner.done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker never processed the job")
	}
	cancel()
	w.Wait()

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if len(jobs.completed) != 0 || len(jobs.failed) != 0 {
		t.Fatal("untracked jobs must not touch the job store")
	}
}

func TestWorkerDropsMalformedMessages(t *testing.T) {
	queue := NewMemoryQueue(8)
	if err := queue.Send(context.Background(), "{not json"); err != nil {
		t.Fatalf("send: %v", err)
	}

	runner := &recordingRunner{result: &UpdateResult{Success: true}}
	w := NewWorker(runner, queue, nil, logging.New("error"))

	msgs, err := queue.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	w.handleMessage(context.Background(), msgs[0])

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.sessions) != 0 {
		t.Fatal("malformed payloads must not reach the pipeline")
	}
}
