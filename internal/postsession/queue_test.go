package postsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryJobStore struct {
	mu        sync.Mutex
	pending   []*JobRecord
	completed map[string]*UpdateResult
	failed    map[string]string
	putErr    error
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{
		completed: map[string]*UpdateResult{},
		failed:    map[string]string{},
	}
}

func (m *memoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.pending = append(m.pending, job)
	return nil
}

func (m *memoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.pending {
		if job.JobID == jobID {
			return job, nil
		}
	}
	return nil, ErrJobNotFound
}

func (m *memoryJobStore) MarkCompleted(_ context.Context, jobID string, result *UpdateResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[jobID] = result
	return nil
}

func (m *memoryJobStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[jobID] = errMsg
	return nil
}

func TestDispatcherEnqueueTracksJob(t *testing.T) {
	queue := NewMemoryQueue(8)
	jobs := newMemoryJobStore()
	d := NewDispatcher(queue, jobs)

	jobID, err := d.Enqueue(context.Background(), 42)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	if len(jobs.pending) != 1 || jobs.pending[0].JobID != jobID || jobs.pending[0].SessionID != 42 {
		t.Fatalf("pending jobs = %+v", jobs.pending)
	}

	msgs, err := queue.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	var payload queuePayload
	if err := json.Unmarshal([]byte(msgs[0].Body), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ID != jobID || payload.SessionID != 42 || !payload.TrackStatus {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDispatcherEnqueueWithoutTracking(t *testing.T) {
	queue := NewMemoryQueue(8)
	jobs := newMemoryJobStore()
	d := NewDispatcher(queue, jobs)

	if _, err := d.Enqueue(context.Background(), 42, WithoutJobTracking()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(jobs.pending) != 0 {
		t.Fatalf("pending jobs = %d, want 0 without tracking", len(jobs.pending))
	}
}

func TestDispatcherEnqueueJobStoreFailure(t *testing.T) {
	queue := NewMemoryQueue(8)
	jobs := newMemoryJobStore()
	jobs.putErr = errors.New("dynamo unavailable")
	d := NewDispatcher(queue, jobs)

	if _, err := d.Enqueue(context.Background(), 42); err == nil {
		t.Fatal("expected error when job recording fails")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if msgs, _ := queue.Receive(ctx, 1, 0); len(msgs) != 0 {
		t.Fatal("no message should be sent when the job cannot be recorded")
	}
}

func TestMemoryQueueBatching(t *testing.T) {
	queue := NewMemoryQueue(8)
	for i := 0; i < 4; i++ {
		if err := queue.Send(context.Background(), "payload"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	msgs, err := queue.Receive(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("batch = %d, want 3", len(msgs))
	}

	msgs, err = queue.Receive(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("remainder = %d, want 1", len(msgs))
	}
}

func TestMemoryQueueReceiveCancelled(t *testing.T) {
	queue := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := queue.Receive(ctx, 1, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
