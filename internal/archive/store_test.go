package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

type mockS3 struct {
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}}
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*params.Key]
	if !ok {
		return nil, errors.New("NoSuchKey: the specified key does not exist")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func fixedClock(s *Store, t time.Time) {
	s.now = func() time.Time { return t }
}

func TestArchiveRawResponse(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "tutoring-archive", logging.Default())
	fixedClock(store, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))

	err := store.ArchiveRawResponse(context.Background(), 42, "openai", "Sorry, no JSON today.")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	var recordKey string
	for key := range mock.objects {
		if strings.HasPrefix(key, "postsession/raw/by-date/2026/03/15/session-42-") {
			recordKey = key
		}
	}
	if recordKey == "" {
		t.Fatalf("record object missing, keys: %v", keysOf(mock.objects))
	}

	var record RawResponseRecord
	if err := json.Unmarshal(mock.objects[recordKey], &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.SessionID != 42 || record.Provider != "openai" || record.RawText != "Sorry, no JSON today." {
		t.Fatalf("record = %+v", record)
	}

	manifest, ok := mock.objects["postsession/raw/manifests/2026-03.jsonl"]
	if !ok {
		t.Fatal("manifest missing")
	}
	var entry ManifestEntry
	if err := json.Unmarshal(manifest[:len(manifest)-1], &entry); err != nil {
		t.Fatalf("decode manifest line: %v", err)
	}
	if entry.SessionID != 42 || entry.S3Key != recordKey {
		t.Fatalf("manifest entry = %+v", entry)
	}
}

func TestArchiveManifestAppends(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "tutoring-archive", logging.Default())
	fixedClock(store, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))

	if err := store.ArchiveRawResponse(context.Background(), 1, "openai", "a"); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	fixedClock(store, time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC))
	if err := store.ArchiveRawResponse(context.Background(), 2, "gemini", "b"); err != nil {
		t.Fatalf("second archive: %v", err)
	}

	manifest := string(mock.objects["postsession/raw/manifests/2026-03.jsonl"])
	lines := strings.Split(strings.TrimRight(manifest, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("manifest lines = %d, want 2", len(lines))
	}
}

func TestArchiveDisabledIsNoop(t *testing.T) {
	store := NewStore(nil, "", logging.Default())
	if store.Enabled() {
		t.Fatal("store without bucket must be disabled")
	}
	if err := store.ArchiveRawResponse(context.Background(), 42, "openai", "raw"); err != nil {
		t.Fatalf("disabled archive must be a no-op, got %v", err)
	}
}

func TestArchivePutFailure(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	store := NewStore(mock, "tutoring-archive", logging.Default())

	err := store.ArchiveRawResponse(context.Background(), 42, "openai", "raw")
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected put failure, got %v", err)
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
