// Package archive preserves raw model output that failed validation so
// unparseable responses can be inspected and replayed later.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// RawResponseRecord is the archived form of one rejected model response.
type RawResponseRecord struct {
	SessionID  int64     `json:"session_id"`
	Provider   string    `json:"provider"`
	RawText    string    `json:"raw_text"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ManifestEntry is one JSONL line in the monthly archive manifest.
type ManifestEntry struct {
	SessionID  int64  `json:"session_id"`
	Provider   string `json:"provider"`
	S3Key      string `json:"s3_key"`
	ArchivedAt string `json:"archived_at"`
	RawChars   int    `json:"raw_chars"`
}

// Store archives rejected responses to S3. If bucket is empty, all
// operations are no-ops, so callers never need to nil-check.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger.Named("archive"),
		now:      time.Now,
	}
}

// Enabled reports whether archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveRawResponse writes the rejected output as JSON to S3 and appends
// to the monthly manifest.
func (s *Store) ArchiveRawResponse(ctx context.Context, sessionID int64, provider, raw string) error {
	if !s.Enabled() {
		return nil
	}

	now := s.now().UTC()
	record := RawResponseRecord{
		SessionID:  sessionID,
		Provider:   provider,
		RawText:    raw,
		ArchivedAt: now,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	s3Key := fmt.Sprintf("postsession/raw/by-date/%d/%02d/%02d/session-%d-%d.json",
		now.Year(), now.Month(), now.Day(), sessionID, now.UnixNano())

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("archived raw response",
		"session_id", sessionID,
		"provider", provider,
		"s3_key", s3Key,
		"raw_chars", len(raw),
	)

	entry := ManifestEntry{
		SessionID:  sessionID,
		Provider:   provider,
		S3Key:      s3Key,
		ArchivedAt: now.Format(time.RFC3339),
		RawChars:   len(raw),
	}
	if err := s.appendManifest(ctx, entry); err != nil {
		// The record itself is already archived.
		s.logger.Warn("failed to append manifest", "error", err, "session_id", sessionID)
	}

	return nil
}

// appendManifest appends a JSONL line to the monthly manifest file.
// S3 has no append, so this is read-modify-write.
func (s *Store) appendManifest(ctx context.Context, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now().UTC()
	manifestKey := fmt.Sprintf("postsession/raw/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err != nil {
		if !isNotFoundErr(err) {
			return fmt.Errorf("archive: s3 get manifest: %w", err)
		}
	} else {
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
