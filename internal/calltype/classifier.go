// Package calltype decides whether an inbound call is an introductory
// call from a new student or a tutoring session with a returning one,
// using the caller's phone number against the student directory.
package calltype

import (
	"context"
	"strconv"

	"github.com/wolfman30/tutoring-ai-platform/internal/students"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// CallType labels an inbound call.
type CallType string

const (
	CallTypeIntroductory CallType = "introductory"
	CallTypeTutoring     CallType = "tutoring"
	CallTypeUnknown      CallType = "unknown"
)

// Confidence constants are fixed per branch, never computed. Downstream
// consumers treat anything under 0.6 as uncertain.
const (
	confidenceStoreHit  = 0.95
	confidenceStoreMiss = 0.90
	confidenceFallback  = 0.7
	confidenceDefault   = 0.5
)

// Context keys recognized in the extra map passed to Classify.
const (
	ContextKeyIsNewStudent = "is_new_student"
	ContextKeyStudentID    = "student_id"
)

// Result is the classifier's verdict for one inbound call.
type Result struct {
	CallType             CallType `json:"call_type"`
	Confidence           float64  `json:"confidence"`
	Reason               string   `json:"reason"`
	StudentID            *int64   `json:"student_id,omitempty"`
	ExistingSessionCount int      `json:"existing_session_count"`
	NormalizedPhone      string   `json:"normalized_phone"`
}

// Classifier maps caller phones to call types. The directory may be nil;
// classification then degrades to the context-flag fallback.
type Classifier struct {
	directory students.Directory
	log       *logging.Logger
}

// NewClassifier builds a classifier over the given directory. A nil
// directory is valid and forces the fallback path.
func NewClassifier(directory students.Directory, log *logging.Logger) *Classifier {
	if log == nil {
		log = logging.Default()
	}
	return &Classifier{directory: directory, log: log.Named("calltype")}
}

// Classify never returns an error: uncertain input degrades to a typed
// result with a low confidence and a human-readable reason.
func (c *Classifier) Classify(ctx context.Context, phone string, extra map[string]string) Result {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return Result{
			CallType:   CallTypeUnknown,
			Confidence: 0.0,
			Reason:     "invalid or missing phone number",
		}
	}

	if c.directory == nil {
		return c.fallback(normalized, extra)
	}

	summaries, err := c.directory.ListActive(ctx)
	if err != nil {
		c.log.Warn("student directory lookup failed, using fallback classification", "error", err)
		return c.fallback(normalized, extra)
	}

	for _, s := range summaries {
		if NormalizePhone(s.Phone) != normalized {
			continue
		}
		id := s.ID
		return Result{
			CallType:             CallTypeTutoring,
			Confidence:           confidenceStoreHit,
			Reason:               "phone matched existing student",
			StudentID:            &id,
			ExistingSessionCount: s.SessionCount,
			NormalizedPhone:      normalized,
		}
	}
	return Result{
		CallType:        CallTypeIntroductory,
		Confidence:      confidenceStoreMiss,
		Reason:          "phone not found among active students",
		NormalizedPhone: normalized,
	}
}

// fallback classifies from context flags alone. It always returns a
// result.
func (c *Classifier) fallback(normalized string, extra map[string]string) Result {
	if extra[ContextKeyIsNewStudent] == "true" {
		return Result{
			CallType:        CallTypeIntroductory,
			Confidence:      confidenceFallback,
			Reason:          "caller flagged as new student",
			NormalizedPhone: normalized,
		}
	}
	if raw, ok := extra[ContextKeyStudentID]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Result{
				CallType:        CallTypeTutoring,
				Confidence:      confidenceFallback,
				Reason:          "caller supplied a student id",
				StudentID:       &id,
				NormalizedPhone: normalized,
			}
		}
	}
	return Result{
		CallType:        CallTypeIntroductory,
		Confidence:      confidenceDefault,
		Reason:          "no database connection — defaulting to introductory call",
		NormalizedPhone: normalized,
	}
}
