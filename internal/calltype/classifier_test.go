package calltype

import (
	"context"
	"errors"
	"testing"

	"github.com/wolfman30/tutoring-ai-platform/internal/students"
)

type stubDirectory struct {
	summaries []students.Summary
	err       error
	calls     int
}

func (d *stubDirectory) ListActive(ctx context.Context) ([]students.Summary, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.summaries, nil
}

func TestClassifyEmptyPhone(t *testing.T) {
	dir := &stubDirectory{}
	c := NewClassifier(dir, nil)

	res := c.Classify(context.Background(), "", nil)
	if res.CallType != CallTypeUnknown || res.Confidence != 0.0 {
		t.Fatalf("got %s/%v", res.CallType, res.Confidence)
	}
	if res.Reason != "invalid or missing phone number" {
		t.Fatalf("reason: %q", res.Reason)
	}
	if dir.calls != 0 {
		t.Fatalf("lookup attempted for empty phone")
	}
}

func TestClassifyKnownStudent(t *testing.T) {
	dir := &stubDirectory{summaries: []students.Summary{
		{ID: 6010, FirstName: "Emma", Phone: "(555) 123-4567", SessionCount: 3},
	}}
	c := NewClassifier(dir, nil)

	res := c.Classify(context.Background(), "+15551234567", nil)
	if res.CallType != CallTypeTutoring || res.Confidence != 0.95 {
		t.Fatalf("got %s/%v", res.CallType, res.Confidence)
	}
	if res.StudentID == nil || *res.StudentID != 6010 {
		t.Fatalf("student id: %v", res.StudentID)
	}
	if res.ExistingSessionCount != 3 {
		t.Fatalf("session count: %d", res.ExistingSessionCount)
	}
	if res.NormalizedPhone != "+15551234567" {
		t.Fatalf("normalized phone: %q", res.NormalizedPhone)
	}
}

func TestClassifyUnknownCaller(t *testing.T) {
	dir := &stubDirectory{summaries: []students.Summary{
		{ID: 1, Phone: "+15550000000"},
	}}
	c := NewClassifier(dir, nil)

	res := c.Classify(context.Background(), "5551234567", nil)
	if res.CallType != CallTypeIntroductory || res.Confidence != 0.90 {
		t.Fatalf("got %s/%v", res.CallType, res.Confidence)
	}
}

func TestClassifyLookupErrorFallsBack(t *testing.T) {
	dir := &stubDirectory{err: errors.New("connection refused")}
	c := NewClassifier(dir, nil)

	res := c.Classify(context.Background(), "5551234567", nil)
	if res.CallType != CallTypeIntroductory || res.Confidence != 0.5 {
		t.Fatalf("got %s/%v", res.CallType, res.Confidence)
	}
}

func TestClassifyFallbackFlags(t *testing.T) {
	c := NewClassifier(nil, nil)

	res := c.Classify(context.Background(), "5551234567", map[string]string{ContextKeyIsNewStudent: "true"})
	if res.CallType != CallTypeIntroductory || res.Confidence != 0.7 {
		t.Fatalf("is_new_student: got %s/%v", res.CallType, res.Confidence)
	}

	res = c.Classify(context.Background(), "5551234567", map[string]string{ContextKeyStudentID: "6010"})
	if res.CallType != CallTypeTutoring || res.Confidence != 0.7 {
		t.Fatalf("student_id: got %s/%v", res.CallType, res.Confidence)
	}
	if res.StudentID == nil || *res.StudentID != 6010 {
		t.Fatalf("student id: %v", res.StudentID)
	}

	res = c.Classify(context.Background(), "5551234567", nil)
	if res.CallType != CallTypeIntroductory || res.Confidence != 0.5 {
		t.Fatalf("default: got %s/%v", res.CallType, res.Confidence)
	}
	if res.Reason != "no database connection — defaulting to introductory call" {
		t.Fatalf("reason: %q", res.Reason)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	dir := &stubDirectory{summaries: []students.Summary{{ID: 6010, Phone: "5551234567", SessionCount: 3}}}
	c := NewClassifier(dir, nil)

	first := c.Classify(context.Background(), "+15551234567", nil)
	for i := 0; i < 5; i++ {
		again := c.Classify(context.Background(), "+15551234567", nil)
		if again.CallType != first.CallType || again.Confidence != first.Confidence {
			t.Fatalf("classification drifted: %+v vs %+v", again, first)
		}
	}
}
