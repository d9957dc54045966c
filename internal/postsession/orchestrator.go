// Package postsession runs the after-call pipeline: build student
// context, analyze the transcript with a model provider, validate the
// response, and merge the extracted deltas into the student record.
package postsession

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/tutoring-ai-platform/internal/calltype"
	"github.com/wolfman30/tutoring-ai-platform/internal/extract"
	"github.com/wolfman30/tutoring-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/tutoring-ai-platform/internal/prompts"
	"github.com/wolfman30/tutoring-ai-platform/internal/provider"
	"github.com/wolfman30/tutoring-ai-platform/internal/students"
	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

var runTracer = otel.Tracer("tutoring.internal.postsession.orchestrator")

// Analyzer is the provider surface the orchestrator needs.
type Analyzer interface {
	Analyze(ctx context.Context, req provider.AnalysisRequest) (*provider.AnalysisResult, error)
}

// PromptSource selects and renders analysis prompts.
type PromptSource interface {
	SelectForCallType(ct calltype.CallType, subjectHint string, shortSession bool) string
	Format(name string, args map[string]string) (*prompts.FormattedPrompt, error)
}

// CallClassifier labels the call the session came from.
type CallClassifier interface {
	Classify(ctx context.Context, phone string, extra map[string]string) calltype.Result
}

// RawArchiver preserves unparseable provider output for diagnosis.
type RawArchiver interface {
	ArchiveRawResponse(ctx context.Context, sessionID int64, provider, raw string) error
}

const (
	defaultMinTranscriptChars = 50
	defaultShortSessionChars  = 600
)

var defaultPlaceholderRE = regexp.MustCompile(`^Student\s*\d*$`)

// Orchestrator executes one post-session update per Run call. It is
// retry-agnostic; RunWithRetry wraps it for the task layer.
type Orchestrator struct {
	repo       students.Repository
	prompts    PromptSource
	analyzer   Analyzer
	classifier CallClassifier

	archiver          RawArchiver
	metrics           *metrics.PipelineMetrics
	log               *logging.Logger
	isPlaceholderName func(string) bool
	minTranscript     int
	shortSession      int
}

// Option customizes orchestrator behavior.
type Option func(*Orchestrator)

// WithPlaceholderNamePredicate injects the check for auto-generated
// student names. The default matches the "Student 6010" scheme.
func WithPlaceholderNamePredicate(fn func(string) bool) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.isPlaceholderName = fn
		}
	}
}

// WithMinTranscriptChars overrides the minimum useful transcript length.
func WithMinTranscriptChars(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.minTranscript = n
		}
	}
}

// WithShortSessionChars sets the length under which a tutoring session
// downgrades to the quick-assessment prompt.
func WithShortSessionChars(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.shortSession = n
		}
	}
}

// WithRawArchiver stores raw provider output when parsing fails.
func WithRawArchiver(a RawArchiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClassifier overrides the call-type classifier.
func WithClassifier(c CallClassifier) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.classifier = c
		}
	}
}

// NewOrchestrator wires the pipeline's collaborators together.
func NewOrchestrator(repo students.Repository, promptSource PromptSource, analyzer Analyzer, log *logging.Logger, opts ...Option) *Orchestrator {
	if repo == nil {
		panic("postsession: repository required")
	}
	if promptSource == nil {
		panic("postsession: prompt source required")
	}
	if analyzer == nil {
		panic("postsession: analyzer required")
	}
	if log == nil {
		log = logging.Default()
	}
	o := &Orchestrator{
		repo:              repo,
		prompts:           promptSource,
		analyzer:          analyzer,
		log:               log.Named("postsession"),
		isPlaceholderName: defaultPlaceholderRE.MatchString,
		minTranscript:     defaultMinTranscriptChars,
		shortSession:      defaultShortSessionChars,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the whole pipeline for one session. Pipeline outcomes are
// encoded in the result, never returned as a Go error.
func (o *Orchestrator) Run(ctx context.Context, sessionID int64) *UpdateResult {
	ctx, span := runTracer.Start(ctx, "postsession.run")
	defer span.End()
	span.SetAttributes(attribute.Int64("session.id", sessionID))

	result := o.run(ctx, sessionID)
	o.observe(result)
	return result
}

func (o *Orchestrator) run(ctx context.Context, sessionID int64) *UpdateResult {
	sess, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, students.ErrSessionNotFound) {
			return failure(sessionID, "Session not found")
		}
		return failure(sessionID, fmt.Sprintf("load session: %v", err))
	}

	if sess.StudentID == nil {
		return skipped(sessionID, "No student ID")
	}
	transcript := strings.TrimSpace(sess.Transcript)
	if len(transcript) < o.minTranscript {
		return skipped(sessionID, "Insufficient transcript")
	}

	// Context must build before any budget is spent: a provider call
	// whose result cannot be applied is money wasted.
	fc, err := o.repo.GetStudentFullContext(ctx, *sess.StudentID)
	if err != nil {
		return failure(sessionID, fmt.Sprintf("build student context: %v", err))
	}

	promptName := o.selectPrompt(ctx, sess, fc)
	formatted, err := o.prompts.Format(promptName, promptArgs(sess, fc, transcript))
	if err != nil {
		return failure(sessionID, fmt.Sprintf("format prompt %s: %v", promptName, err))
	}

	analysis, err := o.analyzer.Analyze(ctx, provider.AnalysisRequest{
		Transcript: transcript,
		System:     formatted.System,
		User:       formatted.User,
	})
	if err != nil {
		res := failure(sessionID, fmt.Sprintf("provider analysis: %v", err))
		var perr *provider.Error
		res.Retryable = errors.As(err, &perr)
		return res
	}

	profile, err := extract.Extract(analysis.RawText)
	if err != nil {
		if o.archiver != nil {
			if aerr := o.archiver.ArchiveRawResponse(ctx, sessionID, analysis.Provider, analysis.RawText); aerr != nil {
				o.log.Error("raw response archive failed", "session_id", sessionID, "error", aerr)
			}
		}
		res := failure(sessionID, fmt.Sprintf("parse provider response: %v", err))
		res.RawResponse = analysis.RawText
		res.Provider = analysis.Provider
		res.CostUSD = analysis.CostUSD
		res.ProcessingTime = analysis.ProcessingTime
		return res
	}

	result := &UpdateResult{
		SessionID:      sessionID,
		Success:        true,
		Provider:       analysis.Provider,
		CostUSD:        analysis.CostUSD,
		ProcessingTime: analysis.ProcessingTime,
	}

	// Profile and memory merges are independent: one failing is
	// recorded but never blocks the other.
	profileDelta := o.buildProfileDelta(profile, &fc.Student)
	if !profileDelta.Empty() {
		if err := o.repo.ApplyProfileDelta(ctx, *sess.StudentID, profileDelta); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("profile merge: %v", err))
		} else {
			result.ProfileUpdated = true
		}
	}

	memoryDelta := buildMemoryDelta(profile)
	if len(memoryDelta.Memories) > 0 || len(memoryDelta.Mastery) > 0 {
		if err := o.repo.ApplyMemoryDelta(ctx, *sess.StudentID, memoryDelta); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("memory merge: %v", err))
		} else {
			result.MemoriesUpdated = true
		}
	}

	if sess.Summary == "" {
		summary := deriveSummary(sess, profile)
		if err := o.repo.SetSessionSummary(ctx, sessionID, summary); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("session summary: %v", err))
		}
	}

	return result
}

func (o *Orchestrator) selectPrompt(ctx context.Context, sess *students.Session, fc *students.StudentContext) string {
	ct := calltype.CallTypeTutoring
	if o.classifier != nil {
		ct = o.classifier.Classify(ctx, fc.Student.Phone, nil).CallType
		if ct == calltype.CallTypeUnknown {
			// Session already has a student attached; trust that over
			// a failed phone lookup.
			ct = calltype.CallTypeTutoring
		}
	}
	short := len(sess.Transcript) < o.shortSession
	return o.prompts.SelectForCallType(ct, sess.Subject, short)
}

func promptArgs(sess *students.Session, fc *students.StudentContext, transcript string) map[string]string {
	name := strings.TrimSpace(fc.Student.FirstName + " " + fc.Student.LastName)
	if name == "" {
		name = "Unknown student"
	}
	return map[string]string{
		"student_name":    name,
		"student_context": renderStudentContext(fc),
		"transcript":      transcript,
		"phone":           fc.Student.Phone,
		"subject":         sess.Subject,
	}
}

// renderStudentContext flattens the profile, memories and mastery map
// into the plain-text block the prompts embed.
func renderStudentContext(fc *students.StudentContext) string {
	var b strings.Builder
	s := fc.Student
	if s.Age != nil {
		fmt.Fprintf(&b, "Age: %d\n", *s.Age)
	}
	if s.Grade != nil {
		fmt.Fprintf(&b, "Grade: %d\n", *s.Grade)
	}
	if len(s.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(s.Interests, ", "))
	}
	if len(s.LearningPreferences) > 0 {
		fmt.Fprintf(&b, "Learning preferences: %s\n", strings.Join(s.LearningPreferences, ", "))
	}
	if len(s.FavoriteSubjects) > 0 {
		fmt.Fprintf(&b, "Favorite subjects: %s\n", strings.Join(s.FavoriteSubjects, ", "))
	}
	if len(s.ChallengingSubjects) > 0 {
		fmt.Fprintf(&b, "Challenging subjects: %s\n", strings.Join(s.ChallengingSubjects, ", "))
	}
	for _, m := range fc.Memories {
		fmt.Fprintf(&b, "Note (%s): %s\n", m.Kind, m.Content)
	}
	for _, entry := range fc.Mastery {
		fmt.Fprintf(&b, "Mastery: %s / %s at %.0f%%\n", entry.Goal, entry.Component, entry.Percent)
	}
	for _, prev := range fc.RecentSessions {
		if prev.Summary != "" {
			fmt.Fprintf(&b, "Previous session: %s\n", prev.Summary)
		}
	}
	if b.Len() == 0 {
		return "Nothing recorded yet."
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildProfileDelta applies the name-merge guard: a genuine stored name
// is never overwritten by a new extraction, only placeholders are.
func (o *Orchestrator) buildProfileDelta(p *extract.Profile, current *students.Student) *students.ProfileDelta {
	delta := &students.ProfileDelta{
		Age:                 p.Age,
		Grade:               p.Grade,
		Interests:           p.Interests,
		LearningPreferences: p.LearningPreferences,
		FavoriteSubjects:    p.FavoriteSubjects,
		ChallengingSubjects: p.ChallengingSubjects,
		Confidence:          p.Confidence,
		Source:              "postsession",
	}
	nameOverwritable := current.FirstName == "" || o.isPlaceholderName(current.FirstName)
	if p.FirstName != nil && nameOverwritable {
		delta.FirstName = p.FirstName
	}
	// Last names follow the first-name guard: an auto-named student
	// takes both, a real name keeps both.
	if p.LastName != nil && (current.LastName == "" || nameOverwritable) {
		delta.LastName = p.LastName
	}
	return delta
}

// buildMemoryDelta turns preference and subject signals into durable
// memories. Mastery upserts come from assessment flows, not from here.
func buildMemoryDelta(p *extract.Profile) *students.MemoryDelta {
	delta := &students.MemoryDelta{}
	for _, pref := range p.LearningPreferences {
		delta.Memories = append(delta.Memories, students.Memory{
			Kind: "preference", Content: pref, Source: "postsession",
		})
	}
	for _, subj := range p.FavoriteSubjects {
		delta.Memories = append(delta.Memories, students.Memory{
			Kind: "strength", Content: subj, Source: "postsession",
		})
	}
	for _, subj := range p.ChallengingSubjects {
		delta.Memories = append(delta.Memories, students.Memory{
			Kind: "challenge", Content: subj, Source: "postsession",
		})
	}
	return delta
}

// deriveSummary computes the session's summary from the transcript and
// what the analysis surfaced.
func deriveSummary(sess *students.Session, p *extract.Profile) string {
	var parts []string
	if sess.Subject != "" {
		parts = append(parts, fmt.Sprintf("%s session", sess.Subject))
	} else {
		parts = append(parts, "Tutoring session")
	}
	if len(p.FavoriteSubjects) > 0 {
		parts = append(parts, "went well with "+strings.Join(p.FavoriteSubjects, ", "))
	}
	if len(p.ChallengingSubjects) > 0 {
		parts = append(parts, "needs work on "+strings.Join(p.ChallengingSubjects, ", "))
	}
	summary := strings.Join(parts, "; ") + "."
	return strings.ToUpper(summary[:1]) + summary[1:]
}

func (o *Orchestrator) observe(r *UpdateResult) {
	switch {
	case r.Skipped:
		o.metrics.ObserveUpdate("skipped")
	case !r.Success:
		o.metrics.ObserveUpdate("failed")
	case len(r.Errors) > 0:
		o.metrics.ObserveUpdate("partial")
	default:
		o.metrics.ObserveUpdate("completed")
	}
}
