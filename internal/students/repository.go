package students

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository is the persistence collaborator the post-session pipeline
// reads from and writes to. Implementations own the schema; the pipeline
// treats every call as a black box that may fail.
type Repository interface {
	GetSession(ctx context.Context, id int64) (*Session, error)
	GetStudentFullContext(ctx context.Context, studentID int64) (*StudentContext, error)
	ApplyProfileDelta(ctx context.Context, studentID int64, delta *ProfileDelta) error
	ApplyMemoryDelta(ctx context.Context, studentID int64, delta *MemoryDelta) error
	SetSessionSummary(ctx context.Context, id int64, summary string) error
}

// Directory lists active students for phone-keyed lookup. Kept separate
// from Repository so the classifier can run against a read-only store.
type Directory interface {
	ListActive(ctx context.Context) ([]Summary, error)
}

// InMemoryRepository is a Repository and Directory backed by maps,
// used in tests and the memory-queue development mode.
type InMemoryRepository struct {
	mu         sync.RWMutex
	students   map[int64]*Student
	sessions   map[int64]*Session
	memories   map[int64][]Memory
	mastery    map[int64]map[string]MasteryEntry
	nextMemory int64
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		students:   make(map[int64]*Student),
		sessions:   make(map[int64]*Session),
		memories:   make(map[int64][]Memory),
		mastery:    make(map[int64]map[string]MasteryEntry),
		nextMemory: 1,
	}
}

// PutStudent inserts or replaces a student record.
func (r *InMemoryRepository) PutStudent(s *Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	if cp.Interests == nil {
		cp.Interests = []string{}
	}
	r.students[cp.ID] = &cp
}

// PutSession inserts or replaces a session record.
func (r *InMemoryRepository) PutSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[cp.ID] = &cp
}

// GetSession retrieves a session by id.
func (r *InMemoryRepository) GetSession(ctx context.Context, id int64) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// GetStudent retrieves a student by id.
func (r *InMemoryRepository) GetStudent(ctx context.Context, id int64) (*Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	cp := *s
	return &cp, nil
}

// GetStudentFullContext assembles profile, memories, recent sessions and
// mastery for prompt building.
func (r *InMemoryRepository) GetStudentFullContext(ctx context.Context, studentID int64) (*StudentContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.students[studentID]
	if !ok {
		return nil, ErrStudentNotFound
	}

	fc := &StudentContext{Student: *s}
	fc.Memories = append(fc.Memories, r.memories[studentID]...)
	for _, sess := range r.sessions {
		if sess.StudentID != nil && *sess.StudentID == studentID {
			fc.RecentSessions = append(fc.RecentSessions, *sess)
		}
	}
	sort.Slice(fc.RecentSessions, func(i, j int) bool {
		return fc.RecentSessions[i].StartedAt.After(fc.RecentSessions[j].StartedAt)
	})
	if len(fc.RecentSessions) > 5 {
		fc.RecentSessions = fc.RecentSessions[:5]
	}
	for _, entry := range r.mastery[studentID] {
		fc.Mastery = append(fc.Mastery, entry)
	}
	sort.Slice(fc.Mastery, func(i, j int) bool {
		if fc.Mastery[i].Goal != fc.Mastery[j].Goal {
			return fc.Mastery[i].Goal < fc.Mastery[j].Goal
		}
		return fc.Mastery[i].Component < fc.Mastery[j].Component
	})
	return fc, nil
}

// ApplyProfileDelta merges a delta into the stored profile. Fields are
// replaced, never incremented, so reapplying the same delta is a no-op.
func (r *InMemoryRepository) ApplyProfileDelta(ctx context.Context, studentID int64, delta *ProfileDelta) error {
	if delta == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.students[studentID]
	if !ok {
		return ErrStudentNotFound
	}
	if delta.FirstName != nil {
		s.FirstName = *delta.FirstName
	}
	if delta.LastName != nil {
		s.LastName = *delta.LastName
	}
	if delta.Age != nil {
		age := *delta.Age
		s.Age = &age
	}
	if delta.Grade != nil {
		grade := *delta.Grade
		s.Grade = &grade
	}
	if len(delta.Interests) > 0 {
		s.Interests = append([]string(nil), delta.Interests...)
	}
	if len(delta.LearningPreferences) > 0 {
		s.LearningPreferences = append([]string(nil), delta.LearningPreferences...)
	}
	if len(delta.FavoriteSubjects) > 0 {
		s.FavoriteSubjects = append([]string(nil), delta.FavoriteSubjects...)
	}
	if len(delta.ChallengingSubjects) > 0 {
		s.ChallengingSubjects = append([]string(nil), delta.ChallengingSubjects...)
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyMemoryDelta appends new memories (deduplicated by content) and
// upserts mastery entries with the latest authoritative percent.
func (r *InMemoryRepository) ApplyMemoryDelta(ctx context.Context, studentID int64, delta *MemoryDelta) error {
	if delta == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.students[studentID]; !ok {
		return ErrStudentNotFound
	}

	existing := make(map[string]bool, len(r.memories[studentID]))
	for _, m := range r.memories[studentID] {
		existing[memoryKey(m)] = true
	}
	for _, m := range delta.Memories {
		m.StudentID = studentID
		if existing[memoryKey(m)] {
			continue
		}
		m.ID = r.nextMemory
		r.nextMemory++
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		r.memories[studentID] = append(r.memories[studentID], m)
		existing[memoryKey(m)] = true
	}

	if len(delta.Mastery) > 0 {
		if r.mastery[studentID] == nil {
			r.mastery[studentID] = make(map[string]MasteryEntry)
		}
		for _, up := range delta.Mastery {
			key := up.Goal + "\x00" + up.Component
			r.mastery[studentID][key] = MasteryEntry{
				StudentID: studentID,
				Goal:      up.Goal,
				Component: up.Component,
				Percent:   up.Percent,
				UpdatedAt: time.Now().UTC(),
			}
		}
	}
	return nil
}

// SetSessionSummary stores the derived summary for a session.
func (r *InMemoryRepository) SetSessionSummary(ctx context.Context, id int64, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Summary = summary
	return nil
}

// ListActive returns a thin view of every stored student.
func (r *InMemoryRepository) ListActive(ctx context.Context) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.students))
	for _, s := range r.students {
		out = append(out, Summary{
			ID:           s.ID,
			FirstName:    s.FirstName,
			Phone:        s.Phone,
			SessionCount: s.SessionCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func memoryKey(m Memory) string {
	return fmt.Sprintf("%s|%s", strings.ToLower(m.Kind), strings.ToLower(strings.TrimSpace(m.Content)))
}
