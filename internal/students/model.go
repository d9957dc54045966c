package students

import "time"

// Student is the persistent record the post-session pipeline patches.
// It is owned by the persistence layer; the pipeline only applies deltas.
type Student struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone"`
	Age          *int      `json:"age,omitempty"`
	Grade        *int      `json:"grade,omitempty"`
	Interests    []string  `json:"interests"`

	LearningPreferences []string `json:"learning_preferences"`
	FavoriteSubjects    []string `json:"favorite_subjects"`
	ChallengingSubjects []string `json:"challenging_subjects"`

	SessionCount int       `json:"session_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is one tutoring phone call.
type Session struct {
	ID         int64      `json:"id"`
	StudentID  *int64     `json:"student_id,omitempty"`
	Transcript string     `json:"transcript"`
	Subject    string     `json:"subject,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Memory is a durable fact the tutor has learned about a student.
type Memory struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Kind      string    `json:"kind"` // "interest", "preference", "fact"
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MasteryEntry is one row of the curriculum-mastery map: the latest
// authoritative proficiency for a (goal, knowledge component) pair.
type MasteryEntry struct {
	StudentID int64     `json:"student_id"`
	Goal      string    `json:"goal"`
	Component string    `json:"component"`
	Percent   float64   `json:"percent"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StudentContext is the full picture handed to the prompt builder:
// current profile, accumulated memories, recent sessions, mastery map.
type StudentContext struct {
	Student        Student        `json:"student"`
	Memories       []Memory       `json:"memories"`
	RecentSessions []Session      `json:"recent_sessions"`
	Mastery        []MasteryEntry `json:"mastery"`
}

// ProfileDelta is the subset of extracted fields merged into the profile.
// Nil pointers mean "no change"; list fields replace, never append, so
// re-applying the same delta is idempotent.
type ProfileDelta struct {
	FirstName           *string  `json:"first_name,omitempty"`
	LastName            *string  `json:"last_name,omitempty"`
	Age                 *int     `json:"age,omitempty"`
	Grade               *int     `json:"grade,omitempty"`
	Interests           []string `json:"interests,omitempty"`
	LearningPreferences []string `json:"learning_preferences,omitempty"`
	FavoriteSubjects    []string `json:"favorite_subjects,omitempty"`
	ChallengingSubjects []string `json:"challenging_subjects,omitempty"`
	Confidence          float64  `json:"confidence"`
	Source              string   `json:"source,omitempty"`
}

// Empty reports whether the delta carries no change at all.
func (d *ProfileDelta) Empty() bool {
	if d == nil {
		return true
	}
	return d.FirstName == nil && d.LastName == nil && d.Age == nil && d.Grade == nil &&
		len(d.Interests) == 0 && len(d.LearningPreferences) == 0 &&
		len(d.FavoriteSubjects) == 0 && len(d.ChallengingSubjects) == 0
}

// MemoryDelta carries new memories plus mastery upserts from one analysis.
type MemoryDelta struct {
	Memories []Memory        `json:"memories,omitempty"`
	Mastery  []MasteryUpsert `json:"mastery,omitempty"`
}

// MasteryUpsert replaces the stored percent for (goal, component): each
// call is the latest authoritative value, not an increment.
type MasteryUpsert struct {
	Goal      string  `json:"goal"`
	Component string  `json:"component"`
	Percent   float64 `json:"percent"`
}

// Summary is the thin view of a student used for phone-keyed lookup.
type Summary struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	Phone        string `json:"phone"`
	SessionCount int    `json:"session_count"`
}
