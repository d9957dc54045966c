package students

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pgxDB is the subset of pgxpool.Pool the repository uses, narrowed so
// tests can substitute pgxmock.
type pgxDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores students, sessions, memories and mastery in
// the relational database.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("students: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// GetSession fetches one session row.
func (r *PostgresRepository) GetSession(ctx context.Context, id int64) (*Session, error) {
	query := `
		SELECT id, student_id, transcript, subject, summary, started_at, ended_at
		FROM sessions
		WHERE id = $1
	`
	row := r.db.QueryRow(ctx, query, id)
	var s Session
	if err := row.Scan(&s.ID, &s.StudentID, &s.Transcript, &s.Subject, &s.Summary, &s.StartedAt, &s.EndedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("students: select session failed: %w", err)
	}
	return &s, nil
}

// GetStudentFullContext loads the student row plus memories, the five most
// recent sessions, and the mastery map.
func (r *PostgresRepository) GetStudentFullContext(ctx context.Context, studentID int64) (*StudentContext, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, first_name, last_name, phone, age, grade, interests,
		       learning_preferences, favorite_subjects, challenging_subjects,
		       session_count, created_at, updated_at
		FROM students
		WHERE id = $1
	`, studentID)

	var s Student
	if err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Phone, &s.Age, &s.Grade, &s.Interests,
		&s.LearningPreferences, &s.FavoriteSubjects, &s.ChallengingSubjects,
		&s.SessionCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("students: select student failed: %w", err)
	}
	for _, list := range []*[]string{&s.Interests, &s.LearningPreferences, &s.FavoriteSubjects, &s.ChallengingSubjects} {
		if *list == nil {
			*list = []string{}
		}
	}
	fc := &StudentContext{Student: s}

	memRows, err := r.db.Query(ctx, `
		SELECT id, student_id, kind, content, source, created_at
		FROM student_memories
		WHERE student_id = $1
		ORDER BY created_at
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("students: select memories failed: %w", err)
	}
	defer memRows.Close()
	for memRows.Next() {
		var m Memory
		if err := memRows.Scan(&m.ID, &m.StudentID, &m.Kind, &m.Content, &m.Source, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("students: scan memory failed: %w", err)
		}
		fc.Memories = append(fc.Memories, m)
	}
	if err := memRows.Err(); err != nil {
		return nil, fmt.Errorf("students: memories rows failed: %w", err)
	}

	sessRows, err := r.db.Query(ctx, `
		SELECT id, student_id, transcript, subject, summary, started_at, ended_at
		FROM sessions
		WHERE student_id = $1
		ORDER BY started_at DESC
		LIMIT 5
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("students: select sessions failed: %w", err)
	}
	defer sessRows.Close()
	for sessRows.Next() {
		var sess Session
		if err := sessRows.Scan(&sess.ID, &sess.StudentID, &sess.Transcript, &sess.Subject, &sess.Summary, &sess.StartedAt, &sess.EndedAt); err != nil {
			return nil, fmt.Errorf("students: scan session failed: %w", err)
		}
		fc.RecentSessions = append(fc.RecentSessions, sess)
	}
	if err := sessRows.Err(); err != nil {
		return nil, fmt.Errorf("students: sessions rows failed: %w", err)
	}

	masteryRows, err := r.db.Query(ctx, `
		SELECT student_id, goal, component, percent, updated_at
		FROM mastery
		WHERE student_id = $1
		ORDER BY goal, component
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("students: select mastery failed: %w", err)
	}
	defer masteryRows.Close()
	for masteryRows.Next() {
		var entry MasteryEntry
		if err := masteryRows.Scan(&entry.StudentID, &entry.Goal, &entry.Component, &entry.Percent, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("students: scan mastery failed: %w", err)
		}
		fc.Mastery = append(fc.Mastery, entry)
	}
	if err := masteryRows.Err(); err != nil {
		return nil, fmt.Errorf("students: mastery rows failed: %w", err)
	}

	return fc, nil
}

// ApplyProfileDelta patches the student row. Replacement semantics keep
// the merge idempotent under duplicate dispatch.
func (r *PostgresRepository) ApplyProfileDelta(ctx context.Context, studentID int64, delta *ProfileDelta) error {
	if delta == nil || delta.Empty() {
		return nil
	}
	query := `
		UPDATE students SET
			first_name = COALESCE($2, first_name),
			last_name  = COALESCE($3, last_name),
			age        = COALESCE($4, age),
			grade      = COALESCE($5, grade),
			interests             = CASE WHEN $6::text[] IS NULL THEN interests ELSE $6 END,
			learning_preferences  = CASE WHEN $7::text[] IS NULL THEN learning_preferences ELSE $7 END,
			favorite_subjects     = CASE WHEN $8::text[] IS NULL THEN favorite_subjects ELSE $8 END,
			challenging_subjects  = CASE WHEN $9::text[] IS NULL THEN challenging_subjects ELSE $9 END,
			updated_at = now()
		WHERE id = $1
		RETURNING id
	`
	nonEmpty := func(v []string) []string {
		if len(v) == 0 {
			return nil
		}
		return v
	}
	var id int64
	if err := r.db.QueryRow(ctx, query, studentID, delta.FirstName, delta.LastName, delta.Age, delta.Grade,
		nonEmpty(delta.Interests), nonEmpty(delta.LearningPreferences),
		nonEmpty(delta.FavoriteSubjects), nonEmpty(delta.ChallengingSubjects)).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("students: profile update failed: %w", err)
	}
	return nil
}

// ApplyMemoryDelta inserts memories (skipping duplicates) and upserts
// mastery rows with the latest authoritative percent.
func (r *PostgresRepository) ApplyMemoryDelta(ctx context.Context, studentID int64, delta *MemoryDelta) error {
	if delta == nil {
		return nil
	}
	for _, m := range delta.Memories {
		var id int64
		err := r.db.QueryRow(ctx, `
			INSERT INTO student_memories (student_id, kind, content, source)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (student_id, kind, content) DO UPDATE SET source = EXCLUDED.source
			RETURNING id
		`, studentID, m.Kind, m.Content, m.Source).Scan(&id)
		if err != nil {
			return fmt.Errorf("students: memory insert failed: %w", err)
		}
	}
	for _, up := range delta.Mastery {
		var id int64
		err := r.db.QueryRow(ctx, `
			INSERT INTO mastery (student_id, goal, component, percent, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (student_id, goal, component)
			DO UPDATE SET percent = EXCLUDED.percent, updated_at = now()
			RETURNING student_id
		`, studentID, up.Goal, up.Component, up.Percent).Scan(&id)
		if err != nil {
			return fmt.Errorf("students: mastery upsert failed: %w", err)
		}
	}
	return nil
}

// SetSessionSummary stores the derived summary text.
func (r *PostgresRepository) SetSessionSummary(ctx context.Context, id int64, summary string) error {
	var got int64
	err := r.db.QueryRow(ctx, `
		UPDATE sessions SET summary = $2 WHERE id = $1 RETURNING id
	`, id, summary).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("students: session summary update failed: %w", err)
	}
	return nil
}

// ListActive returns the thin student view used for phone lookup.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, first_name, phone, session_count
		FROM students
		WHERE archived_at IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("students: list active failed: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.FirstName, &s.Phone, &s.SessionCount); err != nil {
			return nil, fmt.Errorf("students: scan summary failed: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("students: list rows failed: %w", err)
	}
	return out, nil
}
