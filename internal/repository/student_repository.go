package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

const studentColumns = `id, name, roll_number, college, branch, university, course_id, phone,
	attempted, marks, answers, session_active, session_start, session_device_id,
	session_expires_at, submitted_at, created_at, updated_at`

// StudentRepository handles student data access.
type StudentRepository struct {
	db *database.Manager
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(db *database.Manager) *StudentRepository {
	return &StudentRepository{db: db}
}

// GetByRoll retrieves a student by roll number.
func (r *StudentRepository) GetByRoll(ctx context.Context, roll string) (*model.Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE roll_number = $1`, roll)
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
}

func (r *StudentRepository) getOne(ctx context.Context, query string, arg any) (*model.Student, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	s, err := scanStudent(pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get student: %w", r.db.Observe(err))
	}
	return s, nil
}

// ClaimSession atomically takes the exam slot for the student. The update only
// applies while the student has not attempted the exam and no unexpired
// session occupies the slot. It reports whether the claim won.
func (r *StudentRepository) ClaimSession(ctx context.Context, id int, deviceID, phone string, start, expires time.Time) (bool, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return false, err
	}

	tag, err := pool.Exec(ctx,
		`UPDATE students
		 SET session_active = TRUE, session_start = $2, session_device_id = $3,
		     session_expires_at = $4, phone = $5, updated_at = $2
		 WHERE id = $1
		   AND attempted = FALSE
		   AND (session_active = FALSE OR session_expires_at IS NULL OR session_expires_at <= $2)`,
		id, start, deviceID, expires, phone,
	)
	if err != nil {
		return false, fmt.Errorf("claim session: %w", r.db.Observe(err))
	}
	return tag.RowsAffected() == 1, nil
}

// RecordSubmission stores the score and answers and latches attempted. It
// reports false when the student had already submitted.
func (r *StudentRepository) RecordSubmission(ctx context.Context, id, marks int, answers map[string]int, at time.Time) (bool, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return false, err
	}

	tag, err := pool.Exec(ctx,
		`UPDATE students
		 SET marks = $2, answers = $3, attempted = TRUE, session_active = FALSE,
		     submitted_at = $4, updated_at = $4
		 WHERE id = $1 AND attempted = FALSE`,
		id, marks, answers, at,
	)
	if err != nil {
		return false, fmt.Errorf("record submission: %w", r.db.Observe(err))
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseSession frees the slot held by deviceID, unless the student has
// already submitted.
func (r *StudentRepository) ReleaseSession(ctx context.Context, id int, deviceID string) error {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx,
		`UPDATE students
		 SET session_active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND attempted = FALSE AND session_device_id = $2`,
		id, deviceID,
	)
	if err != nil {
		return fmt.Errorf("release session: %w", r.db.Observe(err))
	}
	return nil
}

// ReleaseExpiredSessions clears the active flag on sessions whose expiry has
// passed and returns how many were cleared.
func (r *StudentRepository) ReleaseExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := pool.Exec(ctx,
		`UPDATE students SET session_active = FALSE, updated_at = $1
		 WHERE session_active = TRUE AND session_expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("release expired sessions: %w", r.db.Observe(err))
	}
	return tag.RowsAffected(), nil
}

// Upsert inserts or updates a student keyed by roll number. Exam results are
// never touched.
func (r *StudentRepository) Upsert(ctx context.Context, s *model.Student) error {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO students (name, roll_number, college, branch, university, course_id, phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (roll_number) DO UPDATE
		 SET name = EXCLUDED.name, college = EXCLUDED.college, branch = EXCLUDED.branch,
		     university = EXCLUDED.university, course_id = EXCLUDED.course_id,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		s.Name, s.RollNumber, s.College, s.Branch, s.University, s.CourseID, s.Phone,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert student %s: %w", s.RollNumber, r.db.Observe(err))
	}
	return nil
}

func scanStudent(row pgx.Row) (*model.Student, error) {
	s := &model.Student{}
	var deviceID *string
	err := row.Scan(
		&s.ID, &s.Name, &s.RollNumber, &s.College, &s.Branch, &s.University, &s.CourseID, &s.Phone,
		&s.Attempted, &s.Marks, &s.Answers, &s.Session.IsActive, &s.Session.StartTime, &deviceID,
		&s.Session.ExpiresAt, &s.SubmittedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deviceID != nil {
		s.Session.DeviceID = *deviceID
	}
	return s, nil
}
