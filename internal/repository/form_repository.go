package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/model"
)

// FormRepository handles question set data access.
type FormRepository struct {
	db *database.Manager
}

// NewFormRepository creates a new FormRepository.
func NewFormRepository(db *database.Manager) *FormRepository {
	return &FormRepository{db: db}
}

// FormIDForCourse resolves the form bound to a course.
func (r *FormRepository) FormIDForCourse(ctx context.Context, courseID string) (string, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return "", err
	}

	var id string
	err = pool.QueryRow(ctx, `SELECT id FROM forms WHERE course_id = $1`, courseID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolve form for course %s: %w", courseID, r.db.Observe(err))
	}
	return id, nil
}

// ListPublicQuestions loads a form's questions in canonical order. The answer
// key column is never selected.
func (r *FormRepository) ListPublicQuestions(ctx context.Context, formID string) ([]model.PublicQuestion, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`SELECT id, question_text, options
		 FROM questions WHERE form_id = $1
		 ORDER BY position`, formID,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions for form %s: %w", formID, r.db.Observe(err))
	}
	defer rows.Close()

	var questions []model.PublicQuestion
	for rows.Next() {
		var q model.PublicQuestion
		if err := rows.Scan(&q.ID, &q.Question, &q.Options); err != nil {
			return nil, fmt.Errorf("scan question for form %s: %w", formID, r.db.Observe(err))
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions for form %s: %w", formID, r.db.Observe(err))
	}
	if len(questions) == 0 {
		return nil, ErrNotFound
	}
	return questions, nil
}

// ListQuestionsByCourse loads the canonical questions, answer key included,
// for the form bound to courseID.
func (r *FormRepository) ListQuestionsByCourse(ctx context.Context, courseID string) ([]model.Question, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`SELECT q.id, q.form_id, q.position, q.question_text, q.options, q.correct_answer
		 FROM questions q
		 JOIN forms f ON f.id = q.form_id
		 WHERE f.course_id = $1
		 ORDER BY q.position`, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answer key for course %s: %w", courseID, r.db.Observe(err))
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.FormID, &q.Position, &q.QuestionText, &q.Options, &q.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("scan answer key for course %s: %w", courseID, r.db.Observe(err))
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list answer key for course %s: %w", courseID, r.db.Observe(err))
	}
	if len(questions) == 0 {
		return nil, ErrNotFound
	}
	return questions, nil
}

// ReplaceForm writes a form and replaces its questions in one transaction.
func (r *FormRepository) ReplaceForm(ctx context.Context, form model.Form, questions []model.Question) error {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", r.db.Observe(err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO forms (id, course_id, title) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET course_id = EXCLUDED.course_id, title = EXCLUDED.title`,
		form.ID, form.CourseID, form.Title,
	); err != nil {
		return fmt.Errorf("upsert form %s: %w", form.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE form_id = $1`, form.ID); err != nil {
		return fmt.Errorf("clear questions for form %s: %w", form.ID, err)
	}

	batch := &pgx.Batch{}
	for i, q := range questions {
		batch.Queue(
			`INSERT INTO questions (id, form_id, position, question_text, options, correct_answer)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, form.ID, i, q.QuestionText, q.Options, q.CorrectAnswer,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions for form %s: %w", form.ID, err)
	}

	return tx.Commit(ctx)
}
