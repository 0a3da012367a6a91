package service

import (
	"context"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

// The services depend on these narrow views of the repositories so they can
// be exercised against in-memory fakes.

// OTPStore persists passcode records.
type OTPStore interface {
	FindByPhone(ctx context.Context, phone string) (*model.OTPRecord, error)
	Upsert(ctx context.Context, rec *model.OTPRecord) error
	Consume(ctx context.Context, phone string, createdAt time.Time) (bool, error)
	Delete(ctx context.Context, phone string) error
}

// StudentStore persists student records and their session slot.
type StudentStore interface {
	GetByRoll(ctx context.Context, roll string) (*model.Student, error)
	GetByID(ctx context.Context, id int) (*model.Student, error)
	ClaimSession(ctx context.Context, id int, deviceID, phone string, start, expires time.Time) (bool, error)
	RecordSubmission(ctx context.Context, id, marks int, answers map[string]int, at time.Time) (bool, error)
	ReleaseSession(ctx context.Context, id int, deviceID string) error
}

// FormStore reads question sets.
type FormStore interface {
	FormIDForCourse(ctx context.Context, courseID string) (string, error)
	ListPublicQuestions(ctx context.Context, formID string) ([]model.PublicQuestion, error)
	ListQuestionsByCourse(ctx context.Context, courseID string) ([]model.Question, error)
}

// Dispatcher hands a passcode to the delivery channel. Implementations must
// not block the request on the provider.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.OTPDispatch) error
}
