package service

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/ratelimit"
	"github.com/stemsi/exstem-portal/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeOTPStore mimics otp_codes: one row per phone.
type fakeOTPStore struct {
	mu         sync.Mutex
	records    map[string]model.OTPRecord
	findErr    error
	consumeErr error
	deletes    int
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{records: make(map[string]model.OTPRecord)}
}

func (f *fakeOTPStore) FindByPhone(_ context.Context, phone string) (*model.OTPRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	rec, ok := f.records[phone]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeOTPStore) Upsert(_ context.Context, rec *model.OTPRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.Phone] = *rec
	return nil
}

func (f *fakeOTPStore) Consume(_ context.Context, phone string, createdAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return false, f.consumeErr
	}
	rec, ok := f.records[phone]
	if !ok || !rec.CreatedAt.Equal(createdAt) {
		return false, nil
	}
	delete(f.records, phone)
	return true, nil
}

func (f *fakeOTPStore) Delete(_ context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.records, phone)
	return nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []model.OTPDispatch
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg model.OTPDispatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return d.err
}

func (d *fakeDispatcher) last() model.OTPDispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (ratelimit.Info, error) {
	return ratelimit.Info{Allowed: true}, nil
}

// fakeStudentStore applies the same conditions as the SQL updates.
type fakeStudentStore struct {
	mu       sync.Mutex
	students map[int]*model.Student
	getErr   error
	// beforeClaim runs inside ClaimSession before the condition is checked,
	// letting tests simulate a concurrent writer.
	beforeClaim func(st *model.Student)
}

func newFakeStudentStore(students ...*model.Student) *fakeStudentStore {
	f := &fakeStudentStore{students: make(map[int]*model.Student)}
	for _, s := range students {
		f.students[s.ID] = s
	}
	return f
}

func (f *fakeStudentStore) GetByRoll(_ context.Context, roll string) (*model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, s := range f.students {
		if s.RollNumber == roll {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStudentStore) GetByID(_ context.Context, id int) (*model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStudentStore) ClaimSession(_ context.Context, id int, deviceID, phone string, start, expires time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return false, nil
	}
	if f.beforeClaim != nil {
		f.beforeClaim(s)
	}
	if s.Attempted || s.Session.OccupiedAt(start) {
		return false, nil
	}
	s.Session = model.SessionData{IsActive: true, StartTime: &start, DeviceID: deviceID, ExpiresAt: &expires}
	s.Phone = phone
	return true, nil
}

func (f *fakeStudentStore) RecordSubmission(_ context.Context, id, marks int, answers map[string]int, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok || s.Attempted {
		return false, nil
	}
	s.Marks = marks
	s.Answers = answers
	s.Attempted = true
	s.Session.IsActive = false
	s.SubmittedAt = &at
	return true, nil
}

func (f *fakeStudentStore) ReleaseSession(_ context.Context, id int, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.students[id]; ok && !s.Attempted && s.Session.DeviceID == deviceID {
		s.Session.IsActive = false
	}
	return nil
}

func (f *fakeStudentStore) get(id int) model.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.students[id]
}

type fakeFormStore struct {
	mu        sync.Mutex
	courses   map[string]string // course id -> form id
	questions map[string][]model.Question
	loads     int
	loadDelay time.Duration
	err       error
}

func newFakeFormStore() *fakeFormStore {
	return &fakeFormStore{courses: map[string]string{}, questions: map[string][]model.Question{}}
}

func (f *fakeFormStore) add(formID, courseID string, qs ...model.Question) {
	f.courses[courseID] = formID
	f.questions[formID] = qs
}

func (f *fakeFormStore) FormIDForCourse(_ context.Context, courseID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.courses[courseID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return id, nil
}

func (f *fakeFormStore) ListPublicQuestions(_ context.Context, formID string) ([]model.PublicQuestion, error) {
	f.mu.Lock()
	f.loads++
	delay, err := f.loadDelay, f.err
	qs, ok := f.questions[formID]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := make([]model.PublicQuestion, len(qs))
	for i := range qs {
		out[i] = qs[i].Public()
	}
	return out, nil
}

func (f *fakeFormStore) ListQuestionsByCourse(_ context.Context, courseID string) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	qs, ok := f.questions[f.courses[courseID]]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append([]model.Question(nil), qs...), nil
}

func (f *fakeFormStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}
