package examclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
)

// State is the lifecycle stage of an exam session.
type State int

const (
	StateLoading State = iota
	StateReady
	StateSubmitting
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	ErrNotReady         = errors.New("exam is not ready")
	ErrInvalidOption    = errors.New("option is out of range for this question")
	ErrInvalidQuestion  = errors.New("question index is out of range")
)

// ExamAPI is the part of the portal API a Session needs.
type ExamAPI interface {
	Questions(ctx context.Context, formID string) (*QuestionsResponse, error)
	Submit(ctx context.Context, answers map[string]int) (*SubmitResponse, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// StateKey is the storage key of this student's exam state.
	StateKey string
	FormID   string
	// Duration is the full exam length.
	Duration time.Duration
	// ExpiresAt is the server session expiry. Zero means unknown.
	ExpiresAt time.Time
	// ExpiryMargin ends the countdown this long before ExpiresAt so the
	// automatic submit reaches the portal while the credential is valid.
	ExpiryMargin   time.Duration
	FlushInterval  time.Duration
	SubmitAttempts int
}

// DefaultSessionConfig returns the standard timings for stateKey.
func DefaultSessionConfig(stateKey string) SessionConfig {
	return SessionConfig{
		StateKey:       stateKey,
		Duration:       5 * time.Hour,
		ExpiryMargin:   30 * time.Second,
		FlushInterval:  500 * time.Millisecond,
		SubmitAttempts: 3,
	}
}

// examState is the persisted part of a session.
type examState struct {
	FormID      string                 `json:"formId"`
	Questions   []model.PublicQuestion `json:"questions"`
	Answers     map[string]int         `json:"answers"`
	Current     int                    `json:"current"`
	RemainingMS int64                  `json:"remainingMs"`
}

// Snapshot is a point-in-time view of a session for rendering.
type Snapshot struct {
	State     State
	Current   int
	Total     int
	Answered  int
	Remaining time.Duration
	Question  *model.PublicQuestion
	Selected  int
	Err       error
}

// Session drives one exam attempt on the client: countdown, answers,
// navigation and submission. All state is owned by the Session and written
// to Storage when dirty, every FlushInterval and on Close.
type Session struct {
	api   ExamAPI
	store Storage
	cfg   SessionConfig
	log   zerolog.Logger
	now   func() time.Time

	mu         sync.Mutex
	state      State
	exam       examState
	remaining  time.Duration
	lastTick   time.Time
	dirty      bool
	submitting bool
	result     *SubmitResponse
	lastErr    error
	done       chan struct{}
	doneOnce   sync.Once
}

// NewSession creates a session in the Loading state.
func NewSession(api ExamAPI, store Storage, cfg SessionConfig, log zerolog.Logger) *Session {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.SubmitAttempts < 1 {
		cfg.SubmitAttempts = 1
	}
	return &Session{
		api:   api,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "exam_session").Logger(),
		now:   time.Now,
		state: StateLoading,
		done:  make(chan struct{}),
	}
}

// Start restores a persisted exam or fetches a fresh one, then enters Ready.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLoading {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.mu.Unlock()

	var saved examState
	restored, err := loadJSON(ctx, s.store, s.cfg.StateKey, &saved)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not read saved exam state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if restored && len(saved.Questions) > 0 {
		s.exam = saved
		s.remaining = time.Duration(saved.RemainingMS) * time.Millisecond
		s.log.Info().Int("answered", len(saved.Answers)).Dur("remaining", s.remaining).Msg("Exam restored")
	} else {
		s.mu.Unlock()
		res, err := s.api.Questions(ctx, s.cfg.FormID)
		s.mu.Lock()
		if err != nil {
			if IsUnauthorized(err) {
				s.fail(err)
			}
			return err
		}
		s.exam = examState{
			FormID:    res.FormID,
			Questions: res.Questions,
			Answers:   make(map[string]int),
		}
		s.remaining = s.cfg.Duration
		now = s.now()
	}

	if s.exam.Answers == nil {
		s.exam.Answers = make(map[string]int)
	}
	if deadline, ok := s.deadline(); ok {
		if left := deadline.Sub(now); left < s.remaining {
			s.remaining = max(left, 0)
		}
	}
	s.exam.Current = clamp(s.exam.Current, 0, len(s.exam.Questions)-1)
	s.lastTick = now
	s.state = StateReady
	s.dirty = true
	return s.flushLocked(ctx)
}

// Run ticks the countdown and flushes dirty state until ctx is done or the
// session reaches a terminal state. Reaching zero submits exactly as a
// user submit would.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	flush := time.NewTicker(s.cfg.FlushInterval)
	defer flush.Stop()
	defer s.Close(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-flush.C:
			s.Flush(ctx)
		case <-ticker.C:
			if s.tick(s.now()) {
				s.submitAsync(ctx)
			}
		}
	}
}

// tick advances the countdown to now and reports whether time ran out.
func (s *Session) tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return false
	}
	if elapsed := now.Sub(s.lastTick); elapsed > 0 {
		s.remaining -= elapsed
		s.dirty = true
	}
	s.lastTick = now
	if s.remaining <= 0 {
		s.remaining = 0
		return true
	}
	return false
}

func (s *Session) submitAsync(ctx context.Context) {
	go func() {
		_, err := s.Submit(ctx)
		if err != nil && !errors.Is(err, ErrSubmitInProgress) && !errors.Is(err, ErrNotReady) {
			s.log.Warn().Err(err).Msg("Automatic submission failed")
		}
	}()
}

// deadline is the moment the countdown must reach zero.
func (s *Session) deadline() (time.Time, bool) {
	if s.cfg.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return s.cfg.ExpiresAt.Add(-s.cfg.ExpiryMargin), true
}

// CheckStale forces submission when the countdown deadline has passed, for
// example after the process was suspended. It reports whether it did.
func (s *Session) CheckStale(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	deadline, ok := s.deadline()
	stale := s.state == StateReady && ok && !now.Before(deadline)
	if stale {
		s.remaining = 0
		s.dirty = true
	}
	s.mu.Unlock()

	if stale {
		s.submitAsync(ctx)
	}
	return stale
}

// Select records option (1-based) for the current question and moves to
// the next unanswered question after it, else the next one, clamped at the
// last question. Answers are frozen once the countdown reaches zero.
func (s *Session) Select(option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || len(s.exam.Questions) == 0 || s.remaining <= 0 {
		return ErrNotReady
	}

	q := s.exam.Questions[s.exam.Current]
	if option < 1 || option > len(q.Options) {
		return ErrInvalidOption
	}
	s.exam.Answers[q.ID] = option
	s.exam.Current = s.nextAfter(s.exam.Current)
	s.dirty = true
	return nil
}

func (s *Session) nextAfter(i int) int {
	for j := i + 1; j < len(s.exam.Questions); j++ {
		if _, answered := s.exam.Answers[s.exam.Questions[j].ID]; !answered {
			return j
		}
	}
	return min(i+1, len(s.exam.Questions)-1)
}

// Next moves to the following question.
func (s *Session) Next() error { return s.move(func(i int) int { return i + 1 }) }

// Prev moves to the preceding question.
func (s *Session) Prev() error { return s.move(func(i int) int { return i - 1 }) }

// Jump moves directly to question i (0-based).
func (s *Session) Jump(i int) error {
	s.mu.Lock()
	n := len(s.exam.Questions)
	s.mu.Unlock()
	if i < 0 || i >= n {
		return ErrInvalidQuestion
	}
	return s.move(func(int) int { return i })
}

func (s *Session) move(to func(int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || len(s.exam.Questions) == 0 {
		return ErrNotReady
	}
	next := clamp(to(s.exam.Current), 0, len(s.exam.Questions)-1)
	if next != s.exam.Current {
		s.exam.Current = next
		s.dirty = true
	}
	return nil
}

// Submit sends the answer map. Concurrent calls get ErrSubmitInProgress.
// Success clears the saved exam and completes the session. A rejected
// attempt is terminal and clears it too. An auth failure is terminal but
// keeps the saved answers so a fresh sign-in can submit them. Any other
// failure after the configured attempts returns the session to Ready.
func (s *Session) Submit(ctx context.Context) (*SubmitResponse, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.submitting = true
	s.state = StateSubmitting
	answers := make(map[string]int, len(s.exam.Answers))
	for k, v := range s.exam.Answers {
		answers[k] = v
	}
	s.mu.Unlock()

	var (
		res *SubmitResponse
		err error
	)
	for attempt := 1; attempt <= s.cfg.SubmitAttempts; attempt++ {
		res, err = s.api.Submit(ctx, answers)
		if err == nil || terminal(err) || ctx.Err() != nil {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("Submission attempt failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false

	switch {
	case err == nil:
		s.result = res
		s.state = StateCompleted
		s.clearLocked(ctx)
		s.finish()
		return res, nil
	case IsAPICode(err, "ALREADY_ATTEMPTED"):
		s.clearLocked(ctx)
		s.fail(err)
		return nil, err
	case IsUnauthorized(err):
		s.dirty = true
		if ferr := s.flushLocked(ctx); ferr != nil {
			s.log.Warn().Err(ferr).Msg("Saving exam state failed")
		}
		s.fail(err)
		return nil, err
	default:
		s.state = StateReady
		s.lastTick = s.now()
		s.lastErr = err
		return nil, err
	}
}

func terminal(err error) bool {
	return IsAPICode(err, "ALREADY_ATTEMPTED") || IsUnauthorized(err)
}

// Flush writes the state if it changed since the last write.
func (s *Session) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Saving exam state failed")
	}
}

func (s *Session) flushLocked(ctx context.Context) error {
	if !s.dirty || (s.state != StateReady && s.state != StateSubmitting) {
		return nil
	}
	s.exam.RemainingMS = s.remaining.Milliseconds()
	if err := saveJSON(ctx, s.store, s.cfg.StateKey, s.exam); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *Session) clearLocked(ctx context.Context) {
	s.dirty = false
	if err := s.store.Delete(ctx, s.cfg.StateKey); err != nil {
		s.log.Warn().Err(err).Msg("Clearing exam state failed")
	}
}

func (s *Session) fail(err error) {
	s.state = StateError
	s.lastErr = err
	s.finish()
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Close writes any pending state.
func (s *Session) Close(ctx context.Context) {
	s.Flush(ctx)
}

// Done is closed once the session is Completed or in Error.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the submission acknowledgement once Completed.
func (s *Session) Result() *SubmitResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:     s.state,
		Current:   s.exam.Current,
		Total:     len(s.exam.Questions),
		Answered:  len(s.exam.Answers),
		Remaining: s.remaining,
		Err:       s.lastErr,
	}
	if snap.Total > 0 {
		q := s.exam.Questions[s.exam.Current]
		snap.Question = &q
		snap.Selected = s.exam.Answers[q.ID]
	}
	return snap
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
