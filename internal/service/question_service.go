package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/cache"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"golang.org/x/sync/singleflight"
)

// QuestionsResult is a sanitized question set ready for delivery.
type QuestionsResult struct {
	FormID    string
	Questions []model.PublicQuestion
	CacheHit  bool
}

// QuestionService delivers shuffled question sets. Each form is shuffled once
// per cache lifetime and that order is shared by every student.
type QuestionService struct {
	forms  FormStore
	cache  cache.Cache[model.QuestionSet]
	flight singleflight.Group
	log    zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(forms FormStore, c cache.Cache[model.QuestionSet], log zerolog.Logger) *QuestionService {
	return &QuestionService{
		forms: forms,
		cache: c,
		log:   log.With().Str("component", "question_service").Logger(),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// GetQuestions returns the question set for formID, or for the form bound to
// the credential's course when formID is empty.
func (s *QuestionService) GetQuestions(ctx context.Context, formID string, claims *Claims) (*QuestionsResult, error) {
	if formID == "" {
		if claims == nil || claims.CourseID == "" {
			return nil, apperror.ErrFormIDRequired
		}
		id, err := s.forms.FormIDForCourse(ctx, claims.CourseID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperror.ErrFormNotFound
			}
			return nil, apperror.FromStore(err)
		}
		formID = id
	}

	key := config.CacheKey.QuestionSetKey(formID)

	set, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("form_id", formID).Msg("Question cache read failed")
	}
	if ok {
		return &QuestionsResult{FormID: formID, Questions: set.Questions, CacheHit: true}, nil
	}

	// Concurrent misses for one form share a single load and shuffle.
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), key, formID)
	})
	if err != nil {
		return nil, err
	}

	set = v.(model.QuestionSet)
	return &QuestionsResult{FormID: formID, Questions: set.Questions}, nil
}

func (s *QuestionService) load(ctx context.Context, key, formID string) (model.QuestionSet, error) {
	questions, err := s.forms.ListPublicQuestions(ctx, formID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.QuestionSet{}, apperror.ErrFormNotFound
		}
		return model.QuestionSet{}, apperror.FromStore(err)
	}

	s.shuffle(questions)
	set := model.QuestionSet{FormID: formID, Questions: questions}

	if err := s.cache.Set(ctx, key, set); err != nil {
		s.log.Warn().Err(err).Str("form_id", formID).Msg("Question cache write failed")
	}

	s.log.Info().Str("form_id", formID).Int("questions", len(questions)).Msg("Question set loaded")
	return set, nil
}

// shuffle applies an in-place Fisher-Yates permutation.
func (s *QuestionService) shuffle(qs []model.PublicQuestion) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	for i := len(qs) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

// Invalidate drops the cached order for formID so the next request reshuffles.
func (s *QuestionService) Invalidate(ctx context.Context, formID string) error {
	return s.cache.Delete(ctx, config.CacheKey.QuestionSetKey(formID))
}
