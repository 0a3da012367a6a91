package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/cache"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            fmt.Sprintf("q%02d", i),
			Position:      i,
			QuestionText:  fmt.Sprintf("Question %d", i),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: []int{1 + i%4},
		}
	}
	return qs
}

func ids(qs []model.PublicQuestion) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

type questionFixture struct {
	svc   *QuestionService
	forms *fakeFormStore
	cache *cache.MemoryCache[model.QuestionSet]
	clock *fakeClock
}

func newQuestionFixture() *questionFixture {
	clock := newFakeClock()
	forms := newFakeFormStore()
	forms.add("form-a", "course-a", makeQuestions(20)...)

	c := cache.NewMemoryCache[model.QuestionSet](cache.Options{TTL: time.Hour, Capacity: 100}).WithClock(clock.Now)
	svc := NewQuestionService(forms, c, zerolog.Nop())
	svc.rng = rand.New(rand.NewPCG(1, 2))
	return &questionFixture{svc: svc, forms: forms, cache: c, clock: clock}
}

func TestQuestionService_CachesShuffledOrder(t *testing.T) {
	f := newQuestionFixture()
	ctx := context.Background()

	first, err := f.svc.GetQuestions(ctx, "form-a", nil)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Len(t, first.Questions, 20)

	second, err := f.svc.GetQuestions(ctx, "form-a", nil)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, ids(first.Questions), ids(second.Questions))
	assert.Equal(t, 1, f.forms.loadCount())
}

func TestQuestionService_ReshufflesAfterTTLWithSameSet(t *testing.T) {
	f := newQuestionFixture()
	ctx := context.Background()

	first, err := f.svc.GetQuestions(ctx, "form-a", nil)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	second, err := f.svc.GetQuestions(ctx, "form-a", nil)
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.Equal(t, 2, f.forms.loadCount())

	a, b := ids(first.Questions), ids(second.Questions)
	sort.Strings(a)
	sort.Strings(b)
	assert.Equal(t, a, b)
}

func TestQuestionService_ShuffleIsPermutation(t *testing.T) {
	f := newQuestionFixture()

	res, err := f.svc.GetQuestions(context.Background(), "form-a", nil)
	require.NoError(t, err)

	got := ids(res.Questions)
	canonical := make([]string, 20)
	for i := range canonical {
		canonical[i] = fmt.Sprintf("q%02d", i)
	}
	assert.NotEqual(t, canonical, got)

	sort.Strings(got)
	assert.Equal(t, canonical, got)
}

func TestQuestionService_NeverExposesAnswerKey(t *testing.T) {
	f := newQuestionFixture()

	res, err := f.svc.GetQuestions(context.Background(), "form-a", nil)
	require.NoError(t, err)

	for _, q := range res.Questions {
		assert.NotEmpty(t, q.Question)
		assert.Len(t, q.Options, 4)
	}
	// PublicQuestion has no answer field; the type itself is the guarantee.
	assert.IsType(t, []model.PublicQuestion{}, res.Questions)
}

func TestQuestionService_FormResolution(t *testing.T) {
	f := newQuestionFixture()
	ctx := context.Background()

	res, err := f.svc.GetQuestions(ctx, "", &Claims{CourseID: "course-a"})
	require.NoError(t, err)
	assert.Equal(t, "form-a", res.FormID)

	_, err = f.svc.GetQuestions(ctx, "", &Claims{})
	assert.ErrorIs(t, err, apperror.ErrFormIDRequired)

	_, err = f.svc.GetQuestions(ctx, "", &Claims{CourseID: "course-x"})
	assert.ErrorIs(t, err, apperror.ErrFormNotFound)

	_, err = f.svc.GetQuestions(ctx, "form-x", nil)
	assert.ErrorIs(t, err, apperror.ErrFormNotFound)
}

func TestQuestionService_ConcurrentMissesLoadOnce(t *testing.T) {
	f := newQuestionFixture()
	f.forms.loadDelay = 50 * time.Millisecond

	const n = 25
	results := make([][]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.GetQuestions(context.Background(), "form-a", nil)
			if assert.NoError(t, err) {
				results[i] = ids(res.Questions)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.forms.loadCount())
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestQuestionService_Invalidate(t *testing.T) {
	f := newQuestionFixture()
	ctx := context.Background()

	_, err := f.svc.GetQuestions(ctx, "form-a", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.Invalidate(ctx, "form-a"))

	res, err := f.svc.GetQuestions(ctx, "form-a", nil)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
}
