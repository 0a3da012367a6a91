package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_HTTPStatus(t *testing.T) {
	cases := map[*Error]int{
		ErrInvalidPhone:     http.StatusBadRequest,
		ErrTokenInvalid:     http.StatusUnauthorized,
		ErrAlreadyAttempted: http.StatusBadRequest,
		ErrSessionConflict:  http.StatusConflict,
		ErrFormNotFound:     http.StatusNotFound,
		ErrResendTooSoon:    http.StatusTooManyRequests,
		ErrStoreUnavailable: http.StatusServiceUnavailable,
		Unexpected(nil):     http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, err.HTTPStatus(), err.Code)
	}
}

func TestError_IsMatchesCopies(t *testing.T) {
	wrapped := fmt.Errorf("claim: %w", ErrSessionConflict.WithMessage("active on device %s", "abc"))

	assert.True(t, errors.Is(wrapped, ErrSessionConflict))
	assert.False(t, errors.Is(wrapped, ErrAlreadyAttempted))
	assert.Equal(t, "active on device abc", As(wrapped).Message)
}

func TestAs_WrapsForeignErrors(t *testing.T) {
	got := As(errors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, KindUnexpected, got.Kind)
	assert.Nil(t, As(nil))
}

func TestFromStore(t *testing.T) {
	t.Run("deadline is transient", func(t *testing.T) {
		err := FromStore(fmt.Errorf("query: %w", context.DeadlineExceeded))
		assert.Equal(t, KindTransientStore, KindOf(err))
	})

	t.Run("connection exception class is transient", func(t *testing.T) {
		err := FromStore(&pgconn.PgError{Code: "08006", Message: "connection failure"})
		assert.Equal(t, KindTransientStore, KindOf(err))
	})

	t.Run("message inspection", func(t *testing.T) {
		err := FromStore(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
		assert.Equal(t, KindTransientStore, KindOf(err))
	})

	t.Run("constraint violation is unexpected", func(t *testing.T) {
		err := FromStore(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
		assert.Equal(t, KindUnexpected, KindOf(err))
	})

	t.Run("application errors pass through", func(t *testing.T) {
		err := FromStore(ErrFormNotFound)
		assert.ErrorIs(t, err, ErrFormNotFound)
	})
}
