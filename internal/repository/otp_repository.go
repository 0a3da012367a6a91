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

// OTPRepository handles passcode record access. There is at most one record
// per phone.
type OTPRepository struct {
	db *database.Manager
}

// NewOTPRepository creates a new OTPRepository.
func NewOTPRepository(db *database.Manager) *OTPRepository {
	return &OTPRepository{db: db}
}

// FindByPhone returns the live record for phone.
func (r *OTPRepository) FindByPhone(ctx context.Context, phone string) (*model.OTPRecord, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	rec := &model.OTPRecord{}
	err = pool.QueryRow(ctx,
		`SELECT phone, country_code, code_hash, created_at FROM otp_codes WHERE phone = $1`, phone,
	).Scan(&rec.Phone, &rec.CountryCode, &rec.CodeHash, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find otp: %w", r.db.Observe(err))
	}
	return rec, nil
}

// Upsert writes rec, replacing any previous code for the phone.
func (r *OTPRepository) Upsert(ctx context.Context, rec *model.OTPRecord) error {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO otp_codes (phone, country_code, code_hash, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (phone) DO UPDATE
		 SET country_code = EXCLUDED.country_code, code_hash = EXCLUDED.code_hash,
		     created_at = EXCLUDED.created_at`,
		rec.Phone, rec.CountryCode, rec.CodeHash, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert otp: %w", r.db.Observe(err))
	}
	return nil
}

// Consume deletes the record only if it is still the one identified by
// createdAt. It reports false when a concurrent request consumed it first or
// a newer code replaced it.
func (r *OTPRepository) Consume(ctx context.Context, phone string, createdAt time.Time) (bool, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return false, err
	}

	tag, err := pool.Exec(ctx,
		`DELETE FROM otp_codes WHERE phone = $1 AND created_at = $2`, phone, createdAt)
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", r.db.Observe(err))
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the record for phone.
func (r *OTPRepository) Delete(ctx context.Context, phone string) error {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `DELETE FROM otp_codes WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("delete otp: %w", r.db.Observe(err))
	}
	return nil
}

// DeleteExpired purges records created before cutoff.
func (r *OTPRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := r.db.Acquire(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := pool.Exec(ctx, `DELETE FROM otp_codes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired otp: %w", r.db.Observe(err))
	}
	return tag.RowsAffected(), nil
}
