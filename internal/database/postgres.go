package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/config"
	"golang.org/x/sync/singleflight"
)

// Dialer opens and validates a new pool.
type Dialer func(ctx context.Context) (*pgxpool.Pool, error)

// Manager lazily establishes one pooled connection to the record store and
// memoizes it for the process lifetime. Concurrent Acquire calls during a
// connection attempt share that attempt.
type Manager struct {
	dial       Dialer
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger

	flight singleflight.Group

	mu   sync.RWMutex
	pool *pgxpool.Pool
	// failures counts consecutive failed connection attempts. It resets on
	// success and once the cap is reached, so a long outage never locks the
	// manager out permanently.
	failures int
}

// NewManager creates a Manager that dials PostgreSQL using cfg.
func NewManager(cfg *config.Config, log zerolog.Logger) *Manager {
	return NewManagerWithDialer(PostgresDialer(cfg, log), cfg.DBConnectRetries, cfg.DBRetryDelay, log)
}

// NewManagerWithDialer creates a Manager around an arbitrary dialer.
func NewManagerWithDialer(dial Dialer, maxRetries int, retryDelay time.Duration, log zerolog.Logger) *Manager {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Manager{
		dial:       dial,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "db_manager").Logger(),
	}
}

// Acquire returns the shared pool, connecting on first use.
func (m *Manager) Acquire(ctx context.Context) (*pgxpool.Pool, error) {
	if pool := m.current(); pool != nil {
		return pool, nil
	}

	// The first caller's cancellation must not abort the attempt the others
	// are waiting on.
	connectCtx := context.WithoutCancel(ctx)

	ch := m.flight.DoChan("connect", func() (any, error) {
		if pool := m.current(); pool != nil {
			return pool, nil
		}
		return m.connect(connectCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pgxpool.Pool), nil
	}
}

func (m *Manager) current() *pgxpool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

func (m *Manager) connect(ctx context.Context) (*pgxpool.Pool, error) {
	for {
		pool, err := m.dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.pool = pool
			m.failures = 0
			m.mu.Unlock()
			return pool, nil
		}

		m.mu.Lock()
		m.failures++
		attempt := m.failures
		exhausted := attempt >= m.maxRetries
		if exhausted {
			m.failures = 0
		}
		m.mu.Unlock()

		if exhausted {
			m.log.Error().Err(err).Int("attempts", attempt).Msg("Record store connection failed")
			return nil, fmt.Errorf("connect to record store after %d attempts: %w", attempt, err)
		}

		m.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", m.retryDelay).
			Msg("Record store connection failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}

// Invalidate drops the memoized pool so the next Acquire reconnects.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	old := m.pool
	m.pool = nil
	m.mu.Unlock()

	if old != nil {
		m.log.Warn().Msg("Record store connection invalidated")
		// Close waits for acquired connections to be released.
		go old.Close()
	}
}

// Observe inspects a store error and invalidates the pool when it signals a
// broken connection. It returns err unchanged.
func (m *Manager) Observe(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperror.IsConnectivity(err) {
		m.Invalidate()
	}
	return err
}

// Ping checks that the store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	pool, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	return m.Observe(pool.Ping(ctx))
}

// Close releases the pool at shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
}

// PostgresDialer builds a pool with bounded size, connect, statement and
// socket timeouts, and a health-check heartbeat, then pings it.
func PostgresDialer(cfg *config.Config, log zerolog.Logger) Dialer {
	return func(ctx context.Context) (*pgxpool.Pool, error) {
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}

		poolCfg.MaxConns = cfg.MaxDBConns
		poolCfg.HealthCheckPeriod = cfg.DBHealthCheckPeriod
		poolCfg.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.DBStatementTimeout.Milliseconds(), 10)

		dialer := &net.Dialer{Timeout: cfg.DBConnectTimeout, KeepAlive: cfg.DBSocketKeepAlive}
		poolCfg.ConnConfig.DialFunc = dialer.DialContext

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		log.Info().
			Int32("max_conns", cfg.MaxDBConns).
			Dur("health_check", cfg.DBHealthCheckPeriod).
			Msg("PostgreSQL connected")

		return pool, nil
	}
}
