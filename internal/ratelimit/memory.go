package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. Counters are lost on
// restart and not shared between processes.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryLimiter creates a limiter and starts its cleanup loop.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	l := &MemoryLimiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// WithClock replaces the time source. Used by tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// Allow counts one attempt for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	reset := w.start.Add(l.cfg.Window)
	if w.count >= l.cfg.MaxAttempts {
		return Info{Allowed: false, ResetTime: reset, RetryAfter: reset.Sub(now)}, nil
	}

	w.count++
	return Info{
		Allowed:   true,
		Remaining: l.cfg.MaxAttempts - w.count,
		ResetTime: reset,
	}, nil
}

// Reset forgets the counter for key.
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *MemoryLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.stopCh) })
}
