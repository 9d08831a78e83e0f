package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mediaforge/sessiond/internal/logging"
	"github.com/mediaforge/sessiond/pkg/domain"
	"github.com/mediaforge/sessiond/pkg/ports"
)

// Config controls lock acquisition behavior.
type Config struct {
	// Lease is how long an acquired lock lives without release. It must
	// exceed the longest expected critical section by a safety margin:
	// lease expiry is the only recovery path when a holder crashes.
	Lease time.Duration

	// Attempts bounds how many times Acquire tries before giving up.
	Attempts int

	// RetryDelay is the wait after the first failed attempt; each further
	// attempt waits one RetryDelay more than the previous.
	RetryDelay time.Duration

	// AcquireBudget is the overall deadline for one Acquire call,
	// measured on the monotonic clock.
	AcquireBudget time.Duration
}

// DefaultConfig returns acquisition settings suitable for sub-second
// critical sections.
func DefaultConfig() Config {
	return Config{
		Lease:         30 * time.Second,
		Attempts:      10,
		RetryDelay:    50 * time.Millisecond,
		AcquireBudget: 2 * time.Second,
	}
}

// Manager provides per-key mutual exclusion on top of a backend-atomic
// Locker primitive. Every acquisition gets a fresh random owner token so
// release can be a safe compare-and-delete.
type Manager struct {
	locker ports.Locker
	cfg    Config
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a lock manager over the given primitive.
func NewManager(locker ports.Locker, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		locker: locker,
		cfg:    cfg,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts to take the lock at key, retrying with growing backoff
// within the attempt and time budget. It returns the owner token on success
// and domain.ErrLockNotAcquired once the budget is exhausted.
func (m *Manager) Acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	start := time.Now()
	delay := m.cfg.RetryDelay

	for attempt := 0; attempt < m.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay += m.cfg.RetryDelay
			if time.Since(start) > m.cfg.AcquireBudget {
				break
			}
		}

		granted, err := m.locker.TryAcquire(ctx, key, token, m.cfg.Lease)
		if err != nil {
			return "", err
		}
		if granted {
			return token, nil
		}
	}

	return "", fmt.Errorf("%w: %s", domain.ErrLockNotAcquired, key)
}

// Release frees the lock at key if it is still owned by token.
func (m *Manager) Release(ctx context.Context, key, token string) error {
	return m.locker.Release(ctx, key, token)
}

// WithLock acquires the lock for key, runs fn, and always attempts release.
// A release failure is logged but never suppresses fn's own outcome; the
// lease will expire on its own.
func (m *Manager) WithLock(ctx context.Context, key, operation string, fn func(context.Context) error) error {
	token, err := m.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	defer func() {
		if rerr := m.Release(context.WithoutCancel(ctx), key, token); rerr != nil {
			m.logger.Warn("failed to release lock, lease will expire",
				"operation", operation,
				"key", key,
				"err", rerr,
			)
		}
	}()

	return fn(ctx)
}
