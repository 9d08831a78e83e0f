package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mediaforge/sessiond/internal/logging"
	"github.com/mediaforge/sessiond/pkg/domain"
	"github.com/mediaforge/sessiond/pkg/lock"
	"github.com/mediaforge/sessiond/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// Config controls session lifecycle behavior.
type Config struct {
	// IdleTimeout is both the storage TTL for session keys and the
	// logical expiry horizon: a session whose last activity is older than
	// this is absent even if still physically stored.
	IdleTimeout time.Duration

	// MaxSessionsPerUser caps concurrent sessions per user. The check is
	// not atomic with creation, so the cap can be exceeded by a small
	// margin under contention: a soft limit, not a correctness invariant.
	MaxSessionsPerUser int

	// EndGraceDelay is how long a COMPLETED record stays readable after
	// End before physical deletion, so in-flight readers can observe the
	// terminal state.
	EndGraceDelay time.Duration

	// KeyPrefix namespaces every key this store writes.
	KeyPrefix string
}

// DefaultConfig returns production lifecycle settings.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:        30 * time.Minute,
		MaxSessionsPerUser: 3,
		EndGraceDelay:      5 * time.Second,
		KeyPrefix:          "mediaforge:",
	}
}

// Store coordinates all access to persisted sessions. Every
// read-modify-write path runs under the per-(user, thread) distributed
// lock; plain reads refresh activity unlocked as an accepted benign race.
type Store struct {
	kv      ports.Store
	locks   *lock.Manager
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	// now is swappable in tests.
	now func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics configures externally registered metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a session store over the given backend and lock manager.
func New(kv ports.Store, locks *lock.Manager, cfg Config, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		locks:  locks,
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		// Private registry: metrics stay functional but unexported until
		// the caller opts in via WithMetrics.
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// Key layout.

func (s *Store) sessionKey(userID, threadID string) string {
	return s.cfg.KeyPrefix + "session:" + userID + ":" + threadID
}

func (s *Store) userKey(userID string) string {
	return s.cfg.KeyPrefix + "user_sessions:" + userID
}

func (s *Store) lockKey(userID, threadID string) string {
	return s.cfg.KeyPrefix + "lock:session:" + userID + ":" + threadID
}

func (s *Store) sessionPrefix() string {
	return s.cfg.KeyPrefix + "session:"
}

func (s *Store) userPrefix() string {
	return s.cfg.KeyPrefix + "user_sessions:"
}

// load fetches and decodes the record at key, whether or not it is stale.
func (s *Store) load(ctx context.Context, key string) (*domain.Session, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Error("failed to load session", "key", key, "err", err)
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.logger.Error("failed to decode session", "key", key, "err", err)
		return nil, fmt.Errorf("decode session %q: %w", key, err)
	}
	return &sess, nil
}

// loadLive fetches the record at key and applies the shared expiry
// predicate, so locked mutation paths and reads agree on what exists.
func (s *Store) loadLive(ctx context.Context, key string) (*domain.Session, error) {
	sess, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.cfg.IdleTimeout, s.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// persist writes the record with a fresh idle-timeout TTL.
func (s *Store) persist(ctx context.Context, key string, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw, s.cfg.IdleTimeout); err != nil {
		s.logger.Error("failed to persist session", "key", key, "err", err)
		return err
	}
	return nil
}

// removeExpired physically deletes a stale record and its index entry.
// Shared by lazy expiry and the sweeper.
func (s *Store) removeExpired(ctx context.Context, key string, sess *domain.Session, path string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete expired session", "key", key, "err", err)
		return
	}
	if err := s.kv.SetRemove(ctx, s.userKey(sess.UserID), sess.SessionID); err != nil {
		s.logger.Warn("failed to remove expired session from user index",
			"key", key, "session_id", sess.SessionID, "err", err)
	}
	s.metrics.SessionsExpired.WithLabelValues(path).Inc()
}

// withSessionLock wraps the lock manager with metrics accounting.
func (s *Store) withSessionLock(ctx context.Context, userID, threadID, operation string, fn func(context.Context) error) error {
	err := s.locks.WithLock(ctx, s.lockKey(userID, threadID), operation, fn)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		s.metrics.LockTimeouts.Inc()
	}
	return err
}

// Create starts a session for (userID, threadID), or returns the existing
// live one: creation is idempotent per key. The boolean reports whether a
// new session was created, so callers can tell creation from re-entry. It
// refuses with domain.ErrCapacityExceeded when the user is at the
// configured cap.
func (s *Store) Create(ctx context.Context, userID, threadID, channelID string, initial map[string]any) (*domain.Session, bool, error) {
	key := s.sessionKey(userID, threadID)

	existing, err := s.load(ctx, key)
	switch {
	case err == nil:
		if !existing.Expired(s.cfg.IdleTimeout, s.now()) {
			return existing, false, nil
		}
		s.removeExpired(ctx, key, existing, "lazy")
	case errors.Is(err, domain.ErrSessionNotFound):
	default:
		return nil, false, err
	}

	// Soft cap: the index is only updated after the session is persisted,
	// so this check-then-act can overshoot slightly under contention.
	count, err := s.UserSessionCount(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if count >= int64(s.cfg.MaxSessionsPerUser) {
		s.metrics.CapacityRejections.Inc()
		return nil, false, fmt.Errorf("%w: user %s has %d active sessions", domain.ErrCapacityExceeded, userID, count)
	}

	sess := domain.NewSession(uuid.NewString(), userID, threadID, channelID, s.now())
	for k, v := range initial {
		sess.Context[k] = v
	}

	if err := s.persist(ctx, key, sess); err != nil {
		return nil, false, err
	}
	// Best-effort dual write: the index is eventually consistent with the
	// stored sessions, never transactional with them.
	if err := s.kv.SetAdd(ctx, s.userKey(userID), sess.SessionID); err != nil {
		s.logger.Warn("failed to index new session", "key", key, "session_id", sess.SessionID, "err", err)
	}

	s.metrics.SessionsCreated.Inc()
	s.logger.Info("session created",
		"session_id", sess.SessionID, "user_id", userID, "thread_id", threadID)
	return sess, true, nil
}

// Get returns the live session for (userID, threadID) and refreshes its
// activity timestamp and TTL.
//
// A stale record is deleted on sight (lazy expiry) without taking the
// per-session lock: the delete is idempotent and the sweeper applies the
// same predicate, so the worst case is a double delete. The refresh
// write-back is likewise unlocked; last write wins and only a timestamp can
// be lost.
func (s *Store) Get(ctx context.Context, userID, threadID string) (*domain.Session, error) {
	key := s.sessionKey(userID, threadID)

	sess, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.Expired(s.cfg.IdleTimeout, now) {
		s.removeExpired(ctx, key, sess, "lazy")
		return nil, domain.ErrSessionNotFound
	}

	sess.Touch(now)
	if err := s.persist(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateState overwrites the workflow state unconditionally; transition
// legality is the rules engine's responsibility.
func (s *Store) UpdateState(ctx context.Context, userID, threadID string, newState domain.State) (*domain.Session, error) {
	var updated *domain.Session
	err := s.withSessionLock(ctx, userID, threadID, "update_state", func(ctx context.Context) error {
		key := s.sessionKey(userID, threadID)
		sess, err := s.loadLive(ctx, key)
		if err != nil {
			return err
		}
		sess.State = newState
		sess.Touch(s.now())
		if err := s.persist(ctx, key, sess); err != nil {
			return err
		}
		updated = sess
		return nil
	})
	return updated, err
}

// UpdateContext merges patch into the stored context. Append-type keys
// concatenate onto the existing list; all other keys overwrite.
func (s *Store) UpdateContext(ctx context.Context, userID, threadID string, patch map[string]any) (*domain.Session, error) {
	var updated *domain.Session
	err := s.withSessionLock(ctx, userID, threadID, "update_context", func(ctx context.Context) error {
		key := s.sessionKey(userID, threadID)
		sess, err := s.loadLive(ctx, key)
		if err != nil {
			return err
		}
		mergeContext(sess.Context, patch)
		sess.Touch(s.now())
		if err := s.persist(ctx, key, sess); err != nil {
			return err
		}
		updated = sess
		return nil
	})
	return updated, err
}

// TrackInteraction records an intentional user action: it increments the
// interaction counter and refreshes activity. Distinct from Get's passive
// refresh; this feeds analytics.
func (s *Store) TrackInteraction(ctx context.Context, userID, threadID, kind string) (*domain.Session, error) {
	var updated *domain.Session
	err := s.withSessionLock(ctx, userID, threadID, "track_interaction", func(ctx context.Context) error {
		key := s.sessionKey(userID, threadID)
		sess, err := s.loadLive(ctx, key)
		if err != nil {
			return err
		}
		sess.Metadata.InteractionCount++
		sess.Metadata.LastInteraction = kind
		sess.Touch(s.now())
		if err := s.persist(ctx, key, sess); err != nil {
			return err
		}
		updated = sess
		return nil
	})
	return updated, err
}

// End transitions the session to COMPLETED, records its end timestamp, and
// schedules physical deletion after the grace delay so concurrent readers
// can still observe the terminal record.
func (s *Store) End(ctx context.Context, userID, threadID string) (*domain.Session, error) {
	var ended *domain.Session
	err := s.withSessionLock(ctx, userID, threadID, "end_session", func(ctx context.Context) error {
		key := s.sessionKey(userID, threadID)
		sess, err := s.loadLive(ctx, key)
		if err != nil {
			return err
		}

		now := s.now()
		sess.State = domain.StateCompleted
		sess.Metadata.EndedAt = &now
		sess.Touch(now)
		if err := s.persist(ctx, key, sess); err != nil {
			return err
		}
		ended = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SessionsEnded.Inc()
	s.logger.Info("session ended",
		"session_id", ended.SessionID,
		"user_id", userID,
		"thread_id", threadID,
		"duration", ended.Duration(s.now()),
		"interactions", ended.Metadata.InteractionCount,
	)

	time.AfterFunc(s.cfg.EndGraceDelay, func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Delete(dctx, userID, threadID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warn("failed to delete ended session",
				"user_id", userID, "thread_id", threadID, "err", err)
		}
	})
	return ended, nil
}

// Delete removes the stored record and its user-index entry immediately.
func (s *Store) Delete(ctx context.Context, userID, threadID string) error {
	key := s.sessionKey(userID, threadID)

	sess, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.kv.SetRemove(ctx, s.userKey(userID), sess.SessionID); err != nil {
		s.logger.Warn("failed to remove session from user index",
			"key", key, "session_id", sess.SessionID, "err", err)
	}
	return nil
}

// UserSessions returns the indexed session ids for a user. The index is
// eventually consistent with the stored sessions.
func (s *Store) UserSessions(ctx context.Context, userID string) ([]string, error) {
	return s.kv.SetMembers(ctx, s.userKey(userID))
}

// UserSessionCount returns the user's indexed session count, the input to
// the soft concurrency cap.
func (s *Store) UserSessionCount(ctx context.Context, userID string) (int64, error) {
	return s.kv.SetCard(ctx, s.userKey(userID))
}

// Health verifies the storage backend is reachable.
func (s *Store) Health(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// mergeContext applies patch onto dst in place.
func mergeContext(dst, patch map[string]any) {
	for k, v := range patch {
		if domain.IsAppendKey(k) {
			dst[k] = append(asList(dst[k]), asList(v)...)
			continue
		}
		dst[k] = v
	}
}

// asList normalizes a context value to a list: nil becomes empty, a list
// stays itself, a scalar becomes a single-element list.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}
