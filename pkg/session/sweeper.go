package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mediaforge/sessiond/pkg/domain"
)

// Sweeper periodically removes sessions past their idle timeout and keeps
// the user index consistent. It applies the same expiry predicate as lazy
// expiry on read, against the same backend, so the two paths never disagree
// about which sessions exist.
type Sweeper struct {
	store    *Store
	interval time.Duration
}

// NewSweeper creates a sweeper over the given session store.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.store.logger.Info("expiry sweeper started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.store.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			removed, err := w.Sweep(ctx)
			if err != nil {
				w.store.logger.Error("sweep failed", "err", err)
				continue
			}
			if removed > 0 {
				w.store.logger.Info("sweep removed expired sessions", "count", removed)
			}
		}
	}
}

// Sweep scans all session keys once and deletes every record past the idle
// timeout, removing it from its user's index in the same step. It then
// reclaims index entries whose record is already gone: the storage TTL
// equals the idle timeout, so an abandoned session's record can vanish on
// its own before any read or sweep observes it, and without this pass the
// per-user count would only ever grow. A failure on one entry is logged and
// does not abort the sweep; already-deleted entries stay deleted.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	s := w.store
	start := time.Now()

	// Snapshot the index before scanning records. Create persists the
	// record before indexing it, so every id in this snapshot either has a
	// record the scan below will see, or belongs to a session that no
	// longer exists and can be reclaimed.
	indexed, err := w.snapshotIndex(ctx)
	if err != nil {
		return 0, err
	}

	keys, err := s.kv.Scan(ctx, s.sessionPrefix())
	if err != nil {
		return 0, err
	}

	now := s.now()
	removed := 0
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			s.logger.Warn("sweep: failed to read session", "key", key, "err", err)
			continue
		}
		if !ok {
			continue // expired between scan and read
		}

		var sess domain.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			s.logger.Warn("sweep: failed to decode session", "key", key, "err", err)
			continue
		}
		seen[sess.SessionID] = struct{}{}

		if !sess.Expired(s.cfg.IdleTimeout, now) {
			continue
		}
		s.removeExpired(ctx, key, &sess, "sweep")
		removed++
	}

	removed += w.pruneIndex(ctx, indexed, seen)

	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	return removed, nil
}

// snapshotIndex reads every user index set. A set that fails to read is
// skipped and retried on the next sweep.
func (w *Sweeper) snapshotIndex(ctx context.Context) (map[string][]string, error) {
	s := w.store

	keys, err := s.kv.Scan(ctx, s.userPrefix())
	if err != nil {
		return nil, err
	}
	indexed := make(map[string][]string, len(keys))
	for _, key := range keys {
		ids, err := s.kv.SetMembers(ctx, key)
		if err != nil {
			s.logger.Warn("sweep: failed to read user index", "key", key, "err", err)
			continue
		}
		indexed[key] = ids
	}
	return indexed, nil
}

// pruneIndex removes indexed session ids that have no stored record left.
// Records the sweep itself just deleted are in seen, so they are not
// counted twice.
func (w *Sweeper) pruneIndex(ctx context.Context, indexed map[string][]string, seen map[string]struct{}) int {
	s := w.store

	pruned := 0
	for userKey, ids := range indexed {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			if err := s.kv.SetRemove(ctx, userKey, id); err != nil {
				s.logger.Warn("sweep: failed to reclaim index entry",
					"key", userKey, "session_id", id, "err", err)
				continue
			}
			s.metrics.SessionsExpired.WithLabelValues("sweep").Inc()
			pruned++
		}
	}
	return pruned
}
