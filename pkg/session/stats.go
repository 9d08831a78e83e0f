package session

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mediaforge/sessiond/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Stats scans all stored sessions and aggregates a state histogram and a
// unique-user count. Read-only: expired records are skipped, not deleted.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	keys, err := s.kv.Scan(ctx, s.sessionPrefix())
	if err != nil {
		return nil, err
	}

	stats := &domain.Stats{ByState: make(map[domain.State]int)}
	users := make(map[string]struct{})
	now := s.now()

	for _, key := range keys {
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			s.logger.Warn("stats: failed to read session", "key", key, "err", err)
			continue
		}
		if !ok {
			continue
		}

		var sess domain.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			s.logger.Warn("stats: failed to decode session", "key", key, "err", err)
			continue
		}
		if sess.Expired(s.cfg.IdleTimeout, now) {
			continue
		}

		stats.TotalSessions++
		stats.ByState[sess.State]++
		users[sess.UserID] = struct{}{}
	}

	stats.UniqueUsers = len(users)
	return stats, nil
}

// assetEntry is the stored shape of one generated-asset record inside the
// session context.
type assetEntry struct {
	ID        string `mapstructure:"id"`
	Operation string `mapstructure:"operation"`
	Model     string `mapstructure:"model"`
	URL       string `mapstructure:"url"`
}

// Summary derives a digest of one session purely from its already-stored
// context and metadata. Read-only, no refresh.
func (s *Store) Summary(ctx context.Context, userID, threadID string) (*domain.Summary, error) {
	sess, err := s.loadLive(ctx, s.sessionKey(userID, threadID))
	if err != nil {
		return nil, err
	}

	var assets []assetEntry
	if raw, ok := sess.Context[domain.ContextKeyAssets]; ok {
		if err := mapstructure.Decode(raw, &assets); err != nil {
			s.logger.Warn("summary: malformed asset entries",
				"session_id", sess.SessionID, "err", err)
		}
	}

	ops := make(map[string]struct{})
	models := make(map[string]struct{})
	for _, a := range assets {
		if a.Operation != "" {
			ops[a.Operation] = struct{}{}
		}
		if a.Model != "" {
			models[a.Model] = struct{}{}
		}
	}
	// The currently selected operation/model count even before any asset
	// has been produced with them.
	if op, ok := sess.Context[domain.ContextKeyOperation].(string); ok && op != "" {
		ops[op] = struct{}{}
	}
	if model, ok := sess.Context[domain.ContextKeyModel].(string); ok && model != "" {
		models[model] = struct{}{}
	}

	return &domain.Summary{
		SessionID:    sess.SessionID,
		State:        sess.State,
		Operations:   sortedKeys(ops),
		Models:       sortedKeys(models),
		AssetCount:   len(assets),
		Interactions: sess.Metadata.InteractionCount,
		Elapsed:      sess.Duration(s.now()),
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
