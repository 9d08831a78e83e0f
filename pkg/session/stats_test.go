package session

import (
	"context"
	"testing"
	"time"

	"github.com/mediaforge/sessiond/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t, testConfig())
	ctx := context.Background()

	_, _, err := s.Create(ctx, "U1", "T1", "C1", nil)
	require.NoError(t, err)
	_, _, err = s.Create(ctx, "U1", "T2", "C1", nil)
	require.NoError(t, err)
	_, _, err = s.Create(ctx, "U2", "T1", "C2", nil)
	require.NoError(t, err)

	_, err = s.UpdateState(ctx, "U1", "T2", domain.StateGeneratingAsset)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 2, stats.UniqueUsers)
	assert.Equal(t, 2, stats.ByState[domain.StateInitializing])
	assert.Equal(t, 1, stats.ByState[domain.StateGeneratingAsset])
}

func TestStore_Stats_SkipsExpired(t *testing.T) {
	s := newTestStore(t, testConfig())
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	_, _, err := s.Create(ctx, "U1", "T1", "C1", nil)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(31 * time.Minute) }
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSessions, "logically absent sessions must not be counted")
}

func TestStore_Summary(t *testing.T) {
	s := newTestStore(t, testConfig())
	ctx := context.Background()

	created, _, err := s.Create(ctx, "U1", "T1", "C1", nil)
	require.NoError(t, err)

	_, err = s.UpdateContext(ctx, "U1", "T1", map[string]any{
		"assets": []any{
			map[string]any{"id": "a1", "operation": "image", "model": "sd-xl"},
			map[string]any{"id": "a2", "operation": "image", "model": "flux"},
		},
	})
	require.NoError(t, err)
	_, err = s.UpdateContext(ctx, "U1", "T1", map[string]any{
		"assets": []any{
			map[string]any{"id": "a3", "operation": "video", "model": "flux"},
		},
	})
	require.NoError(t, err)

	_, err = s.TrackInteraction(ctx, "U1", "T1", "generate")
	require.NoError(t, err)

	summary, err := s.Summary(ctx, "U1", "T1")
	require.NoError(t, err)

	assert.Equal(t, created.SessionID, summary.SessionID)
	assert.Equal(t, 3, summary.AssetCount)
	assert.Equal(t, []string{"image", "video"}, summary.Operations)
	assert.Equal(t, []string{"flux", "sd-xl"}, summary.Models)
	assert.Equal(t, 1, summary.Interactions)
	assert.GreaterOrEqual(t, summary.Elapsed, time.Duration(0))
}

func TestStore_Summary_Absent(t *testing.T) {
	s := newTestStore(t, testConfig())

	_, err := s.Summary(context.Background(), "nobody", "T1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
