package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mediaforge/sessiond/internal/logging"
	"github.com/mediaforge/sessiond/pkg/adapters/memory"
	"github.com/mediaforge/sessiond/pkg/domain"
	"github.com/mediaforge/sessiond/pkg/lock"
	"github.com/mediaforge/sessiond/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/mediaforge/sessiond/internal/adapters/http"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	kv := memory.NewStore()
	t.Cleanup(func() { _ = kv.Close() })

	locks := lock.NewManager(kv, lock.Config{
		Lease:         time.Second,
		Attempts:      50,
		RetryDelay:    time.Millisecond,
		AcquireBudget: time.Second,
	})
	store := session.New(kv, locks, session.Config{
		IdleTimeout:        30 * time.Minute,
		MaxSessionsPerUser: 1,
		EndGraceDelay:      time.Minute,
		KeyPrefix:          "test:",
	})

	srv := httptest.NewServer(httpadapter.NewHandler(store, logging.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) domain.Session {
	t.Helper()
	defer resp.Body.Close()

	var sess domain.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	return sess
}

func TestServer_CreateAndGet(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]any{
		"userId":    "U1",
		"threadId":  "T1",
		"channelId": "C1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeSession(t, resp)
	assert.Equal(t, domain.StateInitializing, created.State)

	getResp, err := http.Get(srv.URL + "/sessions/U1/T1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	got := decodeSession(t, getResp)
	assert.Equal(t, created.SessionID, got.SessionID)
}

func TestServer_CreateIsIdempotent(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1", "threadId": "T1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeSession(t, resp)

	// Re-entering the same (user, thread) answers 200, not 201.
	resp = postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1", "threadId": "T1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first.SessionID, decodeSession(t, resp).SessionID)
}

func TestServer_CreateValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_GetMissing(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sessions/nobody/T1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CapacityMapsTo429(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1", "threadId": "T1"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Max is 1 in the test fixture; a second thread hits the cap.
	resp = postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1", "threadId": "T2"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_UpdateStateAndContext(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1", "threadId": "T1"})
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/sessions/U1/T1/state",
		bytes.NewReader([]byte(`{"state":"generating_asset"}`)))
	require.NoError(t, err)
	stateResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, stateResp.StatusCode)
	assert.Equal(t, domain.StateGeneratingAsset, decodeSession(t, stateResp).State)

	req, err = http.NewRequest(http.MethodPatch, srv.URL+"/sessions/U1/T1/context",
		bytes.NewReader([]byte(`{"assets":[{"id":"a1"}]}`)))
	require.NoError(t, err)
	ctxResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, ctxResp.StatusCode)

	updated := decodeSession(t, ctxResp)
	assets, ok := updated.Context["assets"].([]any)
	require.True(t, ok)
	assert.Len(t, assets, 1)
}

func TestServer_EndAndDelete(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1", "threadId": "T1"})
	resp.Body.Close()

	endResp := postJSON(t, srv.URL+"/sessions/U1/T1/end", map[string]any{})
	require.Equal(t, http.StatusOK, endResp.StatusCode)
	assert.Equal(t, domain.StateCompleted, decodeSession(t, endResp).State)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/U1/T1", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

func TestServer_StatsAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]any{"userId": "U1", "threadId": "T1"})
	resp.Body.Close()

	statsResp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()
	require.Equal(t, http.StatusOK, statsResp.StatusCode)

	var stats domain.Stats
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalSessions)

	healthResp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}
