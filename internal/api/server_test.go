package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
	"github.com/p-blackswan/pr-nudge/internal/nudge"
	"github.com/p-blackswan/pr-nudge/internal/requestid"
	"github.com/p-blackswan/pr-nudge/internal/snooze"
)

var apiNow = time.Date(2023, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeDigest struct {
	store     snooze.Store
	stale     []nudge.PullRequest
	runErr    error
	ran       int
	pruned    int
	lastReqID string
}

func (f *fakeDigest) Run(ctx context.Context) error {
	f.ran++
	f.lastReqID = requestid.FromContext(ctx)
	return f.runErr
}

func (f *fakeDigest) Stale(_ context.Context) ([]nudge.PullRequest, error) {
	return f.stale, f.runErr
}

func (f *fakeDigest) Snooze(ctx context.Context, id nudge.Identity, days int) error {
	if days < 1 {
		return fmt.Errorf("%w: snooze duration must be >= 1 day", perrors.ErrInvalidInput)
	}
	return f.store.Set(ctx, id, apiNow.AddDate(0, 0, days))
}

func (f *fakeDigest) PruneSnoozes(_ context.Context) (int, error) {
	return f.pruned, nil
}

func newTestServer(t *testing.T, d *fakeDigest, store snooze.Store) *Server {
	t.Helper()
	handlers := NewHandlers(d, store, nil, zerolog.Nop())
	return NewServer(ServerConfig{
		AuthConfig: AuthConfig{Mode: "api-key", APIKey: "secret"},
	}, handlers, nil, zerolog.Nop())
}

func authedRequest(method, path string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer secret")
	return req
}

func TestLiveness_NoAuthRequired(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RejectsMissingKey(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/stale", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_RejectsWrongKey(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stale", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequestID_PropagatesToHandlers(t *testing.T) {
	store := snooze.NewMemoryStore()
	d := &fakeDigest{store: store}
	srv := newTestServer(t, d, store)

	req := authedRequest(http.MethodPost, "/api/v1/digest", nil)
	req.Header.Set(requestid.Header, "op-abc123")
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The caller-supplied ID is echoed and reaches the handler's context.
	assert.Equal(t, "op-abc123", resp.Header.Get(requestid.Header))
	assert.Equal(t, "op-abc123", d.lastReqID)
}

func TestRequestID_MintedWhenAbsent(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	resp, err := srv.App().Test(authedRequest(http.MethodGet, "/api/v1/stale", nil), -1)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(requestid.Header))
}

func TestTriggerDigest(t *testing.T) {
	store := snooze.NewMemoryStore()
	d := &fakeDigest{store: store}
	srv := newTestServer(t, d, store)

	resp, err := srv.App().Test(authedRequest(http.MethodPost, "/api/v1/digest", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, d.ran)
}

func TestTriggerDigest_Failure(t *testing.T) {
	store := snooze.NewMemoryStore()
	d := &fakeDigest{store: store, runErr: errors.New("github down")}
	srv := newTestServer(t, d, store)

	resp, err := srv.App().Test(authedRequest(http.MethodPost, "/api/v1/digest", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "digest_failed", problem.Type)
}

func TestGetStale(t *testing.T) {
	store := snooze.NewMemoryStore()
	d := &fakeDigest{store: store, stale: []nudge.PullRequest{
		{
			Identity:  nudge.Identity{Owner: "acme", Repo: "widgets", Number: 42},
			Title:     "Fix the widget",
			UpdatedAt: apiNow.AddDate(0, 0, -5),
		},
	}}
	srv := newTestServer(t, d, store)

	resp, err := srv.App().Test(authedRequest(http.MethodGet, "/api/v1/stale", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body StaleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 42, body.PRs[0].Number)
}

func TestGetStale_Empty(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	resp, err := srv.App().Test(authedRequest(http.MethodGet, "/api/v1/stale", nil), -1)
	require.NoError(t, err)

	var body StaleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Zero(t, body.Count)
	assert.NotNil(t, body.PRs)
}

func TestSnoozeLifecycle(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	// Create
	resp, err := srv.App().Test(authedRequest(http.MethodPut,
		"/api/v1/snoozes/acme/widgets/42", []byte(`{"days": 7}`)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// List
	resp, err = srv.App().Test(authedRequest(http.MethodGet, "/api/v1/snoozes", nil), -1)
	require.NoError(t, err)
	var list SnoozeListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "acme", list.Snoozes[0].Owner)
	assert.Equal(t, 42, list.Snoozes[0].Number)
	assert.Equal(t, apiNow.AddDate(0, 0, 7), list.Snoozes[0].ExpiresAt.UTC())

	// Delete
	resp, err = srv.App().Test(authedRequest(http.MethodDelete,
		"/api/v1/snoozes/acme/widgets/42", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Delete again
	resp, err = srv.App().Test(authedRequest(http.MethodDelete,
		"/api/v1/snoozes/acme/widgets/42", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutSnooze_InvalidDays(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	resp, err := srv.App().Test(authedRequest(http.MethodPut,
		"/api/v1/snoozes/acme/widgets/42", []byte(`{"days": 0}`)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutSnooze_BadNumber(t *testing.T) {
	store := snooze.NewMemoryStore()
	srv := newTestServer(t, &fakeDigest{store: store}, store)

	resp, err := srv.App().Test(authedRequest(http.MethodPut,
		"/api/v1/snoozes/acme/widgets/abc", []byte(`{"days": 7}`)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPruneSnoozes(t *testing.T) {
	store := snooze.NewMemoryStore()
	d := &fakeDigest{store: store, pruned: 3}
	srv := newTestServer(t, d, store)

	resp, err := srv.App().Test(authedRequest(http.MethodPost, "/api/v1/snoozes/prune", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body PruneResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Removed)
}
