// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/history"
	"github.com/ManuGH/epgmerge/internal/jobs"
)

type fakeRunner struct {
	mu          sync.Mutex
	running     bool
	last        *jobs.Status
	lastSuccess time.Time
	triggered   []context.Context
}

func (f *fakeRunner) Trigger(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return "", jobs.ErrRunInProgress
	}
	f.running = true
	f.triggered = append(f.triggered, ctx)
	return "run-1", nil
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) Last() *jobs.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeRunner) LastSuccess() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSuccess
}

type fixture struct {
	cfg    config.AppConfig
	runner *fakeRunner
	store  history.Store
	srv    *httptest.Server
}

func newFixture(t *testing.T, store history.Store) *fixture {
	t.Helper()
	cfg := config.AppConfig{
		DataDir: t.TempDir(),
		Output:  config.OutputSettings{Path: "guide.xml"},
		API:     config.APISettings{Enabled: true, RefreshPerMinute: 2},
	}
	f := &fixture{cfg: cfg, runner: &fakeRunner{}, store: store}

	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewLastRunChecker(func() (time.Time, string) {
		return f.runner.LastSuccess(), ""
	}, func() time.Duration { return 0 }))

	s := New(Deps{
		Config:  func() config.AppConfig { return f.cfg },
		Runner:  f.runner,
		History: store,
		Health:  hm,
		Version: "1.2.3",
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	// transparent decompression off, so gzip can be asserted
	tr := &http.Transport{DisableCompression: true}
	defer tr.CloseIdleConnections()
	resp, err := (&http.Client{Transport: tr}).Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestXMLTV_NotWrittenYet(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(t, http.MethodGet, "/xmltv.xml", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestXMLTV_ServesGuide(t *testing.T) {
	f := newFixture(t, nil)
	body := `<?xml version="1.0" encoding="UTF-8"?>` + "\n<tv>" + strings.Repeat(`<channel id="A"></channel>`, 200) + "</tv>\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.DataDir, "guide.xml"), []byte(body), 0o600))

	resp := f.do(t, http.MethodGet, "/xmltv.xml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	resp = f.do(t, http.MethodGet, "/xmltv.xml", map[string]string{"Accept-Encoding": "gzip"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	got, err = io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	resp = f.do(t, http.MethodHead, "/xmltv.xml", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadiness_FollowsFirstSuccessfulRun(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/readyz", nil).StatusCode)

	f.runner.mu.Lock()
	f.runner.lastSuccess = time.Now()
	f.runner.mu.Unlock()
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil).StatusCode)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)

	got := decode[StatusResponse](t, f.do(t, http.MethodGet, "/api/status", nil))
	assert.Equal(t, "1.2.3", got.Version)
	assert.False(t, got.Running)
	assert.Nil(t, got.Last)
	assert.Nil(t, got.LastSuccess)

	finished := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	f.runner.mu.Lock()
	f.runner.last = &jobs.Status{RunID: "r1", Outcome: jobs.OutcomePartial, Channels: 3}
	f.runner.lastSuccess = finished
	f.runner.mu.Unlock()

	got = decode[StatusResponse](t, f.do(t, http.MethodGet, "/api/status", nil))
	require.NotNil(t, got.Last)
	assert.Equal(t, "r1", got.Last.RunID)
	assert.Equal(t, jobs.OutcomePartial, got.Last.Outcome)
	require.NotNil(t, got.LastSuccess)
	assert.True(t, finished.Equal(*got.LastSuccess))
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, map[string]string{"runId": "run-1"}, decode[map[string]string](t, resp))

	f.runner.mu.Lock()
	require.Len(t, f.runner.triggered, 1)
	assert.NoError(t, f.runner.triggered[0].Err(), "runs are not tied to the request context")
	f.runner.mu.Unlock()

	resp = f.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))

	// limit is 2 per minute per client
	resp = f.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/refresh", nil).StatusCode)
}

func TestRuns_HistoryDisabled(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuns_ListsNewestFirst(t *testing.T) {
	store, err := history.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		start := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Record(context.Background(), history.Run{
			ID: id, StartedAt: start, FinishedAt: start.Add(time.Minute), Outcome: jobs.OutcomeSuccess,
		}))
	}
	f := newFixture(t, store)

	type runsBody struct {
		Runs []history.Run `json:"runs"`
	}
	got := decode[runsBody](t, f.do(t, http.MethodGet, "/api/runs?limit=2", nil))
	require.Len(t, got.Runs, 2)
	assert.Equal(t, "c", got.Runs[0].ID)
	assert.Equal(t, "b", got.Runs[1].ID)

	for _, bad := range []string{"0", "-1", "x"} {
		resp := f.do(t, http.MethodGet, "/api/runs?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	f := newFixture(t, nil)

	// one request first so the HTTP histograms have samples
	f.do(t, http.MethodGet, "/healthz", nil)
	resp := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "epgmerge_http_request_duration_seconds")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", nil).StatusCode)
}
