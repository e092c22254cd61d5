// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/epg"
	"github.com/ManuGH/epgmerge/internal/history"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/merge"
)

type fakeLoader struct {
	inputs  func() []merge.Input
	entered chan struct{}
	release chan struct{}
	jobIDs  []string
	mu      sync.Mutex
}

func (f *fakeLoader) LoadAll(ctx context.Context, _ config.AppConfig) []merge.Input {
	f.mu.Lock()
	f.jobIDs = append(f.jobIDs, xglog.JobIDFromContext(ctx))
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.inputs()
}

type memoryHistory struct {
	mu   sync.Mutex
	runs []history.Run
}

func (m *memoryHistory) Record(_ context.Context, run history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryHistory) List(context.Context, int) ([]history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Run(nil), m.runs...), nil
}

func (m *memoryHistory) Close() error { return nil }

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	return config.AppConfig{
		DataDir: t.TempDir(),
		Output:  config.OutputSettings{Path: "out/guide.xml", Generator: "test-gen", Indent: "\t"},
		Canonical: config.CanonicalRules{
			Suffix:       epg.DefaultSuffix,
			UnknownID:    epg.DefaultUnknownID,
			RemovalTerms: epg.DefaultRemovalTerms,
			NoisePattern: epg.DefaultNoisePattern,
		},
		Fetch: config.FetchSettings{MaxConcurrency: 1},
		Sources: []config.SourceConfig{
			{Name: "a", Kind: config.KindXMLTV},
			{Name: "b", Kind: config.KindXMLTV},
		},
	}
}

func goodSource() *merge.Source {
	return &merge.Source{
		Name: "a",
		Channels: []merge.SourceChannel{
			{OriginalID: "g", DisplayName: "Globo (HD)"},
			{OriginalID: "e", DisplayName: "ESPN", Icon: "https://img/espn.png"},
		},
		Programmes: []merge.SourceProgramme{
			{ChannelID: "g", Start: "20240311200000 -0300", Content: merge.Content{Titles: []epg.LangText{{Lang: "pt", Text: "Jornal"}}}},
			{ChannelID: "e", Start: "20240311210000 -0300", Content: merge.Content{Titles: []epg.LangText{{Text: "SportsCenter"}}}},
		},
	}
}

func partialInputs() []merge.Input {
	return []merge.Input{
		{Name: "a", Source: goodSource()},
		{Name: "b", Err: errors.New("source unavailable: b: 502")},
	}
}

func failedInputs() []merge.Input {
	return []merge.Input{
		{Name: "a", Err: errors.New("down")},
		{Name: "b", Err: errors.New("down")},
	}
}

func newTestRunner(cfg config.AppConfig, loader SourceLoader, store history.Store) *Runner {
	r := NewRunner(func() config.AppConfig { return cfg }, func(config.FetchSettings) SourceLoader { return loader }, store)
	r.logger = zerolog.Nop()
	return r
}

func TestRunner_WritesGuideAndStatus(t *testing.T) {
	cfg := testConfig(t)
	store := &memoryHistory{}
	loader := &fakeLoader{inputs: partialInputs}
	r := newTestRunner(cfg, loader, store)

	status, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, status.Outcome)
	assert.True(t, status.Written)
	assert.Equal(t, 2, status.Channels)
	assert.Equal(t, 2, status.Programmes)
	assert.Equal(t, 1, status.SourcesFailed())
	require.Len(t, status.Sources, 2)
	assert.True(t, status.Sources[0].OK)
	assert.Equal(t, 2, status.Sources[0].Admitted)
	assert.Contains(t, status.Sources[1].Error, "502")
	assert.Equal(t, filepath.Join(cfg.DataDir, "out", "guide.xml"), status.OutputPath)

	data, err := os.ReadFile(status.OutputPath)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `generator-info-name="test-gen"`)
	assert.Less(t, strings.Index(out, `id="ESPN.BRASIL"`), strings.Index(out, `id="GLOBO.BRASIL"`), "channels are sorted")
	assert.Contains(t, out, `<title lang="pt">Jornal</title>`)
	assert.Contains(t, out, "\n\t<channel")

	assert.Equal(t, []string{status.RunID}, loader.jobIDs, "run id is carried in the context")
	assert.Equal(t, status.RunID, r.Last().RunID)
	assert.Equal(t, status.FinishedAt, r.LastSuccess())

	runs, _ := store.List(context.Background(), 0)
	require.Len(t, runs, 1)
	assert.Equal(t, history.Run{
		ID:            status.RunID,
		StartedAt:     status.StartedAt,
		FinishedAt:    status.FinishedAt,
		Outcome:       OutcomePartial,
		Channels:      2,
		Programmes:    2,
		SourcesOK:     1,
		SourcesFailed: 1,
	}, runs[0])
}

func TestRunner_SuccessOutcome(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources = cfg.Sources[:1]
	loader := &fakeLoader{inputs: func() []merge.Input {
		return []merge.Input{{Name: "a", Source: goodSource()}}
	}}

	status, err := newTestRunner(cfg, loader, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, status.Outcome)
	assert.Empty(t, status.Warning)
}

func TestRunner_AllFailedKeepsPreviousGuideWhenWriteEmptyOff(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.WriteEmpty = false
	path := cfg.OutputPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o600))

	store := &memoryHistory{}
	r := newTestRunner(cfg, &fakeLoader{inputs: failedInputs}, store)

	status, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSources)
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.False(t, status.Written)
	assert.NotEmpty(t, status.Warning)
	assert.True(t, r.LastSuccess().IsZero())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	runs, _ := store.List(context.Background(), 0)
	require.Len(t, runs, 1)
	assert.Equal(t, OutcomeFailed, runs[0].Outcome)
	assert.Equal(t, 2, runs[0].SourcesFailed)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRunner_AllFailedWritesEmptyGuide(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.WriteEmpty = true
	r := newTestRunner(cfg, &fakeLoader{inputs: failedInputs}, nil)

	status, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSources)
	assert.True(t, status.Written)
	assert.Equal(t, OutcomeFailed, status.Outcome)

	data, err := os.ReadFile(cfg.OutputPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `generator-info-name="test-gen"`)
	assert.NotContains(t, string(data), "<channel")
}

func TestRunner_BadCanonicalRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.Canonical.NoisePattern = "("
	loader := &fakeLoader{inputs: partialInputs}

	status, err := newTestRunner(cfg, loader, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Empty(t, loader.jobIDs, "sources are not loaded")
}

func TestRunner_RejectsConcurrentRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	loader := &fakeLoader{
		inputs:  partialInputs,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := newTestRunner(cfg, loader, nil)

	id, err := r.Trigger(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	<-loader.entered

	assert.True(t, r.Running())
	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = r.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(loader.release)
	r.Wait()

	assert.False(t, r.Running())
	require.NotNil(t, r.Last())
	assert.Equal(t, id, r.Last().RunID)
}

func TestRunner_ReusesLoaderUntilFetchSettingsChange(t *testing.T) {
	cfg := testConfig(t)
	var current atomic.Value
	current.Store(cfg)

	var built int
	r := NewRunner(
		func() config.AppConfig { return current.Load().(config.AppConfig) },
		func(config.FetchSettings) SourceLoader {
			built++
			return &fakeLoader{inputs: partialInputs}
		},
		nil,
	)

	for range 2 {
		_, err := r.Run(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, built)

	cfg.Fetch.Retries = 5
	current.Store(cfg)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, built)
}

func TestRunner_LastIsACopy(t *testing.T) {
	r := newTestRunner(testConfig(t), &fakeLoader{inputs: partialInputs}, nil)
	assert.Nil(t, r.Last())

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	last := r.Last()
	last.Sources[0].Name = "changed"
	last.Outcome = "changed"
	assert.Equal(t, "a", r.Last().Sources[0].Name)
	assert.Equal(t, OutcomePartial, r.Last().Outcome)
}

func TestRunner_StatusTiming(t *testing.T) {
	r := newTestRunner(testConfig(t), &fakeLoader{inputs: partialInputs}, nil)
	start := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	calls := 0
	r.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * time.Second)
	}

	status, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start, status.StartedAt)
	assert.Positive(t, status.DurationMS)
}
