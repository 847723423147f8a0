package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/sim"
	"github.com/banshee-data/trafficsim/internal/traffic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	monitoring.SetLogger(nil)
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMigrates(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 3, version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, s.MigrateUp())

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	require.NoError(t, s.MigrateUp())
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "oval", 4, map[string]int{"tick_rate": 50})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "oval", got.Track)
	assert.Equal(t, 4, got.Agents)
	assert.JSONEq(t, `{"tick_rate":50}`, string(got.Config))
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, run.StartedAt.UnixNano(), got.StartedAt.UnixNano())

	require.NoError(t, s.FinishRun(ctx, run.ID, 1200))
	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.EqualValues(t, 1200, got.Ticks)

	assert.ErrorIs(t, s.FinishRun(ctx, "missing", 1), ErrRunNotFound)
	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	second, err := s.StartRun(ctx, "figure8", 2, nil)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "oval", 2, nil)
	require.NoError(t, err)
	rec := s.Recorder(run.ID)

	require.NoError(t, rec.RecordSamples(ctx, []sim.Sample{
		{Tick: 10, AgentID: "car-0", Lane: 0, Segment: 3, T: 0.5, Completion: 3.5, Speed: 12, SpeedParameter: 45, Mode: traffic.ModeCruise, X: 66, Z: 1},
		{Tick: 10, AgentID: "car-1", Lane: 3, Segment: 7, T: 0.25, Completion: 7.25, Speed: 9, SpeedParameter: 45, Mode: traffic.ModeDraw, X: -66, Z: 4},
	}))
	require.NoError(t, rec.RecordSamples(ctx, []sim.Sample{
		{Tick: 20, AgentID: "car-0", Lane: 1, Segment: 4, Mode: traffic.ModeTransition},
	}))
	require.NoError(t, rec.RecordModeChange(ctx, sim.ModeChange{Tick: 12, AgentID: "car-0", From: traffic.ModeCruise, To: traffic.ModeTransition, Lane: 1}))
	require.NoError(t, rec.RecordModeChange(ctx, sim.ModeChange{Tick: 15, AgentID: "car-1", From: traffic.ModeCruise, To: traffic.ModePullOver, Lane: 3}))

	all, err := s.Samples(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, traffic.ModeDraw, all[1].Mode)
	assert.Equal(t, 7.25, all[1].Completion)

	one, err := s.Samples(ctx, run.ID, "car-0")
	require.NoError(t, err)
	require.Len(t, one, 2)
	assert.EqualValues(t, 20, one[1].Tick)
	assert.Equal(t, traffic.ModeTransition, one[1].Mode)

	changes, err := s.ModeChanges(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []sim.ModeChange{
		{Tick: 12, AgentID: "car-0", From: traffic.ModeCruise, To: traffic.ModeTransition, Lane: 1},
		{Tick: 15, AgentID: "car-1", From: traffic.ModeCruise, To: traffic.ModePullOver, Lane: 3},
	}, changes)

	// Samples for an unknown run violate the foreign key.
	err = s.Recorder("missing").RecordSamples(ctx, []sim.Sample{{Tick: 1, AgentID: "x"}})
	assert.Error(t, err)

	stats, err := s.TableStats()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"runs": 1, "agent_samples": 3, "mode_changes": 2}, stats)
}

func TestAttachAdminRoutes(t *testing.T) {
	s := openTestStore(t)
	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	for _, path := range []string{"/debug/db-stats", "/debug/backup", "/debug/tailsql/"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			// Debug routes may be forbidden to non-local callers but must exist.
			assert.NotEqual(t, http.StatusNotFound, w.Code)

			if path == "/debug/db-stats" && w.Code == http.StatusOK {
				var stats map[string]int64
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
				assert.Contains(t, stats, "runs")
			}
			if path == "/debug/backup" && w.Code == http.StatusOK {
				assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
				assert.NotEmpty(t, w.Header().Get("Content-Disposition"))
			}
		})
	}
}
