package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solar_report/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadCSVs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "timestamp,power\n"+
		"2024-06-20T10:30:00Z,2000\n"+
		"2024-06-21T10:00:00Z,1000\n")
	writeFile(t, dir, "a.csv", "timestamp,power\n"+
		"2024-06-20T10:00:00Z,1000\n")
	writeFile(t, dir, "ha.csv", "entity_id,state,last_changed\n"+
		"sensor.pv,1000,2024-06-21T10:30:00Z\n"+
		"sensor.pv,unavailable,2024-06-21T10:45:00Z\n")
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	days := store.New()
	n, err := loadCSVs(dir, time.UTC, days, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"2024-06-20", "2024-06-21"}, days.Keys())

	// Files are merged in time order before integration.
	d20, ok := days.Get("2024-06-20")
	require.True(t, ok)
	assert.InDelta(t, 750.0, d20.EnergyWh, 1e-9)
	assert.Equal(t, 2000.0, d20.PeakPowerW)

	d21, ok := days.Get("2024-06-21")
	require.True(t, ok)
	assert.InDelta(t, 500.0, d21.EnergyWh, 1e-9)
}

func TestLoadCSVs_TimeZone(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "late.csv", "timestamp,power\n2024-06-20T23:30:00Z,100\n")

	days := store.New()
	_, err := loadCSVs(dir, time.FixedZone("UTC+2", 2*3600), days, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-21"}, days.Keys())
}

func TestLoadCSVs_Errors(t *testing.T) {
	_, err := loadCSVs(filepath.Join(t.TempDir(), "missing"), time.UTC, store.New(), zap.NewNop())
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", "timestamp,power\nyesterday,100\n")
	_, err = loadCSVs(dir, time.UTC, store.New(), zap.NewNop())
	assert.ErrorContains(t, err, "bad.csv")
}

func TestPruneHistory(t *testing.T) {
	days := store.New()
	for _, d := range []int{10, 18, 19, 20, 21} {
		ts := time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC)
		days.GetOrCreate(ts.Format("2006-01-02"), ts)
	}
	now := time.Date(2024, 6, 21, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, pruneHistory(days, now, 0))
	assert.Equal(t, 5, days.Len())

	assert.Equal(t, 2, pruneHistory(days, now, 2))
	assert.Equal(t, []string{"2024-06-19", "2024-06-20", "2024-06-21"}, days.Keys())
}

func TestHousekeeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		housekeeping(ctx, time.Millisecond, func(time.Time) { calls.Add(1) })
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("housekeeping did not stop")
	}
}

func TestServeFrontend(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>dashboard</html>")

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	serveFrontend(r, dir, zap.NewNop())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dashboard")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	missing := mux.NewRouter()
	serveFrontend(missing, filepath.Join(dir, "nope"), zap.NewNop())
	rec = httptest.NewRecorder()
	missing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
