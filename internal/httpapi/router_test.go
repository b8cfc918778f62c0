package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar_report/internal/delivery"
	"solar_report/internal/i18n"
	"solar_report/internal/metrics"
	"solar_report/internal/model"
	"solar_report/internal/report"
	"solar_report/internal/scheduler"
	"solar_report/internal/store"
)

var noon = time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router  http.Handler
	sched   *scheduler.Scheduler
	pulse   *delivery.Pulse
	reports []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cat, err := i18n.NewCatalog(nil)
	require.NoError(t, err)

	ts := &testServer{pulse: delivery.NewPulse(time.Hour, nil)}
	t.Cleanup(ts.pulse.Stop)

	days := store.New()
	m := metrics.New()
	sink := delivery.Fanout{
		scheduler.SinkFunc(func(msg string, _ model.DailyReportData) { ts.reports = append(ts.reports, msg) }),
		ts.pulse,
		m,
	}
	ts.sched = scheduler.New(
		scheduler.Config{Enabled: true, ReportTime: "sunset", Location: time.UTC},
		days, report.NewGenerator(days, 10), i18n.NewFormatter(cat, "en"), sink,
		scheduler.WithClock(func() time.Time { return noon }),
		scheduler.WithObserver(m))

	ts.router = NewRouter(Deps{
		Controller: ts.sched,
		Locales:    cat.Codes(),
		Pulse:      ts.pulse,
		Metrics:    m.Handler(),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestStatsToday(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/stats/today", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.sched.Ingest(2000, noon.Add(-time.Hour))
	ts.sched.Ingest(1000, noon.Add(-30*time.Minute))

	rec = ts.do(t, http.MethodGet, "/stats/today", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[model.DailyStats](t, rec)
	assert.Equal(t, "2024-06-21", stats.DateKey)
	assert.InDelta(t, 750.0, stats.EnergyWh, 1e-9)
	assert.Equal(t, 2000.0, stats.PeakPowerW)
	assert.Len(t, stats.Samples, 2)
}

func TestTrigger(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/report/trigger", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, ts.reports)
	assert.False(t, ts.pulse.Active())

	ts.sched.Ingest(2000, noon.Add(-time.Hour))
	rec = ts.do(t, http.MethodPost, "/report/trigger", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	st := decode[stateResponse](t, rec)
	assert.True(t, st.ReportSentToday)
	assert.Equal(t, string(scheduler.StateReportSent), st.State)

	require.Len(t, ts.reports, 1)
	assert.Contains(t, ts.reports[0], "Solar production complete")
	assert.True(t, ts.pulse.Active())

	pulse := decode[map[string]bool](t, ts.do(t, http.MethodGet, "/report/pulse", ""))
	assert.True(t, pulse["active"])

	// GET is not routed.
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodGet, "/report/trigger", "").Code)
}

func TestLocale(t *testing.T) {
	ts := newTestServer(t)

	got := decode[localeRequest](t, ts.do(t, http.MethodGet, "/report/locale", ""))
	assert.Equal(t, "en", got.Locale)

	rec := ts.do(t, http.MethodPut, "/report/locale", `{"locale":"de"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "de", decode[localeRequest](t, rec).Locale)

	rec = ts.do(t, http.MethodPost, "/report/locale", `{"locale":"xx"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "en", decode[localeRequest](t, rec).Locale)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/report/locale", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/report/locale", `nope`).Code)
}

func TestReportState(t *testing.T) {
	ts := newTestServer(t)
	st := decode[stateResponse](t, ts.do(t, http.MethodGet, "/report/state", ""))
	assert.Equal(t, string(scheduler.StateAwaitingData), st.State)
	assert.Equal(t, "en", st.Locale)
	assert.Equal(t, []string{"de", "en", "fr", "it", "zh"}, st.Locales)
}

func TestMetricsRoute(t *testing.T) {
	ts := newTestServer(t)
	ts.sched.Ingest(1500, noon)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "solar_report_samples_total 1")
	assert.Contains(t, rec.Body.String(), "solar_report_peak_power_today_watts 1500")
}

func TestOptionalRoutesAbsent(t *testing.T) {
	router := NewRouter(Deps{Controller: &scheduler.Scheduler{}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/pulse", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":false`)
}
