// Package scheduler decides when the daily solar report fires.
//
// A Scheduler owns one production stream. Each ingested sample updates the
// day's statistics and, once the configured report time has passed and
// production has been idle long enough, emits exactly one report per day
// to its Sink.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"solar_report/internal/accumulator"
	"solar_report/internal/i18n"
	"solar_report/internal/model"
	"solar_report/internal/report"
	"solar_report/internal/store"
)

// InactivityThreshold is how long production must have stopped before an
// automatic report may fire.
const InactivityThreshold = 30 * time.Minute

// State is the daily report state.
type State string

const (
	StateAwaitingData  State = "awaiting_data"
	StateReportPending State = "report_pending"
	StateReportSent    State = "report_sent"
)

// Config controls automatic reporting.
type Config struct {
	Enabled    bool
	ReportTime string
	// Location defines day boundaries and the report clock. Nil means
	// time.Local.
	Location *time.Location
}

// Sink receives rendered reports. It is called synchronously, outside the
// scheduler's lock.
type Sink interface {
	OnReport(message string, data model.DailyReportData)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(message string, data model.DailyReportData)

func (f SinkFunc) OnReport(message string, data model.DailyReportData) {
	f(message, data)
}

// Observer is notified after every accumulated sample with the day's
// running totals. It is called outside the scheduler's lock.
type Observer interface {
	OnSample(dateKey string, powerW, energyWh, peakPowerW float64)
}

// Observers notifies each observer in order.
type Observers []Observer

func (o Observers) OnSample(dateKey string, powerW, energyWh, peakPowerW float64) {
	for _, ob := range o {
		if ob != nil {
			ob.OnSample(dateKey, powerW, energyWh, peakPowerW)
		}
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock sets the time source used by TriggerManualReport and
// TodayStats.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver registers a sample observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// Scheduler gates daily report emission for one production stream.
type Scheduler struct {
	mu       sync.Mutex
	enabled  bool
	loc      *time.Location
	reportAt ReportTime

	days     *store.DayStore
	gen      *report.Generator
	fmt      *i18n.Formatter
	sink     Sink
	observer Observer
	log      *zap.Logger
	now      func() time.Time

	currentKey string
	sent       bool
	state      State
}

// New creates a scheduler. A malformed report time falls back to
// DefaultReportTime with a warning. A nil sink discards reports. The report
// language is the formatter's active locale.
func New(cfg Config, days *store.DayStore, gen *report.Generator, f *i18n.Formatter, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		enabled: cfg.Enabled,
		loc:     cfg.Location,
		days:    days,
		gen:     gen,
		fmt:     f,
		sink:    sink,
		log:     zap.NewNop(),
		now:     time.Now,
		state:   StateAwaitingData,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.sink == nil {
		s.sink = SinkFunc(func(string, model.DailyReportData) {})
	}

	rt, err := ParseReportTime(cfg.ReportTime)
	if err != nil {
		s.log.Warn("Invalid report time, using default",
			zap.String("report_time", cfg.ReportTime),
			zap.Stringer("default", DefaultReportTime),
			zap.Error(err))
		rt = DefaultReportTime
	}
	s.reportAt = rt
	return s
}

// ReportTime returns the effective report time of day.
func (s *Scheduler) ReportTime() ReportTime {
	return s.reportAt
}

// Location returns the time zone used for day boundaries.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Ingest feeds one power sample. Calls are serialized; timestamps are
// expected to be non-decreasing. A sample for a day older than the current
// one updates that day's statistics but never triggers a report.
func (s *Scheduler) Ingest(powerW float64, ts time.Time) {
	ts = ts.In(s.loc)
	key := model.DateKey(ts)

	msg, data, fired, snap := s.ingest(powerW, ts, key)
	if s.observer != nil {
		s.observer.OnSample(key, powerW, snap.EnergyWh, snap.PeakPowerW)
	}
	if !fired {
		return
	}
	s.log.Info("Daily report generated",
		zap.String("date", key),
		zap.Float64("energy_kwh", data.EnergyKWh),
		zap.Bool("manual", false))
	s.sink.OnReport(msg, data)
}

// ingest updates the day under the lock and reports whether a report fired.
// snap carries only the scalar totals.
func (s *Scheduler) ingest(powerW float64, ts time.Time, key string) (string, model.DailyReportData, bool, model.DailyStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap model.DailyStats
	var lastProd *time.Time
	created := s.days.Update(key, ts, func(d *model.DailyStats) {
		accumulator.Update(d, powerW, ts)
		snap.EnergyWh, snap.PeakPowerW = d.EnergyWh, d.PeakPowerW
		if d.LastProduction != nil {
			lp := *d.LastProduction
			lastProd = &lp
		}
	})

	switch {
	case key > s.currentKey:
		if s.currentKey != "" {
			s.log.Info("New day detected", zap.String("previous", s.currentKey), zap.String("date", key))
		}
		s.currentKey = key
		s.sent = false
		s.state = StateAwaitingData
	case key < s.currentKey:
		s.log.Debug("Late sample for a previous day", zap.String("date", key), zap.Bool("created", created))
		return "", model.DailyReportData{}, false, snap
	}

	if s.sent {
		return "", model.DailyReportData{}, false, snap
	}
	if lastProd != nil {
		s.state = StateReportPending
	}
	if !s.enabled || !s.due(ts, lastProd) {
		return "", model.DailyReportData{}, false, snap
	}

	stats, _ := s.days.Get(key)
	msg, data := s.generate(stats, ts)
	s.sent = true
	s.state = StateReportSent
	return msg, data, true, snap
}

func (s *Scheduler) due(ts time.Time, lastProd *time.Time) bool {
	if lastProd == nil {
		return false
	}
	if ts.Before(s.reportAt.On(ts)) {
		return false
	}
	return ts.Sub(*lastProd) >= InactivityThreshold
}

func (s *Scheduler) generate(stats model.DailyStats, ts time.Time) (string, model.DailyReportData) {
	data := s.gen.GenerateReportData(stats, ts)
	return s.fmt.Render(data), data
}

// TriggerManualReport generates a report from today's statistics
// immediately, regardless of whether one was already sent. It returns false
// and logs a warning if there are no statistics for today.
func (s *Scheduler) TriggerManualReport() bool {
	now := s.now().In(s.loc)
	key := model.DateKey(now)

	s.mu.Lock()
	stats, ok := s.days.Get(key)
	if !ok {
		s.mu.Unlock()
		s.log.Warn("No statistics for today, skipping manual report", zap.String("date", key))
		return false
	}
	current := key == s.currentKey
	if current {
		s.sent = false
	}
	msg, data := s.generate(stats, now)
	if current {
		s.sent = true
		s.state = StateReportSent
	}
	s.mu.Unlock()

	s.log.Info("Daily report generated",
		zap.String("date", key),
		zap.Float64("energy_kwh", data.EnergyKWh),
		zap.Bool("manual", true))
	s.sink.OnReport(msg, data)
	return true
}

// TodayStats returns a snapshot of today's statistics.
func (s *Scheduler) TodayStats() (model.DailyStats, bool) {
	return s.days.Get(model.DateKey(s.now().In(s.loc)))
}

// SetLocale switches the report language and returns the effective code.
func (s *Scheduler) SetLocale(code string) string {
	return s.fmt.SetLocale(code)
}

// LocaleCode returns the active report locale.
func (s *Scheduler) LocaleCode() string {
	return s.fmt.Locale().Code
}

// State returns the current report state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReportSentToday reports whether the current day's report was sent.
func (s *Scheduler) ReportSentToday() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// CurrentDay returns the date key of the most recent day seen.
func (s *Scheduler) CurrentDay() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentKey
}
