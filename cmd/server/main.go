package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solar_report/internal/accumulator"
	"solar_report/internal/config"
	"solar_report/internal/delivery"
	"solar_report/internal/httpapi"
	"solar_report/internal/i18n"
	"solar_report/internal/ingest"
	"solar_report/internal/logging"
	"solar_report/internal/metrics"
	"solar_report/internal/model"
	"solar_report/internal/report"
	"solar_report/internal/scheduler"
	"solar_report/internal/store"
	"solar_report/internal/ws"
)

const housekeepingInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml or ./configs/config.yaml)")
	historyDir := flag.String("history-dir", "", "directory of CSV sample logs used to seed the day store")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *historyDir, *frontendDir); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, historyDir, frontendDir string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var extra []fs.FS
	if cfg.Reports.LocalesDir != "" {
		extra = append(extra, os.DirFS(cfg.Reports.LocalesDir))
	}
	catalog, err := i18n.NewCatalog(logger, extra...)
	if err != nil {
		return fmt.Errorf("loading locales: %w", err)
	}

	days := store.New()
	if historyDir != "" {
		n, err := loadCSVs(historyDir, loc, days, logger)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		logger.Info("History loaded", zap.Int("samples", n), zap.Int("days", days.Len()))
	}

	m := metrics.New()
	hub := ws.NewHub(logger)
	bridge := ws.NewBridge(hub, logger)

	// The scheduler is the subscriber's target, but it needs the
	// subscriber's client for publishing. Messages only flow after Connect.
	var sched *scheduler.Scheduler
	sub := ingest.NewSubscriber(ingest.MQTTConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Topic:    cfg.MQTT.PowerTopic,
	}, ingest.IngesterFunc(func(powerW float64, ts time.Time) {
		sched.Ingest(powerW, ts)
	}), m, logger)

	sinks := delivery.Fanout{m, bridge}
	var onPulse func(bool)
	if client := sub.Client(); client != nil {
		publisher := delivery.NewMQTTSink(client, cfg.MQTT.ReportTopic, m, logger)
		sinks = append(sinks, publisher)
		onPulse = publisher.PublishPulse
	}
	pulse := delivery.NewPulse(cfg.PulseDuration(), onPulse)
	defer pulse.Stop()
	sinks = append(sinks, pulse)

	sched = scheduler.New(scheduler.Config{
		Enabled:    cfg.Reports.Enabled,
		ReportTime: cfg.Reports.ReportTime,
		Location:   loc,
	}, days, report.NewGenerator(days, cfg.Reports.EstimatedDailyCapacityKWh), i18n.NewFormatter(catalog, cfg.Reports.Language), sinks,
		scheduler.WithLogger(logger),
		scheduler.WithObserver(scheduler.Observers{m, bridge}))

	logger.Info("Report scheduler configured",
		zap.Bool("enabled", cfg.Reports.Enabled),
		zap.String("locale", sched.LocaleCode()),
		zap.Stringer("report_time", sched.ReportTime()),
		zap.String("time_zone", loc.String()))

	if sub.Client() != nil {
		if err := sub.Connect(); err != nil {
			return err
		}
		defer sub.Close()
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTT.Broker))
	} else {
		logger.Warn("No MQTT broker configured, live ingestion disabled")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Controller: sched,
		Locales:    catalog.Codes(),
		Pulse:      pulse,
		Metrics:    m.Handler(),
		WebSocket:  ws.NewHandler(hub, sched, logger),
		Logger:     logger,
	})
	serveFrontend(router, frontendDir, logger)

	go housekeeping(ctx, housekeepingInterval, func(now time.Time) {
		if hub.ClientCount() > 0 {
			if stats, ok := sched.TodayStats(); ok {
				bridge.OnStats(stats)
			}
		}
		if n := pruneHistory(days, now.In(loc), cfg.Reports.RetentionDays); n > 0 {
			logger.Info("Pruned day store", zap.Int("days", n))
		}
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serveFrontend mounts the dashboard build, if present, behind the API routes.
func serveFrontend(r *mux.Router, dir string, logger *zap.Logger) {
	if _, err := os.Stat(dir); err != nil {
		return
	}
	logger.Info("Serving frontend", zap.String("dir", dir))
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
}

// housekeeping calls fn every interval until ctx is done.
func housekeeping(ctx context.Context, interval time.Duration, fn func(time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}

// pruneHistory drops days older than the retention window. Zero retention
// keeps everything.
func pruneHistory(days *store.DayStore, now time.Time, retentionDays int) int {
	if retentionDays <= 0 {
		return 0
	}
	return days.Prune(model.DateKey(now.AddDate(0, 0, -retentionDays)))
}

// loadCSVs seeds the day store from every CSV sample log in dir. Samples are
// folded straight into per-day statistics so that historical days never
// produce reports. Returns the number of samples loaded.
func loadCSVs(dir string, loc *time.Location, days *store.DayStore, logger *zap.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading history directory: %w", err)
	}

	var samples []model.Sample
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("opening %s: %w", path, err)
		}

		parsed, err := (&ingest.AutoParser{}).Parse(f)
		f.Close()
		if err != nil {
			return 0, fmt.Errorf("parsing %s: %w", path, err)
		}
		logger.Debug("Loaded history file", zap.String("file", entry.Name()), zap.Int("samples", len(parsed)))
		samples = append(samples, parsed...)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	for _, s := range samples {
		ts := s.Time.In(loc)
		powerW := s.PowerW
		days.Update(model.DateKey(ts), ts, func(d *model.DailyStats) {
			accumulator.Update(d, powerW, ts)
		})
	}
	return len(samples), nil
}
