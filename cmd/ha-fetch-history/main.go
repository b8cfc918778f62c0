// Command ha-fetch-history downloads the history of a PV power entity from
// Home Assistant into a timestamp,power CSV usable by replay and by the
// server's --history-dir. Re-runs resume from the newest stored sample.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"solar_report/internal/ingest"
	"solar_report/internal/logging"
	"solar_report/internal/model"
)

const maxAttempts = 5

func main() {
	urlFlag := flag.String("url", "", "Home Assistant base URL (overrides HA_URL)")
	tokenFlag := flag.String("token", "", "Long-lived access token (overrides HA_TOKEN)")
	entityFlag := flag.String("entity", "", "PV power entity_id (overrides HA_PV_ENTITY)")
	days := flag.Int("days", 7, "Days to fetch on first run (ignored if output file has data)")
	output := flag.String("output", "history/pv_power.csv", "Output CSV path")
	flag.Parse()

	logger, err := logging.New("info", "console")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	v := loadEnv(".env", logger)
	haURL := resolve(*urlFlag, v, "HA_URL")
	haToken := resolve(*tokenFlag, v, "HA_TOKEN")
	entity := resolve(*entityFlag, v, "HA_PV_ENTITY")
	switch {
	case haURL == "":
		logger.Fatal("HA_URL not set, use -url or set HA_URL in .env")
	case haToken == "":
		logger.Fatal("HA_TOKEN not set, use -token or set HA_TOKEN in .env")
	case entity == "":
		logger.Fatal("PV entity not set, use -entity or set HA_PV_ENTITY in .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f := &fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(haURL, "/"),
		token:   haToken,
		entity:  entity,
		log:     logger,
		sleep:   time.Sleep,
	}
	if err := run(ctx, f, *output, *days, time.Now()); err != nil {
		logger.Fatal("Fetch failed", zap.Error(err))
	}
}

func run(ctx context.Context, f *fetcher, output string, days int, now time.Time) error {
	existing, latest := loadExisting(output)

	var start time.Time
	if !latest.IsZero() {
		start = latest.Add(-time.Minute)
		f.log.Info("Resuming from latest sample", zap.Time("start", start))
	} else {
		start = now.AddDate(0, 0, -days)
		f.log.Info("First run", zap.Int("days", days), zap.Time("start", start))
	}

	fresh, err := f.fetchRange(ctx, start, now)
	if err != nil {
		return err
	}

	merged := mergeSamples(existing, fresh)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := writeCSV(output, merged); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}

	f.log.Info("History written",
		zap.String("output", output),
		zap.Int("samples", len(merged)),
		zap.Int("previous", len(existing)),
		zap.Int("fetched", len(fresh)))
	return nil
}

// loadEnv reads KEY=value pairs from a dotenv file. Process environment
// variables take precedence over the file.
func loadEnv(path string, logger *zap.Logger) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Ignoring unreadable env file", zap.String("path", path), zap.Error(err))
	}
	v.AutomaticEnv()
	return v
}

func resolve(flagVal string, v *viper.Viper, key string) string {
	if flagVal != "" {
		return flagVal
	}
	return v.GetString(key)
}

type fetcher struct {
	client  *http.Client
	baseURL string
	token   string
	entity  string
	log     *zap.Logger
	sleep   func(time.Duration)
}

// fetchRange requests [start, end) one day at a time.
func (f *fetcher) fetchRange(ctx context.Context, start, end time.Time) ([]model.Sample, error) {
	var samples []model.Sample
	for from := start; from.Before(end); from = from.Add(24 * time.Hour) {
		to := from.Add(24 * time.Hour)
		if to.After(end) {
			to = end
		}

		day, err := f.fetchDay(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", from.Format(model.DateKeyLayout), err)
		}
		samples = append(samples, day...)
		f.log.Info("Fetched day", zap.String("date", from.Format(model.DateKeyLayout)), zap.Int("samples", len(day)))

		if to.Before(end) {
			f.sleep(500 * time.Millisecond)
		}
	}
	return samples, nil
}

func (f *fetcher) fetchDay(ctx context.Context, start, end time.Time) ([]model.Sample, error) {
	q := url.Values{}
	q.Set("end_time", end.UTC().Format(time.RFC3339))
	q.Set("filter_entity_id", f.entity)
	endpoint := fmt.Sprintf("%s/api/history/period/%s?%s&minimal_response&no_attributes",
		f.baseURL, url.PathEscape(start.UTC().Format(time.RFC3339)), q.Encode())

	var body []byte
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, err = f.get(ctx, endpoint)
		if err == nil {
			break
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		f.log.Warn("Retrying request", zap.Duration("wait", wait), zap.Error(err))
		f.sleep(wait)
	}
	if err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, err)
	}

	return parseHistoryResponse(body, f.entity)
}

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		// network errors
		return true
	}
	return ae.statusCode == http.StatusTooManyRequests || ae.statusCode >= 500
}

func (f *fetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusUnauthorized:
		return nil, &apiError{statusCode: resp.StatusCode, message: "authentication failed, check HA_TOKEN"}
	default:
		return nil, &apiError{statusCode: resp.StatusCode, message: string(body)}
	}
}

// parseHistoryResponse decodes the history API's array of per-entity
// arrays. With minimal_response only the first state of each entity carries
// its entity_id. States of other entities and non-numeric states such as
// "unavailable" are skipped.
func parseHistoryResponse(data []byte, entity string) ([]model.Sample, error) {
	var outer [][]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	var samples []model.Sample
	for _, history := range outer {
		var current string
		for _, raw := range history {
			var entry struct {
				EntityID    string `json:"entity_id"`
				State       string `json:"state"`
				LastChanged string `json:"last_changed"`
			}
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if entry.EntityID != "" {
				current = entry.EntityID
			}
			if current != entity {
				continue
			}

			v, err := strconv.ParseFloat(entry.State, 64)
			if err != nil {
				continue
			}
			ts, err := ingest.ParseTimestamp(entry.LastChanged)
			if err != nil {
				continue
			}
			if s, ok := ingest.Normalize(v, ts.UTC()); ok {
				samples = append(samples, s)
			}
		}
	}
	return samples, nil
}

// mergeSamples de-duplicates by timestamp, preferring fresh samples, and
// returns the union in time order.
func mergeSamples(existing, fresh []model.Sample) []model.Sample {
	seen := make(map[int64]model.Sample, len(existing)+len(fresh))
	for _, s := range existing {
		seen[s.Time.UnixNano()] = s
	}
	for _, s := range fresh {
		seen[s.Time.UnixNano()] = s
	}

	merged := make([]model.Sample, 0, len(seen))
	for _, s := range seen {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	return merged
}

// loadExisting reads a previous output file. A missing or unreadable file
// starts a fresh download.
func loadExisting(path string) ([]model.Sample, time.Time) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}
	}
	defer f.Close()

	samples, err := (&ingest.SampleParser{}).Parse(f)
	if err != nil || len(samples) == 0 {
		return nil, time.Time{}
	}
	return samples, samples[len(samples)-1].Time
}

func writeCSV(path string, samples []model.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "power"}); err != nil {
		return err
	}
	for _, s := range samples {
		if err := w.Write([]string{
			s.Time.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(s.PowerW, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
