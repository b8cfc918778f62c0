package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"solar_report/internal/model"
)

// SampleParser reads a "timestamp,power" CSV log. Timestamps are RFC 3339
// or Unix seconds (fractions allowed).
type SampleParser struct{}

func (p *SampleParser) Parse(r io.Reader) ([]model.Sample, error) {
	return parseCSV(r, []string{"timestamp", "power"}, func(rec []string) (model.Sample, bool, error) {
		ts, err := ParseTimestamp(rec[0])
		if err != nil {
			return model.Sample{}, false, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return model.Sample{}, false, fmt.Errorf("parsing power %q: %w", rec[1], err)
		}
		s, ok := Normalize(v, ts)
		return s, ok, nil
	})
}

// HomeAssistantParser reads a Home Assistant history export
// (entity_id,state,last_changed). Unavailable states are skipped. A
// non-empty EntityID keeps only that entity's rows.
type HomeAssistantParser struct {
	EntityID string
}

func NewHomeAssistantParser(entityID string) *HomeAssistantParser {
	return &HomeAssistantParser{EntityID: entityID}
}

func (p *HomeAssistantParser) Parse(r io.Reader) ([]model.Sample, error) {
	return parseCSV(r, []string{"entity_id", "state", "last_changed"}, func(rec []string) (model.Sample, bool, error) {
		if p.EntityID != "" && rec[0] != p.EntityID {
			return model.Sample{}, false, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			// "unavailable", "unknown" and similar states
			return model.Sample{}, false, nil
		}
		ts, err := ParseTimestamp(rec[2])
		if err != nil {
			return model.Sample{}, false, err
		}
		s, ok := Normalize(v, ts)
		return s, ok, nil
	})
}

// AutoParser picks SampleParser or HomeAssistantParser from the header.
type AutoParser struct {
	EntityID string
}

func (p *AutoParser) Parse(r io.Reader) ([]model.Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	header, _, _ := strings.Cut(string(data), "\n")
	var inner Parser = &SampleParser{}
	if strings.HasPrefix(strings.TrimSpace(header), "entity_id") {
		inner = NewHomeAssistantParser(p.EntityID)
	}
	return inner.Parse(strings.NewReader(string(data)))
}

// ParseTimestamp accepts RFC 3339 (with optional fractional seconds) or Unix
// seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: not RFC 3339 or Unix seconds", s)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// Normalize clamps negative power to zero and drops non-finite values.
// Inverter telemetry reports small negative standby draw at night.
func Normalize(powerW float64, ts time.Time) (model.Sample, bool) {
	if math.IsNaN(powerW) || math.IsInf(powerW, 0) {
		return model.Sample{}, false
	}
	return model.Sample{Time: ts, PowerW: math.Max(0, powerW)}, true
}

func parseCSV(r io.Reader, columns []string, row func([]string) (model.Sample, bool, error)) ([]model.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty input, expected header %s", strings.Join(columns, ","))
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, col := range columns {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("unexpected header column %d: got %q, want %q", i+1, header[i], col)
		}
	}

	var samples []model.Sample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		s, ok, err := row(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			samples = append(samples, s)
		}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}
