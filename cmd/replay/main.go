// Command replay feeds a recorded power log through the report scheduler and
// prints every daily report it produces.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"solar_report/internal/delivery"
	"solar_report/internal/i18n"
	"solar_report/internal/ingest"
	"solar_report/internal/logging"
	"solar_report/internal/model"
	"solar_report/internal/report"
	"solar_report/internal/scheduler"
	"solar_report/internal/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("replay: %v", err)
	}
}

type options struct {
	input      string
	entity     string
	language   string
	reportTime string
	capacity   float64
	timeZone   string
	force      bool
	asJSON     bool
	logLevel   string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.StringVar(&o.input, "input", "-", "CSV sample log (timestamp,power or Home Assistant export); - reads stdin")
	fs.StringVar(&o.entity, "entity", "", "Home Assistant entity_id to keep")
	fs.StringVar(&o.language, "language", "en", "report locale")
	fs.StringVar(&o.reportTime, "report-time", scheduler.AnchorSunsetPlus30, "sunset, sunset+30, sunset+60 or HH:MM")
	fs.Float64Var(&o.capacity, "capacity", report.DefaultDailyCapacityKWh, "estimated daily capacity in kWh")
	fs.StringVar(&o.timeZone, "tz", "UTC", "IANA time zone for day boundaries")
	fs.BoolVar(&o.force, "force", false, "trigger a manual report for the last day after replay")
	fs.BoolVar(&o.asJSON, "json", false, "print reports as JSON envelopes")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(o.logLevel, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	loc, err := time.LoadLocation(o.timeZone)
	if err != nil {
		return fmt.Errorf("loading time zone: %w", err)
	}

	samples, err := readSamples(o.input, o.entity, stdin)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.New("no samples in input")
	}

	catalog, err := i18n.NewCatalog(logger)
	if err != nil {
		return err
	}

	out := &printer{w: stdout, asJSON: o.asJSON}
	days := store.New()
	last := samples[len(samples)-1].Time
	sched := scheduler.New(scheduler.Config{
		Enabled:    true,
		ReportTime: o.reportTime,
		Location:   loc,
	}, days, report.NewGenerator(days, o.capacity), i18n.NewFormatter(catalog, o.language), out,
		scheduler.WithLogger(logger),
		scheduler.WithClock(func() time.Time { return last }))

	for _, s := range samples {
		sched.Ingest(s.PowerW, s.Time)
	}
	logger.Info("Replay finished",
		zap.Int("samples", len(samples)),
		zap.Int("days", days.Len()),
		zap.Int("reports", out.count))

	if o.force && !sched.ReportSentToday() {
		if !sched.TriggerManualReport() {
			return errors.New("no statistics for the last day")
		}
	}
	return out.err
}

func readSamples(path, entity string, stdin io.Reader) ([]model.Sample, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	samples, err := (&ingest.AutoParser{EntityID: entity}).Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return samples, nil
}

// printer writes each report to w, one per line block.
type printer struct {
	w      io.Writer
	asJSON bool
	count  int
	err    error
}

func (p *printer) OnReport(message string, data model.DailyReportData) {
	if p.err != nil {
		return
	}
	p.count++
	if p.asJSON {
		p.err = json.NewEncoder(p.w).Encode(delivery.Envelope{Message: message, Data: data})
		return
	}
	_, p.err = fmt.Fprintf(p.w, "[%s] %s\n", data.DateKey, message)
}
