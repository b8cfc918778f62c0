package delivery

import (
	"sync"
	"time"

	"solar_report/internal/model"
)

// DefaultPulseDuration is how long the pulse stays active after a report.
const DefaultPulseDuration = 5 * time.Second

// Pulse is a momentary flag: it turns on when a report is delivered and
// turns itself off after a delay. Home automation systems bind it to a
// motion-style trigger.
type Pulse struct {
	mu       sync.Mutex
	active   bool
	gen      uint64
	timer    *time.Timer
	duration time.Duration
	onChange func(active bool)
}

// NewPulse returns a pulse that stays on for d. onChange, if non-nil, is
// called on every transition, without the pulse's lock held.
func NewPulse(d time.Duration, onChange func(active bool)) *Pulse {
	if d <= 0 {
		d = DefaultPulseDuration
	}
	return &Pulse{duration: d, onChange: onChange}
}

func (p *Pulse) OnReport(string, model.DailyReportData) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
	}
	p.active = true
	p.timer = nil
	p.mu.Unlock()

	// The reset timer is armed only after the "on" transition is delivered
	// so onChange never sees false before true.
	p.notify(true)

	p.mu.Lock()
	if gen == p.gen {
		p.timer = time.AfterFunc(p.duration, func() { p.reset(gen) })
	}
	p.mu.Unlock()
}

func (p *Pulse) reset(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.timer = nil
	p.mu.Unlock()

	p.notify(false)
}

func (p *Pulse) notify(active bool) {
	if p.onChange != nil {
		p.onChange(active)
	}
}

// Active reports whether the pulse is on.
func (p *Pulse) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Duration returns how long the pulse stays on.
func (p *Pulse) Duration() time.Duration {
	return p.duration
}

// Stop cancels a pending reset and turns the pulse off without notifying.
func (p *Pulse) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.active = false
}
