package i18n

import (
	"math"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"solar_report/internal/model"
)

var tokenRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Interpolate replaces {{name}} tokens with values[name]. Tokens without a
// value are left as they are.
func Interpolate(tpl string, values map[string]string) string {
	return tokenRe.ReplaceAllStringFunc(tpl, func(tok string) string {
		if v, ok := values[tok[2:len(tok)-2]]; ok {
			return v
		}
		return tok
	})
}

// FormatNumber renders v with exactly decimals fraction digits using the
// locale's separators. Halves round away from zero. NaN and infinities
// render as zero.
func FormatNumber(l *Locale, v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	// number.Decimal rounds half to even.
	scale := math.Pow10(decimals)
	if r := math.Round(v*scale) / scale; !math.IsInf(r, 0) {
		v = r
	}
	p := message.NewPrinter(l.Tag())
	return p.Sprintf("%v", number.Decimal(v,
		number.MinFractionDigits(decimals),
		number.MaxFractionDigits(decimals)))
}

// Render produces the localized daily report message for d.
func Render(l *Locale, d model.DailyReportData) string {
	return Interpolate(l.T("templates.dailyComplete"), values(l, d))
}

// Summary produces the one-line localized summary for d.
func Summary(l *Locale, d model.DailyReportData) string {
	return Interpolate(l.T("templates.summary"), values(l, d))
}

func values(l *Locale, d model.DailyReportData) map[string]string {
	return map[string]string{
		"energy":     FormatNumber(l, d.EnergyKWh, 1),
		"energyUnit": l.T("kwh"),
		"efficiency": FormatNumber(l, d.EfficiencyPercent, 0),
		"percent":    l.T("percent"),
		"peak":       FormatNumber(l, d.PeakPowerKW, 1),
		"peakUnit":   l.T("kw"),
		"peakTime":   d.PeakTime.Format(l.TimeLayout),
		"hours":      FormatNumber(l, d.ProductionHours, 1),
		"hoursUnit":  l.T("hours"),
		"comparison": formatComparison(l, d.Comparison),
		"weather":    formatWeather(l, d.Weather),
	}
}

func formatComparison(l *Locale, c model.Comparison) string {
	pct := c.Percent
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		pct = 0
	}
	sign := ""
	if pct >= 0 {
		sign = "+"
	}
	key := "belowAverage"
	switch {
	case c.Type == model.CompareYesterday:
		key = "vsYesterday"
	case pct > 0:
		key = "aboveAverage"
	}
	phrase := Interpolate(l.T(key), map[string]string{
		"sign":        sign,
		"percent":     FormatNumber(l, math.Abs(pct), 0),
		"percentUnit": l.T("percent"),
	})
	return Interpolate(l.T("templates.comparison"), map[string]string{"comparison": phrase})
}

func formatWeather(l *Locale, w model.Weather) string {
	if w == "" {
		w = model.WeatherMixed
	}
	return Interpolate(l.T("templates.weather"), map[string]string{"weather": l.T(string(w))})
}

// Formatter renders reports in a switchable active locale.
type Formatter struct {
	mu      sync.RWMutex
	catalog *Catalog
	locale  *Locale
}

// NewFormatter returns a formatter using code, or the default locale if
// code is unknown.
func NewFormatter(c *Catalog, code string) *Formatter {
	return &Formatter{catalog: c, locale: c.Resolve(code)}
}

// SetLocale switches the active locale and returns the code actually in
// use. Unknown codes fall back to the default with a warning.
func (f *Formatter) SetLocale(code string) string {
	l := f.catalog.Resolve(code)
	f.mu.Lock()
	f.locale = l
	f.mu.Unlock()
	if l.Code == code {
		f.catalog.log.Info("Report locale set", zap.String("locale", code))
	}
	return l.Code
}

// Locale returns the active locale.
func (f *Formatter) Locale() *Locale {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.locale
}

func (f *Formatter) Render(d model.DailyReportData) string {
	return Render(f.Locale(), d)
}

func (f *Formatter) Summary(d model.DailyReportData) string {
	return Summary(f.Locale(), d)
}
