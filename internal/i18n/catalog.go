// Package i18n holds the localized message catalog and renders daily reports.
//
// Each locale is one complete YAML file: a flat strings map plus a nested
// templates map. Partial locales are rejected at load time, so every lookup
// against a loaded locale is guaranteed to find its key.
package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultLocale is used whenever an unknown locale is requested.
const DefaultLocale = "en"

//go:embed locales/*.yaml
var embedded embed.FS

// RequiredStrings lists the keys every locale must define.
var RequiredStrings = []string{
	"energyGenerated", "peakPower", "productionHours", "efficiency",
	"dailySummaryTitle", "productionComplete",
	"excellentDay", "goodDay", "averageDay", "poorDay", "noProduction",
	"vsYesterday", "aboveAverage", "belowAverage", "newRecord",
	"sunny", "partlyCloudy", "cloudy", "mixed",
	"peakAt", "hoursOfSun",
	"kwh", "kw", "hours", "percent",
}

// RequiredTemplates lists the templates every locale must define.
var RequiredTemplates = []string{"dailyComplete", "summary", "comparison", "weather"}

// Locale is one language's complete template set.
type Locale struct {
	Code       string            `yaml:"-"`
	Name       string            `yaml:"name"`
	TimeLayout string            `yaml:"time_layout"`
	Strings    map[string]string `yaml:"strings"`
	Templates  map[string]string `yaml:"templates"`

	tag language.Tag
}

// T looks up a string by key. Keys of the form "templates.<name>" address
// the templates map. A missing key returns the key itself.
func (l *Locale) T(key string) string {
	if name, ok := strings.CutPrefix(key, "templates."); ok {
		if v, ok := l.Templates[name]; ok {
			return v
		}
		return key
	}
	if v, ok := l.Strings[key]; ok {
		return v
	}
	return key
}

// Tag returns the language tag used for number formatting.
func (l *Locale) Tag() language.Tag {
	return l.tag
}

func (l *Locale) validate() error {
	var missing []string
	if l.TimeLayout == "" {
		missing = append(missing, "time_layout")
	}
	for _, k := range RequiredStrings {
		if _, ok := l.Strings[k]; !ok {
			missing = append(missing, k)
		}
	}
	for _, k := range RequiredTemplates {
		if _, ok := l.Templates[k]; !ok {
			missing = append(missing, "templates."+k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("locale %s is incomplete, missing %s", l.Code, strings.Join(missing, ", "))
	}
	return nil
}

// Catalog maps locale codes to their template sets. It is immutable after
// construction and safe for concurrent use.
type Catalog struct {
	locales map[string]*Locale
	log     *zap.Logger
}

// NewCatalog loads the built-in locales, then any locale files found in
// extra. A locale in extra replaces the built-in one with the same code.
func NewCatalog(log *zap.Logger, extra ...fs.FS) (*Catalog, error) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, err
	}
	c, err := LoadCatalog(sub, log)
	if err != nil {
		return nil, fmt.Errorf("built-in locales: %w", err)
	}
	for _, fsys := range extra {
		locales, err := readLocales(fsys)
		if err != nil {
			return nil, err
		}
		for code, l := range locales {
			c.locales[code] = l
			c.log.Info("Loaded locale", zap.String("locale", code), zap.String("name", l.Name))
		}
	}
	return c, nil
}

// LoadCatalog reads every *.yaml file in fsys as a locale named after the
// file. The default locale must be present.
func LoadCatalog(fsys fs.FS, log *zap.Logger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	locales, err := readLocales(fsys)
	if err != nil {
		return nil, err
	}
	if _, ok := locales[DefaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %q not found", DefaultLocale)
	}
	return &Catalog{locales: locales, log: log}, nil
}

func readLocales(fsys fs.FS) (map[string]*Locale, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	locales := make(map[string]*Locale, len(files))
	for _, name := range files {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		l, err := decodeLocale(strings.TrimSuffix(path.Base(name), ".yaml"), b)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		locales[l.Code] = l
	}
	return locales, nil
}

func decodeLocale(code string, b []byte) (*Locale, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var l Locale
	if err := dec.Decode(&l); err != nil {
		return nil, err
	}
	l.Code = code
	tag, err := language.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("locale code %q: %w", code, err)
	}
	l.tag = tag
	if err := l.validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Lookup returns the locale for code without falling back.
func (c *Catalog) Lookup(code string) (*Locale, bool) {
	l, ok := c.locales[code]
	return l, ok
}

// Resolve returns the locale for code, or the default locale with a warning
// if code is unknown.
func (c *Catalog) Resolve(code string) *Locale {
	if l, ok := c.locales[code]; ok {
		return l
	}
	c.log.Warn("Locale not supported, falling back to default",
		zap.String("locale", code), zap.String("default", DefaultLocale))
	return c.locales[DefaultLocale]
}

// Codes returns the supported locale codes in sorted order.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.locales))
	for code := range c.locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
