package store

import (
	"sort"
	"sync"
	"time"

	"solar_report/internal/model"
)

// weekDays is how many preceding days feed the weekly average.
const weekDays = 7

// DayStore holds daily statistics in memory, keyed by date key.
// Entries are never removed implicitly; callers may Prune old days.
type DayStore struct {
	mu   sync.RWMutex
	days map[string]*model.DailyStats
}

func New() *DayStore {
	return &DayStore{
		days: make(map[string]*model.DailyStats),
	}
}

// GetOrCreate returns a snapshot of the stats for dateKey, creating a
// zero-valued entry if none exists. The bool reports whether it was created.
func (s *DayStore) GetOrCreate(dateKey string, first time.Time) (model.DailyStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, created := s.getOrCreate(dateKey, first)
	return d.Clone(), created
}

// Update applies fn to the live stats for dateKey under the store's write
// lock, creating the entry first if needed. The bool reports whether it was created.
func (s *DayStore) Update(dateKey string, first time.Time, fn func(*model.DailyStats)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, created := s.getOrCreate(dateKey, first)
	fn(d)
	return created
}

// getOrCreate must be called with mu held.
func (s *DayStore) getOrCreate(dateKey string, first time.Time) (*model.DailyStats, bool) {
	if d, ok := s.days[dateKey]; ok {
		return d, false
	}
	d := model.NewDailyStats(dateKey, first)
	s.days[dateKey] = d
	return d, true
}

// Get returns a snapshot of the stats stored for dateKey.
func (s *DayStore) Get(dateKey string) (model.DailyStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.days[dateKey]
	if !ok {
		return model.DailyStats{}, false
	}
	return d.Clone(), true
}

// Put stores a copy of stats under its date key, replacing any existing entry.
// Used to seed history.
func (s *DayStore) Put(stats model.DailyStats) {
	cp := stats.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[stats.DateKey] = &cp
}

// Yesterday returns the stats of the calendar day before date.
func (s *DayStore) Yesterday(date time.Time) (model.DailyStats, bool) {
	return s.Get(model.DateKey(date.AddDate(0, 0, -1)))
}

// WeeklyAverageEnergy returns the mean energy (Wh) of the up to seven days
// preceding date that produced anything. Returns 0 if none did.
func (s *DayStore) WeeklyAverageEnergy(date time.Time) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	var n int
	for i := 1; i <= weekDays; i++ {
		d, ok := s.days[model.DateKey(date.AddDate(0, 0, -i))]
		if !ok || d.EnergyWh <= 0 {
			continue
		}
		total += d.EnergyWh
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Keys returns all stored date keys in ascending order.
func (s *DayStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.days))
	for k := range s.days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Prune removes every day whose key sorts before the given key and returns
// how many were removed.
func (s *DayStore) Prune(before string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.days {
		if k < before {
			delete(s.days, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored days.
func (s *DayStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.days)
}
