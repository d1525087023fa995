package scheduler

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/timegrid"
)

// HourRange is the half-open hour interval [From, To) within a day.
type HourRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Validate checks 0 <= From < To <= 24.
func (r HourRange) Validate() error {
	if r.From < 0 || r.To > 24 || r.From >= r.To {
		return fmt.Errorf("invalid hour range [%d, %d)", r.From, r.To)
	}
	return nil
}

// Hours lists every hour in the range.
func (r HourRange) Hours() []int {
	if r.Validate() != nil {
		return nil
	}
	out := make([]int, 0, r.To-r.From)
	for h := r.From; h < r.To; h++ {
		out = append(out, h)
	}
	return out
}

// AvailabilityIndex holds, per machine and date, the hours a machine is off.
type AvailabilityIndex struct {
	mu    sync.RWMutex
	hours map[string]map[string]map[int]struct{}
}

// NewAvailabilityIndex returns an empty index.
func NewAvailabilityIndex() *AvailabilityIndex {
	return &AvailabilityIndex{hours: make(map[string]map[string]map[int]struct{})}
}

func dateKey(date time.Time) string {
	return date.Format(models.DateLayout)
}

// Put replaces the known unavailable hours of a machine on a date.
func (a *AvailabilityIndex) Put(machineID string, date time.Time, hours []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set := make(map[int]struct{}, len(hours))
	for _, h := range hours {
		set[h] = struct{}{}
	}
	a.dayLocked(machineID)[dateKey(date)] = set
}

func (a *AvailabilityIndex) dayLocked(machineID string) map[string]map[int]struct{} {
	days, ok := a.hours[machineID]
	if !ok {
		days = make(map[string]map[int]struct{})
		a.hours[machineID] = days
	}
	return days
}

// IsAvailable reports whether none of hours is marked unavailable.
func (a *AvailabilityIndex) IsAvailable(machineID string, date time.Time, hours []int) bool {
	return len(a.Blocked(machineID, date, hours)) == 0
}

// Blocked returns the subset of hours marked unavailable, sorted.
func (a *AvailabilityIndex) Blocked(machineID string, date time.Time, hours []int) []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set := a.hours[machineID][dateKey(date)]
	var blocked []int
	for _, h := range hours {
		if _, off := set[h]; off && !slices.Contains(blocked, h) {
			blocked = append(blocked, h)
		}
	}
	slices.Sort(blocked)
	return blocked
}

// Unavailable returns the sorted unavailable hours of a machine on a date.
func (a *AvailabilityIndex) Unavailable(machineID string, date time.Time) []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedHours(a.hours[machineID][dateKey(date)])
}

// SetUnavailable marks every hour of r unavailable on every date in the
// inclusive range [from, to]. Re-marking an hour is a no-op. It returns the
// resulting record of each touched date.
func (a *AvailabilityIndex) SetUnavailable(machineID string, from, to time.Time, r HourRange) ([]models.AvailabilityRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	from, to = timegrid.DayStart(from), timegrid.DayStart(to)
	if to.Before(from) {
		return nil, fmt.Errorf("date range ends before it starts: %s > %s", dateKey(from), dateKey(to))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	days := a.dayLocked(machineID)
	var records []models.AvailabilityRecord
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := dateKey(d)
		set, ok := days[key]
		if !ok {
			set = make(map[int]struct{})
			days[key] = set
		}
		for h := r.From; h < r.To; h++ {
			set[h] = struct{}{}
		}
		records = append(records, models.AvailabilityRecord{
			MachineID:        machineID,
			Date:             key,
			UnavailableHours: sortedHours(set),
		})
	}
	return records, nil
}

func sortedHours(set map[int]struct{}) models.Hours {
	out := make(models.Hours, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
