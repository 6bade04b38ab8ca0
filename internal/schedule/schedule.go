// Package schedule maps wall-clock time to the call window a run processes.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"

	"callscore-go/internal/types"
)

// BatchKeyLayout formats the calendar date that names a batch.
const BatchKeyLayout = "02.01.2006"

// Selector knows the trigger hours of the business day.
type Selector struct {
	loc   *time.Location
	hours []int
}

func NewSelector(timezone string, triggerHours []int) (*Selector, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if len(triggerHours) == 0 {
		return nil, errors.New("no trigger hours")
	}
	hours := append([]int(nil), triggerHours...)
	sort.Ints(hours)
	return &Selector{loc: loc, hours: hours}, nil
}

func (s *Selector) Location() *time.Location { return s.loc }

// Select returns the window for now when now falls in a trigger hour.
// Outside trigger hours it returns false and the run must be skipped.
func (s *Selector) Select(now time.Time) (types.CallWindow, bool) {
	local := now.In(s.loc)
	for i, h := range s.hours {
		if local.Hour() == h {
			return s.window(local, i), true
		}
	}
	return types.CallWindow{}, false
}

// Force returns the window of the latest trigger at or before now. Before the
// first trigger of the day that is the last trigger of the previous day.
func (s *Selector) Force(now time.Time) types.CallWindow {
	local := now.In(s.loc)
	for i := len(s.hours) - 1; i >= 0; i-- {
		if local.Hour() >= s.hours[i] {
			return s.window(local, i)
		}
	}
	return s.window(local.AddDate(0, 0, -1), len(s.hours)-1)
}

func (s *Selector) window(day time.Time, i int) types.CallWindow {
	end := s.at(day, s.hours[i])
	var start time.Time
	if i == 0 {
		start = s.at(day.AddDate(0, 0, -1), s.hours[len(s.hours)-1])
	} else {
		start = s.at(day, s.hours[i-1])
	}
	return types.CallWindow{
		Start:    start,
		End:      end,
		BatchKey: end.Format(BatchKeyLayout),
	}
}

func (s *Selector) at(day time.Time, hour int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, s.loc)
}
