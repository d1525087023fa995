// Package timegrid maps a calendar day onto the planner's fixed 15 minute
// slot grid and computes where a time range lands on a day row.
package timegrid

import (
	"errors"
	"fmt"
	"time"
)

const (
	SlotMinutes   = 15
	SlotsPerDay   = 96
	MinutesPerDay = 24 * 60
)

// ErrOutOfRange is returned for hours, minutes or slots outside the grid.
var ErrOutOfRange = errors.New("timegrid: out of range")

// Position is the visual placement of a range on a day row, in percent of
// the row width.
type Position struct {
	LeftPercent  float64 `json:"leftPercent"`
	WidthPercent float64 `json:"widthPercent"`
}

// SlotIndex returns hour*4 + minute/15.
func SlotIndex(hour, minute int) (int, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrOutOfRange, hour, minute)
	}
	return hour*(60/SlotMinutes) + minute/SlotMinutes, nil
}

// SlotToTime is the inverse of SlotIndex.
func SlotToTime(slot int) (hour, minute int, err error) {
	if slot < 0 || slot >= SlotsPerDay {
		return 0, 0, fmt.Errorf("%w: slot %d", ErrOutOfRange, slot)
	}
	return slot / (60 / SlotMinutes), (slot % (60 / SlotMinutes)) * SlotMinutes, nil
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SlotStart returns the instant a slot begins on day.
func SlotStart(day time.Time, slot int) (time.Time, error) {
	hour, minute, err := SlotToTime(slot)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location()), nil
}

// VisiblePosition clips [start, end) to the day containing day and returns
// its placement. ok is false when nothing of the range falls on that day.
// Ranges past midnight are truncated at the boundary, not wrapped.
func VisiblePosition(day, start, end time.Time) (pos Position, ok bool) {
	if !end.After(start) {
		return Position{}, false
	}
	dayStart := DayStart(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	clippedStart := start
	if clippedStart.Before(dayStart) {
		clippedStart = dayStart
	}
	clippedEnd := end
	if clippedEnd.After(dayEnd) {
		clippedEnd = dayEnd
	}
	if !clippedEnd.After(clippedStart) {
		return Position{}, false
	}

	left := clippedStart.Sub(dayStart).Minutes() / MinutesPerDay * 100
	width := clippedEnd.Sub(clippedStart).Minutes() / MinutesPerDay * 100
	// 25 hour DST days would otherwise spill past the row.
	if left+width > 100 {
		width = 100 - left
	}
	return Position{LeftPercent: left, WidthPercent: width}, true
}

// DayHours lists the clock hours of one calendar day touched by a range.
type DayHours struct {
	Date  time.Time
	Hours []int
}

// CoveredHours splits [start, end) into the hours it touches per calendar day
// in loc. An hour counts when any part of it lies inside the range.
func CoveredHours(start, end time.Time, loc *time.Location) []DayHours {
	if !end.After(start) {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	start, end = start.In(loc), end.In(loc)

	var out []DayHours
	y, m, d := start.Date()
	cursor := time.Date(y, m, d, start.Hour(), 0, 0, 0, loc)
	for cursor.Before(end) {
		day := DayStart(cursor)
		if len(out) == 0 || !out[len(out)-1].Date.Equal(day) {
			out = append(out, DayHours{Date: day})
		}
		last := &out[len(out)-1]
		h := cursor.Hour()
		if len(last.Hours) == 0 || last.Hours[len(last.Hours)-1] != h {
			last.Hours = append(last.Hours, h)
		}
		cursor = cursor.Add(time.Hour)
	}
	return out
}
