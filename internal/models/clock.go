package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinutesPerDay is the exclusive upper bound of a Clock, except for the end-of-day marker.
const MinutesPerDay = 24 * 60

// Clock is a civil time of day with minute resolution, counted from midnight.
// 24:00 is accepted as an end-of-day marker for closing times.
type Clock int

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ClockOf returns the wall-clock time of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q, expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if minute < 0 || minute > 59 || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time out of range: %q", s)
	}

	return NewClock(hour, minute), nil
}

// MustClock is ParseClock for literals; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockPtr parses s into a *Clock; an empty string yields nil.
func ClockPtr(s string) (*Clock, error) {
	if s == "" {
		return nil, nil
	}
	c, err := ParseClock(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int { return int(c) }

// Add shifts the clock by the given number of minutes. The result is not wrapped.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

// On places the clock on the civil date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (c *Clock) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseClock(node.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeRange is a half-open [Start, End) window within one day.
type TimeRange struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Empty reports whether the range contains no minutes.
func (r TimeRange) Empty() bool {
	return r.End <= r.Start
}

// Minutes returns the length of the range.
func (r TimeRange) Minutes() int {
	if r.Empty() {
		return 0
	}
	return int(r.End - r.Start)
}

// Overlaps uses half-open semantics: touching ranges do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Contains reports whether other lies entirely within r.
func (r TimeRange) Contains(other TimeRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

// Clip intersects r with bounds. The result may be empty.
func (r TimeRange) Clip(bounds TimeRange) TimeRange {
	out := r
	if out.Start < bounds.Start {
		out.Start = bounds.Start
	}
	if out.End > bounds.End {
		out.End = bounds.End
	}
	return out
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}
