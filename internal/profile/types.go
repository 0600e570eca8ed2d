package profile

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ClockTime is a time of day in the profile owner's local timezone,
// stored as minutes since midnight.
type ClockTime int

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalJSON renders the wire format "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid clock time %s", s)
	}
	parsed, err := ParseClockTime(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Scan reads the "HH:MM" TEXT column representation.
func (c *ClockTime) Scan(value any) error {
	switch v := value.(type) {
	case string:
		if v == "" {
			*c = 0
			return nil
		}
		parsed, err := ParseClockTime(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case []byte:
		return c.Scan(string(v))
	case nil:
		*c = 0
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", value)
	}
}

// Value writes the "HH:MM" TEXT column representation.
func (c ClockTime) Value() (driver.Value, error) {
	return c.String(), nil
}

// At extracts the clock time from an instant already converted to the
// profile's location.
func At(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// DayWindow is one working-hours entry: a weekday plus a local interval.
// Like the availability window, To < From wraps midnight.
type DayWindow struct {
	Day  time.Weekday `json:"day"`
	From ClockTime    `json:"from"`
	To   ClockTime    `json:"to"`
}

// Profile is the matchable slice of a user record. It is owned and mutated
// by the platform's profile service; this subsystem only reads it.
type Profile struct {
	UserID        string      `json:"user_id"`
	AvailableFrom ClockTime   `json:"available_from"`
	AvailableTo   ClockTime   `json:"available_to"`
	WorkingHours  []DayWindow `json:"working_hours"`
	Timezone      string      `json:"timezone"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// WrapsMidnight reports whether the availability window crosses midnight
// (e.g. 22:00-06:00). Such windows are treated as circular intervals,
// never reinterpreted as empty.
func (p *Profile) WrapsMidnight() bool {
	return p.AvailableTo < p.AvailableFrom
}

// Location resolves the profile's IANA timezone.
func (p *Profile) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}

// Contains reports whether the local clock time falls inside the
// availability window, handling the midnight wraparound case.
func (p *Profile) Contains(c ClockTime) bool {
	if p.WrapsMidnight() {
		return c >= p.AvailableFrom || c <= p.AvailableTo
	}
	return c >= p.AvailableFrom && c <= p.AvailableTo
}

// RemainingWindow returns how long until the availability window closes,
// measured from the given local clock time. Zero when outside the window.
func (p *Profile) RemainingWindow(c ClockTime) time.Duration {
	if !p.Contains(c) {
		return 0
	}
	minutes := int(p.AvailableTo) - int(c)
	if minutes < 0 {
		// wrapped window, closing time is tomorrow
		minutes += 24 * 60
	}
	return time.Duration(minutes) * time.Minute
}

// WorkingOn reports whether a working-hours entry covers the given weekday
// and local clock time. An entry wrapping midnight also covers the early
// hours of the following day.
func (p *Profile) WorkingOn(day time.Weekday, c ClockTime) bool {
	for _, w := range p.WorkingHours {
		if w.To < w.From {
			if w.Day == day && c >= w.From {
				return true
			}
			if (w.Day+1)%7 == day && c <= w.To {
				return true
			}
			continue
		}
		if w.Day == day && c >= w.From && c <= w.To {
			return true
		}
	}
	return false
}

// Empty reports whether the profile carries no usable availability data.
func (p *Profile) Empty() bool {
	return p.Timezone == "" || (p.AvailableFrom == 0 && p.AvailableTo == 0 && len(p.WorkingHours) == 0)
}
