// Package duration parses punishment duration strings and splits remaining
// time into the day/hour/minute/second parts used by message templates.
package duration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for malformed duration strings.
var ErrInvalid = errors.New("invalid duration")

// Calendar approximations used by the "mo" and "y" units.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var units = map[string]time.Duration{
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  Day,
	"w":  Week,
	"mo": Month,
	"y":  Year,
}

// Parse converts strings such as "10m", "1d12h" or "2mo" into a duration.
// Units are s, m, h, d, w, mo and y; matching is case-insensitive and
// segments are summed. Totals that are zero or do not fit a time.Duration
// are rejected.
func Parse(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("duration: %w: empty", ErrInvalid)
	}

	var total time.Duration
	for rest := s; rest != ""; {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("duration: %w: %q", ErrInvalid, s)
		}
		n, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration: %w: %q", ErrInvalid, s)
		}
		rest = rest[i:]

		j := 0
		for j < len(rest) && (rest[j] < '0' || rest[j] > '9') {
			j++
		}
		unit, ok := units[rest[:j]]
		if !ok {
			return 0, fmt.Errorf("duration: %w: unknown unit %q in %q", ErrInvalid, rest[:j], s)
		}
		rest = rest[j:]
		if n > int64(math.MaxInt64-total)/int64(unit) {
			return 0, fmt.Errorf("duration: %w: %q is out of range", ErrInvalid, s)
		}
		total += time.Duration(n) * unit
	}
	if total == 0 {
		return 0, fmt.Errorf("duration: %w: %q is zero", ErrInvalid, s)
	}
	return total, nil
}

// CeilDiv divides x by y rounding towards positive infinity.
func CeilDiv(x, y int64) int64 {
	q := x / y
	if x%y != 0 && (x < 0) == (y < 0) {
		q++
	}
	return q
}

// Unit is the largest unit shown when formatting a remaining time.
type Unit int

const (
	Seconds Unit = iota
	Minutes
	Hours
	Days
)

// String returns the template suffix letter for the unit.
func (u Unit) String() string {
	return [...]string{"S", "M", "H", "D"}[u]
}

// Split chooses the largest unit for a number of seconds and returns the
// template parameters for it. Each part is given twice: once as a single
// letter ("M", "1") and once doubled and zero padded ("MM", "01").
func Split(seconds int64) (Unit, []string) {
	var unit Unit
	var parts []part
	switch {
	case seconds >= 24*60*60:
		unit = Days
		parts = []part{
			{"D", seconds / 60 / 60 / 24},
			{"H", seconds / 60 / 60 % 24},
			{"M", seconds / 60 % 60},
			{"S", seconds % 60},
		}
	case seconds >= 60*60:
		unit = Hours
		parts = []part{
			{"H", seconds / 60 / 60},
			{"M", seconds / 60 % 60},
			{"S", seconds % 60},
		}
	case seconds >= 60:
		unit = Minutes
		parts = []part{
			{"M", seconds / 60},
			{"S", seconds % 60},
		}
	default:
		unit = Seconds
		parts = []part{{"S", seconds}}
	}

	params := make([]string, 0, len(parts)*4)
	for _, p := range parts {
		params = append(params, p.name, strconv.FormatInt(p.value, 10))
	}
	for _, p := range parts {
		params = append(params, p.name+p.name, fmt.Sprintf("%02d", p.value))
	}
	return unit, params
}

type part struct {
	name  string
	value int64
}
