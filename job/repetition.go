package job

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/phenobot/carousel/errors"
)

// Mode selects how repetition_value is interpreted.
type Mode string

const (
	// ModeEvery repeats every N hours from the start timestamp.
	ModeEvery Mode = "every"
	// ModeAt fires at fixed hours of day, every day in the window.
	ModeAt Mode = "at"
)

// Repetition is the resolved repetition rule. The jobs file historically
// accepted an integer, a comma-separated string or a list for
// repetition_value; the variant is resolved here once, at decode time, and
// never re-sniffed.
type Repetition struct {
	Mode          Mode
	IntervalHours int   // ModeEvery
	Hours         []int // ModeAt, sorted, deduplicated, 0-23
}

// Every builds an interval repetition.
func Every(hours int) Repetition {
	return Repetition{Mode: ModeEvery, IntervalHours: hours}
}

// At builds an hours-of-day repetition.
func At(hours ...int) Repetition {
	return Repetition{Mode: ModeAt, Hours: normalizeHours(hours)}
}

// ParseRepetition resolves the repetition mode and raw JSON value. Unknown
// modes yield an empty schedule rather than an error.
func ParseRepetition(mode string, value json.RawMessage) (Repetition, error) {
	switch Mode(mode) {
	case ModeEvery:
		hours, err := parseSingleInt(value)
		if err != nil {
			return Repetition{}, errors.Wrap(err, "interval hours")
		}
		return Every(hours), nil
	case ModeAt:
		hours, err := parseHourSet(value)
		if err != nil {
			return Repetition{}, errors.Wrap(err, "hours of day")
		}
		return Repetition{Mode: ModeAt, Hours: hours}, nil
	default:
		return Repetition{Mode: Mode(mode)}, nil
	}
}

// valueJSON renders the canonical repetition_value for the jobs file.
func (r Repetition) valueJSON() (json.RawMessage, error) {
	switch r.Mode {
	case ModeEvery:
		return json.Marshal(r.IntervalHours)
	case ModeAt:
		hours := r.Hours
		if hours == nil {
			hours = []int{}
		}
		return json.Marshal(hours)
	default:
		return json.Marshal(nil)
	}
}

// parseSingleInt accepts a JSON number or a numeric string.
func parseSingleInt(value json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(value, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, errors.Wrapf(err, "not a number: %q", s)
		}
		return n, nil
	}
	return 0, errors.Newf("unsupported value: %s", string(value))
}

// parseHourSet accepts a single integer, a delimited string ("8, 16") or an
// explicit list, and normalizes to a sorted set of hours 0-23.
func parseHourSet(value json.RawMessage) ([]int, error) {
	var single int
	if err := json.Unmarshal(value, &single); err == nil {
		return normalizeHours([]int{single}), nil
	}

	var list []int
	if err := json.Unmarshal(value, &list); err == nil {
		return normalizeHours(list), nil
	}

	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		parts := strings.Split(strings.ReplaceAll(s, " ", ""), ",")
		hours := make([]int, 0, len(parts))
		for _, p := range parts {
			if p == "" {
				continue
			}
			h, err := strconv.Atoi(p)
			if err != nil {
				return nil, errors.Wrapf(err, "not an hour: %q", p)
			}
			hours = append(hours, h)
		}
		return normalizeHours(hours), nil
	}

	return nil, errors.Newf("unsupported value: %s", string(value))
}

func normalizeHours(hours []int) []int {
	seen := make(map[int]bool, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}
