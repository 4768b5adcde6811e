package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Duration is a time.Duration that supports human-readable parsing.
// It extends Go's standard duration format with:
//   - d: days (24 hours)
//   - w: weeks (7 days)
//
// Examples: "7d", "2w", "1w2d12h", "720h".
//
// Implements encoding.TextUnmarshaler for Viper/YAML support and
// json.Unmarshaler for JSON configuration files.
type Duration time.Duration

// ParseDuration parses a human-readable duration string, accepting the
// standard Go format plus 'd' (days) and 'w' (weeks) units.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// Rewrite w/d units into hours, then hand off to time.ParseDuration.
	var out strings.Builder
	var num strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r) || r == '.' || r == '-' || r == '+':
			num.WriteRune(r)
		case r == 'w' || r == 'd':
			if num.Len() == 0 {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			var value float64
			if _, err := fmt.Sscanf(num.String(), "%g", &value); err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", s, err)
			}
			hours := value * 24
			if r == 'w' {
				hours *= 7
			}
			fmt.Fprintf(&out, "%gh", hours)
			num.Reset()
		default:
			out.WriteString(num.String())
			num.Reset()
			out.WriteRune(r)
		}
	}
	out.WriteString(num.String())

	d, err := time.ParseDuration(out.String())
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(d), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Fall back to a raw nanosecond count.
		var ns int64
		if err := json.Unmarshal(data, &ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String renders the duration using the largest whole units first, with
// days and weeks preferred over raw hour counts.
func (d Duration) String() string {
	v := time.Duration(d)
	if v == 0 {
		return "0s"
	}

	neg := v < 0
	if neg {
		v = -v
	}

	const (
		day  = 24 * time.Hour
		week = 7 * day
	)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if w := v / week; w > 0 {
		fmt.Fprintf(&b, "%dw", w)
		v -= w * week
	}
	if dd := v / day; dd > 0 {
		fmt.Fprintf(&b, "%dd", dd)
		v -= dd * day
	}
	if v > 0 {
		b.WriteString(v.String())
	}
	return b.String()
}
