// Package units provides shared constants and conversions for frame-based
// durations.
package units

import (
	"fmt"
	"time"
)

// Unit constants
const (
	Frames  = "frames"
	Seconds = "s"
	Minutes = "min"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Frames, Seconds, Minutes}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "frames, s, min"
}

// ConvertFrames converts a frame count to the target units using the
// acquisition frame interval. The second return value is false when the
// conversion needs an interval and none is known.
func ConvertFrames(frames int, interval time.Duration, targetUnits string) (float64, bool) {
	switch targetUnits {
	case Frames:
		return float64(frames), true
	case Seconds:
		if interval <= 0 {
			return 0, false
		}
		return float64(frames) * interval.Seconds(), true
	case Minutes:
		if interval <= 0 {
			return 0, false
		}
		return float64(frames) * interval.Minutes(), true
	default:
		return float64(frames), true // unknown units stay in frames
	}
}

// ParseFrameInterval parses a duration string such as "30s". An empty string
// means the interval is unknown and yields zero.
func ParseFrameInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid frame interval %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("frame interval must be non-negative, got %s", d)
	}
	return d, nil
}
