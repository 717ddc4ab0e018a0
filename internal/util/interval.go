package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var intervalRe = regexp.MustCompile(`(?i)(-?\d+(?:\.\d*)?)\s*(day|days|hour|hours|minute|minutes|second|seconds|ms|millisecond|milliseconds)`)

// ParseInterval converts a PostgreSQL style interval string such as
// "10 minutes" or "1 hour 30 minutes" to a time.Duration. Plain Go duration
// strings like "90s" are accepted as a fallback.
func ParseInterval(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return 0, nil
	}

	matches := intervalRe.FindAllStringSubmatch(interval, -1)
	if matches == nil {
		if d, err := time.ParseDuration(interval); err == nil {
			return d, nil
		}
		return 0, fmt.Errorf("invalid interval format: %s", interval)
	}

	var total time.Duration

	for _, m := range matches {
		valueStr, unit := m[1], strings.ToLower(m[2])
		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in interval: %s", valueStr)
		}

		switch unit {
		case "day", "days":
			total += time.Duration(value * float64(24*time.Hour))
		case "hour", "hours":
			total += time.Duration(value * float64(time.Hour))
		case "minute", "minutes":
			total += time.Duration(value * float64(time.Minute))
		case "second", "seconds":
			total += time.Duration(value * float64(time.Second))
		case "ms", "millisecond", "milliseconds":
			total += time.Duration(value * float64(time.Millisecond))
		default:
			return 0, fmt.Errorf("unknown unit in interval: %s", unit)
		}
	}

	return total, nil
}
