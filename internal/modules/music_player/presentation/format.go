package presentation

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBadTimestamp is returned for seek positions that are not in seconds,
// MM:SS or HH:MM:SS form.
var ErrBadTimestamp = errors.New("invalid time format, use seconds, MM:SS or HH:MM:SS")

// ParseTimestamp parses a user-supplied position: "90", "1:30" or "0:01:30".
func ParseTimestamp(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) > 3 {
		return 0, ErrBadTimestamp
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, ErrBadTimestamp
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}
