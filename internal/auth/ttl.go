package auth

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ttlUnits = map[byte]int64{
	'd': 86400,
	'h': 3600,
	'm': 60,
	's': 1,
}

// ParseTTL converts strings such as "15m" or "7d" into a duration.
// Only the units d, h, m and s are accepted.
func ParseTTL(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, raw)
	}
	unit := s[len(s)-1]
	seconds, ok := ttlUnits[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported unit %q in %q", ErrInvalidTTL, unit, raw)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q must be a positive number followed by a unit", ErrInvalidTTL, raw)
	}
	if n > math.MaxInt64/int64(time.Second)/seconds {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidTTL, raw)
	}
	return time.Duration(n*seconds) * time.Second, nil
}
