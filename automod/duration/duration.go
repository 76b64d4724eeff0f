// Parsing of the short duration tokens accepted by moderation commands (eg, "30m", "24h", "2d", "1w").
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Fallback used whenever a token doesn't match the grammar: 24 hours.
const DefaultMinutes = 24 * 60

var tokenRegex = regexp.MustCompile(`^(\d+)([mhdw])$`)

var unitMinutes = map[string]int{
	"m": 1,
	"h": 60,
	"d": 60 * 24,
	"w": 60 * 24 * 7,
}

// Converts a duration token to a count of minutes.
//
// Never fails: anything that isn't digits followed by a single lower-case unit letter (m, h, d, w) returns DefaultMinutes. There is no upper bound, but values which would overflow an int are treated as non-matching.
func ParseMinutes(token string) int {
	m, ok := parse(token)
	if !ok {
		return DefaultMinutes
	}
	return m
}

// Reports whether the token matches the duration grammar (regardless of value).
func IsToken(token string) bool {
	_, ok := parse(token)
	return ok
}

func parse(token string) (int, bool) {
	match := tokenRegex.FindStringSubmatch(token)
	if match == nil {
		return 0, false
	}
	val, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	mult := unitMinutes[match[2]]
	if val > math.MaxInt/mult {
		return 0, false
	}
	return val * mult, true
}

// Human-readable rendering of a minute count, using the largest whole unit (floor division).
func FormatMinutes(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	case minutes < 60*24:
		return fmt.Sprintf("%d hours", minutes/60)
	case minutes < 60*24*7:
		return fmt.Sprintf("%d days", minutes/(60*24))
	default:
		return fmt.Sprintf("%d weeks", minutes/(60*24*7))
	}
}
