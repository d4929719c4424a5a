package pass

import (
	"regexp"
	"strconv"
	"strings"
)

var leadingDigits = regexp.MustCompile(`^\d+`)

// NormalizeVersion strips a leading v/V, splits on '.', extracts the
// leading digits of each component (non-digit-prefixed components become
// 0), and pads/truncates to four components (spec.md §4.5, §8, §9).
func NormalizeVersion(v string) [4]int {
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	parts := strings.Split(v, ".")

	var out [4]int
	for i := 0; i < 4; i++ {
		if i >= len(parts) {
			continue
		}
		match := leadingDigits.FindString(parts[i])
		if match == "" {
			continue
		}
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		out[i] = n
	}
	return out
}

// VersionsMatch reports whether two version strings normalize to the same
// 4-tuple (spec.md §4.5, §8: "1.18.0 == 1.18.0.0").
func VersionsMatch(a, b string) bool {
	return NormalizeVersion(a) == NormalizeVersion(b)
}

// ParseUserAgent applies the configured user-agent regex (spec.md §4.5).
// A two-group match yields (clientName, clientVersion); a one-group match
// yields version alone with clientName taken from config; no match yields
// ("Unknown", raw).
func ParseUserAgent(re *regexp.Regexp, raw string, configuredClientName string) (clientName, clientVersion string) {
	m := re.FindStringSubmatch(raw)
	switch {
	case len(m) >= 3:
		return m[1], m[2]
	case len(m) == 2:
		return configuredClientName, m[1]
	default:
		return "Unknown", raw
	}
}
