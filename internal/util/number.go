package util

import (
	"regexp"
	"strconv"
	"strings"
)

var thousandsPattern = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)

// ParseGermanInt parses integers as written in German minutes: "1.234", " 42 ", "1 234".
// Decimal fractions are rejected because vote counts are whole numbers.
func ParseGermanInt(input string) *int {
	compact := strings.ReplaceAll(strings.TrimSpace(input), "\u00A0", "")
	compact = strings.ReplaceAll(compact, " ", "")
	compact = strings.TrimRight(compact, ".")
	if compact == "" {
		return nil
	}
	if thousandsPattern.MatchString(compact) {
		compact = strings.ReplaceAll(compact, ".", "")
	}
	n, err := strconv.Atoi(compact)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
