package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reThousandDot   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reThousandComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

// ParsePrice parses a price token written in either Latin-American
// ("1.234,56") or US ("1,234.56") notation. Returns false when the token
// holds no usable number.
func ParsePrice(input string) (float64, bool) {
	compact := strings.TrimSpace(input)
	compact = strings.ReplaceAll(compact, " ", "")
	compact = strings.ReplaceAll(compact, " ", "")
	compact = strings.TrimLeft(compact, "$BbSs.")
	if compact == "" {
		return 0, false
	}

	parsed, err := strconv.ParseFloat(normalizePriceToken(compact), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func normalizePriceToken(token string) string {
	if reThousandDot.MatchString(token) {
		return strings.ReplaceAll(token, ".", "")
	}
	if reThousandComma.MatchString(token) {
		return strings.ReplaceAll(token, ",", "")
	}

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")
	switch {
	case lastComma > lastDot:
		// comma is the decimal separator, dots group thousands
		token = strings.ReplaceAll(token, ".", "")
		token = strings.ReplaceAll(token, ",", ".")
	default:
		token = strings.ReplaceAll(token, ",", "")
	}
	return token
}
