package comparator

import (
	"math"
	"strconv"
	"strings"
)

// ParseTarget turns raw field text into a target price. Empty or non-numeric
// text, hex floats, NaN and infinities yield nil. Zero and negative values are
// accepted.
func ParseTarget(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, "xX") {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
