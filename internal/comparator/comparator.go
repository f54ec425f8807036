// Package comparator holds the pure arithmetic that relates a target price
// to the current market price.
package comparator

import (
	"errors"

	"pricecomparator/internal/models"
)

// ErrZeroCurrentPrice is returned by Percentage when the current price is
// exactly zero and no percentage can be expressed.
var ErrZeroCurrentPrice = errors.New("percentage undefined: current price is zero")

// Difference is target minus current. Positive means the price has to rise.
func Difference(current, target float64) float64 {
	return target - current
}

// Percentage expresses diff relative to current, in percent.
func Percentage(diff, current float64) (float64, error) {
	if current == 0 {
		return 0, ErrZeroCurrentPrice
	}
	return diff / current * 100, nil
}

// Compare derives the comparison from the two optional inputs. It returns nil
// unless both prices are present. With a zero current price the comparison is
// still returned but its percentage is marked undefined.
func Compare(current, target *float64) *models.Comparison {
	if current == nil || target == nil {
		return nil
	}

	diff := Difference(*current, *target)
	cmp := &models.Comparison{Difference: diff}

	if pct, err := Percentage(diff, *current); err == nil {
		cmp.Percentage = pct
		cmp.PercentageDefined = true
	}
	return cmp
}
