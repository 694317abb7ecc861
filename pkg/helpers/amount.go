// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// KoinuPerDoge is the number of koinu in one DOGE.
const KoinuPerDoge = 100_000_000

// DogeDecimals is the number of decimal places in a DOGE amount string.
const DogeDecimals = 8

// KoinuToDoge renders koinu as a decimal DOGE string with trailing zeros
// trimmed: 150000000 -> "1.5", 1 -> "0.00000001". Pure integer arithmetic;
// binary floats are never involved.
func KoinuToDoge(koinu uint64) string {
	whole := koinu / KoinuPerDoge
	frac := koinu % KoinuPerDoge
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}

	fracStr := fmt.Sprintf("%0*d", DogeDecimals, frac)
	fracStr = strings.TrimRight(fracStr, "0")
	return strconv.FormatUint(whole, 10) + "." + fracStr
}

// DogeToKoinu parses a decimal DOGE string into koinu using string
// arithmetic only, so KoinuToDoge round-trips exactly for every value the
// koinu range can hold. Precision beyond eight decimal places is truncated.
func DogeToKoinu(doge string) (uint64, error) {
	wholeStr, fracStr, _ := strings.Cut(doge, ".")
	if wholeStr == "" && fracStr == "" {
		return 0, fmt.Errorf("invalid amount: %q", doge)
	}

	for _, c := range wholeStr + fracStr {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid character in amount %q: %c", doge, c)
		}
	}

	var whole uint64
	if wholeStr != "" {
		var err error
		whole, err = strconv.ParseUint(wholeStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", doge, err)
		}
	}

	// Scale the fractional digits to koinu: pad to eight places, drop the
	// rest.
	if len(fracStr) < DogeDecimals {
		fracStr += strings.Repeat("0", DogeDecimals-len(fracStr))
	}
	fracStr = fracStr[:DogeDecimals]

	frac, err := strconv.ParseUint(fracStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", doge, err)
	}

	if whole > (math.MaxUint64-frac)/KoinuPerDoge {
		return 0, fmt.Errorf("amount overflow: %q", doge)
	}
	return whole*KoinuPerDoge + frac, nil
}
