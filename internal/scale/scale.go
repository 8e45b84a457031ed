// Package scale converts between the numeric ranges used by lights:
// decimal fractions, brightness octets, color temperature ranges and mireds.
package scale

import "math"

// Brightness bounds on the platform's 0-255 scale.
const (
	MinBrightness = 0
	MaxBrightness = 255
)

// DecimalToOctetProportional maps a decimal fraction onto the 0-255 range.
// Negative fractions give negative results so the value can be used as a delta.
func DecimalToOctetProportional(decimal float64) int {
	return int(math.Round(decimal * MaxBrightness))
}

// DecimalToCustomRangeProportional maps a decimal fraction onto the width of [min, max].
func DecimalToCustomRangeProportional(decimal float64, min, max int) int {
	return int(math.Round(decimal * float64(max-min)))
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// KelvinToMirek converts a color temperature in kelvin to mireds.
func KelvinToMirek(kelvin int) int {
	if kelvin <= 0 {
		return 0
	}
	return int(math.Round(1_000_000 / float64(kelvin)))
}

// MirekToKelvin converts mireds to kelvin.
func MirekToKelvin(mirek int) int {
	if mirek <= 0 {
		return 0
	}
	return int(math.Round(1_000_000 / float64(mirek)))
}
