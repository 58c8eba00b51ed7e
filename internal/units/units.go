// Package units provides shared constants and conversions for detector
// quantities. Canonical storage units: lengths in millimetres, drift times in
// microseconds, raw timestamps in clock ticks, charge in millivolts.
package units

import "math"

// Length unit constants
const (
	MM = "mm"
	CM = "cm"
	M  = "m"
)

// ValidLengthUnits contains all valid length unit values
var ValidLengthUnits = []string{MM, CM, M}

// IsValidLength checks if the given unit is in the list of valid length units
func IsValidLength(unit string) bool {
	for _, validUnit := range ValidLengthUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidLengthUnitsString returns a comma-separated string of valid units for error messages
func GetValidLengthUnitsString() string {
	return "mm, cm, m"
}

// ConvertLength converts a length from millimetres to the target units.
// Database stores all coordinates and lengths in mm.
func ConvertLength(lengthMM float64, targetUnits string) float64 {
	switch targetUnits {
	case MM:
		return lengthMM
	case CM:
		return lengthMM / 10
	case M:
		return lengthMM / 1000
	default:
		return lengthMM
	}
}

// TicksToMicroseconds converts a raw timestamp interval in clock ticks to
// microseconds given the tick duration (µs per tick).
func TicksToMicroseconds(ticks, tickDuration float64) float64 {
	return ticks * tickDuration
}

// MicrosecondsToTicks converts microseconds to clock ticks given the tick
// duration (µs per tick).
func MicrosecondsToTicks(us, tickDuration float64) float64 {
	if tickDuration == 0 {
		return 0
	}
	return us / tickDuration
}

// RadToDeg converts an angle in radians to degrees for display.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DegToRad converts an angle in degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
