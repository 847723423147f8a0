// Package units converts simulation speeds, which are always m/s, for display.
package units

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Unit is a display unit for speeds.
type Unit string

// Supported units.
const (
	MPS  Unit = "mps"
	MPH  Unit = "mph"
	KMPH Unit = "kmph"
	KPH  Unit = "kph"
)

// ValidUnits lists every accepted unit.
var ValidUnits = []Unit{MPS, MPH, KMPH, KPH}

// Parse validates a unit name. The empty string selects MPS.
func Parse(s string) (Unit, error) {
	if s == "" {
		return MPS, nil
	}
	u := Unit(strings.ToLower(s))
	if !lo.Contains(ValidUnits, u) {
		return "", fmt.Errorf("unknown speed unit %q (valid: %s)", s, ValidUnitsString())
	}
	return u, nil
}

// ValidUnitsString returns the accepted units for error messages.
func ValidUnitsString() string {
	return strings.Join(lo.Map(ValidUnits, func(u Unit, _ int) string { return string(u) }), ", ")
}

// Convert converts a speed in m/s to u. Unknown units leave it in m/s.
func (u Unit) Convert(speedMPS float64) float64 {
	switch u {
	case MPH:
		return speedMPS * 2.23694
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Label is the axis label of u.
func (u Unit) Label() string {
	switch u {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}
