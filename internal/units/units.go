// Package units provides the display units for band readings. Readings are
// always stored in m/s and degrees Celsius; conversion happens only for display.
package units

import "strings"

// Speed unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// Temperature unit constants
const (
	Celsius    = "c"
	Fahrenheit = "f"
)

// ValidSpeedUnits contains all valid speed unit values
var ValidSpeedUnits = []string{MPS, MPH, KMPH, KPH}

// ValidTemperatureUnits contains all valid temperature unit values
var ValidTemperatureUnits = []string{Celsius, Fahrenheit}

// IsValidSpeed checks if the given unit is a valid speed unit
func IsValidSpeed(unit string) bool {
	for _, u := range ValidSpeedUnits {
		if unit == u {
			return true
		}
	}
	return false
}

func IsValidTemperature(unit string) bool {
	for _, u := range ValidTemperatureUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// ValidSpeedUnitsString returns the speed units for error messages
func ValidSpeedUnitsString() string {
	return strings.Join(ValidSpeedUnits, ", ")
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694 // m/s to mph
	case KMPH, KPH:
		return speedMPS * 3.6 // m/s to km/h
	default:
		return speedMPS
	}
}

// ConvertTemperature converts degrees Celsius to the target units.
func ConvertTemperature(celsius float64, targetUnits string) float64 {
	if targetUnits == Fahrenheit {
		return celsius*9/5 + 32
	}
	return celsius
}

// SpeedLabel is the axis label for a speed unit.
func SpeedLabel(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}

func TemperatureLabel(unit string) string {
	if unit == Fahrenheit {
		return "°F"
	}
	return "°C"
}
