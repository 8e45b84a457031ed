// Package vlight implements virtual lights: proxy entities whose
// on/off/brightness/color state is mirrored onto physical lights according
// to what each physical light supports.
package vlight

import (
	"errors"
	"fmt"
)

// ErrUnknownState is returned when an entity reports a state other than on/off.
var ErrUnknownState = errors.New("unknown virtual light state")

// ErrTemperatureRangeUnavailable is returned when the virtual light does not
// report its minimum and maximum color temperature.
var ErrTemperatureRangeUnavailable = errors.New("color temperature range unavailable")

// State is the power state of a virtual light.
type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

// ParseState converts a platform state string.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateOn:
		return StateOn, nil
	case StateOff:
		return StateOff, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
}
