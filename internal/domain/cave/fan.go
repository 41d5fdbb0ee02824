package cave

import (
	"errors"
	"fmt"
)

// FanState is the state of the cooling/heating and (de)humidifying fan.
type FanState uint8

const (
	// FanOff means the fan is idle and readings drift toward ambient.
	FanOff FanState = iota
	// FanOn means the fan pushes readings toward their setpoints.
	FanOn
	// FanFailed is terminal: no command may move the fan out of it.
	FanFailed
)

var (
	// ErrFanFailed is returned when a transition out of FanFailed is requested.
	ErrFanFailed = errors.New("fan has failed and cannot have its state changed")
	// ErrInvalidFanState is returned when a string is neither "on" nor "off".
	ErrInvalidFanState = errors.New("invalid fan state")
	// ErrInvalidTransition is returned for any other disallowed transition.
	ErrInvalidTransition = errors.New("invalid fan state transition")
)

// String returns the wire form of the state.
func (s FanState) String() string {
	switch s {
	case FanOff:
		return "off"
	case FanOn:
		return "on"
	case FanFailed:
		return "failed"
	default:
		return fmt.Sprintf("FanState(%d)", uint8(s))
	}
}

// ParseCommandState parses a remote command payload. Only "on" and "off"
// are accepted; "failed" can be reached by the simulator alone.
func ParseCommandState(payload string) (FanState, error) {
	switch payload {
	case "on":
		return FanOn, nil
	case "off":
		return FanOff, nil
	default:
		return FanOff, fmt.Errorf("%w: %q", ErrInvalidFanState, payload)
	}
}

// ParseFanState parses any wire form, including "failed". It is used to
// restore saved state, never for commands.
func ParseFanState(s string) (FanState, error) {
	if s == "failed" {
		return FanFailed, nil
	}

	return ParseCommandState(s)
}

// CanTransition reports whether moving from s to to is allowed:
// Off and On toggle freely, On may fail, Failed goes nowhere.
func (s FanState) CanTransition(to FanState) error {
	switch s {
	case FanFailed:
		return ErrFanFailed
	case FanOff:
		if to == FanOff || to == FanOn {
			return nil
		}
	case FanOn:
		if to == FanOff || to == FanOn || to == FanFailed {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
}
