// internal/vfd/state.go
package vfd

// SpindleState is a commanded or reported rotation mode.
type SpindleState int32

const (
	// StateDisabled is stopped output. RPM zero implies it.
	StateDisabled SpindleState = iota
	// StateCW is forward rotation.
	StateCW
	// StateCCW is reverse rotation.
	StateCCW
	// StateUnknown is the value before the first confirmed exchange with the
	// drive, and the decode result for state words we cannot map.
	StateUnknown
)

func (s SpindleState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateCW:
		return "cw"
	case StateCCW:
		return "ccw"
	default:
		return "unknown"
	}
}

// ParseState maps the configuration/CLI spellings onto a SpindleState.
func ParseState(s string) (SpindleState, bool) {
	switch s {
	case "cw", "CW", "M3", "m3":
		return StateCW, true
	case "ccw", "CCW", "M4", "m4":
		return StateCCW, true
	case "off", "disabled", "M5", "m5":
		return StateDisabled, true
	}
	return StateUnknown, false
}
