// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/spindle-link/internal/bus"
	"github.com/tamzrod/spindle-link/internal/vfd"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration: zero values with defaults are accepted
// here and filled by Normalize afterwards.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil configuration")
	}
	s := &cfg.Spindle

	// ------------------------------------------------------------
	// PROTOCOL FAMILY
	// ------------------------------------------------------------

	if s.Vendor == "" {
		return fmt.Errorf("spindle: vendor is required (one of %v)", vfd.Families())
	}
	known := false
	for _, f := range vfd.Families() {
		if strings.EqualFold(s.Vendor, f) {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("spindle: unknown vendor %q (one of %v)", s.Vendor, vfd.Families())
	}

	// Laser mode drives PWM duty directly; a bus-attached drive cannot
	// follow it.
	if s.LaserMode {
		return fmt.Errorf("spindle: laser_mode is not supported on a bus-controlled drive")
	}

	// ------------------------------------------------------------
	// LINK
	// ------------------------------------------------------------

	l := &s.Link
	if l.Port == "" {
		return fmt.Errorf("spindle: link.port is required")
	}
	if l.Baud < 0 {
		return fmt.Errorf("spindle: link.baud %d is negative", l.Baud)
	}
	switch l.DataBits {
	case 0, 7, 8:
	default:
		return fmt.Errorf("spindle: link.data_bits must be 7 or 8, got %d", l.DataBits)
	}
	switch strings.ToUpper(l.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("spindle: link.parity must be N, E or O, got %q", l.Parity)
	}
	switch l.StopBits {
	case 0, 1, 2:
	default:
		return fmt.Errorf("spindle: link.stop_bits must be 1 or 2, got %d", l.StopBits)
	}
	if l.Address > 247 {
		return fmt.Errorf("spindle: link.address %d is outside the bus range 1-247", l.Address)
	}
	if l.ResponseTimeoutMs < 0 {
		return fmt.Errorf("spindle: link.response_timeout_ms %d is negative", l.ResponseTimeoutMs)
	}
	if l.RS485.RTSBeforeSendMs < 0 || l.RS485.RTSAfterSendMs < 0 {
		return fmt.Errorf("spindle: link.rs485 RTS delays must not be negative")
	}

	// ------------------------------------------------------------
	// SPEED RANGE, DWELLS, PACING
	// ------------------------------------------------------------

	if s.RPM.Max != 0 && s.RPM.Min > s.RPM.Max {
		return fmt.Errorf("spindle: rpm.min %d exceeds rpm.max %d", s.RPM.Min, s.RPM.Max)
	}
	if s.Delays.SpinUpMs < 0 || s.Delays.SpinDownMs < 0 {
		return fmt.Errorf("spindle: delays must not be negative")
	}
	if s.Poll.IntervalMs < 0 {
		return fmt.Errorf("spindle: poll.interval_ms %d is negative", s.Poll.IntervalMs)
	}
	if s.Retry.Max < 0 {
		return fmt.Errorf("spindle: retry.max %d is negative", s.Retry.Max)
	}
	if s.QueueDepth != 0 && s.QueueDepth < bus.MinQueueDepth {
		return fmt.Errorf("spindle: queue_depth %d is below the minimum %d", s.QueueDepth, bus.MinQueueDepth)
	}

	return nil
}
