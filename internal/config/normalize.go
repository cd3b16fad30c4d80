// internal/config/normalize.go
package config

import "strings"

// Defaults filled in for zero values. The pacing and retry numbers are the
// ones the drives this daemon was written against are known to tolerate.
const (
	DefaultBaud              = 9600
	DefaultDataBits          = 8
	DefaultParity            = "N"
	DefaultStopBits          = 1
	DefaultAddress           = 1
	DefaultResponseTimeoutMs = 500
	DefaultPollIntervalMs    = 250
	DefaultMaxRetries        = 5
	DefaultQueueDepth        = 10
	DefaultMaxRPM            = 24000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	s := &cfg.Spindle

	// Canonical spellings. Validate already accepted these case-folded.
	s.Vendor = strings.ToLower(s.Vendor)
	s.Link.Parity = strings.ToUpper(s.Link.Parity)

	// ------------------------------------------------------------
	// DEFAULTS FOR ZERO VALUES
	// ------------------------------------------------------------

	l := &s.Link
	if l.Baud == 0 {
		l.Baud = DefaultBaud
	}
	if l.DataBits == 0 {
		l.DataBits = DefaultDataBits
	}
	if l.Parity == "" {
		l.Parity = DefaultParity
	}
	if l.StopBits == 0 {
		l.StopBits = DefaultStopBits
	}
	if l.Address == 0 {
		l.Address = DefaultAddress
	}
	if l.ResponseTimeoutMs == 0 {
		l.ResponseTimeoutMs = DefaultResponseTimeoutMs
	}

	if s.RPM.Max == 0 {
		s.RPM.Max = DefaultMaxRPM
	}
	if s.Poll.IntervalMs == 0 {
		s.Poll.IntervalMs = DefaultPollIntervalMs
	}
	if s.Retry.Max == 0 {
		s.Retry.Max = DefaultMaxRetries
	}
	if s.QueueDepth == 0 {
		s.QueueDepth = DefaultQueueDepth
	}

	// Dwells have no default: zero genuinely means no dwell.
}
