// internal/vfd/protocol.go
package vfd

import "fmt"

// Reads declares which cyclic poll reads a protocol family supports. The
// poller skips unsupported reads instead of sending requests the drive would
// never answer.
type Reads struct {
	RPM       bool
	Direction bool
	Health    bool
}

// Protocol builds the command envelopes for one drive family. Builders MUST
// be callable from the foreground while the transaction loop is interpreting
// replies; implementations keep any discovered scaling constants in atomic
// words.
type Protocol interface {
	// Name is the family name as spelled in configuration.
	Name() string

	// Reads reports the poll reads this family supports.
	Reads() Reads

	// DiscoverCommand returns the next capability-discovery request, nil
	// once the family has nothing left to learn. The reply interpreter of
	// the final step marks the device synced.
	DiscoverCommand() *Command

	// SetStateCommand builds the run/stop request for s. StateUnknown is not
	// a commandable state and returns nil.
	SetStateCommand(s SpindleState) *Command

	// SetSpeedCommand builds the speed request for an already-clamped RPM.
	SetSpeedCommand(rpm uint32) *Command

	// ReadRPMCommand, ReadDirectionCommand and ReadHealthCommand build the
	// cyclic poll reads. Families return nil for reads their Reads() flags
	// disclaim.
	ReadRPMCommand() *Command
	ReadDirectionCommand() *Command
	ReadHealthCommand() *Command
}

// New returns the protocol implementation for the named family at the given
// bus address.
func New(family string, addr byte) (Protocol, error) {
	switch family {
	case "huanyang":
		return NewHuanyang(addr), nil
	case "h2a":
		return NewH2A(addr), nil
	default:
		return nil, fmt.Errorf("vfd: unknown protocol family %q", family)
	}
}

// Families lists the supported protocol family names, for validation messages
// and the CLI.
func Families() []string {
	return []string{"huanyang", "h2a"}
}
