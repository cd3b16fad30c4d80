// internal/bus/poll.go
package bus

import "github.com/tamzrod/spindle-link/internal/vfd"

// PollState names the background read the loop issues when the queue is
// empty.
type PollState int

const (
	// PollDiscover runs capability discovery. It holds until the device is
	// synced, whatever the rest of the cycle looks like.
	PollDiscover PollState = iota
	// PollRPM, PollDirection and PollHealth form the steady cycle, in that
	// order. Reads the protocol family does not support are skipped, so the
	// cycle falls through toward the health read.
	PollRPM
	PollDirection
	PollHealth
	// PollIdle means the family supports no reads at all: the loop only
	// services the queue.
	PollIdle
)

func (s PollState) String() string {
	switch s {
	case PollDiscover:
		return "discover"
	case PollRPM:
		return "rpm"
	case PollDirection:
		return "direction"
	case PollHealth:
		return "health"
	default:
		return "idle"
	}
}

// Caps is everything the transition needs to know about the drive: whether
// discovery has finished and which reads the family supports.
type Caps struct {
	Synced bool
	Reads  vfd.Reads
}

// NextPoll returns the read to issue after completing `after`. It is a pure
// function of its arguments; the executor owns the current state.
func NextPoll(after PollState, c Caps) PollState {
	if !c.Synced {
		return PollDiscover
	}
	var order []PollState
	switch after {
	case PollRPM:
		order = []PollState{PollDirection, PollHealth, PollRPM}
	case PollDirection:
		order = []PollState{PollHealth, PollRPM, PollDirection}
	default:
		// Discovery just finished, the cycle wrapped at health, or the loop
		// was idle and capabilities may have changed.
		order = []PollState{PollRPM, PollDirection, PollHealth}
	}
	return firstSupported(c, order)
}

func firstSupported(c Caps, order []PollState) PollState {
	for _, s := range order {
		switch s {
		case PollRPM:
			if c.Reads.RPM {
				return s
			}
		case PollDirection:
			if c.Reads.Direction {
				return s
			}
		case PollHealth:
			if c.Reads.Health {
				return s
			}
		}
	}
	return PollIdle
}

// pollCommand materializes the request for a poll state, nil when the family
// has nothing to send for it.
func pollCommand(p vfd.Protocol, s PollState) *vfd.Command {
	switch s {
	case PollDiscover:
		return p.DiscoverCommand()
	case PollRPM:
		return p.ReadRPMCommand()
	case PollDirection:
		return p.ReadDirectionCommand()
	case PollHealth:
		return p.ReadHealthCommand()
	}
	return nil
}
