// internal/bus/fault.go
package bus

// Fault identifies the alarm the executor raises when a critical command
// exhausts its retries.
type Fault int

const (
	// FaultSpindleComm: the drive stopped acknowledging caller-issued
	// commands, so the machine can no longer trust the spindle's state.
	FaultSpindleComm Fault = iota + 1
)

func (f Fault) String() string {
	if f == FaultSpindleComm {
		return "spindle communication lost"
	}
	return "unknown fault"
}

// FaultRaiser receives executor faults. It is called from the transaction
// loop and MUST NOT block.
type FaultRaiser interface {
	RaiseFault(Fault)
}
