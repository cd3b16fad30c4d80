// internal/vfd/command.go
package vfd

// Command is one bus transaction waiting in the queue: the request the
// executor will frame and send, the reply size it must collect, and how the
// reply is interpreted.
//
// Lengths count the address byte and the payload only. The checksum is owned
// by the executor: it appends two bytes on transmit and strips two on
// receive, so protocol builders never see CRC bytes.
type Command struct {
	// Addr is the bus address the frame carries. A reply that echoes a
	// different address fails the attempt.
	Addr byte

	// Payload is everything between the address byte and the checksum.
	Payload []byte

	// RxLength is the expected reply length: address plus reply payload,
	// checksum excluded. The executor reads until it has RxLength+2 bytes or
	// the response timeout elapses.
	RxLength int

	// Critical marks requests the machine must not run without an answer
	// to: capability discovery, and mode changes issued mid-job or to start
	// the spindle. Exhausting the retry ceiling on a critical command clears
	// the queue and raises a spindle fault; non-critical exhaustion only
	// logs and debounces the unresponsive flag.
	Critical bool

	// OnReply, when non-nil, interprets the validated reply and applies it
	// to the device cache. data is the full frame with the address byte at
	// data[0] and the checksum already stripped and verified. A non-nil
	// error fails the whole transaction: the drive answered, it just said
	// something unusable, so resending the same frame cannot help.
	OnReply func(data []byte, dev *Device) error
}

// TxLength is the number of bytes in the request before the checksum:
// address plus payload.
func (c *Command) TxLength() int {
	return 1 + len(c.Payload)
}
