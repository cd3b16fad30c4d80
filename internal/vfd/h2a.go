// internal/vfd/h2a.go
package vfd

import (
	"fmt"
	"log"
	"sync/atomic"
)

// The H2A family speaks plain Modbus RTU: function 0x03 reads a holding
// register, 0x06 writes one. An exception reply is shorter than the expected
// frame, so it fails the attempt on length rather than needing its own
// decode path.
const (
	h2aFuncRead  = 0x03
	h2aFuncWrite = 0x06
)

// Holding registers.
const (
	h2aRegControl uint16 = 0x2000 // write: run/stop control word
	h2aRegSpeed   uint16 = 0x1000 // write: setpoint, 1/10000 of max RPM
	h2aRegState   uint16 = 0x3000 // read: 1 fwd run, 2 rev run, 3 standby
	h2aRegFault   uint16 = 0x8000 // read: active fault code, 0 when clean
	h2aRegRPM     uint16 = 0xB003 // read: running speed, RPM
	h2aRegMaxRPM  uint16 = 0xB005 // read: rated maximum speed, RPM
)

// Control words for h2aRegControl.
const (
	h2aCtrlRunCW  uint16 = 0x0001
	h2aCtrlRunCCW uint16 = 0x0002
	h2aCtrlStop   uint16 = 0x0005 // decelerating stop
)

// H2A drives report their ceiling in one register, so discovery is a single
// step. Until it lands, speed scaling runs on the family default of
// 24000 RPM.
type H2A struct {
	addr byte

	done   atomic.Bool
	maxRPM atomic.Uint32
}

func NewH2A(addr byte) *H2A {
	a := &H2A{addr: addr}
	a.maxRPM.Store(24000)
	return a
}

func (a *H2A) Name() string { return "h2a" }

func (a *H2A) Reads() Reads {
	return Reads{RPM: true, Direction: true, Health: true}
}

// DiscoverCommand reads the rated-maximum register until one clean reply
// lands. The request is critical: without the ceiling every setpoint would
// be scaled against a guess.
func (a *H2A) DiscoverCommand() *Command {
	if a.done.Load() {
		return nil
	}
	c := a.read(h2aRegMaxRPM, func(v uint16, dev *Device) error {
		if v == 0 {
			return fmt.Errorf("h2a: rated maximum speed reads zero")
		}
		a.maxRPM.Store(uint32(v))
		a.done.Store(true)
		dev.SetDeviceMaxRPM(uint32(v))
		log.Printf("[h2a] discovered ceiling %d RPM", v)
		return nil
	})
	c.Critical = true
	return c
}

func (a *H2A) SetStateCommand(s SpindleState) *Command {
	var ctrl uint16
	switch s {
	case StateCW:
		ctrl = h2aCtrlRunCW
	case StateCCW:
		ctrl = h2aCtrlRunCCW
	case StateDisabled:
		ctrl = h2aCtrlStop
	default:
		return nil
	}
	return a.write(h2aRegControl, ctrl)
}

// SetSpeedCommand writes the setpoint as a fraction of the ceiling in
// 1/10000 steps.
func (a *H2A) SetSpeedCommand(rpm uint32) *Command {
	val := rpm * 10000 / a.maxRPM.Load()
	if val > 10000 {
		val = 10000
	}
	return a.write(h2aRegSpeed, uint16(val))
}

func (a *H2A) ReadRPMCommand() *Command {
	return a.read(h2aRegRPM, func(v uint16, dev *Device) error {
		dev.SetCurrentRPM(uint32(v))
		return nil
	})
}

func (a *H2A) ReadDirectionCommand() *Command {
	return a.read(h2aRegState, func(v uint16, dev *Device) error {
		switch v {
		case 1:
			dev.SetState(StateCW)
		case 2:
			dev.SetState(StateCCW)
		case 3:
			dev.SetState(StateDisabled)
		default:
			return fmt.Errorf("h2a: state word 0x%04X does not map to a spindle state", v)
		}
		return nil
	})
}

// ReadHealthCommand polls the fault register. The link is healthy as long as
// the drive answers; a nonzero code is the drive's problem to display, ours
// to log.
func (a *H2A) ReadHealthCommand() *Command {
	return a.read(h2aRegFault, func(v uint16, _ *Device) error {
		if v != 0 {
			log.Printf("[h2a] drive reports fault code 0x%04X", v)
		}
		return nil
	})
}

func (a *H2A) read(reg uint16, onValue func(uint16, *Device) error) *Command {
	return &Command{
		Addr:     a.addr,
		Payload:  []byte{h2aFuncRead, byte(reg >> 8), byte(reg), 0x00, 0x01},
		RxLength: 5,
		OnReply: func(data []byte, dev *Device) error {
			v, err := h2aValue(data)
			if err != nil {
				return err
			}
			return onValue(v, dev)
		},
	}
}

func (a *H2A) write(reg, val uint16) *Command {
	return &Command{
		Addr:     a.addr,
		Payload:  []byte{h2aFuncWrite, byte(reg >> 8), byte(reg), byte(val >> 8), byte(val)},
		RxLength: 6,
	}
}

// h2aValue checks a single-register read reply and extracts the big-endian
// value. Reads are always for one register, so the byte count must be 2.
func h2aValue(data []byte) (uint16, error) {
	if len(data) < 5 {
		return 0, fmt.Errorf("h2a: reply truncated at %d bytes", len(data))
	}
	if data[1] != h2aFuncRead || data[2] != 0x02 {
		return 0, fmt.Errorf("h2a: reply function 0x%02X byte count %d, want 0x%02X 2", data[1], data[2], h2aFuncRead)
	}
	return uint16(data[3])<<8 | uint16(data[4]), nil
}
