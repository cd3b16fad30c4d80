// internal/vfd/huanyang.go
package vfd

import (
	"fmt"
	"log"
	"sync/atomic"
)

// The HY-series dialect is RTU-shaped (address + payload + CRC16) but the
// payloads are not Modbus PDUs: byte one is a function, byte two a payload
// length, and "registers" are the drive's PD parameter numbers.
const (
	hyFuncRead    = 0x01 // read a PD parameter
	hyFuncControl = 0x03 // run / stop / direction
	hyFuncStatus  = 0x04 // read a status item
	hyFuncWrite   = 0x05 // write the frequency setpoint
)

// Control words for hyFuncControl.
const (
	hyCtrlRunCW  = 0x01
	hyCtrlRunCCW = 0x11
	hyCtrlStop   = 0x08
)

// Items readable through hyFuncStatus.
const (
	hyStatusSetFreq = 0x00 // commanded frequency, centi-Hz
	hyStatusOutFreq = 0x01 // output frequency, centi-Hz
	hyStatusOutAmps = 0x02 // output current
	hyStatusRPM     = 0x03 // rotation speed, RPM
)

// PD parameters read during capability discovery.
const (
	hyPDBaseFreq = 0x04 // PD004: base frequency, centi-Hz
	hyPDMaxFreq  = 0x05 // PD005: maximum frequency, centi-Hz
	hyPDRatedRPM = 0x90 // PD144: motor RPM at 50 Hz
)

// Huanyang speaks the HY-series dialect. Discovery walks three PD parameters
// and derives the speed ceiling; until it completes, scaling runs on the
// family defaults below (the common 400 Hz / 24000 RPM pairing).
//
// The scaling words are atomics: the foreground builds speed commands while
// the transaction loop is still storing discovery replies.
type Huanyang struct {
	addr byte

	step     atomic.Int32
	maxFreq  atomic.Uint32 // PD005, centi-Hz
	baseFreq atomic.Uint32 // PD004, centi-Hz
	ratedRPM atomic.Uint32 // PD144, RPM at 50 Hz
}

func NewHuanyang(addr byte) *Huanyang {
	h := &Huanyang{addr: addr}
	h.maxFreq.Store(40000)
	h.baseFreq.Store(5000)
	h.ratedRPM.Store(3000)
	return h
}

func (h *Huanyang) Name() string { return "huanyang" }

// Reads: the dialect has no direction read-back, so the poll cycle falls
// through from the RPM read straight to the health read.
func (h *Huanyang) Reads() Reads {
	return Reads{RPM: true, Direction: false, Health: true}
}

// DiscoverCommand walks PD005, PD004, PD144 in order, one reply per call,
// and marks the device synced when the ceiling has been derived. Discovery
// requests are critical: a drive that cannot answer them cannot be scaled
// for, and the machine must alarm rather than run on family defaults.
func (h *Huanyang) DiscoverCommand() *Command {
	switch h.step.Load() {
	case 0:
		return h.readPD(hyPDMaxFreq, func(v uint16, _ *Device) error {
			if v == 0 {
				return fmt.Errorf("huanyang: PD005 maximum frequency reads zero")
			}
			h.maxFreq.Store(uint32(v))
			h.step.Store(1)
			return nil
		})
	case 1:
		return h.readPD(hyPDBaseFreq, func(v uint16, _ *Device) error {
			if v != 0 {
				h.baseFreq.Store(uint32(v))
			}
			if v != 5000 {
				log.Printf("[huanyang] PD004 base frequency is %d.%02d Hz, speed scaling assumes 50.00", v/100, v%100)
			}
			h.step.Store(2)
			return nil
		})
	case 2:
		return h.readPD(hyPDRatedRPM, func(v uint16, dev *Device) error {
			if v == 0 {
				return fmt.Errorf("huanyang: PD144 rated RPM reads zero")
			}
			h.ratedRPM.Store(uint32(v))
			h.step.Store(3)
			dev.SetDeviceMaxRPM(h.maxRPM())
			log.Printf("[huanyang] discovered max frequency %d.%02d Hz, rated %d RPM at 50 Hz, ceiling %d RPM",
				h.maxFreq.Load()/100, h.maxFreq.Load()%100, v, h.maxRPM())
			return nil
		})
	}
	return nil
}

// maxRPM is PD005 * PD144 / 5000: the rated RPM scaled from the 50 Hz base
// to the drive's frequency ceiling.
func (h *Huanyang) maxRPM() uint32 {
	return h.maxFreq.Load() * h.ratedRPM.Load() / 5000
}

func (h *Huanyang) SetStateCommand(s SpindleState) *Command {
	var ctrl byte
	switch s {
	case StateCW:
		ctrl = hyCtrlRunCW
	case StateCCW:
		ctrl = hyCtrlRunCCW
	case StateDisabled:
		ctrl = hyCtrlStop
	default:
		return nil
	}
	return &Command{
		Addr:     h.addr,
		Payload:  []byte{hyFuncControl, 0x01, ctrl},
		RxLength: 4,
	}
}

// SetSpeedCommand encodes rpm as a centi-Hz setpoint: rpm * 5000 / PD144,
// the inverse of the rated-RPM-at-50-Hz relation, capped at PD005.
func (h *Huanyang) SetSpeedCommand(rpm uint32) *Command {
	freq := rpm * 5000 / h.ratedRPM.Load()
	if max := h.maxFreq.Load(); freq > max {
		freq = max
	}
	return &Command{
		Addr:     h.addr,
		Payload:  []byte{hyFuncWrite, 0x02, byte(freq >> 8), byte(freq)},
		RxLength: 5,
	}
}

// ReadRPMCommand polls the rotation-speed item straight into the device
// cache.
func (h *Huanyang) ReadRPMCommand() *Command {
	return h.statusRead(hyStatusRPM, func(v uint16, dev *Device) error {
		dev.SetCurrentRPM(uint32(v))
		return nil
	})
}

func (h *Huanyang) ReadDirectionCommand() *Command { return nil }

// ReadHealthCommand polls the output frequency. A well-formed echo proves
// the drive is listening; the value itself is not cached.
func (h *Huanyang) ReadHealthCommand() *Command {
	return h.statusRead(hyStatusOutFreq, nil)
}

func (h *Huanyang) readPD(pd byte, onValue func(uint16, *Device) error) *Command {
	return &Command{
		Addr:     h.addr,
		Payload:  []byte{hyFuncRead, 0x03, pd, 0x00, 0x00},
		RxLength: 6,
		Critical: true,
		OnReply: func(data []byte, dev *Device) error {
			v, err := hyValue(data, hyFuncRead, pd)
			if err != nil {
				return err
			}
			return onValue(v, dev)
		},
	}
}

func (h *Huanyang) statusRead(item byte, onValue func(uint16, *Device) error) *Command {
	return &Command{
		Addr:     h.addr,
		Payload:  []byte{hyFuncStatus, 0x03, item, 0x00, 0x00},
		RxLength: 6,
		OnReply: func(data []byte, dev *Device) error {
			v, err := hyValue(data, hyFuncStatus, item)
			if err != nil {
				return err
			}
			if onValue == nil {
				return nil
			}
			return onValue(v, dev)
		},
	}
}

// hyValue checks the function/length/register echo of a read reply and
// extracts the big-endian value.
func hyValue(data []byte, fn, reg byte) (uint16, error) {
	if len(data) < 6 {
		return 0, fmt.Errorf("huanyang: reply truncated at %d bytes", len(data))
	}
	if data[1] != fn || data[2] != 0x03 || data[3] != reg {
		return 0, fmt.Errorf("huanyang: reply echoes function 0x%02X register 0x%02X, want 0x%02X 0x%02X",
			data[1], data[3], fn, reg)
	}
	return uint16(data[4])<<8 | uint16(data[5]), nil
}
