// internal/vfd/device.go
package vfd

import "sync/atomic"

// Device is the cached view of the drive shared between the foreground
// callers and the transaction loop. Every field is an atomic word: writers
// never coordinate, reads see the last write, and a poll read-back is allowed
// to overwrite an optimistic foreground update (last write wins).
type Device struct {
	minRPM atomic.Uint32
	maxRPM atomic.Uint32
	devMax atomic.Uint32 // discovered ceiling, 0 until synced

	currentRPM atomic.Uint32
	state      atomic.Int32

	synced       atomic.Bool
	unresponsive atomic.Bool
	initialized  atomic.Bool
	taskRunning  atomic.Bool
}

// Reset loads the configured speed range and clears everything learned from
// the drive. Called on every (re-)initialization; the task-running guard is
// deliberately left alone.
func (d *Device) Reset(minRPM, maxRPM uint32) {
	d.minRPM.Store(minRPM)
	d.maxRPM.Store(maxRPM)
	d.devMax.Store(0)
	d.currentRPM.Store(0)
	d.state.Store(int32(StateUnknown))
	d.synced.Store(false)
	d.unresponsive.Store(false)
	d.initialized.Store(false)
}

// MinRPM is the configured lower bound for nonzero speeds.
func (d *Device) MinRPM() uint32 { return d.minRPM.Load() }

// MaxRPM is the effective ceiling: the configured maximum, lowered to the
// discovered device maximum when the drive reports a smaller one.
func (d *Device) MaxRPM() uint32 {
	max := d.maxRPM.Load()
	if dev := d.devMax.Load(); dev != 0 && dev < max {
		return dev
	}
	return max
}

// Clamp forces rpm into the device's range. Zero always stays zero: it means
// off, not slowest. When the configured range is degenerate (min >= max) any
// nonzero request collapses to the ceiling.
func (d *Device) Clamp(rpm uint32) uint32 {
	if rpm != 0 && rpm < d.MinRPM() {
		rpm = d.MinRPM()
	}
	if max := d.MaxRPM(); rpm > max {
		rpm = max
	}
	return rpm
}

// SetDeviceMaxRPM records the ceiling learned during capability discovery and
// marks the device synced.
func (d *Device) SetDeviceMaxRPM(rpm uint32) {
	d.devMax.Store(rpm)
	d.synced.Store(true)
}

// DeviceMaxRPM is the discovered ceiling, 0 before discovery completes.
func (d *Device) DeviceMaxRPM() uint32 { return d.devMax.Load() }

// Synced reports whether capability discovery has completed since the last
// Reset.
func (d *Device) Synced() bool { return d.synced.Load() }

// CurrentRPM is the cached speed: optimistic on enqueue, corrected by poll
// read-backs where the protocol supports them.
func (d *Device) CurrentRPM() uint32 { return d.currentRPM.Load() }

func (d *Device) SetCurrentRPM(rpm uint32) { d.currentRPM.Store(rpm) }

// State is the cached rotation mode, StateUnknown until something confirms
// or commands one.
func (d *Device) State() SpindleState { return SpindleState(d.state.Load()) }

func (d *Device) SetState(s SpindleState) { d.state.Store(int32(s)) }

// Unresponsive mirrors the executor's debounced health view for reporting.
func (d *Device) Unresponsive() bool { return d.unresponsive.Load() }

func (d *Device) SetUnresponsive(v bool) { d.unresponsive.Store(v) }

// Initialized reports whether the controller finished bringing the link up.
// Until it is set, public spindle operations no-op and the transaction loop
// idles off the bus.
func (d *Device) Initialized() bool { return d.initialized.Load() }

func (d *Device) SetInitialized(v bool) { d.initialized.Store(v) }

// MarkTaskStarted flips the task-running guard and reports whether the
// caller is the one that flipped it. The transaction loop is started at most
// once per process, however many times init runs.
func (d *Device) MarkTaskStarted() bool {
	return d.taskRunning.CompareAndSwap(false, true)
}
