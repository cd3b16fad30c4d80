// internal/spindle/controller.go
package spindle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tamzrod/spindle-link/internal/bus"
	"github.com/tamzrod/spindle-link/internal/config"
	"github.com/tamzrod/spindle-link/internal/vfd"
)

// System is the machine side of the controller: the global conditions that
// gate spindle commands and the alarm sink for bus faults. Implementations
// MUST NOT block; RaiseFault is called from the transaction loop.
type System interface {
	// AbortActive reports whether a machine reset/abort is in progress.
	// State changes are skipped while it is set.
	AbortActive() bool

	// JobRunning reports whether a job is executing. A mode change the job
	// depends on must not be lost, so it is marked critical.
	JobRunning() bool

	// OverridePercent is the live speed override, 100 meaning unscaled.
	OverridePercent() uint8

	// RaiseFault receives bus faults.
	RaiseFault(f bus.Fault)
}

// Controller is the foreground face of the spindle: callers ask for states
// and speeds, the controller turns them into queued envelopes, and the
// transaction loop owns the wire. Every method is non-blocking except the
// spin-up/spin-down dwell in SetState, which pauses only its caller.
type Controller struct {
	ctx  context.Context
	sys  System
	dev  *vfd.Device
	link *bus.Link
	exec *bus.Executor

	mu       sync.Mutex
	queue    *bus.Queue
	proto    vfd.Protocol
	spinUp   time.Duration
	spinDown time.Duration
}

// New wires a controller to the machine and its serial link. Nothing touches
// the bus until Init brings the link up.
func New(ctx context.Context, sys System, link *bus.Link) *Controller {
	dev := &vfd.Device{}
	dev.Reset(0, 0)
	return &Controller{
		ctx:  ctx,
		sys:  sys,
		dev:  dev,
		link: link,
		exec: bus.NewExecutor(link, dev, sys),
	}
}

// Init (re-)initializes the link from cfg and starts the transaction loop on
// the first successful call. A rejected configuration or a dead port leaves
// the device uninitialized, and every public operation no-ops until an Init
// succeeds. Init may be called again at runtime to move to a different port,
// vendor or tuning; queued commands from the old life are dropped.
func (c *Controller) Init(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		log.Printf("[spindle] configuration rejected: %v", err)
		return err
	}
	config.Normalize(cfg)
	s := cfg.Spindle

	// Take the device down first so the loop idles while the link and queue
	// are swapped underneath it.
	c.dev.SetInitialized(false)
	c.mu.Lock()
	if c.queue != nil {
		c.queue.Drain()
	}
	c.mu.Unlock()

	proto, err := vfd.New(s.Vendor, s.Link.Address)
	if err != nil {
		log.Printf("[spindle] %v", err)
		return err
	}
	if err := c.link.Reopen(bus.LinkSettings{
		Device:          s.Link.Port,
		Baud:            s.Link.Baud,
		DataBits:        s.Link.DataBits,
		Parity:          s.Link.Parity,
		StopBits:        s.Link.StopBits,
		ResponseTimeout: msDur(s.Link.ResponseTimeoutMs),
		RS485: bus.RS485Settings{
			Enabled:       s.Link.RS485.Enabled,
			RTSBeforeSend: msDur(s.Link.RS485.RTSBeforeSendMs),
			RTSAfterSend:  msDur(s.Link.RS485.RTSAfterSendMs),
		},
	}); err != nil {
		log.Printf("[spindle] link open failed: %v", err)
		return err
	}

	c.dev.Reset(s.RPM.Min, s.RPM.Max)
	queue := bus.NewQueue(s.QueueDepth)
	c.exec.Reconfigure(queue, proto, bus.Settings{
		PollInterval:    msDur(s.Poll.IntervalMs),
		ResponseTimeout: msDur(s.Link.ResponseTimeoutMs),
		MaxRetries:      s.Retry.Max,
		Diagnostics:     s.Diagnostics,
	})

	c.mu.Lock()
	c.queue = queue
	c.proto = proto
	c.spinUp = msDur(s.Delays.SpinUpMs)
	c.spinDown = msDur(s.Delays.SpinDownMs)
	c.mu.Unlock()
	c.dev.SetInitialized(true)

	if c.dev.MarkTaskStarted() {
		go c.exec.Run(c.ctx)
	}
	log.Printf("[spindle] %s drive on %s addr %d, rpm %d-%d",
		s.Vendor, s.Link.Port, s.Link.Address, s.RPM.Min, s.RPM.Max)
	return nil
}

// SetState requests a rotation mode and speed. The mode change is skipped
// while a machine abort is active. After the envelopes are queued the caller
// is held for the configured spin-up or spin-down dwell so motion does not
// resume against a spindle that is still accelerating; the bus is never held.
func (c *Controller) SetState(ctx context.Context, state vfd.SpindleState, rpm uint32) {
	if !c.dev.Initialized() {
		return
	}
	if c.sys.AbortActive() {
		return
	}
	if state == vfd.StateUnknown {
		return
	}
	queue, proto := c.parts()

	if state == c.dev.State() {
		// Same mode: only the speed moves.
		c.setRPM(queue, proto, rpm)
		return
	}

	cmd := proto.SetStateCommand(state)
	if cmd == nil {
		return
	}
	// A mode change is critical when a job depends on it, and whenever it
	// starts the spindle at all. A casual disable may be lost; a missed
	// start must alarm.
	cmd.Critical = state != vfd.StateDisabled || c.sys.JobRunning()

	if state == vfd.StateDisabled {
		// Whatever is still queued is for a life the caller just ended.
		if dropped := queue.Drain(); dropped > 0 {
			log.Printf("[spindle] dropped %d queued commands ahead of disable", dropped)
		}
	}
	if !c.enqueue(queue, cmd) {
		return
	}
	c.dev.SetState(state)

	up, down := c.dwells()
	if state == vfd.StateDisabled {
		// The drive cuts output on the mode change; no speed write follows.
		c.dev.SetCurrentRPM(0)
		dwell(ctx, down)
		return
	}
	c.setRPM(queue, proto, rpm)
	dwell(ctx, up)
}

// SetRPM scales rpm by the live override, clamps it into the device range
// and queues the speed request. A setpoint equal to the cached speed is
// already on the drive, or already in flight, and is not re-sent.
func (c *Controller) SetRPM(rpm uint32) {
	if !c.dev.Initialized() {
		return
	}
	queue, proto := c.parts()
	c.setRPM(queue, proto, rpm)
}

func (c *Controller) setRPM(queue *bus.Queue, proto vfd.Protocol, rpm uint32) {
	scaled := uint32(uint64(rpm) * uint64(c.sys.OverridePercent()) / 100)
	target := c.dev.Clamp(scaled)
	if target == c.dev.CurrentRPM() {
		return
	}
	if !c.enqueue(queue, proto.SetSpeedCommand(target)) {
		return
	}
	// Optimistic: the cache moves when the envelope is accepted, and a poll
	// read-back corrects it if the drive disagrees.
	c.dev.SetCurrentRPM(target)
}

// Stop is the hard way out: always allowed, never critical, never dwells.
// Abort handlers call it, so it must not add conditions of its own.
func (c *Controller) Stop() {
	if !c.dev.Initialized() {
		return
	}
	queue, proto := c.parts()
	cmd := proto.SetStateCommand(vfd.StateDisabled)
	if cmd == nil {
		return
	}
	if dropped := queue.Drain(); dropped > 0 {
		log.Printf("[spindle] dropped %d queued commands ahead of stop", dropped)
	}
	if !c.enqueue(queue, cmd) {
		return
	}
	c.dev.SetState(vfd.StateDisabled)
	c.dev.SetCurrentRPM(0)
}

// GetState returns the cached rotation mode without touching the bus.
func (c *Controller) GetState() vfd.SpindleState {
	return c.dev.State()
}

// Snapshot is a point-in-time copy of the cached drive view for status
// reporting.
type Snapshot struct {
	State        vfd.SpindleState
	RPM          uint32
	MaxRPM       uint32
	Synced       bool
	Unresponsive bool
	Initialized  bool
}

func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		State:        c.dev.State(),
		RPM:          c.dev.CurrentRPM(),
		MaxRPM:       c.dev.MaxRPM(),
		Synced:       c.dev.Synced(),
		Unresponsive: c.dev.Unresponsive(),
		Initialized:  c.dev.Initialized(),
	}
}

func (c *Controller) parts() (*bus.Queue, vfd.Protocol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue, c.proto
}

func (c *Controller) dwells() (up, down time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spinUp, c.spinDown
}

// enqueue hands an envelope to the transaction loop. The queue never blocks
// the caller: when it is full the command is dropped with a warning and the
// cached view stays where it was, so the next identical request re-attempts.
func (c *Controller) enqueue(queue *bus.Queue, cmd *vfd.Command) bool {
	if cmd == nil || queue == nil {
		return false
	}
	if err := queue.Enqueue(cmd); err != nil {
		log.Printf("[spindle] command dropped: %v", err)
		return false
	}
	return true
}

// dwell pauses the calling goroutine while the spindle physically spins up
// or coasts down. The transaction loop keeps running underneath.
func dwell(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func msDur(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
