// internal/bus/executor_test.go
package bus

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goburrow/serial"

	"github.com/tamzrod/spindle-link/internal/crc"
	"github.com/tamzrod/spindle-link/internal/vfd"
)

// fakePort scripts the drive's side of the wire. Each Write runs the
// responder and queues its bytes for the following Reads; an empty buffer
// reads as the serial timeout.
type fakePort struct {
	mu      sync.Mutex
	respond func(frame []byte) []byte
	frames  [][]byte
	pending []byte
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := append([]byte(nil), b...)
	p.frames = append(p.frames, frame)
	if p.respond != nil {
		p.pending = append(p.pending, p.respond(frame)...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return 0, serial.ErrTimeout
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) setRespond(f func(frame []byte) []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respond = f
}

func (p *fakePort) frameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

type fakeRaiser struct {
	mu     sync.Mutex
	faults []Fault
}

func (r *fakeRaiser) RaiseFault(f Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, f)
}

func (r *fakeRaiser) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.faults)
}

// h2aResponder answers standard reads from a register table and echoes
// writes, the way a healthy drive would.
func h2aResponder(values map[uint16]uint16) func([]byte) []byte {
	return func(frame []byte) []byte {
		if len(frame) < 4 {
			return nil
		}
		switch frame[1] {
		case 0x03:
			reg := uint16(frame[2])<<8 | uint16(frame[3])
			v := values[reg]
			return crc.Append([]byte{frame[0], 0x03, 0x02, byte(v >> 8), byte(v)})
		case 0x06:
			return append([]byte(nil), frame...)
		}
		return nil
	}
}

func echoResponder(frame []byte) []byte {
	return append([]byte(nil), frame...)
}

type busHarness struct {
	x     *Executor
	port  *fakePort
	sys   *fakeRaiser
	dev   *vfd.Device
	queue *Queue
	proto vfd.Protocol
}

func newBusHarness(t *testing.T, respond func([]byte) []byte) *busHarness {
	t.Helper()
	port := &fakePort{respond: respond}
	link := NewLinkWithOpener(func(LinkSettings) (io.ReadWriteCloser, error) {
		return port, nil
	})
	if err := link.Reopen(LinkSettings{}); err != nil {
		t.Fatal(err)
	}
	dev := &vfd.Device{}
	dev.Reset(1000, 24000)
	dev.SetInitialized(true)
	sys := &fakeRaiser{}
	proto, err := vfd.New("h2a", 0x01)
	if err != nil {
		t.Fatal(err)
	}
	queue := NewQueue(10)
	x := NewExecutor(link, dev, sys)
	x.Reconfigure(queue, proto, Settings{
		PollInterval:    time.Millisecond,
		ResponseTimeout: 10 * time.Millisecond,
		MaxRetries:      3,
	})
	return &busHarness{x: x, port: port, sys: sys, dev: dev, queue: queue, proto: proto}
}

func TestQueuedCommandRunsBeforePolling(t *testing.T) {
	h := newBusHarness(t, echoResponder)
	h.dev.SetDeviceMaxRPM(18000) // discovery already done
	cmd := h.proto.SetStateCommand(vfd.StateCW)
	if err := h.queue.Enqueue(cmd); err != nil {
		t.Fatal(err)
	}

	h.x.iterate()

	if h.port.frameCount() != 1 {
		t.Fatalf("wrote %d frames, want 1", h.port.frameCount())
	}
	want := crc.Append(append([]byte{cmd.Addr}, cmd.Payload...))
	if !bytes.Equal(h.port.frames[0], want) {
		t.Fatalf("frame = % X, want % X", h.port.frames[0], want)
	}
	if h.queue.Len() != 0 {
		t.Fatal("command left in the queue")
	}
}

func TestDiscoveryOutranksTheQueue(t *testing.T) {
	h := newBusHarness(t, h2aResponder(map[uint16]uint16{0xB005: 18000}))
	if err := h.queue.Enqueue(h.proto.SetSpeedCommand(6000)); err != nil {
		t.Fatal(err)
	}

	h.x.iterate()

	if !h.dev.Synced() {
		t.Fatal("first pass did not finish discovery")
	}
	if h.queue.Len() != 1 {
		t.Fatal("queued command consumed while the ceiling was still unknown")
	}
	regs := readRegisters(h.port)
	if len(regs) != 1 || regs[0] != 0xB005 {
		t.Fatalf("first pass read %04X, want the rated-maximum register", regs)
	}
}

func TestPollCycleAgainstAHealthyDrive(t *testing.T) {
	h := newBusHarness(t, h2aResponder(map[uint16]uint16{
		0xB005: 18000, // rated maximum
		0xB003: 4500,  // running speed
		0x3000: 1,     // forward run
		0x8000: 0,     // no fault
	}))

	// Pass 1: capability discovery.
	h.x.iterate()
	if !h.dev.Synced() || h.dev.DeviceMaxRPM() != 18000 {
		t.Fatalf("after discovery: synced=%v ceiling=%d", h.dev.Synced(), h.dev.DeviceMaxRPM())
	}

	// Passes 2..4: rpm, direction, health.
	h.x.iterate()
	if h.dev.CurrentRPM() != 4500 {
		t.Fatalf("cached RPM = %d, want 4500", h.dev.CurrentRPM())
	}
	h.x.iterate()
	if h.dev.State() != vfd.StateCW {
		t.Fatalf("cached state = %v, want cw", h.dev.State())
	}
	h.x.iterate()

	// Pass 5 wraps back to the RPM read.
	h.x.iterate()
	regs := readRegisters(h.port)
	want := []uint16{0xB005, 0xB003, 0x3000, 0x8000, 0xB003}
	if len(regs) != len(want) {
		t.Fatalf("read sequence %04X, want %04X", regs, want)
	}
	for i := range want {
		if regs[i] != want[i] {
			t.Fatalf("read sequence %04X, want %04X", regs, want)
		}
	}
}

func readRegisters(p *fakePort) []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var regs []uint16
	for _, f := range p.frames {
		if len(f) >= 4 && f[1] == 0x03 {
			regs = append(regs, uint16(f[2])<<8|uint16(f[3]))
		}
	}
	return regs
}

func TestTransactRetriesUpToTheCeiling(t *testing.T) {
	h := newBusHarness(t, nil) // drive never answers
	cmd := h.proto.ReadRPMCommand()

	err := h.x.transact(cmd, Settings{ResponseTimeout: 5 * time.Millisecond, MaxRetries: 3})
	if err == nil {
		t.Fatal("transact succeeded against a silent drive")
	}
	if h.port.frameCount() != 3 {
		t.Fatalf("sent %d frames, want 3 attempts", h.port.frameCount())
	}
}

func TestTransactStopsAtFirstCleanReply(t *testing.T) {
	var drops int
	responder := h2aResponder(map[uint16]uint16{0xB003: 750})
	h := newBusHarness(t, func(frame []byte) []byte {
		if drops < 2 {
			drops++
			return nil
		}
		return responder(frame)
	})

	err := h.x.transact(h.proto.ReadRPMCommand(), Settings{ResponseTimeout: 5 * time.Millisecond, MaxRetries: 5})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if h.port.frameCount() != 3 {
		t.Fatalf("sent %d frames, want 3", h.port.frameCount())
	}
	if h.dev.CurrentRPM() != 750 {
		t.Fatalf("cached RPM = %d, want 750", h.dev.CurrentRPM())
	}
}

func TestCorruptChecksumFailsTheAttempt(t *testing.T) {
	h := newBusHarness(t, func(frame []byte) []byte {
		reply := crc.Append([]byte{frame[0], 0x03, 0x02, 0x00, 0x10})
		reply[len(reply)-1] ^= 0xFF
		return reply
	})
	err := h.x.transact(h.proto.ReadRPMCommand(), Settings{ResponseTimeout: 5 * time.Millisecond, MaxRetries: 1})
	if err == nil {
		t.Fatal("corrupt checksum accepted")
	}
	if h.dev.CurrentRPM() != 0 {
		t.Fatal("corrupt reply reached the device cache")
	}
}

func TestForeignAddressFailsTheAttempt(t *testing.T) {
	h := newBusHarness(t, func(frame []byte) []byte {
		return crc.Append([]byte{frame[0] + 1, 0x03, 0x02, 0x00, 0x10})
	})
	err := h.x.transact(h.proto.ReadRPMCommand(), Settings{ResponseTimeout: 5 * time.Millisecond, MaxRetries: 1})
	if err == nil {
		t.Fatal("reply from the wrong address accepted")
	}
}

func TestStalledReplyFailsTheAttempt(t *testing.T) {
	h := newBusHarness(t, func(frame []byte) []byte {
		full := crc.Append([]byte{frame[0], 0x03, 0x02, 0x01, 0xF4})
		return full[:3]
	})
	err := h.x.transact(h.proto.ReadRPMCommand(), Settings{ResponseTimeout: 5 * time.Millisecond, MaxRetries: 1})
	if err == nil {
		t.Fatal("half a reply accepted")
	}
}

func TestNonCriticalExhaustionDoesNotRaise(t *testing.T) {
	h := newBusHarness(t, nil)
	h.dev.SetDeviceMaxRPM(18000)
	h.queue.Enqueue(h.proto.ReadRPMCommand())

	h.x.iterate()

	if h.sys.count() != 0 {
		t.Fatal("non-critical failure raised a fault")
	}
	if !h.dev.Unresponsive() {
		t.Fatal("device not marked unresponsive")
	}
}

func TestCriticalExhaustionClearsQueueAndRaisesOnce(t *testing.T) {
	h := newBusHarness(t, nil)
	h.dev.SetDeviceMaxRPM(18000)
	h.queue.Enqueue(asCritical(h.proto.SetStateCommand(vfd.StateCW)))
	h.queue.Enqueue(h.proto.SetSpeedCommand(6000))
	h.queue.Enqueue(h.proto.ReadRPMCommand())

	h.x.iterate()

	if h.sys.count() != 1 {
		t.Fatalf("raised %d faults, want 1", h.sys.count())
	}
	if h.queue.Len() != 0 {
		t.Fatalf("queue holds %d commands after a critical failure, want 0", h.queue.Len())
	}

	// Still failing: a second critical exhaustion in the same episode stays
	// quiet.
	h.queue.Enqueue(asCritical(h.proto.SetStateCommand(vfd.StateCCW)))
	h.x.iterate()
	if h.sys.count() != 1 {
		t.Fatalf("raised %d faults inside one episode, want 1", h.sys.count())
	}

	// Recovery rearms the alarm.
	h.port.setRespond(echoResponder)
	h.queue.Enqueue(h.proto.SetSpeedCommand(3000))
	h.x.iterate()
	if h.dev.Unresponsive() {
		t.Fatal("device still marked unresponsive after a clean exchange")
	}
	h.port.setRespond(nil)
	h.queue.Enqueue(asCritical(h.proto.SetStateCommand(vfd.StateDisabled)))
	h.x.iterate()
	if h.sys.count() != 2 {
		t.Fatalf("raised %d faults across two episodes, want 2", h.sys.count())
	}
}

func asCritical(cmd *vfd.Command) *vfd.Command {
	cmd.Critical = true
	return cmd
}

func TestSilentDriveFailsDiscoveryLoudly(t *testing.T) {
	h := newBusHarness(t, nil)

	h.x.iterate()

	if h.sys.count() != 1 {
		t.Fatalf("raised %d faults, want 1: discovery is critical", h.sys.count())
	}
	if !h.dev.Unresponsive() {
		t.Fatal("device not marked unresponsive")
	}
}

func TestRejectedReplyIsNotRetried(t *testing.T) {
	h := newBusHarness(t, func(frame []byte) []byte {
		// Well-formed frame, wrong byte count for a single-register read.
		// The drive answered; resending cannot change its mind.
		return crc.Append([]byte{frame[0], 0x03, 0x04, 0x00, 0x10})
	})
	err := h.x.transact(h.proto.ReadRPMCommand(), Settings{ResponseTimeout: 5 * time.Millisecond, MaxRetries: 3})
	if err == nil {
		t.Fatal("semantically invalid reply accepted")
	}
	if h.port.frameCount() != 1 {
		t.Fatalf("sent %d frames, want 1", h.port.frameCount())
	}
}

func TestIdleFamilyOnlyServicesQueue(t *testing.T) {
	h := newBusHarness(t, echoResponder)
	h.x.Reconfigure(h.queue, stubProto{}, Settings{
		PollInterval:    time.Millisecond,
		ResponseTimeout: 5 * time.Millisecond,
		MaxRetries:      1,
	})
	h.dev.SetDeviceMaxRPM(1000) // synced, nothing to discover

	h.x.iterate()
	h.x.iterate()
	if h.port.frameCount() != 0 {
		t.Fatalf("idle family sent %d frames", h.port.frameCount())
	}
}

type stubProto struct{}

func (stubProto) Name() string                                  { return "stub" }
func (stubProto) Reads() vfd.Reads                              { return vfd.Reads{} }
func (stubProto) DiscoverCommand() *vfd.Command                 { return nil }
func (stubProto) SetStateCommand(vfd.SpindleState) *vfd.Command { return nil }
func (stubProto) SetSpeedCommand(uint32) *vfd.Command           { return nil }
func (stubProto) ReadRPMCommand() *vfd.Command                  { return nil }
func (stubProto) ReadDirectionCommand() *vfd.Command            { return nil }
func (stubProto) ReadHealthCommand() *vfd.Command               { return nil }

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newBusHarness(t, h2aResponder(map[uint16]uint16{0xB005: 18000}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.x.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestUnconfiguredExecutorIdles(t *testing.T) {
	port := &fakePort{}
	link := NewLinkWithOpener(func(LinkSettings) (io.ReadWriteCloser, error) { return port, nil })
	link.Reopen(LinkSettings{})
	dev := &vfd.Device{}
	x := NewExecutor(link, dev, &fakeRaiser{})

	if wait := x.iterate(); wait <= 0 {
		t.Fatalf("unconfigured iterate returned %v", wait)
	}
	if port.frameCount() != 0 {
		t.Fatal("unconfigured executor touched the link")
	}
}

func TestUninitializedDeviceStaysOffTheBus(t *testing.T) {
	h := newBusHarness(t, echoResponder)
	h.dev.SetInitialized(false)
	h.queue.Enqueue(h.proto.ReadRPMCommand())

	h.x.iterate()

	if h.port.frameCount() != 0 {
		t.Fatal("uninitialized device reached the bus")
	}
	if h.queue.Len() != 1 {
		t.Fatal("queued command consumed while uninitialized")
	}
}
