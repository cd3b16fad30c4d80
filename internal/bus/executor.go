// internal/bus/executor.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tamzrod/spindle-link/internal/crc"
	"github.com/tamzrod/spindle-link/internal/health"
	"github.com/tamzrod/spindle-link/internal/vfd"
)

// Settings tune the transaction loop.
type Settings struct {
	// PollInterval is slept at the end of every iteration, whether or not
	// the pass transacted anything. It paces the whole bus.
	PollInterval time.Duration

	// ResponseTimeout bounds the wait for a reply within one attempt.
	ResponseTimeout time.Duration

	// MaxRetries is the attempt ceiling per transaction. Values below 1 run
	// a single attempt.
	MaxRetries int

	// Diagnostics logs every frame and every failed attempt instead of only
	// episode edges.
	Diagnostics bool
}

// Executor owns the link. While Run is up nothing else may read or write the
// port: commands arrive through the queue, and the gaps between them are
// filled with the poll cycle.
type Executor struct {
	link *Link
	dev  *vfd.Device
	sys  FaultRaiser

	mu       sync.Mutex
	queue    *Queue
	proto    vfd.Protocol
	settings Settings

	// Loop-private; only Run's goroutine touches these.
	poll    PollState
	tracker health.Tracker
	alarmed bool
}

// NewExecutor wires the loop to its collaborators. sys must be non-nil; the
// loop raises faults without checking.
func NewExecutor(link *Link, dev *vfd.Device, sys FaultRaiser) *Executor {
	return &Executor{link: link, dev: dev, sys: sys}
}

// Reconfigure swaps the command source, protocol family and tuning in one
// step. The running loop picks the new set up on its next pass. The caller
// drains or discards the old queue.
func (x *Executor) Reconfigure(q *Queue, p vfd.Protocol, s Settings) {
	x.mu.Lock()
	x.queue, x.proto, x.settings = q, p, s
	x.mu.Unlock()
}

func (x *Executor) snapshot() (*Queue, vfd.Protocol, Settings) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.queue, x.proto, x.settings
}

// Run executes transactions until ctx is done. Start it once; the device's
// task guard enforces that for the controller.
func (x *Executor) Run(ctx context.Context) {
	log.Printf("[bus] transaction loop running")
	for ctx.Err() == nil {
		wait := x.iterate()
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	log.Printf("[bus] transaction loop stopped")
}

// iterate performs one pass: finish capability discovery first, then take a
// queued command if there is one, otherwise advance the poll cycle; execute;
// fold the outcome into the debounced health view. It returns the pacing
// interval so Run sleeps even when the pass had nothing to do.
func (x *Executor) iterate() time.Duration {
	queue, proto, st := x.snapshot()
	if queue == nil || proto == nil || !x.dev.Initialized() {
		// Not configured yet, or a reconfigure is in flight. Check again
		// shortly.
		return 50 * time.Millisecond
	}

	// Discovery outranks the queue: until the drive's ceiling is known,
	// every speed setpoint would be scaled against a family default.
	var cmd *vfd.Command
	if !x.dev.Synced() {
		x.poll = PollDiscover
		cmd = pollCommand(proto, x.poll)
	}
	if cmd == nil {
		var ok bool
		cmd, ok = queue.Dequeue(0)
		if !ok {
			caps := Caps{Synced: x.dev.Synced(), Reads: proto.Reads()}
			x.poll = NextPoll(x.poll, caps)
			cmd = pollCommand(proto, x.poll)
			if cmd == nil {
				return st.PollInterval
			}
		}
	}

	err := x.transact(cmd, st)
	x.settle(cmd, queue, err, st)
	return st.PollInterval
}

// errRejected marks a reply that arrived intact but was refused by the
// command's interpreter. The drive heard us and answered; resending the same
// frame cannot change its answer, so these end the transaction without
// another attempt.
var errRejected = errors.New("reply rejected")

// transact runs one command through the attempt ladder: frame, send,
// collect, validate, interpret. A transport failure burns an attempt and the
// frame is resent after one poll interval, up to the retry ceiling. A
// rejected reply fails the transaction outright.
func (x *Executor) transact(cmd *vfd.Command, st Settings) error {
	frame := make([]byte, 0, cmd.TxLength()+2)
	frame = append(frame, cmd.Addr)
	frame = append(frame, cmd.Payload...)
	frame = crc.Append(frame)

	retries := st.MaxRetries
	if retries < 1 {
		retries = 1
	}
	var last error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			time.Sleep(st.PollInterval)
			x.drainLine(st)
		}
		err := x.attempt(cmd, frame, st)
		if err == nil {
			return nil
		}
		if errors.Is(err, errRejected) {
			return err
		}
		last = err
		if st.Diagnostics {
			log.Printf("[bus] attempt %d/%d: %v", attempt, retries, err)
		}
	}
	return fmt.Errorf("%d attempts: %w", retries, last)
}

func (x *Executor) attempt(cmd *vfd.Command, frame []byte, st Settings) error {
	if st.Diagnostics {
		log.Printf("[bus] tx % X", frame)
	}
	if _, err := x.link.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	want := cmd.RxLength + 2
	resp := make([]byte, want)
	deadline := time.Now().Add(st.ResponseTimeout)
	n := 0
	for n < want {
		r, err := x.link.Read(resp[n:])
		n += r
		if err != nil {
			if !IsTimeout(err) {
				return fmt.Errorf("read: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("no reply within %v", st.ResponseTimeout)
			}
			return fmt.Errorf("reply stalled at %d of %d bytes", n, want)
		}
		if n < want && time.Now().After(deadline) {
			return fmt.Errorf("reply stalled at %d of %d bytes", n, want)
		}
	}
	if st.Diagnostics {
		log.Printf("[bus] rx % X", resp)
	}

	if !crc.Check(resp) {
		return fmt.Errorf("reply failed checksum")
	}
	if resp[0] != cmd.Addr {
		return fmt.Errorf("reply from address %d, want %d", resp[0], cmd.Addr)
	}
	if cmd.OnReply != nil {
		if err := cmd.OnReply(resp[:want-2], x.dev); err != nil {
			return fmt.Errorf("%w: %v", errRejected, err)
		}
	}
	return nil
}

// drainLine discards whatever is still in flight so a retry does not parse
// the tail of the failed exchange. Bounded, so a babbling drive cannot pin
// the loop here.
func (x *Executor) drainLine(st Settings) {
	scratch := make([]byte, 64)
	for i := 0; i < 4; i++ {
		n, err := x.link.Read(scratch)
		if n > 0 && st.Diagnostics {
			log.Printf("[bus] drained %d stray bytes", n)
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// settle folds a transaction outcome into the debounced health view and
// handles the critical-failure contract: clear the queue, raise the fault,
// at most once per episode.
func (x *Executor) settle(cmd *vfd.Command, queue *Queue, err error, st Settings) {
	if err == nil {
		if n, edge := x.tracker.Recover(); edge {
			x.dev.SetUnresponsive(false)
			log.Printf("[bus] drive responding again, %d transactions lost in the episode", n)
		}
		x.alarmed = false
		return
	}

	if x.tracker.Fail() {
		x.dev.SetUnresponsive(true)
		log.Printf("[bus] drive unresponsive: %v", err)
	} else if st.Diagnostics {
		log.Printf("[bus] still unresponsive: %v", err)
	}

	if cmd.Critical && !x.alarmed {
		x.alarmed = true
		dropped := queue.Drain()
		log.Printf("[bus] critical command failed, dropped %d queued commands, raising fault", dropped)
		x.sys.RaiseFault(FaultSpindleComm)
	}
}
