// internal/bus/queue.go
package bus

import (
	"errors"
	"time"

	"github.com/tamzrod/spindle-link/internal/vfd"
)

// ErrQueueFull is returned by Enqueue when every slot is taken. Callers log
// and drop; their own cadence guarantees the command is offered again.
var ErrQueueFull = errors.New("bus: command queue full")

// MinQueueDepth is the smallest queue the bus will run with. A shallower
// queue starts dropping inside a single controller burst (state change,
// speed, stop) plus in-flight polls.
const MinQueueDepth = 10

// Queue is the bounded handoff between foreground callers and the
// transaction loop. Enqueue never blocks the caller; Dequeue waits at most
// its timeout. The loop is the only consumer.
type Queue struct {
	ch chan *vfd.Command
}

// NewQueue returns a queue with the given capacity, raised to MinQueueDepth
// when asked for less.
func NewQueue(depth int) *Queue {
	if depth < MinQueueDepth {
		depth = MinQueueDepth
	}
	return &Queue{ch: make(chan *vfd.Command, depth)}
}

// Enqueue adds cmd or returns ErrQueueFull immediately.
func (q *Queue) Enqueue(cmd *vfd.Command) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue returns the oldest queued command, waiting up to timeout for one
// to show up. A timeout of zero or less means a single non-blocking check.
func (q *Queue) Dequeue(timeout time.Duration) (*vfd.Command, bool) {
	if timeout <= 0 {
		select {
		case cmd := <-q.ch:
			return cmd, true
		default:
			return nil, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case cmd := <-q.ch:
		return cmd, true
	case <-timer.C:
		return nil, false
	}
}

// Drain discards every queued command and reports how many it dropped.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len is the number of commands currently waiting.
func (q *Queue) Len() int { return len(q.ch) }

// Cap is the configured capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
