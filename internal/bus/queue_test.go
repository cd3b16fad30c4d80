// internal/bus/queue_test.go
package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/spindle-link/internal/vfd"
)

func TestQueueIsFIFO(t *testing.T) {
	q := NewQueue(10)
	a := &vfd.Command{Payload: []byte{0x01}}
	b := &vfd.Command{Payload: []byte{0x02}}
	if err := q.Enqueue(a); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(b); err != nil {
		t.Fatal(err)
	}
	if got, ok := q.Dequeue(0); !ok || got != a {
		t.Fatal("first out was not first in")
	}
	if got, ok := q.Dequeue(0); !ok || got != b {
		t.Fatal("second dequeue did not return the second command")
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	q := NewQueue(10)
	cmd := &vfd.Command{}
	for i := 0; i < q.Cap(); i++ {
		if err := q.Enqueue(cmd); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	done := make(chan error, 1)
	go func() { done <- q.Enqueue(cmd) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("full queue returned %v, want ErrQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestQueueDepthFloor(t *testing.T) {
	if got := NewQueue(3).Cap(); got != MinQueueDepth {
		t.Fatalf("Cap() = %d, want the %d floor", got, MinQueueDepth)
	}
	if got := NewQueue(32).Cap(); got != 32 {
		t.Fatalf("Cap() = %d, want 32", got)
	}
}

func TestDequeueTimesOut(t *testing.T) {
	q := NewQueue(10)
	start := time.Now()
	if _, ok := q.Dequeue(20 * time.Millisecond); ok {
		t.Fatal("empty queue produced a command")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Dequeue waited far past its timeout")
	}
	if _, ok := q.Dequeue(0); ok {
		t.Fatal("non-blocking Dequeue produced a command")
	}
}

func TestDequeueSeesLateArrival(t *testing.T) {
	q := NewQueue(10)
	cmd := &vfd.Command{}
	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Enqueue(cmd)
	}()
	got, ok := q.Dequeue(time.Second)
	if !ok || got != cmd {
		t.Fatal("Dequeue missed a command enqueued during its wait")
	}
}

func TestDrainCountsAndEmpties(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 4; i++ {
		q.Enqueue(&vfd.Command{})
	}
	if n := q.Drain(); n != 4 {
		t.Fatalf("Drain() = %d, want 4", n)
	}
	if q.Len() != 0 {
		t.Fatal("queue not empty after Drain")
	}
	if err := q.Enqueue(&vfd.Command{}); err != nil {
		t.Fatalf("queue unusable after Drain: %v", err)
	}
}
