// internal/bus/link.go
package bus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// ErrLinkClosed is returned when the link is used before Reopen or after
// Close.
var ErrLinkClosed = errors.New("bus: link not open")

// LinkSettings describes the serial side of the bus, already validated by
// the configuration layer.
type LinkSettings struct {
	Device   string
	Baud     int
	DataBits int
	Parity   string // "N", "E" or "O"
	StopBits int

	// ResponseTimeout bounds each blocking read while a reply is collected.
	ResponseTimeout time.Duration

	// RS485 drives the RTS line around transmissions, for adapters that need
	// explicit direction control on the half-duplex pair.
	RS485 RS485Settings
}

type RS485Settings struct {
	Enabled       bool
	RTSBeforeSend time.Duration
	RTSAfterSend  time.Duration
}

// Link is the one serial port of the bus. It survives re-initialization:
// Reopen swaps the underlying device while the executor keeps its reference.
type Link struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	open func(LinkSettings) (io.ReadWriteCloser, error)
}

func NewLink() *Link {
	return &Link{open: openSerial}
}

// NewLinkWithOpener substitutes the function that turns settings into an open
// port. Tests script the port; everything else goes through goburrow/serial.
func NewLinkWithOpener(open func(LinkSettings) (io.ReadWriteCloser, error)) *Link {
	return &Link{open: open}
}

func openSerial(s LinkSettings) (io.ReadWriteCloser, error) {
	port, err := serial.Open(&serial.Config{
		Address:  s.Device,
		BaudRate: s.Baud,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
		Timeout:  s.ResponseTimeout,
		RS485: serial.RS485Config{
			Enabled:            s.RS485.Enabled,
			DelayRtsBeforeSend: s.RS485.RTSBeforeSend,
			DelayRtsAfterSend:  s.RS485.RTSAfterSend,
			RtsHighDuringSend:  true,
			RtsHighAfterSend:   false,
			RxDuringTx:         false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bus: open %s: %w", s.Device, err)
	}
	return port, nil
}

// Reopen closes whatever is open and opens the device in s. Safe to call
// while the executor runs: reads and writes in flight finish against the old
// port and fail their attempt.
func (l *Link) Reopen(s LinkSettings) error {
	port, err := l.open(s)
	if err != nil {
		return err
	}
	l.mu.Lock()
	old := l.port
	l.port = port
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (l *Link) Write(p []byte) (int, error) {
	port := l.current()
	if port == nil {
		return 0, ErrLinkClosed
	}
	return port.Write(p)
}

func (l *Link) Read(p []byte) (int, error) {
	port := l.current()
	if port == nil {
		return 0, ErrLinkClosed
	}
	return port.Read(p)
}

func (l *Link) Close() error {
	l.mu.Lock()
	port := l.port
	l.port = nil
	l.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}

func (l *Link) current() io.ReadWriteCloser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// IsTimeout reports whether err is the serial layer's read deadline, the
// quiet no-reply case rather than a broken port.
func IsTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout)
}
