package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/dinocore1/cancomms/internal/can"
	"github.com/dinocore1/cancomms/internal/logging"
	"github.com/dinocore1/cancomms/internal/metrics"
)

// Transport is the bus-side boundary of the bridge: a handle to a local CAN
// attachment that can block for the next frame and send one frame.
// Implemented by *socketcan.Device and *serial.Transport.
type Transport interface {
	// ReadFrame blocks until one frame is received or the handle fails.
	ReadFrame(*can.Frame) error
	// WriteFrame sends one frame, best-effort flushed by the implementation.
	WriteFrame(can.Frame) error
	Close() error
}

const (
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond

	// DefaultRxBuffer is the bus RX channel capacity. Frames arriving while
	// no session is draining the channel are dropped once it fills, so the
	// bus reader never blocks behind an absent TCP peer.
	DefaultRxBuffer = 512
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// StartRx launches the bus read loop and returns the channel it feeds.
// The channel is closed when the handle yields no more frames (closed device,
// clean end of stream) or the context is cancelled; transient read errors are
// logged and retried with exponential backoff. Exactly one goroutine touches
// the handle's read side.
func StartRx(ctx context.Context, dev Transport, buffer int, l *slog.Logger) <-chan can.Frame {
	if buffer <= 0 {
		buffer = DefaultRxBuffer
	}
	if l == nil {
		l = logging.L()
	}
	ch := make(chan can.Frame, buffer)
	go func() {
		defer close(ch)
		defer l.Debug("can_rx_end")
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var fr can.Frame
			if err := dev.ReadFrame(&fr); err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				if isFatalRead(err) {
					l.Info("can_rx_closed", "error", err)
					return
				}
				metrics.IncError(metrics.ErrCANRead)
				l.Warn("can_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
				continue
			}
			metrics.IncCANRx()
			backoff = rxBackoffMin
			select {
			case ch <- fr:
			default:
				metrics.IncRxDrop()
			}
		}
	}()
	return ch
}

// isFatalRead reports whether a read error means the handle is gone for good
// rather than a transient bus fault.
func isFatalRead(err error) bool {
	var perr *os.PathError
	if errors.As(err, &perr) {
		return true // device removed
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EBADF)
}
