// Package bridge forwards CAN frames between a local bus attachment and a
// remote TCP peer, one session at a time.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/dinocore1/cancomms/internal/can"
	"github.com/dinocore1/cancomms/internal/logging"
	"github.com/dinocore1/cancomms/internal/metrics"
	"github.com/dinocore1/cancomms/internal/wire"
)

// DefaultSendDelay paces TCP->bus forwarding so a relayed burst cannot
// saturate the physical bus. Applied only after a successful send.
const DefaultSendDelay = 10 * time.Millisecond

const tcpReadBufSize = 4096

// Pump runs one bridging session over one TCP connection. Frames arriving
// on BusRx are encoded onto the connection; frames decoded off the
// connection are handed to Send. A single task services both directions, so
// neither the connection nor the bus handle ever sees concurrent writers.
type Pump struct {
	// BusRx yields inbound bus frames; its closure means the bus side is
	// done and ends the session with ErrBusClosed.
	BusRx <-chan can.Frame
	// Send transmits one frame to the bus.
	Send func(can.Frame) error
	// Conn is the peer connection; Run owns it and closes it on return.
	Conn net.Conn
	// SendDelay is the pause after each successful bus send. Zero disables
	// pacing; drivers default it to DefaultSendDelay.
	SendDelay time.Duration
	Logger    *slog.Logger

	codec wire.Codec
}

type tcpResult struct {
	frame can.Frame
	err   error
}

// Run drives the session until one side closes or a session-ending fault
// occurs. A clean close of the TCP side returns nil; a clean close of the
// bus side returns ErrBusClosed. Single I/O errors in either direction are
// logged and the loop continues.
func (p *Pump) Run(ctx context.Context) error {
	l := p.Logger
	if l == nil {
		l = logging.L()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { _ = p.Conn.Close() }()

	metrics.SessionStart()
	defer metrics.SessionEnd()
	l.Info("session_start", "remote", p.Conn.RemoteAddr().String())

	tcpCh := make(chan tcpResult)
	go p.readConn(ctx, tcpCh, l)

	w := bufio.NewWriter(p.Conn)
	for {
		select {
		case fr, ok := <-p.BusRx:
			if !ok {
				l.Info("session_end", "reason", "bus closed")
				return ErrBusClosed
			}
			if fr.Err() {
				// No wire encoding exists for bus error frames; drop with a trace.
				metrics.IncErrorFrames()
				l.Warn("error_frame_dropped", "can_id", fmt.Sprintf("0x%X", fr.CANID))
				continue
			}
			if _, err := p.codec.EncodeTo(w, fr); err != nil {
				metrics.IncError(metrics.ErrTCPWrite)
				l.Error("tcp_write_error", "error", fmt.Errorf("%w: %v", ErrConnWrite, err))
				w.Reset(p.Conn)
				continue
			}
			if err := w.Flush(); err != nil {
				metrics.IncError(metrics.ErrTCPWrite)
				l.Error("tcp_flush_error", "error", fmt.Errorf("%w: %v", ErrConnWrite, err))
				// A failed flush poisons the bufio.Writer; reset so the next
				// frame gets a fresh attempt. The unsent frame is dropped.
				w.Reset(p.Conn)
				continue
			}
			metrics.IncTCPTx()
			l.Debug("can_to_tcp", "can_id", fmt.Sprintf("0x%X", fr.CANID), "len", fr.Len)

		case r, ok := <-tcpCh:
			if !ok {
				l.Info("session_end", "reason", "peer closed")
				return nil
			}
			if r.err != nil {
				metrics.IncError(mapErrToMetric(r.err))
				l.Error("session_end", "error", r.err)
				return r.err
			}
			metrics.IncTCPRx()
			if err := p.Send(r.frame); err != nil {
				metrics.IncError(metrics.ErrCANWrite)
				l.Error("bus_tx_error", "error", fmt.Errorf("%w: %v", ErrBusTx, err),
					"can_id", fmt.Sprintf("0x%X", r.frame.CANID))
				continue
			}
			metrics.IncCANTx()
			l.Debug("tcp_to_can", "can_id", fmt.Sprintf("0x%X", r.frame.CANID), "len", r.frame.Len)
			if p.SendDelay > 0 {
				select {
				case <-time.After(p.SendDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

		case <-ctx.Done():
			l.Info("session_end", "reason", "cancelled")
			return ctx.Err()
		}
	}
}

// readConn accumulates connection bytes, decodes complete frames and hands
// them to the session loop. The accumulator is owned exclusively here; it
// holds at most one partial frame of trailing bytes in the steady state.
// The channel is closed on clean end of stream.
func (p *Pump) readConn(ctx context.Context, out chan<- tcpResult, l *slog.Logger) {
	defer close(out)
	deliver := func(r tcpResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var acc []byte
	var readErr error
	chunk := make([]byte, tcpReadBufSize)
	for {
		// Drain every complete frame before looking at a read error: the
		// final Read may deliver the last frame and EOF together.
		for {
			fr, n, err := p.codec.Decode(acc)
			if n > 0 {
				acc = acc[n:]
			}
			if errors.Is(err, wire.ErrErrorFrame) {
				l.Warn("error_frame_dropped", "can_id", fmt.Sprintf("0x%X", fr.CANID))
				continue
			}
			if err != nil {
				deliver(tcpResult{err: fmt.Errorf("%w: %v", ErrConnRead, err)})
				return
			}
			if n == 0 {
				break // need more bytes
			}
			if !deliver(tcpResult{frame: fr}) {
				return
			}
		}

		if readErr != nil {
			if len(acc) > 0 {
				// Stream ended mid-frame: the peer broke the framing contract.
				metrics.IncPeerReset()
				deliver(tcpResult{err: fmt.Errorf("%w: %d bytes buffered mid-frame", ErrPeerReset, len(acc))})
				return
			}
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, net.ErrClosed) {
				return // clean end of stream
			}
			deliver(tcpResult{err: fmt.Errorf("%w: %v", ErrConnRead, readErr)})
			return
		}

		n, err := p.Conn.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)
		}
		readErr = err
	}
}

// tuneConn applies the TCP options every session uses.
func tuneConn(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
}
