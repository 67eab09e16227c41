package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dinocore1/cancomms/internal/metrics"
	"github.com/dinocore1/cancomms/internal/transport"
)

// Listener serves bridge sessions over accepted TCP connections, strictly
// one at a time: a second connection attempt is not accepted until the
// running session ends.
type Listener struct {
	opts     Options
	ln       net.Listener
	sessions uint64
}

// NewListener binds addr. Bind failures are startup faults.
func NewListener(addr string, opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.IncError(metrics.ErrListen)
		return nil, fmt.Errorf("%w %s: %v", ErrListen, addr, err)
	}
	opts.logger().Info("tcp_listen", "addr", ln.Addr().String())
	return &Listener{opts: opts, ln: ln}, nil
}

// Addr returns the bound listen address.
func (s *Listener) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts and bridges connections until the context is cancelled or
// the bus side closes. Session faults (peer reset, read errors) end only the
// affected session; the next connection is accepted afterwards.
func (s *Listener) Serve(ctx context.Context, dev transport.Transport) error {
	l := s.opts.logger()
	busRx := transport.StartRx(ctx, dev, s.opts.RxBuffer, l)
	go func() { <-ctx.Done(); _ = s.ln.Close() }()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() { // transient
				time.Sleep(200 * time.Millisecond)
				continue
			}
			metrics.IncError(metrics.ErrAccept)
			return fmt.Errorf("%w: %v", ErrAccept, err)
		}
		tuneConn(conn)
		s.sessions++
		sl := l.With("session_id", s.sessions, "remote", conn.RemoteAddr().String())

		pump := &Pump{
			BusRx:     busRx,
			Send:      dev.WriteFrame,
			Conn:      conn,
			SendDelay: s.opts.sendDelay(),
			Logger:    sl,
		}
		err = pump.Run(ctx)
		switch {
		case err == nil:
			// clean peer close; accept the next connection
		case errors.Is(err, ErrBusClosed):
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		default:
			sl.Warn("session_fault", "error", err)
		}
	}
}
