package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dinocore1/cancomms/internal/logging"
	"github.com/dinocore1/cancomms/internal/metrics"
	"github.com/dinocore1/cancomms/internal/transport"
)

// Options tune a bridge driver.
type Options struct {
	// SendDelay paces TCP->bus forwarding; zero means DefaultSendDelay,
	// negative disables pacing.
	SendDelay time.Duration
	// RxBuffer is the bus RX channel capacity (frames).
	RxBuffer int
	Logger   *slog.Logger
}

func (o Options) sendDelay() time.Duration {
	switch {
	case o.SendDelay < 0:
		return 0
	case o.SendDelay == 0:
		return DefaultSendDelay
	default:
		return o.SendDelay
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.L()
}

// Forward dials dest once, runs a single session over the connection and
// returns its terminal result. Resolution uses the first address dest maps
// to. Resolve and dial failures are startup faults.
func Forward(ctx context.Context, dev transport.Transport, dest string, opts Options) error {
	l := opts.logger()

	addr, err := net.ResolveTCPAddr("tcp", dest)
	if err != nil {
		metrics.IncError(metrics.ErrResolve)
		return fmt.Errorf("%w %q: %v", ErrResolve, dest, err)
	}
	l.Debug("dest_resolved", "dest", dest, "addr", addr.String())

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		metrics.IncError(metrics.ErrDial)
		return fmt.Errorf("%w %s: %v", ErrDial, addr, err)
	}
	tuneConn(conn)
	l.Info("connected", "remote", conn.RemoteAddr().String())

	pump := &Pump{
		BusRx:     transport.StartRx(ctx, dev, opts.RxBuffer, l),
		Send:      dev.WriteFrame,
		Conn:      conn,
		SendDelay: opts.sendDelay(),
		Logger:    l,
	}
	err = pump.Run(ctx)
	if errors.Is(err, ErrBusClosed) {
		return nil
	}
	return err
}
