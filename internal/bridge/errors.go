package bridge

import (
	"errors"

	"github.com/dinocore1/cancomms/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrResolve   = errors.New("resolve")
	ErrDial      = errors.New("dial")
	ErrListen    = errors.New("listen")
	ErrAccept    = errors.New("accept")
	ErrConnRead  = errors.New("conn_read")
	ErrConnWrite = errors.New("conn_write")
	ErrBusTx     = errors.New("bus_tx")

	// ErrPeerReset marks a session ended by the TCP peer closing while a
	// partial frame was still buffered: a framing-contract violation, not a
	// normal transport drop.
	ErrPeerReset = errors.New("connection reset by peer")

	// ErrBusClosed is returned by Pump.Run when the bus side yields no more
	// frames. Forward mode treats it as a clean exit; listen mode stops
	// serving since there is no bus left to bridge.
	ErrBusClosed = errors.New("bus closed")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead), errors.Is(err, ErrPeerReset):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrTCPWrite
	case errors.Is(err, ErrBusTx):
		return metrics.ErrCANWrite
	case errors.Is(err, ErrResolve):
		return metrics.ErrResolve
	case errors.Is(err, ErrDial):
		return metrics.ErrDial
	case errors.Is(err, ErrListen):
		return metrics.ErrListen
	case errors.Is(err, ErrAccept):
		return metrics.ErrAccept
	default:
		return "other"
	}
}
