// Package serial attaches the bridge to a CAN adapter on a serial line.
// The link carries the same header-style framing as the TCP side, so one
// codec serves both.
package serial

import (
	"errors"
	"fmt"
	"io"

	"github.com/dinocore1/cancomms/internal/can"
	"github.com/dinocore1/cancomms/internal/wire"
)

const readBufSize = 4096

// largeBufferReclaimThreshold is the capacity above which the RX
// accumulation buffer is discarded and reallocated once empty. Prevents a
// burst of line noise from permanently retaining a large backing array.
const largeBufferReclaimThreshold = 16 * 1024

// Transport adapts a serial Port to the bus Transport interface.
// Not safe for concurrent readers; the RX pump is the only reader.
type Transport struct {
	port  Port
	codec wire.Codec
	acc   []byte
	chunk []byte
}

func NewTransport(p Port) *Transport {
	return &Transport{port: p, chunk: make([]byte, readBufSize)}
}

// ReadFrame blocks until one complete frame arrives on the line.
// ERR-flagged frames are skipped. A length byte outside the classic limit
// means the stream lost sync; the accumulator is dropped and the error
// returned so the caller can log it and keep reading.
func (t *Transport) ReadFrame(fr *can.Frame) error {
	for {
		for len(t.acc) > 0 {
			f, n, err := t.codec.Decode(t.acc)
			if n > 0 {
				t.acc = t.acc[n:]
			}
			if errors.Is(err, wire.ErrErrorFrame) {
				continue
			}
			if err != nil {
				t.acc = nil
				return fmt.Errorf("serial resync: %w", err)
			}
			if n == 0 {
				break // need more bytes
			}
			*fr = f
			t.reclaim()
			return nil
		}
		t.reclaim()
		n, err := t.port.Read(t.chunk)
		if n > 0 {
			t.acc = append(t.acc, t.chunk[:n]...)
		}
		if err != nil {
			// tarm reports a read timeout as EOF; the line is still up.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue
			}
			return err
		}
	}
}

func (t *Transport) reclaim() {
	if len(t.acc) == 0 && cap(t.acc) > largeBufferReclaimThreshold {
		t.acc = nil
	}
}

// WriteFrame encodes and writes one frame to the line.
func (t *Transport) WriteFrame(fr can.Frame) error {
	_, err := t.codec.EncodeTo(t.port, fr)
	return err
}

func (t *Transport) Close() error { return t.port.Close() }
