// Package wire implements the stream framing used between bridge peers.
//
// Each frame is encoded as a 4-byte big-endian ID word (EFF/RTR/ERR flags in
// the top three bits, identifier below), one length byte, then the payload.
// Remote frames carry no payload and are exactly HeaderLen bytes; the length
// byte is the requested length. There is no separator between frames; the
// stream is delimited entirely by the length byte.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dinocore1/cancomms/internal/can"
	"github.com/dinocore1/cancomms/internal/metrics"
)

// HeaderLen is the fixed ID-word plus length-byte prefix of every frame.
const HeaderLen = 5

// ErrInvalidLength is returned when a data frame length byte is outside 0..8.
var ErrInvalidLength = errors.New("wire: invalid length")

// ErrErrorFrame is returned for ERR-flagged frames. There is no wire encoding
// for CAN error frames; encoding refuses to write one and decoding surfaces
// the flagged frame alongside this sentinel so callers can drop it without
// losing stream sync.
var ErrErrorFrame = errors.New("wire: error frame unsupported")

// Codec transcodes frames. Stateless and safe for concurrent use.
type Codec struct{}

// AppendFrame appends the wire form of f to dst and returns the extended
// slice. Data frames append HeaderLen+Len bytes, remote frames exactly
// HeaderLen. ERR-flagged frames and payload lengths above the classic CAN
// limit are rejected without writing anything.
func (Codec) AppendFrame(dst []byte, f can.Frame) ([]byte, error) {
	if f.Err() {
		return dst, ErrErrorFrame
	}
	if f.Len > can.MaxDataLen {
		return dst, fmt.Errorf("%w (%d)", ErrInvalidLength, f.Len)
	}
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:4], f.CANID)
	hdr[4] = f.Len
	dst = append(dst, hdr[:]...)
	if !f.Remote() {
		dst = append(dst, f.Data[:f.Len]...)
	}
	return dst, nil
}

// EncodeTo writes the wire form of f to w and returns bytes written.
func (c Codec) EncodeTo(w io.Writer, f can.Frame) (int, error) {
	var scratch [HeaderLen + can.MaxDataLen]byte
	buf, err := c.AppendFrame(scratch[:0], f)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("wire encode: %w", err)
	}
	return n, nil
}

// Decode extracts one frame from the front of buf and reports how many bytes
// it consumed. A zero consumed count with a nil error means the buffer does
// not yet hold a complete frame; the caller should read more bytes and call
// again (the result is the same for unchanged input). Remote frames consume
// exactly HeaderLen bytes regardless of the length byte, which is clamped to
// the classic CAN limit. A data length byte above the limit is a protocol
// violation and consumes nothing. ERR-flagged frames consume the data-frame
// layout and are returned together with ErrErrorFrame.
func (Codec) Decode(buf []byte) (can.Frame, int, error) {
	var f can.Frame
	if len(buf) < HeaderLen {
		return f, 0, nil
	}
	id := binary.BigEndian.Uint32(buf[:4])
	ln := int(buf[4])

	if id&can.CAN_RTR_FLAG != 0 {
		// Remote frames never carry payload bytes; the length byte is
		// metadata only. A non-conformant peer may report more than 8.
		if ln > can.MaxDataLen {
			ln = can.MaxDataLen
		}
		f.CANID = id
		f.Len = uint8(ln)
		if id&can.CAN_ERR_FLAG != 0 {
			metrics.IncErrorFrames()
			return f, HeaderLen, ErrErrorFrame
		}
		return f, HeaderLen, nil
	}

	if ln > can.MaxDataLen {
		metrics.IncMalformed()
		return f, 0, fmt.Errorf("wire decode: %w (%d)", ErrInvalidLength, ln)
	}
	if len(buf) < HeaderLen+ln {
		return f, 0, nil
	}
	f.CANID = id
	f.Len = uint8(ln)
	copy(f.Data[:ln], buf[HeaderLen:HeaderLen+ln])
	if id&can.CAN_ERR_FLAG != 0 {
		metrics.IncErrorFrames()
		return f, HeaderLen + ln, ErrErrorFrame
	}
	return f, HeaderLen + ln, nil
}

// Needed returns how many more bytes the buffer is short of the next
// complete frame, or zero when one is already available. Callers use it to
// size the next read without re-scanning header bytes.
func (Codec) Needed(buf []byte) int {
	if len(buf) < HeaderLen {
		return HeaderLen - len(buf)
	}
	id := binary.BigEndian.Uint32(buf[:4])
	if id&can.CAN_RTR_FLAG != 0 {
		return 0
	}
	ln := int(buf[4])
	if ln > can.MaxDataLen {
		return 0
	}
	if len(buf) < HeaderLen+ln {
		return HeaderLen + ln - len(buf)
	}
	return 0
}
