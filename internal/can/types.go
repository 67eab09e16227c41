package can

import (
	"errors"
	"fmt"
)

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// MaxDataLen is the classic CAN payload limit.
const MaxDataLen = 8

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Frame is a classic CAN frame. CANID carries the EFF/RTR/ERR flags in its
// upper bits like SocketCAN. Len is the payload length (0..8); for remote
// frames it is the requested length and no data bytes are valid.
type Frame struct {
	CANID uint32
	Len   uint8
	Data  [MaxDataLen]byte
}

// ID returns the identifier masked per the frame format (11 or 29 bits).
func (f Frame) ID() uint32 {
	if f.Extended() {
		return f.CANID & CAN_EFF_MASK
	}
	return f.CANID & CAN_SFF_MASK
}

func (f Frame) Extended() bool { return f.CANID&CAN_EFF_FLAG != 0 }
func (f Frame) Remote() bool   { return f.CANID&CAN_RTR_FLAG != 0 }
func (f Frame) Err() bool      { return f.CANID&CAN_ERR_FLAG != 0 }

// Payload returns the valid portion of Data. Nil for remote frames.
func (f Frame) Payload() []byte {
	if f.Remote() {
		return nil
	}
	n := f.Len
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

// NewDataFrame builds a data frame. The identifier is masked to 11 or 29
// bits per extended. Payloads longer than 8 bytes are rejected.
func NewDataFrame(id uint32, extended bool, data []byte) (Frame, error) {
	if len(data) > MaxDataLen {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidLen, len(data))
	}
	var f Frame
	f.CANID = maskID(id, extended)
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, nil
}

// NewRemoteFrame builds a remote transmission request for n bytes under id.
func NewRemoteFrame(id uint32, extended bool, n uint8) (Frame, error) {
	if n > MaxDataLen {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidLen, n)
	}
	var f Frame
	f.CANID = maskID(id, extended) | CAN_RTR_FLAG
	f.Len = n
	return f, nil
}

func maskID(id uint32, extended bool) uint32 {
	if extended {
		return (id & CAN_EFF_MASK) | CAN_EFF_FLAG
	}
	return id & CAN_SFF_MASK
}

// Validate checks identifier range against the format flag and the payload
// length against the classic CAN limit.
func (f Frame) Validate() error {
	if f.Len > MaxDataLen {
		return fmt.Errorf("%w: %d", ErrInvalidLen, f.Len)
	}
	id := f.CANID &^ (CAN_EFF_FLAG | CAN_RTR_FLAG | CAN_ERR_FLAG)
	if f.Extended() {
		if id > CAN_EFF_MASK {
			return fmt.Errorf("%w: 0x%X", ErrInvalidID, id)
		}
	} else if id > CAN_SFF_MASK {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, id)
	}
	return nil
}

func (f Frame) CopyShallow() Frame { // handy for tests
	var g Frame
	g.CANID, g.Len = f.CANID, f.Len
	copy(g.Data[:], f.Data[:])
	return g
}
