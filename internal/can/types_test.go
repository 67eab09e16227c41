package can

import (
	"errors"
	"testing"
)

func TestNewDataFrame_MasksIdentifier(t *testing.T) {
	f, err := NewDataFrame(0x12345, false, []byte{1})
	if err != nil {
		t.Fatalf("NewDataFrame: %v", err)
	}
	if f.Extended() {
		t.Fatalf("standard frame reported extended")
	}
	if f.ID() != 0x12345&CAN_SFF_MASK {
		t.Fatalf("id not masked to 11 bits: 0x%X", f.ID())
	}

	f, err = NewDataFrame(0x12345, true, nil)
	if err != nil {
		t.Fatalf("NewDataFrame ext: %v", err)
	}
	if !f.Extended() || f.ID() != 0x12345 {
		t.Fatalf("extended frame mangled: ext=%v id=0x%X", f.Extended(), f.ID())
	}
	if f.Len != 0 {
		t.Fatalf("zero payload should give Len=0, got %d", f.Len)
	}
}

func TestNewDataFrame_RejectsOversizePayload(t *testing.T) {
	if _, err := NewDataFrame(0x10, false, make([]byte, 9)); !errors.Is(err, ErrInvalidLen) {
		t.Fatalf("want ErrInvalidLen, got %v", err)
	}
}

func TestNewRemoteFrame(t *testing.T) {
	f, err := NewRemoteFrame(10, false, 3)
	if err != nil {
		t.Fatalf("NewRemoteFrame: %v", err)
	}
	if !f.Remote() || f.Len != 3 || f.ID() != 10 {
		t.Fatalf("remote frame mangled: %+v", f)
	}
	if f.Payload() != nil {
		t.Fatalf("remote frame must have nil payload")
	}
	if _, err := NewRemoteFrame(10, false, 9); !errors.Is(err, ErrInvalidLen) {
		t.Fatalf("want ErrInvalidLen for requested length 9, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
		ok   bool
	}{
		{"std ok", Frame{CANID: 0x7FF}, true},
		{"std id overflow", Frame{CANID: 0x800}, false},
		{"ext ok", Frame{CANID: 0x1FFFFFFF | CAN_EFF_FLAG}, true},
		{"len overflow", Frame{CANID: 0x10, Len: 9}, false},
		{"err flagged ok", Frame{CANID: 0x20 | CAN_ERR_FLAG}, true},
	}
	for _, tc := range cases {
		err := tc.f.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
