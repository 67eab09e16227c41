package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/dinocore1/cancomms/internal/can"
)

// fakeDev replays a scripted sequence of read results.
type fakeDev struct {
	script []func(*can.Frame) error
	i      int
}

func (d *fakeDev) ReadFrame(fr *can.Frame) error {
	if d.i >= len(d.script) {
		return io.EOF
	}
	fn := d.script[d.i]
	d.i++
	return fn(fr)
}

func (d *fakeDev) WriteFrame(can.Frame) error { return nil }
func (d *fakeDev) Close() error               { return nil }

func frameStep(id uint32) func(*can.Frame) error {
	return func(fr *can.Frame) error {
		fr.CANID = id
		fr.Len = 1
		fr.Data[0] = byte(id)
		return nil
	}
}

func collect(t *testing.T, ch <-chan can.Frame, want int) []can.Frame {
	t.Helper()
	var out []can.Frame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case fr, ok := <-ch:
			if !ok {
				if len(out) != want {
					t.Fatalf("channel closed after %d frames, want %d", len(out), want)
				}
				return out
			}
			out = append(out, fr)
		case <-timeout:
			t.Fatalf("timed out with %d frames, want %d", len(out), want)
		}
	}
}

func TestStartRx_DeliversInOrderAndClosesOnEOF(t *testing.T) {
	dev := &fakeDev{script: []func(*can.Frame) error{
		frameStep(0x10), frameStep(0x11), frameStep(0x12),
	}}
	ch := StartRx(context.Background(), dev, 8, nil)
	out := collect(t, ch, 3)
	for i, id := range []uint32{0x10, 0x11, 0x12} {
		if out[i].CANID != id {
			t.Fatalf("frame %d: got id 0x%X want 0x%X", i, out[i].CANID, id)
		}
	}
}

func TestStartRx_TransientErrorDoesNotEndStream(t *testing.T) {
	old := sleepFn
	sleepFn = func(time.Duration) {}
	defer func() { sleepFn = old }()

	dev := &fakeDev{script: []func(*can.Frame) error{
		frameStep(0x1),
		func(*can.Frame) error { return errors.New("bus glitch") },
		frameStep(0x2),
	}}
	ch := StartRx(context.Background(), dev, 8, nil)
	out := collect(t, ch, 2)
	if out[0].CANID != 0x1 || out[1].CANID != 0x2 {
		t.Fatalf("frames around a transient error lost: %+v", out)
	}
}

func TestStartRx_FatalErrorClosesStream(t *testing.T) {
	dev := &fakeDev{script: []func(*can.Frame) error{
		frameStep(0x3),
		func(*can.Frame) error { return fmt.Errorf("read: %w", os.ErrClosed) },
		frameStep(0x4), // must never be reached
	}}
	ch := StartRx(context.Background(), dev, 8, nil)
	out := collect(t, ch, 1)
	if out[0].CANID != 0x3 {
		t.Fatalf("unexpected frame before fatal close: %+v", out[0])
	}
	if dev.i > 2 {
		t.Fatalf("read loop continued past a fatal error")
	}
}

func TestStartRx_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	dev := &blockingDev{unblock: block}
	ch := StartRx(ctx, dev, 2, nil)
	cancel()
	close(block) // release the pending read so the loop can observe ctx
	select {
	case _, ok := <-ch:
		if ok {
			// one in-flight frame may slip out before the loop exits
			if _, ok := <-ch; ok {
				t.Fatalf("channel still open after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

type blockingDev struct{ unblock chan struct{} }

func (d *blockingDev) ReadFrame(fr *can.Frame) error {
	<-d.unblock
	fr.CANID = 0x7
	return nil
}
func (d *blockingDev) WriteFrame(can.Frame) error { return nil }
func (d *blockingDev) Close() error               { return nil }
