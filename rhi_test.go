// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/null"
)

// newDevice creates a Device on a fresh null GPU.
func newDevice(t *testing.T, edit func(*Config)) (*Device, *null.GPU) {
	t.Helper()
	gpu := null.New()
	cfg := DefaultConfig()
	cfg.AcquireTimeout = Duration(time.Millisecond)
	cfg.FenceTimeout = Duration(time.Second)
	if edit != nil {
		edit(&cfg)
	}
	d, err := NewDevice(NewContext(), gpu, &cfg)
	if err != nil {
		t.Fatalf("NewDevice:\nhave %v\nwant nil", err)
	}
	t.Cleanup(d.Close)
	return d, gpu
}

// spirv returns the smallest module the null driver
// accepts.
func spirv() []byte {
	b := make([]byte, 20)
	binary.NativeEndian.PutUint32(b, 0x07230203)
	return b
}

type window struct{ w, h int }

func (w window) Size() (int, int) { return w.w, w.h }

func hostBuffer(t *testing.T, d *Device, size int64, usg driver.Usage) Buffer {
	t.Helper()
	b, err := d.CreateBuffer(&BufferDesc{Size: size, Usage: usg, Mem: MemHost})
	if err != nil {
		t.Fatalf("Device.CreateBuffer:\nhave %v\nwant nil", err)
	}
	return b
}

// runFrame runs a whole offscreen frame that submits the
// commands recorded by record.
func runFrame(t *testing.T, d *Device, record func(*CommandEncoder)) {
	t.Helper()
	if err := d.BeginFrame(-1); err != nil {
		t.Fatalf("Device.BeginFrame:\nhave %v\nwant nil", err)
	}
	var cmds []Command
	if record != nil {
		enc, err := d.CreateCommandEncoder()
		if err != nil {
			t.Fatalf("Device.CreateCommandEncoder:\nhave %v\nwant nil", err)
		}
		record(enc)
		cmd, err := enc.Finish()
		if err != nil {
			t.Fatalf("CommandEncoder.Finish:\nhave %v\nwant nil", err)
		}
		cmds = append(cmds, cmd)
	}
	if err := d.Submit(cmds...); err != nil {
		t.Fatalf("Device.Submit:\nhave %v\nwant nil", err)
	}
	if err := d.EndFrame(); err != nil {
		t.Fatalf("Device.EndFrame:\nhave %v\nwant nil", err)
	}
}

// waitIdle calls d.WaitIdle and fails t on error.
func waitIdle(t *testing.T, d *Device) {
	t.Helper()
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("Device.WaitIdle:\nhave %v\nwant nil", err)
	}
}

// checkPanic calls f and fails t unless f panics with
// want. An empty want accepts any value.
func checkPanic(t *testing.T, call, want string, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		switch x := recover(); {
		case x == nil:
			t.Errorf("%s: recover()\nhave nil\nwant %q", call, want)
		case want != "" && x != any(want):
			t.Errorf("%s: recover()\nhave %v\nwant %q", call, x, want)
		}
	}()
	f()
}
