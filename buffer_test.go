// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"bytes"
	"math"
	"testing"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/null"
)

func TestRefcount(t *testing.T) {
	r := newRefcount()
	if !r.alive() {
		t.Fatal("refcount.alive:\nhave false\nwant true")
	}
	r.inc()
	if r.dec() {
		t.Fatal("refcount.dec (n=2):\nhave true\nwant false")
	}
	if !r.dec() {
		t.Fatal("refcount.dec (n=1):\nhave false\nwant true")
	}
	if r.alive() {
		t.Fatal("refcount.alive:\nhave true\nwant false")
	}
	checkPanic(t, "refcount.dec", "rhi: double release", func() { r.dec() })
	checkPanic(t, "refcount.inc", "", func() { r.inc() })

	// Saturated counts stay put.
	r = refcount{n: math.MaxUint32}
	r.inc()
	if r.n != math.MaxUint32 {
		t.Fatalf("refcount.n:\nhave %d\nwant %d", r.n, uint32(math.MaxUint32))
	}
	if r.dec() {
		t.Fatal("refcount.dec (saturated):\nhave true\nwant false")
	}
}

func TestHandleCopyAndDrop(t *testing.T) {
	d, gpu := newDevice(t, nil)
	b := hostBuffer(t, d, 64, driver.UGeneric)
	if !b.Valid() {
		t.Fatal("Buffer.Valid:\nhave false\nwant true")
	}
	if x := b.Refcount(); x != 1 {
		t.Fatalf("Buffer.Refcount:\nhave %d\nwant 1", x)
	}
	if b.ID() == 0 {
		t.Fatal("Buffer.ID:\nhave 0\nwant non-zero")
	}

	c := b.Clone()
	if x := b.Refcount(); x != 2 {
		t.Fatalf("Buffer.Refcount (cloned):\nhave %d\nwant 2", x)
	}
	if c.ID() != b.ID() {
		t.Fatalf("Buffer.ID (clone):\nhave %d\nwant %d", c.ID(), b.ID())
	}

	// Assignment moves the reference.
	m := c
	c.Release()
	if c.Valid() {
		t.Fatal("Buffer.Valid (released):\nhave true\nwant false")
	}
	if x := m.Refcount(); x != 1 {
		t.Fatalf("Buffer.Refcount (moved):\nhave %d\nwant 1", x)
	}

	b.Release()
	if m.Valid() {
		t.Fatal("Buffer.Valid (dropped):\nhave true\nwant false")
	}
	checkPanic(t, "Buffer.Release", "", func() { m.Release() })
	checkPanic(t, "Buffer.Size", "rhi: use of null Buffer", func() { b.Size() })
	checkPanic(t, "Buffer.Size", "rhi: use of released Buffer", func() { m.Size() })

	// The native buffer survives until the frame
	// completes.
	if x := d.RetireCount(); x != 1 {
		t.Fatalf("Device.RetireCount:\nhave %d\nwant 1", x)
	}
	if x := gpu.Live(null.KBuffer); x != 1 {
		t.Fatalf("GPU.Live(KBuffer):\nhave %d\nwant 1", x)
	}
	waitIdle(t, d)
	if x := d.RetireCount(); x != 0 {
		t.Fatalf("Device.RetireCount (idle):\nhave %d\nwant 0", x)
	}
	if x := gpu.Live(null.KBuffer); x != 0 {
		t.Fatalf("GPU.Live(KBuffer) (idle):\nhave %d\nwant 0", x)
	}
	if x := d.LiveCount(); x != 0 {
		t.Fatalf("Device.LiveCount:\nhave %d\nwant 0", x)
	}
	checkPanic(t, "Buffer.Release", "rhi: release of stale Buffer", func() { m.Release() })
}

func TestUniqueIDs(t *testing.T) {
	ctx := NewContext()
	d1, err := NewDevice(ctx, null.New(), nil)
	if err != nil {
		t.Fatalf("NewDevice:\nhave %v\nwant nil", err)
	}
	defer d1.Close()
	d2, err := NewDevice(ctx, null.New(), nil)
	if err != nil {
		t.Fatalf("NewDevice:\nhave %v\nwant nil", err)
	}
	defer d2.Close()

	seen := make(map[uint64]bool)
	for range 8 {
		for _, d := range []*Device{d1, d2} {
			b, err := d.CreateBuffer(&BufferDesc{Size: 4, Mem: MemHost})
			if err != nil {
				t.Fatalf("Device.CreateBuffer:\nhave %v\nwant nil", err)
			}
			if seen[b.ID()] {
				t.Fatalf("Buffer.ID: %d\nhave duplicate\nwant unique", b.ID())
			}
			seen[b.ID()] = true
			b.Release()
		}
	}
	if x := ctx.NextID() - 1; x != 16 {
		t.Fatalf("Context.NextID - 1:\nhave %d\nwant 16", x)
	}
}

// Scenario A.
func TestBufferRoundTrip(t *testing.T) {
	d, gpu := newDevice(t, nil)
	src := hostBuffer(t, d, 256, driver.UCopySrc)
	dst := hostBuffer(t, d, 256, driver.UCopyDst)
	defer src.Release()
	defer dst.Release()

	p := src.Map()
	for i := range p {
		p[i] = byte(i)
	}
	if err := src.Unmap(); err != nil {
		t.Fatalf("Buffer.Unmap:\nhave %v\nwant nil", err)
	}

	runFrame(t, d, func(enc *CommandEncoder) {
		enc.CopyBufferToBuffer(src, 0, dst, 0, 256)
	})
	// The command holds a reference until it is
	// recycled.
	if x := src.Refcount(); x != 2 {
		t.Fatalf("Buffer.Refcount (in flight):\nhave %d\nwant 2", x)
	}
	waitIdle(t, d)
	if x := src.Refcount(); x != 1 {
		t.Fatalf("Buffer.Refcount (idle):\nhave %d\nwant 1", x)
	}

	for i, x := range dst.Map() {
		if x != byte(i) {
			t.Fatalf("dst[%d]:\nhave %d\nwant %d", i, x, byte(i))
		}
	}
	if err := dst.Unmap(); err != nil {
		t.Fatalf("Buffer.Unmap:\nhave %v\nwant nil", err)
	}
	if x := gpu.Pending(); x != 0 {
		t.Fatalf("GPU.Pending:\nhave %d\nwant 0", x)
	}
}

func TestBufferUploadRead(t *testing.T) {
	d, _ := newDevice(t, nil)
	b, err := d.CreateBuffer(&BufferDesc{Size: 256, Usage: driver.UCopySrc, Mem: MemGPU})
	if err != nil {
		t.Fatalf("Device.CreateBuffer:\nhave %v\nwant nil", err)
	}
	defer b.Release()
	if b.Usage()&driver.UCopyDst == 0 {
		t.Fatalf("Buffer.Usage:\nhave %v\nwant UCopyDst set", b.Usage())
	}
	checkPanic(t, "Buffer.Map", "rhi: Map of MemGPU buffer", func() { b.Map() })

	data := make([]byte, 128)
	for i := range data {
		data[i] = byte(255 - i)
	}
	if err := b.Upload(data, 64); err != nil {
		t.Fatalf("Buffer.Upload:\nhave %v\nwant nil", err)
	}
	got, err := b.Read(64, 128)
	if err != nil {
		t.Fatalf("Buffer.Read:\nhave %v\nwant nil", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Buffer.Read:\nhave %v\nwant %v", got, data)
	}

	got, err = b.Read(0, 4)
	if err != nil {
		t.Fatalf("Buffer.Read:\nhave %v\nwant nil", err)
	}
	if want := []byte{0, 0, 0, 0}; !bytes.Equal(got, want) {
		t.Fatalf("Buffer.Read:\nhave %v\nwant %v", got, want)
	}
	checkPanic(t, "Buffer.Upload", "rhi: Upload out of bounds", func() { b.Upload(data, 200) })
}

// syncEvents returns the flush and invalidate events
// recorded for buffer id.
func syncEvents(gpu *null.GPU, id uint64) (flush, inval []null.Event) {
	for _, e := range gpu.Events() {
		if e.Obj != null.KBuffer || e.ID != id {
			continue
		}
		switch e.Kind {
		case null.EvFlush:
			flush = append(flush, e)
		case null.EvInvalidate:
			inval = append(inval, e)
		}
	}
	return
}

func TestBufferHostCached(t *testing.T) {
	d, gpu := newDevice(t, nil)
	b, err := d.CreateBuffer(&BufferDesc{Size: 96, Usage: driver.UCopySrc, Mem: MemHostCached})
	if err != nil {
		t.Fatalf("Device.CreateBuffer:\nhave %v\nwant nil", err)
	}
	defer b.Release()
	nb := b.p.drv.(*null.Buffer)
	if !nb.Cached() {
		t.Fatal("null.Buffer.Cached:\nhave false\nwant true")
	}
	id := nb.ID()
	gpu.ClearEvents()

	p := b.Map()
	for i := range p {
		p[i] = byte(i + 1)
	}
	if flush, _ := syncEvents(gpu, id); len(flush) != 0 {
		t.Fatalf("flush events (mapped):\nhave %d\nwant 0", len(flush))
	}
	if err := b.Unmap(); err != nil {
		t.Fatalf("Buffer.Unmap:\nhave %v\nwant nil", err)
	}
	flush, _ := syncEvents(gpu, id)
	if len(flush) != 1 || flush[0].Value != 96 {
		t.Fatalf("flush events (Unmap):\nhave %v\nwant one of size 96", flush)
	}

	gpu.ClearEvents()
	if err := b.Upload([]byte{9, 9, 9, 9}, 32); err != nil {
		t.Fatalf("Buffer.Upload:\nhave %v\nwant nil", err)
	}
	flush, _ = syncEvents(gpu, id)
	if len(flush) != 1 || flush[0].Value != 4 {
		t.Fatalf("flush events (Upload):\nhave %v\nwant one of size 4", flush)
	}

	gpu.ClearEvents()
	got, err := b.Read(30, 8)
	if err != nil {
		t.Fatalf("Buffer.Read:\nhave %v\nwant nil", err)
	}
	if want := []byte{31, 32, 9, 9, 9, 9, 37, 38}; !bytes.Equal(got, want) {
		t.Fatalf("Buffer.Read:\nhave %v\nwant %v", got, want)
	}
	_, inval := syncEvents(gpu, id)
	if len(inval) != 1 || inval[0].Value != 8 {
		t.Fatalf("invalidate events (Read):\nhave %v\nwant one of size 8", inval)
	}

	// Coherent memory is never flushed.
	h := hostBuffer(t, d, 96, driver.UCopySrc)
	defer h.Release()
	if h.p.drv.(*null.Buffer).Cached() {
		t.Fatal("null.Buffer.Cached (MemHost):\nhave true\nwant false")
	}
	gpu.ClearEvents()
	h.Map()[0] = 1
	if err := h.Unmap(); err != nil {
		t.Fatalf("Buffer.Unmap:\nhave %v\nwant nil", err)
	}
	if _, err := h.Read(0, 1); err != nil {
		t.Fatalf("Buffer.Read:\nhave %v\nwant nil", err)
	}
	hid := h.p.drv.(*null.Buffer).ID()
	if flush, inval := syncEvents(gpu, hid); len(flush)+len(inval) != 0 {
		t.Fatalf("sync events (MemHost):\nhave %v %v\nwant none", flush, inval)
	}
}

func TestFillAndImageCopy(t *testing.T) {
	d, _ := newDevice(t, nil)
	buf := hostBuffer(t, d, 64, driver.UCopySrc|driver.UCopyDst)
	defer buf.Release()
	img, err := d.CreateImage(&ImageDesc{
		Format: driver.RGBA8Unorm,
		Size:   driver.Dim3D{Width: 4, Height: 4},
		Usage:  driver.UCopySrc | driver.UCopyDst,
	})
	if err != nil {
		t.Fatalf("Device.CreateImage:\nhave %v\nwant nil", err)
	}
	defer img.Release()

	runFrame(t, d, func(enc *CommandEncoder) {
		enc.FillBuffer(buf, 0, 0xab, 64)
		enc.CopyBufferToImage(&BufferImageCopy{Buffer: buf, Image: img, Size: driver.Dim3D{Width: 4, Height: 4}})
		enc.FillBuffer(buf, 0, 0, 64)
		enc.CopyImageToBuffer(&BufferImageCopy{Buffer: buf, Image: img, Size: driver.Dim3D{Width: 4, Height: 4}})
	})
	waitIdle(t, d)
	for i, x := range buf.Map() {
		if x != 0xab {
			t.Fatalf("buf[%d]:\nhave %#x\nwant 0xab", i, x)
		}
	}
	if err := buf.Unmap(); err != nil {
		t.Fatalf("Buffer.Unmap:\nhave %v\nwant nil", err)
	}
}

func TestCreateFailure(t *testing.T) {
	d, _ := newDevice(t, nil)
	b, err := d.CreateBuffer(&BufferDesc{Size: 0})
	if err == nil {
		t.Fatal("Device.CreateBuffer (size 0):\nhave nil\nwant error")
	}
	if b.Valid() {
		t.Fatal("Buffer.Valid:\nhave true\nwant false")
	}

	s, err := d.CreateShaderModule([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("Device.CreateShaderModule (bad code):\nhave nil\nwant error")
	}
	if s.Valid() {
		t.Fatal("ShaderModule.Valid:\nhave true\nwant false")
	}

	m, err := d.CreateImage(&ImageDesc{Size: driver.Dim3D{Width: 1, Height: 1}})
	if err == nil {
		t.Fatal("Device.CreateImage (no format):\nhave nil\nwant error")
	}
	if m.Valid() {
		t.Fatal("Image.Valid:\nhave true\nwant false")
	}
}
