// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"testing"

	"github.com/gviegas/rhi/driver"
)

func TestGPUDriver(t *testing.T) {
	g, _ := drv.Open()
	if gpu.Driver() != drv || gpu.Driver() != g.Driver() {
		t.Error("GPU.Driver: unexpected Driver value")
	}
}

func TestPixelFmt(t *testing.T) {
	for _, x := range [...]struct {
		pf   driver.PixelFmt
		size int
		ds   bool
	}{
		{driver.RGBA8Unorm, 4, false},
		{driver.BGRA8SRGB, 4, false},
		{driver.RG8Unorm, 2, false},
		{driver.R8Unorm, 1, false},
		{driver.RGBA16Float, 8, false},
		{driver.RGBA32Float, 16, false},
		{driver.D16Unorm, 2, true},
		{driver.D32Float, 4, true},
		{driver.D24UnormS8Uint, 4, true},
		{driver.FInvalid, 0, false},
	} {
		if have := x.pf.Size(); have != x.size {
			t.Fatalf("PixelFmt(%d).Size:\nhave %d\nwant %d", x.pf, have, x.size)
		}
		if have := x.pf.IsDS(); have != x.ds {
			t.Fatalf("PixelFmt(%d).IsDS:\nhave %t\nwant %t", x.pf, have, x.ds)
		}
	}
}

func TestFenceTimeout(t *testing.T) {
	f, err := gpu.NewFence(false)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Destroy()
	if err := f.Wait(0); !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("Fence.Wait:\nhave %v\nwant %v", err, driver.ErrTimeout)
	}
	if err := gpu.Submit(&driver.Submission{Fence: f}); err != nil {
		t.Fatal(err)
	}
	if err := f.Wait(-1); err != nil {
		t.Fatalf("Fence.Wait:\nhave %v\nwant nil", err)
	}
}

func TestSubmitCopy(t *testing.T) {
	const n = 512
	src, _ := gpu.NewBuffer(n, true, driver.UCopySrc)
	defer src.Destroy()
	dst, _ := gpu.NewBuffer(n, true, driver.UCopyDst)
	defer dst.Destroy()
	for i := range src.Bytes() {
		src.Bytes()[i] = byte(i * 3)
	}
	pool, err := gpu.NewCmdPool(false)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	cb, _ := pool.NewCmdBuffer()
	for range 2 {
		if err := cb.Begin(); err != nil {
			t.Fatalf("CmdBuffer.Begin:\nhave %v\nwant nil", err)
		}
		cb.BeginBlit(false)
		cb.CopyBuffer(&driver.BufferCopy{From: src, To: dst, Size: n})
		cb.EndBlit()
		if err := cb.End(); err != nil {
			t.Fatalf("CmdBuffer.End:\nhave %v\nwant nil", err)
		}
		f, _ := gpu.NewFence(false)
		if err := gpu.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
			t.Fatalf("GPU.Submit:\nhave %v\nwant nil", err)
		}
		if err := f.Wait(-1); err != nil {
			t.Fatal(err)
		}
		f.Destroy()
		if !bytes.Equal(src.Bytes(), dst.Bytes()) {
			t.Fatal("CmdBuffer.CopyBuffer: data mismatch")
		}
		if err := pool.Reset(); err != nil {
			t.Fatalf("CmdPool.Reset:\nhave %v\nwant nil", err)
		}
		clear(dst.Bytes())
	}
}

// Example_copy fills a buffer in GPU memory and copies
// it back to host memory.
func Example_copy() {
	dev, err := gpu.NewBuffer(16, false, driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Destroy()
	host, err := gpu.NewBuffer(16, true, driver.UCopyDst)
	if err != nil {
		log.Fatal(err)
	}
	defer host.Destroy()

	pool, err := gpu.NewCmdPool(false)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Destroy()
	cb, err := pool.NewCmdBuffer()
	if err != nil {
		log.Fatal(err)
	}
	if err := cb.Begin(); err != nil {
		log.Fatal(err)
	}
	cb.BeginBlit(false)
	cb.Fill(dev, 0, 0x2a, 8)
	cb.Fill(dev, 8, 0x07, 8)
	cb.EndBlit()
	cb.BeginBlit(true)
	cb.CopyBuffer(&driver.BufferCopy{From: dev, To: host, Size: 16})
	cb.EndBlit()
	if err := cb.End(); err != nil {
		log.Fatal(err)
	}

	fence, err := gpu.NewFence(false)
	if err != nil {
		log.Fatal(err)
	}
	defer fence.Destroy()
	err = gpu.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: fence})
	if err != nil {
		log.Fatal(err)
	}
	if err := fence.Wait(-1); err != nil {
		log.Fatal(err)
	}
	fmt.Println(host.Bytes())

	// Output:
	// [42 42 42 42 42 42 42 42 7 7 7 7 7 7 7 7]
}
