// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gviegas/rhi/driver"
)

func newGPU(t *testing.T) *GPU {
	t.Helper()
	g, err := New(noop.API{})
	if err != nil {
		t.Fatalf("New:\nhave %v\nwant nil", err)
	}
	t.Cleanup(g.drv.Close)
	return g
}

// spirv returns a minimal SPIR-V header.
func spirv() []byte {
	words := []uint32{spirvMagic, 0x00010000, 0, 1, 0}
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.NativeEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func TestDriver(t *testing.T) {
	var d *Driver
	for _, x := range driver.Drivers() {
		if x.Name() == driverName {
			d = x.(*Driver)
		}
	}
	if d == nil {
		t.Fatal("driver.Drivers: wgpu driver not registered")
	}
	g := newGPU(t)
	if g.Driver() != g.drv {
		t.Fatal("GPU.Driver: unexpected Driver value")
	}
	if g2, _ := g.drv.Open(); g2 != driver.GPU(g) {
		t.Fatal("Driver.Open: GPU differs between calls")
	}
	lim := g.Limits()
	if lim.MaxImage2D <= 0 || lim.MaxBufferSize <= 0 || lim.MaxDescHeaps <= 0 {
		t.Fatalf("GPU.Limits: unexpected limits %+v", lim)
	}
}

func TestBuffer(t *testing.T) {
	g := newGPU(t)
	b, err := g.NewBuffer(10, true, driver.UShaderConst)
	if err != nil {
		t.Fatalf("GPU.NewBuffer:\nhave %v\nwant nil", err)
	}
	defer b.Destroy()
	if !b.Visible() {
		t.Fatal("Buffer.Visible:\nhave false\nwant true")
	}
	if x := b.Cap(); x != 12 {
		t.Fatalf("Buffer.Cap:\nhave %d\nwant 12", x)
	}
	if x := len(b.Bytes()); x != 12 {
		t.Fatalf("len(Buffer.Bytes):\nhave %d\nwant 12", x)
	}
	nb, err := g.NewBuffer(64, false, driver.UVertexData)
	if err != nil {
		t.Fatalf("GPU.NewBuffer:\nhave %v\nwant nil", err)
	}
	defer nb.Destroy()
	if nb.Visible() || nb.Bytes() != nil {
		t.Fatal("Buffer: non-visible buffer has host memory")
	}
	if _, err := g.NewBuffer(0, false, 0); err == nil {
		t.Fatal("GPU.NewBuffer: expected error for zero size")
	}
}

func TestImage(t *testing.T) {
	g := newGPU(t)
	img, err := g.NewImage(driver.RGBA8Unorm, driver.Dim3D{Width: 64, Height: 64}, 2, 1, 1, driver.UShaderSample|driver.UCopyDst)
	if err != nil {
		t.Fatalf("GPU.NewImage:\nhave %v\nwant nil", err)
	}
	defer img.Destroy()
	v, err := img.NewView(driver.IView2DArray, 0, 2, 0, 1)
	if err != nil {
		t.Fatalf("Image.NewView:\nhave %v\nwant nil", err)
	}
	if v.Image() != img {
		t.Fatal("ImageView.Image: unexpected Image value")
	}
	v.Destroy()
	if _, err := img.NewView(driver.IView2D, 2, 1, 0, 1); err == nil {
		t.Fatal("Image.NewView: expected error for out of range layer")
	}
	if _, err := g.NewImage(driver.FInvalid, driver.Dim3D{Width: 1, Height: 1}, 1, 1, 1, 0); err == nil {
		t.Fatal("GPU.NewImage: expected error for invalid format")
	}
	s, err := g.NewSampler(&driver.Sampling{Min: driver.FLinear, Mag: driver.FLinear, Mipmap: driver.FNoMipmap})
	if err != nil {
		t.Fatalf("GPU.NewSampler:\nhave %v\nwant nil", err)
	}
	s.Destroy()
}

func TestShaderCode(t *testing.T) {
	g := newGPU(t)
	s, err := g.NewShaderCode(spirv())
	if err != nil {
		t.Fatalf("GPU.NewShaderCode:\nhave %v\nwant nil", err)
	}
	s.Destroy()
	bad := spirv()
	bad[0] ^= 0xff
	if _, err := g.NewShaderCode(bad); !errors.Is(err, errSPIRV) {
		t.Fatalf("GPU.NewShaderCode:\nhave %v\nwant %v", err, errSPIRV)
	}
	if _, err := g.NewShaderCode(spirv()[:6]); !errors.Is(err, errSPIRV) {
		t.Fatalf("GPU.NewShaderCode:\nhave %v\nwant %v", err, errSPIRV)
	}
}

func TestDesc(t *testing.T) {
	g := newGPU(t)
	ds := []driver.Descriptor{
		{Type: driver.DConstant, Stages: driver.SVertex, Nr: 0, Len: 1},
		{Type: driver.DTexture, Stages: driver.SFragment, Nr: 1, Len: 1},
		{Type: driver.DSampler, Stages: driver.SFragment, Nr: 2, Len: 1},
	}
	dh, err := g.NewDescHeap(ds)
	if err != nil {
		t.Fatalf("GPU.NewDescHeap:\nhave %v\nwant nil", err)
	}
	defer dh.Destroy()
	if err := dh.New(3); err != nil {
		t.Fatalf("DescHeap.New:\nhave %v\nwant nil", err)
	}
	if x := dh.Count(); x != 3 {
		t.Fatalf("DescHeap.Count:\nhave %d\nwant 3", x)
	}
	b, _ := g.NewBuffer(256, true, driver.UShaderConst)
	defer b.Destroy()
	dh.SetBuffer(1, 0, 0, []driver.Buffer{b}, []int64{0}, []int64{256})
	h := dh.(*descHeap)
	if !h.copies[1].set[0] || h.copies[0].set[0] {
		t.Fatal("DescHeap.SetBuffer: wrong copy updated")
	}
	if w, ok := h.copies[1].bufs[b.(*buffer)]; !ok || w {
		t.Fatalf("DescHeap.SetBuffer: visible buffer tracking\nhave %v, %v\nwant false, true", w, ok)
	}
	if _, err := h.bindGroup(1); err != nil {
		t.Fatalf("descHeap.bindGroup:\nhave %v\nwant nil", err)
	}
	if h.copies[1].group == nil {
		t.Fatal("descHeap.bindGroup: bind group not cached")
	}
	dh.SetBuffer(1, 0, 0, []driver.Buffer{b}, []int64{0}, []int64{128})
	if h.copies[1].group != nil {
		t.Fatal("DescHeap.SetBuffer: bind group not invalidated")
	}
	dt, err := g.NewDescTable([]driver.DescHeap{dh})
	if err != nil {
		t.Fatalf("GPU.NewDescTable:\nhave %v\nwant nil", err)
	}
	dt.Destroy()
	if err := dh.New(0); err != nil || dh.Count() != 0 {
		t.Fatalf("DescHeap.New(0):\nhave %v, %d\nwant nil, 0", err, dh.Count())
	}

	_, err = g.NewDescHeap([]driver.Descriptor{{Type: driver.DTexture, Nr: 0, Len: 4}})
	if !errors.Is(err, errDescArray) {
		t.Fatalf("GPU.NewDescHeap:\nhave %v\nwant %v", err, errDescArray)
	}
}

func TestFence(t *testing.T) {
	g := newGPU(t)
	f, err := g.NewFence(true)
	if err != nil {
		t.Fatalf("GPU.NewFence:\nhave %v\nwant nil", err)
	}
	defer f.Destroy()
	if !f.Signaled() {
		t.Fatal("Fence.Signaled:\nhave false\nwant true")
	}
	if err := f.Wait(0); err != nil {
		t.Fatalf("Fence.Wait:\nhave %v\nwant nil", err)
	}
	f.Reset()
	if err := f.Wait(0); !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("Fence.Wait:\nhave %v\nwant %v", err, driver.ErrTimeout)
	}
	if err := g.Submit(&driver.Submission{Fence: f}); err != nil {
		t.Fatalf("GPU.Submit:\nhave %v\nwant nil", err)
	}
	if err := f.Wait(-1); err != nil {
		t.Fatalf("Fence.Wait:\nhave %v\nwant nil", err)
	}
	if !f.Signaled() {
		t.Fatal("Fence.Signaled:\nhave false\nwant true")
	}
	if err := g.WaitIdle(); err != nil {
		t.Fatalf("GPU.WaitIdle:\nhave %v\nwant nil", err)
	}
}

func TestCmdBuffer(t *testing.T) {
	g := newGPU(t)
	pool, err := g.NewCmdPool(true)
	if err != nil {
		t.Fatalf("GPU.NewCmdPool:\nhave %v\nwant nil", err)
	}
	defer pool.Destroy()
	if !pool.CanResetSingle() {
		t.Fatal("CmdPool.CanResetSingle:\nhave false\nwant true")
	}
	cb, err := pool.NewCmdBuffer()
	if err != nil {
		t.Fatalf("CmdPool.NewCmdBuffer:\nhave %v\nwant nil", err)
	}
	src, _ := g.NewBuffer(64, true, driver.UCopySrc)
	dst, _ := g.NewBuffer(64, false, driver.UCopyDst)
	defer src.Destroy()
	defer dst.Destroy()

	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin:\nhave %v\nwant nil", err)
	}
	cb.BeginBlit(false)
	cb.CopyBuffer(&driver.BufferCopy{From: src, To: dst, Size: 64})
	cb.Fill(dst, 0, 0xab, 32)
	cb.EndBlit()
	c := cb.(*cmdBuffer)
	if _, ok := c.reads[src.(*buffer)]; !ok {
		t.Fatal("CmdBuffer.CopyBuffer: visible source not tracked")
	}
	if len(c.staging) != 1 {
		t.Fatalf("CmdBuffer.Fill: staging buffers\nhave %d\nwant 1", len(c.staging))
	}
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End:\nhave %v\nwant nil", err)
	}
	f, _ := g.NewFence(false)
	defer f.Destroy()
	if err := g.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		t.Fatalf("GPU.Submit:\nhave %v\nwant nil", err)
	}
	if err := f.Wait(-1); err != nil {
		t.Fatalf("Fence.Wait:\nhave %v\nwant nil", err)
	}
	if err := pool.Reset(); err != nil {
		t.Fatalf("CmdPool.Reset:\nhave %v\nwant nil", err)
	}
	if c.cb != nil || len(c.staging) != 0 || len(c.reads) != 0 {
		t.Fatal("CmdPool.Reset: command buffer not reset")
	}

	// Recording errors surface at End.
	cb.Begin()
	cb.Fill(dst, 1, 0, 4)
	if err := cb.End(); err == nil {
		t.Fatal("CmdBuffer.End: expected error for misaligned fill")
	}
	cb.Begin()
	cb.Draw(3, 1, 0, 0)
	if err := cb.End(); !errors.Is(err, errNoPass) {
		t.Fatalf("CmdBuffer.End:\nhave %v\nwant %v", err, errNoPass)
	}
	if err := g.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}}); !errors.Is(err, errNotEnded) {
		t.Fatalf("GPU.Submit:\nhave %v\nwant %v", err, errNotEnded)
	}
	pool.Free(cb)
}

func TestPipeline(t *testing.T) {
	g := newGPU(t)
	dh, _ := g.NewDescHeap([]driver.Descriptor{{Type: driver.DBuffer, Stages: driver.SCompute, Nr: 0, Len: 1}})
	defer dh.Destroy()
	dt, _ := g.NewDescTable([]driver.DescHeap{dh})
	defer dt.Destroy()
	sc, _ := g.NewShaderCode(spirv())
	defer sc.Destroy()

	comp, err := g.NewPipeline(&driver.CompState{Func: driver.ShaderFunc{Code: sc, Name: "main"}, Desc: dt})
	if err != nil {
		t.Fatalf("GPU.NewPipeline:\nhave %v\nwant nil", err)
	}
	defer comp.Destroy()
	if comp.(*pipeline).comp == nil {
		t.Fatal("GPU.NewPipeline: compute pipeline not set")
	}

	pass, err := g.NewRenderPass([]driver.Attachment{
		{Format: driver.BGRA8Unorm, Samples: 1, Load: driver.LClear, Store: driver.SStore},
		{Format: driver.D32Float, Samples: 1, Load: driver.LClear, Store: driver.SDontCare},
	})
	if err != nil {
		t.Fatalf("GPU.NewRenderPass:\nhave %v\nwant nil", err)
	}
	defer pass.Destroy()
	if x := len(pass.(*renderPass).colorAttachments()); x != 1 {
		t.Fatalf("renderPass.colorAttachments:\nhave %d\nwant 1", x)
	}
	graph, err := g.NewPipeline(&driver.GraphState{
		VertFunc: driver.ShaderFunc{Code: sc, Name: "vs_main"},
		FragFunc: driver.ShaderFunc{Code: sc, Name: "fs_main"},
		Desc:     dt,
		Input:    []driver.VertexIn{{Format: driver.Float32x3, Stride: 12, Nr: 0}},
		Topology: driver.TTriangle,
		Cull:     driver.CBack,
		Samples:  1,
		Blend:    true,
		Pass:     pass,
	})
	if err != nil {
		t.Fatalf("GPU.NewPipeline:\nhave %v\nwant nil", err)
	}
	graph.Destroy()

	if _, err := g.NewRenderPass(nil); err == nil {
		t.Fatal("GPU.NewRenderPass: expected error for no attachments")
	}
}

func TestConv(t *testing.T) {
	for _, x := range [...]struct {
		pf   driver.PixelFmt
		want gputypes.TextureFormat
	}{
		{driver.RGBA8Unorm, gputypes.TextureFormatRGBA8Unorm},
		{driver.BGRA8SRGB, gputypes.TextureFormatBGRA8UnormSrgb},
		{driver.D24UnormS8Uint, gputypes.TextureFormatDepth24PlusStencil8},
		{driver.FInvalid, gputypes.TextureFormatUndefined},
	} {
		if have := convPixelFmt(x.pf); have != x.want {
			t.Fatalf("convPixelFmt(%d):\nhave %v\nwant %v", x.pf, have, x.want)
		}
	}
	u := convBufferUsage(driver.UShaderConst | driver.UVertexData)
	want := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst | gputypes.BufferUsageUniform | gputypes.BufferUsageVertex
	if u != want {
		t.Fatalf("convBufferUsage:\nhave %v\nwant %v", u, want)
	}
	if have := layoutUsage(driver.LUndefined); have != 0 {
		t.Fatalf("layoutUsage(LUndefined):\nhave %v\nwant 0", have)
	}
	if have := layoutUsage(driver.LPresent); have != gputypes.TextureUsageRenderAttachment {
		t.Fatalf("layoutUsage(LPresent):\nhave %v\nwant %v", have, gputypes.TextureUsageRenderAttachment)
	}
}
