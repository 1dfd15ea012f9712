// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// cmdPool implements driver.CmdPool.
type cmdPool struct {
	g    *GPU
	bufs map[*cmdBuffer]struct{}
}

// NewCmdPool creates a new command pool.
// HAL command buffers can always be freed individually.
func (g *GPU) NewCmdPool(bool) (driver.CmdPool, error) {
	return &cmdPool{g: g, bufs: make(map[*cmdBuffer]struct{})}, nil
}

// NewCmdBuffer allocates a new command buffer.
func (p *cmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	enc, err := p.g.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoHostMemory, err)
	}
	cb := &cmdBuffer{
		g:      p.g,
		enc:    enc,
		reads:  make(map[*buffer]struct{}),
		writes: make(map[*buffer]struct{}),
	}
	p.bufs[cb] = struct{}{}
	return cb, nil
}

// Free frees cb.
func (p *cmdPool) Free(cb driver.CmdBuffer) {
	c := cb.(*cmdBuffer)
	c.Reset()
	delete(p.bufs, c)
}

// Reset resets every command buffer allocated from p.
func (p *cmdPool) Reset() error {
	for cb := range p.bufs {
		cb.Reset()
	}
	return nil
}

// CanResetSingle returns true.
func (p *cmdPool) CanResetSingle() bool { return true }

// Destroy destroys p and its command buffers.
func (p *cmdPool) Destroy() {
	if p == nil || p.g == nil {
		return
	}
	p.Reset()
	*p = cmdPool{}
}

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	g   *GPU
	enc hal.CommandEncoder
	// Set by End.
	cb hal.CommandBuffer
	// Whether BeginEncoding succeeded and End was not
	// called yet.
	recording bool
	rp        hal.RenderPassEncoder
	cp        hal.ComputePassEncoder
	// Staging buffers created by Fill.
	staging []hal.Buffer
	// Host-visible buffers used and written by recorded
	// commands.
	reads  map[*buffer]struct{}
	writes map[*buffer]struct{}
	// First recording error, returned by End.
	err error
}

var errNoPass = errors.New("wgpu: command requires an active pass")

// Begin prepares cb for recording.
func (cb *cmdBuffer) Begin() error {
	cb.Reset()
	if err := cb.enc.BeginEncoding(""); err != nil {
		return fmt.Errorf("%w: %v", driver.ErrNoHostMemory, err)
	}
	cb.recording = true
	return nil
}

func (cb *cmdBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

func (cb *cmdBuffer) use(b *buffer, write bool) {
	if b.data == nil {
		return
	}
	cb.reads[b] = struct{}{}
	if write {
		cb.writes[b] = struct{}{}
	}
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	rp := pass.(*renderPass)
	f := fb.(*framebuf)
	desc := &hal.RenderPassDescriptor{}
	for i, a := range rp.colorAttachments() {
		var cv gputypes.Color
		if i < len(clear) {
			c := clear[i].Color
			cv = gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       f.views[i].view,
			LoadOp:     convLoadOp(a.Load),
			StoreOp:    convStoreOp(a.Store),
			ClearValue: cv,
		})
	}
	if rp.ds {
		i := len(rp.att) - 1
		a := rp.att[i]
		var cv driver.ClearValue
		if i < len(clear) {
			cv = clear[i]
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              f.views[i].view,
			DepthLoadOp:       convLoadOp(a.Load),
			DepthStoreOp:      convStoreOp(a.Store),
			DepthClearValue:   cv.Depth,
			StencilLoadOp:     convLoadOp(a.Load),
			StencilStoreOp:    convStoreOp(a.Store),
			StencilClearValue: cv.Stencil,
		}
	}
	cb.rp = cb.enc.BeginRenderPass(desc)
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	cb.rp.End()
	cb.rp = nil
}

// BeginWork begins compute work.
// Passes are ordered by the HAL, so wait has no effect.
func (cb *cmdBuffer) BeginWork(wait bool) {
	cb.cp = cb.enc.BeginComputePass(&hal.ComputePassDescriptor{})
}

// EndWork ends the current compute work.
func (cb *cmdBuffer) EndWork() {
	if cb.cp == nil {
		cb.fail(errNoPass)
		return
	}
	cb.cp.End()
	cb.cp = nil
}

// BeginBlit begins data transfer.
// Copies are recorded directly in the encoder.
func (cb *cmdBuffer) BeginBlit(wait bool) {}

// EndBlit ends the current data transfer.
func (cb *cmdBuffer) EndBlit() {}

// SetPipeline sets the pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*pipeline)
	switch {
	case p.render != nil && cb.rp != nil:
		cb.rp.SetPipeline(p.render)
	case p.comp != nil && cb.cp != nil:
		cb.cp.SetPipeline(p.comp)
	default:
		cb.fail(errNoPass)
	}
}

// SetViewport sets the first viewport.
func (cb *cmdBuffer) SetViewport(vp []driver.Viewport) {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	v := vp[0]
	cb.rp.SetViewport(v.X, v.Y, v.Width, v.Height, v.Znear, v.Zfar)
}

// SetScissor sets the first scissor rectangle.
func (cb *cmdBuffer) SetScissor(sciss []driver.Scissor) {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	s := sciss[0]
	cb.rp.SetScissorRect(uint32(s.X), uint32(s.Y), uint32(s.Width), uint32(s.Height))
}

// SetVertexBuf sets vertex buffers.
func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	for i := range buf {
		b := buf[i].(*buffer)
		cb.use(b, false)
		cb.rp.SetVertexBuffer(uint32(start+i), b.buf, uint64(off[i]))
	}
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	b := buf.(*buffer)
	cb.use(b, false)
	cb.rp.SetIndexBuffer(b.buf, convIndexFmt(format), uint64(off))
}

// bindGroups resolves heap copies into bind groups.
func (cb *cmdBuffer) bindGroups(copies []driver.DescCopy) []hal.BindGroup {
	bgs := make([]hal.BindGroup, len(copies))
	for i, c := range copies {
		h := c.Heap.(*descHeap)
		bg, err := h.bindGroup(c.Copy)
		if err != nil {
			cb.fail(fmt.Errorf("wgpu: create bind group: %w", err))
			return nil
		}
		bgs[i] = bg
		for b, w := range h.copies[c.Copy].bufs {
			cb.use(b, w)
		}
	}
	return bgs
}

// SetDescTableGraph sets a descriptor table range for
// graphics pipelines.
func (cb *cmdBuffer) SetDescTableGraph(table driver.DescTable, start int, copies []driver.DescCopy) {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	for i, bg := range cb.bindGroups(copies) {
		cb.rp.SetBindGroup(uint32(start+i), bg, nil)
	}
}

// SetDescTableComp sets a descriptor table range for
// compute pipelines.
func (cb *cmdBuffer) SetDescTableComp(table driver.DescTable, start int, copies []driver.DescCopy) {
	if cb.cp == nil {
		cb.fail(errNoPass)
		return
	}
	for i, bg := range cb.bindGroups(copies) {
		cb.cp.SetBindGroup(uint32(start+i), bg, nil)
	}
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	cb.rp.Draw(uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	if cb.rp == nil {
		cb.fail(errNoPass)
		return
	}
	cb.rp.DrawIndexed(uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
}

// Dispatch dispatches compute thread groups.
func (cb *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	if cb.cp == nil {
		cb.fail(errNoPass)
		return
	}
	cb.cp.Dispatch(uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
}

// CopyBuffer copies data between buffers.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	from := param.From.(*buffer)
	to := param.To.(*buffer)
	cb.use(from, false)
	cb.use(to, true)
	cb.enc.CopyBufferToBuffer(from.buf, to.buf, []hal.BufferCopy{{
		SrcOffset: uint64(param.FromOff),
		DstOffset: uint64(param.ToOff),
		Size:      uint64(param.Size),
	}})
}

func bufImgCopy(param *driver.BufImgCopy) []hal.BufferTextureCopy {
	img := param.Img.(*image)
	z := param.ImgOff.Z
	depth := param.Size.Depth
	if img.size.Depth <= 1 {
		z = param.Layer
		depth = 1
	}
	return []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       uint64(param.BufOff),
			BytesPerRow:  uint32(param.Stride[0] * int64(img.pf.Size())),
			RowsPerImage: uint32(param.Stride[1]),
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  img.tex,
			MipLevel: uint32(param.Level),
			Origin:   hal.Origin3D{X: uint32(param.ImgOff.X), Y: uint32(param.ImgOff.Y), Z: uint32(z)},
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{
			Width:              uint32(param.Size.Width),
			Height:             uint32(param.Size.Height),
			DepthOrArrayLayers: uint32(max(depth, 1)),
		},
	}}
}

// CopyBufToImg copies data from a buffer to an image.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	b := param.Buf.(*buffer)
	cb.use(b, false)
	cb.enc.CopyBufferToTexture(b.buf, param.Img.(*image).tex, bufImgCopy(param))
}

// CopyImgToBuf copies data from an image to a buffer.
func (cb *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	b := param.Buf.(*buffer)
	cb.use(b, true)
	cb.enc.CopyTextureToBuffer(param.Img.(*image).tex, b.buf, bufImgCopy(param))
}

// Fill fills a buffer range with copies of value.
// The HAL only clears to zero, so the pattern is written
// to a staging buffer which is then copied.
func (cb *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	if off%4 != 0 || size%4 != 0 {
		cb.fail(errors.New("wgpu: misaligned fill"))
		return
	}
	b := buf.(*buffer)
	stg, err := cb.g.dev.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		cb.fail(fmt.Errorf("%w: %v", driver.ErrNoDeviceMemory, err))
		return
	}
	cb.staging = append(cb.staging, stg)
	data := make([]byte, size)
	for i := range data {
		data[i] = value
	}
	cb.g.queue.WriteBuffer(stg, 0, data)
	cb.use(b, true)
	cb.enc.CopyBufferToBuffer(stg, b.buf, []hal.BufferCopy{{
		DstOffset: uint64(off),
		Size:      uint64(size),
	}})
}

// Barrier is a no-op.
// The HAL orders buffer accesses between passes and
// copies of the same encoder.
func (cb *cmdBuffer) Barrier(b []driver.Barrier) {}

// Transition inserts texture usage transitions.
func (cb *cmdBuffer) Transition(t []driver.Transition) {
	bars := make([]hal.TextureBarrier, 0, len(t))
	for i := range t {
		iv := t[i].IView.(*imageView)
		bars = append(bars, hal.TextureBarrier{
			Texture: iv.m.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: layoutUsage(t[i].LayoutBefore),
				NewUsage: layoutUsage(t[i].LayoutAfter),
			},
		})
	}
	cb.enc.TransitionTextures(bars)
}

// End ends command recording.
func (cb *cmdBuffer) End() error {
	if !cb.recording {
		return errors.New("wgpu: End without Begin")
	}
	cb.recording = false
	if cb.rp != nil || cb.cp != nil {
		cb.fail(errors.New("wgpu: pass was not ended"))
	}
	if cb.err != nil {
		cb.enc.DiscardEncoding()
		return cb.err
	}
	c, err := cb.enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	cb.cb = c
	return nil
}

// Reset discards all recorded commands.
func (cb *cmdBuffer) Reset() error {
	if cb.recording {
		if cb.rp != nil {
			cb.rp.End()
		}
		if cb.cp != nil {
			cb.cp.End()
		}
		cb.enc.DiscardEncoding()
		cb.recording = false
	}
	if cb.cb != nil {
		cb.g.dev.FreeCommandBuffer(cb.cb)
		cb.cb = nil
	}
	for _, s := range cb.staging {
		cb.g.dev.DestroyBuffer(s)
	}
	cb.staging = cb.staging[:0]
	clear(cb.reads)
	clear(cb.writes)
	cb.rp, cb.cp, cb.err = nil, nil, nil
	return nil
}
