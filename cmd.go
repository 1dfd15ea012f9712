// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"fmt"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/internal/slab"
)

// CommandPool allocates commands for a single frame slot.
// Resetting the pool recycles every command allocated from
// it and invalidates the ones still held: commands belong
// to the epoch in which they were allocated.
type CommandPool struct {
	dev  *Device
	drv  driver.CmdPool
	cmds *slab.Allocator[commandImpl]
	// Released commands waiting for their frame to
	// complete.
	pending []retiree
	// Native command buffers that were reset and can be
	// reused.
	spare []driver.CmdBuffer
	epoch uint64
}

func (d *Device) newCommandPool() (*CommandPool, error) {
	drv, err := d.gpu.NewCmdPool(d.cfg.ResetSingleCmd)
	if err != nil {
		return nil, err
	}
	return &CommandPool{
		dev:  d,
		drv:  drv,
		cmds: slab.New(d.cfg.SlabCap, (*commandImpl).drop),
	}, nil
}

// CanResetSingleCmd reports whether the native pool can
// free single command buffers.
// When it can, released commands return their native
// buffers at the next GC instead of the next Reset.
func (p *CommandPool) CanResetSingleCmd() bool { return p.drv.CanResetSingle() }

// Epoch returns the number of times the pool was reset.
func (p *CommandPool) Epoch() uint64 { return p.epoch }

// PendingCount returns the number of released commands
// that were not recycled yet.
func (p *CommandPool) PendingCount() int { return len(p.pending) }

// Len returns the number of commands allocated from the
// pool and not recycled yet.
func (p *CommandPool) Len() int { return p.cmds.Len() }

// BlockCount returns the number of slabs of the pool's
// allocator.
func (p *CommandPool) BlockCount() int { return p.cmds.BlockCount() }

// CreateCommandEncoder allocates a command and begins
// recording it.
func (p *CommandPool) CreateCommandEncoder() (*CommandEncoder, error) {
	d := p.dev
	if d.lost {
		return nil, fmt.Errorf("create command encoder: %w", ErrDeviceLost)
	}
	var cb driver.CmdBuffer
	if n := len(p.spare); n > 0 {
		cb = p.spare[n-1]
		p.spare[n-1] = nil
		p.spare = p.spare[:n-1]
	} else {
		var err error
		if cb, err = p.drv.NewCmdBuffer(); err != nil {
			return nil, d.createFailed("command buffer", err)
		}
	}
	if err := cb.Begin(); err != nil {
		p.spare = append(p.spare, cb)
		return nil, d.classify("begin command", err)
	}
	c, ok := p.cmds.Allocate(func(c *commandImpl) {
		c.init(d)
		c.pool = p
		c.epoch = p.epoch
		c.cb = cb
	})
	if !ok {
		p.spare = append(p.spare, cb)
		return nil, fmt.Errorf("create command encoder: %w", ErrExhausted)
	}
	return &CommandEncoder{c: c, id: c.id}, nil
}

// recycle returns the native buffer of c and deallocates
// it.
func (p *CommandPool) recycle(c *commandImpl, free bool) {
	if c.cb != nil {
		if free {
			p.drv.Free(c.cb)
		} else {
			p.spare = append(p.spare, c.cb)
		}
		c.cb = nil
	}
	p.cmds.Deallocate(c)
}

// GC recycles released commands whose frame has completed,
// freeing their native buffers.
// It does nothing if the pool cannot free single command
// buffers.
func (p *CommandPool) GC(completed uint64) (n int) {
	if !p.drv.CanResetSingle() {
		return 0
	}
	keep := p.pending[:0]
	for _, x := range p.pending {
		if x.serial > completed {
			keep = append(keep, x)
			continue
		}
		p.recycle(x.r.(*commandImpl), true)
		n++
	}
	clear(p.pending[len(keep):])
	p.pending = keep
	return
}

// Reset recycles every released command and resets the
// native pool.
// Commands that are still held become invalid.
// The GPU must not be executing any command of the pool.
func (p *CommandPool) Reset() error {
	for _, x := range p.pending {
		p.recycle(x.r.(*commandImpl), false)
	}
	clear(p.pending)
	p.pending = p.pending[:0]
	stale := 0
	p.cmds.Each(func(c *commandImpl) bool {
		if c.cb != nil {
			p.spare = append(p.spare, c.cb)
			c.cb = nil
			stale++
		}
		return true
	})
	if err := p.drv.Reset(); err != nil {
		return p.dev.classify("reset command pool", err)
	}
	p.epoch++
	p.dev.log.Debug("command pool reset", "epoch", p.epoch, "stale", stale, "spare", len(p.spare))
	return nil
}

func (p *CommandPool) destroy() {
	p.cmds.FreeAll()
	p.pending = nil
	p.spare = nil
	p.drv.Destroy()
	p.drv = nil
}

type cmdState int

const (
	cmdRecording cmdState = iota
	cmdFinished
	cmdSubmitted
)

type cmdBlock int

const (
	blkNone cmdBlock = iota
	blkPass
	blkWork
	blkBlit
)

type commandImpl struct {
	object
	pool  *CommandPool
	epoch uint64
	cb    driver.CmdBuffer
	state cmdState
	block cmdBlock
	// First error found while recording.
	// Finish returns it.
	err  error
	pl   *pipelineImpl
	bufs []Buffer
	imgs []Image
	ivs  []ImageView
	pls  []Pipeline
	bgs  []BindGroup
	bgls []BindGroupLayout
	fbs  []driver.Framebuf
}

func (c *commandImpl) released() {
	c.pool.pending = append(c.pool.pending, retiree{c, c.dev.serial})
}

func (c *commandImpl) destroy() {}

// drop releases every handle the command retained.
// It is the slab destructor.
func (c *commandImpl) drop() {
	for _, fb := range c.fbs {
		fb.Destroy()
	}
	for i := range c.bgs {
		c.bgs[i].Release()
	}
	for i := range c.bgls {
		c.bgls[i].Release()
	}
	for i := range c.pls {
		c.pls[i].Release()
	}
	for i := range c.ivs {
		c.ivs[i].Release()
	}
	for i := range c.imgs {
		c.imgs[i].Release()
	}
	for i := range c.bufs {
		c.bufs[i].Release()
	}
}

// valid reports whether c can still be used.
func (c *commandImpl) valid(id uint64) bool {
	return c != nil && c.id == id && c.rc.alive() && c.epoch == c.pool.epoch
}

func (c *commandImpl) check(id uint64, what string) {
	switch {
	case c == nil || c.id != id || !c.rc.alive():
		panic("rhi: " + what + ": use of released command")
	case c.epoch != c.pool.epoch:
		panic("rhi: " + what + ": command invalidated by pool reset")
	}
}

func (c *commandImpl) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *commandImpl) keepBuffer(b Buffer) driver.Buffer {
	p := mustLive(b.p, b.id, "Buffer")
	c.bufs = append(c.bufs, b.Clone())
	return p.drv
}

func (c *commandImpl) keepImage(m Image) driver.Image {
	p := mustLive(m.p, m.id, "Image")
	c.imgs = append(c.imgs, m.Clone())
	return p.drv
}

func (c *commandImpl) keepView(v ImageView) *viewImpl {
	p := mustLive(v.p, v.id, "ImageView")
	c.ivs = append(c.ivs, v.Clone())
	return p
}

func (c *commandImpl) keepPipeline(pl Pipeline) *pipelineImpl {
	p := mustLive(pl.p, pl.id, "Pipeline")
	c.pls = append(c.pls, pl.Clone())
	return p
}

// keepBindGroup retains g and its layout.
func (c *commandImpl) keepBindGroup(g BindGroup) *bindGroupImpl {
	p := mustLive(g.p, g.id, "BindGroup")
	c.bgs = append(c.bgs, g.Clone())
	c.bgls = append(c.bgls, BindGroupLayout{p.layout, p.layout.id}.Clone())
	return p
}

// blit opens a copy block unless one is open already.
// Consecutive copies share a block.
func (c *commandImpl) blit() {
	switch c.block {
	case blkNone:
		c.cb.BeginBlit(false)
		c.block = blkBlit
	case blkBlit:
	default:
		panic("rhi: copy command inside a pass")
	}
}

// endBlock closes an open copy block.
func (c *commandImpl) endBlock() {
	switch c.block {
	case blkNone:
	case blkBlit:
		c.cb.EndBlit()
		c.block = blkNone
	default:
		panic("rhi: pass was not ended")
	}
}

// CommandEncoder records commands.
// It is obtained from a CommandPool and is not safe for
// concurrent use.
type CommandEncoder struct {
	c  *commandImpl
	id uint64
}

// rec returns the command being recorded.
// It panics if e is invalid or finished.
func (e *CommandEncoder) rec(what string) *commandImpl {
	e.c.check(e.id, what)
	if e.c.state != cmdRecording {
		panic("rhi: " + what + " after Finish")
	}
	return e.c
}

// Valid reports whether e can still record.
func (e *CommandEncoder) Valid() bool {
	return e.c.valid(e.id) && e.c.state == cmdRecording
}

// CopyBufferToBuffer copies size bytes from src at srcOff
// to dst at dstOff.
func (e *CommandEncoder) CopyBufferToBuffer(src Buffer, srcOff int64, dst Buffer, dstOff, size int64) {
	c := e.rec("CopyBufferToBuffer")
	from, to := c.keepBuffer(src), c.keepBuffer(dst)
	c.blit()
	c.cb.CopyBuffer(&driver.BufferCopy{
		From:    from,
		FromOff: srcOff,
		To:      to,
		ToOff:   dstOff,
		Size:    size,
	})
}

// BufferImageCopy describes a copy between a buffer and an
// image subresource.
type BufferImageCopy struct {
	Buffer       Buffer
	BufferOffset int64
	// Row length and image height of the data in the
	// buffer, in pixels.
	// Zero means tightly packed.
	Stride [2]int64
	Image  Image
	Origin driver.Off3D
	Layer  int
	Level  int
	Size   driver.Dim3D
}

func (c *commandImpl) bufImgCopy(cp *BufferImageCopy) *driver.BufImgCopy {
	param := &driver.BufImgCopy{
		Buf:    c.keepBuffer(cp.Buffer),
		BufOff: cp.BufferOffset,
		Stride: cp.Stride,
		Img:    c.keepImage(cp.Image),
		ImgOff: cp.Origin,
		Layer:  cp.Layer,
		Level:  cp.Level,
		Size:   cp.Size,
	}
	if param.Stride[0] == 0 {
		param.Stride[0] = int64(cp.Size.Width)
	}
	if param.Stride[1] == 0 {
		param.Stride[1] = int64(cp.Size.Height)
	}
	return param
}

// CopyBufferToImage copies data from a buffer to an image.
func (e *CommandEncoder) CopyBufferToImage(cp *BufferImageCopy) {
	c := e.rec("CopyBufferToImage")
	param := c.bufImgCopy(cp)
	c.blit()
	c.cb.CopyBufToImg(param)
}

// CopyImageToBuffer copies data from an image to a buffer.
func (e *CommandEncoder) CopyImageToBuffer(cp *BufferImageCopy) {
	c := e.rec("CopyImageToBuffer")
	param := c.bufImgCopy(cp)
	c.blit()
	c.cb.CopyImgToBuf(param)
}

// FillBuffer fills size bytes of b, starting at off, with
// value.
// off and size must be multiples of 4.
func (e *CommandEncoder) FillBuffer(b Buffer, off int64, value byte, size int64) {
	c := e.rec("FillBuffer")
	buf := c.keepBuffer(b)
	c.blit()
	c.cb.Fill(buf, off, value, size)
}

// Barrier inserts a global memory barrier.
func (e *CommandEncoder) Barrier(b driver.Barrier) {
	c := e.rec("Barrier")
	c.endBlock()
	c.cb.Barrier([]driver.Barrier{b})
}

// TransitionImage changes the layout of the image that v
// views.
func (e *CommandEncoder) TransitionImage(v ImageView, before, after driver.Layout, b driver.Barrier) {
	c := e.rec("TransitionImage")
	p := c.keepView(v)
	c.endBlock()
	c.cb.Transition([]driver.Transition{{
		Barrier:      b,
		LayoutBefore: before,
		LayoutAfter:  after,
		IView:        p.drv,
	}})
}

// ColorAttachment describes a color target of a render
// pass.
type ColorAttachment struct {
	View  ImageView
	Load  driver.LoadOp
	Store driver.StoreOp
	Clear [4]float32
	// LUndefined selects LPresent for swapchain views
	// and LColorTarget otherwise.
	Final driver.Layout
}

// DepthAttachment describes the depth/stencil target of a
// render pass.
type DepthAttachment struct {
	View    ImageView
	Load    driver.LoadOp
	Store   driver.StoreOp
	Clear   float32
	Stencil uint32
	// LUndefined selects LDSTarget.
	Final driver.Layout
}

// RenderPassDesc describes the targets of a render pass.
type RenderPassDesc struct {
	Color []ColorAttachment
	Depth *DepthAttachment
}

// BeginRenderPass begins a render pass.
// Errors creating the pass are reported by Finish.
func (e *CommandEncoder) BeginRenderPass(desc *RenderPassDesc) *RenderPassEncoder {
	c := e.rec("BeginRenderPass")
	c.endBlock()
	if len(desc.Color) == 0 && desc.Depth == nil {
		panic("rhi: render pass with no attachments")
	}
	var (
		key    passKey
		ivs    []driver.ImageView
		clears []driver.ClearValue
		width  int
		height int
	)
	size := func(v *viewImpl) {
		if width == 0 {
			width, height = v.width, v.height
			key.samples = max(v.samples, 1)
		}
	}
	for i := range desc.Color {
		a := &desc.Color[i]
		v := c.keepView(a.View)
		size(v)
		final := a.Final
		if final == driver.LUndefined {
			final = driver.LColorTarget
			if v.external {
				final = driver.LPresent
			}
		}
		key.color = append(key.color, attKey{v.fmt, a.Load, a.Store, final})
		ivs = append(ivs, v.drv)
		clears = append(clears, driver.ClearValue{Color: a.Clear})
	}
	if a := desc.Depth; a != nil {
		v := c.keepView(a.View)
		size(v)
		key.depth, key.dload, key.dstore = v.fmt, a.Load, a.Store
		key.dfinal = a.Final
		if key.dfinal == driver.LUndefined {
			key.dfinal = driver.LDSTarget
		}
		ivs = append(ivs, v.drv)
		clears = append(clears, driver.ClearValue{Depth: a.Clear, Stencil: a.Stencil})
	}
	pe := &RenderPassEncoder{enc: e}
	rp, err := c.dev.renderPass(&key)
	if err != nil {
		c.fail(c.dev.classify("begin render pass", err))
		return pe
	}
	fb, err := rp.NewFB(ivs, width, height)
	if err != nil {
		c.fail(c.dev.classify("begin render pass", err))
		return pe
	}
	c.fbs = append(c.fbs, fb)
	c.cb.BeginPass(rp, fb, clears)
	c.block = blkPass
	c.pl = nil
	pe.open = true
	return pe
}

// BeginComputePass begins compute work.
func (e *CommandEncoder) BeginComputePass() *ComputePassEncoder {
	c := e.rec("BeginComputePass")
	c.endBlock()
	c.cb.BeginWork(true)
	c.block = blkWork
	c.pl = nil
	return &ComputePassEncoder{enc: e}
}

// Finish ends recording and returns the recorded command.
// The encoder cannot be used afterwards.
// On failure the command is released and an invalid
// Command is returned.
func (e *CommandEncoder) Finish() (Command, error) {
	c := e.rec("Finish")
	c.endBlock()
	c.state = cmdFinished
	err := c.err
	if err == nil {
		err = c.dev.classify("finish command", c.cb.End())
	}
	if err != nil {
		release(c, e.id, "Command")
		return Command{}, err
	}
	return Command{c, e.id}, nil
}

// Discard abandons recording and releases the command.
func (e *CommandEncoder) Discard() {
	c := e.rec("Discard")
	c.state = cmdFinished
	release(c, e.id, "Command")
}

// RenderPassEncoder records the commands of a render pass.
type RenderPassEncoder struct {
	enc *CommandEncoder
	// Whether the pass began. If it did not, recording
	// is skipped and Finish reports the error.
	open  bool
	ended bool
}

func (pe *RenderPassEncoder) rec(what string) *commandImpl {
	c := pe.enc.rec(what)
	if pe.ended || pe.open && c.block != blkPass {
		panic("rhi: " + what + " after End")
	}
	return c
}

// SetPipeline sets the graphics pipeline.
func (pe *RenderPassEncoder) SetPipeline(pl Pipeline) {
	c := pe.rec("SetPipeline")
	p := c.keepPipeline(pl)
	if !p.graph {
		panic("rhi: compute pipeline set in render pass")
	}
	if !pe.open {
		return
	}
	c.pl = p
	c.cb.SetPipeline(p.drv)
}

// SetBindGroup binds g at slot of the current pipeline's
// layout.
func (pe *RenderPassEncoder) SetBindGroup(slot int, g BindGroup) {
	c := pe.rec("SetBindGroup")
	p := c.keepBindGroup(g)
	if !pe.open {
		return
	}
	if c.pl == nil {
		panic("rhi: SetBindGroup before SetPipeline")
	}
	c.cb.SetDescTableGraph(c.pl.layout.p.drv, slot, []driver.DescCopy{{Heap: p.heap, Copy: p.copy}})
}

// SetVertexBuffer sets the vertex buffer at slot.
func (pe *RenderPassEncoder) SetVertexBuffer(slot int, b Buffer, off int64) {
	c := pe.rec("SetVertexBuffer")
	buf := c.keepBuffer(b)
	if pe.open {
		c.cb.SetVertexBuf(slot, []driver.Buffer{buf}, []int64{off})
	}
}

// SetIndexBuffer sets the index buffer.
func (pe *RenderPassEncoder) SetIndexBuffer(format driver.IndexFmt, b Buffer, off int64) {
	c := pe.rec("SetIndexBuffer")
	buf := c.keepBuffer(b)
	if pe.open {
		c.cb.SetIndexBuf(format, buf, off)
	}
}

// SetViewport sets the viewport.
func (pe *RenderPassEncoder) SetViewport(vp driver.Viewport) {
	c := pe.rec("SetViewport")
	if pe.open {
		c.cb.SetViewport([]driver.Viewport{vp})
	}
}

// SetScissor sets the scissor rectangle.
func (pe *RenderPassEncoder) SetScissor(s driver.Scissor) {
	c := pe.rec("SetScissor")
	if pe.open {
		c.cb.SetScissor([]driver.Scissor{s})
	}
}

// Draw draws primitives.
func (pe *RenderPassEncoder) Draw(vertCount, instCount, baseVert, baseInst int) {
	c := pe.rec("Draw")
	if pe.open {
		c.cb.Draw(vertCount, instCount, baseVert, baseInst)
	}
}

// DrawIndexed draws indexed primitives.
func (pe *RenderPassEncoder) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	c := pe.rec("DrawIndexed")
	if pe.open {
		c.cb.DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst)
	}
}

// End ends the render pass.
func (pe *RenderPassEncoder) End() {
	c := pe.rec("End")
	if pe.open {
		c.cb.EndPass()
		c.block = blkNone
		c.pl = nil
	}
	pe.ended = true
}

// ComputePassEncoder records compute commands.
type ComputePassEncoder struct {
	enc   *CommandEncoder
	ended bool
}

func (ce *ComputePassEncoder) rec(what string) *commandImpl {
	c := ce.enc.rec(what)
	if ce.ended || c.block != blkWork {
		panic("rhi: " + what + " after End")
	}
	return c
}

// SetPipeline sets the compute pipeline.
func (ce *ComputePassEncoder) SetPipeline(pl Pipeline) {
	c := ce.rec("SetPipeline")
	p := c.keepPipeline(pl)
	if p.graph {
		panic("rhi: graphics pipeline set in compute pass")
	}
	c.pl = p
	c.cb.SetPipeline(p.drv)
}

// SetBindGroup binds g at slot of the current pipeline's
// layout.
func (ce *ComputePassEncoder) SetBindGroup(slot int, g BindGroup) {
	c := ce.rec("SetBindGroup")
	if c.pl == nil {
		panic("rhi: SetBindGroup before SetPipeline")
	}
	p := c.keepBindGroup(g)
	c.cb.SetDescTableComp(c.pl.layout.p.drv, slot, []driver.DescCopy{{Heap: p.heap, Copy: p.copy}})
}

// Dispatch dispatches compute work groups.
func (ce *ComputePassEncoder) Dispatch(x, y, z int) {
	ce.rec("Dispatch").cb.Dispatch(x, y, z)
}

// End ends the compute pass.
func (ce *ComputePassEncoder) End() {
	c := ce.rec("End")
	c.cb.EndWork()
	c.block = blkNone
	c.pl = nil
	ce.ended = true
}

// Command is a reference-counted handle to a recorded
// command buffer.
// It is valid until released or until its pool is reset.
// Device.Submit takes ownership of it.
type Command struct {
	p  *commandImpl
	id uint64
}

// Valid reports whether c refers to a live command of its
// pool's current epoch.
func (c Command) Valid() bool { return c.p.valid(c.id) }

// Clone adds a reference.
func (c Command) Clone() Command {
	c.p.check(c.id, "Clone")
	c.p.rc.inc()
	return c
}

// Release removes the reference held by c.
// The command is recycled once the frame in which it was
// released completes.
func (c *Command) Release() {
	release(c.p, c.id, "Command")
	*c = Command{}
}

// ID returns the command's identifier.
func (c Command) ID() uint64 {
	c.p.check(c.id, "ID")
	return c.id
}

// Refcount returns the number of references.
func (c Command) Refcount() uint32 { return refs(c.p, c.id) }

// Submitted reports whether c was submitted.
func (c Command) Submitted() bool {
	c.p.check(c.id, "Submitted")
	return c.p.state == cmdSubmitted
}

// take validates cmds for submission in pool p and
// returns their native buffers.
func take(p *CommandPool, cmds []Command) []driver.CmdBuffer {
	cbs := make([]driver.CmdBuffer, len(cmds))
	for i, x := range cmds {
		x.p.check(x.id, "Submit")
		switch {
		case x.p.pool != p:
			panic("rhi: Submit of command from another frame")
		case x.p.state == cmdRecording:
			panic("rhi: Submit of command that was not finished")
		case x.p.state == cmdSubmitted:
			panic("rhi: command submitted twice")
		}
		x.p.state = cmdSubmitted
		cbs[i] = x.p.cb
	}
	return cbs
}
