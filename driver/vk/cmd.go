// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// cmdPool implements driver.CmdPool.
type cmdPool struct {
	d      *Driver
	pool   vulkan.CommandPool
	single bool
	bufs   map[*cmdBuffer]struct{}
}

// NewCmdPool creates a new command pool.
// Command buffers allocated from it must only be submitted
// to d.que.
func (d *Driver) NewCmdPool(resetSingle bool) (driver.CmdPool, error) {
	info := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.qfam,
	}
	if resetSingle {
		info.Flags = vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit)
	}
	var pool vulkan.CommandPool
	if err := checkResult(vulkan.CreateCommandPool(d.dev, &info, nil, &pool)); err != nil {
		return nil, err
	}
	return &cmdPool{
		d:      d,
		pool:   pool,
		single: resetSingle,
		bufs:   make(map[*cmdBuffer]struct{}),
	}, nil
}

// NewCmdBuffer allocates a new command buffer.
func (p *cmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	info := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vulkan.CommandBuffer, 1)
	if err := checkResult(vulkan.AllocateCommandBuffers(p.d.dev, &info, cbs)); err != nil {
		return nil, err
	}
	cb := &cmdBuffer{p: p, cb: cbs[0]}
	p.bufs[cb] = struct{}{}
	return cb, nil
}

// Free frees cb.
func (p *cmdPool) Free(cb driver.CmdBuffer) {
	c := cb.(*cmdBuffer)
	if _, ok := p.bufs[c]; !ok {
		return
	}
	vulkan.FreeCommandBuffers(p.d.dev, p.pool, 1, []vulkan.CommandBuffer{c.cb})
	delete(p.bufs, c)
	*c = cmdBuffer{}
}

// Reset resets every command buffer allocated from p.
func (p *cmdPool) Reset() error {
	if err := checkResult(vulkan.ResetCommandPool(p.d.dev, p.pool, 0)); err != nil {
		return err
	}
	for cb := range p.bufs {
		cb.clear()
	}
	return nil
}

// CanResetSingle reports whether p was created with
// resetSingle set.
func (p *cmdPool) CanResetSingle() bool { return p.single }

// Destroy destroys p and every command buffer allocated
// from it.
func (p *cmdPool) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		vulkan.DestroyCommandPool(p.d.dev, p.pool, nil)
		for cb := range p.bufs {
			*cb = cmdBuffer{}
		}
	}
	*p = cmdPool{}
}

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	p         *cmdPool
	cb        vulkan.CommandBuffer
	recording bool
}

// clear resets the recording state of cb.
func (cb *cmdBuffer) clear() {
	cb.recording = false
}

// Begin prepares cb for recording.
func (cb *cmdBuffer) Begin() error {
	info := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := checkResult(vulkan.BeginCommandBuffer(cb.cb, &info)); err != nil {
		return err
	}
	cb.recording = true
	return nil
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	rp := pass.(*renderPass)
	f := fb.(*framebuf)
	var clears []vulkan.ClearValue
	if len(clear) > 0 {
		clears = make([]vulkan.ClearValue, len(rp.att))
		for i := range rp.att {
			if i >= len(clear) {
				break
			}
			if rp.att[i].Format.IsDS() {
				clears[i] = vulkan.NewClearDepthStencil(clear[i].Depth, clear[i].Stencil)
			} else {
				clears[i] = vulkan.NewClearValue(clear[i].Color[:])
			}
		}
	}
	info := vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.pass,
		Framebuffer: f.fb,
		RenderArea: vulkan.Rect2D{
			Extent: vulkan.Extent2D{
				Width:  uint32(f.width),
				Height: uint32(f.height),
			},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vulkan.CmdBeginRenderPass(cb.cb, &info, vulkan.SubpassContentsInline)
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() { vulkan.CmdEndRenderPass(cb.cb) }

// fullBarrier makes subsequent commands wait for every
// previously recorded command.
func (cb *cmdBuffer) fullBarrier() {
	mb := vulkan.MemoryBarrier{
		SType:         vulkan.StructureTypeMemoryBarrier,
		SrcAccessMask: vulkan.AccessFlags(vulkan.AccessMemoryWriteBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessMemoryReadBit | vulkan.AccessMemoryWriteBit),
	}
	all := vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit)
	vulkan.CmdPipelineBarrier(cb.cb, all, all, 0, 1, []vulkan.MemoryBarrier{mb}, 0, nil, 0, nil)
}

// BeginWork begins compute work.
func (cb *cmdBuffer) BeginWork(wait bool) {
	if wait {
		cb.fullBarrier()
	}
}

// EndWork ends the current compute work.
func (cb *cmdBuffer) EndWork() {}

// BeginBlit begins data transfer.
func (cb *cmdBuffer) BeginBlit(wait bool) {
	if wait {
		cb.fullBarrier()
	}
}

// EndBlit ends the current data transfer.
func (cb *cmdBuffer) EndBlit() {}

// SetPipeline sets the pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*pipeline)
	vulkan.CmdBindPipeline(cb.cb, p.bind, p.pl)
}

// SetViewport sets the bounds of one or more viewports.
func (cb *cmdBuffer) SetViewport(vp []driver.Viewport) {
	if len(vp) == 0 {
		return
	}
	vps := make([]vulkan.Viewport, len(vp))
	for i, v := range vp {
		vps[i] = vulkan.Viewport{
			X:        v.X,
			Y:        v.Y,
			Width:    v.Width,
			Height:   v.Height,
			MinDepth: v.Znear,
			MaxDepth: v.Zfar,
		}
	}
	vulkan.CmdSetViewport(cb.cb, 0, uint32(len(vps)), vps)
}

// SetScissor sets the rectangles of one or more viewport
// scissors.
func (cb *cmdBuffer) SetScissor(sciss []driver.Scissor) {
	if len(sciss) == 0 {
		return
	}
	rects := make([]vulkan.Rect2D, len(sciss))
	for i, s := range sciss {
		rects[i] = vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: int32(s.X), Y: int32(s.Y)},
			Extent: vulkan.Extent2D{Width: uint32(s.Width), Height: uint32(s.Height)},
		}
	}
	vulkan.CmdSetScissor(cb.cb, 0, uint32(len(rects)), rects)
}

// SetVertexBuf sets one or more vertex buffers.
func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	if len(buf) == 0 {
		return
	}
	bufs := make([]vulkan.Buffer, len(buf))
	offs := make([]vulkan.DeviceSize, len(buf))
	for i := range buf {
		bufs[i] = buf[i].(*buffer).buf
		offs[i] = vulkan.DeviceSize(off[i])
	}
	vulkan.CmdBindVertexBuffers(cb.cb, uint32(start), uint32(len(bufs)), bufs, offs)
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	vulkan.CmdBindIndexBuffer(cb.cb, buf.(*buffer).buf, vulkan.DeviceSize(off), convIndexFmt(format))
}

// setDescTable binds descriptor sets to bp.
func (cb *cmdBuffer) setDescTable(bp vulkan.PipelineBindPoint, table driver.DescTable, start int, copies []driver.DescCopy) {
	if len(copies) == 0 {
		return
	}
	t := table.(*descTable)
	sets := make([]vulkan.DescriptorSet, len(copies))
	for i, c := range copies {
		sets[i] = c.Heap.(*descHeap).sets[c.Copy]
	}
	vulkan.CmdBindDescriptorSets(cb.cb, bp, t.layout, uint32(start), uint32(len(sets)), sets, 0, nil)
}

// SetDescTableGraph sets a descriptor table range for
// graphics pipelines.
func (cb *cmdBuffer) SetDescTableGraph(table driver.DescTable, start int, copies []driver.DescCopy) {
	cb.setDescTable(vulkan.PipelineBindPointGraphics, table, start, copies)
}

// SetDescTableComp sets a descriptor table range for
// compute pipelines.
func (cb *cmdBuffer) SetDescTableComp(table driver.DescTable, start int, copies []driver.DescCopy) {
	cb.setDescTable(vulkan.PipelineBindPointCompute, table, start, copies)
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	vulkan.CmdDraw(cb.cb, uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	vulkan.CmdDrawIndexed(cb.cb, uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
}

// Dispatch dispatches compute thread groups.
func (cb *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	vulkan.CmdDispatch(cb.cb, uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
}

// CopyBuffer copies data between buffers.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	region := vulkan.BufferCopy{
		SrcOffset: vulkan.DeviceSize(param.FromOff),
		DstOffset: vulkan.DeviceSize(param.ToOff),
		Size:      vulkan.DeviceSize(param.Size),
	}
	vulkan.CmdCopyBuffer(cb.cb, param.From.(*buffer).buf, param.To.(*buffer).buf, 1, []vulkan.BufferCopy{region})
}

// bufImgCopy converts param to a VkBufferImageCopy.
// Copies involving a combined depth/stencil format
// only affect the depth aspect.
func bufImgCopy(param *driver.BufImgCopy) vulkan.BufferImageCopy {
	img := param.Img.(*image)
	aspect := aspectOf(img.pf)
	if img.pf.IsDS() {
		aspect = vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
	}
	return vulkan.BufferImageCopy{
		BufferOffset:      vulkan.DeviceSize(param.BufOff),
		BufferRowLength:   uint32(param.Stride[0]),
		BufferImageHeight: uint32(param.Stride[1]),
		ImageSubresource: vulkan.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       uint32(param.Level),
			BaseArrayLayer: uint32(param.Layer),
			LayerCount:     1,
		},
		ImageOffset: vulkan.Offset3D{
			X: int32(param.ImgOff.X),
			Y: int32(param.ImgOff.Y),
			Z: int32(param.ImgOff.Z),
		},
		ImageExtent: vulkan.Extent3D{
			Width:  uint32(param.Size.Width),
			Height: uint32(param.Size.Height),
			Depth:  uint32(max(param.Size.Depth, 1)),
		},
	}
}

// CopyBufToImg copies data from a buffer to an image.
// The image must be in the LCopyDst layout.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	region := bufImgCopy(param)
	vulkan.CmdCopyBufferToImage(cb.cb, param.Buf.(*buffer).buf, param.Img.(*image).img,
		vulkan.ImageLayoutTransferDstOptimal, 1, []vulkan.BufferImageCopy{region})
}

// CopyImgToBuf copies data from an image to a buffer.
// The image must be in the LCopySrc layout.
func (cb *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	region := bufImgCopy(param)
	vulkan.CmdCopyImageToBuffer(cb.cb, param.Img.(*image).img, vulkan.ImageLayoutTransferSrcOptimal,
		param.Buf.(*buffer).buf, 1, []vulkan.BufferImageCopy{region})
}

// Fill fills a buffer range with copies of a byte value.
func (cb *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	v := uint32(value)
	v |= v<<8 | v<<16 | v<<24
	vulkan.CmdFillBuffer(cb.cb, buf.(*buffer).buf, vulkan.DeviceSize(off), vulkan.DeviceSize(size), v)
}

// Barrier inserts a number of global barriers in the
// command buffer.
func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	if len(b) == 0 {
		return
	}
	var src, dst vulkan.PipelineStageFlags
	mbs := make([]vulkan.MemoryBarrier, len(b))
	for i := range b {
		src |= convSync(b[i].SyncBefore, vulkan.PipelineStageTopOfPipeBit)
		dst |= convSync(b[i].SyncAfter, vulkan.PipelineStageBottomOfPipeBit)
		mbs[i] = vulkan.MemoryBarrier{
			SType:         vulkan.StructureTypeMemoryBarrier,
			SrcAccessMask: convAccess(b[i].AccessBefore),
			DstAccessMask: convAccess(b[i].AccessAfter),
		}
	}
	vulkan.CmdPipelineBarrier(cb.cb, src, dst, 0, uint32(len(mbs)), mbs, 0, nil, 0, nil)
}

// Transition inserts a number of image layout transitions
// in the command buffer.
func (cb *cmdBuffer) Transition(t []driver.Transition) {
	if len(t) == 0 {
		return
	}
	var src, dst vulkan.PipelineStageFlags
	ibs := make([]vulkan.ImageMemoryBarrier, len(t))
	for i := range t {
		src |= convSync(t[i].SyncBefore, vulkan.PipelineStageTopOfPipeBit)
		dst |= convSync(t[i].SyncAfter, vulkan.PipelineStageBottomOfPipeBit)
		iv := t[i].IView.(*imageView)
		ibs[i] = vulkan.ImageMemoryBarrier{
			SType:               vulkan.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       convAccess(t[i].AccessBefore),
			DstAccessMask:       convAccess(t[i].AccessAfter),
			OldLayout:           convLayout(t[i].LayoutBefore),
			NewLayout:           convLayout(t[i].LayoutAfter),
			SrcQueueFamilyIndex: vulkan.QueueFamilyIgnored,
			DstQueueFamilyIndex: vulkan.QueueFamilyIgnored,
			Image:               iv.i.img,
			SubresourceRange:    iv.subres,
		}
	}
	vulkan.CmdPipelineBarrier(cb.cb, src, dst, 0, 0, nil, 0, nil, uint32(len(ibs)), ibs)
}

// End ends command recording.
func (cb *cmdBuffer) End() error {
	if !cb.recording {
		return errors.New("vk: command buffer is not recording")
	}
	cb.recording = false
	return checkResult(vulkan.EndCommandBuffer(cb.cb))
}

// Reset discards all recorded commands.
func (cb *cmdBuffer) Reset() error {
	if !cb.p.single {
		return errors.New("vk: command pool cannot reset single command buffers")
	}
	cb.clear()
	return checkResult(vulkan.ResetCommandBuffer(cb.cb, 0))
}

// Submit submits a batch of command buffers to the GPU.
func (d *Driver) Submit(s *driver.Submission) error {
	info := vulkan.SubmitInfo{SType: vulkan.StructureTypeSubmitInfo}
	if n := len(s.Cmds); n > 0 {
		cbs := make([]vulkan.CommandBuffer, n)
		for i, c := range s.Cmds {
			cbs[i] = c.(*cmdBuffer).cb
		}
		info.CommandBufferCount = uint32(n)
		info.PCommandBuffers = cbs
	}
	if n := len(s.Wait); n > 0 {
		sems := make([]vulkan.Semaphore, n)
		stages := make([]vulkan.PipelineStageFlags, n)
		for i, w := range s.Wait {
			sems[i] = w.(*semaphore).sem
			stages[i] = vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit)
		}
		info.WaitSemaphoreCount = uint32(n)
		info.PWaitSemaphores = sems
		info.PWaitDstStageMask = stages
	}
	if n := len(s.Signal); n > 0 {
		sems := make([]vulkan.Semaphore, n)
		for i, sg := range s.Signal {
			sems[i] = sg.(*semaphore).sem
		}
		info.SignalSemaphoreCount = uint32(n)
		info.PSignalSemaphores = sems
	}
	fen := vulkan.NullFence
	if s.Fence != nil {
		fen = s.Fence.(*fence).fen
	}
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return checkResult(vulkan.QueueSubmit(d.que, 1, []vulkan.SubmitInfo{info}, fen))
}

// WaitIdle blocks until the device is idle.
func (d *Driver) WaitIdle() error {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return checkResult(vulkan.DeviceWaitIdle(d.dev))
}
