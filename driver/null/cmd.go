// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"errors"
	"fmt"

	"github.com/gviegas/rhi/driver"
)

// CmdPool implements driver.CmdPool.
type CmdPool struct {
	g      *GPU
	id     uint64
	single bool
	cbs    []*CmdBuffer
}

// NewCmdPool creates a new command pool.
func (g *GPU) NewCmdPool(resetSingle bool) (driver.CmdPool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &CmdPool{
		g:      g,
		id:     g.newID(KPool),
		single: resetSingle && !g.noSingle,
	}, nil
}

// NewCmdBuffer allocates a new command buffer.
func (p *CmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	cb := &CmdBuffer{g: g, pool: p, id: g.newID(KCmd)}
	p.cbs = append(p.cbs, cb)
	return cb, nil
}

// Free frees cb.
func (p *CmdPool) Free(cb driver.CmdBuffer) {
	if !p.single {
		panic("null: CmdPool.Free called on pool that cannot reset single command buffers")
	}
	c := cb.(*CmdBuffer)
	g := p.g
	g.mu.Lock()
	if c.state == cbPending {
		g.mu.Unlock()
		panic("null: CmdPool.Free called on pending command buffer")
	}
	for i := range p.cbs {
		if p.cbs[i] == c {
			p.cbs[i] = p.cbs[len(p.cbs)-1]
			p.cbs[len(p.cbs)-1] = nil
			p.cbs = p.cbs[:len(p.cbs)-1]
			break
		}
	}
	g.mu.Unlock()
	g.destroy(KCmd, c.id)
}

// Reset resets every command buffer allocated from p.
func (p *CmdPool) Reset() error {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cb := range p.cbs {
		if cb.state == cbPending {
			return errors.New("null: CmdPool.Reset called while command buffers are pending")
		}
	}
	for _, cb := range p.cbs {
		cb.clear()
	}
	g.record(EvPoolReset, KPool, p.id, len(p.cbs))
	return nil
}

// CanResetSingle reports whether single command buffers
// can be freed and reset.
func (p *CmdPool) CanResetSingle() bool { return p.single }

// ID returns the identifier used for p in events.
func (p *CmdPool) ID() uint64 { return p.id }

// Len returns the number of command buffers allocated
// from p and not freed.
func (p *CmdPool) Len() int {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return len(p.cbs)
}

// Destroy destroys the pool and every command buffer
// allocated from it.
func (p *CmdPool) Destroy() {
	if p == nil || p.g == nil {
		return
	}
	for _, cb := range p.cbs {
		p.g.destroy(KCmd, cb.id)
	}
	p.g.destroy(KPool, p.id)
	*p = CmdPool{}
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
)

type cbBlock int

const (
	blkNone cbBlock = iota
	blkPass
	blkWork
	blkBlit
)

// CmdBuffer implements driver.CmdBuffer.
// Copy and fill commands are stored as closures that run
// when the command buffer executes.
type CmdBuffer struct {
	g     *GPU
	pool  *CmdPool
	id    uint64
	state cbState
	block cbBlock
	ops   []func()
	err   error
	stats Stats
}

// Stats counts the commands recorded in a command buffer.
type Stats struct {
	Passes    int
	Draws     int
	Dispatchs int
	Copies    int
	Fills     int
	Barriers  int
	Binds     int
}

// Stats returns the counts of recorded commands.
func (cb *CmdBuffer) Stats() Stats { return cb.stats }

func (cb *CmdBuffer) clear() {
	cb.state = cbInitial
	cb.block = blkNone
	cb.ops = cb.ops[:0]
	cb.err = nil
	cb.stats = Stats{}
}

// fail records the first recording error.
func (cb *CmdBuffer) fail(format string, args ...any) {
	if cb.err == nil {
		cb.err = fmt.Errorf("null: "+format, args...)
	}
}

// in checks that cb is recording inside block b.
func (cb *CmdBuffer) in(b cbBlock, cmd string) bool {
	if cb.state != cbRecording {
		cb.fail("%s: command buffer is not recording", cmd)
		return false
	}
	if cb.block != b {
		cb.fail("%s: invalid command block", cmd)
		return false
	}
	return true
}

// Begin prepares the command buffer for recording.
func (cb *CmdBuffer) Begin() error {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	switch cb.state {
	case cbPending:
		return errors.New("null: CmdBuffer.Begin called on pending command buffer")
	case cbRecording:
		return errors.New("null: CmdBuffer.Begin called on recording command buffer")
	}
	cb.clear()
	cb.state = cbRecording
	return nil
}

// BeginPass begins a render pass.
func (cb *CmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	if !cb.in(blkNone, "BeginPass") {
		return
	}
	p, f := pass.(*RenderPass), fb.(*Framebuf)
	if f.pass != p {
		cb.fail("BeginPass: framebuffer was not created from pass")
	}
	cb.block = blkPass
	cb.stats.Passes++
}

// EndPass ends the current render pass.
func (cb *CmdBuffer) EndPass() {
	if cb.in(blkPass, "EndPass") {
		cb.block = blkNone
	}
}

// BeginWork begins compute work.
func (cb *CmdBuffer) BeginWork(wait bool) {
	if cb.in(blkNone, "BeginWork") {
		cb.block = blkWork
	}
}

// EndWork ends the current compute work.
func (cb *CmdBuffer) EndWork() {
	if cb.in(blkWork, "EndWork") {
		cb.block = blkNone
	}
}

// BeginBlit begins data transfer.
func (cb *CmdBuffer) BeginBlit(wait bool) {
	if cb.in(blkNone, "BeginBlit") {
		cb.block = blkBlit
	}
}

// EndBlit ends the current data transfer.
func (cb *CmdBuffer) EndBlit() {
	if cb.in(blkBlit, "EndBlit") {
		cb.block = blkNone
	}
}

// SetPipeline sets the pipeline.
func (cb *CmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*Pipeline)
	switch {
	case cb.state != cbRecording:
		cb.fail("SetPipeline: command buffer is not recording")
	case p.graph && cb.block == blkPass, !p.graph && cb.block == blkWork:
		cb.stats.Binds++
	default:
		cb.fail("SetPipeline: pipeline type does not match command block")
	}
}

// SetViewport sets the bounds of one or more viewports.
func (cb *CmdBuffer) SetViewport(vp []driver.Viewport) { cb.in(blkPass, "SetViewport") }

// SetScissor sets the rectangles of one or more viewport
// scissors.
func (cb *CmdBuffer) SetScissor(sciss []driver.Scissor) { cb.in(blkPass, "SetScissor") }

// SetVertexBuf sets one or more vertex buffers.
func (cb *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	if cb.in(blkPass, "SetVertexBuf") && len(buf) != len(off) {
		cb.fail("SetVertexBuf: len(buf) != len(off)")
	}
}

// SetIndexBuf sets the index buffer.
func (cb *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	if cb.in(blkPass, "SetIndexBuf") && off&3 != 0 {
		cb.fail("SetIndexBuf: misaligned offset")
	}
}

func (cb *CmdBuffer) setDescTable(b cbBlock, cmd string, table driver.DescTable, start int, copies []driver.DescCopy) {
	if !cb.in(b, cmd) {
		return
	}
	t := table.(*DescTable)
	if start < 0 || start+len(copies) > len(t.heaps) {
		cb.fail("%s: heap range out of bounds", cmd)
		return
	}
	for i, c := range copies {
		h := c.Heap.(*DescHeap)
		if !h.compatible(t.heaps[start+i]) {
			cb.fail("%s: incompatible heap at index %d", cmd, start+i)
			return
		}
		if c.Copy < 0 || c.Copy >= len(h.copies) {
			cb.fail("%s: heap copy out of bounds", cmd)
			return
		}
	}
	cb.stats.Binds++
}

// SetDescTableGraph sets a descriptor table range for
// graphics pipelines.
func (cb *CmdBuffer) SetDescTableGraph(table driver.DescTable, start int, copies []driver.DescCopy) {
	cb.setDescTable(blkPass, "SetDescTableGraph", table, start, copies)
}

// SetDescTableComp sets a descriptor table range for
// compute pipelines.
func (cb *CmdBuffer) SetDescTableComp(table driver.DescTable, start int, copies []driver.DescCopy) {
	cb.setDescTable(blkWork, "SetDescTableComp", table, start, copies)
}

// Draw draws primitives.
func (cb *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	if cb.in(blkPass, "Draw") {
		cb.stats.Draws++
	}
}

// DrawIndexed draws indexed primitives.
func (cb *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	if cb.in(blkPass, "DrawIndexed") {
		cb.stats.Draws++
	}
}

// Dispatch dispatches compute thread groups.
func (cb *CmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	if cb.in(blkWork, "Dispatch") {
		cb.stats.Dispatchs++
	}
}

// CopyBuffer copies data between buffers.
func (cb *CmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	if !cb.in(blkBlit, "CopyBuffer") {
		return
	}
	from, to := param.From.(*Buffer), param.To.(*Buffer)
	if param.FromOff < 0 || param.ToOff < 0 || param.Size < 0 ||
		param.FromOff+param.Size > from.Cap() || param.ToOff+param.Size > to.Cap() {
		cb.fail("CopyBuffer: range out of bounds")
		return
	}
	fo, do, n := param.FromOff, param.ToOff, param.Size
	cb.ops = append(cb.ops, func() {
		copy(to.data[do:do+n], from.data[fo:fo+n])
	})
	cb.stats.Copies++
}

// imgCopy validates param and returns the byte offsets
// of each row to copy.
func (cb *CmdBuffer) imgCopy(cmd string, param *driver.BufImgCopy) (buf *Buffer, sub []byte, rows [][2]int64, rowLen int64, ok bool) {
	buf = param.Buf.(*Buffer)
	img := param.Img.(*Image)
	if param.Layer < 0 || param.Layer >= img.layers || param.Level < 0 || param.Level >= img.levels {
		cb.fail("%s: subresource out of bounds", cmd)
		return
	}
	dim := img.levelSize(param.Level)
	off, sz := param.ImgOff, param.Size
	if off.X < 0 || off.Y < 0 || off.Z < 0 || off.X+sz.Width > dim.Width ||
		off.Y+sz.Height > dim.Height || off.Z+max(sz.Depth, 1) > max(dim.Depth, 1) {
		cb.fail("%s: image region out of bounds", cmd)
		return
	}
	if param.Stride[0] < int64(sz.Width) || param.Stride[1] < int64(sz.Height) {
		cb.fail("%s: invalid stride", cmd)
		return
	}
	psz := int64(img.pf.Size())
	rowLen = int64(sz.Width) * psz
	for z := range max(sz.Depth, 1) {
		for y := range sz.Height {
			bo := param.BufOff + (int64(z)*param.Stride[1]+int64(y))*param.Stride[0]*psz
			io := ((int64(off.Z+z)*int64(dim.Height)+int64(off.Y+y))*int64(dim.Width) + int64(off.X)) * psz
			if bo < 0 || bo+rowLen > buf.Cap() {
				cb.fail("%s: buffer range out of bounds", cmd)
				return
			}
			rows = append(rows, [2]int64{bo, io})
		}
	}
	return buf, img.sub(param.Layer, param.Level), rows, rowLen, true
}

// CopyBufToImg copies data from a buffer to an image.
func (cb *CmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	if !cb.in(blkBlit, "CopyBufToImg") {
		return
	}
	buf, sub, rows, n, ok := cb.imgCopy("CopyBufToImg", param)
	if !ok {
		return
	}
	cb.ops = append(cb.ops, func() {
		for _, r := range rows {
			copy(sub[r[1]:r[1]+n], buf.data[r[0]:r[0]+n])
		}
	})
	cb.stats.Copies++
}

// CopyImgToBuf copies data from an image to a buffer.
func (cb *CmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	if !cb.in(blkBlit, "CopyImgToBuf") {
		return
	}
	buf, sub, rows, n, ok := cb.imgCopy("CopyImgToBuf", param)
	if !ok {
		return
	}
	cb.ops = append(cb.ops, func() {
		for _, r := range rows {
			copy(buf.data[r[0]:r[0]+n], sub[r[1]:r[1]+n])
		}
	})
	cb.stats.Copies++
}

// Fill fills a buffer range with copies of a byte value.
func (cb *CmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	if !cb.in(blkBlit, "Fill") {
		return
	}
	b := buf.(*Buffer)
	if off&3 != 0 || size&3 != 0 {
		cb.fail("Fill: misaligned range")
		return
	}
	if off < 0 || size < 0 || off+size > b.Cap() {
		cb.fail("Fill: range out of bounds")
		return
	}
	cb.ops = append(cb.ops, func() {
		s := b.data[off : off+size]
		for i := range s {
			s[i] = value
		}
	})
	cb.stats.Fills++
}

// Barrier inserts a number of global barriers.
func (cb *CmdBuffer) Barrier(b []driver.Barrier) {
	if cb.state != cbRecording {
		cb.fail("Barrier: command buffer is not recording")
		return
	}
	cb.stats.Barriers += len(b)
}

// Transition inserts a number of image layout transitions.
func (cb *CmdBuffer) Transition(t []driver.Transition) {
	if cb.state != cbRecording {
		cb.fail("Transition: command buffer is not recording")
		return
	}
	cb.stats.Barriers += len(t)
}

// End ends command recording.
func (cb *CmdBuffer) End() error {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	if cb.state != cbRecording {
		return errors.New("null: CmdBuffer.End called on command buffer that is not recording")
	}
	if cb.err == nil && cb.block != blkNone {
		cb.fail("End: command block was not ended")
	}
	if cb.err != nil {
		cb.state = cbInitial
		return cb.err
	}
	cb.state = cbExecutable
	return nil
}

// Reset discards all recorded commands.
func (cb *CmdBuffer) Reset() error {
	if !cb.pool.single {
		panic("null: CmdBuffer.Reset called on buffer whose pool cannot reset single command buffers")
	}
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	if cb.state == cbPending {
		return errors.New("null: CmdBuffer.Reset called on pending command buffer")
	}
	cb.clear()
	return nil
}

// ID returns the identifier used for cb in events.
func (cb *CmdBuffer) ID() uint64 { return cb.id }
