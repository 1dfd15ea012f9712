// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/internal/slab"
)

// BindGroupLayoutDesc describes a BindGroupLayout.
type BindGroupLayoutDesc struct {
	Entries []driver.Descriptor
	Label   string
}

// BindGroupEntry describes a single resource written to
// a bind group.
// Exactly one of Buffer, View and Sampler must be valid,
// matching the type of the descriptor identified by
// Binding.
type BindGroupEntry struct {
	Binding int
	// Array element.
	Index   int
	Buffer  Buffer
	Offset  int64
	Size    int64
	View    ImageView
	Sampler Sampler
}

// BindGroupDesc describes the contents of a BindGroup.
// It must write every array element of every binding in
// the layout, since sets are reused without clearing.
type BindGroupDesc struct {
	Entries []BindGroupEntry
}

// bindGroupLayoutImpl owns the descriptor set pool of a
// layout.
// Sets are stored in batches: batch i is a driver heap
// holding DescBatch copies, and set index n lives in copy
// n%DescBatch of batch n/DescBatch.
type bindGroupLayoutImpl struct {
	object
	entries []driver.Descriptor
	label   string
	// Zero-copy heap used to create descriptor tables.
	proto   driver.DescHeap
	batches []driver.DescHeap
	batch   int
	free    []int
	groups  *slab.Allocator[bindGroupImpl]
	// Released bind groups waiting for their frame to
	// complete.
	pending []retiree
}

func (l *bindGroupLayoutImpl) released() { l.dev.retire(l) }

func (l *bindGroupLayoutImpl) destroy() {
	l.groups.FreeAll()
	l.pending = nil
	for _, h := range l.batches {
		h.Destroy()
	}
	l.batches = nil
	l.free = nil
	l.proto.Destroy()
	l.proto = nil
	delete(l.dev.layouts, l)
}

// grow appends a new batch of sets.
func (l *bindGroupLayoutImpl) grow() error {
	h, err := l.dev.gpu.NewDescHeap(l.entries)
	if err != nil {
		return err
	}
	if err := h.New(l.batch); err != nil {
		h.Destroy()
		return err
	}
	base := len(l.batches) * l.batch
	l.batches = append(l.batches, h)
	// Push in reverse so that pops hand out ascending
	// indices.
	for i := l.batch - 1; i >= 0; i-- {
		l.free = append(l.free, base+i)
	}
	l.dev.log.Debug("bind group pool grown", "layout", l.label, "size", len(l.batches)*l.batch)
	return nil
}

// pop removes the most recently freed set index.
func (l *bindGroupLayoutImpl) pop() int {
	n := len(l.free) - 1
	i := l.free[n]
	l.free = l.free[:n]
	return i
}

// recycle returns the set of g to the free list.
// The set is not destroyed: its contents are overwritten
// when it is handed out again.
func (l *bindGroupLayoutImpl) recycle(g *bindGroupImpl) {
	l.free = append(l.free, g.index)
}

// gc finalizes released bind groups whose frame has
// completed and recycles their sets.
func (l *bindGroupLayoutImpl) gc(completed uint64) (n int) {
	keep := l.pending[:0]
	for _, x := range l.pending {
		if x.serial > completed {
			keep = append(keep, x)
			continue
		}
		g := x.r.(*bindGroupImpl)
		l.recycle(g)
		l.groups.Deallocate(g)
		n++
	}
	clear(l.pending[len(keep):])
	l.pending = keep
	if n > 0 {
		l.dev.log.Debug("bind groups recycled", "layout", l.label, "count", n)
	}
	return
}

func (l *bindGroupLayoutImpl) descriptor(nr int) (driver.Descriptor, bool) {
	for _, e := range l.entries {
		if e.Nr == nr {
			return e, true
		}
	}
	return driver.Descriptor{}, false
}

// BindGroupLayout is a reference-counted handle to a bind
// group layout and its pool of bind groups.
type BindGroupLayout struct {
	p  *bindGroupLayoutImpl
	id uint64
}

// CreateBindGroupLayout creates a new bind group layout.
// Its pool is empty until the first RequireBindGroup.
func (d *Device) CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayout, error) {
	if len(desc.Entries) == 0 {
		return BindGroupLayout{}, d.createFailed("bind group layout", errors.New("no entries"))
	}
	proto, err := d.gpu.NewDescHeap(desc.Entries)
	if err != nil {
		return BindGroupLayout{}, d.createFailed("bind group layout", err)
	}
	p := &bindGroupLayoutImpl{
		entries: append([]driver.Descriptor(nil), desc.Entries...),
		label:   desc.Label,
		proto:   proto,
		batch:   d.cfg.DescBatch,
		groups:  slab.New(d.cfg.SlabCap, (*bindGroupImpl).drop),
	}
	p.init(d)
	d.track(p)
	d.layouts[p] = struct{}{}
	return BindGroupLayout{p, p.id}, nil
}

// Valid reports whether l refers to a live layout.
func (l BindGroupLayout) Valid() bool { return live(l.p, l.id) }

// Clone adds a reference.
func (l BindGroupLayout) Clone() BindGroupLayout {
	clone(l.p, l.id, "BindGroupLayout")
	return l
}

// Release removes the reference held by l.
// Bind groups required from the layout become invalid
// once the layout is destroyed, so they must be released
// first. Commands that use a bind group keep its layout
// alive.
func (l *BindGroupLayout) Release() {
	release(l.p, l.id, "BindGroupLayout")
	*l = BindGroupLayout{}
}

// ID returns the layout's identifier.
func (l BindGroupLayout) ID() uint64 { return mustLive(l.p, l.id, "BindGroupLayout").id }

// Refcount returns the number of references.
func (l BindGroupLayout) Refcount() uint32 { return refs(l.p, l.id) }

// RequireBindGroup hands out a bind group whose contents
// are described by desc.
// The most recently recycled set is reused first. When
// none is free, the pool grows by one batch.
// If the pool cannot grow, it returns an invalid
// BindGroup and an error wrapping ErrExhausted.
// The bind group holds references to every resource
// in desc.
// It panics if desc leaves any element of the layout
// unwritten.
func (l BindGroupLayout) RequireBindGroup(desc *BindGroupDesc) (BindGroup, error) {
	p := mustLive(l.p, l.id, "BindGroupLayout")
	d := p.dev
	for i := range desc.Entries {
		if err := p.check(&desc.Entries[i]); err != nil {
			panic(err.Error())
		}
	}
	if err := p.cover(desc); err != nil {
		panic(err.Error())
	}
	if len(p.free) == 0 {
		if err := p.grow(); err != nil {
			err = d.classify("require bind group", err)
			if !errors.Is(err, ErrExhausted) {
				err = fmt.Errorf("%w: %w", ErrExhausted, err)
			}
			d.log.Warn("bind group pool exhausted", "layout", p.label, "err", err)
			return BindGroup{}, err
		}
	}
	index := p.pop()
	g, ok := p.groups.Allocate(func(g *bindGroupImpl) {
		g.init(d)
		g.layout = p
		g.index = index
		g.heap = p.batches[index/p.batch]
		g.copy = index % p.batch
	})
	if !ok {
		p.free = append(p.free, index)
		return BindGroup{}, fmt.Errorf("%w: bind group allocation failed", ErrExhausted)
	}
	g.write(desc)
	return BindGroup{g, g.id}, nil
}

// check validates an entry against the layout.
func (l *bindGroupLayoutImpl) check(e *BindGroupEntry) error {
	ds, ok := l.descriptor(e.Binding)
	if !ok {
		return fmt.Errorf("rhi: no binding %d in layout", e.Binding)
	}
	if e.Index < 0 || e.Index >= ds.Len {
		return fmt.Errorf("rhi: binding %d: index %d out of range", e.Binding, e.Index)
	}
	var valid bool
	switch ds.Type {
	case driver.DBuffer, driver.DConstant:
		valid = e.Buffer.Valid()
	case driver.DImage, driver.DTexture:
		valid = e.View.Valid()
	case driver.DSampler:
		valid = e.Sampler.Valid()
	}
	if !valid {
		return fmt.Errorf("rhi: binding %d: missing or invalid resource", e.Binding)
	}
	return nil
}

// cover checks that desc writes every element of the
// layout. A recycled set still holds the previous
// group's descriptors, whose resources may be gone.
func (l *bindGroupLayoutImpl) cover(desc *BindGroupDesc) error {
	for _, ds := range l.entries {
		for idx := range ds.Len {
			if !slices.ContainsFunc(desc.Entries, func(e BindGroupEntry) bool {
				return e.Binding == ds.Nr && e.Index == idx
			}) {
				return fmt.Errorf("rhi: binding %d: element %d not written", ds.Nr, idx)
			}
		}
	}
	return nil
}

// GC finalizes bind groups released at or before the
// completed frame serial and recycles their sets.
// Devices call it once per frame.
func (l BindGroupLayout) GC(completed uint64) int {
	return mustLive(l.p, l.id, "BindGroupLayout").gc(completed)
}

// PoolSize returns the number of sets in the pool.
func (l BindGroupLayout) PoolSize() int {
	p := mustLive(l.p, l.id, "BindGroupLayout")
	return len(p.batches) * p.batch
}

// FreeCount returns the number of sets in the free list.
func (l BindGroupLayout) FreeCount() int { return len(mustLive(l.p, l.id, "BindGroupLayout").free) }

// Batches returns the number of times the pool grew.
func (l BindGroupLayout) Batches() int { return len(mustLive(l.p, l.id, "BindGroupLayout").batches) }

// PendingCount returns the number of released bind groups
// that were not recycled yet.
func (l BindGroupLayout) PendingCount() int {
	return len(mustLive(l.p, l.id, "BindGroupLayout").pending)
}

type bindGroupImpl struct {
	object
	layout *bindGroupLayoutImpl
	heap   driver.DescHeap
	copy   int
	index  int
	// Resources written to the set.
	bufs  []Buffer
	views []ImageView
	splrs []Sampler
}

// write writes every entry of desc to the set, taking
// references to the resources.
func (g *bindGroupImpl) write(desc *BindGroupDesc) {
	for i := range desc.Entries {
		e := &desc.Entries[i]
		ds, _ := g.layout.descriptor(e.Binding)
		switch ds.Type {
		case driver.DBuffer, driver.DConstant:
			b := e.Buffer.Clone()
			size := e.Size
			if size == 0 {
				size = b.p.size - e.Offset
			}
			g.heap.SetBuffer(g.copy, e.Binding, e.Index, []driver.Buffer{b.p.drv}, []int64{e.Offset}, []int64{size})
			g.bufs = append(g.bufs, b)
		case driver.DImage, driver.DTexture:
			v := e.View.Clone()
			g.heap.SetImage(g.copy, e.Binding, e.Index, []driver.ImageView{v.p.drv})
			g.views = append(g.views, v)
		case driver.DSampler:
			s := e.Sampler.Clone()
			g.heap.SetSampler(g.copy, e.Binding, e.Index, []driver.Sampler{s.p.drv})
			g.splrs = append(g.splrs, s)
		}
	}
}

// released defers the bind group to its layout's GC.
func (g *bindGroupImpl) released() {
	g.layout.pending = append(g.layout.pending, retiree{g, g.dev.serial})
}

func (g *bindGroupImpl) destroy() {}

// drop releases the resources written to the set.
// It is the slab destructor.
func (g *bindGroupImpl) drop() {
	for i := range g.bufs {
		g.bufs[i].Release()
	}
	for i := range g.views {
		g.views[i].Release()
	}
	for i := range g.splrs {
		g.splrs[i].Release()
	}
}

// BindGroup is a reference-counted handle to a set of
// resource bindings allocated from a BindGroupLayout's
// pool.
type BindGroup struct {
	p  *bindGroupImpl
	id uint64
}

// Valid reports whether g refers to a live bind group.
func (g BindGroup) Valid() bool { return live(g.p, g.id) }

// Clone adds a reference.
func (g BindGroup) Clone() BindGroup {
	clone(g.p, g.id, "BindGroup")
	return g
}

// Release removes the reference held by g.
// The set is recycled once the frame in which it was
// released completes.
func (g *BindGroup) Release() {
	release(g.p, g.id, "BindGroup")
	*g = BindGroup{}
}

// ID returns the bind group's identifier.
func (g BindGroup) ID() uint64 { return mustLive(g.p, g.id, "BindGroup").id }

// Refcount returns the number of references.
func (g BindGroup) Refcount() uint32 { return refs(g.p, g.id) }

// Index returns the index of the bind group's set in its
// layout's pool.
func (g BindGroup) Index() int { return mustLive(g.p, g.id, "BindGroup").index }
