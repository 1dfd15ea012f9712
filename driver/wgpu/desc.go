// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

var errDescArray = errors.New("wgpu: descriptor arrays are not supported")

// descHeap implements driver.DescHeap.
// Each heap copy is backed by a HAL bind group that is
// created when the copy is first bound after an update.
type descHeap struct {
	g      *GPU
	ds     []driver.Descriptor
	layout hal.BindGroupLayout
	copies []descCopy
}

// descCopy holds the resources written to a heap copy.
type descCopy struct {
	entries []gputypes.BindGroupEntry
	set     []bool
	group   hal.BindGroup
	// Host-visible buffers referenced by the copy and
	// whether they are writable from shaders.
	bufs map[*buffer]bool
}

// NewDescHeap creates a new descriptor heap.
func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(ds))
	for i, d := range ds {
		if d.Len != 1 {
			return nil, errDescArray
		}
		entries[i] = convDescriptor(d)
	}
	layout, err := g.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoHostMemory, err)
	}
	return &descHeap{
		g:      g,
		ds:     append([]driver.Descriptor(nil), ds...),
		layout: layout,
	}, nil
}

// New creates storage for n copies.
func (h *descHeap) New(n int) error {
	if n == len(h.copies) {
		return nil
	}
	h.free()
	if n == 0 {
		return nil
	}
	h.copies = make([]descCopy, n)
	for i := range h.copies {
		h.copies[i] = descCopy{
			entries: make([]gputypes.BindGroupEntry, len(h.ds)),
			set:     make([]bool, len(h.ds)),
			bufs:    make(map[*buffer]bool),
		}
		for j, d := range h.ds {
			h.copies[i].entries[j].Binding = uint32(d.Nr)
		}
	}
	return nil
}

// index returns the position of descriptor nr in h.ds.
func (h *descHeap) index(nr int) int {
	for i := range h.ds {
		if h.ds[i].Nr == nr {
			return i
		}
	}
	panic("wgpu: no such descriptor")
}

// invalidate destroys the bind group of copy cpy so it
// is recreated on next use.
// The copy must not be in use by pending commands.
func (h *descHeap) invalidate(cpy int) {
	c := &h.copies[cpy]
	if c.group != nil {
		h.g.dev.DestroyBindGroup(c.group)
		c.group = nil
	}
}

// SetBuffer updates buffer ranges.
func (h *descHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	i := h.index(nr)
	if start != 0 || len(buf) != 1 {
		panic(errDescArray)
	}
	h.invalidate(cpy)
	b := buf[0].(*buffer)
	c := &h.copies[cpy]
	c.entries[i].Resource = gputypes.BufferBinding{
		Buffer: b.buf.NativeHandle(),
		Offset: uint64(off[0]),
		Size:   uint64(size[0]),
	}
	c.set[i] = true
	if b.data != nil {
		c.bufs[b] = c.bufs[b] || h.ds[i].Type == driver.DBuffer
	}
}

// SetImage updates image views.
func (h *descHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	i := h.index(nr)
	if start != 0 || len(iv) != 1 {
		panic(errDescArray)
	}
	h.invalidate(cpy)
	c := &h.copies[cpy]
	c.entries[i].Resource = gputypes.TextureViewBinding{
		TextureView: iv[0].(*imageView).view.NativeHandle(),
	}
	c.set[i] = true
}

// SetSampler updates samplers.
func (h *descHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	i := h.index(nr)
	if start != 0 || len(splr) != 1 {
		panic(errDescArray)
	}
	h.invalidate(cpy)
	c := &h.copies[cpy]
	c.entries[i].Resource = gputypes.SamplerBinding{
		Sampler: splr[0].(*sampler).splr.NativeHandle(),
	}
	c.set[i] = true
}

// Count returns the number of heap copies.
func (h *descHeap) Count() int { return len(h.copies) }

// bindGroup returns the bind group of copy cpy,
// creating it if needed.
func (h *descHeap) bindGroup(cpy int) (hal.BindGroup, error) {
	c := &h.copies[cpy]
	if c.group != nil {
		return c.group, nil
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(c.entries))
	for i := range c.entries {
		if c.set[i] {
			entries = append(entries, c.entries[i])
		}
	}
	bg, err := h.g.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  h.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	c.group = bg
	return bg, nil
}

func (h *descHeap) free() {
	for i := range h.copies {
		h.invalidate(i)
	}
	h.copies = nil
}

// Destroy destroys h.
func (h *descHeap) Destroy() {
	if h == nil || h.layout == nil {
		return
	}
	h.free()
	h.g.dev.DestroyBindGroupLayout(h.layout)
	*h = descHeap{}
}

// descTable implements driver.DescTable.
type descTable struct {
	g      *GPU
	layout hal.PipelineLayout
}

// NewDescTable creates a new descriptor table.
func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	bgls := make([]hal.BindGroupLayout, len(dh))
	for i, h := range dh {
		bgls[i] = h.(*descHeap).layout
	}
	layout, err := g.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{BindGroupLayouts: bgls})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoHostMemory, err)
	}
	return &descTable{g: g, layout: layout}, nil
}

// Destroy destroys t.
func (t *descTable) Destroy() {
	if t == nil || t.layout == nil {
		return
	}
	t.g.dev.DestroyPipelineLayout(t.layout)
	*t = descTable{}
}
