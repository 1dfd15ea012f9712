// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"errors"
	"slices"

	"github.com/gviegas/rhi/driver"
)

// DescHeap implements driver.DescHeap.
type DescHeap struct {
	g  *GPU
	id uint64
	ds []driver.Descriptor
	// copies[cpy][i][j] is the resource written to element
	// j of descriptor ds[i] in copy cpy.
	copies [][][]any
}

// NewDescHeap creates a new descriptor heap.
func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	for i, d := range ds {
		if d.Len <= 0 {
			return nil, errors.New("null: invalid descriptor length")
		}
		for _, x := range ds[:i] {
			if x.Nr == d.Nr {
				return nil, errors.New("null: duplicate descriptor number")
			}
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &DescHeap{g: g, id: g.newID(KHeap), ds: slices.Clone(ds)}, nil
}

// compatible reports whether h and other were created
// from the same descriptors.
func (h *DescHeap) compatible(other *DescHeap) bool {
	return h == other || slices.Equal(h.ds, other.ds)
}

// New creates storage for n copies of each descriptor.
func (h *DescHeap) New(n int) error {
	if n < 0 {
		return errors.New("null: invalid heap copy count")
	}
	if n == len(h.copies) {
		return nil
	}
	g := h.g
	g.mu.Lock()
	defer g.mu.Unlock()
	used := g.descUsed - len(h.copies) + n
	if g.descLimit > 0 && used > g.descLimit {
		return driver.ErrNoDeviceMemory
	}
	g.descUsed = used
	h.copies = make([][][]any, n)
	for i := range h.copies {
		h.copies[i] = make([][]any, len(h.ds))
		for j := range h.ds {
			h.copies[i][j] = make([]any, h.ds[j].Len)
		}
	}
	return nil
}

// slot returns the elements of descriptor nr in copy cpy,
// provided that its type is one of typs.
func (h *DescHeap) slot(cpy, nr int, typs ...driver.DescType) []any {
	for i, d := range h.ds {
		if d.Nr == nr {
			if !slices.Contains(typs, d.Type) {
				panic("null: descriptor type mismatch")
			}
			return h.copies[cpy][i]
		}
	}
	panic("null: no such descriptor")
}

// SetBuffer updates buffer ranges.
func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	if len(buf) != len(off) || len(buf) != len(size) {
		panic("null: DescHeap.SetBuffer: length mismatch")
	}
	s := h.slot(cpy, nr, driver.DBuffer, driver.DConstant)
	for i := range buf {
		s[start+i] = buf[i]
	}
}

// SetImage updates image views.
func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	s := h.slot(cpy, nr, driver.DImage, driver.DTexture)
	for i := range iv {
		s[start+i] = iv[i]
	}
}

// SetSampler updates samplers.
func (h *DescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	s := h.slot(cpy, nr, driver.DSampler)
	for i := range splr {
		s[start+i] = splr[i]
	}
}

// Get returns the resource written to element idx of
// descriptor nr in copy cpy, or nil if none was written.
func (h *DescHeap) Get(cpy, nr, idx int) any {
	for i, d := range h.ds {
		if d.Nr == nr {
			return h.copies[cpy][i][idx]
		}
	}
	return nil
}

// Count returns the number of heap copies.
func (h *DescHeap) Count() int { return len(h.copies) }

// Destroy destroys the descriptor heap.
func (h *DescHeap) Destroy() {
	if h == nil || h.g == nil {
		return
	}
	h.g.mu.Lock()
	h.g.descUsed -= len(h.copies)
	h.g.mu.Unlock()
	h.g.destroy(KHeap, h.id)
	*h = DescHeap{}
}

// DescTable implements driver.DescTable.
type DescTable struct {
	g     *GPU
	id    uint64
	heaps []*DescHeap
}

// NewDescTable creates a new descriptor table.
func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	if len(dh) > g.lim.MaxDescHeaps {
		return nil, errors.New("null: too many descriptor heaps")
	}
	t := &DescTable{g: g, heaps: make([]*DescHeap, len(dh))}
	for i := range dh {
		t.heaps[i] = dh[i].(*DescHeap)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t.id = g.newID(KTable)
	return t, nil
}

// Destroy destroys the descriptor table.
func (t *DescTable) Destroy() {
	if t == nil || t.g == nil {
		return
	}
	t.g.destroy(KTable, t.id)
	*t = DescTable{}
}

// Pipeline implements driver.Pipeline.
type Pipeline struct {
	g     *GPU
	id    uint64
	graph bool
}

// NewPipeline creates a new pipeline.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	var graph bool
	switch s := state.(type) {
	case *driver.GraphState:
		if s.VertFunc.Code == nil || s.Pass == nil {
			return nil, errors.New("null: incomplete graphics state")
		}
		if len(s.Input) > g.lim.MaxVertexIn {
			return nil, errors.New("null: too many vertex inputs")
		}
		graph = true
	case *driver.CompState:
		if s.Func.Code == nil {
			return nil, errors.New("null: incomplete compute state")
		}
	default:
		return nil, errors.New("null: invalid pipeline state")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Pipeline{g: g, id: g.newID(KPipeline), graph: graph}, nil
}

// Destroy destroys the pipeline.
func (p *Pipeline) Destroy() {
	if p == nil || p.g == nil {
		return
	}
	p.g.destroy(KPipeline, p.id)
	*p = Pipeline{}
}
