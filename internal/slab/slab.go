// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package slab implements a pointer-stable block allocator
// for objects of a single type.
package slab

import (
	"fmt"
	"unsafe"

	"github.com/gviegas/rhi/internal/bitvec"
	"github.com/gviegas/rhi/internal/logger"
)

// block is a fixed-capacity slab.
// Its items slice is never resized, so the address of an
// element never changes.
type block[T any] struct {
	items []T
	used  *bitvec.V[uint64]
}

// Allocator hands out pointers to elements of type T that
// are stored in slabs of fixed capacity.
// A pointer returned by Allocate remains valid until it is
// passed to Deallocate or FreeAll is called. Slabs are
// appended when every existing one is full, and are never
// moved or compacted.
// Allocator is not safe for concurrent use.
type Allocator[T any] struct {
	cap    int
	dtor   func(*T)
	blocks []block[T]
	n      int
}

// New creates an allocator whose slabs hold capacity
// elements each.
// dtor, if not nil, is called exactly once on every
// element that is deallocated.
func New[T any](capacity int, dtor func(*T)) *Allocator[T] {
	if capacity <= 0 {
		panic("slab: capacity must be greater than zero")
	}
	var x T
	if unsafe.Sizeof(x) == 0 {
		panic("slab: zero-sized element type")
	}
	return &Allocator[T]{cap: capacity, dtor: dtor}
}

// Cap returns the capacity of a single slab.
func (a *Allocator[T]) Cap() int { return a.cap }

// Allocate reserves a slot in the first slab that has one
// available, appending a new slab if none does, and calls
// ctor on the zeroed element (ctor may be nil).
// If ctor panics, the reservation is undone and Allocate
// returns nil and false; the slab counts are left as they
// were before the call.
func (a *Allocator[T]) Allocate(ctor func(*T)) (p *T, ok bool) {
	bi := -1
	for i := range a.blocks {
		if a.blocks[i].used.Rem() > 0 {
			bi = i
			break
		}
	}
	grown := false
	if bi < 0 {
		a.blocks = append(a.blocks, block[T]{
			items: make([]T, a.cap),
			used:  bitvec.New[uint64](a.cap),
		})
		bi = len(a.blocks) - 1
		grown = true
		logger.Get().Debug("slab grown", "blocks", len(a.blocks), "cap", a.cap)
	}
	b := &a.blocks[bi]
	si, _ := b.used.Search()
	b.used.Set(si)
	a.n++
	p = &b.items[si]
	if ctor == nil {
		return p, true
	}
	defer func() {
		if x := recover(); x != nil {
			var zero T
			*p = zero
			b.used.Unset(si)
			a.n--
			if grown {
				// Drop the slab that was appended for
				// this call alone.
				a.blocks[bi] = block[T]{}
				a.blocks = a.blocks[:bi]
			}
			logger.Get().Warn("slab: constructor panicked", "panic", fmt.Sprint(x))
			p, ok = nil, false
		}
	}()
	ctor(p)
	return p, true
}

// locate returns the slab and slot indices of p.
// It returns -1 and -1 if p does not point into any slab.
func (a *Allocator[T]) locate(p *T) (bi, si int) {
	sz := unsafe.Sizeof(*p)
	addr := uintptr(unsafe.Pointer(p))
	for i := range a.blocks {
		base := uintptr(unsafe.Pointer(unsafe.SliceData(a.blocks[i].items)))
		if addr < base || addr >= base+sz*uintptr(a.cap) {
			continue
		}
		off := addr - base
		if off%sz != 0 {
			break
		}
		return i, int(off / sz)
	}
	return -1, -1
}

// Deallocate calls the destructor on the element p points
// to, zeroes it and marks its slot free for reuse.
// Slabs are not released.
// It panics if p was not allocated by a or was already
// deallocated.
func (a *Allocator[T]) Deallocate(p *T) {
	bi, si := a.locate(p)
	if bi < 0 {
		panic("slab: pointer not owned by allocator")
	}
	b := &a.blocks[bi]
	if !b.used.IsSet(si) {
		panic("slab: double deallocation")
	}
	if a.dtor != nil {
		a.dtor(p)
	}
	var zero T
	*p = zero
	b.used.Unset(si)
	a.n--
}

// Owns reports whether p refers to a live element of a.
func (a *Allocator[T]) Owns(p *T) bool {
	bi, si := a.locate(p)
	return bi >= 0 && a.blocks[bi].used.IsSet(si)
}

// InuseCount returns the number of live elements in slab i.
func (a *Allocator[T]) InuseCount(i int) int { return a.blocks[i].used.Count() }

// UnuseCount returns the number of free slots in slab i.
func (a *Allocator[T]) UnuseCount(i int) int { return a.blocks[i].used.Rem() }

// BlockCount returns the number of slabs.
func (a *Allocator[T]) BlockCount() int { return len(a.blocks) }

// Len returns the number of live elements.
func (a *Allocator[T]) Len() int { return a.n }

// Each calls f on every live element, in slab order,
// until f returns false.
// f must not allocate nor deallocate.
func (a *Allocator[T]) Each(f func(*T) bool) {
	for i := range a.blocks {
		b := &a.blocks[i]
		for si := range b.used.Ones() {
			if !f(&b.items[si]) {
				return
			}
		}
	}
}

// FreeAll deallocates every live element.
// Slabs are kept for reuse.
func (a *Allocator[T]) FreeAll() {
	for i := range a.blocks {
		b := &a.blocks[i]
		for si := range b.used.Ones() {
			if a.dtor != nil {
				a.dtor(&b.items[si])
			}
		}
		clear(b.items)
		b.used.Clear()
	}
	a.n = 0
}
