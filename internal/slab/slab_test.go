// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package slab

import (
	"slices"
	"testing"
)

type elem struct {
	id   int
	name string
}

func checkCounts[T any](t *testing.T, a *Allocator[T]) {
	t.Helper()
	total := 0
	for i := range a.BlockCount() {
		if n := a.InuseCount(i) + a.UnuseCount(i); n != a.Cap() {
			t.Fatalf("InuseCount + UnuseCount (slab %d):\nhave %d\nwant %d", i, n, a.Cap())
		}
		total += a.InuseCount(i)
	}
	if x := a.Len(); x != total {
		t.Fatalf("Allocator.Len:\nhave %d\nwant %d", x, total)
	}
}

func checkPanic(t *testing.T, call string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: recover()\nhave nil\nwant non-nil", call)
		}
	}()
	f()
}

func TestAllocateFillsSlabs(t *testing.T) {
	a := New[elem](4, nil)
	if x := a.BlockCount(); x != 0 {
		t.Fatalf("Allocator.BlockCount:\nhave %d\nwant 0", x)
	}
	var ps []*elem
	for i := range 5 {
		p, ok := a.Allocate(func(e *elem) { e.id = i })
		if !ok {
			t.Fatalf("Allocator.Allocate (%d):\nhave false\nwant true", i)
		}
		ps = append(ps, p)
		checkCounts(t, a)
	}
	if x := a.BlockCount(); x != 2 {
		t.Fatalf("Allocator.BlockCount:\nhave %d\nwant 2", x)
	}
	if x, y, z := a.InuseCount(0), a.InuseCount(1), a.UnuseCount(1); x != 4 || y != 1 || z != 3 {
		t.Fatalf("InuseCount(0), InuseCount(1), UnuseCount(1):\nhave %d, %d, %d\nwant 4, 1, 3", x, y, z)
	}
	for i, p := range ps {
		if p.id != i {
			t.Fatalf("elem.id:\nhave %d\nwant %d", p.id, i)
		}
	}
}

func TestPointerStability(t *testing.T) {
	a := New[elem](2, nil)
	first, _ := a.Allocate(func(e *elem) { e.name = "first" })
	for range 100 {
		a.Allocate(nil)
	}
	if first.name != "first" {
		t.Fatalf("elem.name:\nhave %q\nwant \"first\"", first.name)
	}
	if !a.Owns(first) {
		t.Fatal("Allocator.Owns:\nhave false\nwant true")
	}
	if x := a.BlockCount(); x != 51 {
		t.Fatalf("Allocator.BlockCount:\nhave %d\nwant 51", x)
	}
}

func TestDeallocate(t *testing.T) {
	var dtors []int
	a := New[elem](4, func(e *elem) { dtors = append(dtors, e.id) })
	ps := make([]*elem, 6)
	for i := range ps {
		ps[i], _ = a.Allocate(func(e *elem) { e.id = i + 1 })
	}
	in0, un0 := a.InuseCount(0), a.UnuseCount(0)
	a.Deallocate(ps[2])
	if want := []int{3}; !slices.Equal(dtors, want) {
		t.Fatalf("destructor calls:\nhave %v\nwant %v", dtors, want)
	}
	if x, y := a.InuseCount(0), a.UnuseCount(0); x != in0-1 || y != un0+1 {
		t.Fatalf("InuseCount(0), UnuseCount(0):\nhave %d, %d\nwant %d, %d", x, y, in0-1, un0+1)
	}
	if a.Owns(ps[2]) {
		t.Fatal("Allocator.Owns:\nhave true\nwant false")
	}
	checkCounts(t, a)

	// The freed slot is reused before slab 1.
	p, ok := a.Allocate(nil)
	if !ok {
		t.Fatal("Allocator.Allocate:\nhave false\nwant true")
	}
	if p != ps[2] {
		t.Fatalf("Allocator.Allocate:\nhave %p\nwant %p", p, ps[2])
	}
	if x, y := a.InuseCount(0), a.BlockCount(); x != 4 || y != 2 {
		t.Fatalf("InuseCount(0), BlockCount:\nhave %d, %d\nwant 4, 2", x, y)
	}
}

func TestDeallocatePanics(t *testing.T) {
	a := New[elem](4, nil)
	p, _ := a.Allocate(nil)
	a.Deallocate(p)
	checkPanic(t, "Allocator.Deallocate (twice)", func() { a.Deallocate(p) })
	checkPanic(t, "Allocator.Deallocate (foreign)", func() { a.Deallocate(&elem{}) })
}

func TestConstructorPanic(t *testing.T) {
	a := New[elem](4, nil)
	for range 3 {
		a.Allocate(nil)
	}
	in, un := a.InuseCount(0), a.UnuseCount(0)
	p, ok := a.Allocate(func(e *elem) {
		e.id = 42
		panic("bad element")
	})
	if p != nil || ok {
		t.Fatalf("Allocator.Allocate:\nhave %p, %t\nwant nil, false", p, ok)
	}
	if x, y := a.InuseCount(0), a.UnuseCount(0); x != in || y != un {
		t.Fatalf("InuseCount(0), UnuseCount(0):\nhave %d, %d\nwant %d, %d", x, y, in, un)
	}
	if x := a.Len(); x != 3 {
		t.Fatalf("Allocator.Len:\nhave %d\nwant 3", x)
	}

	// The slot was not leaked.
	p, ok = a.Allocate(nil)
	if !ok {
		t.Fatal("Allocator.Allocate:\nhave false\nwant true")
	}
	if p.id != 0 {
		t.Fatalf("elem.id:\nhave %d\nwant 0", p.id)
	}
	if x := a.BlockCount(); x != 1 {
		t.Fatalf("Allocator.BlockCount:\nhave %d\nwant 1", x)
	}

	// A slab appended for a failed call is dropped.
	if _, ok = a.Allocate(func(*elem) { panic("bad element") }); ok {
		t.Fatal("Allocator.Allocate:\nhave true\nwant false")
	}
	if x := a.BlockCount(); x != 1 {
		t.Fatalf("Allocator.BlockCount:\nhave %d\nwant 1", x)
	}
	checkCounts(t, a)
}

func TestEachAndFreeAll(t *testing.T) {
	n := 0
	a := New[elem](3, func(*elem) { n++ })
	for i := range 7 {
		a.Allocate(func(e *elem) { e.id = i })
	}
	var ids []int
	a.Each(func(e *elem) bool {
		ids = append(ids, e.id)
		return len(ids) < 5
	})
	if want := []int{0, 1, 2, 3, 4}; !slices.Equal(ids, want) {
		t.Fatalf("Allocator.Each:\nhave %v\nwant %v", ids, want)
	}
	a.FreeAll()
	if n != 7 {
		t.Fatalf("destructor calls:\nhave %d\nwant 7", n)
	}
	if x, y := a.Len(), a.BlockCount(); x != 0 || y != 3 {
		t.Fatalf("Allocator.Len, BlockCount:\nhave %d, %d\nwant 0, 3", x, y)
	}
	checkCounts(t, a)
}

func TestNewPanics(t *testing.T) {
	checkPanic(t, "New (zero capacity)", func() { New[elem](0, nil) })
	checkPanic(t, "New (zero-size type)", func() { New[struct{}](4, nil) })
}
