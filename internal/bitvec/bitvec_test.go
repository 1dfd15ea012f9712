// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package bitvec

import (
	"slices"
	"testing"
	"unsafe"
)

func TestNbit(t *testing.T) {
	for _, x := range [...][2]int{
		{int(unsafe.Sizeof(uint(0))) * 8, (&V[uint]{}).nbit()},
		{int(unsafe.Sizeof(uint8(0))) * 8, (&V[uint8]{}).nbit()},
		{int(unsafe.Sizeof(uint16(0))) * 8, (&V[uint16]{}).nbit()},
		{int(unsafe.Sizeof(uint32(0))) * 8, (&V[uint32]{}).nbit()},
		{int(unsafe.Sizeof(uint64(0))) * 8, (&V[uint64]{}).nbit()},
		{int(unsafe.Sizeof(uintptr(0))) * 8, (&V[uintptr]{}).nbit()},
	} {
		if x[0] != x[1] {
			t.Fatalf("V[T].nbit:\nhave %d\nwant %d", x[0], x[1])
		}
	}
}

func TestNew(t *testing.T) {
	for _, x := range [...]struct {
		n, wantLen, wantS int
	}{
		{0, 0, 0},
		{-3, 0, 0},
		{1, 1, 1},
		{8, 8, 1},
		{9, 9, 2},
		{64, 64, 8},
		{100, 100, 13},
	} {
		v := New[uint8](x.n)
		if n := v.Len(); n != x.wantLen {
			t.Fatalf("New(%d).Len:\nhave %d\nwant %d", x.n, n, x.wantLen)
		}
		if n := v.Rem(); n != x.wantLen {
			t.Fatalf("New(%d).Rem:\nhave %d\nwant %d", x.n, n, x.wantLen)
		}
		if n := len(v.s); n != x.wantS {
			t.Fatalf("New(%d): len(v.s)\nhave %d\nwant %d", x.n, n, x.wantS)
		}
	}
}

// checkRem checks that v.Rem() matches the state of v.s.
func (v *V[T]) checkRem(t *testing.T) {
	want := v.Len()
	for i := range v.Len() {
		if v.IsSet(i) {
			want--
		}
	}
	if r := v.Rem(); r != want {
		t.Fatalf("v.Rem:\nhave %d\nwant %d", r, want)
	}
	if c := v.Count(); c != v.Len()-want {
		t.Fatalf("v.Count:\nhave %d\nwant %d", c, v.Len()-want)
	}
}

func TestSetUnset(t *testing.T) {
	v8 := New[uint8](20)
	if !v8.Set(6) {
		t.Fatal("v8.Set(6): have false, want true")
	}
	if v8.s[0] != 0x40 {
		t.Fatalf("v8.s[0]:\nhave 0x%x\nwant 0x40", v8.s[0])
	}
	if v8.Set(6) {
		t.Fatal("v8.Set(6): have true, want false")
	}
	v8.Set(1)
	v8.Set(10)
	v8.Set(19)
	v8.checkRem(t)
	if !v8.Unset(6) || v8.Unset(6) {
		t.Fatal("v8.Unset(6): unexpected result")
	}
	v8.checkRem(t)
	// Padding bits must not be visible.
	if v8.s[2] != 0xf8 {
		t.Fatalf("v8.s[2]:\nhave 0x%x\nwant 0xf8", v8.s[2])
	}
	for i := range v8.Len() {
		if i&3 == 0 {
			v8.Set(i)
		} else {
			v8.Unset(i)
		}
	}
	v8.checkRem(t)
	if n := v8.Count(); n != 5 {
		t.Fatalf("v8.Count:\nhave %d\nwant 5", n)
	}
}

func TestOutOfRange(t *testing.T) {
	v := New[uint32](40)
	for _, i := range [...]int{-1, 40, 63, 1000} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("v.IsSet(%d): expected panic", i)
				}
			}()
			v.IsSet(i)
		}()
	}
}

// checkSearch calls v.Search and checks the expected result.
// If want < 0, then Search must fail.
func (v *V[_]) checkSearch(want int, t *testing.T) {
	index, ok := v.Search()
	if want < 0 {
		if ok {
			t.Fatalf("v.Search: \nhave %d, true\nwant _, false", index)
		}
	} else {
		if !ok {
			t.Fatalf("v.Search: \nhave _, false\nwant %d, true", want)
		}
		if index != want {
			t.Fatalf("v.Search: index:\nhave %d\nwant %d", index, want)
		}
	}
}

func TestSearch(t *testing.T) {
	New[uint32](0).checkSearch(-1, t)
	v32 := New[uint32](100)
	v32.checkSearch(0, t)
	v32.Set(0)
	v32.checkSearch(1, t)
	v32.Set(1)
	v32.checkSearch(2, t)
	v32.Set(3)
	v32.checkSearch(2, t)
	v32.Unset(1)
	v32.checkSearch(1, t)
	v32.Unset(0)
	v32.checkSearch(0, t)
	for i := range 64 {
		v32.Set(i)
	}
	v32.checkSearch(64, t)
	for i := 64; i < v32.Len(); i++ {
		v32.Set(i)
	}
	// Padding bits 100:128 must never be found.
	v32.checkSearch(-1, t)
	v32.Unset(99)
	v32.checkSearch(99, t)
}

func TestClear(t *testing.T) {
	v := New[uint](70)
	for i := range v.Len() {
		v.Set(i)
	}
	v.Clear()
	if v.Rem() != v.Len() {
		t.Fatalf("v.Clear: Rem\nhave %d\nwant %d", v.Rem(), v.Len())
	}
	v.checkRem(t)
	v.checkSearch(0, t)
	for i := range v.Len() {
		v.Set(i)
	}
	v.checkSearch(-1, t)
}

func TestOnes(t *testing.T) {
	v16 := New[uint16](37)
	if s := slices.Collect(v16.Ones()); len(s) != 0 {
		t.Fatalf("v16.Ones:\nhave %v\nwant []", s)
	}
	want := []int{0, 5, 15, 16, 31, 36}
	for _, i := range want {
		v16.Set(i)
	}
	if s := slices.Collect(v16.Ones()); !slices.Equal(s, want) {
		t.Fatalf("v16.Ones:\nhave %v\nwant %v", s, want)
	}
	var s []int
	for i := range v16.Ones() {
		if i > 15 {
			break
		}
		s = append(s, i)
	}
	if !slices.Equal(s, want[:3]) {
		t.Fatalf("v16.Ones (break):\nhave %v\nwant %v", s, want[:3])
	}
}
