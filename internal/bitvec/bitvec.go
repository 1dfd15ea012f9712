// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitvec defines a fixed-length bit vector used to
// track slot occupancy in pooled storage.
package bitvec

import (
	"iter"
	"math/bits"
	"unsafe"
)

// Uint represents the granularity of a bit vector.
type Uint interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// V is a bit vector of fixed length with custom granularity.
// Set bits represent occupied slots.
type V[T Uint] struct {
	s   []T
	n   int
	rem int
}

// nbit returns the number of bits in T.
func (*V[T]) nbit() int { return int(unsafe.Sizeof(T(0))) * 8 }

// New creates a bit vector of length n, with every bit
// unset.
// The padding bits of the last Uint are kept set so that
// they are never returned by Search.
func New[T Uint](n int) *V[T] {
	v := &V[T]{n: max(n, 0)}
	nb := v.nbit()
	v.s = make([]T, (v.n+nb-1)/nb)
	v.rem = v.n
	v.pad()
	return v
}

// pad sets the bits past the vector length.
func (v *V[T]) pad() {
	nb := v.nbit()
	if r := v.n % nb; r != 0 {
		v.s[len(v.s)-1] |= ^T(0) << r
	}
}

// Len returns the number of bits in the vector.
func (v *V[_]) Len() int { return v.n }

// Rem returns the number of unset bits in the vector.
func (v *V[_]) Rem() int { return v.rem }

// Count returns the number of set bits in the vector.
func (v *V[_]) Count() int { return v.n - v.rem }

func (v *V[T]) locate(index int) (int, T) {
	if index < 0 || index >= v.n {
		panic("bitvec: index out of range")
	}
	nb := v.nbit()
	return index / nb, T(1) << (index % nb)
}

// Set sets a given bit.
// It reports whether the bit was previously unset.
func (v *V[T]) Set(index int) bool {
	i, b := v.locate(index)
	if v.s[i]&b != 0 {
		return false
	}
	v.s[i] |= b
	v.rem--
	return true
}

// Unset unsets a given bit.
// It reports whether the bit was previously set.
func (v *V[T]) Unset(index int) bool {
	i, b := v.locate(index)
	if v.s[i]&b == 0 {
		return false
	}
	v.s[i] &^= b
	v.rem++
	return true
}

// IsSet checks whether a given bit is set.
func (v *V[T]) IsSet(index int) bool {
	i, b := v.locate(index)
	return v.s[i]&b != 0
}

// Search locates the lowest unset bit.
// It fails only when v.Rem() == 0.
func (v *V[T]) Search() (index int, ok bool) {
	if v.rem == 0 {
		return
	}
	for i, x := range v.s {
		if x == ^T(0) {
			continue
		}
		return i*v.nbit() + bits.TrailingZeros64(uint64(^x)), true
	}
	return
}

// Clear unsets every bit in the vector.
func (v *V[T]) Clear() {
	clear(v.s)
	v.pad()
	v.rem = v.n
}

// Ones returns an iterator over the indices of the set
// bits, in increasing order.
func (v *V[T]) Ones() iter.Seq[int] {
	return func(yield func(int) bool) {
		nb := v.nbit()
		for i, x := range v.s {
			if i == len(v.s)-1 && v.n%nb != 0 {
				x &^= ^T(0) << (v.n % nb)
			}
			for x != 0 {
				b := bits.TrailingZeros64(uint64(x))
				if !yield(i*nb + b) {
					return
				}
				x &= x - 1
			}
		}
	}
}
