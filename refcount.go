// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"math"
)

// refcount counts the references to a resource.
// The creator holds the first reference.
// It is not safe for concurrent use.
type refcount struct {
	n uint32
}

func newRefcount() refcount { return refcount{n: 1} }

// inc adds a reference.
// It saturates at math.MaxUint32.
func (r *refcount) inc() {
	if r.n == 0 {
		panic("rhi: reference to released resource")
	}
	if r.n < math.MaxUint32 {
		r.n++
	}
}

// dec removes a reference.
// It returns true when the last reference is removed.
func (r *refcount) dec() (zero bool) {
	switch r.n {
	case 0:
		panic("rhi: double release")
	case math.MaxUint32:
		// Saturated counts are never released.
		return false
	}
	r.n--
	return r.n == 0
}

func (r *refcount) alive() bool { return r.n > 0 }
