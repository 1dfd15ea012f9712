// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"sync/atomic"
)

// Context owns the identifier counter shared by the
// devices created with it.
// Every resource created through those devices gets a
// distinct, non-zero ID.
type Context struct {
	ids atomic.Uint64
}

// NewContext creates a new Context.
func NewContext() *Context { return new(Context) }

// NextID returns a new identifier.
// It is safe for concurrent use.
func (c *Context) NextID() uint64 { return c.ids.Add(1) }
