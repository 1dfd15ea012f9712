// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	g    *GPU
	buf  hal.Buffer
	size int64
	// Host mirror of visible buffers.
	data []byte
}

// Buffer sizes are rounded up to this alignment, which
// copy commands require.
const bufferAlign = 4

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 || size > g.lim.MaxBufferSize {
		return nil, fmt.Errorf("wgpu: invalid buffer size %d", size)
	}
	size = (size + bufferAlign - 1) &^ (bufferAlign - 1)
	buf, err := g.dev.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: convBufferUsage(usg),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoDeviceMemory, err)
	}
	b := &buffer{g: g, buf: buf, size: size}
	if visible {
		b.data = make([]byte, size)
	}
	return b, nil
}

// Visible returns whether b is host visible.
func (b *buffer) Visible() bool { return b.data != nil }

// Bytes returns the host mirror of b.
func (b *buffer) Bytes() []byte { return b.data }

// Cap returns the capacity of b in bytes.
func (b *buffer) Cap() int64 { return b.size }

// Destroy destroys b.
func (b *buffer) Destroy() {
	if b == nil || b.buf == nil {
		return
	}
	if b.data != nil {
		b.g.forget(b)
	}
	b.g.dev.DestroyBuffer(b.buf)
	*b = buffer{}
}
