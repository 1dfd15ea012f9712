// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"

	"github.com/gviegas/rhi/driver"
)

// MemType is the type of memory backing a Buffer.
type MemType int

// Memory types.
const (
	// Device-local memory. It cannot be mapped, so
	// data is written with Upload.
	MemGPU MemType = iota
	// Host-visible, coherent memory.
	MemHost
	// Host-visible memory that is flushed when
	// unmapped.
	MemHostCached
)

func (m MemType) String() string {
	switch m {
	case MemGPU:
		return "gpu"
	case MemHost:
		return "host"
	case MemHostCached:
		return "host-cached"
	}
	return fmt.Sprintf("MemType(%d)", int(m))
}

// BufferDesc describes a Buffer.
type BufferDesc struct {
	Size  int64
	Usage driver.Usage
	Mem   MemType
	Label string
}

type bufferImpl struct {
	object
	drv    driver.Buffer
	size   int64
	usage  driver.Usage
	mem    MemType
	label  string
	mapped bool
}

func (b *bufferImpl) released() { b.dev.retire(b) }

func (b *bufferImpl) destroy() {
	b.drv.Destroy()
	b.drv = nil
}

// Buffer is a reference-counted handle to a GPU buffer.
// The zero value is an invalid handle.
// Copying a Buffer value moves it: the copy and the
// original refer to the same reference, so only one of
// them can be released. Use Clone to add a reference.
type Buffer struct {
	p  *bufferImpl
	id uint64
}

// CreateBuffer creates a new buffer.
// On failure it returns an invalid Buffer.
func (d *Device) CreateBuffer(desc *BufferDesc) (Buffer, error) {
	if desc.Size <= 0 {
		return Buffer{}, d.createFailed("buffer", errors.New("invalid size"))
	}
	usg := desc.Usage
	if desc.Mem == MemGPU {
		// Upload copies from a staging buffer.
		usg |= driver.UCopyDst
	}
	var buf driver.Buffer
	var err error
	if cb, ok := d.gpu.(driver.CachedBufferer); ok && desc.Mem == MemHostCached {
		buf, err = cb.NewCachedBuffer(desc.Size, usg)
	} else {
		buf, err = d.gpu.NewBuffer(desc.Size, desc.Mem != MemGPU, usg)
	}
	if err != nil {
		return Buffer{}, d.createFailed("buffer", err)
	}
	p := &bufferImpl{
		drv:   buf,
		size:  desc.Size,
		usage: usg,
		mem:   desc.Mem,
		label: desc.Label,
	}
	p.init(d)
	d.track(p)
	return Buffer{p, p.id}, nil
}

// Valid reports whether b refers to a live buffer.
func (b Buffer) Valid() bool { return live(b.p, b.id) }

// Clone adds a reference and returns a new handle to
// the same buffer.
func (b Buffer) Clone() Buffer {
	clone(b.p, b.id, "Buffer")
	return b
}

// Release removes the reference held by b and
// invalidates b.
func (b *Buffer) Release() {
	release(b.p, b.id, "Buffer")
	*b = Buffer{}
}

// ID returns the buffer's identifier.
func (b Buffer) ID() uint64 { return mustLive(b.p, b.id, "Buffer").id }

// Refcount returns the number of references to the
// buffer, or zero if b is invalid.
func (b Buffer) Refcount() uint32 { return refs(b.p, b.id) }

// Size returns the size requested at creation.
func (b Buffer) Size() int64 { return mustLive(b.p, b.id, "Buffer").size }

// Usage returns the buffer's usage.
func (b Buffer) Usage() driver.Usage { return mustLive(b.p, b.id, "Buffer").usage }

// MemType returns the buffer's memory type.
func (b Buffer) MemType() MemType { return mustLive(b.p, b.id, "Buffer").mem }

// Map returns the buffer's memory.
// It panics if the buffer is MemGPU.
// The slice must not be used after Unmap. Writes are
// visible to commands submitted after Unmap, and writes
// made by commands are visible once the frame that
// submitted them has completed. Device writes to
// MemHostCached buffers are only guaranteed to be seen
// through Read, which invalidates the range first.
func (b Buffer) Map() []byte {
	p := mustLive(b.p, b.id, "Buffer")
	if p.mem == MemGPU {
		panic("rhi: Map of MemGPU buffer")
	}
	p.mapped = true
	return p.drv.Bytes()[:p.size]
}

// Unmap ends a mapping.
// MemHostCached buffers are flushed.
func (b Buffer) Unmap() error {
	p := mustLive(b.p, b.id, "Buffer")
	if !p.mapped {
		panic("rhi: Unmap of buffer that is not mapped")
	}
	p.mapped = false
	return p.flush(0, p.size)
}

// flush makes host writes to a MemHostCached buffer
// visible to the device.
func (p *bufferImpl) flush(off, size int64) error {
	if f, ok := p.drv.(driver.Flusher); ok && p.mem == MemHostCached {
		if err := f.Flush(off, size); err != nil {
			return p.dev.classify("flush", err)
		}
	}
	return nil
}

// invalidate makes device writes to a MemHostCached
// buffer visible to the host.
func (p *bufferImpl) invalidate(off, size int64) error {
	if f, ok := p.drv.(driver.Flusher); ok && p.mem == MemHostCached {
		if err := f.Invalidate(off, size); err != nil {
			return p.dev.classify("invalidate", err)
		}
	}
	return nil
}

// Upload writes data to the buffer at offset off.
// Host-visible buffers are written directly. MemGPU
// buffers are written through a staging buffer and a
// copy command that Upload waits for.
func (b Buffer) Upload(data []byte, off int64) error {
	p := mustLive(b.p, b.id, "Buffer")
	if off < 0 || off+int64(len(data)) > p.size {
		panic("rhi: Upload out of bounds")
	}
	if len(data) == 0 {
		return nil
	}
	if p.mem != MemGPU {
		copy(p.drv.Bytes()[off:], data)
		return p.flush(off, int64(len(data)))
	}
	d := p.dev
	stg, err := d.gpu.NewBuffer(int64(len(data)), true, driver.UCopySrc)
	if err != nil {
		return d.classify("upload", err)
	}
	copy(stg.Bytes(), data)
	return d.immediate("upload", func(cb driver.CmdBuffer) {
		cb.BeginBlit(false)
		cb.CopyBuffer(&driver.BufferCopy{
			From:  stg,
			To:    p.drv,
			ToOff: off,
			Size:  int64(len(data)),
		})
		cb.EndBlit()
	}, stg)
}

// Read copies n bytes of the buffer, starting at offset
// off, into a new slice.
// MemGPU buffers are read back through a staging buffer.
// Writes made by commands are only seen once their frame
// has completed.
func (b Buffer) Read(off, n int64) ([]byte, error) {
	p := mustLive(b.p, b.id, "Buffer")
	if off < 0 || n < 0 || off+n > p.size {
		panic("rhi: Read out of bounds")
	}
	dst := make([]byte, n)
	if n == 0 {
		return dst, nil
	}
	if p.mem != MemGPU {
		if err := p.invalidate(off, n); err != nil {
			return nil, err
		}
		copy(dst, p.drv.Bytes()[off:])
		return dst, nil
	}
	d := p.dev
	if p.usage&driver.UCopySrc == 0 {
		panic("rhi: Read of MemGPU buffer without UCopySrc usage")
	}
	stg, err := d.gpu.NewBuffer(n, true, driver.UCopyDst)
	if err != nil {
		return nil, d.classify("read", err)
	}
	err = d.immediate("read", func(cb driver.CmdBuffer) {
		cb.BeginBlit(false)
		cb.CopyBuffer(&driver.BufferCopy{
			From:    p.drv,
			FromOff: off,
			To:      stg,
			Size:    n,
		})
		cb.EndBlit()
	})
	if err == nil {
		copy(dst, stg.Bytes())
		stg.Destroy()
		return dst, nil
	}
	// The copy may still be pending.
	d.xfer.garbage = append(d.xfer.garbage, stg)
	return nil, err
}
