// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	m   *memory
	buf vulkan.Buffer
}

// NewBuffer creates a new buffer.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	return d.newBuffer(size, visible, false, usg)
}

// NewCachedBuffer creates a new buffer in host-cached
// memory, which need not be coherent.
func (d *Driver) NewCachedBuffer(size int64, usg driver.Usage) (driver.Buffer, error) {
	return d.newBuffer(size, true, true, usg)
}

func (d *Driver) newBuffer(size int64, visible, cached bool, usg driver.Usage) (driver.Buffer, error) {
	u := vulkan.BufferUsageTransferSrcBit | vulkan.BufferUsageTransferDstBit
	if usg&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		u |= vulkan.BufferUsageStorageBufferBit
	}
	if usg&driver.UShaderConst != 0 {
		u |= vulkan.BufferUsageUniformBufferBit
	}
	if usg&driver.UVertexData != 0 {
		u |= vulkan.BufferUsageVertexBufferBit
	}
	if usg&driver.UIndexData != 0 {
		u |= vulkan.BufferUsageIndexBufferBit
	}

	info := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        vulkan.DeviceSize(size),
		Usage:       vulkan.BufferUsageFlags(u),
		SharingMode: vulkan.SharingModeExclusive,
	}
	var buf vulkan.Buffer
	if err := checkResult(vulkan.CreateBuffer(d.dev, &info, nil, &buf)); err != nil {
		return nil, err
	}

	var req vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(d.dev, buf, &req)
	req.Deref()
	m, err := d.newMemory(req, visible, cached)
	if err != nil {
		vulkan.DestroyBuffer(d.dev, buf, nil)
		return nil, err
	}
	if err = checkResult(vulkan.BindBufferMemory(d.dev, buf, m.mem, 0)); err != nil {
		m.free()
		vulkan.DestroyBuffer(d.dev, buf, nil)
		return nil, err
	}
	m.bound = true
	if visible {
		// Keep the memory mapped for the lifetime of the buffer.
		if err = m.mmap(); err != nil {
			m.free()
			vulkan.DestroyBuffer(d.dev, buf, nil)
			return nil, err
		}
	}
	return &buffer{
		m:   m,
		buf: buf,
	}, nil
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.m.vis }

// Bytes returns a slice of length b.Cap() referring to the underlying data.
func (b *buffer) Bytes() []byte { return b.m.p }

// Cap returns the capacity of the buffer in bytes.
func (b *buffer) Cap() int64 { return b.m.size }

// Flush flushes host writes in [off, off+size).
// It does nothing if the memory is coherent.
func (b *buffer) Flush(off, size int64) error {
	r, ok := b.memRange(off, size)
	if !ok {
		return nil
	}
	return checkResult(vulkan.FlushMappedMemoryRanges(b.m.d.dev, 1, r))
}

// Invalidate makes device writes in [off, off+size)
// visible to the host.
// It does nothing if the memory is coherent.
func (b *buffer) Invalidate(off, size int64) error {
	r, ok := b.memRange(off, size)
	if !ok {
		return nil
	}
	return checkResult(vulkan.InvalidateMappedMemoryRanges(b.m.d.dev, 1, r))
}

// memRange returns the range of b's memory that covers
// [off, off+size), aligned to the non-coherent atom size.
func (b *buffer) memRange(off, size int64) ([]vulkan.MappedMemoryRange, bool) {
	if b.m.coh || !b.m.vis || size <= 0 {
		return nil, false
	}
	atom := b.m.d.atom
	start := off / atom * atom
	end := min((off+size+atom-1)/atom*atom, b.m.size)
	return []vulkan.MappedMemoryRange{{
		SType:  vulkan.StructureTypeMappedMemoryRange,
		Memory: b.m.mem,
		Offset: vulkan.DeviceSize(start),
		Size:   vulkan.DeviceSize(end - start),
	}}, true
}

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil {
		return
	}
	if b.m != nil {
		vulkan.DestroyBuffer(b.m.d.dev, b.buf, nil)
		b.m.free()
	}
	*b = buffer{}
}
