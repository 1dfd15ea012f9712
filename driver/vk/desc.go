// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// descHeap implements driver.DescHeap.
type descHeap struct {
	d      *Driver
	layout vulkan.DescriptorSetLayout
	pool   vulkan.DescriptorPool
	sets   []vulkan.DescriptorSet
	ds     []driver.Descriptor

	// Number of descriptors of each type in ds.
	// These values are needed every time that new sets
	// are allocated, so we compute them once.
	count [5]int
}

// NewDescHeap creates a new descriptor heap.
func (d *Driver) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	var count [5]int
	binds := make([]vulkan.DescriptorSetLayoutBinding, len(ds))
	for i := range ds {
		// Descriptor.Nr is the binding number in Vulkan, which must be
		// unique within a descriptor set.
		for j := i + 1; j < len(ds); j++ {
			if ds[i].Nr == ds[j].Nr {
				return nil, errors.New("vk: descriptor number is not unique")
			}
		}
		if ds[i].Len < 1 {
			return nil, errors.New("vk: descriptor length must be positive")
		}
		count[ds[i].Type] += ds[i].Len
		binds[i] = vulkan.DescriptorSetLayoutBinding{
			Binding:         uint32(ds[i].Nr),
			DescriptorType:  convDescType(ds[i].Type),
			DescriptorCount: uint32(ds[i].Len),
			StageFlags:      convStages(ds[i].Stages),
		}
	}
	info := vulkan.DescriptorSetLayoutCreateInfo{
		SType:        vulkan.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}
	var layout vulkan.DescriptorSetLayout
	if err := checkResult(vulkan.CreateDescriptorSetLayout(d.dev, &info, nil, &layout)); err != nil {
		return nil, err
	}
	// Pool creation and descriptor set allocation is left to New.
	return &descHeap{
		d:      d,
		layout: layout,
		ds:     append([]driver.Descriptor(nil), ds...),
		count:  count,
	}, nil
}

// New creates enough storage for n copies of each descriptor.
func (h *descHeap) New(n int) error {
	if n == len(h.sets) {
		return nil
	}
	h.free()
	if n == 0 {
		return nil
	}
	sizes := make([]vulkan.DescriptorPoolSize, 0, len(h.count))
	for t, c := range h.count {
		if c > 0 {
			sizes = append(sizes, vulkan.DescriptorPoolSize{
				Type:            convDescType(driver.DescType(t)),
				DescriptorCount: uint32(c * n),
			})
		}
	}
	poolInfo := vulkan.DescriptorPoolCreateInfo{
		SType:         vulkan.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(n),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vulkan.DescriptorPool
	if err := checkResult(vulkan.CreateDescriptorPool(h.d.dev, &poolInfo, nil, &pool)); err != nil {
		return err
	}
	layouts := make([]vulkan.DescriptorSetLayout, n)
	for i := range layouts {
		layouts[i] = h.layout
	}
	sets := make([]vulkan.DescriptorSet, n)
	allocInfo := vulkan.DescriptorSetAllocateInfo{
		SType:              vulkan.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(n),
		PSetLayouts:        layouts,
	}
	if err := checkResult(vulkan.AllocateDescriptorSets(h.d.dev, &allocInfo, &sets[0])); err != nil {
		vulkan.DestroyDescriptorPool(h.d.dev, pool, nil)
		if errors.Is(err, errFragmentedPool) {
			err = driver.ErrNoDeviceMemory
		}
		return err
	}
	h.pool = pool
	h.sets = sets
	return nil
}

// descriptor returns the descriptor whose binding number is nr.
func (h *descHeap) descriptor(nr int) driver.Descriptor {
	for _, d := range h.ds {
		if d.Nr == nr {
			return d
		}
	}
	panic("vk: no such descriptor")
}

// SetBuffer updates buffer ranges.
func (h *descHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	desc := h.descriptor(nr)
	infos := make([]vulkan.DescriptorBufferInfo, len(buf))
	for i := range buf {
		infos[i] = vulkan.DescriptorBufferInfo{
			Buffer: buf[i].(*buffer).buf,
			Offset: vulkan.DeviceSize(off[i]),
			Range:  vulkan.DeviceSize(size[i]),
		}
	}
	h.write(vulkan.WriteDescriptorSet{
		SType:           vulkan.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(buf)),
		DescriptorType:  convDescType(desc.Type),
		PBufferInfo:     infos,
	})
}

// SetImage updates image views.
func (h *descHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	desc := h.descriptor(nr)
	layout := vulkan.ImageLayoutShaderReadOnlyOptimal
	if desc.Type == driver.DImage {
		layout = vulkan.ImageLayoutGeneral
	}
	infos := make([]vulkan.DescriptorImageInfo, len(iv))
	for i := range iv {
		infos[i] = vulkan.DescriptorImageInfo{
			ImageView:   iv[i].(*imageView).view,
			ImageLayout: layout,
		}
	}
	h.write(vulkan.WriteDescriptorSet{
		SType:           vulkan.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(iv)),
		DescriptorType:  convDescType(desc.Type),
		PImageInfo:      infos,
	})
}

// SetSampler updates samplers.
func (h *descHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	h.descriptor(nr)
	infos := make([]vulkan.DescriptorImageInfo, len(splr))
	for i := range splr {
		infos[i] = vulkan.DescriptorImageInfo{Sampler: splr[i].(*sampler).splr}
	}
	h.write(vulkan.WriteDescriptorSet{
		SType:           vulkan.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(splr)),
		DescriptorType:  vulkan.DescriptorTypeSampler,
		PImageInfo:      infos,
	})
}

func (h *descHeap) write(w vulkan.WriteDescriptorSet) {
	if w.DescriptorCount == 0 {
		return
	}
	vulkan.UpdateDescriptorSets(h.d.dev, 1, []vulkan.WriteDescriptorSet{w}, 0, nil)
}

// Count returns the number of heap copies.
func (h *descHeap) Count() int { return len(h.sets) }

// free destroys the pool, which frees every set.
func (h *descHeap) free() {
	if len(h.sets) != 0 {
		vulkan.DestroyDescriptorPool(h.d.dev, h.pool, nil)
		h.sets = nil
	}
}

// Destroy destroys the descriptor heap.
func (h *descHeap) Destroy() {
	if h == nil {
		return
	}
	if h.d != nil {
		h.free()
		vulkan.DestroyDescriptorSetLayout(h.d.dev, h.layout, nil)
	}
	*h = descHeap{}
}

// descTable implements driver.DescTable.
type descTable struct {
	d      *Driver
	layout vulkan.PipelineLayout
	heaps  []*descHeap
}

// NewDescTable creates a new descriptor table.
func (d *Driver) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	heaps := make([]*descHeap, len(dh))
	layouts := make([]vulkan.DescriptorSetLayout, len(dh))
	for i := range dh {
		heaps[i] = dh[i].(*descHeap)
		layouts[i] = heaps[i].layout
	}
	info := vulkan.PipelineLayoutCreateInfo{
		SType:          vulkan.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}
	var layout vulkan.PipelineLayout
	if err := checkResult(vulkan.CreatePipelineLayout(d.dev, &info, nil, &layout)); err != nil {
		return nil, err
	}
	return &descTable{
		d:      d,
		layout: layout,
		heaps:  heaps,
	}, nil
}

// Destroy destroys the descriptor table.
func (t *descTable) Destroy() {
	if t == nil {
		return
	}
	if t.d != nil {
		vulkan.DestroyPipelineLayout(t.d.dev, t.layout, nil)
	}
	*t = descTable{}
}
