// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// fence implements driver.Fence.
type fence struct {
	d   *Driver
	fen vulkan.Fence
}

// NewFence creates a new fence.
func (d *Driver) NewFence(signaled bool) (driver.Fence, error) {
	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fen vulkan.Fence
	if err := checkResult(vulkan.CreateFence(d.dev, &info, nil, &fen)); err != nil {
		return nil, err
	}
	return &fence{d: d, fen: fen}, nil
}

// Wait waits for the fence to be signaled.
func (f *fence) Wait(timeout time.Duration) error {
	ns := uint64(vulkan.MaxUint64)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	res := vulkan.WaitForFences(f.d.dev, 1, []vulkan.Fence{f.fen}, vulkan.True, ns)
	if res == vulkan.Timeout {
		return driver.ErrTimeout
	}
	return checkResult(res)
}

// Reset sets the fence to the unsignaled state.
func (f *fence) Reset() error {
	return checkResult(vulkan.ResetFences(f.d.dev, 1, []vulkan.Fence{f.fen}))
}

// Signaled reports whether the fence is signaled.
func (f *fence) Signaled() bool {
	return vulkan.GetFenceStatus(f.d.dev, f.fen) == vulkan.Success
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil {
		return
	}
	if f.d != nil {
		vulkan.DestroyFence(f.d.dev, f.fen, nil)
	}
	*f = fence{}
}

// semaphore implements driver.Semaphore.
type semaphore struct {
	d   *Driver
	sem vulkan.Semaphore
}

// NewSemaphore creates a new semaphore.
func (d *Driver) NewSemaphore() (driver.Semaphore, error) {
	info := vulkan.SemaphoreCreateInfo{SType: vulkan.StructureTypeSemaphoreCreateInfo}
	var sem vulkan.Semaphore
	if err := checkResult(vulkan.CreateSemaphore(d.dev, &info, nil, &sem)); err != nil {
		return nil, err
	}
	return &semaphore{d: d, sem: sem}, nil
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		vulkan.DestroySemaphore(s.d.dev, s.sem, nil)
	}
	*s = semaphore{}
}
