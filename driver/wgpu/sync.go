// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// fence implements driver.Fence on a HAL timeline fence.
// Each submission that signals the fence increments
// target; the fence is signaled once the HAL fence
// reaches it.
type fence struct {
	g     *GPU
	fence hal.Fence
	// Guarded by g.mu.
	target uint64
	// Value of target when the fence was last reset.
	base uint64
	done bool
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	f, err := g.dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoHostMemory, err)
	}
	return &fence{g: g, fence: f, done: signaled}, nil
}

// Wait blocks until f is signaled or timeout elapses.
func (f *fence) Wait(d time.Duration) error {
	f.g.mu.Lock()
	done, target, base := f.done, f.target, f.base
	f.g.mu.Unlock()
	if done {
		return nil
	}
	if target == base {
		// Nothing will signal it.
		return driver.ErrTimeout
	}
	ok, err := f.g.dev.Wait(f.fence, target, timeout(d))
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrFatal, err)
	}
	if !ok {
		return driver.ErrTimeout
	}
	f.g.mu.Lock()
	if f.target == target {
		f.done = true
	}
	f.g.mu.Unlock()
	return f.g.readback()
}

// Reset sets f to the unsignaled state.
func (f *fence) Reset() error {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	f.done = false
	f.base = f.target
	return nil
}

// Signaled reports whether f is signaled.
// Unsignaled fences are polled without blocking.
func (f *fence) Signaled() bool {
	f.g.mu.Lock()
	done := f.done
	f.g.mu.Unlock()
	if done {
		return true
	}
	return f.Wait(0) == nil
}

// Destroy destroys f.
func (f *fence) Destroy() {
	if f == nil || f.fence == nil {
		return
	}
	f.g.dev.DestroyFence(f.fence)
	*f = fence{}
}

// semaphore implements driver.Semaphore.
// Submissions on the HAL queue execute in order, so
// semaphores carry no state.
type semaphore struct{}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) { return &semaphore{}, nil }

// Destroy is a no-op.
func (*semaphore) Destroy() {}
