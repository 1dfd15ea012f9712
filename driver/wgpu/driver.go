// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package wgpu implements driver interfaces on top of the
// gogpu hardware abstraction layer.
//
// The HAL reaches Vulkan, GLES, Metal and DX12 through a
// single API. This package selects the first backend that
// is available in the process (backend packages register
// themselves when imported) and exposes it as a
// driver.GPU.
//
// Host-visible buffers are mirrored in host memory. The
// mirror is written to the device before any submission
// that uses the buffer and read back when a fence that
// follows a submission that wrote to it is waited on.
package wgpu

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/gles"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/internal/logger"
)

const driverName = "wgpu"

// API is the entry point of a HAL backend.
// hal.GetBackend results and hal/noop.API satisfy it.
type API interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Backends tried by Driver.Open, in order.
var backends = []gputypes.Backend{gputypes.BackendVulkan, gputypes.BackendGL}

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	api API
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		return d.gpu, nil
	}
	api := d.api
	if api == nil {
		for _, b := range backends {
			if be, ok := hal.GetBackend(b); ok {
				api = be
				break
			}
		}
		if api == nil {
			return nil, driver.ErrNotInstalled
		}
	}
	gpu, err := open(d, api)
	if err != nil {
		return nil, err
	}
	d.gpu = gpu
	return gpu, nil
}

// Name returns the driver name.
func (*Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		return
	}
	d.gpu.destroy()
	d.gpu = nil
}

// New opens a GPU on the given backend.
// The GPU is not tied to the registered driver; closing
// its Driver destroys it.
func New(api API) (*GPU, error) {
	d := &Driver{api: api}
	gpu, err := d.Open()
	if err != nil {
		return nil, err
	}
	return gpu.(*GPU), nil
}

var (
	_ driver.GPU       = (*GPU)(nil)
	_ driver.CmdBuffer = (*cmdBuffer)(nil)
)

// GPU implements driver.GPU.
type GPU struct {
	drv   *Driver
	inst  hal.Instance
	dev   hal.Device
	queue hal.Queue
	name  string
	lim   driver.Limits

	mu sync.Mutex
	// Host-visible buffers that were written by
	// submitted commands and not read back yet.
	dirty map[*buffer]struct{}
	// Used by WaitIdle.
	idle *fence
}

// open creates the instance and opens the preferred
// adapter.
func open(d *Driver, api API) (*GPU, error) {
	inst, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNotInstalled, err)
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Destroy()
		return nil, driver.ErrNoDevice
	}
	sel := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			sel = &adapters[i]
			break
		}
	}
	lim := gputypes.DefaultLimits()
	od, err := sel.Adapter.Open(gputypes.Features(0), lim)
	if err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("%w: %v", driver.ErrNoDevice, err)
	}
	g := &GPU{
		drv:   d,
		inst:  inst,
		dev:   od.Device,
		queue: od.Queue,
		name:  sel.Info.Name,
		dirty: make(map[*buffer]struct{}),
	}
	g.setLimits(lim)
	idle, err := g.NewFence(true)
	if err != nil {
		g.dev.Destroy()
		inst.Destroy()
		return nil, err
	}
	g.idle = idle.(*fence)
	logger.Get().Info("device opened", "driver", driverName, "adapter", g.name)
	return g, nil
}

func (g *GPU) setLimits(l gputypes.Limits) {
	g.lim = driver.Limits{
		MaxDescBuffer:   int(l.MaxStorageBuffersPerShaderStage),
		MaxDescImage:    int(l.MaxStorageTexturesPerShaderStage),
		MaxDescConstant: int(l.MaxUniformBuffersPerShaderStage),
		MaxDescTexture:  int(l.MaxSampledTexturesPerShaderStage),
		MaxDescSampler:  int(l.MaxSamplersPerShaderStage),
		MaxDescHeaps:    int(l.MaxBindGroups),
		MaxBufferSize:   int64(l.MaxBufferSize),
		MaxImage2D:      int(l.MaxTextureDimension2D),
		MaxLayers:       int(l.MaxTextureArrayLayers),
		MaxVertexIn:     int(l.MaxVertexBuffers),
		MaxDispatch: [3]int{
			int(l.MaxComputeWorkgroupsPerDimension),
			int(l.MaxComputeWorkgroupsPerDimension),
			int(l.MaxComputeWorkgroupsPerDimension),
		},
	}
}

func (g *GPU) destroy() {
	if g.idle != nil {
		g.idle.Wait(-1)
		g.idle.Destroy()
		g.idle = nil
	}
	g.dev.Destroy()
	g.inst.Destroy()
}

// Driver returns the Driver that owns the GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Name returns the name of the adapter in use.
func (g *GPU) Name() string { return g.name }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits { return g.lim }

var errNotEnded = errors.New("wgpu: command buffer was not ended")

// Submit submits a batch of command buffers.
// Semaphores are ignored: the HAL exposes a single queue
// and executes submissions in order.
func (g *GPU) Submit(s *driver.Submission) error {
	cbs := make([]hal.CommandBuffer, 0, len(s.Cmds))
	for _, c := range s.Cmds {
		cb := c.(*cmdBuffer)
		if cb.cb == nil {
			return errNotEnded
		}
		cbs = append(cbs, cb.cb)
	}
	for _, c := range s.Cmds {
		for b := range c.(*cmdBuffer).reads {
			g.queue.WriteBuffer(b.buf, 0, b.data)
		}
	}
	f := g.idle
	if s.Fence != nil {
		f = s.Fence.(*fence)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	f.target++
	f.done = false
	if err := g.queue.Submit(cbs, f.fence, f.target); err != nil {
		f.target--
		f.done = true
		logger.Get().Error("submit failed", "driver", driverName, "err", err)
		return fmt.Errorf("%w: %v", driver.ErrFatal, err)
	}
	for _, c := range s.Cmds {
		for b := range c.(*cmdBuffer).writes {
			g.dirty[b] = struct{}{}
		}
	}
	if f != g.idle {
		// WaitIdle must observe this submission too.
		g.idle.target++
		g.idle.done = false
		if err := g.queue.Submit(nil, g.idle.fence, g.idle.target); err != nil {
			return fmt.Errorf("%w: %v", driver.ErrFatal, err)
		}
	}
	return nil
}

// WaitIdle blocks until all submitted work completes.
func (g *GPU) WaitIdle() error {
	g.mu.Lock()
	f := g.idle
	g.mu.Unlock()
	return f.Wait(-1)
}

// readback copies device data into the mirrors of every
// dirty buffer.
func (g *GPU) readback() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for b := range g.dirty {
		if err := g.queue.ReadBuffer(b.buf, 0, b.data); err != nil {
			return fmt.Errorf("%w: %v", driver.ErrFatal, err)
		}
		delete(g.dirty, b)
	}
	return nil
}

// forget stops tracking b.
func (g *GPU) forget(b *buffer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.dirty, b)
}

// timeout converts a driver timeout to a HAL one.
func timeout(d time.Duration) time.Duration {
	if d < 0 {
		return math.MaxInt64
	}
	return d
}
