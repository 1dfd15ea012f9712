// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package null implements driver interfaces on host memory.
//
// Copy and fill commands operate on the host copies of
// buffers and images, so results can be read back exactly.
// Every other command is validated and counted but has no
// visible effect.
// The GPU records a trace of the synchronization events it
// observes and can be told to stall, to run out of
// descriptor storage or to lose the device, which makes it
// suitable for testing the layers above the driver.
package null

import (
	"errors"
	"sync"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/internal/logger"
)

const driverName = "null"

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		d.gpu = newGPU(d)
		logger.Get().Info("device opened", "driver", driverName)
	}
	return d.gpu, nil
}

// Name returns the driver name.
func (*Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gpu = nil
}

// New creates a GPU that is not tied to the registered
// driver.
// Each call produces an independent device, which tests
// use to avoid sharing state.
func New() *GPU {
	d := &Driver{}
	d.gpu = newGPU(d)
	return d.gpu
}

var (
	_ driver.GPU            = (*GPU)(nil)
	_ driver.ModePresenter  = (*GPU)(nil)
	_ driver.CachedBufferer = (*GPU)(nil)
	_ driver.Flusher        = (*Buffer)(nil)
	_ driver.CmdBuffer      = (*CmdBuffer)(nil)
	_ driver.Swapchain      = (*Swapchain)(nil)
)

// ObjKind identifies the kind of a driver object.
type ObjKind int

// Object kinds.
const (
	KBuffer ObjKind = iota
	KImage
	KView
	KSampler
	KShader
	KHeap
	KTable
	KPipeline
	KPass
	KFB
	KPool
	KCmd
	KFence
	KSemaphore
	KSwapchain
	kindN
)

func (k ObjKind) String() string {
	switch k {
	case KBuffer:
		return "buffer"
	case KImage:
		return "image"
	case KView:
		return "view"
	case KSampler:
		return "sampler"
	case KShader:
		return "shader"
	case KHeap:
		return "heap"
	case KTable:
		return "table"
	case KPipeline:
		return "pipeline"
	case KPass:
		return "pass"
	case KFB:
		return "framebuf"
	case KPool:
		return "pool"
	case KCmd:
		return "cmd"
	case KFence:
		return "fence"
	case KSemaphore:
		return "semaphore"
	case KSwapchain:
		return "swapchain"
	}
	return "unknown"
}

// EventKind identifies the kind of a recorded event.
type EventKind int

// Event kinds.
const (
	// Fence.Wait was called. Value is 1 if the fence
	// was signaled when Wait returned and 0 otherwise.
	EvFenceWait EventKind = iota
	// Fence.Reset was called.
	EvFenceReset
	// CmdPool.Reset was called.
	EvPoolReset
	// GPU.Submit succeeded. ID is the fence's, or zero.
	// Value is the number of command buffers.
	EvSubmit
	// A submission finished executing. ID is the
	// fence's, or zero.
	EvComplete
	// Swapchain.Next succeeded. Value is the index.
	EvAcquire
	// Swapchain.Present succeeded. Value is the index.
	EvPresent
	// An object was destroyed.
	EvDestroy
	// A cached buffer was flushed. Value is the size of
	// the range.
	EvFlush
	// A cached buffer was invalidated. Value is the size
	// of the range.
	EvInvalidate
)

func (k EventKind) String() string {
	switch k {
	case EvFenceWait:
		return "fence-wait"
	case EvFenceReset:
		return "fence-reset"
	case EvPoolReset:
		return "pool-reset"
	case EvSubmit:
		return "submit"
	case EvComplete:
		return "complete"
	case EvAcquire:
		return "acquire"
	case EvPresent:
		return "present"
	case EvDestroy:
		return "destroy"
	case EvFlush:
		return "flush"
	case EvInvalidate:
		return "invalidate"
	}
	return "unknown"
}

// Event is a single entry of the GPU's trace.
type Event struct {
	Kind  EventKind
	Obj   ObjKind
	ID    uint64
	Value int
}

// GPU implements driver.GPU and driver.ModePresenter.
type GPU struct {
	drv *Driver

	mu      sync.Mutex
	nextID  uint64
	live    [kindN]int
	events  []Event
	pending []*work
	stall   bool
	lost    bool
	// Descriptor heap copies in use and the
	// maximum allowed (zero means no limit).
	descUsed  int
	descLimit int
	noSingle  bool
	lim       driver.Limits
}

var errNotExec = errors.New("null: command buffer is not executable")
var errSignaled = errors.New("null: submitted fence is already signaled")
var errWaitSem = errors.New("null: wait on semaphore that has no pending signal")

func newGPU(d *Driver) *GPU {
	return &GPU{
		drv: d,
		lim: driver.Limits{
			MaxDescBuffer:   16,
			MaxDescImage:    16,
			MaxDescConstant: 16,
			MaxDescTexture:  64,
			MaxDescSampler:  16,
			MaxDescHeaps:    4,
			MaxBufferSize:   1 << 30,
			MaxImage2D:      16384,
			MaxLayers:       2048,
			MaxVertexIn:     16,
			MaxDispatch:     [3]int{65535, 65535, 65535},
		},
	}
}

// Driver returns the Driver that owns the GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits { return g.lim }

// newID assigns a new object identifier and counts the
// object as live.
// g.mu must be held.
func (g *GPU) newID(k ObjKind) uint64 {
	g.nextID++
	g.live[k]++
	return g.nextID
}

// record appends an event to the trace.
// g.mu must be held.
func (g *GPU) record(k EventKind, o ObjKind, id uint64, v int) {
	g.events = append(g.events, Event{Kind: k, Obj: o, ID: id, Value: v})
}

// destroy records the destruction of an object.
func (g *GPU) destroy(k ObjKind, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[k]--
	g.record(EvDestroy, k, id, 0)
}

// Events returns a copy of the event trace.
func (g *GPU) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	evs := make([]Event, len(g.events))
	copy(evs, g.events)
	return evs
}

// ClearEvents discards the event trace.
func (g *GPU) ClearEvents() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = g.events[:0]
}

// Live returns the number of live objects of kind k.
func (g *GPU) Live(k ObjKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live[k]
}

// SetStall sets whether submissions are held until
// Complete is called.
// While stalled, fences signaled by held submissions
// remain unsignaled.
func (g *GPU) SetStall(stall bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stall = stall
}

// Complete executes every held submission, in order.
func (g *GPU) Complete() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeUntil(nil)
}

// Pending returns the number of held submissions.
func (g *GPU) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// SetDescLimit sets the maximum number of descriptor heap
// copies that can exist at once.
// Zero removes the limit.
// DescHeap.New fails with driver.ErrNoDeviceMemory when
// the limit would be exceeded.
func (g *GPU) SetDescLimit(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.descLimit = n
}

// DisableResetSingle makes command pools created from now
// on unable to free single command buffers.
func (g *GPU) DisableResetSingle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.noSingle = true
}

// Lose simulates a device loss.
// Every subsequent submission and wait fails with
// driver.ErrFatal.
func (g *GPU) Lose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lost = true
}

// WaitIdle executes every held submission.
func (g *GPU) WaitIdle() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		return driver.ErrFatal
	}
	g.completeUntil(nil)
	return nil
}
