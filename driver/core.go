// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"time"
)

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Submit submits a batch of command buffers to the GPU
	// for execution.
	// The batch starts executing only after every semaphore
	// in s.Wait is signaled. When execution completes, every
	// semaphore in s.Signal is signaled and then s.Fence, if
	// not nil, is signaled. Command buffers in s.Cmds cannot
	// be reset or reused for recording until then.
	// s.Cmds may be empty, in which case the submission only
	// orders the synchronization primitives.
	Submit(s *Submission) error

	// WaitIdle blocks until all submitted work completes.
	WaitIdle() error

	// NewCmdPool creates a new command pool.
	// If resetSingle is true, the pool is asked to support
	// freeing and resetting individual command buffers.
	// The CanResetSingle method of the pool reports whether
	// the request was honored.
	NewCmdPool(resetSingle bool) (CmdPool, error)

	// NewFence creates a new fence.
	// If signaled is true, the fence is created in the
	// signaled state.
	NewFence(signaled bool) (Fence, error)

	// NewSemaphore creates a new semaphore.
	NewSemaphore() (Semaphore, error)

	// NewRenderPass creates a new render pass.
	NewRenderPass(att []Attachment) (RenderPass, error)

	// NewShaderCode creates a new shader code.
	// data must contain SPIR-V words in host byte order.
	NewShaderCode(data []byte) (ShaderCode, error)

	// NewDescHeap creates a new descriptor heap.
	NewDescHeap(ds []Descriptor) (DescHeap, error)

	// NewDescTable creates a new descriptor table.
	NewDescTable(dh []DescHeap) (DescTable, error)

	// NewPipeline creates a new pipeline.
	// The state parameter must be a pointer to a GraphState or
	// a pointer to a CompState.
	NewPipeline(state any) (Pipeline, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new image.
	NewImage(pf PixelFmt, size Dim3D, layers, levels, samples int, usg Usage) (Image, error)

	// NewSampler creates a new Sampler.
	NewSampler(spln *Sampling) (Sampler, error)

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Submission describes a batch of command buffers to be
// executed and the synchronization around it.
type Submission struct {
	Cmds   []CmdBuffer
	Wait   []Semaphore
	Signal []Semaphore
	Fence  Fence
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// Fence is the interface that defines a CPU-observable
// completion signal.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or the
	// timeout elapses, whichever happens first.
	// It returns ErrTimeout in the latter case.
	// A negative timeout means no timeout.
	Wait(timeout time.Duration) error

	// Reset sets the fence to the unsignaled state.
	// It must not be called while the fence is part of
	// a pending submission.
	Reset() error

	// Signaled reports whether the fence is signaled.
	Signaled() bool
}

// Semaphore is the interface that defines a GPU-side
// ordering signal between queue operations.
type Semaphore interface {
	Destroyer
}

// CmdPool is the interface that defines a pool from which
// command buffers are allocated.
// Resetting a pool resets every command buffer allocated
// from it, which is usually much cheaper than resetting
// each one separately.
type CmdPool interface {
	Destroyer

	// NewCmdBuffer allocates a new command buffer.
	NewCmdBuffer() (CmdBuffer, error)

	// Free frees a command buffer.
	// It must only be called if CanResetSingle returns
	// true, and cb must not be pending execution.
	Free(cb CmdBuffer)

	// Reset resets every command buffer allocated from
	// the pool.
	// None of them can be pending execution.
	Reset() error

	// CanResetSingle reports whether command buffers can
	// be freed and reset individually.
	CanResetSingle() bool
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// submitted to the GPU for execution. Recording is separate
// into logical blocks containing either rendering, compute
// or copy commands. Multiple logical blocks can be recorded
// into a single command buffer. The usage is as follows:
// First, call Begin to prepare the command buffer for
// recording. Then, if it succeeds:
//
// To record commands for a render pass:
//  1. call BeginPass
//  2. call Set* methods to configure rendering state
//  3. call Draw* commands
//  4. repeat 2-3 as needed
//  5. call EndPass
//
// To record compute commands:
//  1. call BeginWork
//  2. call Set* methods to configure compute state
//  3. call Dispatch commands
//  4. repeat 2-3 as needed
//  5. call EndWork
//
// To record copy commands:
//  1. call BeginBlit
//  2. call Copy*/Fill commands
//  3. call EndBlit
//
// Finally, call End and, if it succeeds, GPU.Submit.
// Note that Begin* commands must not be nested, and
// must always be ended before another call to Begin*
// and prior to the final End call.
type CmdBuffer interface {
	// Begin prepares the command buffer for recording.
	// This method must be called before any command
	// is recorded in the command buffer. It needs to
	// be called again if the command buffer is
	// executed or reset.
	Begin() error

	// BeginPass begins a render pass.
	BeginPass(pass RenderPass, fb Framebuf, clear []ClearValue)

	// EndPass ends the current render pass.
	EndPass()

	// BeginWork begins compute work.
	// If wait is set, compute work only starts when
	// all previous commands recorded in the same
	// command buffer are done executing.
	BeginWork(wait bool)

	// EndWork ends the current compute work.
	EndWork()

	// BeginBlit begins data transfer.
	// If wait is set, data transfer only starts when
	// all previous commands recorded in the same
	// command buffer are done executing.
	BeginBlit(wait bool)

	// EndBlit ends the current data transfer.
	EndBlit()

	// SetPipeline sets the pipeline.
	// There is a separate binding point for each
	// type of pipeline.
	SetPipeline(pl Pipeline)

	// SetViewport sets the bounds of one or more
	// viewports.
	SetViewport(vp []Viewport)

	// SetScissor sets the rectangles of one or more
	// viewport scissors.
	SetScissor(sciss []Scissor)

	// SetVertexBuf sets one or more vertex buffers.
	SetVertexBuf(start int, buf []Buffer, off []int64)

	// SetIndexBuf sets the index buffer.
	// off must be aligned to 4 bytes.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// SetDescTableGraph sets a descriptor table
	// range for graphics pipelines.
	// copies[i] is bound to the heap at start+i.
	SetDescTableGraph(table DescTable, start int, copies []DescCopy)

	// SetDescTableComp sets a descriptor table
	// range for compute pipelines.
	SetDescTableComp(table DescTable, start int, copies []DescCopy)

	// Draw draws primitives.
	// It must only be called during a render pass.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawIndexed draws indexed primitives.
	// It must only be called during a render pass.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)

	// Dispatch dispatches compute thread groups.
	// It must only be called during compute work.
	Dispatch(grpCountX, grpCountY, grpCountZ int)

	// CopyBuffer copies data between buffers.
	// It must only be called during data transfer.
	CopyBuffer(param *BufferCopy)

	// CopyBufToImg copies data from a buffer to
	// an image.
	// It must only be called during data transfer.
	CopyBufToImg(param *BufImgCopy)

	// CopyImgToBuf copies data from an image to
	// a buffer.
	// It must only be called during data transfer.
	CopyImgToBuf(param *BufImgCopy)

	// Fill fills a buffer range with copies of
	// a byte value.
	// It must only be called during data transfer.
	// off and size must be aligned to 4 bytes.
	Fill(buf Buffer, off int64, value byte, size int64)

	// Barrier inserts a number of global barriers
	// in the command buffer.
	Barrier(b []Barrier)

	// Transition inserts a number of image layout
	// transitions in the command buffer.
	Transition(t []Transition)

	// End ends command recording and prepares the
	// command buffer for execution.
	// New recordings are not allowed until the
	// command buffer is executed or reset.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	// It must only be called if the pool from which
	// the command buffer was allocated can reset
	// single command buffers.
	Reset() error
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// BufImgCopy describes the parameters of a copy command
// that copies data between a buffer and an image.
// BufOff must be aligned to 512 bytes.
// Stride[0] must be aligned to 256 bytes.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	// Stride specifies the addressing of image data
	// in the buffer. It is given in pixels.
	// Stride[0] refers to the row length and Stride[1]
	// refers to the image height.
	Stride [2]int64
	Img    Image
	ImgOff Off3D
	Layer  int
	Level  int
	Size   Dim3D
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SVertexInput Sync = 1 << iota
	SVertexShading
	SFragmentShading
	SComputeShading
	SColorOutput
	SDSOutput
	SCopy
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AVertexBufRead Access = 1 << iota
	AIndexBufRead
	AColorRead
	AColorWrite
	ADSRead
	ADSWrite
	ACopyRead
	ACopyWrite
	AShaderRead
	AShaderWrite
	AHostRead
	AHostWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LCommon
	LColorTarget
	LDSTarget
	LCopySrc
	LCopyDst
	LShaderRead
	LPresent
)

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// Transition represents a layout transition on a
// specific image subresource.
type Transition struct {
	Barrier

	LayoutBefore Layout
	LayoutAfter  Layout
	IView        ImageView
}

// LoadOp is the type of an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// StoreOp is the type of an attachment's store operation.
type StoreOp int

// Store operations.
const (
	SDontCare StoreOp = iota
	SStore
)

// Attachment describes the configuration of a single
// render target for use in a render pass.
// The last attachment of a render pass is treated as the
// depth/stencil attachment if its format is a
// depth/stencil format.
type Attachment struct {
	Format  PixelFmt
	Samples int
	Load    LoadOp
	Store   StoreOp
	// Final is the layout the attachment is in when
	// the render pass ends.
	Final Layout
}

// RenderPass is the interface that defines a render pass
// into which draw commands operate.
// Render passes have a single subpass.
type RenderPass interface {
	Destroyer

	// NewFB creates a new framebuffer.
	// Each image view in iv correspond to the render pass'
	// attachment of same index.
	// All framebuffers created from a given render pass
	// must be destroyed before the render pass itself
	// is destroyed.
	NewFB(iv []ImageView, width, height int) (Framebuf, error)
}

// Framebuf is the interface that defines the render targets
// of a render pass.
type Framebuf interface {
	Destroyer
}

// ClearValue defines clear values for color or depth/stencil
// aspects of a render target.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// ShaderCode is the interface that defines a shader binary
// for execution in a programmable pipeline stage.
type ShaderCode interface {
	Destroyer
}

// ShaderFunc specifies a function within a shader binary.
type ShaderFunc struct {
	Code ShaderCode
	Name string
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SVertex Stage = 1 << iota
	SFragment
	SCompute
)

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Read/write image.
	DImage
	// Constant buffer.
	DConstant
	// Sampled texture.
	DTexture
	// Texture sampler.
	DSampler
)

// Descriptor describes data for use in shaders.
// Nr is the binding number and Len the array length.
type Descriptor struct {
	Type   DescType
	Stages Stage
	Nr     int
	Len    int
}

// DescHeap is the interface that defines a set of descriptors
// for use in programmable pipeline stages.
// A heap holds a fixed number of copies of its descriptors,
// each copy being bindable separately.
type DescHeap interface {
	Destroyer

	// New creates enough storage for n copies of each
	// descriptor.
	// All copies from a previous call to New are invalidated,
	// unless n is the same as the current Count value, in
	// which case it is a no-op.
	// Calling New(0) frees all storage.
	New(n int) error

	// SetBuffer updates the buffer ranges referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DBuffer or DConstant.
	SetBuffer(cpy, nr, start int, buf []Buffer, off, size []int64)

	// SetImage updates the image views referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DImage or DTexture.
	SetImage(cpy, nr, start int, iv []ImageView)

	// SetSampler updates the samplers referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DSampler.
	SetSampler(cpy, nr, start int, splr []Sampler)

	// Count returns the number of heap copies created
	// by New.
	Count() int
}

// DescCopy identifies a single copy of a descriptor heap.
type DescCopy struct {
	Heap DescHeap
	Copy int
}

// DescTable is the interface that defines the bindings
// between a number of descriptor heaps and the shaders
// in a pipeline.
// Any heap created from the same descriptors as the heap
// used to create the table is compatible with it.
type DescTable interface {
	Destroyer
}

// VertexFmt describes the format of a vertex input.
type VertexFmt int

// Vertex formats.
const (
	Int32 VertexFmt = iota
	Int32x2
	Int32x3
	Int32x4
	UInt32
	UInt32x2
	UInt32x3
	UInt32x4
	Float32
	Float32x2
	Float32x3
	Float32x4
)

// VertexIn describes a vertex input.
// Consecutive vertices are fetched Stride bytes apart.
// Each vertex input represents a separate buffer binding,
// interleaved inputs are not supported.
type VertexIn struct {
	Format VertexFmt
	Stride int
	Nr     int
}

// Topology is the type of primitive topologies,
// which determines how vertex data is assembled.
type Topology int

// Primitive topologies.
const (
	TPoint Topology = iota
	TLine
	TLnStrip
	TTriangle
	TTriStrip
)

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, Znear, Zfar float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// CullMode is the type of cull modes, which
// determines primitive culling based on triangle
// facing direction.
type CullMode int

// Cull modes.
const (
	CNone CullMode = iota
	CFront
	CBack
)

// CmpFunc is the type of comparison functions.
type CmpFunc int

// Comparison functions.
const (
	CNever CmpFunc = iota
	CLess
	CEqual
	CLessEqual
	CGreater
	CNotEqual
	CGreaterEqual
	CAlways
)

// GraphState defines the combination of programmable and
// fixed stages of a graphics pipeline.
// Graphics pipelines are created from graphics states.
// The Pass field defines the valid use of a graphics
// pipeline: it must not be used outside compatible
// render passes.
type GraphState struct {
	VertFunc ShaderFunc
	FragFunc ShaderFunc
	Desc     DescTable
	Input    []VertexIn
	Topology Topology
	// Winding order is either clockwise or counter-clockwise.
	Clockwise bool
	Cull      CullMode
	Samples   int
	// DepthTest and DepthWrite are ignored if the
	// render pass has no depth/stencil attachment.
	DepthTest  bool
	DepthWrite bool
	DepthCmp   CmpFunc
	// Blend enables premultiplied alpha blending on
	// every color target.
	Blend bool
	Pass  RenderPass
}

// CompState defines the state of a compute pipeline.
// Compute pipelines are created from compute states.
// The state is comprised of a single compute shader and a
// descriptor table describing the resources accessible to
// this shader.
type CompState struct {
	Func ShaderFunc
	Desc DescTable
}

// Pipeline is the interface that defines a GPU pipeline.
type Pipeline interface {
	Destroyer
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample
	// The resource can provide vertex data for draw calls.
	// Valid only for Buffer.
	UVertexData
	// The resource can provide index data for draw calls.
	// Valid only for Buffer.
	UIndexData
	// The resource can be used as render target.
	// Valid only for Image.
	URenderTarget
	// The resource can be the source of copy commands.
	UCopySrc
	// The resource can be the destination of copy and
	// fill commands.
	UCopyDst
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed. When a larger buffer
// is necessary, a new one must be created and the data
// must be copied explicitly.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	// Non-visible memory cannot be accessed by the CPU.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	// The slice is valid for the lifetime of the buffer.
	// Writes made through it are seen by commands submitted
	// afterwards, and writes made by commands are seen
	// through it once a fence signaled after them is
	// waited on.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	// This value is immutable.
	Cap() int64
}

// CachedBufferer is implemented by GPUs that can place
// host-visible buffers in cached, non-coherent memory.
// Buffers created this way implement Flusher.
type CachedBufferer interface {
	NewCachedBuffer(size int64, usg Usage) (Buffer, error)
}

// Flusher is the interface of buffers whose host memory
// is not coherent.
// Flush makes host writes visible to the device, and
// Invalidate makes device writes visible to the host.
// The range [off, off+size) is rounded out to the
// device's flush granularity.
type Flusher interface {
	Flush(off, size int64) error
	Invalidate(off, size int64) error
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FInvalid PixelFmt = iota
	// Color, 8-bit channels.
	RGBA8Unorm
	RGBA8SRGB
	BGRA8Unorm
	BGRA8SRGB
	RG8Unorm
	R8Unorm
	// Color, 16-bit channels.
	RGBA16Float
	// Color, 32-bit channels.
	RGBA32Float
	R32Float
	// Depth/Stencil.
	D16Unorm
	D32Float
	D24UnormS8Uint
)

// Size returns the size in bytes of a single pixel.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA8Unorm, RGBA8SRGB, BGRA8Unorm, BGRA8SRGB, R32Float, D32Float, D24UnormS8Uint:
		return 4
	case RG8Unorm, D16Unorm:
		return 2
	case R8Unorm:
		return 1
	case RGBA16Float:
		return 8
	case RGBA32Float:
		return 16
	}
	return 0
}

// IsDS reports whether f is a depth/stencil format.
func (f PixelFmt) IsDS() bool {
	switch f {
	case D16Unorm, D32Float, D24UnormS8Uint:
		return true
	}
	return false
}

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// Image is the interface that defines a GPU image.
type Image interface {
	Destroyer

	// NewView creates a new image view.
	NewView(typ ViewType, layer, layers, level, levels int) (ImageView, error)
}

// ViewType is the type of an image view.
type ViewType int

// View types.
const (
	IView2D ViewType = iota
	IView2DArray
	IView3D
	IViewCube
)

// ImageView is the interface that defines a view of an
// image's subresource.
type ImageView interface {
	Destroyer

	// Image returns the viewed image.
	Image() Image
}

// Filter is the type of sampler filters.
type Filter int

// Filters.
const (
	FNearest Filter = iota
	FLinear
	// Mipmap filter only.
	FNoMipmap
)

// AddrMode is the type of sampler address modes.
type AddrMode int

// Address modes.
const (
	AWrap AddrMode = iota
	AMirror
	AClamp
)

// Sampling describes a sampler.
type Sampling struct {
	Min    Filter
	Mag    Filter
	Mipmap Filter
	AddrU  AddrMode
	AddrV  AddrMode
	AddrW  AddrMode
	MinLOD float32
	MaxLOD float32
}

// Sampler is the interface that defines an image sampler.
type Sampler interface {
	Destroyer
}

// Limits describes implementation limits.
type Limits struct {
	// Maximum number of descriptors of each type in a
	// single heap copy.
	MaxDescBuffer   int
	MaxDescImage    int
	MaxDescConstant int
	MaxDescTexture  int
	MaxDescSampler  int
	// Maximum number of heaps in a descriptor table.
	MaxDescHeaps int
	// Maximum size of a single buffer.
	MaxBufferSize int64
	// Maximum image dimensions.
	MaxImage2D int
	MaxLayers  int
	// Maximum number of vertex inputs.
	MaxVertexIn int
	// Maximum number of compute thread groups per
	// dimension.
	MaxDispatch [3]int
}
