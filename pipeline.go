// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/shader"
)

type shaderImpl struct {
	object
	drv driver.ShaderCode
}

func (s *shaderImpl) released() { s.dev.retire(s) }

func (s *shaderImpl) destroy() {
	s.drv.Destroy()
	s.drv = nil
}

// ShaderModule is a reference-counted handle to a SPIR-V
// shader module.
type ShaderModule struct {
	p  *shaderImpl
	id uint64
}

// CreateShaderModule creates a shader module from SPIR-V
// code.
func (d *Device) CreateShaderModule(spirv []byte) (ShaderModule, error) {
	code, err := d.gpu.NewShaderCode(spirv)
	if err != nil {
		return ShaderModule{}, d.createFailed("shader module", err)
	}
	p := &shaderImpl{drv: code}
	p.init(d)
	d.track(p)
	return ShaderModule{p, p.id}, nil
}

// CreateShaderModuleWGSL compiles a WGSL source and
// creates a shader module from the result.
// Compilation errors wrap shader.ErrCompile.
func (d *Device) CreateShaderModuleWGSL(src string) (ShaderModule, error) {
	spirv, err := shader.Compile(src)
	if err != nil {
		return ShaderModule{}, fmt.Errorf("rhi: shader module: %w", err)
	}
	return d.CreateShaderModule(spirv)
}

// Valid reports whether s refers to a live shader module.
func (s ShaderModule) Valid() bool { return live(s.p, s.id) }

// Clone adds a reference.
func (s ShaderModule) Clone() ShaderModule {
	clone(s.p, s.id, "ShaderModule")
	return s
}

// Release removes the reference held by s.
func (s *ShaderModule) Release() {
	release(s.p, s.id, "ShaderModule")
	*s = ShaderModule{}
}

// ID returns the shader module's identifier.
func (s ShaderModule) ID() uint64 { return mustLive(s.p, s.id, "ShaderModule").id }

// Refcount returns the number of references to the
// shader module, or zero if s is invalid.
func (s ShaderModule) Refcount() uint32 { return refs(s.p, s.id) }

// PipelineLayoutDesc describes a PipelineLayout.
// Groups[i] is bound at slot i.
type PipelineLayoutDesc struct {
	Groups []BindGroupLayout
}

type pipelineLayoutImpl struct {
	object
	drv    driver.DescTable
	groups []BindGroupLayout
}

func (l *pipelineLayoutImpl) released() { l.dev.retire(l) }

func (l *pipelineLayoutImpl) destroy() {
	l.drv.Destroy()
	l.drv = nil
	for i := range l.groups {
		l.groups[i].Release()
	}
	l.groups = nil
}

// PipelineLayout is a reference-counted handle to the
// layout of the bind groups used by a pipeline.
type PipelineLayout struct {
	p  *pipelineLayoutImpl
	id uint64
}

// CreatePipelineLayout creates a new pipeline layout.
// The layout holds references to the bind group layouts.
func (d *Device) CreatePipelineLayout(desc *PipelineLayoutDesc) (PipelineLayout, error) {
	heaps := make([]driver.DescHeap, len(desc.Groups))
	for i, g := range desc.Groups {
		heaps[i] = mustLive(g.p, g.id, "BindGroupLayout").proto
	}
	tab, err := d.gpu.NewDescTable(heaps)
	if err != nil {
		return PipelineLayout{}, d.createFailed("pipeline layout", err)
	}
	p := &pipelineLayoutImpl{drv: tab, groups: make([]BindGroupLayout, len(desc.Groups))}
	for i, g := range desc.Groups {
		p.groups[i] = g.Clone()
	}
	p.init(d)
	d.track(p)
	return PipelineLayout{p, p.id}, nil
}

// Valid reports whether l refers to a live pipeline layout.
func (l PipelineLayout) Valid() bool { return live(l.p, l.id) }

// Clone adds a reference.
func (l PipelineLayout) Clone() PipelineLayout {
	clone(l.p, l.id, "PipelineLayout")
	return l
}

// Release removes the reference held by l.
func (l *PipelineLayout) Release() {
	release(l.p, l.id, "PipelineLayout")
	*l = PipelineLayout{}
}

// ID returns the pipeline layout's identifier.
func (l PipelineLayout) ID() uint64 { return mustLive(l.p, l.id, "PipelineLayout").id }

// Refcount returns the number of references to the
// pipeline layout, or zero if l is invalid.
func (l PipelineLayout) Refcount() uint32 { return refs(l.p, l.id) }

// ShaderStage selects an entry point of a shader module.
type ShaderStage struct {
	Module ShaderModule
	Entry  string
}

func (s *ShaderStage) fn() driver.ShaderFunc {
	p := mustLive(s.Module.p, s.Module.id, "ShaderModule")
	return driver.ShaderFunc{Code: p.drv, Name: s.Entry}
}

// GraphicsPipelineDesc describes a graphics Pipeline.
// ColorFormats and DepthFormat must match the attachments
// of the render passes in which the pipeline is used.
type GraphicsPipelineDesc struct {
	Layout       PipelineLayout
	Vertex       ShaderStage
	Fragment     ShaderStage
	Input        []driver.VertexIn
	Topology     driver.Topology
	Clockwise    bool
	Cull         driver.CullMode
	Samples      int
	ColorFormats []driver.PixelFmt
	// FInvalid means no depth/stencil attachment.
	DepthFormat driver.PixelFmt
	DepthTest   bool
	DepthWrite  bool
	DepthCmp    driver.CmpFunc
	Blend       bool
}

// ComputePipelineDesc describes a compute Pipeline.
type ComputePipelineDesc struct {
	Layout  PipelineLayout
	Compute ShaderStage
}

type pipelineImpl struct {
	object
	drv    driver.Pipeline
	layout PipelineLayout
	graph  bool
}

func (p *pipelineImpl) released() { p.dev.retire(p) }

func (p *pipelineImpl) destroy() {
	p.drv.Destroy()
	p.drv = nil
	p.layout.Release()
}

// Pipeline is a reference-counted handle to a graphics or
// compute pipeline.
type Pipeline struct {
	p  *pipelineImpl
	id uint64
}

// CreateGraphicsPipeline creates a new graphics pipeline.
// The pipeline holds a reference to its layout. Shader
// modules can be released once it is created.
func (d *Device) CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error) {
	lay := mustLive(desc.Layout.p, desc.Layout.id, "PipelineLayout")
	if len(desc.ColorFormats) == 0 && desc.DepthFormat == driver.FInvalid {
		return Pipeline{}, d.createFailed("graphics pipeline", errors.New("no attachments"))
	}
	samples := max(desc.Samples, 1)
	key := passKey{samples: samples, depth: desc.DepthFormat}
	for _, f := range desc.ColorFormats {
		key.color = append(key.color, attKey{format: f})
	}
	if desc.DepthFormat != driver.FInvalid {
		key.dload = driver.LClear
	}
	pass, err := d.renderPass(&key)
	if err != nil {
		return Pipeline{}, d.createFailed("graphics pipeline", err)
	}
	state := &driver.GraphState{
		VertFunc:   desc.Vertex.fn(),
		Desc:       lay.drv,
		Input:      desc.Input,
		Topology:   desc.Topology,
		Clockwise:  desc.Clockwise,
		Cull:       desc.Cull,
		Samples:    samples,
		DepthTest:  desc.DepthTest,
		DepthWrite: desc.DepthWrite,
		DepthCmp:   desc.DepthCmp,
		Blend:      desc.Blend,
		Pass:       pass,
	}
	if desc.Fragment.Module.p != nil {
		state.FragFunc = desc.Fragment.fn()
	}
	pl, err := d.gpu.NewPipeline(state)
	if err != nil {
		return Pipeline{}, d.createFailed("graphics pipeline", err)
	}
	p := &pipelineImpl{drv: pl, layout: desc.Layout.Clone(), graph: true}
	p.init(d)
	d.track(p)
	return Pipeline{p, p.id}, nil
}

// CreateComputePipeline creates a new compute pipeline.
func (d *Device) CreateComputePipeline(desc *ComputePipelineDesc) (Pipeline, error) {
	lay := mustLive(desc.Layout.p, desc.Layout.id, "PipelineLayout")
	pl, err := d.gpu.NewPipeline(&driver.CompState{Func: desc.Compute.fn(), Desc: lay.drv})
	if err != nil {
		return Pipeline{}, d.createFailed("compute pipeline", err)
	}
	p := &pipelineImpl{drv: pl, layout: desc.Layout.Clone()}
	p.init(d)
	d.track(p)
	return Pipeline{p, p.id}, nil
}

// Valid reports whether p refers to a live pipeline.
func (p Pipeline) Valid() bool { return live(p.p, p.id) }

// Clone adds a reference.
func (p Pipeline) Clone() Pipeline {
	clone(p.p, p.id, "Pipeline")
	return p
}

// Release removes the reference held by p.
func (p *Pipeline) Release() {
	release(p.p, p.id, "Pipeline")
	*p = Pipeline{}
}

// ID returns the pipeline's identifier.
func (p Pipeline) ID() uint64 { return mustLive(p.p, p.id, "Pipeline").id }

// Refcount returns the number of references.
func (p Pipeline) Refcount() uint32 { return refs(p.p, p.id) }
