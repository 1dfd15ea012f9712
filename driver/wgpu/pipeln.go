// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// pipeline implements driver.Pipeline.
// Exactly one of render and comp is set.
type pipeline struct {
	g      *GPU
	render hal.RenderPipeline
	comp   hal.ComputePipeline
}

// NewPipeline creates a new pipeline.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	switch s := state.(type) {
	case *driver.GraphState:
		return g.newGraph(s)
	case *driver.CompState:
		return g.newComp(s)
	}
	panic("wgpu: invalid pipeline state type")
}

func (g *GPU) newGraph(s *driver.GraphState) (driver.Pipeline, error) {
	pass := s.Pass.(*renderPass)
	bufs := make([]gputypes.VertexBufferLayout, len(s.Input))
	for i, in := range s.Input {
		bufs[i] = gputypes.VertexBufferLayout{
			ArrayStride: uint64(in.Stride),
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{{
				Format:         convVertexFmt(in.Format),
				ShaderLocation: uint32(in.Nr),
			}},
		}
	}
	var blend *gputypes.BlendState
	if s.Blend {
		b := gputypes.BlendStatePremultiplied()
		blend = &b
	}
	color := pass.colorAttachments()
	targets := make([]gputypes.ColorTargetState, len(color))
	for i, a := range color {
		targets[i] = gputypes.ColorTargetState{
			Format:    convPixelFmt(a.Format),
			Blend:     blend,
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}
	front := gputypes.FrontFaceCCW
	if s.Clockwise {
		front = gputypes.FrontFaceCW
	}
	desc := &hal.RenderPipelineDescriptor{
		Layout: s.Desc.(*descTable).layout,
		Vertex: hal.VertexState{
			Module:     s.VertFunc.Code.(*shaderCode).mod,
			EntryPoint: s.VertFunc.Name,
			Buffers:    bufs,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  convTopology(s.Topology),
			FrontFace: front,
			CullMode:  convCullMode(s.Cull),
		},
		Multisample: gputypes.MultisampleState{
			Count: uint32(max(s.Samples, 1)),
			Mask:  0xFFFFFFFF,
		},
	}
	if s.FragFunc.Code != nil {
		desc.Fragment = &hal.FragmentState{
			Module:     s.FragFunc.Code.(*shaderCode).mod,
			EntryPoint: s.FragFunc.Name,
			Targets:    targets,
		}
	}
	if pass.ds {
		cmp := gputypes.CompareFunctionAlways
		if s.DepthTest {
			cmp = convCmpFunc(s.DepthCmp)
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            convPixelFmt(pass.att[len(pass.att)-1].Format),
			DepthWriteEnabled: s.DepthWrite,
			DepthCompare:      cmp,
		}
	}
	pl, err := g.dev.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create render pipeline: %w", err)
	}
	return &pipeline{g: g, render: pl}, nil
}

func (g *GPU) newComp(s *driver.CompState) (driver.Pipeline, error) {
	pl, err := g.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Layout: s.Desc.(*descTable).layout,
		Compute: hal.ComputeState{
			Module:     s.Func.Code.(*shaderCode).mod,
			EntryPoint: s.Func.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create compute pipeline: %w", err)
	}
	return &pipeline{g: g, comp: pl}, nil
}

// Destroy destroys p.
func (p *pipeline) Destroy() {
	if p == nil || p.g == nil {
		return
	}
	if p.render != nil {
		p.g.dev.DestroyRenderPipeline(p.render)
	}
	if p.comp != nil {
		p.g.dev.DestroyComputePipeline(p.comp)
	}
	*p = pipeline{}
}
