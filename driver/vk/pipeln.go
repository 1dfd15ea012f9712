// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// pipeline implements driver.Pipeline.
type pipeline struct {
	d    *Driver
	pl   vulkan.Pipeline
	bind vulkan.PipelineBindPoint
}

// NewPipeline creates a new pipeline.
func (d *Driver) NewPipeline(state any) (driver.Pipeline, error) {
	switch s := state.(type) {
	case *driver.GraphState:
		return d.newGraph(s)
	case *driver.CompState:
		return d.newComp(s)
	}
	panic("vk: invalid pipeline state type")
}

// shaderStage returns the creation info of a shader stage.
func shaderStage(fn driver.ShaderFunc, stage vulkan.ShaderStageFlagBits) vulkan.PipelineShaderStageCreateInfo {
	return vulkan.PipelineShaderStageCreateInfo{
		SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: fn.Code.(*shaderCode).mod,
		PName:  fn.Name + "\x00",
	}
}

func (d *Driver) newGraph(s *driver.GraphState) (driver.Pipeline, error) {
	if s.VertFunc.Code == nil {
		return nil, errors.New("vk: graphics pipeline with no vertex function")
	}
	pass := s.Pass.(*renderPass)
	stages := []vulkan.PipelineShaderStageCreateInfo{
		shaderStage(s.VertFunc, vulkan.ShaderStageVertexBit),
	}
	if s.FragFunc.Code != nil {
		stages = append(stages, shaderStage(s.FragFunc, vulkan.ShaderStageFragmentBit))
	}

	// Each input is sourced from its own vertex buffer binding.
	binds := make([]vulkan.VertexInputBindingDescription, len(s.Input))
	attrs := make([]vulkan.VertexInputAttributeDescription, len(s.Input))
	for i, in := range s.Input {
		binds[i] = vulkan.VertexInputBindingDescription{
			Binding:   uint32(i),
			Stride:    uint32(in.Stride),
			InputRate: vulkan.VertexInputRateVertex,
		}
		attrs[i] = vulkan.VertexInputAttributeDescription{
			Location: uint32(in.Nr),
			Binding:  uint32(i),
			Format:   convVertexFmt(in.Format),
		}
	}

	front := vulkan.FrontFaceCounterClockwise
	if s.Clockwise {
		front = vulkan.FrontFaceClockwise
	}

	var blend vulkan.PipelineColorBlendAttachmentState
	blend.ColorWriteMask = vulkan.ColorComponentFlags(vulkan.ColorComponentRBit |
		vulkan.ColorComponentGBit | vulkan.ColorComponentBBit | vulkan.ColorComponentABit)
	if s.Blend {
		// Colors are expected to be premultiplied.
		blend.BlendEnable = vulkan.True
		blend.SrcColorBlendFactor = vulkan.BlendFactorOne
		blend.DstColorBlendFactor = vulkan.BlendFactorOneMinusSrcAlpha
		blend.ColorBlendOp = vulkan.BlendOpAdd
		blend.SrcAlphaBlendFactor = vulkan.BlendFactorOne
		blend.DstAlphaBlendFactor = vulkan.BlendFactorOneMinusSrcAlpha
		blend.AlphaBlendOp = vulkan.BlendOpAdd
	}
	ncolor := len(pass.att)
	if pass.ds {
		ncolor--
	}
	blends := make([]vulkan.PipelineColorBlendAttachmentState, ncolor)
	for i := range blends {
		blends[i] = blend
	}

	info := vulkan.GraphicsPipelineCreateInfo{
		SType:      vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vulkan.PipelineVertexInputStateCreateInfo{
			SType:                           vulkan.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(binds)),
			PVertexBindingDescriptions:      binds,
			VertexAttributeDescriptionCount: uint32(len(attrs)),
			PVertexAttributeDescriptions:    attrs,
		},
		PInputAssemblyState: &vulkan.PipelineInputAssemblyStateCreateInfo{
			SType:    vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: convTopology(s.Topology),
		},
		PViewportState: &vulkan.PipelineViewportStateCreateInfo{
			SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vulkan.PipelineRasterizationStateCreateInfo{
			SType:       vulkan.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vulkan.PolygonModeFill,
			CullMode:    convCullMode(s.Cull),
			FrontFace:   front,
			LineWidth:   1,
		},
		PMultisampleState: &vulkan.PipelineMultisampleStateCreateInfo{
			SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: convSamples(s.Samples),
		},
		PColorBlendState: &vulkan.PipelineColorBlendStateCreateInfo{
			SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: uint32(len(blends)),
			PAttachments:    blends,
		},
		PDynamicState: &vulkan.PipelineDynamicStateCreateInfo{
			SType:             vulkan.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vulkan.DynamicState{
				vulkan.DynamicStateViewport,
				vulkan.DynamicStateScissor,
			},
		},
		Layout:     s.Desc.(*descTable).layout,
		RenderPass: pass.pass,
	}
	if pass.ds {
		var test, write vulkan.Bool32
		if s.DepthTest {
			test = vulkan.True
		}
		if s.DepthWrite {
			write = vulkan.True
		}
		info.PDepthStencilState = &vulkan.PipelineDepthStencilStateCreateInfo{
			SType:            vulkan.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  test,
			DepthWriteEnable: write,
			DepthCompareOp:   convCmpFunc(s.DepthCmp),
		}
	}

	pls := make([]vulkan.Pipeline, 1)
	err := checkResult(vulkan.CreateGraphicsPipelines(d.dev, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.GraphicsPipelineCreateInfo{info}, nil, pls))
	if err != nil {
		return nil, err
	}
	return &pipeline{
		d:    d,
		pl:   pls[0],
		bind: vulkan.PipelineBindPointGraphics,
	}, nil
}

func (d *Driver) newComp(s *driver.CompState) (driver.Pipeline, error) {
	if s.Func.Code == nil {
		return nil, errors.New("vk: compute pipeline with no function")
	}
	info := vulkan.ComputePipelineCreateInfo{
		SType:  vulkan.StructureTypeComputePipelineCreateInfo,
		Stage:  shaderStage(s.Func, vulkan.ShaderStageComputeBit),
		Layout: s.Desc.(*descTable).layout,
	}
	pls := make([]vulkan.Pipeline, 1)
	err := checkResult(vulkan.CreateComputePipelines(d.dev, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.ComputePipelineCreateInfo{info}, nil, pls))
	if err != nil {
		return nil, err
	}
	return &pipeline{
		d:    d,
		pl:   pls[0],
		bind: vulkan.PipelineBindPointCompute,
	}, nil
}

// Destroy destroys the pipeline.
func (p *pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		vulkan.DestroyPipeline(p.d.dev, p.pl, nil)
	}
	*p = pipeline{}
}
