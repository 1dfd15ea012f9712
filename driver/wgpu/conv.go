// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"github.com/gogpu/gputypes"

	"github.com/gviegas/rhi/driver"
)

func convPixelFmt(pf driver.PixelFmt) gputypes.TextureFormat {
	switch pf {
	case driver.RGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case driver.RGBA8SRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case driver.BGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	case driver.BGRA8SRGB:
		return gputypes.TextureFormatBGRA8UnormSrgb
	case driver.RG8Unorm:
		return gputypes.TextureFormatRG8Unorm
	case driver.R8Unorm:
		return gputypes.TextureFormatR8Unorm
	case driver.RGBA16Float:
		return gputypes.TextureFormatRGBA16Float
	case driver.RGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	case driver.R32Float:
		return gputypes.TextureFormatR32Float
	case driver.D16Unorm:
		return gputypes.TextureFormatDepth16Unorm
	case driver.D32Float:
		return gputypes.TextureFormatDepth32Float
	case driver.D24UnormS8Uint:
		return gputypes.TextureFormatDepth24PlusStencil8
	}
	return gputypes.TextureFormatUndefined
}

func convBufferUsage(usg driver.Usage) gputypes.BufferUsage {
	// Mirrored buffers are always copied to and from.
	u := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if usg&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if usg&driver.UShaderConst != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if usg&driver.UVertexData != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if usg&driver.UIndexData != 0 {
		u |= gputypes.BufferUsageIndex
	}
	return u
}

func convTextureUsage(usg driver.Usage) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if usg&driver.UShaderSample != 0 || usg&driver.UShaderRead != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if usg&driver.UShaderWrite != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if usg&driver.URenderTarget != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if usg&driver.UCopySrc != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if usg&driver.UCopyDst != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	return u
}

func convViewType(typ driver.ViewType) gputypes.TextureViewDimension {
	switch typ {
	case driver.IView2DArray:
		return gputypes.TextureViewDimension2DArray
	case driver.IView3D:
		return gputypes.TextureViewDimension3D
	case driver.IViewCube:
		return gputypes.TextureViewDimensionCube
	}
	return gputypes.TextureViewDimension2D
}

func convStages(s driver.Stage) gputypes.ShaderStages {
	var st gputypes.ShaderStages
	if s&driver.SVertex != 0 {
		st |= gputypes.ShaderStageVertex
	}
	if s&driver.SFragment != 0 {
		st |= gputypes.ShaderStageFragment
	}
	if s&driver.SCompute != 0 {
		st |= gputypes.ShaderStageCompute
	}
	return st
}

func convDescriptor(d driver.Descriptor) gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{
		Binding:    uint32(d.Nr),
		Visibility: convStages(d.Stages),
	}
	switch d.Type {
	case driver.DBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case driver.DConstant:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case driver.DImage:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case driver.DTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case driver.DSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	}
	return e
}

func convVertexFmt(f driver.VertexFmt) gputypes.VertexFormat {
	switch f {
	case driver.Int32:
		return gputypes.VertexFormatSint32
	case driver.Int32x2:
		return gputypes.VertexFormatSint32x2
	case driver.Int32x3:
		return gputypes.VertexFormatSint32x3
	case driver.Int32x4:
		return gputypes.VertexFormatSint32x4
	case driver.UInt32:
		return gputypes.VertexFormatUint32
	case driver.UInt32x2:
		return gputypes.VertexFormatUint32x2
	case driver.UInt32x3:
		return gputypes.VertexFormatUint32x3
	case driver.UInt32x4:
		return gputypes.VertexFormatUint32x4
	case driver.Float32:
		return gputypes.VertexFormatFloat32
	case driver.Float32x2:
		return gputypes.VertexFormatFloat32x2
	case driver.Float32x3:
		return gputypes.VertexFormatFloat32x3
	}
	return gputypes.VertexFormatFloat32x4
}

func convTopology(t driver.Topology) gputypes.PrimitiveTopology {
	switch t {
	case driver.TPoint:
		return gputypes.PrimitiveTopologyPointList
	case driver.TLine:
		return gputypes.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return gputypes.PrimitiveTopologyLineStrip
	case driver.TTriStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	}
	return gputypes.PrimitiveTopologyTriangleList
}

func convCullMode(c driver.CullMode) gputypes.CullMode {
	switch c {
	case driver.CFront:
		return gputypes.CullModeFront
	case driver.CBack:
		return gputypes.CullModeBack
	}
	return gputypes.CullModeNone
}

func convCmpFunc(c driver.CmpFunc) gputypes.CompareFunction {
	switch c {
	case driver.CNever:
		return gputypes.CompareFunctionNever
	case driver.CLess:
		return gputypes.CompareFunctionLess
	case driver.CEqual:
		return gputypes.CompareFunctionEqual
	case driver.CLessEqual:
		return gputypes.CompareFunctionLessEqual
	case driver.CGreater:
		return gputypes.CompareFunctionGreater
	case driver.CNotEqual:
		return gputypes.CompareFunctionNotEqual
	case driver.CGreaterEqual:
		return gputypes.CompareFunctionGreaterEqual
	}
	return gputypes.CompareFunctionAlways
}

func convFilter(f driver.Filter) gputypes.FilterMode {
	if f == driver.FLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func convAddrMode(a driver.AddrMode) gputypes.AddressMode {
	switch a {
	case driver.AMirror:
		return gputypes.AddressModeMirrorRepeat
	case driver.AClamp:
		return gputypes.AddressModeClampToEdge
	}
	return gputypes.AddressModeRepeat
}

func convLoadOp(op driver.LoadOp) gputypes.LoadOp {
	if op == driver.LLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func convStoreOp(op driver.StoreOp) gputypes.StoreOp {
	if op == driver.SStore {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

func convIndexFmt(f driver.IndexFmt) gputypes.IndexFormat {
	if f == driver.Index16 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}

// layoutUsage returns the texture usage that corresponds
// to an image layout.
func layoutUsage(l driver.Layout) gputypes.TextureUsage {
	switch l {
	case driver.LColorTarget, driver.LDSTarget, driver.LPresent:
		return gputypes.TextureUsageRenderAttachment
	case driver.LCopySrc:
		return gputypes.TextureUsageCopySrc
	case driver.LCopyDst:
		return gputypes.TextureUsageCopyDst
	case driver.LShaderRead:
		return gputypes.TextureUsageTextureBinding
	case driver.LCommon:
		return gputypes.TextureUsageStorageBinding
	}
	return 0
}
