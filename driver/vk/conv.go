// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// convLayout converts a driver.Layout to a VkImageLayout.
func convLayout(l driver.Layout) vulkan.ImageLayout {
	switch l {
	case driver.LCommon:
		return vulkan.ImageLayoutGeneral
	case driver.LColorTarget:
		return vulkan.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vulkan.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LCopySrc:
		return vulkan.ImageLayoutTransferSrcOptimal
	case driver.LCopyDst:
		return vulkan.ImageLayoutTransferDstOptimal
	case driver.LShaderRead:
		return vulkan.ImageLayoutShaderReadOnlyOptimal
	case driver.LPresent:
		return vulkan.ImageLayoutPresentSrc
	}
	return vulkan.ImageLayoutUndefined
}

// convSync converts a driver.Sync to a VkPipelineStageFlags.
// empty is used when s is driver.SNone.
func convSync(s driver.Sync, empty vulkan.PipelineStageFlagBits) vulkan.PipelineStageFlags {
	if s&driver.SAll != 0 {
		return vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit)
	}
	var f vulkan.PipelineStageFlagBits
	if s&driver.SVertexInput != 0 {
		f |= vulkan.PipelineStageVertexInputBit
	}
	if s&driver.SVertexShading != 0 {
		f |= vulkan.PipelineStageVertexShaderBit
	}
	if s&driver.SFragmentShading != 0 {
		f |= vulkan.PipelineStageFragmentShaderBit
	}
	if s&driver.SComputeShading != 0 {
		f |= vulkan.PipelineStageComputeShaderBit
	}
	if s&driver.SColorOutput != 0 {
		f |= vulkan.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SDSOutput != 0 {
		f |= vulkan.PipelineStageEarlyFragmentTestsBit | vulkan.PipelineStageLateFragmentTestsBit
	}
	if s&driver.SCopy != 0 {
		f |= vulkan.PipelineStageTransferBit
	}
	if f == 0 {
		f = empty
	}
	return vulkan.PipelineStageFlags(f)
}

// convAccess converts a driver.Access to a VkAccessFlags.
func convAccess(a driver.Access) vulkan.AccessFlags {
	var f vulkan.AccessFlagBits
	if a&driver.AVertexBufRead != 0 {
		f |= vulkan.AccessVertexAttributeReadBit
	}
	if a&driver.AIndexBufRead != 0 {
		f |= vulkan.AccessIndexReadBit
	}
	if a&driver.AColorRead != 0 {
		f |= vulkan.AccessColorAttachmentReadBit
	}
	if a&driver.AColorWrite != 0 {
		f |= vulkan.AccessColorAttachmentWriteBit
	}
	if a&driver.ADSRead != 0 {
		f |= vulkan.AccessDepthStencilAttachmentReadBit
	}
	if a&driver.ADSWrite != 0 {
		f |= vulkan.AccessDepthStencilAttachmentWriteBit
	}
	if a&driver.ACopyRead != 0 {
		f |= vulkan.AccessTransferReadBit
	}
	if a&driver.ACopyWrite != 0 {
		f |= vulkan.AccessTransferWriteBit
	}
	if a&driver.AShaderRead != 0 {
		f |= vulkan.AccessShaderReadBit
	}
	if a&driver.AShaderWrite != 0 {
		f |= vulkan.AccessShaderWriteBit
	}
	if a&driver.AHostRead != 0 {
		f |= vulkan.AccessHostReadBit
	}
	if a&driver.AHostWrite != 0 {
		f |= vulkan.AccessHostWriteBit
	}
	if a&driver.AAnyRead != 0 {
		f |= vulkan.AccessMemoryReadBit
	}
	if a&driver.AAnyWrite != 0 {
		f |= vulkan.AccessMemoryWriteBit
	}
	return vulkan.AccessFlags(f)
}

// convLoadOp converts a driver.LoadOp to a VkAttachmentLoadOp.
func convLoadOp(op driver.LoadOp) vulkan.AttachmentLoadOp {
	switch op {
	case driver.LClear:
		return vulkan.AttachmentLoadOpClear
	case driver.LLoad:
		return vulkan.AttachmentLoadOpLoad
	}
	return vulkan.AttachmentLoadOpDontCare
}

// convStoreOp converts a driver.StoreOp to a VkAttachmentStoreOp.
func convStoreOp(op driver.StoreOp) vulkan.AttachmentStoreOp {
	if op == driver.SStore {
		return vulkan.AttachmentStoreOpStore
	}
	return vulkan.AttachmentStoreOpDontCare
}

// convStages converts a driver.Stage to a VkShaderStageFlags.
func convStages(s driver.Stage) vulkan.ShaderStageFlags {
	var f vulkan.ShaderStageFlagBits
	if s&driver.SVertex != 0 {
		f |= vulkan.ShaderStageVertexBit
	}
	if s&driver.SFragment != 0 {
		f |= vulkan.ShaderStageFragmentBit
	}
	if s&driver.SCompute != 0 {
		f |= vulkan.ShaderStageComputeBit
	}
	return vulkan.ShaderStageFlags(f)
}

// convDescType converts a driver.DescType to a VkDescriptorType.
func convDescType(t driver.DescType) vulkan.DescriptorType {
	switch t {
	case driver.DBuffer:
		return vulkan.DescriptorTypeStorageBuffer
	case driver.DImage:
		return vulkan.DescriptorTypeStorageImage
	case driver.DConstant:
		return vulkan.DescriptorTypeUniformBuffer
	case driver.DTexture:
		return vulkan.DescriptorTypeSampledImage
	}
	return vulkan.DescriptorTypeSampler
}

// convVertexFmt converts a driver.VertexFmt to a VkFormat.
func convVertexFmt(f driver.VertexFmt) vulkan.Format {
	switch f {
	case driver.Int32:
		return vulkan.FormatR32Sint
	case driver.Int32x2:
		return vulkan.FormatR32g32Sint
	case driver.Int32x3:
		return vulkan.FormatR32g32b32Sint
	case driver.Int32x4:
		return vulkan.FormatR32g32b32a32Sint
	case driver.UInt32:
		return vulkan.FormatR32Uint
	case driver.UInt32x2:
		return vulkan.FormatR32g32Uint
	case driver.UInt32x3:
		return vulkan.FormatR32g32b32Uint
	case driver.UInt32x4:
		return vulkan.FormatR32g32b32a32Uint
	case driver.Float32:
		return vulkan.FormatR32Sfloat
	case driver.Float32x2:
		return vulkan.FormatR32g32Sfloat
	case driver.Float32x3:
		return vulkan.FormatR32g32b32Sfloat
	case driver.Float32x4:
		return vulkan.FormatR32g32b32a32Sfloat
	}
	return vulkan.FormatUndefined
}

// convTopology converts a driver.Topology to a VkPrimitiveTopology.
func convTopology(t driver.Topology) vulkan.PrimitiveTopology {
	switch t {
	case driver.TPoint:
		return vulkan.PrimitiveTopologyPointList
	case driver.TLine:
		return vulkan.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return vulkan.PrimitiveTopologyLineStrip
	case driver.TTriStrip:
		return vulkan.PrimitiveTopologyTriangleStrip
	}
	return vulkan.PrimitiveTopologyTriangleList
}

// convCullMode converts a driver.CullMode to a VkCullModeFlags.
func convCullMode(m driver.CullMode) vulkan.CullModeFlags {
	switch m {
	case driver.CFront:
		return vulkan.CullModeFlags(vulkan.CullModeFrontBit)
	case driver.CBack:
		return vulkan.CullModeFlags(vulkan.CullModeBackBit)
	}
	return vulkan.CullModeFlags(vulkan.CullModeNone)
}

// convIndexFmt converts a driver.IndexFmt to a VkIndexType.
func convIndexFmt(f driver.IndexFmt) vulkan.IndexType {
	if f == driver.Index16 {
		return vulkan.IndexTypeUint16
	}
	return vulkan.IndexTypeUint32
}
