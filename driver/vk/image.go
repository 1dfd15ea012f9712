// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// image implements driver.Image.
type image struct {
	d      *Driver
	m      *memory // Nil for swapchain images.
	img    vulkan.Image
	pf     driver.PixelFmt
	fmt    vulkan.Format
	subres vulkan.ImageSubresourceRange
}

// NewImage creates a new image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	format := convPixelFmt(pf)
	if format == vulkan.FormatUndefined {
		return nil, errUnsupportedFormat
	}
	scount := convSamples(samples)
	aspect := aspectOf(pf)

	var typ vulkan.ImageType
	var flags vulkan.ImageCreateFlagBits
	extent := vulkan.Extent3D{
		Width:  uint32(size.Width),
		Height: uint32(max(size.Height, 1)),
		Depth:  uint32(max(size.Depth, 1)),
	}
	if size.Depth > 1 {
		typ = vulkan.ImageType3d
	} else {
		if samples <= 1 && size.Width == size.Height && layers >= 6 {
			flags |= vulkan.ImageCreateCubeCompatibleBit
		}
		typ = vulkan.ImageType2d
	}

	var usage vulkan.ImageUsageFlagBits
	if usg&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		usage |= vulkan.ImageUsageStorageBit
	}
	if usg&driver.UShaderSample != 0 {
		usage |= vulkan.ImageUsageSampledBit
	}
	if usg&driver.URenderTarget != 0 {
		if aspect == vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit) {
			usage |= vulkan.ImageUsageColorAttachmentBit
		} else {
			usage |= vulkan.ImageUsageDepthStencilAttachmentBit
		}
	}
	if usage == 0 {
		return nil, errors.New("vk: image has no valid usage")
	}
	usage |= vulkan.ImageUsageTransferSrcBit | vulkan.ImageUsageTransferDstBit

	var prop vulkan.ImageFormatProperties
	res := vulkan.GetPhysicalDeviceImageFormatProperties(d.pdev, format, typ, vulkan.ImageTilingOptimal,
		vulkan.ImageUsageFlags(usage), vulkan.ImageCreateFlags(flags), &prop)
	if err := checkResult(res); err != nil {
		return nil, err
	}
	prop.Deref()
	prop.MaxExtent.Deref()
	if extent.Width > prop.MaxExtent.Width || extent.Height > prop.MaxExtent.Height || extent.Depth > prop.MaxExtent.Depth ||
		uint32(layers) > prop.MaxArrayLayers || uint32(levels) > prop.MaxMipLevels ||
		vulkan.SampleCountFlags(scount)&prop.SampleCounts == 0 {
		return nil, errUnsupportedFormat
	}

	info := vulkan.ImageCreateInfo{
		SType:         vulkan.StructureTypeImageCreateInfo,
		Flags:         vulkan.ImageCreateFlags(flags),
		ImageType:     typ,
		Format:        format,
		Extent:        extent,
		MipLevels:     uint32(levels),
		ArrayLayers:   uint32(layers),
		Samples:       scount,
		Tiling:        vulkan.ImageTilingOptimal,
		Usage:         vulkan.ImageUsageFlags(usage),
		SharingMode:   vulkan.SharingModeExclusive,
		InitialLayout: vulkan.ImageLayoutUndefined,
	}
	var img vulkan.Image
	if err := checkResult(vulkan.CreateImage(d.dev, &info, nil, &img)); err != nil {
		return nil, err
	}

	var req vulkan.MemoryRequirements
	vulkan.GetImageMemoryRequirements(d.dev, img, &req)
	req.Deref()
	m, err := d.newMemory(req, false, false)
	if err != nil {
		vulkan.DestroyImage(d.dev, img, nil)
		return nil, err
	}
	if err = checkResult(vulkan.BindImageMemory(d.dev, img, m.mem, 0)); err != nil {
		m.free()
		vulkan.DestroyImage(d.dev, img, nil)
		return nil, err
	}
	m.bound = true

	return &image{
		d:   d,
		m:   m,
		img: img,
		pf:  pf,
		fmt: format,
		subres: vulkan.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: uint32(levels),
			LayerCount: uint32(layers),
		},
	}, nil
}

// Destroy destroys the image.
// Swapchain images are owned by the swapchain.
func (im *image) Destroy() {
	if im == nil {
		return
	}
	if im.m != nil {
		vulkan.DestroyImage(im.d.dev, im.img, nil)
		im.m.free()
	}
	*im = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	i      *image
	view   vulkan.ImageView
	subres vulkan.ImageSubresourceRange
}

// NewView creates a new image view.
func (im *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if layer < 0 || layers < 1 || uint32(layer+layers) > im.subres.LayerCount ||
		level < 0 || levels < 1 || uint32(level+levels) > im.subres.LevelCount {
		return nil, errors.New("vk: image view out of bounds")
	}
	var viewType vulkan.ImageViewType
	switch typ {
	case driver.IView2D:
		viewType = vulkan.ImageViewType2d
	case driver.IView2DArray:
		viewType = vulkan.ImageViewType2dArray
	case driver.IView3D:
		viewType = vulkan.ImageViewType3d
	case driver.IViewCube:
		viewType = vulkan.ImageViewTypeCube
	default:
		return nil, errors.New("vk: invalid view type")
	}
	subres := vulkan.ImageSubresourceRange{
		AspectMask:     im.subres.AspectMask,
		BaseMipLevel:   uint32(level),
		LevelCount:     uint32(levels),
		BaseArrayLayer: uint32(layer),
		LayerCount:     uint32(layers),
	}
	info := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    im.img,
		ViewType: viewType,
		Format:   im.fmt,
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: subres,
	}
	var view vulkan.ImageView
	if err := checkResult(vulkan.CreateImageView(im.d.dev, &info, nil, &view)); err != nil {
		return nil, err
	}
	return &imageView{
		i:      im,
		view:   view,
		subres: subres,
	}, nil
}

// Image returns the image from which the view was created.
func (v *imageView) Image() driver.Image { return v.i }

// Destroy destroys the image view.
func (v *imageView) Destroy() {
	if v == nil {
		return
	}
	if v.i != nil && v.i.d != nil {
		vulkan.DestroyImageView(v.i.d.dev, v.view, nil)
	}
	*v = imageView{}
}

// convPixelFmt converts a driver.PixelFmt to a VkFormat.
func convPixelFmt(pf driver.PixelFmt) vulkan.Format {
	switch pf {
	case driver.RGBA8Unorm:
		return vulkan.FormatR8g8b8a8Unorm
	case driver.RGBA8SRGB:
		return vulkan.FormatR8g8b8a8Srgb
	case driver.BGRA8Unorm:
		return vulkan.FormatB8g8r8a8Unorm
	case driver.BGRA8SRGB:
		return vulkan.FormatB8g8r8a8Srgb
	case driver.RG8Unorm:
		return vulkan.FormatR8g8Unorm
	case driver.R8Unorm:
		return vulkan.FormatR8Unorm
	case driver.RGBA16Float:
		return vulkan.FormatR16g16b16a16Sfloat
	case driver.RGBA32Float:
		return vulkan.FormatR32g32b32a32Sfloat
	case driver.R32Float:
		return vulkan.FormatR32Sfloat
	case driver.D16Unorm:
		return vulkan.FormatD16Unorm
	case driver.D32Float:
		return vulkan.FormatD32Sfloat
	case driver.D24UnormS8Uint:
		return vulkan.FormatD24UnormS8Uint
	}
	return vulkan.FormatUndefined
}

// pixelFmtOf converts a VkFormat to a driver.PixelFmt.
// It returns driver.FInvalid if f has no equivalent.
func pixelFmtOf(f vulkan.Format) driver.PixelFmt {
	for pf := driver.RGBA8Unorm; pf <= driver.D24UnormS8Uint; pf++ {
		if convPixelFmt(pf) == f {
			return pf
		}
	}
	return driver.FInvalid
}

// convSamples converts a samples value to a VkSampleCountFlagBits.
func convSamples(ns int) vulkan.SampleCountFlagBits {
	switch ns {
	case 2:
		return vulkan.SampleCount2Bit
	case 4:
		return vulkan.SampleCount4Bit
	case 8:
		return vulkan.SampleCount8Bit
	case 16:
		return vulkan.SampleCount16Bit
	}
	return vulkan.SampleCount1Bit
}

// aspectOf returns a VkImageAspectFlags identifying the aspects of
// a given driver.PixelFmt.
func aspectOf(pf driver.PixelFmt) vulkan.ImageAspectFlags {
	switch pf {
	case driver.FInvalid:
		return 0
	case driver.D24UnormS8Uint:
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit | vulkan.ImageAspectStencilBit)
	case driver.D16Unorm, driver.D32Float:
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
	}
	return vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
}
