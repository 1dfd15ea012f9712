// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// image implements driver.Image.
type image struct {
	g      *GPU
	tex    hal.Texture
	pf     driver.PixelFmt
	size   driver.Dim3D
	layers int
	levels int
}

// NewImage creates a new image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	format := convPixelFmt(pf)
	if format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("wgpu: unsupported pixel format %d", pf)
	}
	dim := gputypes.TextureDimension2D
	depth := layers
	if size.Depth > 1 {
		dim = gputypes.TextureDimension3D
		depth = size.Depth
	}
	if samples < 1 {
		samples = 1
	}
	tex, err := g.dev.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              uint32(size.Width),
			Height:             uint32(size.Height),
			DepthOrArrayLayers: uint32(max(depth, 1)),
		},
		MipLevelCount: uint32(max(levels, 1)),
		SampleCount:   uint32(samples),
		Dimension:     dim,
		Format:        format,
		Usage:         convTextureUsage(usg),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoDeviceMemory, err)
	}
	return &image{
		g:      g,
		tex:    tex,
		pf:     pf,
		size:   size,
		layers: max(layers, 1),
		levels: max(levels, 1),
	}, nil
}

// NewView creates a new image view.
func (m *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if layer+layers > m.layers || level+levels > m.levels {
		return nil, fmt.Errorf("wgpu: view range out of bounds")
	}
	aspect := gputypes.TextureAspectAll
	view, err := m.g.dev.CreateTextureView(m.tex, &hal.TextureViewDescriptor{
		Format:          convPixelFmt(m.pf),
		Dimension:       convViewType(typ),
		Aspect:          aspect,
		BaseMipLevel:    uint32(level),
		MipLevelCount:   uint32(levels),
		BaseArrayLayer:  uint32(layer),
		ArrayLayerCount: uint32(layers),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoHostMemory, err)
	}
	return &imageView{m: m, view: view, layer: layer, level: level}, nil
}

// Destroy destroys m.
func (m *image) Destroy() {
	if m == nil || m.tex == nil {
		return
	}
	m.g.dev.DestroyTexture(m.tex)
	*m = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	m     *image
	view  hal.TextureView
	layer int
	level int
}

// Image returns the viewed image.
func (v *imageView) Image() driver.Image { return v.m }

// Destroy destroys v.
func (v *imageView) Destroy() {
	if v == nil || v.view == nil {
		return
	}
	v.m.g.dev.DestroyTextureView(v.view)
	*v = imageView{}
}

// sampler implements driver.Sampler.
type sampler struct {
	g    *GPU
	splr hal.Sampler
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	desc := &hal.SamplerDescriptor{
		AddressModeU: convAddrMode(spln.AddrU),
		AddressModeV: convAddrMode(spln.AddrV),
		AddressModeW: convAddrMode(spln.AddrW),
		MagFilter:    convFilter(spln.Mag),
		MinFilter:    convFilter(spln.Min),
		MipmapFilter: convFilter(spln.Mipmap),
		LodMinClamp:  spln.MinLOD,
		LodMaxClamp:  spln.MaxLOD,
	}
	if spln.Mipmap == driver.FNoMipmap {
		desc.MipmapFilter = gputypes.FilterModeNearest
		desc.LodMaxClamp = 0.25
	}
	splr, err := g.dev.CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoHostMemory, err)
	}
	return &sampler{g: g, splr: splr}, nil
}

// Destroy destroys s.
func (s *sampler) Destroy() {
	if s == nil || s.splr == nil {
		return
	}
	s.g.dev.DestroySampler(s.splr)
	*s = sampler{}
}
