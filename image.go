// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"

	"github.com/gviegas/rhi/driver"
)

// ImageDesc describes an Image.
// Zero Layers, Levels and Samples are treated as one.
type ImageDesc struct {
	Format  driver.PixelFmt
	Size    driver.Dim3D
	Layers  int
	Levels  int
	Samples int
	Usage   driver.Usage
	Label   string
}

type imageImpl struct {
	object
	drv  driver.Image
	desc ImageDesc
}

func (m *imageImpl) released() { m.dev.retire(m) }

func (m *imageImpl) destroy() {
	m.drv.Destroy()
	m.drv = nil
}

// Image is a reference-counted handle to a GPU image.
type Image struct {
	p  *imageImpl
	id uint64
}

// CreateImage creates a new image.
// On failure it returns an invalid Image.
func (d *Device) CreateImage(desc *ImageDesc) (Image, error) {
	dc := *desc
	dc.Layers = max(dc.Layers, 1)
	dc.Levels = max(dc.Levels, 1)
	dc.Samples = max(dc.Samples, 1)
	dc.Size.Depth = max(dc.Size.Depth, 1)
	if dc.Format.Size() == 0 {
		return Image{}, d.createFailed("image", errors.New("invalid format"))
	}
	img, err := d.gpu.NewImage(dc.Format, dc.Size, dc.Layers, dc.Levels, dc.Samples, dc.Usage)
	if err != nil {
		return Image{}, d.createFailed("image", err)
	}
	p := &imageImpl{drv: img, desc: dc}
	p.init(d)
	d.track(p)
	return Image{p, p.id}, nil
}

// Valid reports whether m refers to a live image.
func (m Image) Valid() bool { return live(m.p, m.id) }

// Clone adds a reference.
func (m Image) Clone() Image {
	clone(m.p, m.id, "Image")
	return m
}

// Release removes the reference held by m.
func (m *Image) Release() {
	release(m.p, m.id, "Image")
	*m = Image{}
}

// ID returns the image's identifier.
func (m Image) ID() uint64 { return mustLive(m.p, m.id, "Image").id }

// Refcount returns the number of references.
func (m Image) Refcount() uint32 { return refs(m.p, m.id) }

// Desc returns the description the image was created
// with, with defaults applied.
func (m Image) Desc() ImageDesc { return mustLive(m.p, m.id, "Image").desc }

// CreateView creates a view of a range of layers and
// levels of the image.
// The view holds a reference to the image.
func (m Image) CreateView(typ driver.ViewType, layer, layers, level, levels int) (ImageView, error) {
	p := mustLive(m.p, m.id, "Image")
	d := p.dev
	iv, err := p.drv.NewView(typ, layer, layers, level, levels)
	if err != nil {
		return ImageView{}, d.createFailed("image view", err)
	}
	v := &viewImpl{drv: iv, img: m.Clone(), fmt: p.desc.Format, samples: p.desc.Samples}
	sz := p.desc.Size
	v.width, v.height = max(sz.Width>>level, 1), max(sz.Height>>level, 1)
	v.init(d)
	d.track(v)
	return ImageView{v, v.id}, nil
}

type viewImpl struct {
	object
	drv driver.ImageView
	// Invalid for swapchain views.
	img           Image
	fmt           driver.PixelFmt
	samples       int
	width, height int
	// Swapchain views are owned by the swapchain.
	external bool
}

func (v *viewImpl) released() { v.dev.retire(v) }

func (v *viewImpl) destroy() {
	if !v.external {
		v.drv.Destroy()
		v.img.Release()
	}
	v.drv = nil
}

// ImageView is a reference-counted handle to a view of
// an Image.
type ImageView struct {
	p  *viewImpl
	id uint64
}

// Valid reports whether v refers to a live view.
func (v ImageView) Valid() bool { return live(v.p, v.id) }

// Clone adds a reference.
func (v ImageView) Clone() ImageView {
	clone(v.p, v.id, "ImageView")
	return v
}

// Release removes the reference held by v.
func (v *ImageView) Release() {
	release(v.p, v.id, "ImageView")
	*v = ImageView{}
}

// ID returns the view's identifier.
func (v ImageView) ID() uint64 { return mustLive(v.p, v.id, "ImageView").id }

// Refcount returns the number of references.
func (v ImageView) Refcount() uint32 { return refs(v.p, v.id) }

// Format returns the pixel format of the viewed image.
func (v ImageView) Format() driver.PixelFmt { return mustLive(v.p, v.id, "ImageView").fmt }

// Size returns the width and height of the view's first
// level.
func (v ImageView) Size() (width, height int) {
	p := mustLive(v.p, v.id, "ImageView")
	return p.width, p.height
}

// SamplerDesc describes a Sampler.
type SamplerDesc = driver.Sampling

type samplerImpl struct {
	object
	drv driver.Sampler
}

func (s *samplerImpl) released() { s.dev.retire(s) }

func (s *samplerImpl) destroy() {
	s.drv.Destroy()
	s.drv = nil
}

// Sampler is a reference-counted handle to a sampler.
type Sampler struct {
	p  *samplerImpl
	id uint64
}

// CreateSampler creates a new sampler.
func (d *Device) CreateSampler(desc *SamplerDesc) (Sampler, error) {
	splr, err := d.gpu.NewSampler(desc)
	if err != nil {
		return Sampler{}, d.createFailed("sampler", err)
	}
	p := &samplerImpl{drv: splr}
	p.init(d)
	d.track(p)
	return Sampler{p, p.id}, nil
}

// Valid reports whether s refers to a live sampler.
func (s Sampler) Valid() bool { return live(s.p, s.id) }

// Clone adds a reference.
func (s Sampler) Clone() Sampler {
	clone(s.p, s.id, "Sampler")
	return s
}

// Release removes the reference held by s.
func (s *Sampler) Release() {
	release(s.p, s.id, "Sampler")
	*s = Sampler{}
}

// ID returns the sampler's identifier.
func (s Sampler) ID() uint64 { return mustLive(s.p, s.id, "Sampler").id }

// Refcount returns the number of references.
func (s Sampler) Refcount() uint32 { return refs(s.p, s.id) }
