// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"encoding/binary"
	"errors"

	"github.com/gviegas/rhi/driver"
)

// Buffer implements driver.Buffer.
type Buffer struct {
	g       *GPU
	id      uint64
	visible bool
	cached  bool
	usg     driver.Usage
	data    []byte
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("null: invalid buffer size")
	}
	if size > g.lim.MaxBufferSize {
		return nil, driver.ErrNoDeviceMemory
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Buffer{
		g:       g,
		id:      g.newID(KBuffer),
		visible: visible,
		usg:     usg,
		data:    make([]byte, size),
	}, nil
}

// NewCachedBuffer creates a new host-visible buffer whose
// memory must be flushed and invalidated explicitly.
func (g *GPU) NewCachedBuffer(size int64, usg driver.Usage) (driver.Buffer, error) {
	buf, err := g.NewBuffer(size, true, usg)
	if err != nil {
		return nil, err
	}
	b := buf.(*Buffer)
	b.cached = true
	return b, nil
}

var errCoherent = errors.New("null: buffer memory is coherent")

// ID returns the buffer's trace identifier.
func (b *Buffer) ID() uint64 { return b.id }

// Cached returns whether the buffer was created by
// NewCachedBuffer.
func (b *Buffer) Cached() bool { return b.cached }

// Flush records an EvFlush event.
func (b *Buffer) Flush(off, size int64) error { return b.sync(EvFlush, off, size) }

// Invalidate records an EvInvalidate event.
func (b *Buffer) Invalidate(off, size int64) error { return b.sync(EvInvalidate, off, size) }

func (b *Buffer) sync(k EventKind, off, size int64) error {
	if !b.cached {
		return errCoherent
	}
	if off < 0 || size < 0 || off+size > int64(len(b.data)) {
		panic("null: flush range out of bounds")
	}
	b.g.mu.Lock()
	defer b.g.mu.Unlock()
	b.g.record(k, KBuffer, b.id, int(size))
	return nil
}

// Visible returns whether the buffer is host visible.
func (b *Buffer) Visible() bool { return b.visible }

// Bytes returns a slice referring to the buffer's memory.
func (b *Buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}

// Cap returns the capacity of the buffer in bytes.
func (b *Buffer) Cap() int64 { return int64(len(b.data)) }

// Data returns the buffer's memory regardless of its
// visibility.
func (b *Buffer) Data() []byte { return b.data }

// Destroy destroys the buffer.
func (b *Buffer) Destroy() {
	if b == nil || b.g == nil {
		return
	}
	b.g.destroy(KBuffer, b.id)
	*b = Buffer{}
}

// Image implements driver.Image.
type Image struct {
	g       *GPU
	id      uint64
	pf      driver.PixelFmt
	size    driver.Dim3D
	layers  int
	levels  int
	samples int
	usg     driver.Usage
	// One slice per layer/level pair, indexed by
	// layer*levels+level.
	subs [][]byte
}

// NewImage creates a new image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	switch {
	case pf.Size() == 0:
		return nil, errors.New("null: invalid pixel format")
	case size.Width <= 0 || size.Height <= 0 || size.Depth < 0:
		return nil, errors.New("null: invalid image size")
	case size.Width > g.lim.MaxImage2D || size.Height > g.lim.MaxImage2D:
		return nil, driver.ErrNoDeviceMemory
	case layers <= 0 || layers > g.lim.MaxLayers || levels <= 0 || samples <= 0:
		return nil, errors.New("null: invalid image parameters")
	}
	img := &Image{
		g:       g,
		pf:      pf,
		size:    size,
		layers:  layers,
		levels:  levels,
		samples: samples,
		usg:     usg,
		subs:    make([][]byte, layers*levels),
	}
	for i := range layers {
		for j := range levels {
			d := img.levelSize(j)
			n := d.Width * d.Height * max(d.Depth, 1) * pf.Size()
			img.subs[i*levels+j] = make([]byte, n)
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	img.id = g.newID(KImage)
	return img, nil
}

// levelSize returns the size of the given mip level.
func (m *Image) levelSize(level int) driver.Dim3D {
	return driver.Dim3D{
		Width:  max(m.size.Width>>level, 1),
		Height: max(m.size.Height>>level, 1),
		Depth:  max(m.size.Depth>>level, 1),
	}
}

// sub returns the memory of the given subresource.
func (m *Image) sub(layer, level int) []byte { return m.subs[layer*m.levels+level] }

// Data returns the memory of the given subresource.
// Pixels are tightly packed, rows first.
func (m *Image) Data(layer, level int) []byte { return m.sub(layer, level) }

// NewView creates a new image view.
func (m *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if layer < 0 || layers <= 0 || layer+layers > m.layers || level < 0 || levels <= 0 || level+levels > m.levels {
		return nil, errors.New("null: view subresource out of bounds")
	}
	g := m.g
	g.mu.Lock()
	defer g.mu.Unlock()
	return &ImageView{g: g, id: g.newID(KView), img: m}, nil
}

// Destroy destroys the image.
func (m *Image) Destroy() {
	if m == nil || m.g == nil {
		return
	}
	m.g.destroy(KImage, m.id)
	*m = Image{}
}

// ImageView implements driver.ImageView.
type ImageView struct {
	g   *GPU
	id  uint64
	img *Image
}

// Image returns the viewed image.
func (v *ImageView) Image() driver.Image { return v.img }

// Destroy destroys the image view.
func (v *ImageView) Destroy() {
	if v == nil || v.g == nil {
		return
	}
	v.g.destroy(KView, v.id)
	*v = ImageView{}
}

// Sampler implements driver.Sampler.
type Sampler struct {
	g    *GPU
	id   uint64
	spln driver.Sampling
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	if spln.MinLOD > spln.MaxLOD {
		return nil, errors.New("null: invalid LOD range")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Sampler{g: g, id: g.newID(KSampler), spln: *spln}, nil
}

// Destroy destroys the sampler.
func (s *Sampler) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	s.g.destroy(KSampler, s.id)
	*s = Sampler{}
}

const spirvMagic = 0x07230203

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct {
	g    *GPU
	id   uint64
	code []byte
}

// NewShaderCode creates a new shader code.
// data must be a SPIR-V module: its length must be a
// non-zero multiple of four and it must start with the
// SPIR-V magic number.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, errors.New("null: invalid SPIR-V length")
	}
	if binary.NativeEndian.Uint32(data) != spirvMagic {
		return nil, errors.New("null: invalid SPIR-V magic number")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &ShaderCode{g: g, id: g.newID(KShader), code: append([]byte(nil), data...)}, nil
}

// Destroy destroys the shader code.
func (s *ShaderCode) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	s.g.destroy(KShader, s.id)
	*s = ShaderCode{}
}

// RenderPass implements driver.RenderPass.
type RenderPass struct {
	g   *GPU
	id  uint64
	att []driver.Attachment
}

// NewRenderPass creates a new render pass.
func (g *GPU) NewRenderPass(att []driver.Attachment) (driver.RenderPass, error) {
	if len(att) == 0 {
		return nil, errors.New("null: render pass has no attachments")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &RenderPass{g: g, id: g.newID(KPass), att: append([]driver.Attachment(nil), att...)}, nil
}

// NewFB creates a new framebuffer.
func (p *RenderPass) NewFB(iv []driver.ImageView, width, height int) (driver.Framebuf, error) {
	if len(iv) != len(p.att) {
		return nil, errors.New("null: framebuffer attachment count mismatch")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New("null: invalid framebuffer size")
	}
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Framebuf{g: g, id: g.newID(KFB), pass: p}, nil
}

// Destroy destroys the render pass.
func (p *RenderPass) Destroy() {
	if p == nil || p.g == nil {
		return
	}
	p.g.destroy(KPass, p.id)
	*p = RenderPass{}
}

// Framebuf implements driver.Framebuf.
type Framebuf struct {
	g    *GPU
	id   uint64
	pass *RenderPass
}

// Destroy destroys the framebuffer.
func (f *Framebuf) Destroy() {
	if f == nil || f.g == nil {
		return
	}
	f.g.destroy(KFB, f.id)
	*f = Framebuf{}
}
