// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// renderPass implements driver.RenderPass.
type renderPass struct {
	d    *Driver
	pass vulkan.RenderPass
	att  []driver.Attachment
	// Whether the last attachment is depth/stencil.
	ds bool
}

// NewRenderPass creates a new render pass.
// It contains a single subpass that writes to every attachment.
func (d *Driver) NewRenderPass(att []driver.Attachment) (driver.RenderPass, error) {
	if len(att) == 0 {
		return nil, errors.New("vk: render pass with no attachments")
	}
	ds := att[len(att)-1].Format.IsDS()
	descs := make([]vulkan.AttachmentDescription, len(att))
	refs := make([]vulkan.AttachmentReference, len(att))
	for i, a := range att {
		f := convPixelFmt(a.Format)
		if f == vulkan.FormatUndefined {
			return nil, errUnsupportedFormat
		}
		if a.Format.IsDS() && i != len(att)-1 {
			return nil, errors.New("vk: depth/stencil attachment must be the last one")
		}
		optimal := vulkan.ImageLayoutColorAttachmentOptimal
		if a.Format.IsDS() {
			optimal = vulkan.ImageLayoutDepthStencilAttachmentOptimal
		}
		initial := vulkan.ImageLayoutUndefined
		if a.Load == driver.LLoad {
			initial = optimal
		}
		final := optimal
		if a.Final != driver.LUndefined {
			final = convLayout(a.Final)
		}
		descs[i] = vulkan.AttachmentDescription{
			Format:         f,
			Samples:        convSamples(a.Samples),
			LoadOp:         convLoadOp(a.Load),
			StoreOp:        convStoreOp(a.Store),
			StencilLoadOp:  convLoadOp(a.Load),
			StencilStoreOp: convStoreOp(a.Store),
			InitialLayout:  initial,
			FinalLayout:    final,
		}
		refs[i] = vulkan.AttachmentReference{
			Attachment: uint32(i),
			Layout:     optimal,
		}
	}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint: vulkan.PipelineBindPointGraphics,
	}
	if ds {
		subpass.ColorAttachmentCount = uint32(len(att) - 1)
		subpass.PColorAttachments = refs[:len(att)-1]
		subpass.PDepthStencilAttachment = &refs[len(att)-1]
	} else {
		subpass.ColorAttachmentCount = uint32(len(att))
		subpass.PColorAttachments = refs
	}
	info := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descs)),
		PAttachments:    descs,
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
	}
	var pass vulkan.RenderPass
	if err := checkResult(vulkan.CreateRenderPass(d.dev, &info, nil, &pass)); err != nil {
		return nil, err
	}
	return &renderPass{
		d:    d,
		pass: pass,
		att:  append([]driver.Attachment(nil), att...),
		ds:   ds,
	}, nil
}

// NewFB creates a new framebuffer.
func (p *renderPass) NewFB(iv []driver.ImageView, width, height int) (driver.Framebuf, error) {
	if len(iv) != len(p.att) {
		return nil, errors.New("vk: framebuffer/render pass attachment mismatch")
	}
	if width < 1 || height < 1 {
		return nil, errors.New("vk: invalid framebuffer size")
	}
	views := make([]vulkan.ImageView, len(iv))
	for i := range iv {
		views[i] = iv[i].(*imageView).view
	}
	info := vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      p.pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(width),
		Height:          uint32(height),
		Layers:          1,
	}
	var fb vulkan.Framebuffer
	if err := checkResult(vulkan.CreateFramebuffer(p.d.dev, &info, nil, &fb)); err != nil {
		return nil, err
	}
	return &framebuf{
		pass:   p,
		fb:     fb,
		width:  width,
		height: height,
	}, nil
}

// Destroy destroys the render pass.
func (p *renderPass) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		vulkan.DestroyRenderPass(p.d.dev, p.pass, nil)
	}
	*p = renderPass{}
}

// framebuf implements driver.Framebuf.
type framebuf struct {
	pass   *renderPass
	fb     vulkan.Framebuffer
	width  int
	height int
}

// Destroy destroys the framebuffer.
func (f *framebuf) Destroy() {
	if f == nil {
		return
	}
	if f.pass != nil && f.pass.d != nil {
		vulkan.DestroyFramebuffer(f.pass.d.dev, f.fb, nil)
	}
	*f = framebuf{}
}
