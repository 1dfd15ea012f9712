// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"errors"

	"github.com/gogpu/gputypes"

	"github.com/gviegas/rhi/driver"
)

// renderPass implements driver.RenderPass.
// HAL render passes are described at recording time, so
// this type only holds the attachment descriptions.
type renderPass struct {
	g   *GPU
	att []driver.Attachment
	// Whether the last attachment is depth/stencil.
	ds bool
}

// NewRenderPass creates a new render pass.
func (g *GPU) NewRenderPass(att []driver.Attachment) (driver.RenderPass, error) {
	if len(att) == 0 {
		return nil, errors.New("wgpu: render pass with no attachments")
	}
	for _, a := range att {
		if convPixelFmt(a.Format) == gputypes.TextureFormatUndefined {
			return nil, errors.New("wgpu: unsupported attachment format")
		}
	}
	return &renderPass{
		g:   g,
		att: append([]driver.Attachment(nil), att...),
		ds:  att[len(att)-1].Format.IsDS(),
	}, nil
}

// colorAttachments returns the color attachments.
func (p *renderPass) colorAttachments() []driver.Attachment {
	if p.ds {
		return p.att[:len(p.att)-1]
	}
	return p.att
}

// NewFB creates a new framebuffer.
func (p *renderPass) NewFB(iv []driver.ImageView, width, height int) (driver.Framebuf, error) {
	if len(iv) != len(p.att) {
		return nil, errors.New("wgpu: framebuffer/render pass attachment mismatch")
	}
	views := make([]*imageView, len(iv))
	for i := range iv {
		views[i] = iv[i].(*imageView)
	}
	return &framebuf{pass: p, views: views, width: width, height: height}, nil
}

// Destroy is a no-op.
func (p *renderPass) Destroy() {}

// framebuf implements driver.Framebuf.
type framebuf struct {
	pass   *renderPass
	views  []*imageView
	width  int
	height int
}

// Destroy is a no-op.
func (f *framebuf) Destroy() {}
