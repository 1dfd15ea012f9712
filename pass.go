// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"fmt"

	"github.com/gviegas/rhi/driver"
)

// attKey identifies a color attachment of a render pass.
type attKey struct {
	format driver.PixelFmt
	load   driver.LoadOp
	store  driver.StoreOp
	final  driver.Layout
}

// passKey identifies a render pass in the device's cache.
// Pipelines are created against a pass with matching
// formats and sample count, which every pass that differs
// only in load/store operations is compatible with.
type passKey struct {
	samples int
	color   []attKey
	depth   driver.PixelFmt
	dload   driver.LoadOp
	dstore  driver.StoreOp
	dfinal  driver.Layout
}

func (k *passKey) String() string {
	return fmt.Sprintf("%d%v|%d,%d,%d,%d", k.samples, k.color, k.depth, k.dload, k.dstore, k.dfinal)
}

func (k *passKey) attachments() []driver.Attachment {
	att := make([]driver.Attachment, 0, len(k.color)+1)
	for _, c := range k.color {
		att = append(att, driver.Attachment{
			Format:  c.format,
			Samples: k.samples,
			Load:    c.load,
			Store:   c.store,
			Final:   c.final,
		})
	}
	if k.depth != driver.FInvalid {
		att = append(att, driver.Attachment{
			Format:  k.depth,
			Samples: k.samples,
			Load:    k.dload,
			Store:   k.dstore,
			Final:   k.dfinal,
		})
	}
	return att
}

// renderPass returns the cached render pass for k,
// creating it if needed.
// Render passes live as long as the device.
func (d *Device) renderPass(k *passKey) (driver.RenderPass, error) {
	s := k.String()
	if rp, ok := d.passes[s]; ok {
		return rp, nil
	}
	rp, err := d.gpu.NewRenderPass(k.attachments())
	if err != nil {
		return nil, err
	}
	d.passes[s] = rp
	d.log.Debug("render pass created", "key", s, "count", len(d.passes))
	return rp, nil
}
