// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"
	"testing"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

func TestBuffer(t *testing.T) {
	checkDevice(t)
	cases := [...]struct {
		size    int64
		visible bool
		usage   driver.Usage
	}{
		{8192, true, driver.UShaderRead | driver.UShaderWrite | driver.UShaderConst | driver.UVertexData | driver.UIndexData},
		{512, true, 0},
		{16, true, driver.UShaderRead | driver.UShaderWrite},
		{1 << 20, false, driver.UGeneric},
		{1 << 20, false, driver.UShaderConst | driver.UVertexData | driver.UIndexData},
		{1 << 20, true, driver.UVertexData | driver.UIndexData},
		{1, true, driver.UGeneric},
	}
	for _, c := range cases {
		call := fmt.Sprintf("tDrv.NewBuffer(%d, %t, %d)", c.size, c.visible, c.usage)
		gb, err := tDrv.NewBuffer(c.size, c.visible, c.usage)
		if err != nil {
			if gb != nil {
				t.Errorf("%s\nhave %p, %v\nwant nil, %v", call, gb, err, err)
			} else {
				t.Logf("(error) %s: %v", call, err)
			}
			continue
		}
		b := gb.(*buffer)
		if b.m == nil {
			t.Errorf("%s: b.m\nhave nil\nwant non-nil", call)
			continue
		}
		if b.m.d != &tDrv {
			t.Errorf("%s: b.m.d\nhave %p\nwant %p", call, b.m.d, &tDrv)
		}
		// The size can be greater than what was requested.
		if b.m.size < c.size {
			t.Errorf("%s: b.m.size\nhave %d\nwant at least %d", call, b.m.size, c.size)
		}
		if b.m.vis != c.visible {
			t.Errorf("%s: b.m.vis\nhave %t\nwant %t", call, b.m.vis, c.visible)
		}
		if !b.m.bound {
			t.Errorf("%s: b.m.bound\nhave false\nwant true", call)
		}
		if b.m.typ < 0 || b.m.typ >= int(tDrv.mprop.MemoryTypeCount) {
			t.Errorf("%s: b.m.typ\nhave %d\nwant valid index", call, b.m.typ)
		} else {
			mt := tDrv.mprop.MemoryTypes[b.m.typ]
			mt.Deref()
			if b.m.heap != int(mt.HeapIndex) {
				t.Errorf("%s: b.m.heap\nhave %d\nwant %d", call, b.m.heap, mt.HeapIndex)
			}
			if tDrv.mused[b.m.heap] < b.m.size {
				t.Errorf("%s: tDrv.mused[%d]\nhave %d\nwant at least %d", call, b.m.heap, tDrv.mused[b.m.heap], b.m.size)
			}
		}
		// Bytes.
		p := b.Bytes()
		if c.visible {
			if int64(len(p)) != b.m.size {
				t.Errorf("b.Bytes(): len(p)\nhave %d\nwant %d", len(p), b.m.size)
			}
			// Mapping is persistent.
			if q := b.Bytes(); &p[0] != &q[0] {
				t.Errorf("b.Bytes()\nhave %p\nwant %p", &q[0], &p[0])
			}
			p[0] = 0xfe
			if b.Bytes()[0] != 0xfe {
				t.Errorf("b.Bytes()[0]\nhave %#x\nwant 0xfe", b.Bytes()[0])
			}
		} else if len(p) != 0 {
			t.Errorf("b.Bytes(): len(p)\nhave %d\nwant 0", len(p))
		}
		if v := b.Visible(); v != c.visible {
			t.Errorf("b.Visible()\nhave %t\nwant %t", v, c.visible)
		}
		if n := b.Cap(); n != b.m.size {
			t.Errorf("b.Cap()\nhave %d\nwant %d", n, b.m.size)
		}
		// Destroy.
		b.Destroy()
		if *b != (buffer{}) {
			t.Errorf("b.Destroy(): b\nhave %v\nwant buffer{}", b)
		}
	}
}

func TestCachedBuffer(t *testing.T) {
	checkDevice(t)
	gb, err := tDrv.NewCachedBuffer(1000, driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		t.Fatalf("tDrv.NewCachedBuffer\nhave %v\nwant nil", err)
	}
	b := gb.(*buffer)
	defer b.Destroy()
	if !b.m.vis {
		t.Fatal("tDrv.NewCachedBuffer: b.m.vis\nhave false\nwant true")
	}
	mt := tDrv.mprop.MemoryTypes[b.m.typ]
	mt.Deref()
	coh := mt.PropertyFlags&vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostCoherentBit) != 0
	if b.m.coh != coh {
		t.Errorf("tDrv.NewCachedBuffer: b.m.coh\nhave %t\nwant %t", b.m.coh, coh)
	}
	copy(b.Bytes(), "cached")
	if err := b.Flush(0, 6); err != nil {
		t.Errorf("b.Flush\nhave %v\nwant nil", err)
	}
	if err := b.Invalidate(0, b.m.size); err != nil {
		t.Errorf("b.Invalidate\nhave %v\nwant nil", err)
	}
	if s := string(b.Bytes()[:6]); s != "cached" {
		t.Errorf("b.Bytes()[:6]\nhave %q\nwant \"cached\"", s)
	}
}

func TestMemRange(t *testing.T) {
	d := &Driver{atom: 64}
	b := &buffer{m: &memory{d: d, size: 256, vis: true}}
	cases := [...]struct {
		off, size   int64
		start, want int64
	}{
		{0, 256, 0, 256},
		{70, 10, 64, 64},
		{64, 64, 64, 64},
		{200, 50, 192, 64},
		{1, 255, 0, 256},
	}
	for _, c := range cases {
		r, ok := b.memRange(c.off, c.size)
		if !ok || len(r) != 1 {
			t.Fatalf("b.memRange(%d, %d)\nhave %v, %t\nwant one range", c.off, c.size, r, ok)
		}
		if r[0].Offset != vulkan.DeviceSize(c.start) || r[0].Size != vulkan.DeviceSize(c.want) {
			t.Errorf("b.memRange(%d, %d)\nhave [%d, +%d)\nwant [%d, +%d)", c.off, c.size, r[0].Offset, r[0].Size, c.start, c.want)
		}
	}
	if _, ok := b.memRange(0, 0); ok {
		t.Error("b.memRange(0, 0)\nhave true\nwant false")
	}
	b.m.coh = true
	if _, ok := b.memRange(0, 64); ok {
		t.Error("b.memRange (coherent)\nhave true\nwant false")
	}
}
