// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"
	"testing"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

func TestImage(t *testing.T) {
	checkDevice(t)
	cases := [...]struct {
		pf      driver.PixelFmt
		size    driver.Dim3D
		layers  int
		levels  int
		samples int
		usage   driver.Usage
		cube    bool
	}{
		{driver.RGBA8Unorm, driver.Dim3D{Width: 1024, Height: 1024}, 1, 11, 1, driver.UShaderSample, false},
		{driver.RGBA8SRGB, driver.Dim3D{Width: 512, Height: 512}, 6, 1, 1, driver.UShaderSample, true},
		{driver.BGRA8Unorm, driver.Dim3D{Width: 480, Height: 270}, 1, 1, 1, driver.URenderTarget, false},
		{driver.RGBA16Float, driver.Dim3D{Width: 64, Height: 64, Depth: 64}, 1, 1, 1, driver.UShaderSample, false},
		{driver.D16Unorm, driver.Dim3D{Width: 800, Height: 600}, 1, 1, 1, driver.URenderTarget, false},
		{driver.D32Float, driver.Dim3D{Width: 800, Height: 600}, 1, 1, 4, driver.URenderTarget, false},
		{driver.R32Float, driver.Dim3D{Width: 256, Height: 256}, 4, 1, 1, driver.UShaderRead | driver.UShaderWrite, false},
	}
	for _, c := range cases {
		call := fmt.Sprintf("tDrv.NewImage(%d, %v, %d, %d, %d, %d)", c.pf, c.size, c.layers, c.levels, c.samples, c.usage)
		gi, err := tDrv.NewImage(c.pf, c.size, c.layers, c.levels, c.samples, c.usage)
		if err != nil {
			if gi != nil {
				t.Errorf("%s\nhave %p, %v\nwant nil, %v", call, gi, err, err)
			} else {
				t.Logf("(error) %s: %v", call, err)
			}
			continue
		}
		im := gi.(*image)
		if im.m == nil || !im.m.bound {
			t.Errorf("%s: im.m\nhave %v\nwant bound memory", call, im.m)
		}
		if im.pf != c.pf {
			t.Errorf("%s: im.pf\nhave %d\nwant %d", call, im.pf, c.pf)
		}
		if im.fmt != convPixelFmt(c.pf) {
			t.Errorf("%s: im.fmt\nhave %d\nwant %d", call, im.fmt, convPixelFmt(c.pf))
		}
		if im.subres.AspectMask != aspectOf(c.pf) {
			t.Errorf("%s: im.subres.AspectMask\nhave %d\nwant %d", call, im.subres.AspectMask, aspectOf(c.pf))
		}
		if im.subres.LayerCount != uint32(c.layers) || im.subres.LevelCount != uint32(c.levels) {
			t.Errorf("%s: im.subres\nhave %d layers, %d levels\nwant %d, %d", call, im.subres.LayerCount, im.subres.LevelCount, c.layers, c.levels)
		}
		typ := driver.IView2D
		switch {
		case c.cube:
			typ = driver.IViewCube
		case c.size.Depth > 1:
			typ = driver.IView3D
		case c.layers > 1:
			typ = driver.IView2DArray
		}
		gv, err := im.NewView(typ, 0, c.layers, 0, c.levels)
		if err != nil {
			t.Errorf("im.NewView(%d, 0, %d, 0, %d)\nhave %v\nwant nil", typ, c.layers, c.levels, err)
		} else {
			v := gv.(*imageView)
			if v.i != im {
				t.Errorf("im.NewView: v.i\nhave %p\nwant %p", v.i, im)
			}
			if v.Image() != gi {
				t.Errorf("v.Image()\nhave %p\nwant %p", v.Image(), gi)
			}
			v.Destroy()
			if *v != (imageView{}) {
				t.Errorf("v.Destroy(): v\nhave %v\nwant imageView{}", v)
			}
		}
		// Out of bounds.
		if gv, err := im.NewView(driver.IView2D, c.layers, 1, 0, 1); err == nil {
			gv.Destroy()
			t.Errorf("im.NewView(IView2D, %d, 1, 0, 1)\nhave nil error\nwant non-nil", c.layers)
		}
		if gv, err := im.NewView(driver.IView2D, 0, 1, c.levels, 1); err == nil {
			gv.Destroy()
			t.Errorf("im.NewView(IView2D, 0, 1, %d, 1)\nhave nil error\nwant non-nil", c.levels)
		}
		im.Destroy()
		if *im != (image{}) {
			t.Errorf("im.Destroy(): im\nhave %v\nwant image{}", im)
		}
	}
}

func TestImageNoUsage(t *testing.T) {
	checkDevice(t)
	if im, err := tDrv.NewImage(driver.RGBA8Unorm, driver.Dim3D{Width: 16, Height: 16}, 1, 1, 1, 0); err == nil {
		im.Destroy()
		t.Error("tDrv.NewImage(..., 0)\nhave nil error\nwant non-nil")
	}
	if im, err := tDrv.NewImage(driver.FInvalid, driver.Dim3D{Width: 16, Height: 16}, 1, 1, 1, driver.UShaderSample); err == nil {
		im.Destroy()
		t.Error("tDrv.NewImage(FInvalid, ...)\nhave nil error\nwant non-nil")
	} else if !isError(err, errUnsupportedFormat) {
		t.Errorf("tDrv.NewImage(FInvalid, ...)\nhave %v\nwant %v", err, errUnsupportedFormat)
	}
}

func TestPixelFmt(t *testing.T) {
	pfs := [...]driver.PixelFmt{
		driver.RGBA8Unorm,
		driver.RGBA8SRGB,
		driver.BGRA8Unorm,
		driver.BGRA8SRGB,
		driver.RG8Unorm,
		driver.R8Unorm,
		driver.RGBA16Float,
		driver.RGBA32Float,
		driver.R32Float,
		driver.D16Unorm,
		driver.D32Float,
		driver.D24UnormS8Uint,
	}
	seen := make(map[vulkan.Format]driver.PixelFmt)
	for _, pf := range pfs {
		f := convPixelFmt(pf)
		if f == vulkan.FormatUndefined {
			t.Errorf("convPixelFmt(%d)\nhave FormatUndefined\nwant valid format", pf)
			continue
		}
		if x, ok := seen[f]; ok {
			t.Errorf("convPixelFmt(%d)\nhave %d\nwant distinct from convPixelFmt(%d)", pf, f, x)
		}
		seen[f] = pf
		if x := pixelFmtOf(f); x != pf {
			t.Errorf("pixelFmtOf(%d)\nhave %d\nwant %d", f, x, pf)
		}
	}
	if f := convPixelFmt(driver.FInvalid); f != vulkan.FormatUndefined {
		t.Errorf("convPixelFmt(FInvalid)\nhave %d\nwant FormatUndefined", f)
	}
	if pf := pixelFmtOf(vulkan.FormatR64Sfloat); pf != driver.FInvalid {
		t.Errorf("pixelFmtOf(FormatR64Sfloat)\nhave %d\nwant FInvalid", pf)
	}
}

func TestAspectOf(t *testing.T) {
	color := vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
	depth := vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
	stencil := vulkan.ImageAspectFlags(vulkan.ImageAspectStencilBit)
	cases := [...]struct {
		pf   driver.PixelFmt
		want vulkan.ImageAspectFlags
	}{
		{driver.FInvalid, 0},
		{driver.RGBA8Unorm, color},
		{driver.R32Float, color},
		{driver.D16Unorm, depth},
		{driver.D32Float, depth},
		{driver.D24UnormS8Uint, depth | stencil},
	}
	for _, c := range cases {
		if x := aspectOf(c.pf); x != c.want {
			t.Errorf("aspectOf(%d)\nhave %d\nwant %d", c.pf, x, c.want)
		}
	}
}

func TestConvSamples(t *testing.T) {
	cases := [...]struct {
		n    int
		want vulkan.SampleCountFlagBits
	}{
		{0, vulkan.SampleCount1Bit},
		{1, vulkan.SampleCount1Bit},
		{2, vulkan.SampleCount2Bit},
		{4, vulkan.SampleCount4Bit},
		{8, vulkan.SampleCount8Bit},
		{16, vulkan.SampleCount16Bit},
		{3, vulkan.SampleCount1Bit},
	}
	for _, c := range cases {
		if x := convSamples(c.n); x != c.want {
			t.Errorf("convSamples(%d)\nhave %d\nwant %d", c.n, x, c.want)
		}
	}
}
