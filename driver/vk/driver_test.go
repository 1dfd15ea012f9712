// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"slices"
	"testing"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

func TestOpen(t *testing.T) {
	d := Driver{}
	gpu, err := d.Open()
	defer d.Close()
	if err != nil {
		if !isError(err, driver.ErrNotInstalled, driver.ErrNoDevice) {
			t.Logf("d.Open(): unexpected error: %v", err)
		}
		if d.inst != nil || d.dev != nil {
			t.Error("d.Open(): Driver\nhave non-zero\nwant Driver{}")
		}
		if gpu != nil {
			t.Error("d.Open(): GPU\nhave non-nil\nwant nil")
		}
		t.Skip("d.Open failed, cannot test open driver")
	}
	if d.inst == nil {
		t.Error("d.Open(): d.inst\nhave nil\nwant non-nil")
	}
	if d.ivers == 0 {
		t.Error("d.Open(): d.ivers\nhave 0\nwant > 0")
	}
	if d.pdev == nil {
		t.Error("d.Open(): d.pdev\nhave nil\nwant non-nil")
	}
	if d.dvers == 0 {
		t.Error("d.Open(): d.dvers\nhave 0\nwant > 0")
	}
	if d.dev == nil {
		t.Error("d.Open(): d.dev\nhave nil\nwant non-nil")
	}
	if d.que == nil {
		t.Error("d.Open(): d.que\nhave nil\nwant non-nil")
	}
	if len(d.mused) == 0 {
		t.Error("d.Open(): len(d.mused)\nhave 0\nwant > 0")
	}
	if x, ok := gpu.(*Driver); !ok || x != &d {
		t.Errorf("d.Open(): GPU\nhave %p\nwant %p", gpu, &d)
	}
	// Subsequent calls to Open should return the same GPU and not fail.
	if g, e := d.Open(); g != gpu || e != nil {
		t.Errorf("d.Open()\nhave %p, %v\nwant %p, nil", g, e, gpu)
	}
	if lim := d.Limits(); lim.MaxImage2D == 0 || lim.MaxDescHeaps == 0 {
		t.Errorf("d.Limits()\nhave %+v\nwant non-zero limits", lim)
	}
}

func TestName(t *testing.T) {
	// Name should not require an open driver.
	d := &Driver{}
	if s := d.Name(); s != "vulkan" {
		t.Errorf("d.Name()\nhave %s\nwant vulkan", s)
	}
	// Name should not require a valid driver.
	d = nil
	defer func() {
		if x := recover(); x != nil {
			t.Errorf("unexpected panic: %v", x)
		}
	}()
	if s := d.Name(); s != "vulkan" {
		t.Errorf("d.Name()\nhave %s\nwant vulkan", s)
	}
}

func TestClose(t *testing.T) {
	// Close should not require an open driver.
	d := Driver{}
	d.Close()
	var nd *Driver
	nd.Close()
	if _, err := d.Open(); err != nil {
		t.Skip("d.Open() failed, cannot test Close method with open driver")
	}
	d.Close()
	if d.inst != nil || d.dev != nil {
		t.Error("d.Close(): Driver\nhave non-zero\nwant Driver{}")
	}
}

func TestDriver(t *testing.T) {
	var d *Driver
	if x, ok := d.Driver().(*Driver); !ok || x != nil {
		t.Errorf("d.Driver()\nhave %#v\nwant %#v", x, (*Driver)(nil))
	}
	d = new(Driver)
	if x := d.Driver(); x != d {
		t.Errorf("d.Driver()\nhave %p\nwant %p", x, d)
	}
}

func TestRegistered(t *testing.T) {
	var found bool
	for _, d := range driver.Drivers() {
		if d.Name() == driverName {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("driver.Drivers()\nhave no %q driver\nwant registered", driverName)
	}
}

func TestSelectInstanceExts(t *testing.T) {
	cases := [...]struct {
		avail []string
		want  []string
		exts  []ext
	}{
		{nil, nil, nil},
		{[]string{"VK_KHR_xcb_surface"}, nil, nil},
		{
			[]string{"VK_KHR_surface", "VK_KHR_xcb_surface", "VK_EXT_debug_utils"},
			[]string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00"},
			[]ext{extSurface, extXCBSurface},
		},
		{
			[]string{"VK_KHR_wayland_surface", "VK_KHR_surface"},
			[]string{"VK_KHR_surface\x00", "VK_KHR_wayland_surface\x00"},
			[]ext{extSurface, extWaylandSurface},
		},
		{
			[]string{"VK_KHR_swapchain", "VK_KHR_surface"},
			[]string{"VK_KHR_surface\x00"},
			[]ext{extSurface},
		},
	}
	for _, c := range cases {
		var d Driver
		names := d.selectInstanceExts(c.avail)
		if !slices.Equal(names, c.want) {
			t.Errorf("d.selectInstanceExts(%q)\nhave %q\nwant %q", c.avail, names, c.want)
		}
		for e := ext(0); e < extN; e++ {
			if have, want := d.exts[e], slices.Contains(c.exts, e); have != want {
				t.Errorf("d.selectInstanceExts(%q): d.exts[%s]\nhave %t\nwant %t", c.avail, e.name(), have, want)
			}
		}
	}
}

func TestCheckResult(t *testing.T) {
	cases := [...]struct {
		res  vulkan.Result
		want error
	}{
		{vulkan.Success, nil},
		{vulkan.NotReady, nil},
		{vulkan.Timeout, nil},
		{vulkan.Incomplete, nil},
		{vulkan.ErrorOutOfHostMemory, driver.ErrNoHostMemory},
		{vulkan.ErrorOutOfDeviceMemory, driver.ErrNoDeviceMemory},
		{vulkan.ErrorDeviceLost, driver.ErrFatal},
		{vulkan.ErrorOutOfDate, driver.ErrSwapchain},
		{vulkan.ErrorFormatNotSupported, errUnsupportedFormat},
		{vulkan.ErrorIncompatibleDriver, errDriverCompat},
		{vulkan.Result(-12345), errUnknown},
	}
	for _, c := range cases {
		err := checkResult(c.res)
		switch {
		case c.want == nil:
			if err != nil {
				t.Errorf("checkResult(%d)\nhave %v\nwant nil", c.res, err)
			}
		case !errors.Is(err, c.want):
			t.Errorf("checkResult(%d)\nhave %v\nwant %v", c.res, err, c.want)
		}
	}
}

func TestVersion(t *testing.T) {
	cases := [...]struct {
		v                   uint32
		major, minor, patch int
	}{
		{vulkan.MakeVersion(1, 0, 0), 1, 0, 0},
		{vulkan.MakeVersion(1, 1, 0), 1, 1, 0},
		{vulkan.MakeVersion(1, 3, 275), 1, 3, 275},
	}
	for _, c := range cases {
		if x := versionMajor(c.v); x != c.major {
			t.Errorf("versionMajor(%#x)\nhave %d\nwant %d", c.v, x, c.major)
		}
		if x := versionMinor(c.v); x != c.minor {
			t.Errorf("versionMinor(%#x)\nhave %d\nwant %d", c.v, x, c.minor)
		}
		if x := versionPatch(c.v); x != c.patch {
			t.Errorf("versionPatch(%#x)\nhave %d\nwant %d", c.v, x, c.patch)
		}
		if isVariant(c.v) {
			t.Errorf("isVariant(%#x)\nhave true\nwant false", c.v)
		}
	}
	if !isVariant(1 << 29) {
		t.Error("isVariant(1 << 29)\nhave false\nwant true")
	}
}

func TestMemSanity(t *testing.T) {
	checkDevice(t)
	for i, n := range tDrv.mused {
		if n != 0 {
			t.Errorf("tDrv.mused[%d]\nhave %d\nwant 0", i, n)
		}
	}
}
