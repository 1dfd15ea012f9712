// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"github.com/goki/vulkan"
)

// ext identifies an extension.
type ext int

const (
	// Instance extensions.
	extSurface ext = iota
	extAndroidSurface
	extWaylandSurface
	extWin32Surface
	extXCBSurface
	extXlibSurface
	extMetalSurface

	// Device extensions.
	extSwapchain

	extN
)

var extNames = [extN]string{
	extSurface:        "VK_KHR_surface",
	extAndroidSurface: "VK_KHR_android_surface",
	extWaylandSurface: "VK_KHR_wayland_surface",
	extWin32Surface:   "VK_KHR_win32_surface",
	extXCBSurface:     "VK_KHR_xcb_surface",
	extXlibSurface:    "VK_KHR_xlib_surface",
	extMetalSurface:   "VK_EXT_metal_surface",
	extSwapchain:      "VK_KHR_swapchain",
}

// name returns the extension name.
func (e ext) name() string { return extNames[e] }

// instanceExts returns a list containing the names of all instance extensions
// advertised by the Vulkan implementation.
func instanceExts() ([]string, error) {
	var n uint32
	if err := checkResult(vulkan.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	props := make([]vulkan.ExtensionProperties, n)
	if err := checkResult(vulkan.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return nil, err
	}
	exts := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		exts = append(exts, vulkan.ToString(p.ExtensionName[:]))
	}
	return exts, nil
}

// deviceExts returns a list containing the names of all device extensions
// advertised by the Vulkan implementation.
func deviceExts(pdev vulkan.PhysicalDevice) ([]string, error) {
	if pdev == nil {
		panic("vk.deviceExts called with nil physical device")
	}
	var n uint32
	if err := checkResult(vulkan.EnumerateDeviceExtensionProperties(pdev, "", &n, nil)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	props := make([]vulkan.ExtensionProperties, n)
	if err := checkResult(vulkan.EnumerateDeviceExtensionProperties(pdev, "", &n, props)); err != nil {
		return nil, err
	}
	exts := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		exts = append(exts, vulkan.ToString(p.ExtensionName[:]))
	}
	return exts, nil
}

// selectInstanceExts marks in d.exts the instance extensions
// found in avail and returns their null-terminated names.
// Surface extensions are optional, so missing ones are
// simply left disabled.
func (d *Driver) selectInstanceExts(avail []string) []string {
	var names []string
	for e := extSurface; e < extSwapchain; e++ {
		for _, a := range avail {
			if a == e.name() {
				d.exts[e] = true
				names = append(names, e.name()+"\x00")
				break
			}
		}
	}
	if !d.exts[extSurface] {
		// Platform surfaces are useless without it.
		for e := extSurface + 1; e < extSwapchain; e++ {
			d.exts[e] = false
		}
		return nil
	}
	return names
}
