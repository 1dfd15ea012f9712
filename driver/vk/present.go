// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"sync"
	"time"
	"unsafe"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// surfaceCreator is the interface that a driver.Window must
// implement to be presentable through this driver.
// It matches the method that GLFW windows provide.
type surfaceCreator interface {
	CreateWindowSurface(instance any, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// swapchain implements driver.Swapchain.
type swapchain struct {
	d     *Driver
	win   driver.Window
	sf    vulkan.Surface
	sc    vulkan.Swapchain
	pf    driver.PixelFmt
	fmt   vulkan.SurfaceFormat
	usg   driver.Usage
	mode  driver.PresentMode
	imgs  []*image
	views []driver.ImageView
	mu    sync.Mutex

	// The number of images that can be acquired at once is
	// given by 1 + len(views) - minImg.
	// curImg counts the images acquired and not yet presented.
	minImg int
	curImg int
	nimg   int

	// Set when the swapchain must be recreated.
	broken bool
}

// NewSwapchain creates a new swapchain.
// It uses mailbox presentation when available.
func (d *Driver) NewSwapchain(win driver.Window, imageCount int) (driver.Swapchain, error) {
	return d.NewSwapchainMode(win, imageCount, driver.PresentMailbox)
}

// NewSwapchainMode creates a new swapchain.
func (d *Driver) NewSwapchainMode(win driver.Window, imageCount int, mode driver.PresentMode) (driver.Swapchain, error) {
	if !d.exts[extSwapchain] {
		return nil, driver.ErrCannotPresent
	}
	sc, ok := win.(surfaceCreator)
	if !ok {
		return nil, driver.ErrWindow
	}
	p, err := sc.CreateWindowSurface(d.inst, nil)
	if err != nil {
		return nil, errors.Join(driver.ErrWindow, err)
	}
	sf := vulkan.SurfaceFromPointer(p)
	var sup vulkan.Bool32
	err = checkResult(vulkan.GetPhysicalDeviceSurfaceSupport(d.pdev, d.qfam, sf, &sup))
	if err == nil && sup != vulkan.True {
		err = driver.ErrCannotPresent
	}
	if err != nil {
		vulkan.DestroySurface(d.inst, sf, nil)
		return nil, err
	}
	s := &swapchain{
		d:    d,
		win:  win,
		sf:   sf,
		nimg: imageCount,
		mode: mode,
	}
	if err = s.initSwapchain(vulkan.Swapchain(vulkan.NullHandle)); err != nil {
		vulkan.DestroySurface(d.inst, sf, nil)
		return nil, err
	}
	return s, nil
}

// chooseFormat selects a surface format.
// 8-bit BGRA formats are preferred.
func chooseFormat(fmts []vulkan.SurfaceFormat) (vulkan.SurfaceFormat, bool) {
	for _, want := range [...]driver.PixelFmt{driver.BGRA8SRGB, driver.BGRA8Unorm, driver.RGBA8SRGB, driver.RGBA8Unorm} {
		for _, f := range fmts {
			if f.Format == convPixelFmt(want) {
				return f, true
			}
		}
	}
	for _, f := range fmts {
		if pixelFmtOf(f.Format) != driver.FInvalid {
			return f, true
		}
	}
	return vulkan.SurfaceFormat{}, false
}

// presentMode returns the VkPresentModeKHR to use.
// FIFO support is required, so it is the fallback.
func (s *swapchain) presentMode() vulkan.PresentMode {
	if s.mode != driver.PresentMailbox {
		return vulkan.PresentModeFifo
	}
	var n uint32
	if checkResult(vulkan.GetPhysicalDeviceSurfacePresentModes(s.d.pdev, s.sf, &n, nil)) != nil || n == 0 {
		return vulkan.PresentModeFifo
	}
	modes := make([]vulkan.PresentMode, n)
	if checkResult(vulkan.GetPhysicalDeviceSurfacePresentModes(s.d.pdev, s.sf, &n, modes)) != nil {
		return vulkan.PresentModeFifo
	}
	for _, m := range modes[:n] {
		if m == vulkan.PresentModeMailbox {
			return m
		}
	}
	return vulkan.PresentModeFifo
}

// initSwapchain creates the swapchain and its views.
// old is retired by the new swapchain.
func (s *swapchain) initSwapchain(old vulkan.Swapchain) error {
	d := s.d
	var capab vulkan.SurfaceCapabilities
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceCapabilities(d.pdev, s.sf, &capab)); err != nil {
		return err
	}
	capab.Deref()
	capab.CurrentExtent.Deref()
	capab.MinImageExtent.Deref()
	capab.MaxImageExtent.Deref()

	var n uint32
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceFormats(d.pdev, s.sf, &n, nil)); err != nil {
		return err
	}
	fmts := make([]vulkan.SurfaceFormat, n)
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceFormats(d.pdev, s.sf, &n, fmts)); err != nil {
		return err
	}
	for i := range fmts {
		fmts[i].Deref()
	}
	sfmt, ok := chooseFormat(fmts[:n])
	if !ok {
		return errUnsupportedFormat
	}

	extent := capab.CurrentExtent
	if extent.Width == ^uint32(0) {
		w, h := s.win.Size()
		extent.Width = min(max(uint32(w), capab.MinImageExtent.Width), capab.MaxImageExtent.Width)
		extent.Height = min(max(uint32(h), capab.MinImageExtent.Height), capab.MaxImageExtent.Height)
	}
	if extent.Width == 0 || extent.Height == 0 {
		return driver.ErrWindow
	}

	count := max(uint32(s.nimg), capab.MinImageCount)
	if capab.MaxImageCount > 0 {
		count = min(count, capab.MaxImageCount)
	}

	usage := vulkan.ImageUsageColorAttachmentBit
	usg := driver.URenderTarget
	if vulkan.ImageUsageFlagBits(capab.SupportedUsageFlags)&vulkan.ImageUsageTransferDstBit != 0 {
		usage |= vulkan.ImageUsageTransferDstBit
		usg |= driver.UCopyDst
	}

	composite := vulkan.CompositeAlphaOpaqueBit
	if vulkan.CompositeAlphaFlagBits(capab.SupportedCompositeAlpha)&composite == 0 {
		composite = vulkan.CompositeAlphaInheritBit
	}

	info := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          s.sf,
		MinImageCount:    count,
		ImageFormat:      sfmt.Format,
		ImageColorSpace:  sfmt.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(usage),
		ImageSharingMode: vulkan.SharingModeExclusive,
		PreTransform:     capab.CurrentTransform,
		CompositeAlpha:   composite,
		PresentMode:      s.presentMode(),
		Clipped:          vulkan.True,
		OldSwapchain:     old,
	}
	var sc vulkan.Swapchain
	if err := checkResult(vulkan.CreateSwapchain(d.dev, &info, nil, &sc)); err != nil {
		return err
	}

	n = 0
	if err := checkResult(vulkan.GetSwapchainImages(d.dev, sc, &n, nil)); err != nil {
		vulkan.DestroySwapchain(d.dev, sc, nil)
		return err
	}
	imgs := make([]vulkan.Image, n)
	if err := checkResult(vulkan.GetSwapchainImages(d.dev, sc, &n, imgs)); err != nil {
		vulkan.DestroySwapchain(d.dev, sc, nil)
		return err
	}

	pf := pixelFmtOf(sfmt.Format)
	s.imgs = make([]*image, n)
	s.views = make([]driver.ImageView, n)
	for i := range imgs[:n] {
		s.imgs[i] = &image{
			d:   d,
			img: imgs[i],
			pf:  pf,
			fmt: sfmt.Format,
			subres: vulkan.ImageSubresourceRange{
				AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		v, err := s.imgs[i].NewView(driver.IView2D, 0, 1, 0, 1)
		if err != nil {
			for _, v := range s.views[:i] {
				v.Destroy()
			}
			vulkan.DestroySwapchain(d.dev, sc, nil)
			return err
		}
		s.views[i] = v
	}
	s.sc = sc
	s.pf = pf
	s.fmt = sfmt
	s.usg = usg
	s.minImg = int(capab.MinImageCount)
	s.curImg = 0
	s.broken = false
	return nil
}

// Views returns the list of image views that comprises
// the swapchain.
func (s *swapchain) Views() []driver.ImageView { return s.views }

// Next returns the index of the next writable image view.
func (s *swapchain) Next(sem driver.Semaphore, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return -1, driver.ErrSwapchain
	}
	if s.curImg > len(s.views)-s.minImg {
		return -1, driver.ErrNoBackbuffer
	}
	ns := uint64(vulkan.MaxUint64)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	vsem := vulkan.Semaphore(vulkan.NullHandle)
	if sem != nil {
		vsem = sem.(*semaphore).sem
	}
	var idx uint32
	res := vulkan.AcquireNextImage(s.d.dev, s.sc, ns, vsem, vulkan.NullFence, &idx)
	switch res {
	case vulkan.Success, vulkan.Suboptimal:
	case vulkan.Timeout, vulkan.NotReady:
		return -1, driver.ErrTimeout
	case vulkan.ErrorOutOfDate:
		s.broken = true
		return -1, driver.ErrSwapchain
	default:
		return -1, checkResult(res)
	}
	s.curImg++
	return int(idx), nil
}

// Present presents the image view identified by index.
func (s *swapchain) Present(index int, wait []driver.Semaphore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.views) {
		return errors.New("vk: swapchain view index out of bounds")
	}
	sems := make([]vulkan.Semaphore, len(wait))
	for i := range wait {
		sems[i] = wait[i].(*semaphore).sem
	}
	info := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{s.sc},
		PImageIndices:      []uint32{uint32(index)},
	}
	s.d.qmu.Lock()
	res := vulkan.QueuePresent(s.d.que, &info)
	s.d.qmu.Unlock()
	if s.curImg > 0 {
		s.curImg--
	}
	switch res {
	case vulkan.Success:
		return nil
	case vulkan.Suboptimal, vulkan.ErrorOutOfDate:
		s.broken = true
		return driver.ErrSwapchain
	}
	return checkResult(res)
}

// destroyViews destroys the swapchain views.
func (s *swapchain) destroyViews() {
	for _, v := range s.views {
		v.Destroy()
	}
	s.views = nil
	s.imgs = nil
}

// Recreate recreates the swapchain.
// Every image must have been presented.
func (s *swapchain) Recreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.d.WaitIdle(); err != nil {
		return err
	}
	old := s.sc
	s.destroyViews()
	err := s.initSwapchain(old)
	vulkan.DestroySwapchain(s.d.dev, old, nil)
	if err != nil {
		s.sc = vulkan.Swapchain(vulkan.NullHandle)
		s.broken = true
	}
	return err
}

// Format returns the image views' driver.PixelFmt.
func (s *swapchain) Format() driver.PixelFmt { return s.pf }

// Usage returns the image views' driver.Usage.
func (s *swapchain) Usage() driver.Usage { return s.usg }

// Destroy destroys the swapchain.
func (s *swapchain) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		s.d.WaitIdle()
		s.destroyViews()
		if s.sc != vulkan.Swapchain(vulkan.NullHandle) {
			vulkan.DestroySwapchain(s.d.dev, s.sc, nil)
		}
		vulkan.DestroySurface(s.d.inst, s.sf, nil)
	}
	*s = swapchain{}
}
