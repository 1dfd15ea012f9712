// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"time"

	"github.com/gviegas/rhi/driver"
)

// Limits of the simulated surface.
const (
	minImages = 2
	maxImages = 4
)

// Swapchain implements driver.Swapchain.
type Swapchain struct {
	g        *GPU
	id       uint64
	win      driver.Window
	n        int
	imgs     []driver.Image
	views    []driver.ImageView
	acquired []bool
	next     int
	outdated bool
	blocked  bool
	mode     driver.PresentMode
	timeout  time.Duration
}

// NewSwapchain creates a new swapchain in mailbox mode.
// imageCount is clamped to [2, 4].
func (g *GPU) NewSwapchain(win driver.Window, imageCount int) (driver.Swapchain, error) {
	return g.NewSwapchainMode(win, imageCount, driver.PresentMailbox)
}

// NewSwapchainMode creates a new swapchain.
// Every mode is supported.
func (g *GPU) NewSwapchainMode(win driver.Window, imageCount int, mode driver.PresentMode) (driver.Swapchain, error) {
	if win == nil {
		return nil, driver.ErrWindow
	}
	s := &Swapchain{
		g:    g,
		win:  win,
		n:    min(max(imageCount, minImages), maxImages),
		mode: mode,
	}
	if err := s.initViews(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s.id = g.newID(KSwapchain)
	return s, nil
}

func (s *Swapchain) initViews() error {
	w, h := s.win.Size()
	if w <= 0 || h <= 0 {
		return driver.ErrWindow
	}
	s.destroyViews()
	for range s.n {
		img, err := s.g.NewImage(s.Format(), driver.Dim3D{Width: w, Height: h}, 1, 1, 1, s.Usage())
		if err != nil {
			s.destroyViews()
			return err
		}
		iv, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
		if err != nil {
			img.Destroy()
			s.destroyViews()
			return err
		}
		s.imgs = append(s.imgs, img)
		s.views = append(s.views, iv)
	}
	s.acquired = make([]bool, s.n)
	s.next = 0
	return nil
}

func (s *Swapchain) destroyViews() {
	for i := range s.views {
		s.views[i].Destroy()
		s.imgs[i].Destroy()
	}
	s.views = s.views[:0]
	s.imgs = s.imgs[:0]
}

// Views returns the swapchain's image views.
func (s *Swapchain) Views() []driver.ImageView { return s.views }

// Next returns the index of the next writable image view.
func (s *Swapchain) Next(sem driver.Semaphore, timeout time.Duration) (int, error) {
	g := s.g
	g.mu.Lock()
	defer g.mu.Unlock()
	s.timeout = timeout
	switch {
	case g.lost:
		return -1, driver.ErrFatal
	case s.outdated:
		return -1, driver.ErrSwapchain
	case s.blocked:
		return -1, driver.ErrTimeout
	}
	for i := range s.n {
		idx := (s.next + i) % s.n
		if s.acquired[idx] {
			continue
		}
		s.acquired[idx] = true
		s.next = (idx + 1) % s.n
		if sem != nil {
			sem.(*Semaphore).count++
		}
		g.record(EvAcquire, KSwapchain, s.id, idx)
		return idx, nil
	}
	return -1, driver.ErrNoBackbuffer
}

// Present presents the image view identified by index.
func (s *Swapchain) Present(index int, wait []driver.Semaphore) error {
	g := s.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		return driver.ErrFatal
	}
	if index < 0 || index >= s.n || !s.acquired[index] {
		panic("null: Swapchain.Present called with image that was not acquired")
	}
	for _, x := range wait {
		if x.(*Semaphore).count == 0 {
			return errWaitSem
		}
	}
	for _, x := range wait {
		x.(*Semaphore).count--
	}
	s.acquired[index] = false
	if s.outdated {
		return driver.ErrSwapchain
	}
	g.record(EvPresent, KSwapchain, s.id, index)
	return nil
}

// Recreate recreates the swapchain.
func (s *Swapchain) Recreate() error {
	if err := s.initViews(); err != nil {
		return err
	}
	s.outdated = false
	return nil
}

// Invalidate makes the swapchain out of date, as if the
// window had been resized.
func (s *Swapchain) Invalidate() {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.outdated = true
}

// Block sets whether Next times out.
func (s *Swapchain) Block(blocked bool) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.blocked = blocked
}

// Timeout returns the timeout given to the last call
// to Next.
func (s *Swapchain) Timeout() time.Duration {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.timeout
}

// Mode returns the present mode.
func (s *Swapchain) Mode() driver.PresentMode { return s.mode }

// Format returns the image views' PixelFmt.
func (s *Swapchain) Format() driver.PixelFmt { return driver.BGRA8SRGB }

// Usage returns the image views' Usage.
func (s *Swapchain) Usage() driver.Usage { return driver.URenderTarget | driver.UCopySrc }

// Destroy destroys the swapchain.
func (s *Swapchain) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	s.destroyViews()
	s.g.destroy(KSwapchain, s.id)
	*s = Swapchain{}
}
