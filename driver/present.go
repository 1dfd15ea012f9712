// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"time"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrWindow represents an error related to a specific window.
// This error usually indicates that a window misconfiguration
// is preventing correct operation. For instance, the driver
// may require a visible window to create a swapchain.
var ErrWindow = errors.New("driver: window-related error")

// ErrSwapchain represents an error related to a specific
// swapchain.
// This error usually indicates that changes to the window or
// compositor made the swapchain unusable (i.e., it is out of
// date). Calling Recreate on the swapchain recovers from it.
var ErrSwapchain = errors.New("driver: swapchain-related error")

// ErrNoBackbuffer means that all available backbuffers
// were acquired.
// Backbuffers are released during presentation.
var ErrNoBackbuffer = errors.New("driver: all backbuffers in use")

// Window is the interface that a presentable surface must
// implement.
// Drivers may require additional methods, which they
// discover through type assertions.
type Window interface {
	// Size returns the current size of the window's
	// drawable area in pixels.
	Size() (width, height int)
}

// Presenter is the interface that a GPU may implement
// to enable presentation on a display.
type Presenter interface {
	// NewSwapchain creates a new swapchain.
	// Only one swapchain can be associated with a specific
	// Window at a time.
	// imageCount is a hint: the driver clamps it to the
	// limits of the surface.
	NewSwapchain(win Window, imageCount int) (Swapchain, error)
}

// PresentMode selects how presented images are queued.
type PresentMode int

// Present modes.
const (
	// PresentFIFO queues presented images and waits for
	// vertical blanking.
	PresentFIFO PresentMode = iota
	// PresentMailbox replaces the queued image with the
	// newest one. Drivers fall back to PresentFIFO when
	// the surface does not support it.
	PresentMailbox
)

// ModePresenter is the interface that a Presenter may
// implement to accept a PresentMode preference.
// NewSwapchain of such presenters uses PresentMailbox.
type ModePresenter interface {
	Presenter

	// NewSwapchainMode is like NewSwapchain, but
	// requests a specific PresentMode.
	NewSwapchainMode(win Window, imageCount int, mode PresentMode) (Swapchain, error)
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to obtain the index of an
// image view to target, transitions the view to a valid
// layout (e.g., from LUndefined to LColorTarget),
// records commands as needed, transitions the view to
// the LPresent layout, submits these commands and then
// calls Present to present the image view.
type Swapchain interface {
	Destroyer

	// Views returns the list of image views that
	// comprises the swapchain.
	// This value remains unchanged as long as the
	// swapchain's Destroy or Recreate methods are
	// not called.
	// Swapchain image views are in the LUndefined
	// layout when created/recreated.
	Views() []ImageView

	// Next returns the index of the next writable
	// image view.
	// sem, if not nil, is signaled when the image is
	// ready to be written. Submissions that write to
	// the image must wait on it.
	// It returns ErrTimeout if no image becomes
	// available within timeout, and ErrSwapchain if
	// the swapchain must be recreated.
	Next(sem Semaphore, timeout time.Duration) (int, error)

	// Present presents the image view identified
	// by index.
	// Presentation waits on every semaphore in wait,
	// which are expected to be signaled by the
	// submission that rendered the image.
	Present(index int, wait []Semaphore) error

	// Recreate recreates the swapchain.
	// It is meant to be called in response to a
	// ErrSwapchain error.
	Recreate() error

	// Format returns the image views' PixelFmt.
	Format() PixelFmt

	// Usage returns the image views' Usage.
	// URenderTarget is guaranteed to be set.
	Usage() Usage
}
