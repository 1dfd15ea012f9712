// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"

	"github.com/gviegas/rhi/driver"
)

// ErrExhausted means that a resource could not be created
// because memory or a descriptor pool was exhausted.
// The handle returned along with it is invalid.
var ErrExhausted = errors.New("rhi: resource exhausted")

// ErrTimeout means that a wait did not complete in time.
// The operation can be retried.
var ErrTimeout = errors.New("rhi: timed out")

// ErrSwapchainOutOfDate means that the swapchain no longer
// matches its window.
// Calling Device.RecreateSwapchain recovers from it.
var ErrSwapchainOutOfDate = errors.New("rhi: swapchain out of date")

// ErrDeviceLost means that the device is in an
// unrecoverable state.
// Every handle created from it must be released and the
// Device closed.
var ErrDeviceLost = errors.New("rhi: device lost")

// ErrNoDriver means that no registered driver could be
// opened.
var ErrNoDriver = errors.New("rhi: no usable driver")

// classify wraps a driver error into the rhi error
// taxonomy.
// It marks the device lost when err is fatal.
func (d *Device) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.ErrFatal):
		if !d.lost {
			d.lost = true
			d.log.Error("device lost", "op", op, "err", err)
		}
		return fmt.Errorf("%s: %w: %w", op, ErrDeviceLost, err)
	case errors.Is(err, driver.ErrTimeout):
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	case errors.Is(err, driver.ErrSwapchain):
		return fmt.Errorf("%s: %w: %w", op, ErrSwapchainOutOfDate, err)
	case errors.Is(err, driver.ErrNoDeviceMemory), errors.Is(err, driver.ErrNoHostMemory):
		return fmt.Errorf("%s: %w: %w", op, ErrExhausted, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// createFailed logs and classifies a failed creation call.
func (d *Device) createFailed(what string, err error) error {
	err = d.classify("create "+what, err)
	d.log.Warn("resource creation failed", "kind", what, "err", err)
	return err
}
