// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package rhi implements reference-counted GPU resources
// and frame pacing on top of the driver package.
//
// Every resource is created through a Device and accessed
// through a small handle value. Handles are moved by
// assignment and duplicated with Clone; each reference
// must be given up with Release. When the last reference
// goes away the resource is not destroyed right away:
// it is retired and only destroyed once the frame in
// which it was released has completed on the GPU.
//
// A typical frame looks like this:
//
//	idx, err := dev.WaitAndAcquireSwapchainImageIndex(timeout)
//	// handle err
//	enc, err := dev.CreateCommandEncoder()
//	// record into enc
//	cmd, err := enc.Finish()
//	err = dev.Submit(cmd)
//	err = dev.EndFrame()
//
// Devices without a swapchain call BeginFrame instead of
// acquiring an image.
//
// Programming errors, such as using a released handle or
// submitting twice in the same frame, cause panics.
// Runtime failures are reported as errors that wrap one
// of ErrExhausted, ErrTimeout, ErrSwapchainOutOfDate or
// ErrDeviceLost.
package rhi
