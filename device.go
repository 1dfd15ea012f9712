// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/gviegas/rhi/driver"
)

// Device is the owner of every resource created through
// it and the pacer of the frames that use them.
// A Device is not safe for concurrent use.
type Device struct {
	ctx *Context
	gpu driver.GPU
	// Set when the Device opened the driver itself.
	drv     driver.Driver
	cfg     Config
	log     *slog.Logger
	lost    bool
	closing bool

	// serial is the serial of the frame being recorded.
	// Frames whose serial is not greater than completed
	// finished executing.
	serial    uint64
	completed uint64
	retired   []retiree
	objs      map[uint64]resource
	layouts   map[*bindGroupLayoutImpl]struct{}
	passes    map[string]driver.RenderPass

	frames    []frame
	cur       int
	begun     bool
	submitted bool
	// Index of the acquired swapchain image, or -1.
	image int

	win   driver.Window
	sc    driver.Swapchain
	views []ImageView

	xfer struct {
		pool    driver.CmdPool
		cb      driver.CmdBuffer
		fence   driver.Fence
		busy    bool
		garbage []driver.Destroyer
	}
}

// frame is a slot of the frame ring.
type frame struct {
	fence driver.Fence
	// Signaled when the acquired image can be written.
	avail driver.Semaphore
	// Signaled when rendering to the image is done.
	done   driver.Semaphore
	pool   *CommandPool
	serial uint64
}

// Open opens the first registered driver whose name
// contains cfg.Backend, ignoring case, and creates a
// Device from it.
// If cfg is nil, DefaultConfig is used.
// It returns an error wrapping ErrNoDriver if no driver
// could be opened.
func Open(ctx *Context, cfg *Config) (*Device, error) {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	want := strings.ToLower(cfg.Backend)
	var errs []error
	for _, drv := range driver.Drivers() {
		if !strings.Contains(strings.ToLower(drv.Name()), want) {
			continue
		}
		gpu, err := drv.Open()
		if err != nil {
			Logger().Debug("driver unavailable", "name", drv.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", drv.Name(), err))
			continue
		}
		d, err := NewDevice(ctx, gpu, cfg)
		if err != nil {
			drv.Close()
			return nil, err
		}
		d.drv = drv
		return d, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: backend %q not registered", ErrNoDriver, cfg.Backend)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDriver, errors.Join(errs...))
}

// NewDevice creates a Device from an open GPU.
// The Device has cfg.FramesInFlight frames until a
// swapchain is configured.
// If cfg is nil, DefaultConfig is used.
func NewDevice(ctx *Context, gpu driver.GPU, cfg *Config) (*Device, error) {
	if ctx == nil {
		panic("rhi: nil Context")
	}
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		ctx:     ctx,
		gpu:     gpu,
		cfg:     *cfg,
		log:     Logger().With("driver", gpu.Driver().Name()),
		serial:  1,
		objs:    make(map[uint64]resource),
		layouts: make(map[*bindGroupLayoutImpl]struct{}),
		passes:  make(map[string]driver.RenderPass),
		image:   -1,
	}
	if err := d.newFrames(cfg.FramesInFlight); err != nil {
		d.destroyFrames()
		return nil, d.classify("new device", err)
	}
	if err := d.newTransfer(); err != nil {
		d.destroyFrames()
		d.destroyTransfer()
		return nil, d.classify("new device", err)
	}
	d.log.Info("device created", "frames", len(d.frames))
	return d, nil
}

func (d *Device) newFrames(n int) error {
	d.frames = make([]frame, 0, n)
	for range n {
		fence, err := d.gpu.NewFence(true)
		if err != nil {
			return err
		}
		d.frames = append(d.frames, frame{fence: fence})
		f := &d.frames[len(d.frames)-1]
		if f.avail, err = d.gpu.NewSemaphore(); err != nil {
			return err
		}
		if f.done, err = d.gpu.NewSemaphore(); err != nil {
			return err
		}
		if f.pool, err = d.newCommandPool(); err != nil {
			return err
		}
	}
	d.cur = 0
	return nil
}

func (d *Device) destroyFrames() {
	for i := range d.frames {
		f := &d.frames[i]
		if f.pool != nil {
			f.pool.destroy()
		}
		if f.done != nil {
			f.done.Destroy()
		}
		if f.avail != nil {
			f.avail.Destroy()
		}
		f.fence.Destroy()
	}
	d.frames = nil
	d.cur = 0
}

func (d *Device) newTransfer() (err error) {
	x := &d.xfer
	if x.pool, err = d.gpu.NewCmdPool(false); err != nil {
		return
	}
	x.fence, err = d.gpu.NewFence(false)
	return
}

func (d *Device) destroyTransfer() {
	x := &d.xfer
	for _, g := range x.garbage {
		g.Destroy()
	}
	x.garbage = nil
	if x.fence != nil {
		x.fence.Destroy()
		x.fence = nil
	}
	if x.pool != nil {
		x.pool.Destroy()
		x.pool = nil
	}
	x.cb = nil
}

// immediate records a command buffer with record, submits
// it and waits for it to complete.
// garbage is destroyed once the GPU is done with it.
func (d *Device) immediate(op string, record func(driver.CmdBuffer), garbage ...driver.Destroyer) error {
	x := &d.xfer
	if d.lost {
		for _, g := range garbage {
			g.Destroy()
		}
		return fmt.Errorf("%s: %w", op, ErrDeviceLost)
	}
	err := d.waitTransfer(op)
	x.garbage = append(x.garbage, garbage...)
	if err != nil {
		return err
	}
	if err := x.pool.Reset(); err != nil {
		return d.classify(op, err)
	}
	if x.cb == nil {
		cb, err := x.pool.NewCmdBuffer()
		if err != nil {
			return d.classify(op, err)
		}
		x.cb = cb
	}
	if err := x.cb.Begin(); err != nil {
		return d.classify(op, err)
	}
	record(x.cb)
	if err := x.cb.End(); err != nil {
		return d.classify(op, err)
	}
	if err := x.fence.Reset(); err != nil {
		return d.classify(op, err)
	}
	err = d.gpu.Submit(&driver.Submission{
		Cmds:  []driver.CmdBuffer{x.cb},
		Fence: x.fence,
	})
	if err != nil {
		return d.classify(op, err)
	}
	x.busy = true
	return d.waitTransfer(op)
}

// waitTransfer waits for the last transfer submission and
// destroys its garbage.
func (d *Device) waitTransfer(op string) error {
	x := &d.xfer
	if x.busy {
		if err := x.fence.Wait(d.cfg.FenceTimeout.Std()); err != nil {
			return d.classify(op, err)
		}
		x.busy = false
	}
	for _, g := range x.garbage {
		g.Destroy()
	}
	clear(x.garbage)
	x.garbage = x.garbage[:0]
	return nil
}

// BeginFrame begins the next frame.
// It waits until the GPU is done with the frame slot's
// previous use, then recycles the resources released
// before that use and resets the slot's command pool.
// A negative timeout means no timeout, and a zero timeout
// means Config.FenceTimeout. On ErrTimeout the frame did
// not begin and the call can be retried.
func (d *Device) BeginFrame(timeout time.Duration) error {
	if d.begun {
		panic("rhi: BeginFrame called twice")
	}
	if d.lost {
		return fmt.Errorf("begin frame: %w", ErrDeviceLost)
	}
	if len(d.frames) == 0 {
		return errors.New("rhi: begin frame: device has no frames")
	}
	if timeout == 0 {
		timeout = d.cfg.FenceTimeout.Std()
	}
	f := &d.frames[d.cur]
	if err := f.fence.Wait(timeout); err != nil {
		return d.classify("begin frame", err)
	}
	d.completed = max(d.completed, f.serial)
	d.gc(f.pool)
	if err := f.pool.Reset(); err != nil {
		return err
	}
	d.begun = true
	d.submitted = false
	d.image = -1
	return nil
}

// gc runs every garbage collector of the device.
func (d *Device) gc(pool *CommandPool) {
	cmds := pool.GC(d.completed)
	groups := 0
	for l := range d.layouts {
		groups += l.gc(d.completed)
	}
	res := d.sweep()
	if cmds+groups+res > 0 {
		d.log.Debug("gc", "completed", d.completed, "commands", cmds, "bind_groups", groups, "resources", res)
	}
}

// WaitAndAcquireSwapchainImageIndex begins the frame, if
// it has not begun yet, and acquires the next swapchain
// image.
// It returns ErrSwapchainOutOfDate when the swapchain
// must be recreated, and ErrTimeout if no image became
// available within timeout.
// A zero timeout means Config.AcquireTimeout for the
// acquire and Config.FenceTimeout for the frame's fence.
func (d *Device) WaitAndAcquireSwapchainImageIndex(timeout time.Duration) (int, error) {
	if d.sc == nil {
		panic("rhi: WaitAndAcquireSwapchainImageIndex without swapchain")
	}
	if !d.begun {
		if err := d.BeginFrame(timeout); err != nil {
			return -1, err
		}
	}
	if d.image >= 0 {
		return d.image, nil
	}
	if d.submitted {
		panic("rhi: swapchain image acquired after Submit")
	}
	if timeout == 0 {
		timeout = d.cfg.AcquireTimeout.Std()
	}
	i, err := d.sc.Next(d.frames[d.cur].avail, timeout)
	if err != nil {
		return -1, d.classify("acquire swapchain image", err)
	}
	d.image = i
	return i, nil
}

// Submit submits the commands of the current frame.
// It can be called at most once per frame, and takes
// ownership of cmds: they are released whether it
// succeeds or not.
// If an image was acquired, execution waits for it to be
// available.
func (d *Device) Submit(cmds ...Command) error {
	if !d.begun {
		panic("rhi: Submit outside of a frame")
	}
	if d.submitted {
		panic("rhi: Submit called twice in a frame")
	}
	f := &d.frames[d.cur]
	cbs := take(f.pool, cmds)
	defer func() {
		for i := range cmds {
			release(cmds[i].p, cmds[i].id, "Command")
		}
	}()
	d.submitted = true
	if d.lost {
		return fmt.Errorf("submit: %w", ErrDeviceLost)
	}
	if err := d.submit(f, cbs); err != nil {
		err = d.classify("submit", err)
		if !d.lost {
			// Keep the fence and semaphores balanced.
			if e := d.submit(f, nil); e != nil {
				d.log.Error("empty submission failed", "err", e)
			}
		}
		return err
	}
	return nil
}

func (d *Device) submit(f *frame, cbs []driver.CmdBuffer) error {
	if err := f.fence.Reset(); err != nil {
		return err
	}
	s := driver.Submission{Cmds: cbs, Fence: f.fence}
	if d.image >= 0 {
		s.Wait = []driver.Semaphore{f.avail}
		s.Signal = []driver.Semaphore{f.done}
	}
	if err := d.gpu.Submit(&s); err != nil {
		return err
	}
	f.serial = d.serial
	return nil
}

// EndFrame ends the current frame.
// If nothing was submitted, an empty submission is made.
// If an image was acquired, it is presented.
// The frame index advances even when EndFrame fails.
func (d *Device) EndFrame() error {
	if !d.begun {
		panic("rhi: EndFrame without BeginFrame")
	}
	f := &d.frames[d.cur]
	var err error
	switch {
	case d.lost:
		err = fmt.Errorf("end frame: %w", ErrDeviceLost)
	case !d.submitted:
		err = d.classify("end frame", d.submit(f, nil))
	}
	if err == nil && d.image >= 0 {
		err = d.classify("present", d.sc.Present(d.image, []driver.Semaphore{f.done}))
	}
	d.begun = false
	d.submitted = false
	d.image = -1
	d.cur = (d.cur + 1) % len(d.frames)
	d.serial++
	return err
}

// WaitIdle waits until the GPU is idle and then recycles
// every released resource.
// Command pools of frames other than the one being
// recorded are reset.
func (d *Device) WaitIdle() error {
	if err := d.gpu.WaitIdle(); err != nil {
		return d.classify("wait idle", err)
	}
	if err := d.waitTransfer("wait idle"); err != nil {
		return err
	}
	d.completed = d.serial
	var errs []error
	for i := range d.frames {
		p := d.frames[i].pool
		if d.begun && i == d.cur {
			p.GC(d.completed)
			continue
		}
		if err := p.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	for l := range d.layouts {
		l.gc(d.completed)
	}
	d.sweep()
	return errors.Join(errs...)
}

// ConfigureSwapchain creates a swapchain for win.
// The frame ring is rebuilt to have one frame per
// swapchain image, which invalidates every command not
// yet submitted. An open frame is abandoned.
func (d *Device) ConfigureSwapchain(win driver.Window) error {
	pres, ok := d.gpu.(driver.Presenter)
	if !ok {
		return fmt.Errorf("rhi: configure swapchain: %w", driver.ErrCannotPresent)
	}
	if err := d.drain(); err != nil {
		return err
	}
	if d.sc != nil {
		d.releaseViews()
		d.sc.Destroy()
		d.sc = nil
	}
	var sc driver.Swapchain
	var err error
	if mp, ok := pres.(driver.ModePresenter); ok {
		mode := driver.PresentMailbox
		if d.cfg.PresentMode == PresentFIFO {
			mode = driver.PresentFIFO
		}
		sc, err = mp.NewSwapchainMode(win, d.cfg.ImageCount, mode)
	} else {
		sc, err = pres.NewSwapchain(win, d.cfg.ImageCount)
	}
	if err != nil {
		d.restoreFrames()
		return d.classify("configure swapchain", err)
	}
	d.sc = sc
	d.win = win
	return d.setupSwapchain()
}

// RecreateSwapchain recreates the swapchain after
// ErrSwapchainOutOfDate.
// Like ConfigureSwapchain, it rebuilds the frame ring.
func (d *Device) RecreateSwapchain() error {
	if d.sc == nil {
		panic("rhi: RecreateSwapchain without swapchain")
	}
	if err := d.drain(); err != nil {
		return err
	}
	d.releaseViews()
	if err := d.sc.Recreate(); err != nil {
		d.restoreFrames()
		return d.classify("recreate swapchain", err)
	}
	return d.setupSwapchain()
}

// drain waits for the GPU, abandons the open frame and
// destroys the frame ring.
func (d *Device) drain() error {
	if err := d.WaitIdle(); err != nil {
		return err
	}
	if d.begun {
		d.begun = false
		d.submitted = false
		d.image = -1
		d.serial++
	}
	d.destroyFrames()
	return nil
}

// restoreFrames rebuilds the frame ring after a failed
// swapchain operation.
func (d *Device) restoreFrames() {
	n := d.cfg.FramesInFlight
	if len(d.views) > 0 {
		n = len(d.views)
	}
	if err := d.newFrames(n); err != nil {
		d.destroyFrames()
		d.log.Error("frame ring lost", "err", err)
	}
}

// setupSwapchain wraps the swapchain views and rebuilds
// the frame ring to match them.
func (d *Device) setupSwapchain() error {
	w, h := d.win.Size()
	for _, iv := range d.sc.Views() {
		v := &viewImpl{
			drv:      iv,
			fmt:      d.sc.Format(),
			samples:  1,
			width:    max(w, 1),
			height:   max(h, 1),
			external: true,
		}
		v.init(d)
		d.track(v)
		d.views = append(d.views, ImageView{v, v.id})
	}
	if err := d.newFrames(len(d.views)); err != nil {
		d.destroyFrames()
		return d.classify("configure swapchain", err)
	}
	d.log.Info("swapchain configured", "images", len(d.views), "format", d.sc.Format())
	return nil
}

func (d *Device) releaseViews() {
	for i := range d.views {
		d.views[i].Release()
	}
	d.views = nil
}

// SwapchainView returns a new reference to the view of
// swapchain image i.
// Views are replaced when the swapchain is recreated.
func (d *Device) SwapchainView(i int) ImageView { return d.views[i].Clone() }

// SwapchainImageCount returns the number of swapchain
// images, or zero if there is no swapchain.
func (d *Device) SwapchainImageCount() int { return len(d.views) }

// CreateCommandEncoder creates an encoder from the current
// frame's command pool.
// Commands must be created after the frame begins: beginning
// a frame invalidates commands created before it.
func (d *Device) CreateCommandEncoder() (*CommandEncoder, error) {
	return d.CommandPool().CreateCommandEncoder()
}

// CommandPool returns the current frame's command pool.
func (d *Device) CommandPool() *CommandPool { return d.frames[d.cur].pool }

// Close destroys the device and every resource created
// through it, including those that were not released.
func (d *Device) Close() {
	if d.gpu == nil {
		return
	}
	if err := d.gpu.WaitIdle(); err != nil {
		d.log.Warn("close: wait idle failed", "err", err)
	}
	d.destroyFrames()
	d.destroyTransfer()
	d.views = nil
	d.completed = math.MaxUint64
	for l := range d.layouts {
		l.gc(d.completed)
	}
	d.sweep()
	d.closing = true
	if n := len(d.objs); n > 0 {
		d.log.Warn("close: destroying leaked resources", "count", n)
		for _, r := range slices.Collect(maps.Values(d.objs)) {
			if r.obj().id != 0 {
				d.finalize(r)
			}
		}
	}
	d.retired = nil
	for _, rp := range d.passes {
		rp.Destroy()
	}
	clear(d.passes)
	if d.sc != nil {
		d.sc.Destroy()
		d.sc = nil
	}
	if d.drv != nil {
		d.drv.Close()
	}
	d.gpu = nil
	d.log.Info("device closed")
}

// Lost reports whether the device was lost.
func (d *Device) Lost() bool { return d.lost }

// Config returns the configuration of the device.
func (d *Device) Config() Config { return d.cfg }

// GPU returns the underlying driver GPU.
func (d *Device) GPU() driver.GPU { return d.gpu }

// Limits returns the driver limits.
func (d *Device) Limits() driver.Limits { return d.gpu.Limits() }

// FrameIndex returns the index of the current frame slot.
func (d *Device) FrameIndex() int { return d.cur }

// FrameCount returns the number of frame slots.
func (d *Device) FrameCount() int { return len(d.frames) }

// Serial returns the serial of the frame being recorded.
func (d *Device) Serial() uint64 { return d.serial }

// CompletedSerial returns the serial of the last frame
// known to have completed.
func (d *Device) CompletedSerial() uint64 { return d.completed }

// RetireCount returns the number of released resources
// waiting for their frame to complete.
func (d *Device) RetireCount() int { return len(d.retired) }

// LiveCount returns the number of resources that were not
// destroyed yet.
// Bind groups and commands are counted by their pools.
func (d *Device) LiveCount() int { return len(d.objs) }

// FrameBegun reports whether a frame is being recorded.
func (d *Device) FrameBegun() bool { return d.begun }
