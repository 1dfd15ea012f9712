// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"time"

	"github.com/gviegas/rhi/driver"
)

// work is a submission that has not executed yet.
type work struct {
	cmds  []*CmdBuffer
	fence *Fence
}

// Submit submits a batch of command buffers.
// Unless the GPU is stalled, the batch executes before
// Submit returns.
func (g *GPU) Submit(s *driver.Submission) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		return driver.ErrFatal
	}
	w := &work{cmds: make([]*CmdBuffer, len(s.Cmds))}
	for i, c := range s.Cmds {
		cb := c.(*CmdBuffer)
		if cb.state != cbExecutable {
			return errNotExec
		}
		w.cmds[i] = cb
	}
	for _, x := range s.Wait {
		if x.(*Semaphore).count == 0 {
			return errWaitSem
		}
	}
	if s.Fence != nil {
		w.fence = s.Fence.(*Fence)
		if w.fence.signaled {
			return errSignaled
		}
		w.fence.pending = true
	}
	for _, x := range s.Wait {
		x.(*Semaphore).count--
	}
	for _, x := range s.Signal {
		x.(*Semaphore).count++
	}
	for _, cb := range w.cmds {
		cb.state = cbPending
	}
	var id uint64
	if w.fence != nil {
		id = w.fence.id
	}
	g.record(EvSubmit, KFence, id, len(w.cmds))
	if g.stall {
		g.pending = append(g.pending, w)
	} else {
		g.execute(w)
	}
	return nil
}

// execute runs the commands of w and signals its fence.
// g.mu must be held.
func (g *GPU) execute(w *work) {
	for _, cb := range w.cmds {
		for _, op := range cb.ops {
			op()
		}
		cb.state = cbExecutable
	}
	var id uint64
	if w.fence != nil {
		w.fence.pending = false
		w.fence.signaled = true
		id = w.fence.id
	}
	g.record(EvComplete, KFence, id, len(w.cmds))
}

// completeUntil executes held submissions in order until
// the one that signals f has executed.
// If f is nil, it executes all of them.
// g.mu must be held.
func (g *GPU) completeUntil(f *Fence) {
	for len(g.pending) > 0 {
		w := g.pending[0]
		g.pending[0] = nil
		g.pending = g.pending[1:]
		g.execute(w)
		if f != nil && w.fence == f {
			return
		}
	}
}

// Fence implements driver.Fence.
type Fence struct {
	g        *GPU
	id       uint64
	signaled bool
	pending  bool
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Fence{g: g, id: g.newID(KFence), signaled: signaled}, nil
}

// Wait waits for the fence to be signaled.
// A finite timeout never blocks: if the fence is not
// signaled yet, ErrTimeout is returned immediately.
// An infinite (negative) timeout executes held
// submissions until the fence is signaled.
func (f *Fence) Wait(timeout time.Duration) (err error) {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		g.record(EvFenceWait, KFence, f.id, 0)
		return driver.ErrFatal
	}
	if !f.signaled && f.pending && timeout < 0 {
		g.completeUntil(f)
	}
	if f.signaled {
		g.record(EvFenceWait, KFence, f.id, 1)
		return nil
	}
	g.record(EvFenceWait, KFence, f.id, 0)
	return driver.ErrTimeout
}

// Reset unsignals the fence.
func (f *Fence) Reset() error {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if f.pending {
		return errNotExec
	}
	f.signaled = false
	g.record(EvFenceReset, KFence, f.id, 0)
	return nil
}

// Signaled reports whether f is signaled.
func (f *Fence) Signaled() bool {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	return f.signaled
}

// ID returns the identifier used for f in events.
func (f *Fence) ID() uint64 { return f.id }

// Destroy destroys the fence.
func (f *Fence) Destroy() {
	if f == nil || f.g == nil {
		return
	}
	f.g.destroy(KFence, f.id)
	*f = Fence{}
}

// Semaphore implements driver.Semaphore.
// It counts signal operations that were submitted but not
// yet waited on.
type Semaphore struct {
	g     *GPU
	id    uint64
	count int
}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Semaphore{g: g, id: g.newID(KSemaphore)}, nil
}

// Count returns the number of pending signal operations.
func (s *Semaphore) Count() int {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.count
}

// Destroy destroys the semaphore.
func (s *Semaphore) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	s.g.destroy(KSemaphore, s.id)
	*s = Semaphore{}
}
