// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

// object is the state shared by every resource impl.
type object struct {
	rc  refcount
	id  uint64
	dev *Device
}

func (o *object) obj() *object { return o }

// init prepares o for a new resource created by d.
func (o *object) init(d *Device) {
	o.rc = newRefcount()
	o.id = d.ctx.NextID()
	o.dev = d
}

// resource is implemented by every impl.
type resource interface {
	obj() *object
	// released is called when the last reference is
	// removed. It hands the impl to whatever reclaims
	// it (usually the device's retire queue).
	released()
	// destroy destroys the native objects and releases
	// the references that the impl holds.
	// It is called once the GPU can no longer use the
	// resource.
	destroy()
}

// implPtr constrains handle type parameters to pointers to
// impl types.
type implPtr[T any] interface {
	*T
	resource
}

// live reports whether a handle made of p and id refers to
// a live resource.
func live[P implPtr[T], T any](p P, id uint64) bool {
	if p == nil {
		return false
	}
	o := p.obj()
	return o.id == id && o.rc.alive()
}

// mustLive panics unless a handle made of p and id refers
// to a live resource.
func mustLive[P implPtr[T], T any](p P, id uint64, kind string) P {
	if p == nil {
		panic("rhi: use of null " + kind)
	}
	if !live(p, id) {
		panic("rhi: use of released " + kind)
	}
	return p
}

// clone adds a reference to the resource.
func clone[P implPtr[T], T any](p P, id uint64, kind string) {
	mustLive(p, id, kind).obj().rc.inc()
}

// release removes a reference from the resource.
func release[P implPtr[T], T any](p P, id uint64, kind string) {
	if p == nil {
		panic("rhi: release of null " + kind)
	}
	o := p.obj()
	if o.id != id {
		if o.dev != nil && o.dev.closing {
			// Close destroys leaked resources out of order.
			return
		}
		panic("rhi: release of stale " + kind)
	}
	if o.rc.dec() {
		p.released()
	}
}

// refs returns the reference count of the resource, or
// zero if the handle is invalid.
func refs[P implPtr[T], T any](p P, id uint64) uint32 {
	if p == nil || p.obj().id != id {
		return 0
	}
	return p.obj().rc.n
}

// retiree is an entry of the retire queue.
type retiree struct {
	r      resource
	serial uint64
}

// retire queues r for destruction once the frame being
// recorded completes.
func (d *Device) retire(r resource) {
	d.retired = append(d.retired, retiree{r, d.serial})
}

// finalize destroys r and invalidates its handles.
func (d *Device) finalize(r resource) {
	o := r.obj()
	r.destroy()
	delete(d.objs, o.id)
	o.id = 0
}

// track registers a newly created resource.
func (d *Device) track(r resource) { d.objs[r.obj().id] = r }

// sweep finalizes retired resources whose frame has
// completed.
// It returns the number of resources finalized.
// Destroying a resource may release others, so it repeats
// until a pass finalizes nothing.
func (d *Device) sweep() (n int) {
	for {
		list := d.retired
		d.retired = nil
		done := 0
		for _, x := range list {
			if x.serial <= d.completed {
				d.finalize(x.r)
				done++
			} else {
				d.retired = append(d.retired, x)
			}
		}
		n += done
		if done == 0 {
			return
		}
	}
}
