// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API.
//
// The Vulkan loader is resolved at run time. When it is not
// present, Open fails with driver.ErrNotInstalled.
package vk

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/internal/logger"
)

const driverName = "vulkan"

var preferredAPIVersion = vulkan.MakeVersion(1, 1, 0)

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	inst  vulkan.Instance
	ivers uint32
	pdev  vulkan.PhysicalDevice
	dname string
	dvers uint32
	dev   vulkan.Device
	que   vulkan.Queue
	qfam  uint32

	// Queue submission requires that the queue handle
	// be externally synchronized.
	qmu sync.Mutex

	// Enabled extensions, indexed by ext* constants.
	exts [extN]bool

	// Used device memory, indexed by heap indices.
	mused []int64
	mprop vulkan.PhysicalDeviceMemoryProperties

	// Limits of pdev.
	lim driver.Limits
	// Flush granularity of non-coherent memory.
	atom int64
}

var (
	_ driver.Driver         = (*Driver)(nil)
	_ driver.GPU            = (*Driver)(nil)
	_ driver.ModePresenter  = (*Driver)(nil)
	_ driver.CachedBufferer = (*Driver)(nil)
	_ driver.Flusher        = (*buffer)(nil)
)

func init() {
	driver.Register(&Driver{})
}

// open loads the Vulkan loader.
func (d *Driver) open() error {
	if err := vulkan.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("%w: %v", driver.ErrNotInstalled, err)
	}
	if err := vulkan.Init(); err != nil {
		return fmt.Errorf("%w: %v", driver.ErrNotInstalled, err)
	}
	return nil
}

// initInstance initializes the Vulkan instance.
func (d *Driver) initInstance() error {
	avail, err := instanceExts()
	if err != nil {
		return err
	}
	names := d.selectInstanceExts(avail)
	info := vulkan.InstanceCreateInfo{
		SType: vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vulkan.ApplicationInfo{
			SType:       vulkan.StructureTypeApplicationInfo,
			ApiVersion:  preferredAPIVersion,
			PEngineName: "rhi\x00",
		},
		EnabledExtensionCount:   uint32(len(names)),
		PpEnabledExtensionNames: names,
	}
	var inst vulkan.Instance
	if err := checkResult(vulkan.CreateInstance(&info, nil, &inst)); err != nil {
		if errors.Is(err, errDriverCompat) || errors.Is(err, errInitFailed) {
			return fmt.Errorf("%w: %v", driver.ErrNotInstalled, err)
		}
		return err
	}
	d.inst = inst
	d.ivers = preferredAPIVersion
	if err := vulkan.InitInstance(inst); err != nil {
		return fmt.Errorf("%w: %v", driver.ErrNotInstalled, err)
	}
	return nil
}

// initDevice initializes the Vulkan device.
func (d *Driver) initDevice() error {
	var n uint32
	if err := checkResult(vulkan.EnumeratePhysicalDevices(d.inst, &n, nil)); err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrNoDevice
	}
	devs := make([]vulkan.PhysicalDevice, n)
	if err := checkResult(vulkan.EnumeratePhysicalDevices(d.inst, &n, devs)); err != nil {
		return err
	}

	// Select a suitable physical device to use. The bare minimum is a
	// device with a queue supporting graphics and compute operations.
	// Ideally, the device will be capable of creating swapchains and
	// be hardware-accelerated.
	weight := 0
	var swapchain bool
	for _, dev := range devs[:n] {
		var props vulkan.PhysicalDeviceProperties
		vulkan.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		if isVariant(props.ApiVersion) {
			continue
		}
		fam, ok := graphicsFamily(dev)
		if !ok {
			continue
		}
		wgt := 1
		if props.DeviceType == vulkan.PhysicalDeviceTypeIntegratedGpu || props.DeviceType == vulkan.PhysicalDeviceTypeDiscreteGpu {
			wgt++
		}
		sc := false
		if exts, err := deviceExts(dev); err == nil {
			for _, e := range exts {
				if e == extSwapchain.name() {
					sc = true
					wgt += 2
					break
				}
			}
		}
		if wgt > weight {
			d.pdev = dev
			d.dname = vulkan.ToString(props.DeviceName[:])
			d.dvers = props.ApiVersion
			d.qfam = fam
			props.Limits.Deref()
			d.setLimits(&props.Limits)
			d.atom = max(int64(props.Limits.NonCoherentAtomSize), 1)
			swapchain = sc
			weight = wgt
		}
	}
	if weight == 0 {
		return driver.ErrNoDevice
	}
	vulkan.GetPhysicalDeviceMemoryProperties(d.pdev, &d.mprop)
	d.mprop.Deref()
	d.mused = make([]int64, d.mprop.MemoryHeapCount)

	var names []string
	if swapchain && d.exts[extSurface] {
		d.exts[extSwapchain] = true
		names = append(names, extSwapchain.name()+"\x00")
	}
	info := vulkan.DeviceCreateInfo{
		SType:                vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vulkan.DeviceQueueCreateInfo{{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.qfam,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   uint32(len(names)),
		PpEnabledExtensionNames: names,
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{d.features()},
	}
	var dev vulkan.Device
	if err := checkResult(vulkan.CreateDevice(d.pdev, &info, nil, &dev)); err != nil {
		return err
	}
	d.dev = dev
	var que vulkan.Queue
	vulkan.GetDeviceQueue(d.dev, d.qfam, 0, &que)
	d.que = que
	return nil
}

// graphicsFamily returns the index of the first queue family
// of dev that supports both graphics and compute.
func graphicsFamily(dev vulkan.PhysicalDevice) (uint32, bool) {
	var n uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &n, nil)
	if n == 0 {
		return 0, false
	}
	props := make([]vulkan.QueueFamilyProperties, n)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &n, props)
	flg := vulkan.QueueFlags(vulkan.QueueGraphicsBit | vulkan.QueueComputeBit)
	for i := range props[:n] {
		props[i].Deref()
		if props[i].QueueFlags&flg == flg {
			return uint32(i), true
		}
	}
	return 0, false
}

// setLimits sets d.lim.
func (d *Driver) setLimits(lim *vulkan.PhysicalDeviceLimits) {
	d.lim = driver.Limits{
		MaxDescBuffer:   int(lim.MaxPerStageDescriptorStorageBuffers),
		MaxDescImage:    int(lim.MaxPerStageDescriptorStorageImages),
		MaxDescConstant: int(lim.MaxPerStageDescriptorUniformBuffers),
		MaxDescTexture:  int(lim.MaxPerStageDescriptorSampledImages),
		MaxDescSampler:  int(lim.MaxPerStageDescriptorSamplers),
		MaxDescHeaps:    int(lim.MaxBoundDescriptorSets),
		MaxBufferSize:   int64(lim.MaxStorageBufferRange),
		MaxImage2D:      int(lim.MaxImageDimension2D),
		MaxLayers:       int(lim.MaxImageArrayLayers),
		MaxVertexIn:     int(lim.MaxVertexInputBindings),
		MaxDispatch: [3]int{
			int(lim.MaxComputeWorkGroupCount[0]),
			int(lim.MaxComputeWorkGroupCount[1]),
			int(lim.MaxComputeWorkGroupCount[2]),
		},
	}
}

// features chooses which features to enable.
func (d *Driver) features() vulkan.PhysicalDeviceFeatures {
	var fq vulkan.PhysicalDeviceFeatures
	vulkan.GetPhysicalDeviceFeatures(d.pdev, &fq)
	fq.Deref()
	return vulkan.PhysicalDeviceFeatures{
		FullDrawIndexUint32:      fq.FullDrawIndexUint32,
		ImageCubeArray:           fq.ImageCubeArray,
		IndependentBlend:         fq.IndependentBlend,
		FillModeNonSolid:         fq.FillModeNonSolid,
		SamplerAnisotropy:        fq.SamplerAnisotropy,
		FragmentStoresAndAtomics: fq.FragmentStoresAndAtomics,
		ShaderClipDistance:       fq.ShaderClipDistance,
	}
}

// Open initializes the driver.
func (d *Driver) Open() (gpu driver.GPU, err error) {
	if d.dev != nil {
		return d, nil
	}
	if err = d.open(); err != nil {
		goto fail
	}
	if err = d.initInstance(); err != nil {
		goto fail
	}
	if err = d.initDevice(); err != nil {
		goto fail
	}
	logger.Get().Info("device opened", "driver", driverName, "device", d.dname)
	return d, nil
fail:
	d.Close()
	return nil, err
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	if d.inst != nil {
		if d.dev != nil {
			vulkan.DeviceWaitIdle(d.dev)
			vulkan.DestroyDevice(d.dev, nil)
		}
		vulkan.DestroyInstance(d.inst, nil)
	}
	*d = Driver{}
}

// memory represents a device memory allocation.
type memory struct {
	d     *Driver
	size  int64
	vis   bool
	coh   bool
	bound bool
	p     []byte
	mem   vulkan.DeviceMemory
	typ   int
	heap  int
}

// selectMemory selects a suitable memory type from the device.
// It returns the index of the selected memory, or -1 if none suffices.
func (d *Driver) selectMemory(typeBits uint32, prop vulkan.MemoryPropertyFlags) int {
	for i := 0; i < int(d.mprop.MemoryTypeCount); i++ {
		if 1<<i&typeBits != 0 {
			mt := d.mprop.MemoryTypes[i]
			mt.Deref()
			if mt.PropertyFlags&prop == prop {
				return i
			}
		}
	}
	return -1
}

// newMemory creates a new memory allocation.
// Cached memory is host visible but need not be coherent.
func (d *Driver) newMemory(req vulkan.MemoryRequirements, visible, cached bool) (*memory, error) {
	var typ int
	if cached {
		prop := vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCachedBit)
		typ = d.selectMemory(req.MemoryTypeBits, prop)
		if typ == -1 {
			typ = d.selectMemory(req.MemoryTypeBits, vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit))
		}
		visible = true
	} else {
		prop := vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyDeviceLocalBit)
		if visible {
			prop |= vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCoherentBit)
		}
		typ = d.selectMemory(req.MemoryTypeBits, prop)
		if typ == -1 {
			// Device-local memory is desired but not required.
			prop &^= vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyDeviceLocalBit)
			typ = d.selectMemory(req.MemoryTypeBits, prop)
		}
	}
	if typ == -1 {
		return nil, errors.New("vk: no suitable memory type found")
	}
	info := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typ),
	}
	var mem vulkan.DeviceMemory
	if err := checkResult(vulkan.AllocateMemory(d.dev, &info, nil, &mem)); err != nil {
		return nil, err
	}
	mt := d.mprop.MemoryTypes[typ]
	mt.Deref()
	heap := int(mt.HeapIndex)
	d.mused[heap] += int64(req.Size)
	return &memory{
		d:    d,
		size: int64(req.Size),
		vis:  visible,
		coh:  mt.PropertyFlags&vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostCoherentBit) != 0,
		mem:  mem,
		typ:  typ,
		heap: heap,
	}, nil
}

// mmap maps the memory for host access.
// The memory must be host visible (m.vis) and must have been bound to a
// resource (m.bound).
func (m *memory) mmap() error {
	if !m.vis {
		panic("cannot map memory that is not host visible")
	}
	if !m.bound {
		panic("cannot map memory that is not bound to a resource")
	}
	if len(m.p) == 0 {
		var p unsafe.Pointer
		if err := checkResult(vulkan.MapMemory(m.d.dev, m.mem, 0, vulkan.DeviceSize(vulkan.WholeSize), 0, &p)); err != nil {
			return err
		}
		m.p = unsafe.Slice((*byte)(p), m.size)
	}
	return nil
}

// unmap unmaps the memory.
func (m *memory) unmap() {
	if len(m.p) != 0 {
		vulkan.UnmapMemory(m.d.dev, m.mem)
		m.p = nil
	}
}

// free deallocates and invalidates the memory.
func (m *memory) free() {
	if m == nil {
		return
	}
	if m.d != nil {
		m.unmap()
		vulkan.FreeMemory(m.d.dev, m.mem, nil)
		m.d.mused[m.heap] -= m.size
	}
	*m = memory{}
}

// Driver returns the receiver (for driver.GPU conformance).
func (d *Driver) Driver() driver.Driver { return d }

// Limits returns the implementation limits.
func (d *Driver) Limits() driver.Limits { return d.lim }

// checkResult returns an error derived from a VkResult value.
// If such value does not indicate an error, it returns nil instead.
func checkResult(res vulkan.Result) error {
	if res >= 0 {
		// Not an error: VK_ERROR_* values are all negative.
		return nil
	}
	switch res {
	case vulkan.ErrorOutOfHostMemory:
		return errNoHostMemory
	case vulkan.ErrorOutOfDeviceMemory:
		return errNoDeviceMemory
	case vulkan.ErrorInitializationFailed:
		return errInitFailed
	case vulkan.ErrorDeviceLost:
		return errDeviceLost
	case vulkan.ErrorMemoryMapFailed:
		return errMMapFailed
	case vulkan.ErrorLayerNotPresent:
		return errNoLayer
	case vulkan.ErrorExtensionNotPresent:
		return errNoExtension
	case vulkan.ErrorFeatureNotPresent:
		return errNoFeature
	case vulkan.ErrorIncompatibleDriver:
		return errDriverCompat
	case vulkan.ErrorTooManyObjects:
		return errTooManyObjects
	case vulkan.ErrorFormatNotSupported:
		return errUnsupportedFormat
	case vulkan.ErrorFragmentedPool:
		return errFragmentedPool
	case vulkan.ErrorSurfaceLost:
		return errSurfaceLost
	case vulkan.ErrorNativeWindowInUse:
		return errWindowInUse
	case vulkan.ErrorOutOfDate:
		return errOutOfDate
	}
	return fmt.Errorf("%w: %v", errUnknown, vulkan.Error(res))
}

// Common Vulkan errors (VK_ERROR_*).
var (
	errNoHostMemory      = driver.ErrNoHostMemory
	errNoDeviceMemory    = driver.ErrNoDeviceMemory
	errInitFailed        = errors.New("vk: initialization failed")
	errDeviceLost        = driver.ErrFatal
	errMMapFailed        = errors.New("vk: memory map failed")
	errNoLayer           = errors.New("vk: layer not present")
	errNoExtension       = errors.New("vk: extension not present")
	errNoFeature         = errors.New("vk: feature not present")
	errDriverCompat      = errors.New("vk: incompatible driver")
	errTooManyObjects    = errors.New("vk: too many objects")
	errUnsupportedFormat = errors.New("vk: format not supported")
	errFragmentedPool    = errors.New("vk: fragmented pool")
	errUnknown           = errors.New("vk: unknown error")
	errSurfaceLost       = errors.New("vk: surface lost")
	errWindowInUse       = errors.New("vk: native window in use")
	errOutOfDate         = driver.ErrSwapchain
)

// DeviceName returns the name of the VkDevice that the driver
// is using.
func (d *Driver) DeviceName() string { return d.dname }

// InstanceVersion returns the version of the VkInstance that
// the driver is using.
func (d *Driver) InstanceVersion() (major, minor, patch int) {
	return versionMajor(d.ivers), versionMinor(d.ivers), versionPatch(d.ivers)
}

// DeviceVersion returns the version of the VkDevice that
// the driver is using.
func (d *Driver) DeviceVersion() (major, minor, patch int) {
	return versionMajor(d.dvers), versionMinor(d.dvers), versionPatch(d.dvers)
}

// versionMajor extracts the major version number from v.
func versionMajor(v uint32) int { return int(v >> 22 & 0x7f) }

// versionMinor extracts the minor version number from v.
func versionMinor(v uint32) int { return int(v >> 12 & 0x3ff) }

// versionPatch extracts the patch version number from v.
func versionPatch(v uint32) int { return int(v & 0xfff) }

// isVariant returns whether version v identifies a variant
// implementation of the Vulkan API.
func isVariant(v uint32) bool { return v>>29 != 0 }
