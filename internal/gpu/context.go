package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Backend names accepted by NewInstanceProvider.
const (
	BackendVulkan = "vulkan"
	BackendNoop   = "noop"
)

// DefaultFenceTimeout bounds every wait for GPU completion.
const DefaultFenceTimeout = 30 * time.Second

// InstanceProvider creates HAL instances. It is the only entry point into
// the graphics API: every other call goes through the device and queue it
// produces. hal.Backend and noop.API both satisfy it.
type InstanceProvider interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// NewInstanceProvider returns the provider registered under name.
// An empty name selects Vulkan.
func NewInstanceProvider(name string) (InstanceProvider, error) {
	switch name {
	case "", BackendVulkan:
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, BackendVulkan)
		}
		return backend, nil
	case BackendNoop:
		return &noop.API{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBackendUnavailable, name)
	}
}

// Context owns a headless compute device and queue.
//
// A Context is created once per run by Open (or adopted from a host with
// FromProvider) and released with Close. Programs and counters created
// from it are only valid until Close.
type Context struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	adapterName string
	deviceType  gputypes.DeviceType

	memory *MemoryBudget

	fenceTimeout   time.Duration
	externalDevice bool // true when using a host device (don't destroy on Close)
	closed         bool
}

// Open creates an instance from p, selects an adapter (discrete, then
// integrated, then the first one listed) and opens a device on it.
//
// Errors are *Error values tagged with StageInstance, StageAdapter or
// StageDevice. On error every resource acquired so far is released.
func Open(p InstanceProvider, fenceTimeout time.Duration) (*Context, error) {
	if fenceTimeout <= 0 {
		fenceTimeout = DefaultFenceTimeout
	}

	instance, err := p.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, stageError(StageInstance, "create instance", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, stageError(StageAdapter, "enumerate adapters", ErrNoAdapters)
	}
	var selected *hal.ExposedAdapter
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				selected = &adapters[i]
				break
			}
		}
		if selected != nil {
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, stageError(StageDevice, "open device", err)
	}

	c := &Context{
		instance:     instance,
		device:       openDev.Device,
		queue:        openDev.Queue,
		adapterName:  selected.Info.Name,
		deviceType:   selected.Info.DeviceType,
		memory:       NewMemoryBudget(DefaultMaxMemoryMB),
		fenceTimeout: fenceTimeout,
	}
	slogger().Info("gpu: device opened",
		"adapter", c.adapterName,
		"type", c.DeviceTypeName(),
		"adapters", len(adapters))
	return c, nil
}

// FromProvider adopts the device and queue of a host application. The
// provider must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. Close on the returned Context leaves the host
// device alive.
func FromProvider(provider gpucontext.DeviceProvider, fenceTimeout time.Duration) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, stageError(StageDevice, "adopt provider", ErrInvalidProvider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, stageError(StageDevice, "adopt provider", fmt.Errorf("%w: HalDevice is not hal.Device", ErrInvalidProvider))
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, stageError(StageDevice, "adopt provider", fmt.Errorf("%w: HalQueue is not hal.Queue", ErrInvalidProvider))
	}
	if fenceTimeout <= 0 {
		fenceTimeout = DefaultFenceTimeout
	}
	slogger().Info("gpu: using shared host device")
	return &Context{
		device:         device,
		queue:          queue,
		adapterName:    "shared",
		memory:         NewMemoryBudget(DefaultMaxMemoryMB),
		fenceTimeout:   fenceTimeout,
		externalDevice: true,
	}, nil
}

// AdapterName returns the name of the selected adapter.
func (c *Context) AdapterName() string { return c.adapterName }

// DeviceTypeName returns a short description of the adapter type.
func (c *Context) DeviceTypeName() string {
	switch c.deviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		return "discrete"
	case gputypes.DeviceTypeIntegratedGPU:
		return "integrated"
	default:
		if c.externalDevice {
			return "shared"
		}
		return "other"
	}
}

// Device returns the HAL device.
func (c *Context) Device() hal.Device { return c.device }

// Queue returns the HAL queue.
func (c *Context) Queue() hal.Queue { return c.queue }

// MemoryStats returns the device buffer usage of this context.
func (c *Context) MemoryStats() MemoryStats { return c.memory.Stats() }

// Closed reports whether Close has been called.
func (c *Context) Closed() bool { return c.closed }

// Close releases the device and instance. It is safe to call more than once.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if !c.externalDevice {
		if c.device != nil {
			c.device.Destroy()
		}
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
	slogger().Debug("gpu: context closed")
}

// submitAndWait submits cmdBuf and blocks until the GPU signals its fence.
func (c *Context) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := c.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer c.device.DestroyFence(fence)

	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := c.device.Wait(fence, 1, c.fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("wait for GPU: %w after %v", ErrFenceTimeout, c.fenceTimeout)
	}
	return nil
}
