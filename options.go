package gpucount

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpucount/internal/gpu"
	"github.com/gogpu/gpucount/internal/kernel"
)

// Option configures a Run.
//
// Example:
//
//	report, err := gpucount.Run(path,
//	    gpucount.WithThreshold(200),
//	    gpucount.WithWorkgroup(8, 8),
//	    gpucount.WithResetBetweenPasses(true),
//	)
type Option func(*options)

// options holds the configuration of a single run.
type options struct {
	kernel kernel.Config

	backend  string
	provider gpu.InstanceProvider      // overrides backend when set
	host     gpucontext.DeviceProvider // overrides provider and backend when set

	resetBetweenPasses bool
	flipVertical       bool
	fenceTimeout       time.Duration
}

// defaultOptions returns the defaults: threshold 254, 16x16 workgroups,
// Vulkan, accumulating second pass, vertical flip on load.
func defaultOptions() options {
	return options{
		kernel:       kernel.DefaultConfig(),
		backend:      gpu.BackendVulkan,
		flipVertical: true,
		fenceTimeout: gpu.DefaultFenceTimeout,
	}
}

func (o *options) validate() error {
	if err := o.kernel.Validate(); err != nil {
		return err
	}
	if o.fenceTimeout <= 0 {
		return fmt.Errorf("fence timeout must be positive, got %v", o.fenceTimeout)
	}
	if o.host == nil && o.provider == nil && o.backend == "" {
		return errors.New("no GPU backend selected")
	}
	return nil
}

// WithThreshold sets the inclusive cutoff in [0, 255].
func WithThreshold(t int) Option {
	return func(o *options) {
		o.kernel.Threshold = t
	}
}

// WithWorkgroup sets the compute workgroup tile size. x*y may not exceed 256.
func WithWorkgroup(x, y int) Option {
	return func(o *options) {
		o.kernel.WorkgroupX = x
		o.kernel.WorkgroupY = y
	}
}

// WithBackend selects a graphics backend by name: "vulkan" or "noop".
// The noop backend runs every GPU call without a device and reads back
// zero; it is meant for dry runs.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithInstanceProvider injects the graphics API entry point directly,
// bypassing backend lookup by name.
func WithInstanceProvider(p gpu.InstanceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithDeviceProvider runs on a device owned by a host application. The
// provider must also expose HalDevice() and HalQueue(). The host device is
// not destroyed when the run ends.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.host = p
	}
}

// WithResetBetweenPasses zeroes the counter before the second dispatch.
// Without it the second readback holds the sum of both passes.
func WithResetBetweenPasses(reset bool) Option {
	return func(o *options) {
		o.resetBetweenPasses = reset
	}
}

// WithFlipVertical stores image rows bottom to top, as a GPU texture upload
// would. Counts are unaffected.
func WithFlipVertical(flip bool) Option {
	return func(o *options) {
		o.flipVertical = flip
	}
}

// WithFenceTimeout bounds each wait for GPU completion.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fenceTimeout = d
	}
}
