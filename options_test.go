package gpucount

import (
	"testing"
	"time"

	"github.com/gogpu/gpucount/internal/gpu"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.kernel.Threshold != 254 {
		t.Errorf("Threshold = %d, want 254", o.kernel.Threshold)
	}
	if o.kernel.WorkgroupX != 16 || o.kernel.WorkgroupY != 16 {
		t.Errorf("workgroup = %dx%d, want 16x16", o.kernel.WorkgroupX, o.kernel.WorkgroupY)
	}
	if o.backend != gpu.BackendVulkan {
		t.Errorf("backend = %q, want %q", o.backend, gpu.BackendVulkan)
	}
	if o.resetBetweenPasses {
		t.Error("resetBetweenPasses = true, want false")
	}
	if !o.flipVertical {
		t.Error("flipVertical = false, want true")
	}
	if o.fenceTimeout != gpu.DefaultFenceTimeout {
		t.Errorf("fenceTimeout = %v, want %v", o.fenceTimeout, gpu.DefaultFenceTimeout)
	}
	if err := o.validate(); err != nil {
		t.Errorf("validate() error = %v", err)
	}
}

func TestOptionsApply(t *testing.T) {
	o, err := buildOptions([]Option{
		WithThreshold(128),
		WithWorkgroup(8, 4),
		WithBackend(gpu.BackendNoop),
		WithResetBetweenPasses(true),
		WithFlipVertical(false),
		WithFenceTimeout(time.Second),
	})
	if err != nil {
		t.Fatalf("buildOptions() error = %v", err)
	}
	if o.kernel.Threshold != 128 || o.kernel.WorkgroupX != 8 || o.kernel.WorkgroupY != 4 {
		t.Errorf("kernel = %+v", o.kernel)
	}
	if o.backend != gpu.BackendNoop || !o.resetBetweenPasses || o.flipVertical || o.fenceTimeout != time.Second {
		t.Errorf("options = %+v", o)
	}
}

func TestOptionsProviderSkipsBackendCheck(t *testing.T) {
	o, err := buildOptions([]Option{WithBackend(""), WithInstanceProvider(brokenProvider{})})
	if err != nil {
		t.Fatalf("buildOptions() error = %v", err)
	}
	if o.provider == nil {
		t.Error("provider not set")
	}
}
