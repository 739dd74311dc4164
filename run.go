package gpucount

import (
	stdimage "image"

	"github.com/gogpu/gpucount/internal/cpu"
	"github.com/gogpu/gpucount/internal/gpu"
	"github.com/gogpu/gpucount/internal/image"
)

// Run loads the image at path and measures the GPU and CPU threshold counts.
//
// The image is decoded before any GPU resource is created, so an unreadable
// file fails fast with a *DecodeError. Every other failure is one of the
// error types in this package; see ExitCode. There is no partial result.
func Run(path string, opts ...Option) (*Report, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	pix, err := image.Load(path, image.LoadOptions{FlipVertical: o.flipVertical})
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return run(pix, o)
}

// RunImage is Run for an already decoded image.
func RunImage(img stdimage.Image, opts ...Option) (*Report, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	pix, err := image.FromStdImage(img)
	if err != nil {
		return nil, &DecodeError{Path: "<image>", Err: err}
	}
	if o.flipVertical {
		pix = pix.FlipVertical()
	}
	return run(pix, o)
}

func buildOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return o, &ArgumentError{Err: err}
	}
	return o, nil
}

// openContext creates the compute context the options ask for: a host
// device, an injected provider, or a backend looked up by name.
func openContext(o options) (*gpu.Context, string, error) {
	if o.host != nil {
		ctx, err := gpu.FromProvider(o.host, o.fenceTimeout)
		if err != nil {
			return nil, "", classify("adopt device", err)
		}
		return ctx, "host", nil
	}
	provider, backend := o.provider, "custom"
	if provider == nil {
		p, err := gpu.NewInstanceProvider(o.backend)
		if err != nil {
			return nil, "", &ContextInitError{Stage: gpu.StageInstance, Err: err}
		}
		provider, backend = p, o.backend
	}
	ctx, err := gpu.Open(provider, o.fenceTimeout)
	if err != nil {
		return nil, "", classify("open device", err)
	}
	return ctx, backend, nil
}

func run(pix *image.PixelBuffer, o options) (*Report, error) {
	log := Logger()

	ctx, backend, err := openContext(o)
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	prog, err := gpu.NewProgram(ctx, o.kernel)
	if err != nil {
		return nil, classify("build program", err)
	}
	defer prog.Destroy()
	log.Debug("kernel built", "threshold", o.kernel.Threshold,
		"workgroup_x", o.kernel.WorkgroupX, "workgroup_y", o.kernel.WorkgroupY)

	counter := gpu.NewCounter(ctx, prog)
	defer counter.Destroy()

	rec := NewRecorder()
	var first, again uint32
	steps := []struct {
		label string
		fn    func() error
	}{
		{PhaseUpload, func() error { return counter.Upload(pix) }},
		{PhaseAllocate, counter.Allocate},
		{PhaseDispatch, counter.Dispatch},
		{PhaseReadback, func() (err error) { first, err = counter.Readback(); return err }},
	}
	for _, s := range steps {
		if err := rec.Measure(s.label, s.fn); err != nil {
			return nil, classify(s.label, err)
		}
	}

	if o.resetBetweenPasses {
		if err := counter.Reset(); err != nil {
			return nil, classify("reset counter", err)
		}
	}
	if err := rec.Measure(PhaseDispatchSecond, counter.Dispatch); err != nil {
		return nil, classify(PhaseDispatchSecond, err)
	}
	if err := rec.Measure(PhaseReadbackSecond, func() (err error) {
		again, err = counter.Readback()
		return err
	}); err != nil {
		return nil, classify(PhaseReadbackSecond, err)
	}

	threshold := uint8(o.kernel.Threshold) //nolint:gosec // validated to [0, 255]
	var cpuCount uint64
	_ = rec.Measure(PhaseCPU, func() error {
		cpuCount = cpu.Count(pix, threshold)
		return nil
	})

	counts := CountResult{
		GPU:                first,
		GPUSecondPass:      again,
		CPU:                cpuCount,
		Boundary:           cpu.CountAt(pix, threshold),
		ResetBetweenPasses: o.resetBetweenPasses,
	}
	if !counts.Agrees() {
		log.Warn("GPU and CPU counts differ beyond tolerance",
			"gpu", counts.GPU, "cpu", counts.CPU, "tolerance", counts.Boundary)
	}
	if !counts.SecondPassAsExpected() {
		log.Warn("unexpected second pass count",
			"got", counts.GPUSecondPass, "want", counts.SecondPassExpected())
	}

	return &Report{
		Threshold:  o.kernel.Threshold,
		Width:      pix.Width(),
		Height:     pix.Height(),
		WorkgroupX: o.kernel.WorkgroupX,
		WorkgroupY: o.kernel.WorkgroupY,
		Backend:    backend,
		Adapter:    ctx.AdapterName(),
		DeviceType: ctx.DeviceTypeName(),
		GPUBytes:   ctx.MemoryStats().PeakBytes,
		Timings:    rec.Samples(),
		Counts:     counts,
	}, nil
}
