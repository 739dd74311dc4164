package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucount/internal/image"
	"github.com/gogpu/gpucount/internal/kernel"
)

// counterSize is the size of the atomic counter: one u32.
const counterSize = 4

// MaxTextureDimension is the default WebGPU maxTextureDimension2D.
const MaxTextureDimension = 8192

// Resource labels, also used as memory budget keys.
const (
	labelParams  = "threshold_params"
	labelPixels  = "threshold_pixels"
	labelCounter = "threshold_counter"
	labelStaging = "threshold_staging"
)

// Counter state errors.
var (
	// ErrNotUploaded is returned by Allocate before Upload.
	ErrNotUploaded = errors.New("gpu: image not uploaded")

	// ErrNotAllocated is returned by Dispatch and Reset before Allocate.
	ErrNotAllocated = errors.New("gpu: counter buffer not allocated")

	// ErrNotDispatched is returned by Readback before the first Dispatch.
	ErrNotDispatched = errors.New("gpu: nothing dispatched")

	// ErrImageTooLarge is returned when a side of the image exceeds
	// MaxTextureDimension.
	ErrImageTooLarge = errors.New("gpu: image exceeds texture size limit")
)

// Counter runs a Program over one uploaded image and reads back the
// subpixel count.
//
// The sequence is Upload, Allocate, then any number of Dispatch/Readback
// pairs. The counter buffer is zeroed by Allocate and by Reset only: two
// dispatches without a Reset in between accumulate.
type Counter struct {
	ctx  *Context
	prog *Program

	width  int
	height int

	paramsBuf  hal.Buffer
	pixelsTex  hal.Texture
	pixelsView hal.TextureView
	counterBuf hal.Buffer
	stagingBuf hal.Buffer
	bindGroup  hal.BindGroup

	dispatches int
}

// NewCounter returns a Counter for prog. No GPU memory is allocated yet.
func NewCounter(ctx *Context, prog *Program) *Counter {
	return &Counter{ctx: ctx, prog: prog}
}

// Upload copies pix into an RGBA8Unorm texture and writes the image size
// into the params uniform.
func (c *Counter) Upload(pix *image.PixelBuffer) error {
	if c.ctx.closed {
		return stageError(StageRuntime, "upload", ErrClosed)
	}
	if pix.Width() > MaxTextureDimension || pix.Height() > MaxTextureDimension {
		return stageError(StageRuntime, "upload",
			fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, pix.Width(), pix.Height(), MaxTextureDimension))
	}
	c.releaseImage()

	device, queue := c.ctx.device, c.ctx.queue

	paramsBuf, err := c.createBuffer(&hal.BufferDescriptor{
		Label: labelParams, Size: kernel.ParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return stageError(StageRuntime, "create params buffer", err)
	}
	c.paramsBuf = paramsBuf

	width := uint32(pix.Width())   //nolint:gosec // bounded by MaxTextureDimension
	height := uint32(pix.Height()) //nolint:gosec // bounded by MaxTextureDimension
	size := hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1}

	if err := c.ctx.memory.Reserve(labelPixels, uint64(pix.ByteSize())); err != nil { //nolint:gosec // byte size is non-negative
		c.releaseImage()
		return stageError(StageRuntime, "create pixel texture", err)
	}
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         labelPixels,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		c.ctx.memory.Release(labelPixels)
		c.releaseImage()
		return stageError(StageRuntime, "create pixel texture", err)
	}
	c.pixelsTex = tex

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         labelPixels + "_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		c.releaseImage()
		return stageError(StageRuntime, "create pixel texture view", err)
	}
	c.pixelsView = view

	if err := queue.WriteBuffer(c.paramsBuf, 0, encodeParams(pix.Width(), pix.Height())); err != nil {
		c.releaseImage()
		return stageError(StageRuntime, "write params", err)
	}
	if err := queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		pix.Bytes(),
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: width * image.Channels, RowsPerImage: height},
		&size,
	); err != nil {
		c.releaseImage()
		return stageError(StageRuntime, "write pixels", err)
	}
	c.width, c.height = pix.Width(), pix.Height()

	slogger().Debug("gpu: image uploaded", "width", c.width, "height", c.height, "bytes", pix.ByteSize())
	return nil
}

// Allocate creates the counter and staging buffers, zeroes the counter and
// binds params, pixels and counter to the program's slots.
func (c *Counter) Allocate() error {
	if c.ctx.closed {
		return stageError(StageRuntime, "allocate", ErrClosed)
	}
	if c.pixelsView == nil {
		return stageError(StageRuntime, "allocate", ErrNotUploaded)
	}
	c.releaseCounter()

	device := c.ctx.device

	counterBuf, err := c.createBuffer(&hal.BufferDescriptor{
		Label: labelCounter, Size: counterSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return stageError(StageRuntime, "create counter buffer", err)
	}
	c.counterBuf = counterBuf

	stagingBuf, err := c.createBuffer(&hal.BufferDescriptor{
		Label: labelStaging, Size: counterSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		c.releaseCounter()
		return stageError(StageRuntime, "create staging buffer", err)
	}
	c.stagingBuf = stagingBuf

	bindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "threshold_bind", Layout: c.prog.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: kernel.BindingParams, Resource: gputypes.BufferBinding{Buffer: c.paramsBuf.NativeHandle(), Offset: 0, Size: kernel.ParamsSize}},
			{Binding: kernel.BindingPixels, Resource: gputypes.TextureViewBinding{TextureView: c.pixelsView.NativeHandle()}},
			{Binding: kernel.BindingCounter, Resource: gputypes.BufferBinding{Buffer: c.counterBuf.NativeHandle(), Offset: 0, Size: counterSize}},
		},
	})
	if err != nil {
		c.releaseCounter()
		return stageError(StageRuntime, "create bind group", err)
	}
	c.bindGroup = bindGroup

	c.dispatches = 0
	if err := c.Reset(); err != nil {
		c.releaseCounter()
		return err
	}
	return nil
}

// Reset zeroes the counter buffer.
func (c *Counter) Reset() error {
	if c.counterBuf == nil {
		return stageError(StageRuntime, "reset", ErrNotAllocated)
	}
	if err := c.ctx.queue.WriteBuffer(c.counterBuf, 0, make([]byte, counterSize)); err != nil {
		return stageError(StageRuntime, "reset", err)
	}
	return nil
}

// Dispatch runs the kernel over the whole image and blocks until the GPU
// has finished.
//
// The compute pass is followed, in the same command buffer, by a copy of
// the counter into the staging buffer. The pass boundary orders every
// atomic write before the copy reads the counter, and the fence wait makes
// the staging buffer safe to read from the host.
func (c *Counter) Dispatch() error {
	if c.ctx.closed {
		return stageError(StageRuntime, "dispatch", ErrClosed)
	}
	if c.bindGroup == nil {
		return stageError(StageRuntime, "dispatch", ErrNotAllocated)
	}
	device := c.ctx.device
	gx, gy, gz := c.prog.Config().DispatchSize(c.width, c.height)

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "threshold_encoder"})
	if err != nil {
		return stageError(StageRuntime, "create command encoder", err)
	}
	if err := encoder.BeginEncoding("threshold_count"); err != nil {
		encoder.DiscardEncoding()
		return stageError(StageRuntime, "begin encoding", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "threshold_pass"})
	pass.SetPipeline(c.prog.pipeline)
	pass.SetBindGroup(0, c.bindGroup, nil)
	pass.Dispatch(gx, gy, gz)
	pass.End()

	encoder.CopyBufferToBuffer(c.counterBuf, c.stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: counterSize},
	})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return stageError(StageRuntime, "end encoding", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	if err := c.ctx.submitAndWait(cmdBuf); err != nil {
		return stageError(StageRuntime, "dispatch", err)
	}
	c.dispatches++
	slogger().Debug("gpu: dispatched",
		"workgroups_x", gx,
		"workgroups_y", gy,
		"pass", c.dispatches)
	return nil
}

// Readback copies the counter value from the staging buffer to the host.
func (c *Counter) Readback() (uint32, error) {
	if c.ctx.closed {
		return 0, stageError(StageRuntime, "readback", ErrClosed)
	}
	if c.dispatches == 0 {
		return 0, stageError(StageRuntime, "readback", ErrNotDispatched)
	}
	readback := make([]byte, counterSize)
	if err := c.ctx.queue.ReadBuffer(c.stagingBuf, 0, readback); err != nil {
		return 0, stageError(StageRuntime, "readback", err)
	}
	return binary.LittleEndian.Uint32(readback), nil
}

// Dispatches returns the number of completed dispatches since Allocate.
func (c *Counter) Dispatches() int { return c.dispatches }

// Destroy releases all GPU resources. Safe to call more than once.
func (c *Counter) Destroy() {
	c.releaseCounter()
	c.releaseImage()
}

func (c *Counter) releaseCounter() {
	if c.bindGroup != nil && c.ctx.device != nil {
		c.ctx.device.DestroyBindGroup(c.bindGroup)
	}
	c.destroyBuffer(c.stagingBuf, labelStaging)
	c.destroyBuffer(c.counterBuf, labelCounter)
	c.bindGroup = nil
	c.stagingBuf = nil
	c.counterBuf = nil
	c.dispatches = 0
}

func (c *Counter) releaseImage() {
	// The bind group references the texture view.
	c.releaseCounter()
	if device := c.ctx.device; device != nil {
		if c.pixelsView != nil {
			device.DestroyTextureView(c.pixelsView)
		}
		if c.pixelsTex != nil {
			device.DestroyTexture(c.pixelsTex)
		}
	}
	if c.pixelsTex != nil {
		c.ctx.memory.Release(labelPixels)
	}
	c.destroyBuffer(c.paramsBuf, labelParams)
	c.pixelsView = nil
	c.pixelsTex = nil
	c.paramsBuf = nil
	c.width, c.height = 0, 0
}

// createBuffer reserves desc.Size in the context budget, then creates the
// buffer.
func (c *Counter) createBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if err := c.ctx.memory.Reserve(desc.Label, desc.Size); err != nil {
		return nil, err
	}
	buf, err := c.ctx.device.CreateBuffer(desc)
	if err != nil {
		c.ctx.memory.Release(desc.Label)
		return nil, err
	}
	return buf, nil
}

func (c *Counter) destroyBuffer(buf hal.Buffer, label string) {
	if buf == nil {
		return
	}
	if c.ctx.device != nil {
		c.ctx.device.DestroyBuffer(buf)
	}
	c.ctx.memory.Release(label)
}

// encodeParams packs the Params uniform: width, height and two padding words.
func encodeParams(width, height int) []byte {
	buf := make([]byte, kernel.ParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(width))  //nolint:gosec // dimensions always fit uint32
	binary.LittleEndian.PutUint32(buf[4:], uint32(height)) //nolint:gosec // dimensions always fit uint32
	return buf
}
