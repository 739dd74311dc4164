package kernel

import "github.com/gogpu/gpucount/internal/image"

// Emulate runs the generated kernel's logic on the CPU: it walks the same
// dispatch grid, applies the same bounds guard, and compares normalized
// float32 channels against ThresholdFraction.
//
// It is a model of the GPU result, used to check grid coverage and to
// reason about float vs integer comparison without a device.
func Emulate(pix *image.PixelBuffer, c Config) uint32 {
	w, h := pix.Width(), pix.Height()
	gx, gy, _ := c.DispatchSize(w, h)
	t := c.ThresholdFraction()
	data := pix.Bytes()

	var counter uint32
	for wy := range int(gy) {
		for wx := range int(gx) {
			for ly := range c.WorkgroupY {
				for lx := range c.WorkgroupX {
					x := wx*c.WorkgroupX + lx
					y := wy*c.WorkgroupY + ly
					if x >= w || y >= h {
						continue
					}
					off := (y*w + x) * image.Channels
					for ch := range 3 {
						if float32(data[off+ch])/255.0 >= t {
							counter++
						}
					}
				}
			}
		}
	}
	return counter
}
