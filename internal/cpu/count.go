// Package cpu implements the host-side reference for the subpixel
// threshold count.
package cpu

import "github.com/gogpu/gpucount/internal/image"

// Count returns the number of subpixels (R, G and B of each pixel, alpha
// excluded) whose raw byte value is >= threshold.
//
// The comparison is on integers. The GPU kernel compares normalized
// floats instead; see CountAt for the size of that difference.
func Count(pix *image.PixelBuffer, threshold uint8) uint64 {
	data := pix.Bytes()
	var n uint64
	for i := 0; i+2 < len(data); i += image.Channels {
		if data[i] >= threshold {
			n++
		}
		if data[i+1] >= threshold {
			n++
		}
		if data[i+2] >= threshold {
			n++
		}
	}
	return n
}

// CountAt returns the number of subpixels exactly equal to threshold.
// These are the only subpixels on which a normalized float comparison
// can disagree with Count.
func CountAt(pix *image.PixelBuffer, threshold uint8) uint64 {
	data := pix.Bytes()
	var n uint64
	for i := 0; i+2 < len(data); i += image.Channels {
		for c := range 3 {
			if data[i+c] == threshold {
				n++
			}
		}
	}
	return n
}
