package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// frameBuffers caches the working Mats of one pipeline, keyed by the last seen
// frame size. They are reallocated when the size changes and reused otherwise.
type frameBuffers struct {
	rows, cols int
	hsv        gocv.Mat
	mask       gocv.Mat

	kernelSize int
	kernel     gocv.Mat
	hasKernel  bool

	allocated bool
}

// ensure makes the frame-sized buffers match rows x cols.
// It reports whether a reallocation happened.
func (b *frameBuffers) ensure(rows, cols int) bool {
	if b.allocated && b.rows == rows && b.cols == cols {
		return false
	}

	b.closeFrameMats()
	b.hsv = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	b.mask = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	b.rows, b.cols = rows, cols
	b.allocated = true
	return true
}

// structuringElement returns the close kernel, rebuilt only when the size changes.
func (b *frameBuffers) structuringElement(size int) gocv.Mat {
	if b.hasKernel && b.kernelSize == size {
		return b.kernel
	}
	if b.hasKernel {
		b.kernel.Close()
	}
	b.kernel = gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
	b.kernelSize = size
	b.hasKernel = true
	return b.kernel
}

// size returns the cached dimensions.
func (b *frameBuffers) size() (rows, cols int) {
	return b.rows, b.cols
}

func (b *frameBuffers) closeFrameMats() {
	if !b.allocated {
		return
	}
	b.hsv.Close()
	b.mask.Close()
	b.allocated = false
	b.rows, b.cols = 0, 0
}

// Close releases every cached Mat.
func (b *frameBuffers) Close() {
	b.closeFrameMats()
	if b.hasKernel {
		b.kernel.Close()
		b.hasKernel = false
	}
}
