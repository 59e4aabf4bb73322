package detector

import (
	"fmt"

	"gocv.io/x/gocv"
)

// checkFrame rejects frames the pipeline cannot process.
func checkFrame(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return fmt.Errorf("%w: empty frame", ErrInvalidInput)
	}
	if frame.Rows() <= 0 || frame.Cols() <= 0 {
		return fmt.Errorf("%w: zero area frame %dx%d", ErrInvalidInput, frame.Cols(), frame.Rows())
	}
	if frame.Channels() != 3 {
		return fmt.Errorf("%w: expected 3 channel BGR frame, got %d channels", ErrInvalidInput, frame.Channels())
	}
	return nil
}

// threshold writes the binary mask of in-range pixels into buf.mask and
// returns it. The returned Mat is owned by buf.
//
// Steps:
//  1. BGR -> HSV
//  2. inclusive range check on all three channels
//  3. closing: CloseIterations dilations followed by as many erosions
func threshold(frame *gocv.Mat, color ColorConfig, buf *frameBuffers) (gocv.Mat, error) {
	if err := checkFrame(frame); err != nil {
		return gocv.Mat{}, err
	}

	buf.ensure(frame.Rows(), frame.Cols())

	gocv.CvtColor(*frame, &buf.hsv, gocv.ColorBGRToHSV)
	gocv.InRangeWithScalar(buf.hsv, color.lower(), color.upper(), &buf.mask)

	if color.CloseIterations > 0 {
		kernel := buf.structuringElement(color.KernelSize)
		for i := 0; i < color.CloseIterations; i++ {
			gocv.Dilate(buf.mask, &buf.mask, kernel)
		}
		for i := 0; i < color.CloseIterations; i++ {
			gocv.Erode(buf.mask, &buf.mask, kernel)
		}
	}

	return buf.mask, nil
}
