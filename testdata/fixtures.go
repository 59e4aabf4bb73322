// Package testdata builds synthetic camera frames for pipeline tests.
package testdata

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Session frame size used by the field camera.
const (
	Width  = 320
	Height = 240
)

// TapeGreen is the color the ring light reflects off the target tape.
// In OpenCV HSV it is (60, 255, 255), inside the default threshold window.
var TapeGreen = color.RGBA{G: 255, A: 255}

// Glare is an out-of-range color (pure red, hue 0).
var Glare = color.RGBA{R: 255, A: 255}

// BlankFrame returns a black BGR frame. The caller must Close it.
func BlankFrame(width, height int) gocv.Mat {
	return gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
}

// TargetFrame returns a black frame with filled tape strips at the given
// rectangles. The caller must Close it.
func TargetFrame(width, height int, strips ...image.Rectangle) gocv.Mat {
	return ColoredFrame(width, height, TapeGreen, strips...)
}

// ColoredFrame returns a black frame with filled rectangles of color c.
func ColoredFrame(width, height int, c color.RGBA, rects ...image.Rectangle) gocv.Mat {
	frame := BlankFrame(width, height)
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	for _, r := range rects {
		gocv.Rectangle(&frame, r, c, -1)
	}
	return frame
}

// GearTarget returns the two strips of a gear peg target centred on cx with
// the given strip height. leftHeight and rightHeight differ when the camera
// is rotated relative to the target plane.
func GearTarget(cx, cy, stripWidth, gap, leftHeight, rightHeight int) []image.Rectangle {
	left := image.Rect(cx-gap/2-stripWidth, cy-leftHeight/2, cx-gap/2, cy+leftHeight/2)
	right := image.Rect(cx+gap/2, cy-rightHeight/2, cx+gap/2+stripWidth, cy+rightHeight/2)
	return []image.Rectangle{left, right}
}

// WriteFrame saves a frame as an image file, e.g. for photo mode tests.
func WriteFrame(path string, frame gocv.Mat) error {
	if ok := gocv.IMWrite(path, frame); !ok {
		return fmt.Errorf("write frame %s", path)
	}
	return nil
}

// Sequence returns n copies of frame, for replay through a mock camera.
// The caller must Close every returned Mat.
func Sequence(frame gocv.Mat, n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		f := frame.Clone()
		frames = append(frames, &f)
	}
	return frames
}
