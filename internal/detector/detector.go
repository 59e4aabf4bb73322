// Package detector locates the paired retro-reflective gear target in a video
// frame and turns it into aiming parameters.
package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

var (
	// ErrInvalidInput is returned for frames that cannot be processed at all
	// (empty, zero area or not 3-channel BGR) and for invalid configs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegenerateTarget marks a selection whose geometry would divide by zero.
	// Detect never returns it; it reports Present=false instead.
	ErrDegenerateTarget = errors.New("degenerate target")
)

// Detector defines the interface for gear target detection implementations.
type Detector interface {
	// Detect analyzes a single BGR frame with the given config.
	// A frame without a usable target is not an error: it yields Present=false.
	Detect(frame *gocv.Mat, cfg Config) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Result is the per-frame output handed to the telemetry publisher.
type Result struct {
	Present        bool     `json:"present"`
	Partial        bool     `json:"partial"`
	Angle          float64  `json:"angle"`
	VerticalOffset float64  `json:"vertical_offset"`
	Skew           *float64 `json:"skew,omitempty"` // only set when Partial is false
}

// NotFound is the result published when no target was located.
func NotFound() Result {
	return Result{}
}
