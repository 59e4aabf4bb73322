package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// Pipeline is the canonical gear target detector. It is stateless between
// frames except for its working buffers, which are sized to the last frame.
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	buffers frameBuffers
}

// NewPipeline creates a Pipeline. Buffers are allocated on the first frame.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Detect runs the full pipeline on one frame.
func (p *Pipeline) Detect(frame *gocv.Mat, cfg Config) (Result, error) {
	return p.DetectTrace(frame, cfg, nil)
}

// DetectTrace is Detect that also records the intermediate shapes into tr
// for overlay rendering. tr may be nil.
//
// Pipeline steps:
//  1. Threshold the frame into the cached mask
//  2. Extract candidate shapes from the mask
//  3. Patch broken targets
//  4. Select primary and secondary targets
//  5. Compute aiming geometry
//
// Only ErrInvalidInput is returned as an error. A frame without a target, or
// with a degenerate one, gives Present=false.
func (p *Pipeline) DetectTrace(frame *gocv.Mat, cfg Config, tr *Trace) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return NotFound(), err
	}
	tr.reset()

	mask, err := threshold(frame, cfg.Color, &p.buffers)
	if err != nil {
		return NotFound(), err
	}
	tr.setMask(mask)

	candidates := extractCandidates(mask, cfg.MinWidth, cfg.MinHeight, tr)
	targets := MatchTargets(candidates, cfg.Tolerance)
	tr.setTargets(targets)

	width, height := frame.Cols(), frame.Rows()
	sel, ok := SelectTargets(targets, width, height, cfg.GearSpacing)
	if !ok {
		return NotFound(), nil
	}
	tr.setSelection(sel)

	res, err := ComputeGeometry(sel, width, height, cfg.Camera)
	if errors.Is(err, ErrDegenerateTarget) {
		return NotFound(), nil
	}
	return res, err
}

// Close releases the cached buffers.
func (p *Pipeline) Close() error {
	p.buffers.Close()
	return nil
}
