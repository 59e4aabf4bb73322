package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorRed    = color.RGBA{R: 255, A: 255}
	colorYellow = color.RGBA{R: 255, G: 255, A: 255}
	colorBlue   = color.RGBA{B: 255, A: 255}
	colorGreen  = color.RGBA{G: 255, A: 255}
)

// DrawOptions selects which debug layers RenderOverlay paints.
type DrawOptions struct {
	Thresh     bool `json:"draw_thresh"`      // show the mask instead of the frame
	Approx     bool `json:"draw_approx"`      // every raw approximation, blue
	Approx2    bool `json:"draw_approx2"`     // accepted candidates, green
	GearPatch  bool `json:"draw_gear_patch"`  // patched full targets, yellow
	GearTarget bool `json:"draw_gear_target"` // aiming polygon, red
}

// DefaultDrawOptions shows the mask and the final aiming polygon.
func DefaultDrawOptions() DrawOptions {
	return DrawOptions{Thresh: true, GearTarget: true}
}

// Trace records the intermediate shapes of one DetectTrace call. It only
// observes the pipeline and is never read back by it.
type Trace struct {
	// Mask is borrowed from the pipeline buffers and is only valid until
	// the next Detect call on the same pipeline.
	Mask       gocv.Mat
	Approx     []Polygon
	Candidates []Candidate
	Targets    []FullTarget
	Selection  *Selection
}

func (t *Trace) reset() {
	if t == nil {
		return
	}
	*t = Trace{}
}

func (t *Trace) setMask(m gocv.Mat) {
	if t != nil {
		t.Mask = m
	}
}

func (t *Trace) addApprox(p Polygon) {
	if t != nil {
		t.Approx = append(t.Approx, p)
	}
}

func (t *Trace) addCandidate(c Candidate) {
	if t != nil {
		t.Candidates = append(t.Candidates, c)
	}
}

func (t *Trace) setTargets(ts []FullTarget) {
	if t != nil {
		t.Targets = ts
	}
}

func (t *Trace) setSelection(s Selection) {
	if t != nil {
		t.Selection = &s
	}
}

// RenderOverlay paints the debug view of a trace into dst. The base layer is
// the mask (white on black) when opts.Thresh is set and the mask is
// available, otherwise a copy of frame.
func RenderOverlay(dst *gocv.Mat, frame gocv.Mat, tr *Trace, opts DrawOptions) {
	if tr != nil && opts.Thresh && !tr.Mask.Empty() {
		gocv.CvtColor(tr.Mask, dst, gocv.ColorGrayToBGR)
	} else {
		frame.CopyTo(dst)
	}
	if tr == nil {
		return
	}

	if opts.Approx {
		drawPolygons(dst, tr.Approx, colorBlue)
	}
	if opts.Approx2 {
		polys := make([]Polygon, 0, len(tr.Candidates))
		for _, c := range tr.Candidates {
			polys = append(polys, c.Polygon)
		}
		drawPolygons(dst, polys, colorGreen)
	}
	if opts.GearPatch {
		polys := make([]Polygon, 0, len(tr.Targets))
		for _, t := range tr.Targets {
			polys = append(polys, t.Polygon)
		}
		drawPolygons(dst, polys, colorYellow)
	}
	if opts.GearTarget && tr.Selection != nil {
		drawPolygons(dst, []Polygon{tr.Selection.Aim.Polygon}, colorRed)
	}
}

func drawPolygons(dst *gocv.Mat, polys []Polygon, c color.RGBA) {
	pts := make([][]image.Point, 0, len(polys))
	for _, p := range polys {
		if len(p) > 0 {
			pts = append(pts, p)
		}
	}
	if len(pts) == 0 {
		return
	}

	pv := gocv.NewPointsVectorFromPoints(pts)
	defer pv.Close()
	gocv.DrawContours(dst, pv, -1, c, 2)
}
