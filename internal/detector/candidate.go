package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// approxEpsilon is the polygon simplification tolerance as a fraction of
// the curve perimeter.
const approxEpsilon = 0.01

// Polygon is an ordered boundary approximation in pixel coordinates.
type Polygon []image.Point

// Candidate is a detected shape summarized by its bounding box and centroid.
// The centroid is the centre of the bounding box, not the area moment.
type Candidate struct {
	Box     image.Rectangle `json:"box"`
	CX      float64         `json:"cx"`
	CY      float64         `json:"cy"`
	Polygon Polygon         `json:"polygon"`
}

// Width returns the bounding box width in pixels.
func (c Candidate) Width() int { return c.Box.Dx() }

// Height returns the bounding box height in pixels.
func (c Candidate) Height() int { return c.Box.Dy() }

// newCandidate summarizes a polygon.
func newCandidate(poly Polygon) Candidate {
	box := boundingRect(poly)
	return Candidate{
		Box:     box,
		CX:      float64(box.Min.X) + float64(box.Dx())/2,
		CY:      float64(box.Min.Y) + float64(box.Dy())/2,
		Polygon: poly,
	}
}

// FullTarget is a candidate that is either a single shape or the merge of
// two halves of one physical target.
type FullTarget struct {
	Candidate
	Members int `json:"members"`
}

// Merged reports whether the target was patched together from two shapes.
func (t FullTarget) Merged() bool { return t.Members > 1 }

// Selection is the outcome of target selection for one frame.
type Selection struct {
	Primary   FullTarget
	Secondary *FullTarget
	// Aim spans the primary and, when present, the secondary target.
	Aim     Candidate
	Partial bool
}

// boundingRect mirrors cv::boundingRect on a point set: inclusive pixel
// extents, so a single point has width and height 1.
func boundingRect(poly Polygon) image.Rectangle {
	if len(poly) == 0 {
		return image.Rectangle{}
	}
	pv := gocv.NewPointVectorFromPoints(poly)
	defer pv.Close()
	return gocv.BoundingRect(pv)
}

// approximate simplifies a closed curve at 1% of its perimeter.
func approximate(curve gocv.PointVector) Polygon {
	epsilon := approxEpsilon * gocv.ArcLength(curve, true)
	approx := gocv.ApproxPolyDP(curve, epsilon, true)
	defer approx.Close()
	return Polygon(approx.ToPoints())
}

// hullPolygon returns the simplified convex hull of a point set. It is the
// normalisation step shared by extraction, merging and aiming.
func hullPolygon(points []image.Point) Polygon {
	if len(points) == 0 {
		return nil
	}

	pv := gocv.NewPointVectorFromPoints(points)
	defer pv.Close()

	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(pv, &hull, true, true)

	hullPoints := gocv.NewPointVectorFromMat(hull)
	defer hullPoints.Close()

	return approximate(hullPoints)
}

// concat joins the points of several polygons into a fresh slice.
func concat(polys ...Polygon) []image.Point {
	n := 0
	for _, p := range polys {
		n += len(p)
	}
	out := make([]image.Point, 0, n)
	for _, p := range polys {
		out = append(out, p...)
	}
	return out
}
