package detector

import (
	"iter"

	"gocv.io/x/gocv"
)

// Vertex count window, exclusive on both ends. Fewer vertices are degenerate
// slivers, more are noisy blobs.
const (
	minVertices = 3
	maxVertices = 15
)

// ExtractCandidates finds the closed shapes in a binary mask that pass the
// vertex and size filters. The sequence is lazy and restartable: every range
// over it rescans the mask, which must stay unchanged while it is in use.
// Order follows the contour scan, not any spatial order.
func ExtractCandidates(mask gocv.Mat, minWidth, minHeight int) iter.Seq[Candidate] {
	return extractCandidates(mask, minWidth, minHeight, nil)
}

func extractCandidates(mask gocv.Mat, minWidth, minHeight int, tr *Trace) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		contours := gocv.FindContours(mask, gocv.RetrievalList, gocv.ChainApproxSimple)
		defer contours.Close()

		for i := 0; i < contours.Size(); i++ {
			contour := contours.At(i)

			approx := approximate(contour)
			tr.addApprox(approx)

			if len(approx) <= minVertices || len(approx) >= maxVertices {
				continue
			}

			box := boundingRect(approx)
			if box.Dx() <= minWidth || box.Dy() <= minHeight {
				continue
			}

			// The hull of the raw curve removes concavities left by glare
			// or partial occlusion.
			cand := newCandidate(hullPolygon(contour.ToPoints()))
			tr.addCandidate(cand)

			if !yield(cand) {
				return
			}
		}
	}
}
