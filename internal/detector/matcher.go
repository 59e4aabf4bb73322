package detector

import (
	"iter"
	"math"
)

// MatchTargets patches broken targets back together. A physical target split
// by glare shows up as two blobs whose centroids are nearly aligned
// horizontally.
//
// Algorithm:
//  1. Walk the candidates in order, skipping consumed ones
//  2. For candidate b, scan the later unconsumed candidates b2
//  3. First b2 within tolerance is merged with b (hull of both, simplified)
//     and both are consumed; b gets at most one merge
//  4. Candidates that never merged pass through as single-member targets
//
// Output order is the position of each target's first member.
func MatchTargets(candidates iter.Seq[Candidate], tol MatchTolerance) []FullTarget {
	var cands []Candidate
	for c := range candidates {
		cands = append(cands, c)
	}

	consumed := make([]bool, len(cands))
	targets := make([]FullTarget, 0, len(cands))

	for i, b := range cands {
		if consumed[i] {
			continue
		}

		merged := false
		for j := i + 1; j < len(cands); j++ {
			if consumed[j] {
				continue
			}
			b2 := cands[j]
			if !withinTolerance(b, b2, tol) {
				continue
			}

			targets = append(targets, FullTarget{
				Candidate: newCandidate(hullPolygon(concat(b.Polygon, b2.Polygon))),
				Members:   2,
			})
			consumed[i], consumed[j] = true, true
			merged = true
			break
		}

		if !merged {
			consumed[i] = true
			targets = append(targets, FullTarget{Candidate: b, Members: 1})
		}
	}

	return targets
}

func withinTolerance(a, b Candidate, tol MatchTolerance) bool {
	if math.Abs(a.CX-b.CX) > tol.X {
		return false
	}
	if tol.Y > 0 && math.Abs(a.CY-b.CY) > tol.Y {
		return false
	}
	return true
}
