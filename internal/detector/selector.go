package detector

import "math"

// SelectTargets picks the aiming target(s) from the patched candidates.
//
// The primary is the target whose centroid is horizontally closest to the
// frame centre. A secondary is any other target within gearSpacing primary
// heights of it horizontally; when several qualify the one closest to the
// frame centre wins. Ties go to the earlier target.
//
// Returns false when targets is empty.
func SelectTargets(targets []FullTarget, width, height int, gearSpacing float64) (Selection, bool) {
	if len(targets) == 0 {
		return Selection{}, false
	}

	centerX := float64(width) / 2

	primaryIdx := closestToCenter(targets, centerX, func(int) bool { return true })
	primary := targets[primaryIdx]

	window := gearSpacing * float64(primary.Height())
	secondaryIdx := closestToCenter(targets, centerX, func(i int) bool {
		return i != primaryIdx && math.Abs(targets[i].CX-primary.CX) < window
	})

	sel := Selection{Primary: primary, Partial: true}
	if secondaryIdx < 0 {
		sel.Aim = newCandidate(hullPolygon(primary.Polygon))
		return sel, true
	}

	secondary := targets[secondaryIdx]
	sel.Secondary = &secondary
	sel.Partial = false
	sel.Aim = newCandidate(hullPolygon(concat(secondary.Polygon, primary.Polygon)))
	return sel, true
}

// closestToCenter returns the index of the eligible target nearest centerX
// horizontally, or -1 if none is eligible.
func closestToCenter(targets []FullTarget, centerX float64, eligible func(int) bool) int {
	best := -1
	bestDist := math.Inf(1)
	for i, t := range targets {
		if !eligible(i) {
			continue
		}
		d := math.Abs(t.CX - centerX)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
