package detector

import "fmt"

// ComputeGeometry converts a selection into bearing angles and skew.
//
//	angle          = HFOV * cx / width  - HFOV / 2
//	verticalOffset = VFOV * cy / height - VFOV / 2
//
// Both are signed degrees from the optical axis, measured at the centre of the
// aiming polygon's bounding box. Skew is only computed when a secondary target
// exists: the taller/shorter height ratio minus one, negated when the shorter
// target is on the left.
//
// Zero frame, aim or target dimensions return ErrDegenerateTarget.
func ComputeGeometry(sel Selection, width, height int, cam CameraConfig) (Result, error) {
	if width <= 0 || height <= 0 {
		return NotFound(), fmt.Errorf("%w: frame %dx%d", ErrDegenerateTarget, width, height)
	}
	if sel.Aim.Width() <= 0 || sel.Aim.Height() <= 0 {
		return NotFound(), fmt.Errorf("%w: aim box %v", ErrDegenerateTarget, sel.Aim.Box)
	}

	res := Result{
		Present:        true,
		Partial:        sel.Partial,
		Angle:          cam.HFOV*sel.Aim.CX/float64(width) - cam.HFOV/2,
		VerticalOffset: cam.VFOV*sel.Aim.CY/float64(height) - cam.VFOV/2,
	}

	if sel.Secondary == nil {
		return res, nil
	}

	skew, err := skewOf(sel.Primary.Candidate, sel.Secondary.Candidate)
	if err != nil {
		return NotFound(), err
	}
	res.Partial = false
	res.Skew = &skew
	return res, nil
}

// skewOf encodes the camera rotation relative to the target plane. The
// nearer strip looks taller; the sign says which side is nearer.
func skewOf(primary, secondary Candidate) (float64, error) {
	hp, hs := float64(primary.Height()), float64(secondary.Height())
	if hp <= 0 || hs <= 0 {
		return 0, fmt.Errorf("%w: target heights %v/%v", ErrDegenerateTarget, hp, hs)
	}

	taller, shorter := hp, hs
	shorterIsPrimary := false
	if hp < hs {
		taller, shorter = hs, hp
		shorterIsPrimary = true
	}

	skew := taller/shorter - 1

	primaryLeft := primary.CX < secondary.CX
	if skew != 0 && shorterIsPrimary == primaryLeft {
		skew = -skew
	}
	return skew, nil
}
