package trajectory

import (
	"math"

	"planararm/kinematics"
)

// FitOptions places a traced outline (image contour, hand drawn glyph)
// inside the arm workspace.
type FitOptions struct {
	Radius    float64 // farthest point ends up this far from the shape centre
	ShiftX    float64
	ShiftY    float64
	FlipY     bool // image rows grow downwards
	Subsample int  // keep every Nth point, <= 1 keeps all
}

// Fit subsamples the points, centres them on their mean, optionally flips Y,
// scales them to opts.Radius and translates by the shift.
func Fit(points []kinematics.Point2D, opts FitOptions) []kinematics.Point2D {
	step := opts.Subsample
	if step < 1 {
		step = 1
	}
	kept := make([]kinematics.Point2D, 0, len(points)/step+1)
	for i := 0; i < len(points); i += step {
		kept = append(kept, points[i])
	}
	if len(kept) == 0 {
		return kept
	}

	var meanX, meanY float64
	for _, p := range kept {
		meanX += p.X
		meanY += p.Y
	}
	meanX /= float64(len(kept))
	meanY /= float64(len(kept))

	maxExtent := 0.0
	for i := range kept {
		kept[i].X -= meanX
		kept[i].Y -= meanY
		if opts.FlipY {
			kept[i].Y = -kept[i].Y
		}
		maxExtent = math.Max(maxExtent, math.Hypot(kept[i].X, kept[i].Y))
	}

	scale := 1.0
	if maxExtent > 0 && opts.Radius > 0 {
		scale = opts.Radius / maxExtent
	}
	for i := range kept {
		kept[i].X = kept[i].X*scale + opts.ShiftX
		kept[i].Y = kept[i].Y*scale + opts.ShiftY
	}
	return kept
}
