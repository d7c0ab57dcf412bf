// Package hydraulics implements the NPSH calculation engine: vapor pressure,
// available suction head, and curve-based required head. All functions are
// pure and keep full float64 precision; rounding happens only at the
// presentation boundary.
package hydraulics

import (
	"math"

	"npsh-guard/internal/curve"
)

// Antoine equation constants for water, valid 1–100 °C, pressure in mmHg.
const (
	antoineA = 8.07131
	antoineB = 1730.63
	antoineC = 233.426
)

const (
	mmHgPerBar   = 750.062
	metersPerBar = 10.2 // water column equivalent of 1 bar
)

// VaporPressureHead returns the vapor pressure of water at tempC expressed as
// meters of water column. This is the single vapor-pressure implementation;
// both the available-head and required-head paths must go through it.
func VaporPressureHead(tempC float64) float64 {
	mmHg := math.Pow(10, antoineA-antoineB/(antoineC+tempC))
	bar := mmHg / mmHgPerBar
	return bar * metersPerBar
}

// AvailableHead computes NPSHa in meters from suction pressure (bar absolute),
// liquid temperature, static head, and friction losses. No clamping: the
// result may be negative.
func AvailableHead(pressureBar, tempC, staticHeadM, frictionLossM float64) float64 {
	return pressureBar*metersPerBar - VaporPressureHead(tempC) + staticHeadM - frictionLossM
}

// RequiredHead computes NPSHr at the given flow by piecewise-linear
// interpolation over the curve. Flows outside the curve bounds clamp flat to
// the first or last point's value; use RequiredHeadExtrapolated when
// beyond-range extension is wanted.
func RequiredHead(flow float64, c curve.Curve) float64 {
	pts := c.Points
	if len(pts) == 0 {
		return 0
	}
	if flow <= pts[0].Flow {
		return pts[0].RequiredHead
	}
	if flow >= pts[len(pts)-1].Flow {
		return pts[len(pts)-1].RequiredHead
	}
	return interpolate(flow, pts)
}

// RequiredHeadExtrapolated behaves like RequiredHead inside the curve bounds
// but linearly extends the last segment's slope beyond the final point. Kept
// as a distinct function so the two edge policies cannot silently diverge.
func RequiredHeadExtrapolated(flow float64, c curve.Curve) float64 {
	pts := c.Points
	if len(pts) == 0 {
		return 0
	}
	if len(pts) == 1 || flow <= pts[len(pts)-1].Flow {
		return RequiredHead(flow, c)
	}

	a, b := pts[len(pts)-2], pts[len(pts)-1]
	slope := (b.RequiredHead - a.RequiredHead) / (b.Flow - a.Flow)
	return b.RequiredHead + (flow-b.Flow)*slope
}

func interpolate(flow float64, pts []curve.Point) float64 {
	for i := 1; i < len(pts); i++ {
		if flow <= pts[i].Flow {
			a, b := pts[i-1], pts[i]
			frac := (flow - a.Flow) / (b.Flow - a.Flow)
			return a.RequiredHead + frac*(b.RequiredHead-a.RequiredHead)
		}
	}
	return pts[len(pts)-1].RequiredHead
}
