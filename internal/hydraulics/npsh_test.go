package hydraulics

import (
	"math"
	"testing"

	"npsh-guard/internal/curve"
)

func testCurve(t *testing.T) curve.Curve {
	t.Helper()
	c, err := curve.New("test", []curve.Point{
		{Flow: 0, RequiredHead: 0.5},
		{Flow: 100, RequiredHead: 2.0},
		{Flow: 200, RequiredHead: 5.5},
	})
	if err != nil {
		t.Fatalf("curve.New: %v", err)
	}
	return c
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRequiredHeadAtCurvePoint(t *testing.T) {
	c := testCurve(t)
	if got := RequiredHead(100, c); !almostEqual(got, 2.0) {
		t.Fatalf("RequiredHead(100)=%v want 2.0", got)
	}
}

func TestRequiredHeadInterpolates(t *testing.T) {
	c := testCurve(t)
	if got := RequiredHead(50, c); !almostEqual(got, 1.25) {
		t.Fatalf("RequiredHead(50)=%v want 1.25", got)
	}
	if got := RequiredHead(150, c); !almostEqual(got, 3.75) {
		t.Fatalf("RequiredHead(150)=%v want 3.75", got)
	}
}

func TestRequiredHeadClampsAtBounds(t *testing.T) {
	c := testCurve(t)
	if got := RequiredHead(-10, c); !almostEqual(got, 0.5) {
		t.Fatalf("below-range should clamp to first point, got %v", got)
	}
	if got := RequiredHead(500, c); !almostEqual(got, 5.5) {
		t.Fatalf("above-range should clamp to last point, got %v", got)
	}
}

func TestRequiredHeadMonotoneOnMonotoneCurve(t *testing.T) {
	c := testCurve(t)
	prev := math.Inf(-1)
	for flow := -20.0; flow <= 300; flow += 7.5 {
		got := RequiredHead(flow, c)
		if got < prev {
			t.Fatalf("RequiredHead not monotone at flow=%v: %v < %v", flow, got, prev)
		}
		prev = got
	}
}

func TestRequiredHeadSinglePointIsConstant(t *testing.T) {
	c, err := curve.New("flat", []curve.Point{{Flow: 50, RequiredHead: 3.3}})
	if err != nil {
		t.Fatalf("curve.New: %v", err)
	}
	for _, flow := range []float64{0, 50, 9000} {
		if got := RequiredHead(flow, c); !almostEqual(got, 3.3) {
			t.Fatalf("single-point curve should be constant, got %v at flow=%v", got, flow)
		}
	}
}

func TestRequiredHeadExtrapolatedExtendsLastSegment(t *testing.T) {
	c := testCurve(t)

	// Inside bounds both policies agree.
	if a, b := RequiredHead(150, c), RequiredHeadExtrapolated(150, c); !almostEqual(a, b) {
		t.Fatalf("policies diverge inside bounds: %v vs %v", a, b)
	}

	// Last segment slope is (5.5-2.0)/100 = 0.035 per m3/h.
	want := 5.5 + 100*0.035
	if got := RequiredHeadExtrapolated(300, c); !almostEqual(got, want) {
		t.Fatalf("RequiredHeadExtrapolated(300)=%v want %v", got, want)
	}
}

func TestVaporPressureSingleImplementation(t *testing.T) {
	// AvailableHead must use the exact same vapor pressure value as the
	// standalone call; reconstructing it from the result must match bit-for-bit.
	const (
		temp     = 60.0
		pressure = 3.0
		static   = 2.0
		friction = 0.5
	)
	vp := VaporPressureHead(temp)
	got := AvailableHead(pressure, temp, static, friction)
	want := pressure*10.2 - vp + static - friction
	if got != want {
		t.Fatalf("AvailableHead diverges from shared vapor pressure: %v != %v", got, want)
	}
}

func TestVaporPressureReferencePoints(t *testing.T) {
	// Antoine for water: ~23.7 mmHg at 25 C, ~760 mmHg at 100 C.
	cases := []struct {
		tempC    float64
		wantMmHg float64
		tol      float64
	}{
		{25, 23.76, 0.5},
		{100, 760, 5},
	}
	for _, tc := range cases {
		head := VaporPressureHead(tc.tempC)
		mmHg := head / 10.2 * 750.062
		if math.Abs(mmHg-tc.wantMmHg) > tc.tol {
			t.Fatalf("vapor pressure at %v C: got %v mmHg want ~%v", tc.tempC, mmHg, tc.wantMmHg)
		}
	}
}

func TestAvailableHeadMayBeNegative(t *testing.T) {
	// Hot liquid at low pressure: NPSHa goes negative, no clamping.
	if got := AvailableHead(0.2, 95, 0, 1); got >= 0 {
		t.Fatalf("expected negative NPSHa, got %v", got)
	}
}
