package geodesy

import (
	"math"
	"testing"
)

func TestEarthRate(t *testing.T) {
	// At the equator the full rate points north; at the pole it points down.
	eq := EarthRate(0)
	if math.Abs(eq[0]-EarthRateMag) > 1e-15 || eq[1] != 0 || math.Abs(eq[2]) > 1e-15 {
		t.Errorf("equator earth rate = %v", eq)
	}

	pole := EarthRate(math.Pi / 2)
	if math.Abs(pole[0]) > 1e-12 || math.Abs(pole[2]+EarthRateMag) > 1e-15 {
		t.Errorf("pole earth rate = %v", pole)
	}

	// Magnitude is invariant with latitude.
	for _, lat := range []float64{-1.2, -0.3, 0.1, 0.9} {
		if got := EarthRate(lat).Norm(); math.Abs(got-EarthRateMag) > 1e-15 {
			t.Errorf("|earth rate| at lat %.2f = %g, want %g", lat, got, EarthRateMag)
		}
	}
}

func TestTransportRate(t *testing.T) {
	// Stationary vehicle: no transport rate.
	w := TransportRate(0.7, 0, 0, 100)
	if w.Norm() != 0 {
		t.Errorf("stationary transport rate = %v, want zero", w)
	}

	// Pure north velocity rotates about the east axis only.
	w = TransportRate(0.7, 100, 0, 0)
	if w[0] != 0 || w[2] != 0 {
		t.Errorf("north-velocity transport rate = %v, want only east component", w)
	}
	if w[1] >= 0 {
		t.Errorf("north velocity must give negative east rate, got %v", w[1])
	}
}

func TestGravity(t *testing.T) {
	g0 := Gravity(0, 0)
	if g0[0] != 0 || g0[1] != 0 {
		t.Errorf("gravity has horizontal components: %v", g0)
	}
	if g0[2] < 9.77 || g0[2] > 9.79 {
		t.Errorf("equatorial gravity = %v, want ~9.780", g0[2])
	}

	gPole := Gravity(math.Pi/2, 0)
	if gPole[2] < 9.82 || gPole[2] > 9.84 {
		t.Errorf("polar gravity = %v, want ~9.832", gPole[2])
	}
	if gPole[2] <= g0[2] {
		t.Error("gravity must increase toward the poles")
	}

	// Free-air correction reduces gravity with altitude.
	if gh := Gravity(0.7, 1000); gh[2] >= Gravity(0.7, 0)[2] {
		t.Error("gravity must decrease with altitude")
	}
}

func TestRadii(t *testing.T) {
	rm, rn := Radii(0)
	if math.Abs(rn-SemiMajorAxis) > 1e-6 {
		t.Errorf("equatorial normal radius = %v, want %v", rn, SemiMajorAxis)
	}
	if rm >= rn {
		t.Errorf("at the equator rm (%v) must be < rn (%v)", rm, rn)
	}

	// Both radii grow with latitude and meet near the polar radius of curvature.
	rm90, rn90 := Radii(math.Pi / 2)
	if rm90 <= rm || rn90 <= rn {
		t.Error("radii must increase toward the poles")
	}
	if math.Abs(rm90-rn90) > 1 {
		t.Errorf("polar radii differ: rm=%v rn=%v", rm90, rn90)
	}
}

func TestVec3Ops(t *testing.T) {
	a := Vec3{1, 0, 0}
	b := Vec3{0, 1, 0}
	if got := a.Cross(b); got != (Vec3{0, 0, 1}) {
		t.Errorf("x cross y = %v, want z", got)
	}
	if got := a.Add(b).Sub(b); got != a {
		t.Errorf("add/sub roundtrip = %v, want %v", got, a)
	}
	if got := a.Scale(3).Norm(); got != 3 {
		t.Errorf("|3x| = %v, want 3", got)
	}
}
