package geo

import (
	"math"
	"testing"
)

const (
	distTol    = 0.01 // meters
	bearingTol = 1e-6 // degrees
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestProjectDueNorth(t *testing.T) {
	lat, lon := Project(47.3977, 8.5456, 0, 100, 0)
	if !near(lon, 8.5456, 1e-12) {
		t.Fatalf("longitude changed moving north: %v", lon)
	}
	if lat <= 47.3977 {
		t.Fatalf("latitude did not increase: %v", lat)
	}
	if d := Distance(47.3977, 8.5456, lat, lon); !near(d, 100, distTol) {
		t.Fatalf("distance = %v, want 100", d)
	}
}

func TestProjectFormationOffsets(t *testing.T) {
	cases := []struct {
		name     string
		angle    float64
		wantSign float64
	}{
		{"ahead of eastbound leader", 0, 1},
		{"behind eastbound leader", 180, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lat, lon := Project(0, 0, 90, 100, tc.angle)
			if !near(lat, 0, 1e-9) {
				t.Fatalf("latitude drifted: %v", lat)
			}
			if math.Signbit(lon) != math.Signbit(tc.wantSign) {
				t.Fatalf("longitude %v has wrong sign", lon)
			}
			if d := Distance(0, 0, lat, lon); !near(d, 100, distTol) {
				t.Fatalf("distance = %v, want 100", d)
			}
		})
	}
}

func TestProjectRoundTrip(t *testing.T) {
	cases := []struct {
		lat, lon, heading, dist, angle float64
	}{
		{47.3977, 8.5456, 30, 25, 45},
		{-33.86, 151.2, 350, 500, -90},
		{0, 179.9999, 90, 50, 0},
		{60, -20, 180, 1000, 120},
	}
	for _, tc := range cases {
		lat, lon := Project(tc.lat, tc.lon, tc.heading, tc.dist, tc.angle)
		if d := Distance(tc.lat, tc.lon, lat, lon); !near(d, tc.dist, distTol) {
			t.Errorf("%+v: distance = %v", tc, d)
		}
		want := NormalizeHeading(tc.heading + tc.angle)
		got := Bearing(tc.lat, tc.lon, lat, lon)
		diff := math.Abs(got - want)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > bearingTol*1000 {
			t.Errorf("%+v: bearing = %v, want %v", tc, got, want)
		}
	}
}

func TestProjectWrapsLongitude(t *testing.T) {
	_, lon := Project(0, 179.9999, 90, 100, 0)
	if lon >= 180 || lon < -180 {
		t.Fatalf("longitude not normalized: %v", lon)
	}
	if lon > 0 {
		t.Fatalf("expected crossing of antimeridian, got %v", lon)
	}
}

func TestProjectPropagatesNaN(t *testing.T) {
	lat, lon := Project(math.NaN(), 0, 0, 100, 0)
	if !math.IsNaN(lat) || !math.IsNaN(lon) {
		t.Fatalf("expected NaN, got %v %v", lat, lon)
	}
}

func TestNormalizeHeading(t *testing.T) {
	for in, want := range map[float64]float64{-90: 270, 360: 0, 725: 5, 45: 45} {
		if got := NormalizeHeading(in); !near(got, want, 1e-9) {
			t.Errorf("NormalizeHeading(%v) = %v, want %v", in, got, want)
		}
	}
}
