package geo

import (
	"math"
	"testing"
)

func TestDistanceSamePoint(t *testing.T) {
	if d := DistanceMeters(48.8566, 2.3522, 48.8566, 2.3522); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKnownPairs(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		// one degree of latitude is ~111.195 km with R=6371km
		{"one degree north", 0, 0, 1, 0, 111194.93, 1},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 343556, 500},
		{"antipodal", 0, 0, 0, 180, math.Pi * EarthRadiusMeters, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > tc.tolerance {
				t.Fatalf("distance = %f, want %f ± %f", got, tc.want, tc.tolerance)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := DistanceMeters(45.0, 5.0, 45.001, 5.002)
	b := DistanceMeters(45.001, 5.002, 45.0, 5.0)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("asymmetric distance: %f vs %f", a, b)
	}
}

func TestDistanceAlongMeridian(t *testing.T) {
	// ~150m north of the origin point
	lat := 45.0 + 150.0/111194.93
	if d := DistanceMeters(45.0, 5.0, lat, 5.0); math.Abs(d-150) > 0.5 {
		t.Fatalf("expected ~150m, got %f", d)
	}
}

func TestValidCoordinate(t *testing.T) {
	if !ValidCoordinate(-90, 180) {
		t.Fatalf("bounds should be valid")
	}
	if ValidCoordinate(91, 0) || ValidCoordinate(0, -181) || ValidCoordinate(math.NaN(), 0) {
		t.Fatalf("out of range coordinates should be invalid")
	}
}
