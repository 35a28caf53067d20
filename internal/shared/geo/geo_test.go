package geo

import (
	"math"
	"testing"
)

func TestHaversineMTokyoStation(t *testing.T) {
	// Tokyo Station to Nihonbashi, roughly 800m-1.2km apart
	a := Point{Lat: 35.681, Lng: 139.767}
	b := Point{Lat: 35.6837, Lng: 139.7745}
	d := HaversineM(a, b)
	if d < 600 || d > 1200 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineMSymmetry(t *testing.T) {
	a := Point{Lat: 35.681, Lng: 139.767}
	b := Point{Lat: 35.6811, Lng: 139.7671}
	if d1, d2 := HaversineM(a, b), HaversineM(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %v vs %v", d1, d2)
	}
}

func TestHaversineMZero(t *testing.T) {
	p := Point{Lat: -6.2, Lng: 106.816}
	if d := HaversineM(p, p); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestAverage(t *testing.T) {
	avg := Average([]Point{{Lat: 35.681, Lng: 139.767}, {Lat: 35.683, Lng: 139.769}})
	if math.Abs(avg.Lat-35.682) > 1e-9 || math.Abs(avg.Lng-139.768) > 1e-9 {
		t.Fatalf("unexpected average: %+v", avg)
	}
}

func TestAverageEmpty(t *testing.T) {
	if avg := Average(nil); avg.Lat != 0 || avg.Lng != 0 {
		t.Fatalf("expected zero point for empty input")
	}
}

func TestValidStep(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.0, 0},
		{1.49, 0},
		{1.5, 1.5},
		{8.0, 8.0},
		{15.0, 15.0},
		{15.01, 0},
		{40.0, 0},
	}
	for _, c := range cases {
		if got := ValidStep(c.in); got != c.want {
			t.Fatalf("ValidStep(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
