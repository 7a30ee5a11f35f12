package strategy

import (
	"math"
	"testing"
)

func TestCloseWindowEvicts(t *testing.T) {
	w := newCloseWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Add(v)
	}
	got := w.Values()
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Fatalf("unexpected window %v", got)
	}
}

func TestCloseWindowStats(t *testing.T) {
	w := newCloseWindow(16)
	for i := 0; i < 10; i++ {
		w.Add(100 + 2*float64(i))
	}
	if w.Trend() != 1 {
		t.Fatalf("expected up trend, got %d", w.Trend())
	}
	if math.Abs(w.Slope()-2) > 1e-9 {
		t.Fatalf("expected slope 2, got %v", w.Slope())
	}
	if math.Abs(w.Volatility()-2) > 1e-9 {
		t.Fatalf("expected volatility 2, got %v", w.Volatility())
	}

	flat := newCloseWindow(16)
	for i := 0; i < 10; i++ {
		flat.Add(100)
	}
	if flat.Trend() != 0 || flat.Slope() != 0 || flat.Volatility() != 0 {
		t.Fatal("flat series must have no trend, slope or volatility")
	}
}

func TestReversal(t *testing.T) {
	dipThenRise := []float64{105, 103, 100, 101, 102}
	if !reversal(dipThenRise, 1) {
		t.Fatal("expected bullish reversal")
	}
	if reversal(dipThenRise, -1) {
		t.Fatal("unexpected bearish reversal")
	}

	rallyThenFall := []float64{95, 97, 100, 99, 98}
	if !reversal(rallyThenFall, -1) {
		t.Fatal("expected bearish reversal")
	}

	straight := []float64{100, 101, 102, 103, 104}
	if reversal(straight, 1) {
		t.Fatal("a straight line is not a reversal")
	}
}
