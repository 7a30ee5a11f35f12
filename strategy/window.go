package strategy

import "math"

const (
	trendLookback = 6
	slopeLookback = 8
)

// closeWindow keeps the most recent closes and derives cheap price-only
// statistics. It backs up the indicator suite while indicators are still
// settling and feeds the reversal checks of the swing provider.
type closeWindow struct {
	size int
	buf  []float64
}

func newCloseWindow(size int) *closeWindow {
	if size <= 0 {
		size = 16
	}
	return &closeWindow{size: size, buf: make([]float64, 0, size)}
}

func (w *closeWindow) Add(v float64) {
	if len(w.buf) == w.size {
		copy(w.buf, w.buf[1:])
		w.buf = w.buf[:w.size-1]
	}
	w.buf = append(w.buf, v)
}

func (w *closeWindow) Len() int { return len(w.buf) }

func (w *closeWindow) Values() []float64 {
	return append([]float64(nil), w.buf...)
}

// tail returns the last n+1 closes, i.e. enough for n differences.
func (w *closeWindow) tail(n int) []float64 {
	if n >= len(w.buf) {
		return w.buf
	}
	return w.buf[len(w.buf)-n-1:]
}

// Trend is +1 when most recent moves are up, -1 when most are down.
func (w *closeWindow) Trend() int {
	if len(w.buf) < 2 {
		return 0
	}
	seg := w.tail(trendLookback)
	score := 0
	for i := 1; i < len(seg); i++ {
		switch {
		case seg[i] > seg[i-1]:
			score++
		case seg[i] < seg[i-1]:
			score--
		}
	}
	need := (len(seg) - 1) / 3
	if need < 2 {
		need = 2
	}
	switch {
	case score >= need:
		return 1
	case score <= -need:
		return -1
	}
	return 0
}

// Slope is the least-squares slope of the recent closes per bar.
func (w *closeWindow) Slope() float64 {
	if len(w.buf) < 2 {
		return 0
	}
	seg := w.tail(slopeLookback)
	var sx, sy, sxy, sxx float64
	for i, y := range seg {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	n := float64(len(seg))
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

// Volatility is the mean absolute bar-to-bar change.
func (w *closeWindow) Volatility() float64 {
	if len(w.buf) < 2 {
		return 0
	}
	seg := w.tail(slopeLookback)
	sum := 0.0
	for i := 1; i < len(seg); i++ {
		sum += math.Abs(seg[i] - seg[i-1])
	}
	return sum / float64(len(seg)-1)
}
