package testutils

import "sync"

// ScriptedRand replays fixed draws. Once a script runs out it keeps
// returning the last value (or zero if the script was empty).
type ScriptedRand struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
	fi, ii int
	// Calls counts every draw.
	Calls int
}

func NewScriptedRand(floats []float64, ints []int) *ScriptedRand {
	return &ScriptedRand{floats: floats, ints: ints}
}

func (r *ScriptedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if len(r.floats) == 0 {
		return 0
	}
	if r.fi >= len(r.floats) {
		return r.floats[len(r.floats)-1]
	}
	v := r.floats[r.fi]
	r.fi++
	return v
}

// Intn returns the next scripted int modulo n.
func (r *ScriptedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if len(r.ints) == 0 || n <= 0 {
		return 0
	}
	var v int
	if r.ii >= len(r.ints) {
		v = r.ints[len(r.ints)-1]
	} else {
		v = r.ints[r.ii]
		r.ii++
	}
	return ((v % n) + n) % n
}
