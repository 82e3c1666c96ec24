package sample

import (
	"math"
	"math/rand"
)

// SpeedWalk generates a realistic vehicle speed sequence: it accelerates
// or decelerates toward a randomly resampled target, with small noise
// layered on top, per spec.md §4.6.
type SpeedWalk struct {
	min, max     float64
	current      float64
	target       float64
	accelRate    float64
	rng          *rand.Rand
}

// NewSpeedWalk creates a walk bounded to [min, max] with a random starting
// speed and acceleration rate in [0.5, 2.0] km/h per tick.
func NewSpeedWalk(min, max float64, rng *rand.Rand) *SpeedWalk {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &SpeedWalk{
		min:       min,
		max:       max,
		current:   min + rng.Float64()*(max-min)*0.5,
		target:    min + rng.Float64()*(max-min),
		accelRate: 0.5 + rng.Float64()*1.5,
		rng:       rng,
	}
}

// Next advances the walk one tick and returns the new speed, rounded to
// two decimal places.
func (w *SpeedWalk) Next() float64 {
	if w.rng.Float64() < 0.05 {
		w.target = w.min + w.rng.Float64()*(w.max-w.min)
	}

	diff := w.target - w.current
	if math.Abs(diff) > 0.1 {
		change := math.Min(math.Abs(diff), w.accelRate)
		if diff < 0 {
			change = -change
		}
		w.current += change
	} else {
		w.current += (w.rng.Float64()*2 - 1) * 1.0
	}

	w.current += w.rng.NormFloat64() * 0.5

	if w.current < w.min {
		w.current = w.min
	}
	if w.current > w.max {
		w.current = w.max
	}

	return math.Round(w.current*100) / 100
}
