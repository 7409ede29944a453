package core

import "math"

// StateVectorSize is the number of axes carried by contexts and patterns.
const StateVectorSize = 3

// StateVector is the three-axis numeric descriptor of operating condition.
// The engine treats the axes as opaque beyond numeric comparison; every
// axis is kept within [0,1].
type StateVector [StateVectorSize]float64

// Clamp bounds every axis to [0,1] and returns the result.
func (v StateVector) Clamp() StateVector {
	for i := range v {
		v[i] = Clamp01(v[i])
	}
	return v
}

// Delta returns the per-axis difference v - other.
func (v StateVector) Delta(other StateVector) StateVector {
	var d StateVector
	for i := range v {
		d[i] = v[i] - other[i]
	}
	return d
}

// Distance returns the mean absolute per-axis difference, in [0,1] for
// clamped vectors.
func (v StateVector) Distance(other StateVector) float64 {
	var sum float64
	for i := range v {
		sum += math.Abs(v[i] - other[i])
	}
	return sum / StateVectorSize
}

// Magnitude returns the mean absolute axis value. Used to normalize delta
// variance in stability scoring.
func (v StateVector) Magnitude() float64 {
	var sum float64
	for i := range v {
		sum += math.Abs(v[i])
	}
	return sum / StateVectorSize
}

// Clamp01 bounds a scalar to [0,1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
