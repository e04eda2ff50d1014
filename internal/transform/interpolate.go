// Package transform maps sensor values onto the panel's visual transform and
// produces the animated values (opacity, scale) a renderer consumes.
package transform

import "math"

// Extrapolate selects what Interpolate does with inputs outside the input range.
type Extrapolate int

const (
	// Extend continues the linear mapping past the range ends.
	Extend Extrapolate = iota
	// Clamp pins the result to the output range ends.
	Clamp
)

// Range is a closed numeric interval. Min may be greater than Max for inverted outputs.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Interpolate linearly maps v from in to out.
func Interpolate(v float64, in, out Range, mode Extrapolate) float64 {
	if in.Max == in.Min {
		return out.Min
	}
	if mode == Clamp {
		lo, hi := math.Min(in.Min, in.Max), math.Max(in.Min, in.Max)
		v = math.Max(lo, math.Min(hi, v))
	}
	ratio := (v - in.Min) / (in.Max - in.Min)
	return out.Min + ratio*(out.Max-out.Min)
}

// DepthFactor simulates distance: the more the device is tilted forward or
// back, the more the panel's translation is amplified.
func DepthFactor(betaRad, gain float64) float64 {
	return 1 + math.Abs(betaRad)*gain
}
