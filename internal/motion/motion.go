package motion

import "math"

// Params describes how one shape pulses and turns over a breath cycle.
// Values are fixed for the lifetime of a session.
type Params struct {
	AnglePerCycle  float64 `yaml:"angle" json:"angle"` // degrees of net rotation per cycle
	ScaleMin       float64 `yaml:"scale_min" json:"scaleMin"`
	ScaleMax       float64 `yaml:"scale_max" json:"scaleMax"`
	Clockwise      bool    `yaml:"clockwise" json:"clockwise"`
	BreathDuration float64 `yaml:"-" json:"breathDuration"` // seconds per inhale+exhale
}

// Sample is the instantaneous transform of a shape.
type Sample struct {
	Rotation float64 // degrees
	Scale    float64
}

// Progress splits t into completed cycles and the fractional position
// within the current cycle, in [0,1).
func Progress(t float64, p Params) (cycles, progress float64) {
	if p.BreathDuration <= 0 {
		return 0, 0
	}
	cycles = t / p.BreathDuration
	progress = math.Mod(cycles, 1.0)
	if progress < 0 {
		progress += 1.0
	}
	return cycles, progress
}

// ScaleAt returns the breathing scale at time t. The cycle starts full
// (ScaleMax), empties at the half way point and fills back up.
func ScaleAt(t float64, p Params) float64 {
	_, progress := Progress(t, p)
	return scaleFor(progress, p)
}

func scaleFor(progress float64, p Params) float64 {
	return p.ScaleMin + (p.ScaleMax-p.ScaleMin)*(math.Cos(progress*2*math.Pi)+1)/2
}

// EaseInOutCubic is the rotation blend used within a cycle.
func EaseInOutCubic(x float64) float64 {
	if x < 0.5 {
		return 4 * x * x * x
	}
	f := 2*x - 2
	return 0.5*f*f*f + 1
}

// Evaluate is the motion model: pure and reproducible for identical inputs.
func Evaluate(t float64, p Params) Sample {
	cycles, progress := Progress(t, p)
	rot := p.AnglePerCycle*math.Floor(cycles) + p.AnglePerCycle*EaseInOutCubic(progress)
	if !p.Clockwise {
		rot = -rot
	}
	return Sample{Rotation: rot, Scale: scaleFor(progress, p)}
}

// Relative maps a scale onto [0,1], 0 being empty lungs and 1 full.
func Relative(scale float64, p Params) float64 {
	span := p.ScaleMax - p.ScaleMin
	if span <= 0 {
		return 1
	}
	r := (scale - p.ScaleMin) / span
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
