package motion

import "math"

// Epsilon is the tolerance used by the fractional gcd.
const Epsilon = 1e-10

// SymmetryOf returns the self-mapping rotation of a regular polygon with n vertices.
func SymmetryOf(n int) float64 {
	if n <= 0 {
		return 360
	}
	return 360 / float64(n)
}

// CyclesPerTurn is the number of breath cycles a shape needs to rotate
// through one symmetry step. Zero when the shape does not rotate.
func CyclesPerTurn(angle, symmetry float64) float64 {
	if angle <= 0 {
		return 0
	}
	return symmetry / angle
}

// GCD is Euclid's algorithm over positive reals. Remainders within
// Epsilon of zero, or of the divisor, count as an exact division.
func GCD(a, b float64) float64 {
	a, b = math.Abs(a), math.Abs(b)
	for b > Epsilon {
		r := math.Mod(a, b)
		if r < Epsilon || math.Abs(r-b) < Epsilon {
			r = 0
		}
		a, b = b, r
	}
	return a
}

// LCM of two positive reals.
func LCM(a, b float64) float64 {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	return a * b / GCD(a, b)
}

// AlignedCycles returns the smallest whole number of breath cycles after
// which every shape is back at its start orientation. Ratios are the
// per-shape cycle counts from CyclesPerTurn; non-positive ratios are ignored.
// The result is always rounded up and never less than one.
func AlignedCycles(ratios ...float64) int {
	l := 0.0
	for _, r := range ratios {
		if r <= 0 {
			continue
		}
		l = LCM(l, r)
	}
	if l <= 0 {
		return 1
	}
	n := int(math.Ceil(l - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// FramesPerCycle rounds fps*breathDuration to whole frames.
func FramesPerCycle(fps, breathDuration float64) int {
	n := int(math.Round(fps * breathDuration))
	if n < 1 {
		return 0
	}
	return n
}

// TotalFrames is the length of the aligned window in frames.
func TotalFrames(cycles int, fps, breathDuration float64) int {
	return cycles * FramesPerCycle(fps, breathDuration)
}
