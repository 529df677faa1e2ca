package anim

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-hexbreath/internal/motion"
)

var hexAngles = []float64{30, 45, 60, 90}

func newHexStore(t *testing.T, alloc Allocator) *Store {
	t.Helper()
	s := NewStore(Options{
		FPS:            60,
		BreathDuration: 3.0,
		Threshold:      DefaultThreshold,
		Allocator:      alloc,
	})
	center := image.Pt(400, 300)
	for i, a := range hexAngles {
		radius := 80.0 + 40.0*float64(i)
		s.Add(Hexagon("hex", center, radius), motion.Params{
			AnglePerCycle: a,
			ScaleMin:      0.5,
			ScaleMax:      1.0,
			Clockwise:     i%2 == 0,
		})
	}
	return s
}

func TestPrecomputeBufferLengths(t *testing.T) {
	s := newHexStore(t, nil)
	rep := s.Precompute()
	require.NoError(t, rep.Err())

	assert.Equal(t, 4, rep.Cycles)
	assert.Equal(t, 720, rep.TotalFrames)
	assert.Len(t, rep.Ready, 4)
	for _, sh := range s.Shapes() {
		n := len(sh.Geometry.Base)
		assert.Equal(t, 6, n)
		assert.Len(t, sh.xs, rep.TotalFrames*n)
		assert.Len(t, sh.ys, rep.TotalFrames*n)
		assert.Len(t, sh.counters, rep.TotalFrames)
		assert.Equal(t, 0, sh.CurrentFrame())
		assert.False(t, sh.Frozen())
	}
}

func TestAdvanceClosesTheWindow(t *testing.T) {
	s := newHexStore(t, nil)
	rep := s.Precompute()
	require.NoError(t, rep.Err())

	s.Advance()
	first := make([][]image.Point, s.Len())
	for i, sh := range s.Shapes() {
		first[i] = append([]image.Point(nil), sh.Geometry.Offsets...)
	}
	for i := 1; i < rep.TotalFrames; i++ {
		s.Advance()
	}
	for i, sh := range s.Shapes() {
		assert.Equal(t, 0, sh.CurrentFrame(), "shape %d cursor wraps", i)
		assert.Equal(t, rep.TotalFrames-1, sh.ShownFrame())
	}
	s.Advance()
	for i, sh := range s.Shapes() {
		assert.Equal(t, first[i], sh.Geometry.Offsets, "shape %d returns to frame 0", i)
	}
}

func TestAlignedWindowEndsWhereItStarted(t *testing.T) {
	s := newHexStore(t, nil)
	rep := s.Precompute()
	require.NoError(t, rep.Err())

	end := float64(rep.TotalFrames) / s.FPS()
	for i, sh := range s.Shapes() {
		start, ok := sh.OffsetsAt(0)
		require.True(t, ok)

		smp := motion.Evaluate(end, sh.Params)
		sin, cos := math.Sincos(smp.Rotation * math.Pi / 180)
		for _, b := range sh.Geometry.Base {
			x := math.Round((b.X*cos - b.Y*sin) * smp.Scale)
			y := math.Round((b.X*sin + b.Y*cos) * smp.Scale)
			matched := false
			for _, p := range start {
				if math.Abs(float64(p.X)-x) <= 1 && math.Abs(float64(p.Y)-y) <= 1 {
					matched = true
					break
				}
			}
			assert.True(t, matched, "shape %d vertex (%v,%v) not in start frame %v", i, x, y, start)
		}
	}
}

func TestExtremumFramesOncePerCycle(t *testing.T) {
	s := newHexStore(t, nil)
	rep := s.Precompute()
	require.NoError(t, rep.Err())

	for i, sh := range s.Shapes() {
		mins, maxs := 0, 0
		for _, c := range sh.Counters() {
			if c.AtScaleMin {
				mins++
			}
			if c.AtScaleMax {
				maxs++
			}
			if c.Relative < 0 || c.Relative > 1 {
				t.Fatalf("shape %d relative %v outside [0,1]", i, c.Relative)
			}
		}
		assert.Equal(t, rep.Cycles, mins, "shape %d min frames", i)
		assert.Equal(t, rep.Cycles, maxs, "shape %d max frames", i)
	}
}

func TestExtremumFramePositions(t *testing.T) {
	s := newHexStore(t, nil)
	s.Precompute()

	f, ok := s.First(AtMin)
	require.True(t, ok)
	// 180 frames per cycle; the minimum is at frame 90, the flag on the way up.
	assert.Equal(t, 91, f)

	f, ok = s.First(AtMax)
	require.True(t, ok)
	assert.Equal(t, 1, f)
}

// countingAlloc fails the n-th allocation request.
type countingAlloc struct {
	*Budget
	calls  int
	failAt int
}

func (a *countingAlloc) Offsets(n int) ([]int32, error) {
	a.calls++
	if a.calls == a.failAt {
		return nil, ErrAllocation
	}
	return a.Budget.Offsets(n)
}

func (a *countingAlloc) Counters(n int) ([]CounterFrame, error) {
	a.calls++
	if a.calls == a.failAt {
		return nil, ErrAllocation
	}
	return a.Budget.Counters(n)
}

func TestPartialAllocationFailureSkipsShape(t *testing.T) {
	// shape 1 asks for x, y, counters on calls 4, 5 and 6
	alloc := &countingAlloc{Budget: NewBudget(0), failAt: 6}
	s := newHexStore(t, alloc)
	rep := s.Precompute()

	require.Len(t, rep.Failed, 1)
	assert.Equal(t, 1, rep.Failed[0].Index)
	assert.True(t, errors.Is(rep.Err(), ErrAllocation))
	assert.Equal(t, []int{0, 2, 3}, rep.Ready)

	bad, _ := s.Shape(1)
	assert.False(t, bad.Ready())
	assert.Nil(t, bad.xs)
	assert.Nil(t, bad.ys)
	assert.Nil(t, bad.counters)
	assert.Equal(t, 3*Footprint(rep.TotalFrames, 6), alloc.Used(), "partial buffers must be returned")

	// a shape without buffers is simply not animated
	before := append([]image.Point(nil), bad.Geometry.Offsets...)
	s.Advance()
	assert.Equal(t, before, bad.Geometry.Offsets)
	assert.Equal(t, 3, s.Animating())
}

func TestBudgetExhaustion(t *testing.T) {
	one := Footprint(720, 6)
	alloc := NewBudget(2*one + one/2)
	s := newHexStore(t, alloc)
	rep := s.Precompute()

	assert.Len(t, rep.Ready, 2)
	assert.Len(t, rep.Failed, 2)

	s.Release()
	assert.Equal(t, int64(0), alloc.Used())

	// re-precompute reuses the freed budget
	rep = s.Precompute()
	assert.Len(t, rep.Ready, 2)
}

func TestReleaseKeepsGeometry(t *testing.T) {
	s := newHexStore(t, nil)
	s.Precompute()
	sh, _ := s.Shape(2)
	base := append([]Vec2(nil), sh.Geometry.Base...)
	params := sh.Params

	s.Release()
	assert.False(t, sh.Ready())
	assert.Equal(t, 0, sh.TotalFrames())
	assert.Equal(t, 0, sh.CurrentFrame())
	assert.Equal(t, 0, s.TotalFrames())
	assert.Equal(t, base, sh.Geometry.Base)
	assert.Equal(t, params, sh.Params)
}

func TestPrecomputeIsReproducible(t *testing.T) {
	s := newHexStore(t, nil)
	s.Precompute()
	sh, _ := s.Shape(1)
	xs := append([]int32(nil), sh.xs...)
	ys := append([]int32(nil), sh.ys...)

	for i := 0; i < 50; i++ {
		s.Advance()
	}
	s.Precompute()
	assert.Equal(t, xs, sh.xs)
	assert.Equal(t, ys, sh.ys)
	assert.Equal(t, 0, sh.CurrentFrame())
}

func TestFrozenShapesHold(t *testing.T) {
	s := newHexStore(t, nil)
	s.Precompute()
	s.Advance()
	s.Freeze()
	sh, _ := s.Shape(0)
	cursor := sh.CurrentFrame()
	offs := append([]image.Point(nil), sh.Geometry.Offsets...)
	for i := 0; i < 10; i++ {
		s.Advance()
	}
	assert.Equal(t, cursor, sh.CurrentFrame())
	assert.Equal(t, offs, sh.Geometry.Offsets)

	s.Seek(-1)
	assert.Equal(t, 719, sh.CurrentFrame())
	s.Unfreeze()
	s.Advance()
	assert.Equal(t, 719, sh.ShownFrame())
	assert.Equal(t, 0, sh.CurrentFrame())
}

func TestAllRequiresEveryReadyShape(t *testing.T) {
	s := newHexStore(t, nil)
	s.Precompute()
	assert.False(t, s.All(AtMax), "nothing shown yet")

	s.Seek(1)
	s.Advance()
	assert.True(t, s.All(AtMax))
	s.Advance()
	assert.False(t, s.All(AtMax))
}

func TestResetToBaseline(t *testing.T) {
	s := newHexStore(t, nil)
	s.Precompute()
	for i := 0; i < 77; i++ {
		s.Advance()
	}
	s.Release()
	s.ResetToBaseline()
	sh, _ := s.Shape(0)
	assert.Equal(t, 1.0, sh.Geometry.Scale)
	assert.Equal(t, image.Pt(80, 0), sh.Geometry.Offsets[0])
	assert.Equal(t, image.Pt(400, 300), sh.Geometry.Center)
}

func TestPrecomputeWithoutShapes(t *testing.T) {
	s := NewStore(Options{FPS: 60, BreathDuration: 3})
	rep := s.Precompute()
	assert.ErrorIs(t, rep.Err(), ErrNoShapes)
	_, ok := s.Reference()
	assert.False(t, ok)
}

func TestAlignmentCap(t *testing.T) {
	s := NewStore(Options{FPS: 10, BreathDuration: 1, MaxCycles: 8})
	s.Add(Hexagon("a", image.Point{}, 10), motion.Params{AnglePerCycle: 7, ScaleMin: 0.5, ScaleMax: 1})
	s.Add(Hexagon("b", image.Point{}, 10), motion.Params{AnglePerCycle: 11, ScaleMin: 0.5, ScaleMax: 1})
	rep := s.Precompute()
	assert.True(t, rep.Capped)
	assert.Equal(t, 8, rep.Cycles)
	assert.Equal(t, 80, rep.TotalFrames)
}
