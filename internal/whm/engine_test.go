package whm_test

import (
	"encoding/json"
	"image"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-hexbreath/internal/anim"
	"github.com/coreman2200/funtimes-hexbreath/internal/diagnostics"
	"github.com/coreman2200/funtimes-hexbreath/internal/motion"
	"github.com/coreman2200/funtimes-hexbreath/internal/overlay"
	"github.com/coreman2200/funtimes-hexbreath/internal/session"
	. "github.com/coreman2200/funtimes-hexbreath/internal/whm"
)

const dt = time.Second / 60

var settings = Settings{
	Breaths:        3,
	BreathDuration: 3 * time.Second,
	LeadIn:         time.Second,
	Card:           500 * time.Millisecond,
	Retention:      time.Second,
}

func hexStore(alloc anim.Allocator, angles ...float64) *anim.Store {
	s := anim.NewStore(anim.Options{FPS: 60, BreathDuration: 3, Allocator: alloc})
	for i, a := range angles {
		s.Add(anim.Hexagon("hex", image.Pt(400, 300), 80+40*float64(i)), motion.Params{
			AnglePerCycle: a,
			ScaleMin:      0.5,
			ScaleMax:      1.0,
			Clockwise:     i%2 == 0,
		})
	}
	return s
}

func overlays() Collaborators {
	return Collaborators{
		LeadIn:    overlay.NewTimer(time.Second),
		Card:      overlay.NewSessionCard(60, 200*time.Millisecond),
		Counter:   overlay.NewBreathCounter(settings.Breaths),
		Chrono:    overlay.NewChrono(),
		Retention: overlay.NewTimer(time.Second),
	}
}

// run records everything the engine reports while it is driven.
type run struct {
	tick      int
	phases    []Phase
	enteredAt []int
	breaths   []int
	held      []time.Duration
	empty     []bool
	atHold    []anim.CounterFrame
	atChrono  []bool
	complete  []float64
	diags     []diagnostics.Diagnostic
}

func (r *run) hooks(store *anim.Store) Hooks {
	return Hooks{
		OnPhase: func(_, to Phase) {
			r.phases = append(r.phases, to)
			r.enteredAt = append(r.enteredAt, r.tick)
			switch to {
			case Retention:
				c, _ := store.Shown()
				r.atHold = append(r.atHold, c)
			case Chrono:
				r.atChrono = append(r.atChrono, store.All(anim.AtMax))
			}
		},
		OnBreath: func(n int) { r.breaths = append(r.breaths, n) },
		OnSessionRecorded: func(_ int, held time.Duration, empty bool) {
			r.held = append(r.held, held)
			r.empty = append(r.empty, empty)
		},
		OnComplete: func(times []float64) { r.complete = times },
		Diagnostic: func(d diagnostics.Diagnostic) { r.diags = append(r.diags, d) },
	}
}

// drive ticks until the set ends, stopping every chrono after holdTicks.
func (r *run) drive(t *testing.T, e *Engine, holdTicks int) {
	t.Helper()
	inChrono := 0
	for i := 0; i < 20000 && e.Phase().Active(); i++ {
		if e.Phase() == Chrono && inChrono == holdTicks {
			require.True(t, e.Stop())
			inChrono = 0
			continue
		}
		was := e.Phase()
		r.tick++
		e.Tick(dt)
		if was == Chrono {
			inChrono++
		}
	}
	require.Equal(t, Done, e.Phase(), "set did not finish; phases %v", r.phases)
}

func (r *run) codes() map[string]int {
	out := map[string]int{}
	for _, d := range r.diags {
		out[d.Code]++
	}
	return out
}

func (r *run) ticksIn(p Phase) int {
	for i, q := range r.phases {
		if q == p && i+1 < len(r.enteredAt) {
			return r.enteredAt[i+1] - r.enteredAt[i]
		}
	}
	return -1
}

var twoSessions = []Phase{
	LeadIn, SessionCard, BreathCounting, Reappearing, Chrono, RecoveryBreath, Retention,
	SessionCard, BreathCounting, Reappearing, Chrono, RecoveryBreath, Retention,
	Done,
}

func TestFullSetWithOverlays(t *testing.T) {
	store := hexStore(nil, 30, 45, 60, 90)
	r := &run{}
	e := New(store, settings, overlays(), r.hooks(store), zerolog.Nop())

	rep, err := e.Start(session.NewController(2, session.AlternatingStartFull, nil))
	require.NoError(t, err)
	assert.Equal(t, 720, rep.TotalFrames)
	r.drive(t, e, 90)

	assert.Equal(t, twoSessions, r.phases)
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, r.breaths)
	// first displayed minimum plus three full cycles
	assert.Equal(t, 541, r.ticksIn(BreathCounting))

	require.Len(t, r.held, 2)
	for _, h := range r.held {
		assert.InDelta(t, 1.5, h.Seconds(), 1e-6)
	}
	assert.Equal(t, []bool{false, true}, r.empty)
	assert.Equal(t, []bool{true, true}, r.atChrono, "chrono starts with every shape at full scale")

	require.Len(t, r.atHold, 2)
	assert.True(t, r.atHold[0].AtScaleMax, "full-lungs retention holds at the maximum")
	assert.True(t, r.atHold[1].AtScaleMin, "empty-lungs retention holds at the minimum")

	assert.Equal(t, e.Sessions().Times(), r.complete)
	assert.Equal(t, 2, r.codes()[diagnostics.SessionRecorded])
	assert.Equal(t, 1, r.codes()[diagnostics.SessionComplete])

	assert.Equal(t, 0, store.Animating(), "buffers are released at the end of the set")
	for i, sh := range store.Shapes() {
		assert.Equal(t, 1.0, sh.Geometry.Scale)
		assert.Equal(t, image.Pt(80+40*i, 0), sh.Geometry.Offsets[0])
	}
}

func TestNilCollaboratorsGateOnFrames(t *testing.T) {
	store := hexStore(nil, 30, 45, 60, 90)
	r := &run{}
	e := New(store, settings, Collaborators{}, r.hooks(store), zerolog.Nop())

	_, err := e.Start(session.NewController(2, session.AlwaysEmpty, nil))
	require.NoError(t, err)
	r.drive(t, e, 60)

	assert.Equal(t, twoSessions, r.phases)
	assert.Equal(t, 541, r.ticksIn(BreathCounting))
	assert.Equal(t, 61, r.ticksIn(LeadIn), "sixty frames fall a few ns short of a second")
	require.Len(t, r.held, 2)
	assert.InDelta(t, 1.0, r.held[0].Seconds(), 1e-6)
	for _, c := range r.atHold {
		assert.True(t, c.AtScaleMin)
	}
}

func TestNoShapesAdvancesOnTime(t *testing.T) {
	store := hexStore(nil)
	r := &run{}
	e := New(store, settings, overlays(), r.hooks(store), zerolog.Nop())

	rep, err := e.Start(session.NewController(2, session.AlwaysFull, nil))
	require.NoError(t, err)
	assert.Empty(t, rep.Ready)
	r.drive(t, e, 30)

	assert.Equal(t, twoSessions, r.phases)
	codes := r.codes()
	assert.Equal(t, 1, codes[diagnostics.PrecomputeEmpty])
	assert.Equal(t, 6, codes[diagnostics.PhaseSkipped], "counting, reappearing and recovery, twice")
	assert.Len(t, r.held, 2)
	assert.GreaterOrEqual(t, r.ticksIn(BreathCounting), 540)
}

func TestAllocationFailureDegrades(t *testing.T) {
	budget := anim.NewBudget(anim.Footprint(720, 6)*5/2)
	store := hexStore(budget, 30, 45, 60, 90)
	r := &run{}
	e := New(store, settings, overlays(), r.hooks(store), zerolog.Nop())

	rep, err := e.Start(session.NewController(1, session.AlwaysFull, nil))
	require.NoError(t, err)
	assert.Len(t, rep.Ready, 2)
	assert.Equal(t, 2, r.codes()[diagnostics.PrecomputeAlloc])
	assert.Equal(t, 2, store.Animating())

	r.drive(t, e, 10)
	assert.Equal(t, []Phase{LeadIn, SessionCard, BreathCounting, Reappearing, Chrono, RecoveryBreath, Retention, Done}, r.phases)
	assert.Equal(t, int64(0), budget.Used())
}

func TestTimelineWithoutExtremaFinishes(t *testing.T) {
	cases := []struct {
		name      string
		fps       float64
		breath    float64
		threshold float64
		overlays  bool
	}{
		{"ten frames per breath", 10, 1, 0, false},
		{"tight threshold", 60, 3, 1e-5, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := anim.NewStore(anim.Options{FPS: tc.fps, BreathDuration: tc.breath, Threshold: tc.threshold})
			store.Add(anim.Hexagon("hex", image.Pt(400, 300), 80), motion.Params{AnglePerCycle: 30, ScaleMin: 0.5, ScaleMax: 1.0})
			st := settings
			st.BreathDuration = time.Duration(tc.breath * float64(time.Second))
			col := Collaborators{}
			if tc.overlays {
				col = overlays()
			}
			r := &run{}
			e := New(store, st, col, r.hooks(store), zerolog.Nop())

			rep, err := e.Start(session.NewController(2, session.AlternatingStartFull, nil))
			require.NoError(t, err)
			require.Len(t, rep.Ready, 1)
			_, hasMin := store.First(anim.AtMin)
			_, hasMax := store.First(anim.AtMax)
			require.False(t, hasMin || hasMax, "no frame falls inside the extremum band")

			r.drive(t, e, 30)
			assert.Equal(t, twoSessions, r.phases)
			assert.Equal(t, 6, r.codes()[diagnostics.PhaseSkipped])
			assert.Len(t, r.held, 2)
			assert.Equal(t, 0, store.Animating())
		})
	}
}

func TestRecoveryBreathPlaysOnFromTheHold(t *testing.T) {
	cases := []struct {
		pattern session.Pattern
		ticks   int
		hold    func(anim.CounterFrame) bool
	}{
		{session.AlwaysFull, 180, anim.AtMax},
		{session.AlwaysEmpty, 90, anim.AtMin},
	}
	for _, tc := range cases {
		store := hexStore(nil, 30, 45, 60, 90)
		e := New(store, settings, overlays(), Hooks{}, zerolog.Nop())
		_, err := e.Start(session.NewController(1, tc.pattern, nil))
		require.NoError(t, err)
		for e.Phase() != Chrono {
			e.Tick(dt)
		}
		held := store.ShownFrame()
		require.True(t, e.Stop())

		ticks := 0
		for ; e.Phase() == RecoveryBreath && ticks < 1000; ticks++ {
			e.Tick(dt)
			if ticks == 0 {
				assert.Equal(t, (held+1)%store.TotalFrames(), store.ShownFrame(), "%v: recovery continues from the held frame", tc.pattern)
			}
		}
		assert.Equal(t, Retention, e.Phase())
		assert.Equal(t, tc.ticks, ticks, tc.pattern.String())
		c, _ := store.Shown()
		assert.True(t, tc.hold(c), tc.pattern.String())
	}
}

func TestStopOnlyDuringChrono(t *testing.T) {
	store := hexStore(nil, 30, 45, 60, 90)
	e := New(store, settings, Collaborators{}, Hooks{}, zerolog.Nop())
	assert.False(t, e.Stop(), "idle")

	_, err := e.Start(session.NewController(1, session.AlwaysFull, nil))
	require.NoError(t, err)
	assert.False(t, e.Stop(), "lead-in")
	for e.Phase() != Chrono {
		e.Tick(dt)
	}
	for i := 0; i < 10; i++ {
		e.Tick(dt)
		assert.Equal(t, Chrono, e.Phase(), "chrono waits for stop")
	}
	assert.True(t, e.Stop())
	assert.Equal(t, RecoveryBreath, e.Phase())
	assert.False(t, e.Stop())
	assert.Len(t, e.Sessions().Times(), 1)
}

func TestStartGuards(t *testing.T) {
	e := New(hexStore(nil, 30), settings, Collaborators{}, Hooks{}, zerolog.Nop())
	_, err := e.Start(nil)
	assert.ErrorIs(t, err, ErrNoSessions)

	_, err = e.Start(session.NewController(1, session.AlwaysFull, nil))
	require.NoError(t, err)
	_, err = e.Start(session.NewController(1, session.AlwaysFull, nil))
	assert.ErrorIs(t, err, ErrActive)
}

func TestAbortReturnsToIdle(t *testing.T) {
	store := hexStore(nil, 30, 45, 60, 90)
	r := &run{}
	e := New(store, settings, overlays(), r.hooks(store), zerolog.Nop())
	_, err := e.Start(session.NewController(3, session.AlwaysFull, nil))
	require.NoError(t, err)
	for i := 0; i < 400; i++ {
		e.Tick(dt)
	}
	require.Equal(t, BreathCounting, e.Phase())

	e.Abort()
	assert.Equal(t, Idle, e.Phase())
	assert.Equal(t, 0, store.Animating())
	assert.Empty(t, e.Sessions().Times())
	assert.Nil(t, r.complete)
	assert.Equal(t, 1.0, store.Shapes()[0].Geometry.Scale)

	e.Tick(dt)
	assert.Equal(t, Idle, e.Phase(), "idle engine ignores ticks")

	_, err = e.Start(session.NewController(1, session.AlwaysFull, nil))
	assert.NoError(t, err, "aborted engine can start again")
	assert.Equal(t, 4, store.Animating())
}

func TestSnapshot(t *testing.T) {
	store := hexStore(nil, 30, 45, 60, 90)
	e := New(store, settings, overlays(), Hooks{}, zerolog.Nop())
	_, err := e.Start(session.NewController(2, session.AlternatingStartEmpty, nil))
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		e.Tick(dt)
	}
	s := e.Snapshot()
	assert.Equal(t, LeadIn, s.Phase)
	assert.InDelta(t, 0.5, s.TimerS, 0.01)
	assert.Equal(t, 1, s.Session)
	assert.Equal(t, 2, s.Sessions)
	assert.True(t, s.EmptyLungs)
	assert.Equal(t, 720, s.TotalFrames)
	assert.Len(t, s.Shapes, 4)
	assert.Len(t, s.Shapes[0].Vertices, 6)
	assert.True(t, s.Shapes[0].Animated)

	for e.Phase() != SessionCard {
		e.Tick(dt)
	}
	for i := 0; i < 10; i++ {
		e.Tick(dt)
	}
	s = e.Snapshot()
	assert.True(t, s.CardVisible)
	assert.Greater(t, s.CardPos, 0.0)

	for e.Phase() != BreathCounting {
		e.Tick(dt)
	}
	for i := 0; i < 200; i++ {
		e.Tick(dt)
	}
	s = e.Snapshot()
	assert.Equal(t, 2, s.Breaths)
	assert.Equal(t, 3, s.BreathTarget)
	assert.GreaterOrEqual(t, s.Relative, 0.0)
	assert.LessOrEqual(t, s.Relative, 1.0)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"phase":"breath_counting"`)
}

func TestPhaseNames(t *testing.T) {
	assert.Equal(t, "recovery_breath", RecoveryBreath.String())
	assert.Equal(t, "unknown", Phase(42).String())
	assert.False(t, Idle.Active())
	assert.False(t, Done.Active())
	assert.True(t, Chrono.Active())
}
