package whm

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-hexbreath/internal/anim"
	"github.com/coreman2200/funtimes-hexbreath/internal/diagnostics"
	"github.com/coreman2200/funtimes-hexbreath/internal/session"
)

var (
	ErrActive     = errors.New("session set already running")
	ErrNoSessions = errors.New("no session controller")
)

// Engine sequences a guided session set. It is driven from a single
// goroutine: Tick, Stop, Abort and Snapshot must not be called concurrently.
type Engine struct {
	store    *anim.Store
	settings Settings
	col      Collaborators
	hooks    Hooks
	log      zerolog.Logger

	sessions  *session.Controller
	phase     Phase
	phaseTime time.Duration

	minSeen    int           // minimum flags shown during breath counting
	held       time.Duration // fallback stopwatch
	recoverTo  func(anim.CounterFrame) bool
	skipVisual bool
}

func New(store *anim.Store, s Settings, col Collaborators, hooks Hooks, log zerolog.Logger) *Engine {
	return &Engine{store: store, settings: s, col: col, hooks: hooks, log: log}
}

func (e *Engine) Phase() Phase                  { return e.phase }
func (e *Engine) Sessions() *session.Controller { return e.sessions }
func (e *Engine) Store() *anim.Store            { return e.store }

// Start precomputes the animation window and enters the lead-in. Buffer
// failures are reported as diagnostics; the set still runs.
func (e *Engine) Start(sessions *session.Controller) (anim.PrecomputeReport, error) {
	if e.phase.Active() {
		return anim.PrecomputeReport{}, ErrActive
	}
	if sessions == nil {
		return anim.PrecomputeReport{}, ErrNoSessions
	}
	e.sessions = sessions

	rep := e.store.Precompute()
	e.reportPrecompute(rep)
	e.store.ResetToBaseline()
	e.store.Seek(0)
	e.store.Freeze()

	if e.col.Counter != nil {
		e.col.Counter.Reset(e.settings.Breaths)
	}
	if e.col.Retention != nil {
		e.col.Retention.Reset()
	}
	e.enter(LeadIn)
	return rep, nil
}

func (e *Engine) reportPrecompute(rep anim.PrecomputeReport) {
	if rep.Capped {
		e.hooks.Diagnostic.Emit(diagnostics.Diagnostic{
			Severity: diagnostics.Warn,
			Code:     diagnostics.AlignCapped,
			Summary:  "aligned cycle count capped",
			Detail:   "rotation will not return exactly to its start at the end of the window",
			Evidence: map[string]any{"cycles": rep.Cycles, "frames": rep.TotalFrames},
		})
	}
	for _, f := range rep.Failed {
		e.hooks.Diagnostic.Emit(diagnostics.Diagnostic{
			Severity:       diagnostics.Warn,
			Code:           diagnostics.PrecomputeAlloc,
			Summary:        "shape will not animate this session",
			Detail:         f.Err.Error(),
			SuggestedFixes: []string{"raise max_buffer_mb", "lower max_cycles", "lower fps"},
			Evidence:       map[string]any{"shape": f.Index, "id": f.ID, "frames": rep.TotalFrames},
		})
	}
	if len(rep.Ready) == 0 {
		e.hooks.Diagnostic.Emit(diagnostics.Diagnostic{
			Severity: diagnostics.Warn,
			Code:     diagnostics.PrecomputeEmpty,
			Summary:  "no animated shapes; phases will gate on time only",
		})
	}
}

// Tick advances the animation one frame and then evaluates the current
// phase against the frame now on screen.
func (e *Engine) Tick(dt time.Duration) {
	if !e.phase.Active() {
		return
	}
	e.store.Advance()
	e.phaseTime += dt
	shown, hasShown := e.store.Shown()

	switch e.phase {
	case LeadIn:
		if c := e.col.LeadIn; c != nil {
			c.Update(dt)
			if c.Done() {
				e.enter(SessionCard)
			}
		} else if e.phaseTime >= e.settings.LeadIn {
			e.enter(SessionCard)
		}

	case SessionCard:
		if c := e.col.Card; c != nil {
			c.Update(dt)
			if c.Done() {
				e.enter(BreathCounting)
			}
		} else if e.phaseTime >= e.settings.Card {
			e.enter(BreathCounting)
		}

	case BreathCounting:
		if hasShown {
			if e.col.Counter != nil {
				e.col.Counter.Observe(shown)
			}
			if shown.AtScaleMin {
				e.minSeen++
				if e.minSeen <= e.settings.Breaths && e.hooks.OnBreath != nil {
					e.hooks.OnBreath(e.minSeen)
				}
			}
		}
		if e.breathsDone() {
			e.enter(Reappearing)
		}

	case Reappearing:
		if e.skipVisual || e.store.All(anim.AtMax) {
			e.enter(Chrono)
		}

	case Chrono:
		e.held += dt
		if e.col.Chrono != nil {
			e.col.Chrono.Update(dt)
		}

	case RecoveryBreath:
		if e.skipVisual {
			if e.phaseTime >= e.settings.BreathDuration/2 {
				e.enter(Retention)
			}
		} else if e.store.All(e.recoverTo) {
			e.enter(Retention)
		}

	case Retention:
		if c := e.col.Retention; c != nil {
			c.Update(dt)
			if c.Done() {
				e.loop()
			}
		} else if e.phaseTime >= e.settings.Retention {
			e.loop()
		}
	}
}

func (e *Engine) breathsDone() bool {
	switch {
	case e.skipVisual:
		return e.phaseTime >= time.Duration(e.settings.Breaths)*e.settings.BreathDuration
	case e.col.Counter != nil:
		return !e.col.Counter.Active()
	default:
		return e.minSeen > e.settings.Breaths
	}
}

// Stop ends the breath hold. It is ignored outside the Chrono phase.
func (e *Engine) Stop() bool {
	if e.phase != Chrono {
		return false
	}
	held := e.held
	if e.col.Chrono != nil {
		held = e.col.Chrono.Stop()
	}
	n, empty := e.sessions.Current(), e.sessions.EmptyLungs()
	e.sessions.RecordDuration(held)
	e.log.Info().Int("session", n).Dur("held", held).Bool("empty_lungs", empty).Msg("session recorded")
	e.hooks.Diagnostic.Emit(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.SessionRecorded,
		Summary:  "breath hold recorded",
		Evidence: map[string]any{"session": n, "held_s": held.Seconds(), "empty_lungs": empty},
	})
	if e.hooks.OnSessionRecorded != nil {
		e.hooks.OnSessionRecorded(n, held, empty)
	}
	e.enter(RecoveryBreath)
	return true
}

// Abort leaves the set from any phase without recording anything.
func (e *Engine) Abort() {
	if !e.phase.Active() {
		return
	}
	e.store.Release()
	e.store.ResetToBaseline()
	e.enter(Idle)
}

func (e *Engine) loop() {
	if e.sessions.NextSession() {
		if e.col.Counter != nil {
			e.col.Counter.Reset(e.settings.Breaths)
		}
		if e.col.Retention != nil {
			e.col.Retention.Reset()
		}
		e.enter(SessionCard)
		return
	}
	e.store.Release()
	e.store.ResetToBaseline()
	times := e.sessions.Times()
	e.log.Info().Int("sessions", e.sessions.Total()).Floats64("times", times).Msg("session set complete")
	e.hooks.Diagnostic.Emit(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.SessionComplete,
		Summary:  "session set complete",
		Evidence: map[string]any{"times": times},
	})
	e.enter(Done)
	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(times)
	}
}

// enter switches phase and runs the entry action of the new one.
func (e *Engine) enter(to Phase) {
	from := e.phase
	e.phase = to
	e.phaseTime = 0
	e.skipVisual = false

	switch to {
	case LeadIn:
		if e.col.LeadIn != nil {
			e.col.LeadIn.Start(e.settings.LeadIn)
		}

	case SessionCard:
		if e.col.Card != nil {
			e.col.Card.Show(e.sessions.Current())
		}

	case BreathCounting:
		e.minSeen = 0
		if f, ok := e.store.First(anim.AtMin); ok {
			e.store.Seek(f)
		} else {
			e.skip(to)
		}
		e.store.Unfreeze()
		if e.col.Counter != nil {
			e.col.Counter.Activate()
		}

	case Reappearing:
		f, ok := e.halfwayRising()
		if _, flagged := e.store.First(anim.AtMax); ok && flagged {
			e.store.Seek(f)
		} else {
			e.skip(to)
		}
		e.store.Unfreeze()

	case Chrono:
		e.store.Freeze()
		e.held = 0
		if e.col.Chrono != nil {
			e.col.Chrono.Start()
		}

	case RecoveryBreath:
		// The hold froze the shapes at full scale. Play on from there: empty
		// lungs exhale to the minimum, full lungs exhale and inhale back to
		// the maximum.
		e.recoverTo = anim.AtMax
		if e.sessions.EmptyLungs() {
			e.recoverTo = anim.AtMin
		}
		if _, ok := e.store.First(e.recoverTo); !ok {
			e.skip(to)
		}
		e.store.Unfreeze()

	case Retention:
		e.store.Freeze()
		if e.col.Retention != nil {
			e.col.Retention.Start(e.settings.Retention)
		}
	}

	e.log.Debug().Stringer("from", from).Stringer("to", to).Msg("phase")
	if e.hooks.OnPhase != nil {
		e.hooks.OnPhase(from, to)
	}
}

// skip drops the visual gate of p when no animated shape or no flagged
// extremum frame can satisfy it; the phase then advances on time.
func (e *Engine) skip(p Phase) {
	e.skipVisual = true
	summary := "no animated shapes; " + p.String() + " advances on time"
	if e.store.Animating() > 0 {
		summary = "no extremum frames in the timeline; " + p.String() + " advances on time"
	}
	e.hooks.Diagnostic.Emit(diagnostics.Diagnostic{
		Severity:       diagnostics.Info,
		Code:           diagnostics.PhaseSkipped,
		Summary:        summary,
		SuggestedFixes: []string{"raise extremum_threshold", "raise fps or breath_duration"},
		Evidence:       map[string]any{"phase": p.String(), "animated": e.store.Animating(), "frames": e.store.TotalFrames()},
	})
}

// halfwayRising finds, from the frame on screen, the last frame at or below
// half scale before the shapes grow past it.
func (e *Engine) halfwayRising() (int, bool) {
	cf := e.store.CounterFrames()
	n := len(cf)
	if n < 2 {
		return 0, false
	}
	return e.store.FindFrom(e.store.ShownFrame(), func(f int, c anim.CounterFrame) bool {
		return c.Relative <= 0.5 && cf[(f+1)%n].Relative > 0.5
	})
}
