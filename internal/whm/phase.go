package whm

import (
	"time"

	"github.com/coreman2200/funtimes-hexbreath/internal/anim"
	"github.com/coreman2200/funtimes-hexbreath/internal/diagnostics"
)

// Phase is the single active step of a guided session.
type Phase int

const (
	Idle Phase = iota
	LeadIn
	SessionCard
	BreathCounting
	Reappearing
	Chrono
	RecoveryBreath
	Retention
	Done
)

var phaseNames = [...]string{
	Idle:           "idle",
	LeadIn:         "lead_in",
	SessionCard:    "session_card",
	BreathCounting: "breath_counting",
	Reappearing:    "reappearing",
	Chrono:         "chrono",
	RecoveryBreath: "recovery_breath",
	Retention:      "retention",
	Done:           "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Active is true between Start and completion or abort.
func (p Phase) Active() bool { return p != Idle && p != Done }

// Countdown is a timer overlay (lead-in, retention).
type Countdown interface {
	Start(d time.Duration)
	Update(dt time.Duration)
	Done() bool
	Remaining() time.Duration
	Reset()
}

// Counter counts breaths from the annotated frames it is shown.
type Counter interface {
	Reset(target int)
	Activate()
	Observe(f anim.CounterFrame)
	Active() bool
	Count() int
}

// Stopwatch times the breath hold.
type Stopwatch interface {
	Start()
	Update(dt time.Duration)
	Stop() time.Duration
	Elapsed() time.Duration
}

// Card animates the session number in and out.
type Card interface {
	Show(session int)
	Update(dt time.Duration)
	Done() bool
}

// Collaborators are the overlays the engine drives. Any of them may be nil;
// the engine then gates on elapsed phase time or its own frame bookkeeping.
type Collaborators struct {
	LeadIn    Countdown
	Card      Card
	Counter   Counter
	Chrono    Stopwatch
	Retention Countdown
}

// Hooks are optional callbacks into the host.
type Hooks struct {
	OnPhase           func(from, to Phase)
	OnBreath          func(count int)
	OnSessionRecorded func(session int, held time.Duration, emptyLungs bool)
	OnComplete        func(times []float64)
	Diagnostic        diagnostics.Sink
}

// Settings are the per-set scalars the engine gates on.
type Settings struct {
	Breaths        int
	BreathDuration time.Duration
	LeadIn         time.Duration
	Card           time.Duration // used only without a Card collaborator
	Retention      time.Duration
}
