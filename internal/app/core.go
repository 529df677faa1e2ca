package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-hexbreath/internal/anim"
	"github.com/coreman2200/funtimes-hexbreath/internal/config"
	"github.com/coreman2200/funtimes-hexbreath/internal/diagnostics"
	"github.com/coreman2200/funtimes-hexbreath/internal/history"
	"github.com/coreman2200/funtimes-hexbreath/internal/motion"
	"github.com/coreman2200/funtimes-hexbreath/internal/overlay"
	"github.com/coreman2200/funtimes-hexbreath/internal/session"
	"github.com/coreman2200/funtimes-hexbreath/internal/whm"
	"github.com/coreman2200/funtimes-hexbreath/internal/ws"
)

var ErrStalled = errors.New("session set did not finish")

// Light is an output that follows each tick, e.g. an LED strip.
type Light interface {
	Show(whm.Snapshot) error
	Close() error
}

// Deps are the optional collaborators of a Core. Nil members are skipped.
type Deps struct {
	Hub        *ws.Hub
	Light      Light
	History    *history.Store
	Diagnostic diagnostics.Sink
	OnComplete func(times []float64)
}

// Core owns the store, the engine and the overlays and is driven from one
// goroutine.
type Core struct {
	cfg    *config.Config
	Store  *anim.Store
	Engine *whm.Engine

	deps  Deps
	diag  diagnostics.Sink
	log   zerolog.Logger
	setID string

	leadIn    *overlay.Timer
	card      *overlay.SessionCard
	counter   *overlay.BreathCounter
	chrono    *overlay.Chrono
	retention *overlay.Timer
}

// BuildStore registers the configured shapes around the configured center.
func BuildStore(cfg *config.Config, log zerolog.Logger) *anim.Store {
	s := anim.NewStore(anim.Options{
		FPS:            float64(cfg.FPS),
		BreathDuration: cfg.BreathDuration,
		Threshold:      cfg.ExtremumThreshold,
		MaxCycles:      cfg.MaxCycles,
		Allocator:      anim.NewBudget(cfg.BufferBytes()),
		Logger:         log,
	})
	center := image.Pt(cfg.Center.X, cfg.Center.Y)
	for i, sh := range cfg.Shapes {
		sides := sh.Sides
		if sides == 0 {
			sides = 6
		}
		id := sh.ID
		if id == "" {
			id = fmt.Sprintf("shape-%d", i)
		}
		s.Add(anim.Regular(id, center, sh.Radius, sides), motion.Params{
			AnglePerCycle: sh.Angle,
			ScaleMin:      sh.ScaleMin,
			ScaleMax:      sh.ScaleMax,
			Clockwise:     sh.Clockwise,
		})
	}
	return s
}

func Settings(cfg *config.Config) whm.Settings {
	return whm.Settings{
		Breaths:        cfg.Breaths,
		BreathDuration: cfg.Breath(),
		LeadIn:         cfg.LeadIn(),
		Card:           cfg.CardHold(),
		Retention:      cfg.RetentionHold(),
	}
}

// New takes ownership of the light and history in deps: Close releases
// them, and New releases them itself when it fails.
func New(cfg *config.Config, deps Deps, log zerolog.Logger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		if cerr := deps.close(); cerr != nil {
			log.Warn().Err(cerr).Msg("release collaborators")
		}
		return nil, err
	}
	c := &Core{
		cfg:       cfg,
		Store:     BuildStore(cfg, log),
		deps:      deps,
		log:       log,
		leadIn:    overlay.NewTimer(cfg.LeadIn()),
		card:      overlay.NewSessionCard(cfg.FPS, cfg.CardHold()),
		counter:   overlay.NewBreathCounter(cfg.Breaths),
		chrono:    overlay.NewChrono(),
		retention: overlay.NewTimer(cfg.RetentionHold()),
	}
	sinks := []diagnostics.Sink{diagnostics.LogSink(log), deps.Diagnostic}
	if deps.Hub != nil {
		sinks = append(sinks, deps.Hub.PushDiag)
	}
	c.diag = diagnostics.Tee(sinks...)

	col := whm.Collaborators{
		LeadIn:    c.leadIn,
		Card:      c.card,
		Counter:   c.counter,
		Chrono:    c.chrono,
		Retention: c.retention,
	}
	hooks := whm.Hooks{
		OnPhase: func(_, to whm.Phase) {
			if to == whm.SessionCard {
				c.log.Info().Int("session", c.Engine.Sessions().Current()).Msg("session")
			}
		},
		OnSessionRecorded: c.record,
		OnComplete:        deps.OnComplete,
		Diagnostic:        c.diag,
	}
	c.Engine = whm.New(c.Store, Settings(cfg), col, hooks, log)
	return c, nil
}

func (c *Core) dt() time.Duration { return time.Second / time.Duration(c.cfg.FPS) }

// StartSet begins a new session set with a fresh session controller.
func (c *Core) StartSet() error {
	pattern, fallback := c.cfg.Retention()
	if fallback {
		c.diag.Emit(diagnostics.Diagnostic{
			Severity: diagnostics.Warn,
			Code:     diagnostics.RetentionFallback,
			Summary:  "retention_pattern out of range; using legacy retention_type",
			Evidence: map[string]any{"retention_pattern": c.cfg.RetentionPattern, "resolved": pattern.String()},
		})
	}
	ctrl := session.NewController(c.cfg.Sessions, pattern, c.cfg.CustomRetention)
	if _, err := c.Engine.Start(ctrl); err != nil {
		return err
	}
	c.setID = history.NewSetID()
	c.log.Info().Str("set", c.setID).Int("sessions", c.cfg.Sessions).Stringer("retention", pattern).Msg("session set started")
	return nil
}

func (c *Core) record(n int, held time.Duration, empty bool) {
	if c.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.deps.History.Record(ctx, history.Run{SetID: c.setID, Session: n, Held: held, EmptyLungs: empty})
	if err != nil {
		c.diag.Emit(diagnostics.Diagnostic{
			Severity: diagnostics.Err,
			Code:     diagnostics.HistoryWrite,
			Summary:  "could not save the breath hold",
			Detail:   err.Error(),
		})
	}
}

// Apply runs a control command on the loop goroutine.
func (c *Core) Apply(cmd ws.Command) {
	switch cmd.Cmd {
	case ws.CmdStart:
		if err := c.StartSet(); err != nil {
			c.log.Warn().Err(err).Msg("start ignored")
		}
	case ws.CmdStop:
		if !c.Engine.Stop() {
			c.log.Debug().Stringer("phase", c.Engine.Phase()).Msg("stop ignored")
		}
	case ws.CmdAbort:
		c.Engine.Abort()
	}
}

// Step advances one tick and publishes the result.
func (c *Core) Step(dt time.Duration) {
	c.Engine.Tick(dt)
	if c.deps.Hub == nil && c.deps.Light == nil {
		return
	}
	snap := c.Engine.Snapshot()
	if c.deps.Hub != nil {
		c.deps.Hub.Broadcast(snap)
	}
	if c.deps.Light != nil {
		if err := c.deps.Light.Show(snap); err != nil {
			c.log.Debug().Err(err).Msg("light")
		}
	}
}

// Run ticks at the configured fps until ctx is done.
func (c *Core) Run(ctx context.Context) error {
	dt := c.dt()
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	var cmds <-chan ws.Command
	if c.deps.Hub != nil {
		cmds = c.deps.Hub.Commands()
	}
	for {
		select {
		case <-ctx.Done():
			c.Engine.Abort()
			return nil
		case cmd := <-cmds:
			c.Apply(cmd)
		case <-ticker.C:
			c.Step(dt)
		}
	}
}

// Simulate runs one set as fast as possible, ending the n-th chrono once it
// reaches holds[n]. The last hold repeats for later sessions.
func (c *Core) Simulate(holds []time.Duration) ([]float64, error) {
	if len(holds) == 0 {
		return nil, fmt.Errorf("simulate: no hold durations")
	}
	if err := c.StartSet(); err != nil {
		return nil, err
	}
	dt := c.dt()
	longest := holds[0]
	for _, h := range holds {
		longest = max(longest, h)
	}
	perSession := c.cfg.LeadIn() + c.cfg.CardHold() + c.cfg.RetentionHold() + longest +
		time.Duration(c.cfg.Breaths+4)*c.cfg.Breath() + 5*time.Second
	limit := 2 * c.cfg.Sessions * int(perSession/dt)

	i := 0
	for n := 0; n < limit; n++ {
		if c.Engine.Phase() == whm.Chrono && c.chrono.Elapsed() >= holds[min(i, len(holds)-1)] {
			c.Engine.Stop()
			i++
		}
		c.Step(dt)
		if !c.Engine.Phase().Active() {
			return c.Engine.Sessions().Times(), nil
		}
	}
	c.Engine.Abort()
	return nil, ErrStalled
}

func (c *Core) SetID() string { return c.setID }

func (c *Core) Close() error { return c.deps.close() }

func (d Deps) close() error {
	var errs []error
	if d.Light != nil {
		errs = append(errs, d.Light.Close())
	}
	if d.History != nil {
		errs = append(errs, d.History.Close())
	}
	return errors.Join(errs...)
}
