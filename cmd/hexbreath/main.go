package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/funtimes-hexbreath/internal/anim"
	"github.com/coreman2200/funtimes-hexbreath/internal/app"
	"github.com/coreman2200/funtimes-hexbreath/internal/config"
	"github.com/coreman2200/funtimes-hexbreath/internal/diagnostics"
	"github.com/coreman2200/funtimes-hexbreath/internal/history"
	"github.com/coreman2200/funtimes-hexbreath/internal/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	logLevel   string
	fps        int
	sessions   int
	breaths    int
	db         string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "hexbreath",
		Short:         "Guided breathing with pulsing hexagons",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogging(g.logLevel)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "hexbreath.yaml", "path to config yaml")
	pf.StringVar(&g.logLevel, "log-level", "info", "trace|debug|info|warn|error")
	pf.IntVar(&g.fps, "fps", 0, "target frames per second (overrides config)")
	pf.IntVar(&g.sessions, "sessions", 0, "sessions per set (overrides config)")
	pf.IntVar(&g.breaths, "breaths", 0, "breaths per session (overrides config)")
	pf.StringVar(&g.db, "db", "", "history database (overrides config)")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newSimCmd(g))
	root.AddCommand(newAlignCmd(g))
	root.AddCommand(newStatsCmd(g))
	return root
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	return nil
}

// loadConfig reads the config file if present; flags set on the command
// line override it.
func loadConfig(g *globals) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", g.configPath).Msg("config not found; using defaults")
		cfg = config.Default()
	case err != nil:
		return nil, err
	}
	if g.fps > 0 {
		cfg.FPS = g.fps
	}
	if g.sessions > 0 {
		cfg.Sessions = g.sessions
	}
	if g.breaths > 0 {
		cfg.Breaths = g.breaths
	}
	if g.db != "" {
		cfg.History.DBPath = g.db
	}
	return cfg, cfg.Validate()
}

func newRunCmd(g *globals) *cobra.Command {
	var (
		addr      string
		autostart bool
		ledDriver string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the session engine over websocket and run the tick loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if ledDriver != "" {
				cfg.LED.Driver = ledDriver
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hist, err := history.Open(ctx, cfg.History.DBPath)
			if err != nil {
				return err
			}
			hub := ws.NewHub(log.Logger, 16)
			light := app.OpenLight(cfg.LED, log.Logger, diagnostics.Tee(diagnostics.LogSink(log.Logger), hub.PushDiag))

			core, err := app.New(cfg, app.Deps{Hub: hub, Light: light, History: hist}, log.Logger)
			if err != nil {
				return err
			}
			defer core.Close()

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: hub.Routes()}
			go func() {
				log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server")
					stop()
				}
			}()

			if autostart {
				if err := core.StartSet(); err != nil {
					return err
				}
			}
			runErr := core.Run(ctx)

			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
			return runErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&autostart, "autostart", false, "start a session set immediately")
	cmd.Flags().StringVar(&ledDriver, "led", "", "breath light: spi | screen | off (overrides config)")
	return cmd
}

func newSimCmd(g *globals) *cobra.Command {
	var (
		holds  []time.Duration
		record bool
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run one session set headless with scripted breath holds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			deps := app.Deps{}
			if record {
				hist, err := history.Open(cmd.Context(), cfg.History.DBPath)
				if err != nil {
					return err
				}
				deps.History = hist
			}
			core, err := app.New(cfg, deps, log.Logger)
			if err != nil {
				return err
			}
			defer core.Close()

			start := time.Now()
			times, err := core.Simulate(holds)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "set %s: %d sessions in %s\n", core.SetID(), len(times), time.Since(start).Round(time.Millisecond))
			for i, t := range times {
				_, _ = fmt.Fprintf(out, "  session %d: %.2fs\n", i+1, t)
			}
			return nil
		},
	}
	cmd.Flags().DurationSliceVar(&holds, "holds", []time.Duration{60 * time.Second, 75 * time.Second, 90 * time.Second}, "breath hold per session; the last one repeats")
	cmd.Flags().BoolVar(&record, "record", false, "save the simulated holds to history")
	return cmd
}

func newAlignCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "align",
		Short: "Print the aligned cycle length and buffer sizes for the configured shapes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			store := app.BuildStore(cfg, log.Logger)
			rep := store.Precompute()
			defer store.Release()

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "cycles=%d frames=%d capped=%v fps=%d breath=%.2fs\n",
				rep.Cycles, rep.TotalFrames, rep.Capped, cfg.FPS, cfg.BreathDuration)
			for i, sh := range store.Shapes() {
				status := "ready"
				if !sh.Ready() {
					status = "skipped"
				}
				_, _ = fmt.Fprintf(out, "  %-8s angle=%5.1f vertices=%d bytes=%d %s\n",
					sh.Geometry.ID, cfg.Shapes[i].Angle, len(sh.Geometry.Base),
					anim.Footprint(rep.TotalFrames, len(sh.Geometry.Base)), status)
			}
			_, _ = fmt.Fprintf(out, "total bytes=%d\n", rep.Bytes)
			return rep.Err()
		},
	}
}

func newStatsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recorded breath holds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			hist, err := history.Open(cmd.Context(), cfg.History.DBPath)
			if err != nil {
				return err
			}
			defer hist.Close()

			runs, err := hist.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(out, "no sessions recorded")
				return nil
			}
			for _, r := range runs {
				lungs := "full"
				if r.EmptyLungs {
					lungs = "empty"
				}
				_, _ = fmt.Fprintf(out, "%s  set %.8s  session %d  %6.1fs  %s\n",
					r.RecordedAt.Local().Format("2006-01-02 15:04"), r.SetID, r.Session, r.Held.Seconds(), lungs)
			}
			st, err := hist.Stats(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "\n%d holds  best %.1fs  mean %.1fs  (full %.1fs, empty %.1fs)\n",
				st.Count, st.Best.Seconds(), st.Mean.Seconds(), st.MeanFull.Seconds(), st.MeanEmpty.Seconds())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent holds to list")
	return cmd
}
