package app

import (
	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-hexbreath/internal/config"
	"github.com/coreman2200/funtimes-hexbreath/internal/diagnostics"
	"github.com/coreman2200/funtimes-hexbreath/internal/led"
)

// OpenLight picks the breath light from config. A strip that cannot be
// opened is reported and left out; the session runs without it.
func OpenLight(cfg config.LED, log zerolog.Logger, sink diagnostics.Sink) Light {
	opts := led.Options{
		Dev:        cfg.Dev,
		Pixels:     cfg.Pixels,
		SpeedKHz:   cfg.SpeedKHz,
		Color:      led.Color(cfg.Color),
		Brightness: cfg.Brightness,
	}
	switch cfg.Driver {
	case "", "off":
		return nil
	case "screen":
		opts.Console = true
	case "spi":
	default:
		log.Warn().Str("driver", cfg.Driver).Msg("unknown led driver; using screen")
		opts.Console = true
	}
	s, err := led.Open(opts, log)
	if err != nil {
		sink.Emit(diagnostics.Diagnostic{
			Severity:       diagnostics.Warn,
			Code:           diagnostics.LEDUnavailable,
			Summary:        "breath light disabled",
			Detail:         err.Error(),
			SuggestedFixes: []string{"check led.dev", "set led.driver to screen or off"},
		})
		return nil
	}
	return s
}
