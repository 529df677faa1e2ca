package diagnostics

import "github.com/rs/zerolog"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes raised by the breathing core and its host.
const (
	PrecomputeAlloc   = "PRECOMPUTE.ALLOC"
	PrecomputeEmpty   = "PRECOMPUTE.EMPTY"
	AlignCapped       = "ALIGN.CAPPED"
	RetentionFallback = "CONFIG.RETENTION_FALLBACK"
	PhaseSkipped      = "PHASE.SKIPPED"
	SessionRecorded   = "SESSION.RECORDED"
	SessionComplete   = "SESSION.COMPLETE"
	HistoryWrite      = "HISTORY.WRITE"
	LEDUnavailable    = "LED.UNAVAILABLE"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// Sink receives diagnostics. A nil Sink drops them.
type Sink func(Diagnostic)

// Emit sends d to s if s is set.
func (s Sink) Emit(d Diagnostic) {
	if s != nil {
		s(d)
	}
}

// Tee fans a diagnostic out to several sinks.
func Tee(sinks ...Sink) Sink {
	return func(d Diagnostic) {
		for _, s := range sinks {
			s.Emit(d)
		}
	}
}

// LogSink writes diagnostics to a zerolog logger at a matching level.
func LogSink(l zerolog.Logger) Sink {
	return func(d Diagnostic) {
		var ev *zerolog.Event
		switch d.Severity {
		case Err:
			ev = l.Error()
		case Warn:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev = ev.Str("code", d.Code)
		if d.Detail != "" {
			ev = ev.Str("detail", d.Detail)
		}
		if len(d.Evidence) > 0 {
			ev = ev.Interface("evidence", d.Evidence)
		}
		ev.Msg(d.Summary)
	}
}
