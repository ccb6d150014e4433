package workflow

import (
	"context"

	"go.uber.org/zap"
)

// Component is one equivalence checking strategy.
type Component interface {
	// Name is the canonical component name from the configuration.
	Name() string
	// Formal reports whether an Equivalent verdict retires the pair.
	Formal() bool
	// Note is a one-line human description printed at component start.
	Note() string
	// Run checks every pending pair and returns one result per pair it
	// looked at. Tool failures surface as ToolError results, never as
	// panics or aborts.
	Run(ctx context.Context, st *State) []ComponentResult
}

// Orchestrator drives the configured components over the shared state.
type Orchestrator struct {
	log        *zap.Logger
	components []Component
	strict     bool
}

func NewOrchestrator(log *zap.Logger, components []Component, strict bool) *Orchestrator {
	return &Orchestrator{log: log, components: components, strict: strict}
}

// Run executes components in configured order. Components run
// sequentially: they share harness paths on disk. In strict mode the first
// Mismatch or ToolError aborts the run; results recorded up to that point
// are preserved in the report.
func (o *Orchestrator) Run(ctx context.Context, st *State) *Report {
	report := NewReport()
	o.log.Info("starting workflow",
		zap.String("run_id", report.RunID),
		zap.Int("components", len(o.components)),
		zap.Int("pairs", len(st.Pending())),
		zap.Bool("strict", o.strict))

	for _, c := range o.components {
		if ctx.Err() != nil {
			o.log.Warn("workflow cancelled", zap.Error(ctx.Err()))
			report.Status = FatalAbort
			break
		}
		o.log.Info("running component", zap.String("component", c.Name()), zap.String("note", c.Note()))

		results := c.Run(ctx, st)
		abort := false
		for _, res := range results {
			report.Results = append(report.Results, res)
			o.logResult(res)
			if res.Verdict == Equivalent {
				if c.Formal() {
					st.Retire(res.Pair, c.Name())
				} else {
					st.MarkTested(res.Pair)
				}
			}
			if o.strict && (res.Verdict == Mismatch || res.Verdict == ToolError) {
				abort = true
			}
		}
		if abort {
			o.log.Error("strict mode abort", zap.String("component", c.Name()))
			report.Status = FatalAbort
			break
		}
	}

	report.Unverified = st.Unverified()
	report.TestedOnly = st.TestedOnly()
	report.Recompute()
	o.log.Info("workflow finished",
		zap.String("run_id", report.RunID),
		zap.String("status", report.Status.String()),
		zap.Int("results", len(report.Results)),
		zap.Int("unverified", len(report.Unverified)))
	return report
}

func (o *Orchestrator) logResult(res ComponentResult) {
	fields := []zap.Field{
		zap.String("component", res.Backend),
		zap.String("pair", res.Pair),
		zap.String("verdict", res.Verdict.String()),
	}
	if res.Bounds != "" {
		fields = append(fields, zap.String("bounds", res.Bounds))
	}
	if res.Witness != "" {
		fields = append(fields, zap.String("witness", res.Witness))
	}
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	switch res.Verdict {
	case Mismatch, ToolError:
		o.log.Error("pair check failed", fields...)
	case Timeout:
		o.log.Warn("pair check timed out", fields...)
	default:
		o.log.Info("pair checked", fields...)
	}
}
