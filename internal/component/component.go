// Package component implements the equivalence checking backends. Each
// component generates its harnesses, drives the external tool through the
// runner, and classifies the transcript into per-pair verdicts.
package component

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"equicheck/internal/config"
	"equicheck/internal/harness"
	"equicheck/internal/match"
	"equicheck/internal/workflow"
)

// Build assembles the component pipeline in configured order.
func Build(cfg *config.Workflow) []workflow.Component {
	var out []workflow.Component
	for _, name := range cfg.Components {
		switch name {
		case config.ComponentIdentical:
			out = append(out, &Identical{})
		case config.ComponentKani:
			out = append(out, &Kani{cfg: cfg.Kani})
		case config.ComponentPBT:
			out = append(out, &PBT{cfg: cfg.PBT})
		case config.ComponentDiffFuzz:
			out = append(out, &DiffFuzz{cfg: cfg.DiffFuzz})
		case config.ComponentAlive2:
			out = append(out, &Alive2{cfg: cfg.Alive2})
		}
	}
	return out
}

// skipResult classifies a generation skip, keeping tool failures apart.
func skipResult(backend string, p match.Pair, err error) (workflow.ComponentResult, bool) {
	var skip *harness.SkipError
	if errors.As(err, &skip) {
		return workflow.ComponentResult{
			Backend: backend,
			Pair:    p.Name,
			Verdict: workflow.Skipped,
			Reason:  skip.Reason,
		}, true
	}
	return workflow.ComponentResult{}, false
}

func toolError(backend string, p match.Pair, reason string) workflow.ComponentResult {
	return workflow.ComponentResult{
		Backend: backend,
		Pair:    p.Name,
		Verdict: workflow.ToolError,
		Reason:  reason,
	}
}

// guardSources renders the precondition guards appended to module 2, or
// nothing when preconditions are off for this component.
func guardSources(st *workflow.State, enabled bool) string {
	if !st.UsePreconditions || !enabled || st.Pre == nil {
		return ""
	}
	return st.Pre.GuardSources()
}

// cleanup removes run artifacts the configuration does not keep.
func cleanup(log *zap.Logger, harnessPath string, keepHarness bool, outputPath string, keepOutput bool) {
	if !keepHarness && harnessPath != "" {
		if err := os.RemoveAll(harnessPath); err != nil {
			log.Warn("failed to remove harness", zap.String("path", harnessPath), zap.Error(err))
		}
	}
	if !keepOutput && outputPath != "" {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove output", zap.String("path", outputPath), zap.Error(err))
		}
	}
}
