// Package workflow orchestrates equivalence components over matched pairs
// and aggregates their verdicts into a run report.
package workflow

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Verdict is the closed outcome set for one component checking one pair.
type Verdict int

const (
	// Equivalent means the component found no divergence within its
	// bounds. It is never an unconditional proof.
	Equivalent Verdict = iota
	// Mismatch means the component produced a concrete divergence.
	Mismatch
	// ToolError means the backend tool failed to run or to compile the
	// harness.
	ToolError
	// Timeout means the tool was killed at its deadline. Distinct from
	// Mismatch: nothing was proven either way.
	Timeout
	// Skipped means the pair's shape is outside the component's reach.
	Skipped
)

func (v Verdict) String() string {
	switch v {
	case Equivalent:
		return "equivalent"
	case Mismatch:
		return "mismatch"
	case ToolError:
		return "tool-error"
	case Timeout:
		return "timeout"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

func (v Verdict) MarshalYAML() (any, error) { return v.String(), nil }

// Failing reports whether the verdict counts against a Success status.
func (v Verdict) Failing() bool { return v != Equivalent && v != Skipped }

// ComponentResult is one component's verdict on one pair.
type ComponentResult struct {
	Backend string  `yaml:"backend"`
	Pair    string  `yaml:"pair"`
	Verdict Verdict `yaml:"verdict"`
	// Witness is the concrete diverging input, when the backend surfaced
	// one.
	Witness string `yaml:"witness,omitempty"`
	Reason  string `yaml:"reason,omitempty"`
	// Bounds qualifies an Equivalent verdict (unwind depth, case count),
	// keeping bounded results honest in the report.
	Bounds string `yaml:"bounds,omitempty"`
}

// Status is the overall run outcome.
type Status int

const (
	// Success: every recorded verdict is Equivalent or Skipped.
	Success Status = iota
	// PartialFailure: at least one mismatch, tool error, or timeout.
	PartialFailure
	// FatalAbort: strict mode stopped the run early.
	FatalAbort
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case PartialFailure:
		return "partial-failure"
	case FatalAbort:
		return "fatal-abort"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalYAML() (any, error) { return s.String(), nil }

// Report is the aggregated outcome of one workflow run.
type Report struct {
	RunID   string            `yaml:"run_id"`
	Status  Status            `yaml:"status"`
	Results []ComponentResult `yaml:"results"`
	// Unverified lists pairs no formal component ever passed.
	Unverified []string `yaml:"unverified,omitempty"`
	// TestedOnly lists pairs that passed a testing component but were
	// never formally verified.
	TestedOnly []string `yaml:"tested_only,omitempty"`
}

func NewReport() *Report {
	return &Report{RunID: uuid.NewString()}
}

// Recompute derives the status from the recorded results, preserving a
// FatalAbort set by the orchestrator.
func (r *Report) Recompute() {
	if r.Status == FatalAbort {
		return
	}
	r.Status = Success
	for _, res := range r.Results {
		if res.Verdict.Failing() {
			r.Status = PartialFailure
			return
		}
	}
}

// WriteYAML renders the report.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// ExportYAML writes the report to a file.
func (r *Report) ExportYAML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	defer f.Close()
	return r.WriteYAML(f)
}
