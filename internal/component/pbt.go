package component

import (
	"context"
	"fmt"
	"strings"

	"equicheck/internal/config"
	"equicheck/internal/harness"
	"equicheck/internal/match"
	"equicheck/internal/runner"
	"equicheck/internal/workflow"
)

// PBT checks pairs with randomized property tests through `cargo test`.
// A failing test exits with the same status as a compile failure, so
// classification rests on the per-test transcript lines, not on exit
// codes.
type PBT struct {
	cfg config.PBTConfig
}

func (c *PBT) Name() string { return config.ComponentPBT }
func (c *PBT) Formal() bool { return false }
func (c *PBT) Note() string {
	return fmt.Sprintf("property-based testing, %d cases per pair", c.cfg.TestCases)
}

func (c *PBT) Run(ctx context.Context, st *workflow.State) []workflow.ComponentResult {
	bounds := fmt.Sprintf("cases=%d", c.cfg.TestCases)
	guards := guardSources(st, c.cfg.UsePreconditions)

	var out []workflow.ComponentResult
	for _, p := range st.Pending() {
		if ctx.Err() != nil {
			break
		}
		art, err := harness.PBT(harness.Input{
			Pair: p,
			A:    st.A,
			B:    st.B,
			Pre:  st.PreFor(p, c.cfg.UsePreconditions),
		}, c.cfg)
		if err != nil {
			if res, ok := skipResult(c.Name(), p, err); ok {
				out = append(out, res)
				continue
			}
			out = append(out, toolError(c.Name(), p, err.Error()))
			continue
		}

		err = harness.WriteProject(c.cfg.HarnessPath, harness.Layout{
			Backend:   c.Name(),
			SourceA:   st.A.Source,
			SourceB:   st.B.Source,
			Guards:    guards,
			Artifacts: []harness.Artifact{art},
		})
		if err != nil {
			out = append(out, toolError(c.Name(), p, err.Error()))
			continue
		}

		outcome, err := st.Runner.Run(ctx, runner.Invocation{
			Program:    "cargo",
			Args:       []string{"test", art.Entry, "--", "--nocapture"},
			Dir:        c.cfg.HarnessPath,
			OutputPath: c.cfg.OutputPath,
		}, c.cfg.Timeout)
		if err != nil {
			out = append(out, toolError(c.Name(), p, err.Error()))
			continue
		}
		out = append(out, c.resultFor(outcome, p, art.Entry, bounds))
	}

	cleanup(st.Log, c.cfg.HarnessPath, c.cfg.KeepHarness, c.cfg.OutputPath, c.cfg.KeepOutput)
	return out
}

// resultFor maps one tool outcome onto the pair's verdict. A killed run is
// a Timeout regardless of any partial transcript.
func (c *PBT) resultFor(outcome *runner.Outcome, p match.Pair, entry, bounds string) workflow.ComponentResult {
	res := workflow.ComponentResult{Backend: c.Name(), Pair: p.Name, Bounds: bounds}
	if outcome.TimedOut {
		res.Verdict = workflow.Timeout
		res.Reason = fmt.Sprintf("no verdict within %s", c.cfg.Timeout)
		res.Bounds = ""
		return res
	}
	res.Verdict, res.Reason = classifyPBT(outcome.Output, entry)
	if res.Verdict == workflow.Mismatch {
		res.Witness = extractWitness(outcome.Output, p.Name)
	}
	if res.Verdict != workflow.Equivalent {
		res.Bounds = ""
	}
	return res
}

func classifyPBT(output, entry string) (workflow.Verdict, string) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "test ") || !strings.Contains(line, entry) {
			continue
		}
		if strings.HasSuffix(line, "... ok") {
			return workflow.Equivalent, ""
		}
		if strings.HasSuffix(line, "... FAILED") {
			return workflow.Mismatch, "property test failed for " + entry
		}
	}
	return workflow.ToolError, "harness did not run test " + entry
}

// extractWitness pulls the concrete diverging inputs the harness printed.
func extractWitness(output, pairName string) string {
	marker := "MISMATCH: " + pairName
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, marker) {
			return strings.TrimPrefix(line, "MISMATCH: ")
		}
	}
	return ""
}
