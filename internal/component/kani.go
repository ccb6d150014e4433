package component

import (
	"context"
	"fmt"
	"strings"

	"equicheck/internal/config"
	"equicheck/internal/harness"
	"equicheck/internal/runner"
	"equicheck/internal/workflow"
)

// compileFailureExit is cargo's exit status when the harness itself fails
// to build; it marks a tool problem, never a divergence.
const compileFailureExit = 101

// Kani checks pairs with bounded model checking through `cargo kani`.
// Pairs run sequentially, rewriting the shared harness project for each.
type Kani struct {
	cfg config.KaniConfig
}

func (c *Kani) Name() string { return config.ComponentKani }
func (c *Kani) Formal() bool { return true }
func (c *Kani) Note() string {
	return fmt.Sprintf("bounded model checking, unwind depth %d", c.cfg.LoopUnwind)
}

func (c *Kani) Run(ctx context.Context, st *workflow.State) []workflow.ComponentResult {
	bounds := fmt.Sprintf("unwind=%d", c.cfg.LoopUnwind)
	guards := guardSources(st, c.cfg.UsePreconditions)

	var out []workflow.ComponentResult
	for _, p := range st.Pending() {
		if ctx.Err() != nil {
			break
		}
		art, err := harness.Kani(harness.Input{
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
			Args:       []string{"kani", "--harness", art.Entry},
			Dir:        c.cfg.HarnessPath,
			OutputPath: c.cfg.OutputPath,
		}, c.cfg.HarnessTimeout)
		if err != nil {
			out = append(out, toolError(c.Name(), p, err.Error()))
			continue
		}

		res := workflow.ComponentResult{Backend: c.Name(), Pair: p.Name, Bounds: bounds}
		switch {
		case outcome.TimedOut:
			res.Verdict = workflow.Timeout
			res.Reason = fmt.Sprintf("no verdict within %s", c.cfg.HarnessTimeout)
			res.Bounds = ""
		case outcome.ExitCode == compileFailureExit && !strings.Contains(outcome.Output, "VERIFICATION:-"):
			res.Verdict = workflow.ToolError
			res.Reason = "harness failed to compile"
			res.Bounds = ""
		default:
			res.Verdict, res.Reason = classifyKani(outcome.Output, art.Entry)
			if res.Verdict != workflow.Equivalent {
				res.Bounds = ""
			}
		}
		out = append(out, res)
	}

	cleanup(st.Log, c.cfg.HarnessPath, c.cfg.KeepHarness, c.cfg.OutputPath, c.cfg.KeepOutput)
	return out
}

// classifyKani reads the verdict for one harness out of the tool transcript.
func classifyKani(output, entry string) (workflow.Verdict, string) {
	inHarness := false
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Checking harness ") {
			inHarness = strings.Contains(line, entry)
			continue
		}
		if !inHarness {
			continue
		}
		if strings.Contains(line, "VERIFICATION:- SUCCESSFUL") {
			return workflow.Equivalent, ""
		}
		if strings.Contains(line, "VERIFICATION:- FAILED") {
			return workflow.Mismatch, "verification failed for " + entry
		}
	}
	return workflow.ToolError, "no verdict found for " + entry
}
