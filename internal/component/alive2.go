package component

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"equicheck/internal/config"
	"equicheck/internal/harness"
	"equicheck/internal/match"
	"equicheck/internal/runner"
	"equicheck/internal/workflow"
)

// Alive2 validates pairs at the LLVM IR level: both modules are compiled
// with matching exported symbols and handed to alive-tv, which proves or
// refutes the transformation per function. Receiver state is not visible
// in the flat IR symbol, so method pairs are skipped here.
type Alive2 struct {
	cfg config.Alive2Config
}

func (c *Alive2) Name() string { return config.ComponentAlive2 }
func (c *Alive2) Formal() bool { return true }
func (c *Alive2) Note() string { return "IR-level translation validation via alive-tv" }

func (c *Alive2) Run(ctx context.Context, st *workflow.State) []workflow.ComponentResult {
	var out []workflow.ComponentResult
	var checked []match.Pair
	var targetsA, targetsB []harness.ExportTarget
	for _, p := range st.Pending() {
		if p.Method {
			out = append(out, workflow.ComponentResult{
				Backend: c.Name(),
				Pair:    p.Name,
				Verdict: workflow.Skipped,
				Reason:  "receiver state is not comparable at the IR level",
			})
			continue
		}
		checked = append(checked, p)
		targetsA = append(targetsA, harness.ExportTarget{Fn: p.A, Symbol: p.FlatName()})
		targetsB = append(targetsB, harness.ExportTarget{Fn: p.B, Symbol: p.FlatName()})
	}
	if len(checked) == 0 {
		return out
	}

	if err := os.MkdirAll(c.cfg.WorkPath, 0o755); err != nil {
		return append(out, c.failAll(checked, err.Error())...)
	}
	defer cleanup(st.Log, c.cfg.WorkPath, c.cfg.KeepWork, c.cfg.OutputPath, c.cfg.KeepOutput)

	srcA := filepath.Join(c.cfg.WorkPath, "mod1.rs")
	srcB := filepath.Join(c.cfg.WorkPath, "mod2.rs")
	if err := os.WriteFile(srcA, []byte(harness.ExportedSource(st.A.Source, targetsA)), 0o644); err != nil {
		return append(out, c.failAll(checked, err.Error())...)
	}
	if err := os.WriteFile(srcB, []byte(harness.ExportedSource(st.B.Source, targetsB)), 0o644); err != nil {
		return append(out, c.failAll(checked, err.Error())...)
	}

	irA, err := c.emitIR(ctx, st, "mod1")
	if err != nil {
		return append(out, c.failAll(checked, err.Error())...)
	}
	irB, err := c.emitIR(ctx, st, "mod2")
	if err != nil {
		return append(out, c.failAll(checked, err.Error())...)
	}

	outcome, err := st.Runner.Run(ctx, runner.Invocation{
		Program:    "alive-tv",
		Args:       []string{irA, irB},
		OutputPath: c.cfg.OutputPath,
	}, c.cfg.ToolTimeout)
	if err != nil {
		return append(out, c.failAll(checked, err.Error())...)
	}
	if outcome.TimedOut {
		for _, p := range checked {
			out = append(out, workflow.ComponentResult{
				Backend: c.Name(),
				Pair:    p.Name,
				Verdict: workflow.Timeout,
				Reason:  fmt.Sprintf("no verdict within %s", c.cfg.ToolTimeout),
			})
		}
		return out
	}

	verdicts := classifyAlive2(outcome.Output)
	for _, p := range checked {
		res := workflow.ComponentResult{Backend: c.Name(), Pair: p.Name}
		switch v, found := verdicts[p.FlatName()]; {
		case !found:
			res.Verdict = workflow.ToolError
			res.Reason = "no verdict in alive-tv output"
		case v.correct:
			res.Verdict = workflow.Equivalent
			res.Bounds = "ir-level"
		default:
			res.Verdict = workflow.Mismatch
			res.Reason = v.detail
		}
		out = append(out, res)
	}
	return out
}

func (c *Alive2) failAll(pairs []match.Pair, reason string) []workflow.ComponentResult {
	out := make([]workflow.ComponentResult, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, toolError(c.Name(), p, reason))
	}
	return out
}

// emitIR compiles one spliced module to optimized LLVM IR.
func (c *Alive2) emitIR(ctx context.Context, st *workflow.State, stem string) (string, error) {
	src := stem + ".rs"
	ir := stem + ".ll"
	outcome, err := st.Runner.Run(ctx, runner.Invocation{
		Program: "rustc",
		Args: []string{"--emit=llvm-ir", "--crate-type=lib", "-O",
			"-o", ir, src},
		Dir: c.cfg.WorkPath,
	}, 0)
	if err != nil {
		return "", err
	}
	if outcome.ExitCode != 0 {
		return "", fmt.Errorf("failed to compile %s to IR", src)
	}
	return filepath.Join(c.cfg.WorkPath, ir), nil
}

type alive2Verdict struct {
	correct bool
	detail  string
}

// classifyAlive2 maps exported symbols to their transformation verdicts.
// alive-tv prints each function pair as a block opened by the source
// definition and closed by a correctness line or an error.
func classifyAlive2(output string) map[string]alive2Verdict {
	verdicts := make(map[string]alive2Verdict)
	current := ""
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "define ") {
			if at := strings.Index(trimmed, "@"); at >= 0 {
				name := trimmed[at+1:]
				if paren := strings.Index(name, "("); paren >= 0 {
					name = name[:paren]
				}
				current = name
			}
			continue
		}
		if current == "" {
			continue
		}
		if strings.Contains(trimmed, "Transformation seems to be correct!") {
			if _, seen := verdicts[current]; !seen {
				verdicts[current] = alive2Verdict{correct: true}
			}
			current = ""
			continue
		}
		if strings.HasPrefix(trimmed, "ERROR:") {
			verdicts[current] = alive2Verdict{detail: trimmed}
			current = ""
		}
	}
	return verdicts
}
