package component

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"equicheck/internal/config"
	"equicheck/internal/harness"
	"equicheck/internal/match"
	"equicheck/internal/runner"
	"equicheck/internal/workflow"
)

// DiffFuzz checks all pending pairs at once with coverage-guided
// differential fuzzing through cargo-afl. Every pair becomes one check fed
// from the same byte stream; crashes are replayed against the harness
// binary afterwards to attribute the diverging pair.
type DiffFuzz struct {
	cfg config.DiffFuzzConfig
}

func (c *DiffFuzz) Name() string { return config.ComponentDiffFuzz }
func (c *DiffFuzz) Formal() bool { return false }
func (c *DiffFuzz) Note() string {
	return fmt.Sprintf("differential fuzzing, %d executions", c.cfg.Executions)
}

func (c *DiffFuzz) Run(ctx context.Context, st *workflow.State) []workflow.ComponentResult {
	pending := st.Pending()
	guards := guardSources(st, c.cfg.UsePreconditions)

	var arts []harness.Artifact
	var fuzzed []match.Pair
	var out []workflow.ComponentResult
	for _, p := range pending {
		art, err := harness.DiffFuzz(harness.Input{
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
		arts = append(arts, art)
		fuzzed = append(fuzzed, p)
	}
	if len(arts) == 0 {
		return out
	}

	err := harness.WriteProject(c.cfg.HarnessPath, harness.Layout{
		Backend:     c.Name(),
		SourceA:     st.A.Source,
		SourceB:     st.B.Source,
		Guards:      guards,
		Artifacts:   arts,
		CatchPanics: c.cfg.CatchPanics,
	})
	if err != nil {
		return append(out, c.failAll(fuzzed, err.Error())...)
	}
	defer cleanup(st.Log, c.cfg.HarnessPath, c.cfg.KeepHarness, c.cfg.OutputPath, c.cfg.KeepOutput)

	if err := c.seedInputs(); err != nil {
		return append(out, c.failAll(fuzzed, err.Error())...)
	}

	build, err := st.Runner.Run(ctx, runner.Invocation{
		Program: "cargo",
		Args:    []string{"afl", "build"},
		Dir:     c.cfg.HarnessPath,
	}, c.cfg.Timeout)
	if err != nil {
		return append(out, c.failAll(fuzzed, err.Error())...)
	}
	if build.TimedOut {
		return append(out, c.timeoutAll(fuzzed)...)
	}
	if build.ExitCode != 0 {
		return append(out, c.failAll(fuzzed, "harness failed to compile")...)
	}

	target := filepath.Join("target", "debug", "equicheck_difffuzz_harness")
	fuzz, err := st.Runner.Run(ctx, runner.Invocation{
		Program: "cargo",
		Args: []string{"afl", "fuzz",
			"-i", "in",
			"-o", "out",
			"-E", fmt.Sprint(c.cfg.Executions),
			"--", target},
		Dir:        c.cfg.HarnessPath,
		OutputPath: c.cfg.OutputPath,
		Env:        []string{"AFL_BENCH_UNTIL_CRASH=1"},
	}, c.cfg.Timeout)
	if err != nil {
		return append(out, c.failAll(fuzzed, err.Error())...)
	}
	if fuzz.TimedOut {
		return append(out, c.timeoutAll(fuzzed)...)
	}
	if fuzz.ExitCode != 0 && !strings.Contains(fuzz.Output, "Fuzzing test case") {
		return append(out, c.failAll(fuzzed, "fuzzer did not start")...)
	}

	findings := c.replayCrashes(ctx, st, target)

	bounds := fmt.Sprintf("execs=%d", c.cfg.Executions)
	for _, p := range fuzzed {
		if res, found := findings[p.Name]; found {
			out = append(out, res)
			continue
		}
		out = append(out, workflow.ComponentResult{
			Backend: c.Name(),
			Pair:    p.Name,
			Verdict: workflow.Equivalent,
			Bounds:  bounds,
		})
	}
	return out
}

func (c *DiffFuzz) failAll(pairs []match.Pair, reason string) []workflow.ComponentResult {
	out := make([]workflow.ComponentResult, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, toolError(c.Name(), p, reason))
	}
	return out
}

func (c *DiffFuzz) timeoutAll(pairs []match.Pair) []workflow.ComponentResult {
	out := make([]workflow.ComponentResult, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, workflow.ComponentResult{
			Backend: c.Name(),
			Pair:    p.Name,
			Verdict: workflow.Timeout,
			Reason:  fmt.Sprintf("no verdict within %s", c.cfg.Timeout),
		})
	}
	return out
}

// seedInputs writes the initial corpus the fuzzer mutates from.
func (c *DiffFuzz) seedInputs() error {
	dir := filepath.Join(c.cfg.HarnessPath, "in")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create fuzz corpus dir: %w", err)
	}
	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i)
	}
	if err := os.WriteFile(filepath.Join(dir, "seed"), seed, 0o644); err != nil {
		return fmt.Errorf("failed to write fuzz seed: %w", err)
	}
	return nil
}

// replayCrashes feeds every crash input back through the harness binary
// and reads the printed marker to attribute the finding to its pair.
func (c *DiffFuzz) replayCrashes(ctx context.Context, st *workflow.State, target string) map[string]workflow.ComponentResult {
	findings := make(map[string]workflow.ComponentResult)

	crashDir := filepath.Join(c.cfg.HarnessPath, "out", "default", "crashes")
	entries, err := os.ReadDir(crashDir)
	if err != nil {
		return findings
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && e.Name() != "README.txt" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(crashDir, name))
		if err != nil {
			continue
		}
		outcome, err := st.Runner.Run(ctx, runner.Invocation{
			Program: target,
			Dir:     c.cfg.HarnessPath,
			Stdin:   data,
		}, c.cfg.Timeout)
		if err != nil || outcome.TimedOut {
			continue
		}
		for _, line := range strings.Split(outcome.Output, "\n") {
			line = strings.TrimSpace(line)
			pair, verdictReason, ok := classifyFuzzLine(line)
			if !ok {
				continue
			}
			if _, seen := findings[pair]; seen {
				continue
			}
			findings[pair] = workflow.ComponentResult{
				Backend: c.Name(),
				Pair:    pair,
				Verdict: workflow.Mismatch,
				Witness: fmt.Sprintf("crash input %s (%d bytes)", name, len(data)),
				Reason:  verdictReason,
			}
		}
	}
	return findings
}

func classifyFuzzLine(line string) (pair, reason string, ok bool) {
	if rest, found := strings.CutPrefix(line, "MISMATCH: "); found {
		name, _, _ := strings.Cut(rest, " ")
		return name, "diverging results", true
	}
	if rest, found := strings.CutPrefix(line, "PANIC-DIVERGENCE: "); found {
		name, _, _ := strings.Cut(rest, " ")
		return name, "one side panicked", true
	}
	return "", "", false
}
