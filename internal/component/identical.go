package component

import (
	"context"

	"equicheck/internal/config"
	"equicheck/internal/workflow"
)

// Identical retires pairs whose two bodies are byte-identical. It needs no
// external tool: textual identity is the one case where equivalence is
// unconditional.
type Identical struct{}

func (c *Identical) Name() string { return config.ComponentIdentical }
func (c *Identical) Formal() bool { return true }
func (c *Identical) Note() string { return "byte-identical body comparison" }

func (c *Identical) Run(_ context.Context, st *workflow.State) []workflow.ComponentResult {
	var out []workflow.ComponentResult
	for _, p := range st.Pending() {
		if !p.Identical {
			continue
		}
		out = append(out, workflow.ComponentResult{
			Backend: c.Name(),
			Pair:    p.Name,
			Verdict: workflow.Equivalent,
			Bounds:  "textual",
		})
	}
	return out
}
