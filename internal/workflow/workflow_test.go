package workflow

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"equicheck/internal/analyze"
	"equicheck/internal/match"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pair(name string) match.Pair {
	return match.Pair{
		Name: name,
		A:    analyze.Function{Sig: analyze.Signature{Name: name}},
		B:    analyze.Function{Sig: analyze.Signature{Name: name}},
	}
}

func newState(pairs ...match.Pair) *State {
	return NewState(zap.NewNop(), nil, nil, nil, nil, nil, pairs)
}

// stub is a scripted component: it emits one fixed verdict per pending
// pair and records which pairs it saw.
type stub struct {
	name    string
	formal  bool
	verdict Verdict
	saw     []string
}

func (s *stub) Name() string { return s.name }
func (s *stub) Formal() bool { return s.formal }
func (s *stub) Note() string { return "scripted" }

func (s *stub) Run(_ context.Context, st *State) []ComponentResult {
	var out []ComponentResult
	for _, p := range st.Pending() {
		s.saw = append(s.saw, p.Name)
		out = append(out, ComponentResult{Backend: s.name, Pair: p.Name, Verdict: s.verdict})
	}
	return out
}

func TestOrchestratorSuccess(t *testing.T) {
	st := newState(pair("add"), pair("sub"))
	c := &stub{name: "kani", formal: true, verdict: Equivalent}
	report := NewOrchestrator(zap.NewNop(), []Component{c}, false).Run(context.Background(), st)

	if report.Status != Success {
		t.Fatalf("status = %s, want success", report.Status)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}
	if len(report.Unverified) != 0 {
		t.Fatalf("unverified = %v, want none", report.Unverified)
	}
}

func TestOrchestratorFormalRetiresPairs(t *testing.T) {
	st := newState(pair("add"), pair("sub"))
	first := &stub{name: "kani", formal: true, verdict: Equivalent}
	second := &stub{name: "pbt", verdict: Equivalent}
	NewOrchestrator(zap.NewNop(), []Component{first, second}, false).Run(context.Background(), st)

	if len(second.saw) != 0 {
		t.Fatalf("retired pairs reached a later component: %v", second.saw)
	}
}

func TestOrchestratorTestingKeepsPairsPending(t *testing.T) {
	st := newState(pair("add"))
	tester := &stub{name: "pbt", formal: false, verdict: Equivalent}
	formal := &stub{name: "kani", formal: true, verdict: Equivalent}
	report := NewOrchestrator(zap.NewNop(), []Component{tester, formal}, false).Run(context.Background(), st)

	if len(formal.saw) != 1 {
		t.Fatalf("formal component saw %v, want the tested pair", formal.saw)
	}
	if len(report.TestedOnly) != 0 {
		t.Fatalf("tested_only = %v after formal verification", report.TestedOnly)
	}
}

func TestOrchestratorTestedOnlyReported(t *testing.T) {
	st := newState(pair("add"))
	c := &stub{name: "pbt", formal: false, verdict: Equivalent}
	report := NewOrchestrator(zap.NewNop(), []Component{c}, false).Run(context.Background(), st)

	if report.Status != Success {
		t.Fatalf("status = %s, want success", report.Status)
	}
	if len(report.TestedOnly) != 1 || report.TestedOnly[0] != "add" {
		t.Fatalf("tested_only = %v, want [add]", report.TestedOnly)
	}
	if len(report.Unverified) != 1 {
		t.Fatalf("unverified = %v, want [add]", report.Unverified)
	}
}

func TestOrchestratorLenientRecordsAndContinues(t *testing.T) {
	st := newState(pair("add"))
	bad := &stub{name: "kani", formal: true, verdict: Mismatch}
	after := &stub{name: "pbt", verdict: Equivalent}
	report := NewOrchestrator(zap.NewNop(), []Component{bad, after}, false).Run(context.Background(), st)

	if report.Status != PartialFailure {
		t.Fatalf("status = %s, want partial-failure", report.Status)
	}
	if len(after.saw) != 1 {
		t.Fatal("lenient mode must continue past a mismatch")
	}
}

func TestOrchestratorStrictAborts(t *testing.T) {
	st := newState(pair("add"))
	bad := &stub{name: "kani", formal: true, verdict: ToolError}
	never := &stub{name: "pbt", verdict: Equivalent}
	report := NewOrchestrator(zap.NewNop(), []Component{bad, never}, true).Run(context.Background(), st)

	if report.Status != FatalAbort {
		t.Fatalf("status = %s, want fatal-abort", report.Status)
	}
	if len(never.saw) != 0 {
		t.Fatal("strict abort must stop remaining components")
	}
	// Results recorded before the abort survive.
	if len(report.Results) != 1 || report.Results[0].Verdict != ToolError {
		t.Fatalf("results = %+v", report.Results)
	}
}

func TestOrchestratorStrictToleratesTimeout(t *testing.T) {
	st := newState(pair("add"))
	slow := &stub{name: "kani", formal: true, verdict: Timeout}
	after := &stub{name: "pbt", verdict: Equivalent}
	report := NewOrchestrator(zap.NewNop(), []Component{slow, after}, true).Run(context.Background(), st)

	if report.Status != PartialFailure {
		t.Fatalf("status = %s, want partial-failure", report.Status)
	}
	if len(after.saw) != 1 {
		t.Fatal("a timeout must not abort a strict run")
	}
}

func TestOrchestratorSkippedIsNotFailing(t *testing.T) {
	st := newState(pair("add"))
	c := &stub{name: "kani", formal: true, verdict: Skipped}
	report := NewOrchestrator(zap.NewNop(), []Component{c}, false).Run(context.Background(), st)

	if report.Status != Success {
		t.Fatalf("status = %s, want success", report.Status)
	}
}

func TestReportYAML(t *testing.T) {
	r := NewReport()
	r.Results = []ComponentResult{
		{Backend: "kani", Pair: "add", Verdict: Equivalent, Bounds: "unwind=8"},
		{Backend: "pbt", Pair: "sub", Verdict: Mismatch, Witness: "sub args=(3, 5)"},
	}
	r.Recompute()

	var buf bytes.Buffer
	if err := r.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"run_id: " + r.RunID,
		"status: partial-failure",
		"verdict: equivalent",
		"bounds: unwind=8",
		"witness: sub args=(3, 5)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestStateBookkeeping(t *testing.T) {
	st := newState(pair("b"), pair("a"))

	st.Retire("b", "kani")
	if got := st.Pending(); len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("pending = %v", got)
	}
	if by, ok := st.VerifiedBy("b"); !ok || by != "kani" {
		t.Fatalf("VerifiedBy = %q, %v", by, ok)
	}

	// First retirement wins.
	st.Retire("b", "alive2")
	if by, _ := st.VerifiedBy("b"); by != "kani" {
		t.Fatalf("retirement overwritten to %q", by)
	}

	st.MarkTested("a")
	if got := st.TestedOnly(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("tested_only = %v", got)
	}
	if got := st.Unverified(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("unverified = %v", got)
	}
}
