package workflow

import (
	"sort"

	"go.uber.org/zap"

	"equicheck/internal/analyze"
	"equicheck/internal/config"
	"equicheck/internal/match"
	"equicheck/internal/precond"
	"equicheck/internal/runner"
)

// State is the shared run state components operate on. Formal components
// retire pairs they verify; testing components only record that a pair
// survived testing, so later formal components still see it.
type State struct {
	Log    *zap.Logger
	A, B   *analyze.Unit
	Cfg    *config.Workflow
	Pre    *precond.Set
	Runner *runner.Runner
	// UsePreconditions is the run-level switch; each component also has
	// its own knob.
	UsePreconditions bool

	order    []string
	pairs    map[string]match.Pair
	retired  map[string]string
	tested   map[string]bool
}

// NewState seeds the run state with the matched pairs, in match order.
func NewState(log *zap.Logger, a, b *analyze.Unit, cfg *config.Workflow,
	pre *precond.Set, r *runner.Runner, pairs []match.Pair) *State {
	st := &State{
		Log:     log,
		A:       a,
		B:       b,
		Cfg:     cfg,
		Pre:     pre,
		Runner:  r,
		pairs:   make(map[string]match.Pair, len(pairs)),
		retired: make(map[string]string),
		tested:  make(map[string]bool),
	}
	for _, p := range pairs {
		st.order = append(st.order, p.Name)
		st.pairs[p.Name] = p
	}
	return st
}

// Pending returns the pairs still under check, in match order.
func (s *State) Pending() []match.Pair {
	out := make([]match.Pair, 0, len(s.pairs))
	for _, name := range s.order {
		p, ok := s.pairs[name]
		if !ok {
			continue
		}
		if _, done := s.retired[name]; done {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Retire marks a pair formally verified by the named component; it leaves
// the pending set.
func (s *State) Retire(pair, component string) {
	if _, ok := s.retired[pair]; !ok {
		s.retired[pair] = component
	}
}

// MarkTested records that a pair passed a testing component. The pair
// stays pending for formal components.
func (s *State) MarkTested(pair string) { s.tested[pair] = true }

// VerifiedBy reports the formal component that retired a pair.
func (s *State) VerifiedBy(pair string) (string, bool) {
	c, ok := s.retired[pair]
	return c, ok
}

// Unverified lists pairs no formal component retired, sorted.
func (s *State) Unverified() []string {
	var out []string
	for _, name := range s.order {
		if _, ok := s.retired[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// TestedOnly lists pairs that passed testing but were never formally
// verified, sorted.
func (s *State) TestedOnly() []string {
	var out []string
	for _, name := range s.order {
		if _, ok := s.retired[name]; !ok && s.tested[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// PreFor resolves the precondition for a pair, honoring both the run-level
// switch and the component's own knob.
func (s *State) PreFor(p match.Pair, componentEnabled bool) *precond.Precondition {
	if !s.UsePreconditions || !componentEnabled || s.Pre == nil {
		return nil
	}
	return s.Pre.For(p.Name, len(p.A.Sig.Params))
}
