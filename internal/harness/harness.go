// Package harness generates backend-specific equivalence harness sources.
//
// Generation is deterministic: every generator is a pure function of the
// pair, the optional precondition, and the backend configuration, and
// produces byte-identical output for identical input. Artifacts carry only
// the harness items themselves; project assembly lives in WriteProject.
package harness

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"equicheck/internal/analyze"
	"equicheck/internal/match"
	"equicheck/internal/precond"
)

// Artifact is one generated harness item for one pair.
type Artifact struct {
	// Backend is the canonical component name the artifact targets.
	Backend string
	// Pair is the qualified name of the checked pair.
	Pair string
	// Entry is the harness entry-point identifier embedded in the source.
	Entry string
	// Source is the generated Rust item.
	Source string
}

// Input bundles what a generator needs for one pair.
type Input struct {
	Pair match.Pair
	// A and B are the analyzed modules; generators look up constructors
	// for method pairs there.
	A, B *analyze.Unit
	// Pre is the pair's translated precondition, nil when absent or when
	// preconditions are disabled for the backend.
	Pre *precond.Precondition
}

// SkipError marks a pair whose shape the backend cannot harness. The
// caller records it as a skip, never as a tool failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return e.Reason }

func skipf(format string, args ...any) *SkipError {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// EntryName is the harness entry identifier for a pair.
func EntryName(p match.Pair) string { return "check_" + p.FlatName() }

// arg is one harnessed parameter with everything the templates need.
type arg struct {
	// Name is the parameter name, also used as the struct field name.
	Name string
	// Owned is an owned Rust type usable in a derive(Arbitrary) struct.
	Owned string
	// Strategy is the proptest strategy expression.
	Strategy string
	// Pass is the call-site expression; Holder is already applied.
	Pass string
}

// sliceBound caps generated slice lengths so bounded backends terminate.
const sliceBound = 4

// buildArgs shapes a parameter list for harness generation. holder is the
// access prefix at the call site ("args." for struct-held values, "" for
// plain bindings).
func buildArgs(params []analyze.Param, holder string) ([]arg, error) {
	out := make([]arg, 0, len(params))
	for _, p := range params {
		t := analyze.NormalizeType(p.Type)
		if strings.HasPrefix(t, "&mut ") {
			return nil, skipf("parameter %s: mutable reference parameters are not harnessed", p.Name)
		}
		ref := strings.HasPrefix(t, "&")
		t = strings.TrimSpace(strings.TrimPrefix(t, "&"))

		a := arg{Name: p.Name}
		switch {
		case t == "bool" || isScalar(t):
			a.Owned = t
			a.Strategy = fmt.Sprintf("any::<%s>()", t)
			a.Pass = holder + p.Name
			if ref {
				a.Pass = "&" + a.Pass
			}
		default:
			elem, ok := sliceElem(t)
			if !ok || !isScalar(elem) {
				return nil, skipf("parameter %s: type %s is not harnessed", p.Name, p.Type)
			}
			a.Owned = fmt.Sprintf("[%s; %d]", elem, sliceBound)
			a.Strategy = fmt.Sprintf("proptest::collection::vec(any::<%s>(), 0..%d)", elem, sliceBound)
			a.Pass = "&" + holder + p.Name + "[..]"
		}
		out = append(out, a)
	}
	return out, nil
}

func isScalar(t string) bool {
	switch t {
	case "i8", "i16", "i32", "i64", "i128", "isize",
		"u8", "u16", "u32", "u64", "u128", "usize":
		return true
	}
	return false
}

// sliceElem extracts the element type of `[T]`, `[T; N]` or `Vec<T>`.
func sliceElem(t string) (string, bool) {
	if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
		inner := strings.TrimSuffix(strings.TrimPrefix(t, "["), "]")
		if idx := strings.Index(inner, ";"); idx >= 0 {
			inner = inner[:idx]
		}
		return strings.TrimSpace(inner), true
	}
	if strings.HasPrefix(t, "Vec<") && strings.HasSuffix(t, ">") {
		return strings.TrimSpace(t[4 : len(t)-1]), true
	}
	return "", false
}

func passList(args []arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Pass
	}
	return strings.Join(parts, ", ")
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// methodInputs resolves the constructor parameters and state-check
// eligibility shared by the method-capable generators.
func methodInputs(in Input) (ctor []analyze.Param, checkState bool, err error) {
	p := in.Pair
	ctorA, ok := in.A.Constructor(p.OwnerA)
	if !ok {
		return nil, false, skipf("type %s has no recognized constructor", p.OwnerA)
	}
	if _, ok := in.B.Constructor(p.OwnerB); !ok {
		return nil, false, skipf("type %s has no recognized constructor", p.OwnerB)
	}
	// State inspection needs the getter on both sides and a receiver that
	// survives the call.
	checkState = p.HasGetter && p.A.Sig.Receiver != analyze.ReceiverValue
	return ctorA.Sig.Params, checkState, nil
}
