// Package precond translates an external specification file into named,
// executable preconditions. Each specification entry names a function, its
// parameter list, and a boolean assertion; translation validates the
// assertion against the declared parameters, produces Rust guard source
// for harness embedding, and compiles an equivalent Go predicate.
//
// Entry format, one per function:
//
//	fn divide(a: i64, b: i64) requires b != 0;
//	fn Counter::bump(by: u64) requires by < 1000;
package precond

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"equicheck/internal/analyze"
)

// Precondition is one translated specification entry.
type Precondition struct {
	// Name is the qualified function name ("divide" or "Counter::bump").
	Name string
	// Params as declared in the specification entry.
	Params []analyze.Param
	// Assertion is the Rust-rendered guard expression.
	Assertion string
	// predicate is the compiled executable form.
	predicate *Predicate
}

// Arity of the guarded function's parameter list.
func (p *Precondition) Arity() int { return len(p.Params) }

// Method reports whether the entry names a method (Type::name).
func (p *Precondition) Method() bool { return strings.Contains(p.Name, "::") }

// Ident is the function identifier without its owning type.
func (p *Precondition) Ident() string {
	if idx := strings.LastIndex(p.Name, "::"); idx >= 0 {
		return p.Name[idx+2:]
	}
	return p.Name
}

// GuardName is the name of the generated Rust guard.
func (p *Precondition) GuardName() string { return "equicheck_pre_" + p.Ident() }

// Eval applies the compiled predicate to concrete parameter values.
func (p *Precondition) Eval(args map[string]any) (bool, error) {
	return p.predicate.Eval(args)
}

// GuardSource renders the Rust guard function for harness embedding.
// Method guards are emitted inside an impl block so harnesses can call
// them on the receiver.
func (p *Precondition) GuardSource() string {
	var decls []string
	for _, param := range p.Params {
		decls = append(decls, param.Name+": "+param.Type)
	}
	header := fmt.Sprintf("pub fn %s(%s) -> bool", p.GuardName(), strings.Join(decls, ", "))
	if p.Method() {
		owner := p.Name[:strings.LastIndex(p.Name, "::")]
		recv := append([]string{"&self"}, decls...)
		header = fmt.Sprintf("pub fn %s(%s) -> bool", p.GuardName(), strings.Join(recv, ", "))
		return fmt.Sprintf("impl %s {\n    #[allow(unused)]\n    %s {\n        %s\n    }\n}\n",
			owner, header, p.Assertion)
	}
	return fmt.Sprintf("#[allow(unused)]\n%s {\n    %s\n}\n", header, p.Assertion)
}

// TranslationError scopes a failed entry to its function; the run
// continues without that precondition.
type TranslationError struct {
	Name   string
	Reason string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("precondition for %s: %s", e.Name, e.Reason)
}

// Set is the translated precondition mapping, keyed by (name, arity).
type Set struct {
	items map[string]*Precondition
	order []string
}

func key(name string, arity int) string { return fmt.Sprintf("%s/%d", name, arity) }

// For looks up the precondition for a function name and arity.
func (s *Set) For(name string, arity int) *Precondition {
	if s == nil {
		return nil
	}
	return s.items[key(name, arity)]
}

// Len reports how many preconditions translated successfully.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// GuardSources renders every guard in translation order, the block that is
// appended to the second module inside harness projects.
func (s *Set) GuardSources() string {
	if s == nil || len(s.order) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n// Generated precondition guards.\n")
	for _, k := range s.order {
		b.WriteString(s.items[k].GuardSource())
		b.WriteString("\n")
	}
	return b.String()
}

// Translate parses specification source into a Set. Failed entries are
// returned as TranslationErrors; they never fail the run.
func Translate(ctx context.Context, log *zap.Logger, source string) (*Set, []TranslationError) {
	set := &Set{items: make(map[string]*Precondition)}
	var errs []TranslationError

	for _, entry := range splitEntries(source) {
		pre, err := translateEntry(ctx, entry)
		if err != nil {
			log.Warn("precondition rejected", zap.String("entry", err.Name), zap.String("reason", err.Reason))
			errs = append(errs, *err)
			continue
		}
		k := key(pre.Name, pre.Arity())
		if _, dup := set.items[k]; dup {
			log.Warn("duplicate precondition", zap.String("function", pre.Name))
			errs = append(errs, TranslationError{Name: pre.Name,
				Reason: "a precondition for this function and arity is already defined"})
			continue
		}
		set.items[k] = pre
		set.order = append(set.order, k)
		log.Debug("precondition translated",
			zap.String("function", pre.Name), zap.String("assertion", pre.Assertion))
	}
	return set, errs
}

// splitEntries cuts the specification source into `fn ... ;` entries,
// dropping comment lines.
func splitEntries(source string) []string {
	var cleaned []string
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		cleaned = append(cleaned, line)
	}

	var entries []string
	for _, chunk := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			entries = append(entries, chunk)
		}
	}
	return entries
}

// translateEntry parses and compiles one entry.
func translateEntry(ctx context.Context, entry string) (*Precondition, *TranslationError) {
	fail := func(name, format string, args ...any) (*Precondition, *TranslationError) {
		return nil, &TranslationError{Name: name, Reason: fmt.Sprintf(format, args...)}
	}

	if !strings.HasPrefix(entry, "fn ") {
		return fail(firstWord(entry), "entry must start with `fn`")
	}
	reqIdx := strings.Index(entry, "requires")
	if reqIdx < 0 {
		return fail(firstWord(entry[3:]), "entry has no `requires` clause")
	}
	header := strings.TrimSpace(entry[3:reqIdx])
	assertion := strings.TrimSpace(entry[reqIdx+len("requires"):])

	open := strings.Index(header, "(")
	closeIdx := strings.LastIndex(header, ")")
	if open < 0 || closeIdx < open {
		return fail(header, "malformed parameter list")
	}
	name := strings.TrimSpace(header[:open])
	if name == "" {
		return fail(header, "entry names no function")
	}
	params, err := analyze.ParseParamList(ctx, header[open+1:closeIdx])
	if err != nil {
		return fail(name, "%v", err)
	}

	expr, err := parseAssertion(ctx, assertion)
	if err != nil {
		return fail(name, "%v", err)
	}

	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}
	used := make(map[string]bool)
	identifiers(expr, used)
	var unresolved []string
	for ident := range used {
		if !declared[ident] {
			unresolved = append(unresolved, ident)
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return fail(name, "identifier %q does not resolve to a declared parameter", unresolved[0])
	}

	predicate, err := compilePredicate(expr, params)
	if err != nil {
		return fail(name, "%v", err)
	}

	return &Precondition{
		Name:      name,
		Params:    params,
		Assertion: expr.rust(),
		predicate: predicate,
	}, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "<empty>"
	}
	return strings.TrimRight(fields[0], "(")
}
