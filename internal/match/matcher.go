// Package match pairs the callable surfaces of two analyzed modules.
// Matching is pure and deterministic: it depends only on the two Units,
// never on map traversal order.
package match

import (
	"sort"

	"equicheck/internal/analyze"
)

// Pair is a structurally compatible callable found in both modules.
type Pair struct {
	// Name is the canonical qualified name, taken from module A.
	Name string
	// A and B are the two implementations.
	A, B analyze.Function
	// Method is set for receiver-taking pairs.
	Method bool
	// OwnerA/OwnerB are the owning type names on each side. They may
	// differ: owning types are normalized positionally, not by identity.
	OwnerA, OwnerB string
	// HasConstructor is set when both owning types expose the recognized
	// constructor. Method pairs without it are ineligible for
	// method-capable backends.
	HasConstructor bool
	// HasGetter is set when both owning types expose the recognized getter.
	HasGetter bool
	// Identical is set when both bodies are byte-identical.
	Identical bool
}

// FlatName is the pair's name flattened into a single identifier, the form
// harness entry points embed.
func (p Pair) FlatName() string { return p.A.Sig.FlatName() }

// Eligible reports whether the pair can be harnessed by a backend that
// needs to construct receivers.
func (p Pair) Eligible(methodCapable bool) bool {
	if !p.Method {
		return true
	}
	return methodCapable && p.HasConstructor
}

// Entity is a callable found on one side only (or structurally
// incompatible with its same-name counterpart).
type Entity struct {
	// Side is "A" or "B".
	Side string
	// Name is the qualified name on that side.
	Name string
	// Reason explains why no pair was formed.
	Reason string
}

// Result is the matcher output: ordered pairs plus diagnosed leftovers.
type Result struct {
	Pairs     []Pair
	Unmatched []Entity
}

// Match pairs two collected units. Free functions match by name and
// structural signature compatibility; methods additionally require their
// owning types to correspond. Owning types are aligned by name when
// possible and by order of appearance otherwise, so a renamed type still
// pairs as long as its surface matches. Associated functions go through
// the same owner alignment, so Counter::scale pairs with Tally::scale
// once Counter aligns with Tally.
func Match(a, b *analyze.Unit) Result {
	var res Result

	typeMap := alignTypes(a, b)
	res.matchFunctions(a, b, typeMap)
	res.matchMethods(a, b, typeMap)
	res.reportUnmatchedTypes(a, b, typeMap)

	return res
}

func (r *Result) matchFunctions(a, b *analyze.Unit, typeMap map[string]string) {
	usedB := make([]bool, len(b.Functions))

	for _, fa := range a.Functions {
		wantOwner := fa.Sig.OwnerType
		if mapped, ok := typeMap[wantOwner]; ok {
			wantOwner = mapped
		}
		idx := -1
		sameName := false
		for i, fb := range b.Functions {
			if usedB[i] || fa.Sig.Name != fb.Sig.Name || fb.Sig.OwnerType != wantOwner {
				continue
			}
			sameName = true
			if fa.Sig.CompatibleWith(fb.Sig) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			usedB[idx] = true
			r.Pairs = append(r.Pairs, Pair{
				Name:      fa.Sig.QualifiedName(),
				A:         fa,
				B:         b.Functions[idx],
				OwnerA:    fa.Sig.OwnerType,
				OwnerB:    b.Functions[idx].Sig.OwnerType,
				Identical: fa.Body == b.Functions[idx].Body,
			})
			continue
		}
		reason := "no counterpart in module B"
		if sameName {
			reason = "same name in module B but structurally incompatible"
		}
		r.Unmatched = append(r.Unmatched, Entity{Side: "A", Name: fa.Sig.QualifiedName(), Reason: reason})
	}
	for i, fb := range b.Functions {
		if !usedB[i] {
			r.Unmatched = append(r.Unmatched, Entity{Side: "B", Name: fb.Sig.QualifiedName(),
				Reason: "no counterpart in module A"})
		}
	}
}

// alignTypes maps module A type names to module B type names. Types with
// identical names pair first; the remainder pair by order of appearance.
func alignTypes(a, b *analyze.Unit) map[string]string {
	typeMap := make(map[string]string)
	usedB := make(map[string]bool)

	for _, ta := range a.TypeOrder {
		for _, tb := range b.TypeOrder {
			if ta == tb && !usedB[tb] {
				typeMap[ta] = tb
				usedB[tb] = true
				break
			}
		}
	}

	var leftA, leftB []string
	for _, ta := range a.TypeOrder {
		if _, ok := typeMap[ta]; !ok {
			leftA = append(leftA, ta)
		}
	}
	for _, tb := range b.TypeOrder {
		if !usedB[tb] {
			leftB = append(leftB, tb)
		}
	}
	for i := 0; i < len(leftA) && i < len(leftB); i++ {
		typeMap[leftA[i]] = leftB[i]
	}
	return typeMap
}

func (r *Result) matchMethods(a, b *analyze.Unit, typeMap map[string]string) {
	// Iterate types in module A appearance order for determinism.
	for _, ta := range a.TypeOrder {
		tb, aligned := typeMap[ta]
		methodsA := a.Methods[ta]
		if !aligned {
			for _, ma := range methodsA {
				r.Unmatched = append(r.Unmatched, Entity{Side: "A", Name: ma.Sig.QualifiedName(),
					Reason: "owning type has no counterpart in module B"})
			}
			continue
		}

		methodsB := b.Methods[tb]
		usedB := make([]bool, len(methodsB))
		_, ctorA := a.Constructor(ta)
		_, ctorB := b.Constructor(tb)
		_, getA := a.Getter(ta)
		_, getB := b.Getter(tb)

		for _, ma := range methodsA {
			idx := -1
			sameName := false
			for i, mb := range methodsB {
				if usedB[i] || ma.Sig.Name != mb.Sig.Name {
					continue
				}
				sameName = true
				if ma.Sig.CompatibleWith(mb.Sig) {
					idx = i
					break
				}
			}
			if idx >= 0 {
				usedB[idx] = true
				r.Pairs = append(r.Pairs, Pair{
					Name:           ma.Sig.QualifiedName(),
					A:              ma,
					B:              methodsB[idx],
					Method:         true,
					OwnerA:         ta,
					OwnerB:         tb,
					HasConstructor: ctorA && ctorB,
					HasGetter:      getA && getB,
					Identical:      ma.Body == methodsB[idx].Body,
				})
				continue
			}
			reason := "no counterpart method in module B"
			if sameName {
				reason = "same method name in module B but structurally incompatible"
			}
			r.Unmatched = append(r.Unmatched, Entity{Side: "A", Name: ma.Sig.QualifiedName(), Reason: reason})
		}
		for i, mb := range methodsB {
			if !usedB[i] {
				r.Unmatched = append(r.Unmatched, Entity{Side: "B", Name: mb.Sig.QualifiedName(),
					Reason: "no counterpart method in module A"})
			}
		}
	}
}

// reportUnmatchedTypes diagnoses module B types whose methods were never
// visited because no module A type aligned with them.
func (r *Result) reportUnmatchedTypes(a, b *analyze.Unit, typeMap map[string]string) {
	aligned := make(map[string]bool)
	for _, tb := range typeMap {
		aligned[tb] = true
	}
	var leftover []string
	for _, tb := range b.TypeOrder {
		if !aligned[tb] {
			leftover = append(leftover, tb)
		}
	}
	sort.Strings(leftover)
	for _, tb := range leftover {
		for _, mb := range b.Methods[tb] {
			r.Unmatched = append(r.Unmatched, Entity{Side: "B", Name: mb.Sig.QualifiedName(),
				Reason: "owning type has no counterpart in module A"})
		}
	}
}
