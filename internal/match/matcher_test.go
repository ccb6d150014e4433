package match

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"equicheck/internal/analyze"
)

func analyzeStr(t *testing.T, src string) *analyze.Unit {
	t.Helper()
	unit, err := analyze.New(zap.NewNop()).AnalyzeSource(context.Background(), "test.rs", []byte(src))
	if err != nil {
		t.Fatalf("AnalyzeSource: %v", err)
	}
	return unit
}

func TestMatchCompatibleFreeFunctions(t *testing.T) {
	a := analyzeStr(t, `fn add(a: i64, b: i64) -> i64 { a + b }`)
	b := analyzeStr(t, `fn add(a: i64, b: i64) -> i64 { a + b }`)

	res := Match(a, b)
	if len(res.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(res.Pairs))
	}
	if len(res.Unmatched) != 0 {
		t.Fatalf("unmatched = %+v, want none", res.Unmatched)
	}
	if !res.Pairs[0].Identical {
		t.Fatal("identical bodies not detected")
	}
}

func TestMatchIncompatibleSameName(t *testing.T) {
	a := analyzeStr(t, `fn add(a: i64, b: i64) -> i64 { a + b }`)
	b := analyzeStr(t, `fn add(a: u32, b: u32) -> u32 { a + b }`)

	res := Match(a, b)
	if len(res.Pairs) != 0 {
		t.Fatalf("pairs = %+v, want none", res.Pairs)
	}
	if len(res.Unmatched) != 2 {
		t.Fatalf("unmatched = %+v, want two entries", res.Unmatched)
	}
}

func TestMatchArityAmbiguity(t *testing.T) {
	// Module A has no overloads (Rust forbids them), so arity ambiguity
	// appears as one side lacking the other's variant.
	a := analyzeStr(t, `
fn scale(v: i64, by: i64) -> i64 { v * by }
fn offset(v: i64) -> i64 { v }
`)
	b := analyzeStr(t, `fn scale(v: i64, by: i64) -> i64 { v * by }`)

	res := Match(a, b)
	if len(res.Pairs) != 1 || res.Pairs[0].Name != "scale" {
		t.Fatalf("pairs = %+v, want [scale]", res.Pairs)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].Name != "offset" || res.Unmatched[0].Side != "A" {
		t.Fatalf("unmatched = %+v, want offset on side A", res.Unmatched)
	}
}

const methodsA = `
struct Counter { count: u64 }
impl Counter {
    fn equicheck_new(start: u64) -> Counter { Counter { count: start } }
    fn equicheck_get(&self) -> u64 { self.count }
    fn bump(&mut self, by: u64) -> u64 { self.count += by; self.count }
}
`

// Same surface, renamed type, no recognized constructor.
const methodsBNoCtor = `
struct Tally { count: u64 }
impl Tally {
    fn bump(&mut self, by: u64) -> u64 { self.count = self.count + by; self.count }
}
`

const methodsBRenamed = `
struct Tally { count: u64 }
impl Tally {
    fn equicheck_new(start: u64) -> Tally { Tally { count: start } }
    fn equicheck_get(&self) -> u64 { self.count }
    fn bump(&mut self, by: u64) -> u64 { self.count = self.count + by; self.count }
}
`

func TestMatchMethodsAcrossRenamedTypes(t *testing.T) {
	res := Match(analyzeStr(t, methodsA), analyzeStr(t, methodsBRenamed))

	if len(res.Pairs) != 1 {
		t.Fatalf("pairs = %+v, want one method pair", res.Pairs)
	}
	p := res.Pairs[0]
	if !p.Method || p.OwnerA != "Counter" || p.OwnerB != "Tally" {
		t.Fatalf("pair = %+v, want Counter/Tally method pair", p)
	}
	if !p.HasConstructor || !p.HasGetter {
		t.Fatalf("pair = %+v, want constructor and getter detected", p)
	}
}

func TestMatchAssociatedFunctionsAcrossRenamedTypes(t *testing.T) {
	a := analyzeStr(t, `
struct Counter { count: u64 }
impl Counter {
    fn equicheck_new(start: u64) -> Counter { Counter { count: start } }
    fn scale(v: u64, by: u64) -> u64 { v * by }
}
`)
	b := analyzeStr(t, `
struct Tally { count: u64 }
impl Tally {
    fn equicheck_new(start: u64) -> Tally { Tally { count: start } }
    fn scale(v: u64, by: u64) -> u64 { by * v }
}
`)

	res := Match(a, b)
	if len(res.Pairs) != 1 {
		t.Fatalf("pairs = %+v, want the associated function pair", res.Pairs)
	}
	p := res.Pairs[0]
	if p.Name != "Counter::scale" || p.Method {
		t.Fatalf("pair = %+v, want associated function Counter::scale", p)
	}
	if p.OwnerA != "Counter" || p.OwnerB != "Tally" {
		t.Fatalf("pair owners = %s/%s, want Counter/Tally", p.OwnerA, p.OwnerB)
	}
	if p.B.Sig.QualifiedName() != "Tally::scale" {
		t.Fatalf("side B = %s, want Tally::scale", p.B.Sig.QualifiedName())
	}
}

func TestMatchMethodWithoutConstructorIsIneligible(t *testing.T) {
	res := Match(analyzeStr(t, methodsA), analyzeStr(t, methodsBNoCtor))

	if len(res.Pairs) != 1 {
		t.Fatalf("pairs = %+v, want one", res.Pairs)
	}
	p := res.Pairs[0]
	if p.HasConstructor {
		t.Fatal("constructor reported present but module B lacks one")
	}
	if p.Eligible(true) {
		t.Fatal("method pair without constructor must be ineligible for method-capable backends")
	}
	if p.Eligible(false) {
		// A backend that cannot construct receivers never takes method pairs.
		t.Fatal("method pair must not be eligible for a free-function-only backend")
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	srcA := methodsA + "\nfn add(a: i64, b: i64) -> i64 { a + b }\nfn sub(a: i64, b: i64) -> i64 { a - b }"
	srcB := methodsBRenamed + "\nfn add(a: i64, b: i64) -> i64 { a + b }\nfn mul(a: i64, b: i64) -> i64 { a * b }"

	first := Match(analyzeStr(t, srcA), analyzeStr(t, srcB))
	for i := 0; i < 10; i++ {
		again := Match(analyzeStr(t, srcA), analyzeStr(t, srcB))
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Match not deterministic (-first +again):\n%s", diff)
		}
	}
}
