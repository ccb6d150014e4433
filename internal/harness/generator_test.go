package harness

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"go.uber.org/zap"

	"equicheck/internal/analyze"
	"equicheck/internal/config"
	"equicheck/internal/match"
	"equicheck/internal/precond"
)

const moduleA = `pub fn add(a: i64, b: i64) -> i64 {
    a + b
}

pub fn sum(data: &[u8]) -> u64 {
    data.iter().map(|v| *v as u64).sum()
}

pub struct Counter {
    count: u64,
}

impl Counter {
    pub fn equicheck_new(start: u64) -> Counter {
        Counter { count: start }
    }

    pub fn equicheck_get(&self) -> u64 {
        self.count
    }

    pub fn bump(&mut self, by: u64) -> u64 {
        self.count += by;
        self.count
    }

    pub fn scale(v: u64, by: u64) -> u64 {
        v * by
    }
}
`

const moduleB = `pub fn add(a: i64, b: i64) -> i64 {
    b + a
}

pub fn sum(data: &[u8]) -> u64 {
    let mut total = 0u64;
    for v in data {
        total += *v as u64;
    }
    total
}

pub struct Tally {
    total: u64,
}

impl Tally {
    pub fn equicheck_new(start: u64) -> Tally {
        Tally { total: start }
    }

    pub fn equicheck_get(&self) -> u64 {
        self.total
    }

    pub fn bump(&mut self, by: u64) -> u64 {
        self.total = self.total + by;
        self.total
    }

    pub fn scale(v: u64, by: u64) -> u64 {
        by * v
    }
}
`

type fixture struct {
	a, b  *analyze.Unit
	pairs map[string]match.Pair
	pre   *precond.Set
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	az := analyze.New(log)
	a, err := az.AnalyzeSource(ctx, "mod1.rs", []byte(moduleA))
	if err != nil {
		t.Fatalf("analyze module A: %v", err)
	}
	b, err := az.AnalyzeSource(ctx, "mod2.rs", []byte(moduleB))
	if err != nil {
		t.Fatalf("analyze module B: %v", err)
	}

	res := match.Match(a, b)
	pairs := make(map[string]match.Pair, len(res.Pairs))
	for _, p := range res.Pairs {
		pairs[p.Name] = p
	}

	pre, errs := precond.Translate(ctx, log, `fn add(a: i64, b: i64) requires b != 0;`)
	if len(errs) != 0 {
		t.Fatalf("translate preconditions: %+v", errs)
	}
	return &fixture{a: a, b: b, pairs: pairs, pre: pre}
}

func (f *fixture) input(t *testing.T, name string, withPre bool) Input {
	t.Helper()
	p, ok := f.pairs[name]
	if !ok {
		t.Fatalf("pair %s not matched", name)
	}
	in := Input{Pair: p, A: f.a, B: f.b}
	if withPre {
		in.Pre = f.pre.For(p.Name, len(p.A.Sig.Params))
	}
	return in
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestKaniFreeFunction(t *testing.T) {
	f := newFixture(t)
	art, err := Kani(f.input(t, "add", true), config.KaniConfig{LoopUnwind: 8})
	if err != nil {
		t.Fatalf("Kani: %v", err)
	}
	if art.Entry != "check_add" || art.Backend != config.ComponentKani {
		t.Fatalf("artifact identity = %+v", art)
	}
	golden(t).Assert(t, "kani_free", []byte(art.Source))
}

func TestKaniMethod(t *testing.T) {
	f := newFixture(t)
	art, err := Kani(f.input(t, "Counter::bump", false), config.KaniConfig{LoopUnwind: 8})
	if err != nil {
		t.Fatalf("Kani: %v", err)
	}
	golden(t).Assert(t, "kani_method", []byte(art.Source))
}

// Associated functions carry their owning type in the call path; the
// path differs per side when the type was renamed.
func TestAssociatedFunctionCallPaths(t *testing.T) {
	f := newFixture(t)
	in := f.input(t, "Counter::scale", false)

	kani, err := Kani(in, config.KaniConfig{LoopUnwind: 8})
	if err != nil {
		t.Fatalf("Kani: %v", err)
	}
	want := "assert_eq!(mod1::Counter::scale(args.v, args.by), mod2::Tally::scale(args.v, args.by));"
	if !strings.Contains(kani.Source, want) {
		t.Fatalf("kani harness does not call the qualified paths:\n%s", kani.Source)
	}

	pbt, err := PBT(in, config.PBTConfig{TestCases: 64})
	if err != nil {
		t.Fatalf("PBT: %v", err)
	}
	if !strings.Contains(pbt.Source, "mod1::Counter::scale(v, by)") ||
		!strings.Contains(pbt.Source, "mod2::Tally::scale(v, by)") {
		t.Fatalf("pbt harness does not call the qualified paths:\n%s", pbt.Source)
	}

	fuzz, err := DiffFuzz(in, config.DiffFuzzConfig{})
	if err != nil {
		t.Fatalf("DiffFuzz: %v", err)
	}
	if !strings.Contains(fuzz.Source, "mod1::Counter::scale(v, by)") ||
		!strings.Contains(fuzz.Source, "mod2::Tally::scale(v, by)") {
		t.Fatalf("fuzz harness does not call the qualified paths:\n%s", fuzz.Source)
	}
}

func TestKaniSliceParameter(t *testing.T) {
	f := newFixture(t)
	art, err := Kani(f.input(t, "sum", false), config.KaniConfig{LoopUnwind: 8})
	if err != nil {
		t.Fatalf("Kani: %v", err)
	}
	if !strings.Contains(art.Source, "data: [u8; 4]") {
		t.Fatalf("slice parameter not bounded to an array:\n%s", art.Source)
	}
	if !strings.Contains(art.Source, "&args.data[..]") {
		t.Fatalf("slice parameter not reborrowed at call site:\n%s", art.Source)
	}
}

func TestPBTFreeFunction(t *testing.T) {
	f := newFixture(t)
	art, err := PBT(f.input(t, "add", true), config.PBTConfig{TestCases: 256})
	if err != nil {
		t.Fatalf("PBT: %v", err)
	}
	golden(t).Assert(t, "pbt_free", []byte(art.Source))
}

func TestPBTMethodPrefixesConstructorBindings(t *testing.T) {
	f := newFixture(t)
	art, err := PBT(f.input(t, "Counter::bump", false), config.PBTConfig{TestCases: 64})
	if err != nil {
		t.Fatalf("PBT: %v", err)
	}
	if !strings.Contains(art.Source, "ctor_start in any::<u64>()") {
		t.Fatalf("constructor binding not prefixed:\n%s", art.Source)
	}
	if !strings.Contains(art.Source, "equicheck_new(ctor_start)") {
		t.Fatalf("constructor call missing:\n%s", art.Source)
	}
	if !strings.Contains(art.Source, "left.equicheck_get()") {
		t.Fatalf("state comparison missing:\n%s", art.Source)
	}
}

func TestDiffFuzzFreeFunction(t *testing.T) {
	f := newFixture(t)
	art, err := DiffFuzz(f.input(t, "add", true), config.DiffFuzzConfig{})
	if err != nil {
		t.Fatalf("DiffFuzz: %v", err)
	}
	for _, want := range []string{
		"postcard::from_bytes::<(i64, i64)>",
		"if !mod2::equicheck_pre_add(a, b)",
		"MISMATCH: add",
	} {
		if !strings.Contains(art.Source, want) {
			t.Fatalf("missing %q in:\n%s", want, art.Source)
		}
	}
}

func TestDiffFuzzSliceDecodesAsVec(t *testing.T) {
	f := newFixture(t)
	art, err := DiffFuzz(f.input(t, "sum", false), config.DiffFuzzConfig{})
	if err != nil {
		t.Fatalf("DiffFuzz: %v", err)
	}
	if !strings.Contains(art.Source, "postcard::from_bytes::<(Vec<u8>,)>") {
		t.Fatalf("single slice parameter not decoded as Vec tuple:\n%s", art.Source)
	}
}

func TestDiffFuzzCatchPanics(t *testing.T) {
	f := newFixture(t)
	art, err := DiffFuzz(f.input(t, "add", false), config.DiffFuzzConfig{CatchPanics: true})
	if err != nil {
		t.Fatalf("DiffFuzz: %v", err)
	}
	if !strings.Contains(art.Source, "compare_outcomes(") {
		t.Fatalf("catch-panic mode must route through the outcome classifier:\n%s", art.Source)
	}
}

func TestGeneratorsDeterministic(t *testing.T) {
	f := newFixture(t)
	in := f.input(t, "Counter::bump", false)

	first, err := Kani(in, config.KaniConfig{LoopUnwind: 8})
	if err != nil {
		t.Fatalf("Kani: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Kani(in, config.KaniConfig{LoopUnwind: 8})
		if err != nil {
			t.Fatalf("Kani: %v", err)
		}
		if again.Source != first.Source {
			t.Fatalf("generation not deterministic:\n%s\nvs\n%s", first.Source, again.Source)
		}
	}
}

func TestUnsupportedParameterSkips(t *testing.T) {
	ctx := context.Background()
	az := analyze.New(zap.NewNop())
	a, err := az.AnalyzeSource(ctx, "a.rs", []byte("pub fn greet(name: &str) -> usize { name.len() }\n"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	b, err := az.AnalyzeSource(ctx, "b.rs", []byte("pub fn greet(name: &str) -> usize { name.len() }\n"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	res := match.Match(a, b)
	if len(res.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(res.Pairs))
	}

	_, err = Kani(Input{Pair: res.Pairs[0], A: a, B: b}, config.KaniConfig{LoopUnwind: 8})
	if err == nil {
		t.Fatal("want SkipError for &str parameter")
	}
	var skip *SkipError
	if !errors.As(err, &skip) {
		t.Fatalf("err %T is not a SkipError", err)
	}
	if !strings.Contains(skip.Reason, "not harnessed") {
		t.Fatalf("reason = %q, want unsupported-parameter skip", skip.Reason)
	}
}

func TestExportedSource(t *testing.T) {
	ctx := context.Background()
	az := analyze.New(zap.NewNop())
	u, err := az.AnalyzeSource(ctx, "a.rs", []byte(moduleA))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var targets []ExportTarget
	for _, fn := range u.Functions {
		targets = append(targets, ExportTarget{Fn: fn, Symbol: fn.Sig.FlatName()})
	}
	out := ExportedSource(u.Source, targets)

	if !strings.Contains(out, "#[export_name = \"add\"]\npub fn add(") {
		t.Fatalf("add not exported adjacent to its item:\n%s", out)
	}
	if !strings.Contains(out, "#[export_name = \"sum\"]\npub fn sum(") {
		t.Fatalf("sum not exported adjacent to its item:\n%s", out)
	}
	// Splicing must not disturb unrelated source.
	if !strings.Contains(out, "impl Counter {") {
		t.Fatalf("surrounding source disturbed:\n%s", out)
	}
}
