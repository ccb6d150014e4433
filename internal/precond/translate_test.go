package precond

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func translateOne(t *testing.T, src string) *Set {
	t.Helper()
	set, errs := Translate(context.Background(), zap.NewNop(), src)
	if len(errs) != 0 {
		t.Fatalf("Translate errors: %+v", errs)
	}
	return set
}

func TestTranslateSimpleComparison(t *testing.T) {
	set := translateOne(t, `fn divide(a: i64, b: i64) requires b != 0;`)

	pre := set.For("divide", 2)
	if pre == nil {
		t.Fatal("divide precondition not found")
	}
	if pre.GuardName() != "equicheck_pre_divide" {
		t.Fatalf("guard name = %s", pre.GuardName())
	}

	ok, err := pre.Eval(map[string]any{"a": int64(10), "b": int64(2)})
	if err != nil || !ok {
		t.Fatalf("Eval(b=2) = %v, %v; want true", ok, err)
	}
	ok, err = pre.Eval(map[string]any{"a": int64(10), "b": int64(0)})
	if err != nil || ok {
		t.Fatalf("Eval(b=0) = %v, %v; want false", ok, err)
	}
}

// Round-trip property: the compiled predicate agrees with direct
// evaluation of the assertion on concrete values.
func TestTranslateRoundTrip(t *testing.T) {
	set := translateOne(t, `fn clamp(v: i64, lo: i64, hi: i64) requires lo <= v && v <= hi && !(hi < lo);`)
	pre := set.For("clamp", 3)
	if pre == nil {
		t.Fatal("clamp precondition not found")
	}

	direct := func(v, lo, hi int64) bool { return lo <= v && v <= hi && !(hi < lo) }
	cases := []struct{ v, lo, hi int64 }{
		{5, 0, 10}, {0, 0, 0}, {-3, -5, -1}, {11, 0, 10}, {5, 10, 0},
	}
	for _, tc := range cases {
		got, err := pre.Eval(map[string]any{"v": tc.v, "lo": tc.lo, "hi": tc.hi})
		if err != nil {
			t.Fatalf("Eval(%+v): %v", tc, err)
		}
		if want := direct(tc.v, tc.lo, tc.hi); got != want {
			t.Fatalf("Eval(%+v) = %v, want %v", tc, got, want)
		}
	}
}

func TestTranslateSliceBoundedPredicate(t *testing.T) {
	set := translateOne(t, `fn pick(data: &[u8], idx: usize) requires idx < data.len() && data.len() > 0;`)
	pre := set.For("pick", 2)
	if pre == nil {
		t.Fatal("pick precondition not found")
	}

	ok, err := pre.Eval(map[string]any{"data": []int64{1, 2, 3}, "idx": int64(2)})
	if err != nil || !ok {
		t.Fatalf("in-bounds Eval = %v, %v; want true", ok, err)
	}
	ok, err = pre.Eval(map[string]any{"data": []int64{1, 2, 3}, "idx": int64(3)})
	if err != nil || ok {
		t.Fatalf("out-of-bounds Eval = %v, %v; want false", ok, err)
	}
}

func TestTranslateMethodEntry(t *testing.T) {
	set := translateOne(t, `fn Counter::bump(by: u64) requires by < 1000;`)
	pre := set.For("Counter::bump", 1)
	if pre == nil {
		t.Fatal("Counter::bump precondition not found")
	}
	if !pre.Method() {
		t.Fatal("entry not recognized as a method precondition")
	}
	guard := pre.GuardSource()
	if !strings.Contains(guard, "impl Counter") || !strings.Contains(guard, "&self") {
		t.Fatalf("method guard not emitted inside impl block:\n%s", guard)
	}
}

func TestTranslateRejectsQuantifier(t *testing.T) {
	_, errs := Translate(context.Background(), zap.NewNop(),
		`fn all_small(data: &[u8]) requires forall|i: usize| data[i] < 16;`)
	if len(errs) != 1 {
		t.Fatalf("errors = %+v, want exactly one", errs)
	}
	if errs[0].Name != "all_small" {
		t.Fatalf("error scoped to %q, want all_small", errs[0].Name)
	}
}

func TestTranslateRejectsUnresolvedIdentifier(t *testing.T) {
	_, errs := Translate(context.Background(), zap.NewNop(),
		`fn divide(a: i64, b: i64) requires c != 0;`)
	if len(errs) != 1 || !strings.Contains(errs[0].Reason, `"c"`) {
		t.Fatalf("errors = %+v, want unresolved identifier c", errs)
	}
}

func TestTranslateRejectsDuplicateKey(t *testing.T) {
	set, errs := Translate(context.Background(), zap.NewNop(), `
fn divide(a: i64, b: i64) requires b != 0;
fn divide(a: i64, b: i64) requires b > 0;
`)
	if len(errs) != 1 {
		t.Fatalf("errors = %+v, want one duplicate error", errs)
	}
	if set.Len() != 1 {
		t.Fatalf("set has %d entries, want the first definition only", set.Len())
	}
	pre := set.For("divide", 2)
	ok, err := pre.Eval(map[string]any{"a": int64(1), "b": int64(-1)})
	if err != nil || !ok {
		t.Fatalf("first definition must win: Eval(b=-1) = %v, %v", ok, err)
	}
}

func TestTranslateErrorDoesNotPoisonOtherEntries(t *testing.T) {
	set, errs := Translate(context.Background(), zap.NewNop(), `
fn good(a: i64) requires a > 0;
fn bad(a: i64) requires nonsense_param != 0;
`)
	if len(errs) != 1 || errs[0].Name != "bad" {
		t.Fatalf("errors = %+v, want only bad rejected", errs)
	}
	if set.For("good", 1) == nil {
		t.Fatal("good precondition lost because a sibling entry failed")
	}
}

func TestGuardSourcesRendersAllGuards(t *testing.T) {
	set := translateOne(t, `
fn divide(a: i64, b: i64) requires b != 0;
fn Counter::bump(by: u64) requires by < 1000;
`)
	src := set.GuardSources()
	if !strings.Contains(src, "fn equicheck_pre_divide") {
		t.Fatalf("missing free-function guard:\n%s", src)
	}
	if !strings.Contains(src, "impl Counter") {
		t.Fatalf("missing method guard impl:\n%s", src)
	}
}

func TestGuardSourcesDeterministic(t *testing.T) {
	spec := `
fn divide(a: i64, b: i64) requires b != 0;
fn pick(data: &[u8], idx: usize) requires idx < data.len();
`
	first := translateOne(t, spec).GuardSources()
	for i := 0; i < 5; i++ {
		if again := translateOne(t, spec).GuardSources(); again != first {
			t.Fatalf("GuardSources not deterministic:\n%s\nvs\n%s", first, again)
		}
	}
}
