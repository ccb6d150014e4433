package harness

import (
	"strings"
	"text/template"

	"equicheck/internal/analyze"
	"equicheck/internal/config"
)

// Each check is a plain fn over the raw fuzz input; the afl entry point
// feeds every check the same bytes. Inputs decode through postcard so a
// single byte stream fans out into typed arguments.
var diffFuzzTmpl = template.Must(template.New("difffuzz").Parse(`fn {{.Entry}}(data: &[u8]) {
{{- if .Tuple}}
    let Ok(({{.Destructure}})) = postcard::from_bytes::<({{.Tuple}})>(data) else {
        return;
    };
{{- end}}
{{- if .Method}}
    let {{.MutBind}}left = mod1::{{.OwnerA}}::equicheck_new({{.CtorCall}});
    let {{.MutBind}}right = mod2::{{.OwnerB}}::equicheck_new({{.CtorCall}});
{{- if .Guard}}
    if !right.{{.Guard}}({{.Call}}) {
        return;
    }
{{- end}}
{{- if .CatchPanics}}
    let l = std::panic::catch_unwind(std::panic::AssertUnwindSafe(|| left.{{.Name}}({{.Call}})));
    let r = std::panic::catch_unwind(std::panic::AssertUnwindSafe(|| right.{{.Name}}({{.Call}})));
    compare_outcomes("{{.Pair}}", l, r);
{{- else}}
    if left.{{.Name}}({{.Call}}) != right.{{.Name}}({{.Call}}) {
        println!("MISMATCH: {{.Pair}}");
        panic!("result mismatch in {{.Pair}}");
    }
{{- if .CheckState}}
    if left.equicheck_get() != right.equicheck_get() {
        println!("MISMATCH: {{.Pair}} state");
        panic!("state mismatch in {{.Pair}}");
    }
{{- end}}
{{- end}}
{{- else}}
{{- if .Guard}}
    if !mod2::{{.Guard}}({{.Call}}) {
        return;
    }
{{- end}}
{{- if .CatchPanics}}
    let l = std::panic::catch_unwind(|| mod1::{{.PathA}}({{.Call}}));
    let r = std::panic::catch_unwind(|| mod2::{{.PathB}}({{.Call}}));
    compare_outcomes("{{.Pair}}", l, r);
{{- else}}
    if mod1::{{.PathA}}({{.Call}}) != mod2::{{.PathB}}({{.Call}}) {
        println!("MISMATCH: {{.Pair}}");
        panic!("result mismatch in {{.Pair}}");
    }
{{- end}}
{{- end}}
}
`))

type diffFuzzData struct {
	Entry       string
	Pair        string
	Name        string
	PathA       string
	PathB       string
	Tuple       string
	Destructure string
	Call        string
	CtorCall    string
	Method      bool
	OwnerA      string
	OwnerB      string
	MutBind     string
	CheckState  bool
	CatchPanics bool
	Guard       string
}

// DiffFuzz generates one fuzz check for a pair. In catch-panic mode a
// panic on one side only is reported as its own finding, distinct from a
// value mismatch.
func DiffFuzz(in Input, cfg config.DiffFuzzConfig) (Artifact, error) {
	p := in.Pair
	if !p.Eligible(true) {
		return Artifact{}, skipf("method pair %s has no constructor on both sides", p.Name)
	}

	args, err := buildArgs(p.A.Sig.Params, "")
	if err != nil {
		return Artifact{}, err
	}
	data := diffFuzzData{
		Entry:       EntryName(p),
		Pair:        p.Name,
		Name:        p.A.Sig.Name,
		PathA:       p.A.Sig.QualifiedName(),
		PathB:       p.B.Sig.QualifiedName(),
		Call:        passList(args),
		Method:      p.Method,
		CatchPanics: cfg.CatchPanics,
	}
	if in.Pre != nil {
		data.Guard = in.Pre.GuardName()
	}

	all := args
	params := p.A.Sig.Params
	if p.Method {
		ctorParams, checkState, err := methodInputs(in)
		if err != nil {
			return Artifact{}, err
		}
		ctor, err := buildArgs(ctorParams, "ctor_")
		if err != nil {
			return Artifact{}, err
		}
		for i := range ctor {
			ctor[i].Name = "ctor_" + ctorParams[i].Name
		}
		data.CtorCall = passList(ctor)
		data.OwnerA = p.OwnerA
		data.OwnerB = p.OwnerB
		data.CheckState = checkState && !cfg.CatchPanics
		if p.A.Sig.Receiver == analyze.ReceiverMutRef {
			data.MutBind = "mut "
		}
		all = append(append([]arg{}, ctor...), args...)
		params = append(append([]analyze.Param{}, ctorParams...), params...)
	}
	data.Tuple, data.Destructure = fuzzTuple(all, params)

	src, err := render(diffFuzzTmpl, data)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Backend: config.ComponentDiffFuzz,
		Pair:    p.Name,
		Entry:   data.Entry,
		Source:  src,
	}, nil
}

// fuzzTuple renders the postcard tuple type and its destructuring pattern.
// Slice parameters decode as Vec so arbitrary lengths survive the fuzz
// byte stream. A single-element tuple keeps its trailing comma.
func fuzzTuple(args []arg, params []analyze.Param) (tuple, destructure string) {
	if len(args) == 0 {
		return "", ""
	}
	types := make([]string, len(args))
	names := make([]string, len(args))
	for i, a := range args {
		t := strings.TrimPrefix(analyze.NormalizeType(params[i].Type), "&")
		if elem, ok := sliceElem(strings.TrimSpace(t)); ok {
			types[i] = "Vec<" + elem + ">"
		} else {
			types[i] = strings.TrimSpace(t)
		}
		names[i] = a.Name
	}
	tuple = strings.Join(types, ", ")
	destructure = strings.Join(names, ", ")
	if len(args) == 1 {
		tuple += ","
		destructure += ","
	}
	return tuple, destructure
}

// CompareOutcomesHelper is the shared panic-divergence classifier emitted
// once per catch-panic fuzz harness.
const CompareOutcomesHelper = `fn compare_outcomes<T: PartialEq + std::fmt::Debug>(
    name: &str,
    left: std::thread::Result<T>,
    right: std::thread::Result<T>,
) {
    match (left, right) {
        (Ok(l), Ok(r)) => {
            if l != r {
                println!("MISMATCH: {}", name);
                panic!("result mismatch in {}", name);
            }
        }
        (Err(_), Err(_)) => {}
        _ => {
            println!("PANIC-DIVERGENCE: {}", name);
            panic!("panic divergence in {}", name);
        }
    }
}
`
