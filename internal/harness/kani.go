package harness

import (
	"text/template"

	"equicheck/internal/analyze"
	"equicheck/internal/config"
)

var kaniTmpl = template.Must(template.New("kani").Parse(`{{if .Args -}}
#[derive(kani::Arbitrary)]
#[allow(non_camel_case_types)]
struct args_{{.Entry}} {
{{- range .Args}}
    {{.Name}}: {{.Owned}},
{{- end}}
}

{{end -}}
{{if .Ctor -}}
#[derive(kani::Arbitrary)]
#[allow(non_camel_case_types)]
struct ctor_{{.Entry}} {
{{- range .Ctor}}
    {{.Name}}: {{.Owned}},
{{- end}}
}

{{end -}}
#[kani::proof]
#[kani::unwind({{.Unwind}})]
fn {{.Entry}}() {
{{- if .Args}}
    let args: args_{{.Entry}} = kani::any();
{{- end}}
{{- if .Method}}
{{- if .Ctor}}
    let ctor: ctor_{{.Entry}} = kani::any();
{{- end}}
    let {{.MutBind}}left = mod1::{{.OwnerA}}::equicheck_new({{.CtorCall}});
    let {{.MutBind}}right = mod2::{{.OwnerB}}::equicheck_new({{.CtorCall}});
{{- if .Guard}}
    kani::assume(right.{{.Guard}}({{.Call}}));
{{- end}}
    assert_eq!(left.{{.Name}}({{.Call}}), right.{{.Name}}({{.Call}}));
{{- if .CheckState}}
    assert_eq!(left.equicheck_get(), right.equicheck_get());
{{- end}}
{{- else}}
{{- if .Guard}}
    kani::assume(mod2::{{.Guard}}({{.Call}}));
{{- end}}
    assert_eq!(mod1::{{.PathA}}({{.Call}}), mod2::{{.PathB}}({{.Call}}));
{{- end}}
}
`))

type kaniData struct {
	Entry      string
	Name       string
	// PathA and PathB are the full call paths inside each module; they
	// differ for associated functions of a renamed type.
	PathA      string
	PathB      string
	Args       []arg
	Ctor       []arg
	Call       string
	CtorCall   string
	Unwind     int
	Method     bool
	OwnerA     string
	OwnerB     string
	MutBind    string
	CheckState bool
	Guard      string
}

// Kani generates one proof harness for a pair. Nondeterministic inputs
// come from derive(Arbitrary) structs; the optional precondition becomes a
// kani::assume over module 2's guard.
func Kani(in Input, cfg config.KaniConfig) (Artifact, error) {
	p := in.Pair
	if !p.Eligible(true) {
		return Artifact{}, skipf("method pair %s has no constructor on both sides", p.Name)
	}

	args, err := buildArgs(p.A.Sig.Params, "args.")
	if err != nil {
		return Artifact{}, err
	}
	data := kaniData{
		Entry:  EntryName(p),
		Name:   p.A.Sig.Name,
		PathA:  p.A.Sig.QualifiedName(),
		PathB:  p.B.Sig.QualifiedName(),
		Args:   args,
		Call:   passList(args),
		Unwind: cfg.LoopUnwind,
		Method: p.Method,
	}
	if in.Pre != nil {
		data.Guard = in.Pre.GuardName()
	}
	if p.Method {
		ctorParams, checkState, err := methodInputs(in)
		if err != nil {
			return Artifact{}, err
		}
		ctor, err := buildArgs(ctorParams, "ctor.")
		if err != nil {
			return Artifact{}, err
		}
		data.Ctor = ctor
		data.CtorCall = passList(ctor)
		data.OwnerA = p.OwnerA
		data.OwnerB = p.OwnerB
		data.CheckState = checkState
		if p.A.Sig.Receiver == analyze.ReceiverMutRef {
			data.MutBind = "mut "
		}
	}

	src, err := render(kaniTmpl, data)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Backend: config.ComponentKani,
		Pair:    p.Name,
		Entry:   data.Entry,
		Source:  src,
	}, nil
}
