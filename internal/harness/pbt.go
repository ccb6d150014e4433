package harness

import (
	"strings"
	"text/template"

	"equicheck/internal/analyze"
	"equicheck/internal/config"
)

// The mismatch line printed on failure is the pair's witness; the pbt
// component extracts it from the captured test output.
var pbtTmpl = template.Must(template.New("pbt").Parse(`proptest! {
    #![proptest_config(ProptestConfig::with_cases({{.Cases}}))]
    #[test]
    fn {{.Entry}}({{.Binds}}) {
{{- if .Method}}
        let {{.MutBind}}left = mod1::{{.OwnerA}}::equicheck_new({{.CtorCall}});
        let {{.MutBind}}right = mod2::{{.OwnerB}}::equicheck_new({{.CtorCall}});
{{- if .Guard}}
        prop_assume!(right.{{.Guard}}({{.Call}}));
{{- end}}
        let l = left.{{.Name}}({{.Call}});
        let r = right.{{.Name}}({{.Call}});
        if l != r {
            println!("MISMATCH: {{.Pair}} args=({:?})", ({{.Debug}}));
        }
        prop_assert_eq!(l, r);
{{- if .CheckState}}
        let ls = left.equicheck_get();
        let rs = right.equicheck_get();
        if ls != rs {
            println!("MISMATCH: {{.Pair}} state args=({:?})", ({{.Debug}}));
        }
        prop_assert_eq!(ls, rs);
{{- end}}
{{- else}}
{{- if .Guard}}
        prop_assume!(mod2::{{.Guard}}({{.Call}}));
{{- end}}
        let l = mod1::{{.PathA}}({{.Call}});
        let r = mod2::{{.PathB}}({{.Call}});
        if l != r {
            println!("MISMATCH: {{.Pair}} args=({:?})", ({{.Debug}}));
        }
        prop_assert_eq!(l, r);
{{- end}}
    }
}
`))

type pbtData struct {
	Entry      string
	Pair       string
	Name       string
	PathA      string
	PathB      string
	Binds      string
	Call       string
	CtorCall   string
	Debug      string
	Cases      int
	Method     bool
	OwnerA     string
	OwnerB     string
	MutBind    string
	CheckState bool
	Guard      string
}

// PBT generates one proptest block for a pair. Inputs bind directly to
// proptest strategies; the optional precondition becomes a prop_assume.
func PBT(in Input, cfg config.PBTConfig) (Artifact, error) {
	p := in.Pair
	if !p.Eligible(true) {
		return Artifact{}, skipf("method pair %s has no constructor on both sides", p.Name)
	}

	args, err := buildArgs(p.A.Sig.Params, "")
	if err != nil {
		return Artifact{}, err
	}
	data := pbtData{
		Entry:  EntryName(p),
		Pair:   p.Name,
		Name:   p.A.Sig.Name,
		PathA:  p.A.Sig.QualifiedName(),
		PathB:  p.B.Sig.QualifiedName(),
		Cases:  cfg.TestCases,
		Method: p.Method,
	}
	if in.Pre != nil {
		data.Guard = in.Pre.GuardName()
	}

	all := args
	if p.Method {
		ctorParams, checkState, err := methodInputs(in)
		if err != nil {
			return Artifact{}, err
		}
		ctor, err := buildArgs(ctorParams, "ctor_")
		if err != nil {
			return Artifact{}, err
		}
		// Constructor bindings are prefixed so they never collide with
		// the method's own parameter names.
		for i := range ctor {
			ctor[i].Name = "ctor_" + ctorParams[i].Name
		}
		data.CtorCall = passList(ctor)
		data.OwnerA = p.OwnerA
		data.OwnerB = p.OwnerB
		data.CheckState = checkState
		if p.A.Sig.Receiver == analyze.ReceiverMutRef {
			data.MutBind = "mut "
		}
		all = append(append([]arg{}, ctor...), args...)
	}
	data.Binds = bindList(all)
	data.Call = passList(args)
	data.Debug = debugList(all)

	src, err := render(pbtTmpl, data)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Backend: config.ComponentPBT,
		Pair:    p.Name,
		Entry:   data.Entry,
		Source:  src,
	}, nil
}

func bindList(args []arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Name + " in " + a.Strategy
	}
	return strings.Join(parts, ", ")
}

func debugList(args []arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = "&" + a.Name
	}
	return strings.Join(parts, ", ")
}
