package precond

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"

	"equicheck/internal/analyze"
)

// Predicate is a compiled boolean guard over a function's parameters.
// Integral parameters are widened to int64, unsigned included, so that
// specification arithmetic never mixes Go integer types; slice parameters
// become []int64.
type Predicate struct {
	params []analyze.Param
	fn     reflect.Value
	source string
}

// goParamType maps a Rust parameter type onto the predicate's Go type.
func goParamType(rustType string) (string, error) {
	t := analyze.NormalizeType(rustType)
	t = strings.TrimPrefix(t, "&mut ")
	t = strings.TrimPrefix(t, "&")
	t = strings.TrimSpace(t)

	if t == "bool" {
		return "bool", nil
	}
	if isIntegral(t) {
		return "int64", nil
	}
	if elem, ok := sliceElem(t); ok && isIntegral(elem) {
		return "[]int64", nil
	}
	return "", fmt.Errorf("parameter type %q is not supported in preconditions", rustType)
}

func isIntegral(t string) bool {
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

// compilePredicate builds the executable guard by interpreting a generated
// Go function. The interpreter is kept for the lifetime of the Predicate.
func compilePredicate(expr exprNode, params []analyze.Param) (*Predicate, error) {
	var decls []string
	for _, p := range params {
		goType, err := goParamType(p.Type)
		if err != nil {
			return nil, err
		}
		decls = append(decls, p.Name+" "+goType)
	}

	source := fmt.Sprintf("func __check(%s) bool {\n\treturn %s\n}",
		strings.Join(decls, ", "), expr.goExpr())

	i := interp.New(interp.Options{})
	if _, err := i.Eval(source); err != nil {
		return nil, fmt.Errorf("failed to compile predicate: %w", err)
	}
	fn, err := i.Eval("__check")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve compiled predicate: %w", err)
	}
	return &Predicate{params: params, fn: fn, source: source}, nil
}

// Eval applies the predicate to concrete parameter values keyed by
// parameter name. Integer values of any Go integer type are accepted and
// widened; a missing or mistyped argument is an error. A runtime fault in
// the guard (e.g. index out of range) is reported as an error, never as a
// satisfied precondition.
func (p *Predicate) Eval(args map[string]any) (ok bool, err error) {
	in := make([]reflect.Value, 0, len(p.params))
	for _, param := range p.params {
		raw, present := args[param.Name]
		if !present {
			return false, fmt.Errorf("missing argument %q", param.Name)
		}
		v, convErr := convertArg(raw, p.fn.Type().In(len(in)))
		if convErr != nil {
			return false, fmt.Errorf("argument %q: %w", param.Name, convErr)
		}
		in = append(in, v)
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("predicate evaluation fault: %v", r)
		}
	}()
	out := p.fn.Call(in)
	if len(out) != 1 || out[0].Kind() != reflect.Bool {
		return false, fmt.Errorf("predicate returned unexpected value")
	}
	return out[0].Bool(), nil
}

func convertArg(raw any, want reflect.Type) (reflect.Value, error) {
	v := reflect.ValueOf(raw)
	switch want.Kind() {
	case reflect.Bool:
		if v.Kind() != reflect.Bool {
			return reflect.Value{}, fmt.Errorf("want bool, got %T", raw)
		}
		return v, nil
	case reflect.Int64:
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return reflect.ValueOf(v.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return reflect.ValueOf(int64(v.Uint())), nil
		}
		return reflect.Value{}, fmt.Errorf("want integer, got %T", raw)
	case reflect.Slice:
		if v.Kind() != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("want slice, got %T", raw)
		}
		out := reflect.MakeSlice(want, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := convertArg(v.Index(i).Interface(), want.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported argument kind %s", want.Kind())
}
