package analyze

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ParseParamList parses a bare Rust parameter list such as
// "a: i64, b: &[u8]" into Params. Used by the specification translator,
// which shares the analyzer's grammar.
func ParseParamList(ctx context.Context, list string) ([]Param, error) {
	a := New(zap.NewNop())
	src := fmt.Sprintf("fn __params(%s) {}", list)
	tree, err := a.parser.ParseCtx(ctx, nil, []byte(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse parameter list %q: %w", list, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() || root.NamedChildCount() == 0 {
		return nil, fmt.Errorf("malformed parameter list %q", list)
	}
	fn := root.NamedChild(0)
	if fn.Type() != "function_item" {
		return nil, fmt.Errorf("malformed parameter list %q", list)
	}
	params, _, ok := a.collectParams(fn, []byte(src))
	if !ok {
		return nil, fmt.Errorf("unsupported parameter shape in %q", list)
	}
	return params, nil
}
