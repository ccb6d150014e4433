package precond

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// exprNode is the bounded expression tree an assertion compiles into.
// Supported shapes: literals, parameter references, indexing, len() calls,
// comparisons, boolean connectives, integer arithmetic, and unary !/-.
// Quantified or higher-order constructs are rejected during the walk.
type exprNode interface {
	// rust renders the node back as a Rust expression (for guard code).
	rust() string
	// goExpr renders the node as a Go expression (for the compiled
	// predicate, where every integral value is an int64).
	goExpr() string
}

type litNode struct{ text string }

func (n litNode) rust() string   { return n.text }
func (n litNode) goExpr() string { return n.text }

type identNode struct{ name string }

func (n identNode) rust() string   { return n.name }
func (n identNode) goExpr() string { return n.name }

type lenNode struct{ of exprNode }

func (n lenNode) rust() string   { return n.of.rust() + ".len()" }
func (n lenNode) goExpr() string { return "int64(len(" + n.of.goExpr() + "))" }

type indexNode struct{ base, index exprNode }

func (n indexNode) rust() string { return n.base.rust() + "[" + n.index.rust() + "]" }
func (n indexNode) goExpr() string {
	return n.base.goExpr() + "[" + n.index.goExpr() + "]"
}

type binaryNode struct {
	op          string
	left, right exprNode
}

func (n binaryNode) rust() string {
	return "(" + n.left.rust() + " " + n.op + " " + n.right.rust() + ")"
}
func (n binaryNode) goExpr() string {
	return "(" + n.left.goExpr() + " " + n.op + " " + n.right.goExpr() + ")"
}

type unaryNode struct {
	op string
	of exprNode
}

func (n unaryNode) rust() string   { return n.op + "(" + n.of.rust() + ")" }
func (n unaryNode) goExpr() string { return n.op + "(" + n.of.goExpr() + ")" }

// binaryOps is the closed set of supported binary operators; identical
// spelling in Rust and Go.
var binaryOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"&&": true, "||": true,
	"+": true, "-": true, "*": true, "/": true, "%": true,
}

// parseAssertion parses an assertion expression with the Rust grammar and
// lowers it into an exprNode. Unsupported constructs produce an error
// naming the offending node kind.
func parseAssertion(ctx context.Context, assertion string) (exprNode, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	src := fmt.Sprintf("fn __guard() -> bool { (%s) }", assertion)
	tree, err := parser.ParseCtx(ctx, nil, []byte(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse assertion %q: %w", assertion, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("assertion %q is not a supported expression", assertion)
	}
	fn := root.NamedChild(0)
	if fn == nil || fn.Type() != "function_item" {
		return nil, fmt.Errorf("assertion %q is not a supported expression", assertion)
	}
	body := fn.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return nil, fmt.Errorf("assertion %q is empty", assertion)
	}
	return lower(body.NamedChild(0), []byte(src))
}

// lower converts one Tree-sitter node into an exprNode.
func lower(node *sitter.Node, src []byte) (exprNode, error) {
	switch node.Type() {
	case "parenthesized_expression":
		inner := node.NamedChild(0)
		if inner == nil {
			return nil, fmt.Errorf("empty parenthesized expression")
		}
		return lower(inner, src)

	case "integer_literal":
		return litNode{text: nodeText(node, src)}, nil

	case "boolean_literal":
		return litNode{text: nodeText(node, src)}, nil

	case "identifier":
		return identNode{name: nodeText(node, src)}, nil

	case "binary_expression":
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		opNode := node.ChildByFieldName("operator")
		if left == nil || right == nil || opNode == nil {
			return nil, fmt.Errorf("malformed binary expression %q", nodeText(node, src))
		}
		op := nodeText(opNode, src)
		if !binaryOps[op] {
			return nil, fmt.Errorf("unsupported operator %q", op)
		}
		l, err := lower(left, src)
		if err != nil {
			return nil, err
		}
		r, err := lower(right, src)
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: l, right: r}, nil

	case "unary_expression":
		full := nodeText(node, src)
		operand := node.NamedChild(int(node.NamedChildCount()) - 1)
		if operand == nil {
			return nil, fmt.Errorf("malformed unary expression %q", full)
		}
		op := strings.TrimSpace(strings.TrimSuffix(full, nodeText(operand, src)))
		if op != "!" && op != "-" {
			return nil, fmt.Errorf("unsupported unary operator %q", op)
		}
		of, err := lower(operand, src)
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, of: of}, nil

	case "index_expression":
		if node.NamedChildCount() != 2 {
			return nil, fmt.Errorf("malformed index expression %q", nodeText(node, src))
		}
		base, err := lower(node.NamedChild(0), src)
		if err != nil {
			return nil, err
		}
		index, err := lower(node.NamedChild(1), src)
		if err != nil {
			return nil, err
		}
		return indexNode{base: base, index: index}, nil

	case "call_expression":
		// Only `<expr>.len()` calls are supported.
		fn := node.ChildByFieldName("function")
		args := node.ChildByFieldName("arguments")
		if fn == nil || fn.Type() != "field_expression" {
			return nil, fmt.Errorf("unsupported call %q", nodeText(node, src))
		}
		if args != nil && args.NamedChildCount() != 0 {
			return nil, fmt.Errorf("unsupported call %q", nodeText(node, src))
		}
		field := fn.ChildByFieldName("field")
		value := fn.ChildByFieldName("value")
		if field == nil || value == nil || nodeText(field, src) != "len" {
			return nil, fmt.Errorf("unsupported call %q", nodeText(node, src))
		}
		of, err := lower(value, src)
		if err != nil {
			return nil, err
		}
		return lenNode{of: of}, nil

	case "closure_expression":
		return nil, fmt.Errorf("quantified or closure-based assertions are not supported: %q", nodeText(node, src))

	default:
		return nil, fmt.Errorf("unsupported construct %q in assertion: %q", node.Type(), nodeText(node, src))
	}
}

// identifiers collects every parameter reference in the tree.
func identifiers(n exprNode, into map[string]bool) {
	switch v := n.(type) {
	case identNode:
		into[v.name] = true
	case lenNode:
		identifiers(v.of, into)
	case indexNode:
		identifiers(v.base, into)
		identifiers(v.index, into)
	case binaryNode:
		identifiers(v.left, into)
		identifiers(v.right, into)
	case unaryNode:
		identifiers(v.of, into)
	}
}

func nodeText(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}
