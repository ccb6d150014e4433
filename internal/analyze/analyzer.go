// Package analyze collects the callable surface of a Rust module using
// Tree-sitter: free functions, methods per impl type, and the recognized
// constructor/getter conventions needed for method harnessing.
package analyze

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Analyzer parses Rust source into Units.
type Analyzer struct {
	parser *sitter.Parser
	log    *zap.Logger
}

// New creates an Analyzer.
func New(log *zap.Logger) *Analyzer {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	return &Analyzer{parser: parser, log: log}
}

// LoadUnit reads and analyzes one module file. A malformed or unreadable
// module is fatal to the run.
func (a *Analyzer) LoadUnit(ctx context.Context, path string) (*Unit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source %s: %w", path, err)
	}
	return a.AnalyzeSource(ctx, path, content)
}

// LoadUnits loads both modules concurrently. Each unit gets its own parser
// because a sitter.Parser is not safe for concurrent use.
func LoadUnits(ctx context.Context, log *zap.Logger, pathA, pathB string) (*Unit, *Unit, error) {
	var unitA, unitB *Unit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		unitA, err = New(log).LoadUnit(gctx, pathA)
		return err
	})
	g.Go(func() error {
		var err error
		unitB, err = New(log).LoadUnit(gctx, pathB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return unitA, unitB, nil
}

// AnalyzeSource parses module content into a Unit.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, content []byte) (*Unit, error) {
	tree, err := a.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("failed to parse source %s: syntax error", path)
	}

	unit := &Unit{
		Path:         path,
		Source:       string(content),
		Methods:      make(map[string][]Function),
		Constructors: make(map[string]Function),
		Getters:      make(map[string]Function),
	}
	a.walk(root, content, "", unit)
	return unit, nil
}

// walk visits top-level and module-nested items, classifying callables.
func (a *Analyzer) walk(node *sitter.Node, content []byte, owner string, unit *Unit) {
	var pendingAttrs []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "attribute_item":
			pendingAttrs = append(pendingAttrs, text(child, content))
			continue

		case "function_item":
			a.collectFunction(child, content, owner, pendingAttrs, unit)

		case "impl_item":
			a.collectImpl(child, content, unit)

		case "mod_item":
			if body := child.ChildByFieldName("body"); body != nil {
				a.walk(body, content, owner, unit)
			}
		}
		pendingAttrs = nil
	}
}

// collectImpl walks one impl block, classifying its callables under the
// implemented type.
func (a *Analyzer) collectImpl(node *sitter.Node, content []byte, unit *Unit) {
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	if node.ChildByFieldName("type_parameters") != nil {
		a.log.Debug("skipping generic impl block", zap.String("type", text(typeNode, content)))
		return
	}
	typeName := text(typeNode, content)
	if idx := strings.Index(typeName, "<"); idx > 0 {
		typeName = typeName[:idx]
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	a.walk(body, content, typeName, unit)
}

// collectFunction classifies one function_item.
func (a *Analyzer) collectFunction(node *sitter.Node, content []byte, owner string, attrs []string, unit *Unit) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := text(nameNode, content)

	for _, attr := range attrs {
		if strings.Contains(attr, "ignore") {
			a.log.Debug("skipping ignored function", zap.String("name", name))
			return
		}
	}
	if node.ChildByFieldName("type_parameters") != nil {
		a.log.Debug("skipping generic function", zap.String("name", name))
		return
	}

	sig := Signature{Name: name, OwnerType: owner}
	params, receiver, ok := a.collectParams(node, content)
	if !ok {
		a.log.Debug("skipping unclassifiable function", zap.String("name", name))
		return
	}
	sig.Params = params
	sig.Receiver = receiver

	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig.Return = strings.Join(strings.Fields(text(ret, content)), " ")
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		a.log.Debug("skipping bodyless function", zap.String("name", name))
		return
	}

	fn := Function{
		Sig:       sig,
		Body:      text(body, content),
		StartByte: node.StartByte(),
		Indent:    lineIndent(content, node.StartByte()),
	}

	switch {
	case owner != "" && name == ConstructorName:
		if returnsOwner(sig, owner) {
			a.recordType(unit, owner)
			unit.Constructors[owner] = fn
		} else {
			a.log.Debug("constructor does not return its type, ignoring",
				zap.String("type", owner), zap.String("return", sig.Return))
		}
	case owner != "" && name == GetterName && sig.Method() && len(sig.Params) == 0:
		a.recordType(unit, owner)
		unit.Getters[owner] = fn
	case sig.Method():
		a.recordType(unit, owner)
		unit.Methods[owner] = append(unit.Methods[owner], fn)
	default:
		// Associated functions without a receiver are harnessed like free
		// functions under their qualified name.
		unit.Functions = append(unit.Functions, fn)
		if owner != "" {
			a.recordType(unit, owner)
		}
	}
}

// collectParams reads the parameter list. ok is false when a parameter
// cannot be classified.
func (a *Analyzer) collectParams(node *sitter.Node, content []byte) ([]Param, ReceiverKind, bool) {
	receiver := ReceiverNone
	var params []Param

	list := node.ChildByFieldName("parameters")
	if list == nil {
		return nil, receiver, true
	}
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		switch p.Type() {
		case "self_parameter":
			receiver = receiverKind(text(p, content))
		case "parameter":
			pat := p.ChildByFieldName("pattern")
			ty := p.ChildByFieldName("type")
			if pat == nil || ty == nil {
				return nil, receiver, false
			}
			name := text(pat, content)
			mutable := strings.HasPrefix(name, "mut ")
			name = strings.TrimPrefix(name, "mut ")
			if !isIdent(name) {
				// Pattern parameters (tuples, wildcards) are unsupported.
				return nil, receiver, false
			}
			params = append(params, Param{
				Name:    name,
				Type:    strings.Join(strings.Fields(text(ty, content)), " "),
				Mutable: mutable,
			})
		case "attribute_item", "line_comment", "block_comment":
			// ignore
		default:
			return nil, receiver, false
		}
	}
	return params, receiver, true
}

func (a *Analyzer) recordType(unit *Unit, typeName string) {
	for _, t := range unit.TypeOrder {
		if t == typeName {
			return
		}
	}
	unit.TypeOrder = append(unit.TypeOrder, typeName)
}

func receiverKind(s string) ReceiverKind {
	s = strings.Join(strings.Fields(s), " ")
	switch {
	case strings.HasPrefix(s, "&mut"):
		return ReceiverMutRef
	case strings.HasPrefix(s, "&"):
		return ReceiverRef
	default:
		return ReceiverValue
	}
}

// returnsOwner reports whether a constructor's return type is its own type,
// accepting `Self` as well.
func returnsOwner(sig Signature, owner string) bool {
	ret := NormalizeType(sig.Return)
	if idx := strings.Index(ret, "<"); idx > 0 {
		ret = ret[:idx]
	}
	return ret == owner || ret == "Self"
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func text(n *sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}

// lineIndent returns the whitespace prefix of the line containing offset.
func lineIndent(content []byte, offset uint32) string {
	start := int(offset)
	lineStart := start
	for lineStart > 0 && content[lineStart-1] != '\n' {
		lineStart--
	}
	return string(content[lineStart:start])
}
