package analyze

import (
	"regexp"
	"strings"
)

// Reserved callable names the analyzer recognizes on impl blocks.
const (
	// ConstructorName marks the recognized constructor of a type.
	ConstructorName = "equicheck_new"
	// GetterName marks the recognized state getter of a type.
	GetterName = "equicheck_get"
)

// ReceiverKind describes how a method takes its receiver.
type ReceiverKind int

const (
	// ReceiverNone marks a free function.
	ReceiverNone ReceiverKind = iota
	// ReceiverValue marks a `self` receiver.
	ReceiverValue
	// ReceiverRef marks a `&self` receiver.
	ReceiverRef
	// ReceiverMutRef marks a `&mut self` receiver.
	ReceiverMutRef
)

// String implements fmt.Stringer.
func (k ReceiverKind) String() string {
	switch k {
	case ReceiverNone:
		return "none"
	case ReceiverValue:
		return "self"
	case ReceiverRef:
		return "&self"
	case ReceiverMutRef:
		return "&mut self"
	default:
		return "?"
	}
}

// Prefix returns the receiver spelling used at a call site, e.g. "&mut ".
func (k ReceiverKind) Prefix() string {
	switch k {
	case ReceiverRef:
		return "&"
	case ReceiverMutRef:
		return "&mut "
	default:
		return ""
	}
}

// Param is one declared parameter of a callable.
type Param struct {
	// Name as declared in the source.
	Name string
	// Type is the declared type text, whitespace-normalized.
	Type string
	// Mutable is set for `mut name: T` bindings.
	Mutable bool
}

// Signature is the analyzer's description of one callable.
type Signature struct {
	// Name of the callable (identifier only, no owning type).
	Name string
	// OwnerType is the impl type name for methods, empty for free functions.
	OwnerType string
	// Receiver kind; ReceiverNone for free functions and associated functions.
	Receiver ReceiverKind
	// Params in declaration order, receiver excluded.
	Params []Param
	// Return is the declared return type text, empty for unit.
	Return string
}

// Method reports whether the signature has a receiver.
func (s Signature) Method() bool { return s.Receiver != ReceiverNone }

// QualifiedName is "Owner::name" for owned callables, "name" otherwise.
func (s Signature) QualifiedName() string {
	if s.OwnerType != "" {
		return s.OwnerType + "::" + s.Name
	}
	return s.Name
}

// FlatName is the qualified name flattened into a single identifier.
func (s Signature) FlatName() string {
	return strings.ReplaceAll(s.QualifiedName(), "::", "___")
}

// pathPrefix matches leading path segments like `crate::` or `std::vec::`.
var pathPrefix = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*::`)

// NormalizeType strips source-specific path prefixes and whitespace so that
// `crate::util::Count` and `Count` compare equal.
func NormalizeType(t string) string {
	t = strings.TrimSpace(t)
	t = pathPrefix.ReplaceAllString(t, "")
	return strings.Join(strings.Fields(t), " ")
}

// CompatibleWith reports structural compatibility per the matching rules:
// identical names, same receiver kind, pairwise structurally equal parameter
// and return types. Owning type names are intentionally not compared here;
// the matcher normalizes them positionally.
func (s Signature) CompatibleWith(o Signature) bool {
	if s.Name != o.Name || s.Receiver != o.Receiver {
		return false
	}
	if len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if NormalizeType(s.Params[i].Type) != NormalizeType(o.Params[i].Type) {
			return false
		}
	}
	return NormalizeType(s.Return) == NormalizeType(o.Return)
}

// Function is a collected callable: its signature plus body text.
type Function struct {
	Sig Signature
	// Body is the source text of the function body, braces included.
	Body string
	// StartByte is the byte offset of the item in the module source.
	// Used when rewriting the module for IR export.
	StartByte uint32
	// Indent is the leading whitespace of the item's first line.
	Indent string
}

// Unit is one module's full analyzer output.
type Unit struct {
	// Path the module was read from.
	Path string
	// Source is the full module text.
	Source string
	// Functions lists free functions (and associated functions without a
	// receiver) in source order.
	Functions []Function
	// Methods maps owning type name to its methods in source order.
	Methods map[string][]Function
	// Constructors maps owning type name to its recognized constructor.
	Constructors map[string]Function
	// Getters maps owning type name to its recognized getter.
	Getters map[string]Function
	// TypeOrder lists owning type names in order of first appearance.
	TypeOrder []string
}

// Constructor returns the recognized constructor for a type, if any.
func (u *Unit) Constructor(typeName string) (Function, bool) {
	f, ok := u.Constructors[typeName]
	return f, ok
}

// Getter returns the recognized getter for a type, if any.
func (u *Unit) Getter(typeName string) (Function, bool) {
	f, ok := u.Getters[typeName]
	return f, ok
}
