// Package expr models SQL predicate trees as a closed set of node variants.
//
// Trees are built once by a parser adapter (or by hand in tests) and are never
// mutated afterwards. Every node owns its children; nodes are not shared
// between trees.
package expr

// Kind identifies a node variant.
type Kind uint8

const (
	KindColumn Kind = iota + 1
	KindLiteral
	KindFunctionCall
	KindBinaryOp
	KindUnaryOp
	KindCast
	KindAnd
	KindOr
	KindNot
	KindInList
	KindLike
	KindJSONAccess
	KindArrayOp
	KindOpaque
)

var kindNames = map[Kind]string{
	KindColumn:       "column",
	KindLiteral:      "literal",
	KindFunctionCall: "function_call",
	KindBinaryOp:     "binary_op",
	KindUnaryOp:      "unary_op",
	KindCast:         "cast",
	KindAnd:          "and",
	KindOr:           "or",
	KindNot:          "not",
	KindInList:       "in_list",
	KindLike:         "like",
	KindJSONAccess:   "json_access",
	KindArrayOp:      "array_op",
	KindOpaque:       "opaque",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Span is the byte range of a node in the statement text. Programmatic trees
// leave it zero.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Node is implemented by every expression variant in this package only.
type Node interface {
	Kind() Kind
	Span() Span
	Children() []Node
	sealed()
}

// Column is a bare column reference. Table holds the resolved table name
// (aliases already replaced by the adapter) and may be empty.
type Column struct {
	Table string
	Name  string
	// Type is the declared column type when the adapter knows it.
	Type string
	Pos  Span
}

// LiteralType classifies literal values.
type LiteralType uint8

const (
	LitString LiteralType = iota + 1
	LitInt
	LitFloat
	LitBool
	LitNull
	LitParam
)

func (t LiteralType) String() string {
	switch t {
	case LitString:
		return "string"
	case LitInt:
		return "int"
	case LitFloat:
		return "float"
	case LitBool:
		return "bool"
	case LitNull:
		return "null"
	case LitParam:
		return "param"
	}
	return "unknown"
}

// Literal is a constant or a bind parameter. For LitParam, Value is the
// placeholder name ("?", "$1", ":id").
type Literal struct {
	Type  LiteralType
	Value string
	Pos   Span
}

// FunctionCall is a scalar function applied to arguments.
type FunctionCall struct {
	Name string
	Args []Node
	Pos  Span
}

// Comparison and arithmetic operators carried by BinaryOp.
const (
	OpEQ       = "="
	OpNullSafe = "<=>"
	OpNE       = "<>"
	OpLT       = "<"
	OpLE       = "<="
	OpGT       = ">"
	OpGE       = ">="
	OpAdd      = "+"
	OpSub      = "-"
	OpMul      = "*"
	OpDiv      = "/"
	OpMod      = "%"
	OpConcat   = "||"
)

// BinaryOp is a comparison or an arithmetic operation.
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
	Pos   Span
}

// Unary operators carried by UnaryOp.
const (
	OpNeg       = "-"
	OpBitNot    = "~"
	OpIsNull    = "IS NULL"
	OpIsNotNull = "IS NOT NULL"
)

// UnaryOp is a prefix or postfix operator with one operand.
type UnaryOp struct {
	Op      string
	Operand Node
	Pos     Span
}

// Cast converts Operand to Type.
type Cast struct {
	Operand Node
	Type    string
	Pos     Span
}

// LogicalAnd is an n-ary conjunction.
type LogicalAnd struct {
	Terms []Node
	Pos   Span
}

// LogicalOr is an n-ary disjunction.
type LogicalOr struct {
	Terms []Node
	Pos   Span
}

// LogicalNot negates its operand.
type LogicalNot struct {
	Operand Node
	Pos     Span
}

// InList is `Operand [NOT] IN (List...)`.
type InList struct {
	Operand Node
	List    []Node
	Negated bool
	Pos     Span
}

// LikePattern covers LIKE, ILIKE and regular-expression matches.
type LikePattern struct {
	Operand         Node
	Pattern         Node
	Negated         bool
	CaseInsensitive bool
	Regex           bool
	Pos             Span
}

// JSONAccess extracts Path from a JSON document. Op is the surface operator
// ("->", "->>", "#>", "json_extract").
type JSONAccess struct {
	Operand Node
	Path    Node
	Op      string
	Pos     Span
}

// Array and containment operators carried by ArrayOp.
const (
	OpContains    = "@>"
	OpContainedBy = "<@"
	OpOverlaps    = "&&"
	OpMemberOf    = "MEMBER OF"
)

// ArrayOp is an array or JSON containment test.
type ArrayOp struct {
	Operand Node
	Value   Node
	Op      string
	Pos     Span
}

// Opaque stands in for syntax the adapter could not map. Its sub-tree is not
// inspected by detectors.
type Opaque struct {
	Desc string
	Pos  Span
}

func (*Column) Kind() Kind       { return KindColumn }
func (*Literal) Kind() Kind      { return KindLiteral }
func (*FunctionCall) Kind() Kind { return KindFunctionCall }
func (*BinaryOp) Kind() Kind     { return KindBinaryOp }
func (*UnaryOp) Kind() Kind      { return KindUnaryOp }
func (*Cast) Kind() Kind         { return KindCast }
func (*LogicalAnd) Kind() Kind   { return KindAnd }
func (*LogicalOr) Kind() Kind    { return KindOr }
func (*LogicalNot) Kind() Kind   { return KindNot }
func (*InList) Kind() Kind       { return KindInList }
func (*LikePattern) Kind() Kind  { return KindLike }
func (*JSONAccess) Kind() Kind   { return KindJSONAccess }
func (*ArrayOp) Kind() Kind      { return KindArrayOp }
func (*Opaque) Kind() Kind       { return KindOpaque }

func (n *Column) Span() Span       { return n.Pos }
func (n *Literal) Span() Span      { return n.Pos }
func (n *FunctionCall) Span() Span { return n.Pos }
func (n *BinaryOp) Span() Span     { return n.Pos }
func (n *UnaryOp) Span() Span      { return n.Pos }
func (n *Cast) Span() Span         { return n.Pos }
func (n *LogicalAnd) Span() Span   { return n.Pos }
func (n *LogicalOr) Span() Span    { return n.Pos }
func (n *LogicalNot) Span() Span   { return n.Pos }
func (n *InList) Span() Span       { return n.Pos }
func (n *LikePattern) Span() Span  { return n.Pos }
func (n *JSONAccess) Span() Span   { return n.Pos }
func (n *ArrayOp) Span() Span      { return n.Pos }
func (n *Opaque) Span() Span       { return n.Pos }

func (*Column) Children() []Node         { return nil }
func (*Literal) Children() []Node        { return nil }
func (n *FunctionCall) Children() []Node { return n.Args }
func (n *BinaryOp) Children() []Node     { return []Node{n.Left, n.Right} }
func (n *UnaryOp) Children() []Node      { return []Node{n.Operand} }
func (n *Cast) Children() []Node         { return []Node{n.Operand} }
func (n *LogicalAnd) Children() []Node   { return n.Terms }
func (n *LogicalOr) Children() []Node    { return n.Terms }
func (n *LogicalNot) Children() []Node   { return []Node{n.Operand} }
func (n *InList) Children() []Node       { return append([]Node{n.Operand}, n.List...) }
func (n *LikePattern) Children() []Node  { return []Node{n.Operand, n.Pattern} }
func (n *JSONAccess) Children() []Node   { return []Node{n.Operand, n.Path} }
func (n *ArrayOp) Children() []Node      { return []Node{n.Operand, n.Value} }
func (*Opaque) Children() []Node         { return nil }

func (*Column) sealed()       {}
func (*Literal) sealed()      {}
func (*FunctionCall) sealed() {}
func (*BinaryOp) sealed()     {}
func (*UnaryOp) sealed()      {}
func (*Cast) sealed()         {}
func (*LogicalAnd) sealed()   {}
func (*LogicalOr) sealed()    {}
func (*LogicalNot) sealed()   {}
func (*InList) sealed()       {}
func (*LikePattern) sealed()  {}
func (*JSONAccess) sealed()   {}
func (*ArrayOp) sealed()      {}
func (*Opaque) sealed()       {}

// SetSpan records the source range of n.
func SetSpan(n Node, s Span) {
	switch v := n.(type) {
	case *Column:
		v.Pos = s
	case *Literal:
		v.Pos = s
	case *FunctionCall:
		v.Pos = s
	case *BinaryOp:
		v.Pos = s
	case *UnaryOp:
		v.Pos = s
	case *Cast:
		v.Pos = s
	case *LogicalAnd:
		v.Pos = s
	case *LogicalOr:
		v.Pos = s
	case *LogicalNot:
		v.Pos = s
	case *InList:
		v.Pos = s
	case *LikePattern:
		v.Pos = s
	case *JSONAccess:
		v.Pos = s
	case *ArrayOp:
		v.Pos = s
	case *Opaque:
		v.Pos = s
	}
}

// IsComparison reports whether op is a comparison operator.
func IsComparison(op string) bool {
	switch op {
	case OpEQ, OpNullSafe, OpNE, OpLT, OpLE, OpGT, OpGE:
		return true
	}
	return false
}

// IsArithmetic reports whether op is an arithmetic or concatenation operator.
func IsArithmetic(op string) bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpConcat:
		return true
	}
	return false
}

// IsRange reports whether op bounds a range (<, <=, >, >=).
func IsRange(op string) bool {
	switch op {
	case OpLT, OpLE, OpGT, OpGE:
		return true
	}
	return false
}

// Flip returns the comparison operator with its operands swapped.
func Flip(op string) string {
	switch op {
	case OpLT:
		return OpGT
	case OpLE:
		return OpGE
	case OpGT:
		return OpLT
	case OpGE:
		return OpLE
	}
	return op
}
