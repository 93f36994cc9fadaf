package parser

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/format"
	"github.com/pingcap/tidb/parser/opcode"

	"sarg-check/internal/expr"
)

// converter maps TiDB expression nodes to expr trees. aliases maps a table
// alias to the table it names; unqualified columns are left unqualified.
// When src holds the statement text, every node gets its byte span in it.
// Placeholder rewriting keeps offsets, so src may be the text before it.
type converter struct {
	aliases map[string]string
	src     string
}

var binaryOps = map[opcode.Op]string{
	opcode.EQ:         expr.OpEQ,
	opcode.NullEQ:     expr.OpNullSafe,
	opcode.NE:         expr.OpNE,
	opcode.LT:         expr.OpLT,
	opcode.LE:         expr.OpLE,
	opcode.GT:         expr.OpGT,
	opcode.GE:         expr.OpGE,
	opcode.Plus:       expr.OpAdd,
	opcode.Minus:      expr.OpSub,
	opcode.Mul:        expr.OpMul,
	opcode.Div:        expr.OpDiv,
	opcode.IntDiv:     expr.OpDiv,
	opcode.Mod:        expr.OpMod,
	opcode.And:        "&",
	opcode.Or:         "|",
	opcode.Xor:        "^",
	opcode.LeftShift:  "<<",
	opcode.RightShift: ">>",
}

func (c *converter) convert(n ast.ExprNode) expr.Node {
	out := c.node(n)
	if out == nil || c.src == "" {
		return out
	}
	if _, ok := n.(*ast.ParenthesesExpr); ok {
		return out
	}
	span, ok := c.span(n, out)
	if !ok {
		return out
	}
	expr.SetSpan(out, span)
	// nodes synthesized for one source node (BETWEEN bounds) share its span
	for m := range expr.Preorder(out) {
		if m.Span() == (expr.Span{}) {
			expr.SetSpan(m, span)
		}
	}
	return out
}

func (c *converter) node(n ast.ExprNode) expr.Node {
	switch e := n.(type) {
	case nil:
		return nil
	case *ast.ParenthesesExpr:
		return c.convert(e.Expr)
	case *ast.ColumnNameExpr:
		return c.column(e.Name)
	case ast.ParamMarkerExpr:
		return expr.Param("?")
	case ast.ValueExpr:
		return literal(e)
	case *ast.BinaryOperationExpr:
		return c.binary(e)
	case *ast.UnaryOperationExpr:
		return c.unary(e)
	case *ast.IsNullExpr:
		op := expr.OpIsNull
		if e.Not {
			op = expr.OpIsNotNull
		}
		return &expr.UnaryOp{Op: op, Operand: c.convert(e.Expr)}
	case *ast.PatternInExpr:
		if e.Sel != nil {
			return opaque(e)
		}
		return &expr.InList{Operand: c.convert(e.Expr), List: c.list(e.List), Negated: e.Not}
	case *ast.PatternLikeOrIlikeExpr:
		return &expr.LikePattern{
			Operand:         c.convert(e.Expr),
			Pattern:         c.convert(e.Pattern),
			Negated:         e.Not,
			CaseInsensitive: !e.IsLike,
		}
	case *ast.PatternRegexpExpr:
		return &expr.LikePattern{Operand: c.convert(e.Expr), Pattern: c.convert(e.Pattern), Negated: e.Not, Regex: true}
	case *ast.BetweenExpr:
		// the operand is converted twice so the two comparisons own their nodes
		between := expr.And(
			expr.Cmp(expr.OpGE, c.convert(e.Expr), c.convert(e.Left)),
			expr.Cmp(expr.OpLE, c.convert(e.Expr), c.convert(e.Right)),
		)
		if e.Not {
			return expr.Not(between)
		}
		return between
	case *ast.FuncCallExpr:
		return c.call(e)
	case *ast.AggregateFuncExpr:
		return &expr.FunctionCall{Name: strings.ToLower(e.F), Args: c.list(e.Args)}
	case *ast.FuncCastExpr:
		return &expr.Cast{Operand: c.convert(e.Expr), Type: castType(e)}
	case *ast.TimeUnitExpr:
		return expr.Str(e.Unit.String())
	}
	return opaque(n)
}

func (c *converter) list(nodes []ast.ExprNode) []expr.Node {
	out := make([]expr.Node, len(nodes))
	for i, n := range nodes {
		out[i] = c.convert(n)
	}
	return out
}

func (c *converter) column(name *ast.ColumnName) *expr.Column {
	table := name.Table.O
	if real, ok := c.aliases[strings.ToLower(table)]; ok {
		table = real
	}
	return &expr.Column{Table: table, Name: name.Name.O}
}

func (c *converter) binary(e *ast.BinaryOperationExpr) expr.Node {
	switch e.Op {
	case opcode.LogicAnd:
		return flatten(c.convert(e.L), c.convert(e.R), true)
	case opcode.LogicOr:
		return flatten(c.convert(e.L), c.convert(e.R), false)
	}
	op, ok := binaryOps[e.Op]
	if !ok {
		return opaque(e)
	}
	return &expr.BinaryOp{Op: op, Left: c.convert(e.L), Right: c.convert(e.R)}
}

// flatten merges left-nested AND (or OR) chains into one n-ary node.
func flatten(l, r expr.Node, and bool) expr.Node {
	var terms []expr.Node
	for _, t := range []expr.Node{l, r} {
		switch g := t.(type) {
		case *expr.LogicalAnd:
			if and {
				terms = append(terms, g.Terms...)
				continue
			}
		case *expr.LogicalOr:
			if !and {
				terms = append(terms, g.Terms...)
				continue
			}
		}
		terms = append(terms, t)
	}
	if and {
		return expr.And(terms...)
	}
	return expr.Or(terms...)
}

func (c *converter) unary(e *ast.UnaryOperationExpr) expr.Node {
	operand := c.convert(e.V)
	switch e.Op {
	case opcode.Not, opcode.Not2:
		return expr.Not(operand)
	case opcode.Plus:
		return operand
	case opcode.Minus:
		if l, ok := operand.(*expr.Literal); ok && (l.Type == expr.LitInt || l.Type == expr.LitFloat) {
			l.Value = "-" + l.Value
			return l
		}
		return &expr.UnaryOp{Op: expr.OpNeg, Operand: operand}
	case opcode.BitNeg:
		return &expr.UnaryOp{Op: expr.OpBitNot, Operand: operand}
	}
	return opaque(e)
}

// call maps JSON functions onto JSONAccess and ArrayOp; everything else is a
// plain function call.
func (c *converter) call(e *ast.FuncCallExpr) expr.Node {
	name := e.FnName.L
	args := e.Args
	switch {
	case name == "json_extract" && len(args) == 2:
		return &expr.JSONAccess{Operand: c.convert(args[0]), Path: c.convert(args[1]), Op: "json_extract"}
	case name == "json_unquote" && len(args) == 1:
		if inner, ok := args[0].(*ast.FuncCallExpr); ok && inner.FnName.L == "json_extract" && len(inner.Args) == 2 {
			return &expr.JSONAccess{Operand: c.convert(inner.Args[0]), Path: c.convert(inner.Args[1]), Op: "->>"}
		}
	case name == "json_contains" && len(args) >= 2:
		return &expr.ArrayOp{Operand: c.convert(args[0]), Value: c.convert(args[1]), Op: expr.OpContains}
	case name == "json_overlaps" && len(args) == 2:
		return &expr.ArrayOp{Operand: c.convert(args[0]), Value: c.convert(args[1]), Op: expr.OpOverlaps}
	case name == "json_memberof" && len(args) == 2:
		return &expr.ArrayOp{Operand: c.convert(args[1]), Value: c.convert(args[0]), Op: expr.OpMemberOf}
	}
	return &expr.FunctionCall{Name: e.FnName.O, Args: c.list(args)}
}

// castType is the bare target type name, without length or charset.
func castType(e *ast.FuncCastExpr) string {
	if e.Tp == nil {
		return ""
	}
	t := strings.ToLower(e.Tp.String())
	if i := strings.IndexAny(t, "( "); i > 0 {
		t = t[:i]
	}
	return t
}

func literal(v ast.ValueExpr) expr.Node {
	switch val := v.GetValue().(type) {
	case nil:
		return expr.Null()
	case int64:
		return &expr.Literal{Type: expr.LitInt, Value: strconv.FormatInt(val, 10)}
	case uint64:
		return &expr.Literal{Type: expr.LitInt, Value: strconv.FormatUint(val, 10)}
	case float64, float32:
		return &expr.Literal{Type: expr.LitFloat, Value: fmt.Sprint(val)}
	case string:
		return expr.Str(val)
	}
	text := restore(v)
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return &expr.Literal{Type: expr.LitFloat, Value: text}
	}
	return expr.Str(strings.Trim(text, "'"))
}

func opaque(n ast.Node) *expr.Opaque {
	desc := restore(n)
	if desc == "" {
		desc = fmt.Sprintf("%T", n)
	}
	return &expr.Opaque{Desc: desc}
}

// span locates n in src. The parser records where each expression starts;
// the end is the furthest descendant end, or the token at the start for
// leaves, widened over unclosed parentheses and trailing IS [NOT] NULL.
func (c *converter) span(n ast.ExprNode, out expr.Node) (expr.Span, bool) {
	start := n.OriginTextPosition()
	if start <= 0 || start >= len(c.src) {
		return expr.Span{}, false
	}
	end := start
	for m := range expr.Preorder(out) {
		if m != out && m.Span().End > end {
			end = m.Span().End
		}
	}
	if end == start {
		end = tokenEnd(c.src, start)
	}
	switch e := n.(type) {
	case *ast.IsNullExpr:
		end = skipWords(c.src, end, "is", "not", "null")
	case *ast.PatternInExpr:
		if e.Sel != nil {
			if i := strings.IndexByte(c.src[end:], '('); i >= 0 {
				end += i + 1
			}
		}
	}
	end = closeParens(c.src, start, end)
	return expr.Span{Start: start, End: end}, true
}

// tokenEnd returns the end of the token at i: a run of identifier
// characters, dots and quoted sections, then an argument list if one follows.
func tokenEnd(src string, i int) int {
	j := i
	if j < len(src) && (src[j] == '?' || src[j] == '*') {
		return j + 1
	}
	if j < len(src) && (src[j] == '-' || src[j] == '+' || src[j] == ':') {
		j++
	}
	for j < len(src) {
		switch ch := src[j]; {
		case ch == '\'', ch == '"', ch == '`':
			j = quoteEnd(src, j)
		case ch == '.' || ch == '$' || isIdent(ch):
			j++
		default:
			k := j
			for k < len(src) && src[k] == ' ' {
				k++
			}
			if k < len(src) && src[k] == '(' && j > i {
				return closeParens(src, k, k+1)
			}
			return j
		}
	}
	return j
}

// quoteEnd returns the position after the quote opened at i. Doubled quotes
// and backslash escapes stay inside.
func quoteEnd(src string, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			if j+1 < len(src) && src[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(src)
}

// closeParens extends end past the closing parenthesis of every group left
// open in src[start:end].
func closeParens(src string, start, end int) int {
	depth := 0
	for j := start; j < len(src); j++ {
		if j >= end && depth == 0 {
			return end
		}
		switch src[j] {
		case '\'', '"', '`':
			j = quoteEnd(src, j) - 1
		case '(':
			depth++
		case ')':
			depth--
		}
		if j+1 > end {
			end = j + 1
		}
	}
	return end
}

// skipWords consumes the given keywords, in any case and any order, after i.
func skipWords(src string, i int, words ...string) int {
	for {
		j := i
		for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n') {
			j++
		}
		k := j
		for k < len(src) && isIdent(src[k]) {
			k++
		}
		if k == j || !slices.Contains(words, strings.ToLower(src[j:k])) {
			return i
		}
		i = k
	}
}

func restore(n ast.Node) string {
	var sb strings.Builder
	if err := n.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return ""
	}
	return sb.String()
}
