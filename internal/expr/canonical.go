package expr

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Fold case-folds an identifier for comparison.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Canonical serializes n into a comparison key. Identifiers and function names
// are case-folded, table qualifiers dropped, bind parameters anonymised.
// String literals keep their case.
func Canonical(n Node) string {
	var sb strings.Builder
	writeCanonical(&sb, n)
	return sb.String()
}

// Equal reports structural equality of a and b.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return Canonical(a) == Canonical(b)
}

func writeCanonical(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
		sb.WriteString("nil")
	case *Column:
		sb.WriteString("col(")
		sb.WriteString(Fold(n.Name))
		sb.WriteByte(')')
	case *Literal:
		switch n.Type {
		case LitParam:
			sb.WriteString("param")
		case LitNull:
			sb.WriteString("null")
		case LitBool:
			sb.WriteString("bool(")
			sb.WriteString(Fold(n.Value))
			sb.WriteByte(')')
		default:
			sb.WriteString(n.Type.String())
			sb.WriteByte('(')
			sb.WriteString(strconv.Quote(n.Value))
			sb.WriteByte(')')
		}
	case *FunctionCall:
		sb.WriteString("fn:")
		sb.WriteString(Fold(n.Name))
		writeCanonicalList(sb, n.Args)
	case *BinaryOp:
		sb.WriteString("bin:")
		sb.WriteString(n.Op)
		writeCanonicalList(sb, []Node{n.Left, n.Right})
	case *UnaryOp:
		sb.WriteString("un:")
		sb.WriteString(n.Op)
		writeCanonicalList(sb, []Node{n.Operand})
	case *Cast:
		sb.WriteString("cast:")
		sb.WriteString(Fold(n.Type))
		writeCanonicalList(sb, []Node{n.Operand})
	case *LogicalAnd:
		sb.WriteString("and")
		writeCanonicalList(sb, n.Terms)
	case *LogicalOr:
		sb.WriteString("or")
		writeCanonicalList(sb, n.Terms)
	case *LogicalNot:
		sb.WriteString("not")
		writeCanonicalList(sb, []Node{n.Operand})
	case *InList:
		if n.Negated {
			sb.WriteString("notin")
		} else {
			sb.WriteString("in")
		}
		writeCanonicalList(sb, n.Children())
	case *LikePattern:
		sb.WriteString(likeOperator(n))
		writeCanonicalList(sb, []Node{n.Operand, n.Pattern})
	case *JSONAccess:
		sb.WriteString("json:")
		sb.WriteString(n.Op)
		writeCanonicalList(sb, []Node{n.Operand, n.Path})
	case *ArrayOp:
		sb.WriteString("arr:")
		sb.WriteString(n.Op)
		writeCanonicalList(sb, []Node{n.Operand, n.Value})
	case *Opaque:
		sb.WriteString("opaque(")
		sb.WriteString(strconv.Quote(n.Desc))
		sb.WriteByte(')')
	}
}

func writeCanonicalList(sb *strings.Builder, nodes []Node) {
	sb.WriteByte('(')
	for i, c := range nodes {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeCanonical(sb, c)
	}
	sb.WriteByte(')')
}

func likeOperator(n *LikePattern) string {
	var op string
	switch {
	case n.Regex:
		op = "REGEXP"
	case n.CaseInsensitive:
		op = "ILIKE"
	default:
		op = "LIKE"
	}
	if n.Negated {
		return "NOT " + op
	}
	return op
}

// Format renders n as SQL text for messages and rewrite templates.
func Format(n Node) string {
	var sb strings.Builder
	writeSQL(&sb, n, false)
	return sb.String()
}

func writeSQL(sb *strings.Builder, n Node, nested bool) {
	switch n := n.(type) {
	case nil:
	case *Column:
		if n.Table != "" {
			sb.WriteString(n.Table)
			sb.WriteByte('.')
		}
		sb.WriteString(n.Name)
	case *Literal:
		switch n.Type {
		case LitString:
			sb.WriteByte('\'')
			sb.WriteString(strings.ReplaceAll(n.Value, "'", "''"))
			sb.WriteByte('\'')
		case LitNull:
			sb.WriteString("NULL")
		default:
			sb.WriteString(n.Value)
		}
	case *FunctionCall:
		sb.WriteString(strings.ToUpper(n.Name))
		sb.WriteByte('(')
		writeSQLList(sb, n.Args, ", ")
		sb.WriteByte(')')
	case *BinaryOp:
		open(sb, nested)
		writeSQL(sb, n.Left, true)
		sb.WriteString(" " + n.Op + " ")
		writeSQL(sb, n.Right, true)
		closeParen(sb, nested)
	case *UnaryOp:
		if n.Op == OpIsNull || n.Op == OpIsNotNull {
			writeSQL(sb, n.Operand, true)
			sb.WriteString(" " + n.Op)
			return
		}
		sb.WriteString(n.Op)
		writeSQL(sb, n.Operand, true)
	case *Cast:
		sb.WriteString("CAST(")
		writeSQL(sb, n.Operand, false)
		sb.WriteString(" AS " + strings.ToUpper(n.Type) + ")")
	case *LogicalAnd:
		open(sb, nested)
		writeSQLList(sb, n.Terms, " AND ")
		closeParen(sb, nested)
	case *LogicalOr:
		open(sb, nested)
		writeSQLList(sb, n.Terms, " OR ")
		closeParen(sb, nested)
	case *LogicalNot:
		sb.WriteString("NOT ")
		writeSQL(sb, n.Operand, true)
	case *InList:
		writeSQL(sb, n.Operand, true)
		if n.Negated {
			sb.WriteString(" NOT IN (")
		} else {
			sb.WriteString(" IN (")
		}
		writeSQLList(sb, n.List, ", ")
		sb.WriteByte(')')
	case *LikePattern:
		writeSQL(sb, n.Operand, true)
		sb.WriteString(" " + likeOperator(n) + " ")
		writeSQL(sb, n.Pattern, true)
	case *JSONAccess:
		if n.Op == "json_extract" {
			sb.WriteString("JSON_EXTRACT(")
			writeSQL(sb, n.Operand, false)
			sb.WriteString(", ")
			writeSQL(sb, n.Path, false)
			sb.WriteByte(')')
			return
		}
		writeSQL(sb, n.Operand, true)
		sb.WriteString(n.Op)
		writeSQL(sb, n.Path, true)
	case *ArrayOp:
		writeSQL(sb, n.Operand, true)
		sb.WriteString(" " + n.Op + " ")
		writeSQL(sb, n.Value, true)
	case *Opaque:
		sb.WriteString(n.Desc)
	}
}

func writeSQLList(sb *strings.Builder, nodes []Node, sep string) {
	for i, c := range nodes {
		if i > 0 {
			sb.WriteString(sep)
		}
		writeSQL(sb, c, sep != ", " && isGroup(c))
	}
}

func isGroup(n Node) bool {
	switch n.(type) {
	case *LogicalAnd, *LogicalOr:
		return true
	}
	return false
}

func open(sb *strings.Builder, nested bool) {
	if nested {
		sb.WriteByte('(')
	}
}

func closeParen(sb *strings.Builder, nested bool) {
	if nested {
		sb.WriteByte(')')
	}
}
