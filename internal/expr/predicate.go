package expr

// Conjuncts flattens nested AND groups into their terms. A non-AND node is its
// own single conjunct.
func Conjuncts(n Node) []Node {
	if n == nil {
		return nil
	}
	and, ok := n.(*LogicalAnd)
	if !ok {
		return []Node{n}
	}
	var out []Node
	for _, t := range and.Terms {
		out = append(out, Conjuncts(t)...)
	}
	return out
}

// Disjuncts flattens nested OR groups into their branches.
func Disjuncts(n Node) []Node {
	if n == nil {
		return nil
	}
	or, ok := n.(*LogicalOr)
	if !ok {
		return []Node{n}
	}
	var out []Node
	for _, t := range or.Terms {
		out = append(out, Disjuncts(t)...)
	}
	return out
}

// IsConstant reports whether n is a literal or bind parameter, possibly
// wrapped in constant arithmetic or a cast.
func IsConstant(n Node) bool {
	switch n := n.(type) {
	case *Literal:
		return true
	case *BinaryOp:
		return IsArithmetic(n.Op) && IsConstant(n.Left) && IsConstant(n.Right)
	case *UnaryOp:
		return n.Op == OpNeg && IsConstant(n.Operand)
	case *Cast:
		return IsConstant(n.Operand)
	}
	return false
}

// HasColumn reports whether a column reference occurs under n.
func HasColumn(n Node) bool {
	for c := range Preorder(n) {
		if _, ok := c.(*Column); ok {
			return true
		}
	}
	return false
}

// Constraint describes a sargable restriction of one bare column.
type Constraint struct {
	Column   *Column
	Equality bool
	// Op is the comparison operator normalised to column-on-the-left form.
	Op    string
	Value Node
}

// ConstraintOf recognises `col op const`, `const op col`, `col IN (...)`,
// `col IS [NOT] NULL` and prefix `col LIKE 'x%'`. Inequality (<>) is not a
// constraint.
func ConstraintOf(pred Node) (Constraint, bool) {
	switch p := pred.(type) {
	case *BinaryOp:
		if !IsComparison(p.Op) || p.Op == OpNE {
			return Constraint{}, false
		}
		if col, ok := p.Left.(*Column); ok && IsConstant(p.Right) {
			return Constraint{Column: col, Equality: isEquality(p.Op), Op: p.Op, Value: p.Right}, true
		}
		if col, ok := p.Right.(*Column); ok && IsConstant(p.Left) {
			return Constraint{Column: col, Equality: isEquality(p.Op), Op: Flip(p.Op), Value: p.Left}, true
		}
	case *InList:
		if col, ok := p.Operand.(*Column); ok && !p.Negated {
			return Constraint{Column: col, Equality: true, Op: "IN"}, true
		}
	case *UnaryOp:
		if col, ok := p.Operand.(*Column); ok && p.Op == OpIsNull {
			return Constraint{Column: col, Equality: true, Op: p.Op}, true
		}
	case *LikePattern:
		if col, ok := p.Operand.(*Column); ok && !p.Negated && !p.CaseInsensitive && !p.Regex {
			if lit, ok := p.Pattern.(*Literal); ok && lit.Type == LitString && LiteralPrefix(lit.Value) != "" {
				return Constraint{Column: col, Op: "LIKE", Value: lit}, true
			}
		}
	}
	return Constraint{}, false
}

func isEquality(op string) bool {
	return op == OpEQ || op == OpNullSafe
}

// LiteralPrefix returns the fixed prefix of a LIKE pattern before its first
// wildcard.
func LiteralPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '%', '_':
			return pattern[:i]
		case '\\':
			i++
		}
	}
	return pattern
}

// BoundColumns returns the folded names of columns constrained by sargable
// top-level conjuncts of pred, mapped to whether the constraint is an equality.
// An equality wins over a range on the same column.
func BoundColumns(pred Node) map[string]bool {
	bound := make(map[string]bool)
	for _, c := range Conjuncts(pred) {
		con, ok := ConstraintOf(c)
		if !ok {
			continue
		}
		name := Fold(con.Column.Name)
		bound[name] = bound[name] || con.Equality
	}
	return bound
}
