package auditor

import (
	"fmt"
	"strconv"
	"strings"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

// checkArithmetic flags arithmetic applied to a column on one side of a
// comparison, e.g. amount * 1.2 > 100.
func checkArithmetic(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	if ctx.joinComparison(n) {
		return nil
	}
	var sides, others []expr.Node
	switch p := n.(type) {
	case *expr.BinaryOp:
		sides, others = []expr.Node{p.Left, p.Right}, []expr.Node{p.Right, p.Left}
	case *expr.InList:
		sides, others = []expr.Node{p.Operand}, []expr.Node{nil}
	}

	var out []model.Finding
	for i, side := range sides {
		arith, ok := side.(*expr.BinaryOp)
		if !ok || !expr.IsArithmetic(arith.Op) || !expr.HasColumn(arith) {
			continue
		}
		if ctx.suppressed(model.R2, arith, &out) {
			continue
		}
		f := ctx.finding(model.R2, model.SeverityBlocks, arith,
			fmt.Sprintf("arithmetic on %s must be computed per row before comparing", expr.Format(expr.Columns(arith)[0])))
		if cmp, ok := n.(*expr.BinaryOp); ok && others[i] != nil && expr.IsConstant(others[i]) {
			op := cmp.Op
			if i == 1 {
				op = expr.Flip(op)
			}
			if rw, ok := isolate(arith, op, others[i]); ok {
				f = withRewrite(f, rw)
			}
		}
		out = append(out, withIndex(f, plainIndexFor(ctx, arith)))
	}
	return out
}

// isolate moves constant arithmetic to the other side of `arith op value`
// when arith is a column combined with a single constant.
func isolate(arith *expr.BinaryOp, op string, value expr.Node) (string, bool) {
	col, colLeft := arith.Left.(*expr.Column)
	k := arith.Right
	if !colLeft {
		c, ok := arith.Right.(*expr.Column)
		if !ok {
			return "", false
		}
		col, k = c, arith.Left
	}
	if !expr.IsConstant(k) {
		return "", false
	}

	var inverse string
	switch arith.Op {
	case expr.OpAdd:
		inverse = expr.OpSub
	case expr.OpSub:
		if !colLeft {
			// k - col op v  =>  col flip(op) k - v
			return expr.Format(expr.Cmp(expr.Flip(op), col, expr.Arith(expr.OpSub, k, value))), true
		}
		inverse = expr.OpAdd
	case expr.OpMul:
		inverse = expr.OpDiv
		if negative(k) {
			op = expr.Flip(op)
		}
	case expr.OpDiv:
		if !colLeft {
			return "", false
		}
		inverse = expr.OpMul
		if negative(k) {
			op = expr.Flip(op)
		}
	default:
		return "", false
	}
	return expr.Format(expr.Cmp(op, col, expr.Arith(inverse, value, k))), true
}

func negative(n expr.Node) bool {
	switch v := n.(type) {
	case *expr.Literal:
		return strings.HasPrefix(v.Value, "-")
	case *expr.UnaryOp:
		return v.Op == expr.OpNeg
	}
	return false
}

// likeLiteral returns the pattern text when it is a string literal, or the
// first literal of a concatenation.
func likeLiteral(p expr.Node) (string, bool) {
	switch v := p.(type) {
	case *expr.Literal:
		return v.Value, v.Type == expr.LitString
	case *expr.BinaryOp:
		if v.Op == expr.OpConcat {
			return likeLiteral(v.Left)
		}
	case *expr.FunctionCall:
		if expr.Fold(v.Name) == "concat" && len(v.Args) > 0 {
			return likeLiteral(v.Args[0])
		}
	}
	return "", false
}

// trigramIndexed reports a usable GIN index on the LIKE operand, which serves
// any wildcard position.
func trigramIndexed(ctx *Context, operand expr.Node) bool {
	for _, idx := range ctx.candidates(operand) {
		if idx.Kind == catalog.KindGIN {
			return true
		}
	}
	return false
}

// checkLeadingWildcard flags patterns that start with a wildcard and regular
// expressions not anchored at the start.
func checkLeadingWildcard(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	like := n.(*expr.LikePattern)
	if !expr.HasColumn(like.Operand) {
		return nil
	}
	pattern, ok := likeLiteral(like.Pattern)
	if !ok {
		return nil
	}
	_, plain := like.Pattern.(*expr.Literal)

	var msg, rewrite string
	switch {
	case like.Regex:
		if strings.HasPrefix(pattern, "^") || !plain {
			return nil
		}
		msg = fmt.Sprintf("regular expression %q is not anchored at the start", pattern)
		rewrite = "anchor the expression with ^ and a literal prefix, or add a trigram index"
	case leadingWildcard(pattern):
		msg = fmt.Sprintf("pattern %q starts with a wildcard", pattern)
		rewrite = "use a trigram or full-text index"
		if col, ok := like.Operand.(*expr.Column); ok && plain {
			if rev, ok := reversePattern(pattern); ok {
				rewrite = fmt.Sprintf("REVERSE(%s) LIKE '%s' with an index on (REVERSE(%s))", col.Name, rev, col.Name)
			}
		}
	default:
		return nil
	}
	if trigramIndexed(ctx, like.Operand) {
		return nil
	}
	f := ctx.finding(model.R3, model.SeverityBlocks, like, msg)
	return []model.Finding{withRewrite(f, rewrite)}
}

// leadingWildcard: '%...' or a run of '_' followed by '%'.
func leadingWildcard(p string) bool {
	i := 0
	for i < len(p) && p[i] == '_' {
		i++
	}
	return i < len(p) && p[i] == '%'
}

// reversePattern turns a suffix match '%abc' into the prefix match 'cba%'.
func reversePattern(p string) (string, bool) {
	body := strings.TrimLeft(p, "%")
	if body == "" || strings.ContainsAny(body, "%_\\") || len(body) == len(p) {
		return "", false
	}
	r := []rune(body)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return strings.ReplaceAll(string(r), "'", "''") + "%", true
}

// checkFixedWildcard flags patterns like '_abc%' whose first characters are
// single-character wildcards followed by literal text.
func checkFixedWildcard(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	like := n.(*expr.LikePattern)
	if like.Regex || !expr.HasColumn(like.Operand) {
		return nil
	}
	pattern, ok := likeLiteral(like.Pattern)
	if !ok {
		return nil
	}
	skip := 0
	for skip < len(pattern) && pattern[skip] == '_' {
		skip++
	}
	if skip == 0 || skip == len(pattern) || pattern[skip] == '%' {
		return nil
	}
	if trigramIndexed(ctx, like.Operand) {
		return nil
	}
	f := ctx.finding(model.R18, model.SeverityDegrades, like,
		fmt.Sprintf("pattern %q fixes %d leading character(s) as wildcards; the index can only be scanned in full", pattern, skip))
	return []model.Finding{withRewrite(f, fmt.Sprintf("index SUBSTRING(%s, %d) and match '%s' against it",
		expr.Format(like.Operand), skip+1, strings.ReplaceAll(pattern[skip:], "'", "''")))}
}

// negated describes a negative predicate: the column it restricts and the
// constant values it excludes.
type negated struct {
	col      *expr.Column
	excluded []*expr.Literal
	// positive is a direct rewrite that needs no domain knowledge.
	positive expr.Node
}

func negationOf(n expr.Node) (negated, bool) {
	switch p := n.(type) {
	case *expr.BinaryOp:
		if p.Op != expr.OpNE {
			return negated{}, false
		}
		con, ok := expr.ConstraintOf(expr.Cmp(expr.OpEQ, p.Left, p.Right))
		if !ok {
			return negated{}, true
		}
		return negated{col: con.Column, excluded: literals(con.Value)}, true
	case *expr.InList:
		if !p.Negated {
			return negated{}, false
		}
		col, _ := p.Operand.(*expr.Column)
		return negated{col: col, excluded: literals(p.List...)}, true
	case *expr.LikePattern:
		return negated{}, p.Negated
	case *expr.LogicalNot:
		switch inner := p.Operand.(type) {
		case *expr.BinaryOp:
			if expr.IsRange(inner.Op) {
				if con, ok := expr.ConstraintOf(inner); ok {
					return negated{col: con.Column, positive: expr.Cmp(invert(con.Op), con.Column, con.Value)}, true
				}
			}
			if inner.Op == expr.OpEQ {
				if con, ok := expr.ConstraintOf(inner); ok {
					return negated{col: con.Column, excluded: literals(con.Value)}, true
				}
			}
		case *expr.InList:
			if col, ok := inner.Operand.(*expr.Column); ok && !inner.Negated {
				return negated{col: col, excluded: literals(inner.List...)}, true
			}
		}
		return negated{}, true
	}
	return negated{}, false
}

func invert(op string) string {
	switch op {
	case expr.OpLT:
		return expr.OpGE
	case expr.OpLE:
		return expr.OpGT
	case expr.OpGT:
		return expr.OpLE
	case expr.OpGE:
		return expr.OpLT
	}
	return op
}

// literals returns the nodes as literals, or nil when any is not a literal.
func literals(nodes ...expr.Node) []*expr.Literal {
	out := make([]*expr.Literal, 0, len(nodes))
	for _, n := range nodes {
		l, ok := n.(*expr.Literal)
		if !ok || l.Type == expr.LitParam || l.Type == expr.LitNull {
			return nil
		}
		out = append(out, l)
	}
	return out
}

// checkNegation flags top-level negative predicates. A positive rewrite
// (inverted range, or the complement of a known domain) turns the finding
// informational.
func checkNegation(ctx *Context, n expr.Node, ancestry []expr.Node) []model.Finding {
	if !ctx.topLevel(ancestry) {
		return nil
	}
	neg, ok := negationOf(n)
	if !ok {
		return nil
	}
	if neg.positive != nil {
		f := ctx.finding(model.R7, model.SeverityInformational, n,
			fmt.Sprintf("negated range on %s can be written positively", expr.Format(neg.col)))
		return []model.Finding{withRewrite(f, expr.Format(neg.positive))}
	}
	if neg.col != nil && len(neg.excluded) > 0 {
		if domain, ok := ctx.Options.Domain(neg.col); ok {
			if rest := complement(domain, neg.excluded); len(rest) > 0 {
				f := ctx.finding(model.R7, model.SeverityInformational, n,
					fmt.Sprintf("%s has a known value set; the negation can be written positively", expr.Format(neg.col)))
				return []model.Finding{withRewrite(f, expr.Format(&expr.InList{Operand: neg.col, List: rest}))}
			}
		}
	}
	f := ctx.finding(model.R7, model.SeverityDegrades, n,
		"negative predicate matches most of the index; the planner will usually scan")
	return []model.Finding{withIndex(f, plainIndexFor(ctx, n))}
}

func complement(domain []string, excluded []*expr.Literal) []expr.Node {
	skip := make(map[string]bool, len(excluded))
	numeric := false
	for _, l := range excluded {
		skip[l.Value] = true
		numeric = numeric || l.Type == expr.LitInt || l.Type == expr.LitFloat
	}
	var out []expr.Node
	for _, v := range domain {
		if skip[v] {
			continue
		}
		if numeric {
			out = append(out, &expr.Literal{Type: numericType(v), Value: v})
		} else {
			out = append(out, expr.Str(v))
		}
	}
	return out
}

func numericType(v string) expr.LiteralType {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return expr.LitInt
	}
	return expr.LitFloat
}

// nestedOr reports an OR directly inside another OR; the outer one is
// checked with the flattened branches.
func nestedOr(ancestry []expr.Node) bool {
	if len(ancestry) == 0 {
		return false
	}
	_, ok := ancestry[len(ancestry)-1].(*expr.LogicalOr)
	return ok
}

// checkOrAcrossColumns flags OR groups over different indexed columns that
// no single index covers together.
func checkOrAcrossColumns(ctx *Context, n expr.Node, ancestry []expr.Node) []model.Finding {
	if nestedOr(ancestry) {
		return nil
	}
	var cols []string
	seen := map[string]bool{}
	for _, branch := range expr.Disjuncts(n) {
		con, ok := expr.ConstraintOf(branch)
		if !ok {
			return nil
		}
		name := expr.Fold(con.Column.Name)
		if !seen[name] {
			if len(ctx.candidates(con.Column)) == 0 {
				return nil
			}
			seen[name] = true
			cols = append(cols, con.Column.Name)
		}
	}
	if len(cols) < 2 {
		return nil
	}
	for _, idx := range ctx.filter(ctx.Catalog.Indexes()) {
		all := true
		for _, c := range cols {
			all = all && idx.Covers(c)
		}
		if all {
			return nil
		}
	}
	f := ctx.finding(model.R8, model.SeverityDegrades, n,
		fmt.Sprintf("OR across %s needs one index per branch; no index spans them", strings.Join(cols, ", ")))
	return []model.Finding{withRewrite(f, unionRewrite(expr.Disjuncts(n)))}
}

func unionRewrite(branches []expr.Node) string {
	parts := make([]string, len(branches))
	for i, b := range branches {
		parts[i] = "SELECT ... WHERE " + expr.Format(b)
	}
	return strings.Join(parts, " UNION ALL ")
}

// endpoint is one side of an interval; nil means unbounded.
type endpoint struct {
	value     expr.Node
	inclusive bool
}

type interval struct {
	lo, hi *endpoint
}

// rangeOf returns the interval a branch restricts col to.
func rangeOf(branch expr.Node) (*expr.Column, interval, bool) {
	var col *expr.Column
	var iv interval
	for _, c := range expr.Conjuncts(branch) {
		con, ok := expr.ConstraintOf(c)
		if !ok || !expr.IsRange(con.Op) && con.Op != expr.OpEQ {
			return nil, interval{}, false
		}
		if _, ok := con.Value.(*expr.Literal); !ok {
			return nil, interval{}, false
		}
		if col != nil && expr.Fold(col.Name) != expr.Fold(con.Column.Name) {
			return nil, interval{}, false
		}
		col = con.Column
		e := &endpoint{value: con.Value, inclusive: con.Op == expr.OpGE || con.Op == expr.OpLE || con.Op == expr.OpEQ}
		switch con.Op {
		case expr.OpGT, expr.OpGE:
			iv.lo = e
		case expr.OpLT, expr.OpLE:
			iv.hi = e
		default:
			iv.lo, iv.hi = e, e
		}
	}
	return col, iv, col != nil
}

// compareValues orders two literal values of the same kind.
func compareValues(a, b expr.Node) (int, bool) {
	la, lb := a.(*expr.Literal), b.(*expr.Literal)
	numeric := func(l *expr.Literal) bool { return l.Type == expr.LitInt || l.Type == expr.LitFloat }
	switch {
	case numeric(la) && numeric(lb):
		x, err1 := strconv.ParseFloat(la.Value, 64)
		y, err2 := strconv.ParseFloat(lb.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case la.Type == expr.LitString && lb.Type == expr.LitString:
		return strings.Compare(la.Value, lb.Value), true
	}
	return 0, false
}

// before reports whether interval a ends strictly before b starts.
func before(a, b interval) (bool, bool) {
	if a.hi == nil || b.lo == nil {
		return false, true
	}
	c, ok := compareValues(a.hi.value, b.lo.value)
	if !ok {
		return false, false
	}
	return c < 0 || c == 0 && !(a.hi.inclusive && b.lo.inclusive), true
}

// checkDisjointRanges flags an OR of non-overlapping ranges on one indexed
// column; each branch is an index range scan on its own.
func checkDisjointRanges(ctx *Context, n expr.Node, ancestry []expr.Node) []model.Finding {
	if nestedOr(ancestry) {
		return nil
	}
	branches := expr.Disjuncts(n)
	var col *expr.Column
	ranges := make([]interval, 0, len(branches))
	for _, b := range branches {
		c, iv, ok := rangeOf(b)
		if !ok || col != nil && expr.Fold(col.Name) != expr.Fold(c.Name) {
			return nil
		}
		col = c
		ranges = append(ranges, iv)
	}
	if len(ranges) < 2 || !hasRange(ranges) {
		return nil
	}
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			ab, ok1 := before(ranges[i], ranges[j])
			ba, ok2 := before(ranges[j], ranges[i])
			if !ok1 || !ok2 || !ab && !ba {
				return nil
			}
		}
	}
	idxs := ctx.candidates(col)
	if len(idxs) == 0 {
		return nil
	}
	f := ctx.finding(model.R19, model.SeverityInformational, n,
		fmt.Sprintf("disjoint ranges on %s; each branch can use %s on its own", expr.Format(col), idxs[0].Name))
	return []model.Finding{withIndex(withRewrite(f, unionRewrite(branches)), idxs[0])}
}

// hasRange: a pure equality list is an IN list, not a range union.
func hasRange(ranges []interval) bool {
	for _, r := range ranges {
		if r.lo != r.hi {
			return true
		}
	}
	return false
}

// derived reports whether col holds a normalised copy of other data.
func derived(opts model.Options, col *expr.Column) (expr.Node, bool) {
	if src, ok := opts.Derivation(col); ok {
		return src, true
	}
	patterns := opts.DerivedPatterns
	if len(patterns) == 0 {
		patterns = model.DefaultDerivedPatterns
	}
	name := expr.Fold(col.Name)
	for _, p := range patterns {
		if strings.Contains(name, expr.Fold(p)) {
			return nil, true
		}
	}
	return nil, false
}

// checkDerivedValue flags comparisons of derived columns against constants
// when neither the column nor its source expression is indexed.
func checkDerivedValue(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	con, ok := expr.ConstraintOf(n)
	if !ok {
		return nil
	}
	src, ok := derived(ctx.Options, con.Column)
	if !ok || len(ctx.candidates(con.Column)) > 0 {
		return nil
	}
	rewrite := fmt.Sprintf("CREATE INDEX ON ... (%s)", con.Column.Name)
	if src != nil {
		if len(ctx.candidates(src)) > 0 {
			return nil
		}
		rewrite = fmt.Sprintf("CREATE INDEX ON ... (%s), or index ((%s))", con.Column.Name, expr.Format(src))
	}
	f := ctx.finding(model.R20, model.SeverityInformational, n,
		fmt.Sprintf("%s looks derived but has no shadow index", expr.Format(con.Column)))
	return []model.Finding{withRewrite(f, rewrite)}
}
