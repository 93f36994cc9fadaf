package auditor

import (
	"fmt"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

// wrapper is the outermost function or cast applied to a column on one side
// of a predicate.
type wrapper struct {
	node  expr.Node
	name  string
	class functionClass
}

// findWrappers descends through arithmetic and returns the outermost
// function calls and casts that take a column somewhere in their arguments.
func findWrappers(side expr.Node) []wrapper {
	switch n := side.(type) {
	case *expr.FunctionCall:
		if expr.HasColumn(n) {
			return []wrapper{{node: n, name: n.Name, class: classify(n.Name)}}
		}
	case *expr.Cast:
		if expr.HasColumn(n) {
			return []wrapper{{node: n, name: "CAST AS " + n.Type, class: castClass(n.Type)}}
		}
	case *expr.BinaryOp:
		if expr.IsArithmetic(n.Op) {
			return append(findWrappers(n.Left), findWrappers(n.Right)...)
		}
	case *expr.UnaryOp:
		if n.Op == expr.OpNeg {
			return findWrappers(n.Operand)
		}
	}
	return nil
}

// predicateSides returns the operands of a predicate that may hold a wrapped
// column, and whether the predicate compares against string constants.
func predicateSides(n expr.Node) (sides []expr.Node, stringCompare bool) {
	switch p := n.(type) {
	case *expr.BinaryOp:
		return []expr.Node{p.Left, p.Right}, isStringConstant(p.Left) || isStringConstant(p.Right)
	case *expr.InList:
		for _, v := range p.List {
			if isStringConstant(v) {
				stringCompare = true
			}
		}
		return []expr.Node{p.Operand}, stringCompare
	case *expr.LikePattern:
		return []expr.Node{p.Operand}, true
	}
	return nil, false
}

func isStringConstant(n expr.Node) bool {
	l, ok := n.(*expr.Literal)
	return ok && l.Type == expr.LitString
}

// checkFunctionWrappers reports functions applied to indexed columns. Each
// wrapper is attributed to the most specific of R5 (date parts), R16
// (formatting for string equality), R17 (null coalescing), R15 (unknown
// functions) and R1 (any other builtin). Case folding inside LIKE belongs to
// R14. A functional index on the exact expression suppresses the finding.
func checkFunctionWrappers(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	if ctx.joinComparison(n) {
		return nil
	}
	sides, stringCompare := predicateSides(n)
	_, isLike := n.(*expr.LikePattern)

	var out []model.Finding
	for _, side := range sides {
		for _, w := range findWrappers(side) {
			if isLike && w.class == fnCaseFold {
				continue
			}
			rule, msg, rewrite := attributeWrapper(w, stringCompare)
			if !ctx.Options.RuleEnabled(rule) {
				continue
			}
			if ctx.suppressed(rule, w.node, &out) {
				continue
			}
			f := ctx.finding(rule, model.SeverityBlocks, w.node, msg)
			f = withRewrite(f, rewrite)
			out = append(out, withIndex(f, plainIndexFor(ctx, w.node)))
		}
	}
	return out
}

func attributeWrapper(w wrapper, stringCompare bool) (model.RuleID, string, string) {
	text := expr.Format(w.node)
	cols := expr.Columns(w.node)
	colText := expr.Format(cols[0])
	index := fmt.Sprintf("CREATE INDEX ON ... ((%s))", text)

	switch w.class {
	case fnDatePart:
		return model.R5,
			fmt.Sprintf("%s extracts a date part from %s; the index on %s cannot be used", text, colText, colText),
			fmt.Sprintf("compare %s against a half-open range, e.g. %s >= :start AND %s < :end", colText, colText, colText)
	case fnFormat:
		if stringCompare {
			return model.R16,
				fmt.Sprintf("%s formats %s before comparing it with a string", text, colText),
				fmt.Sprintf("convert the string constant to the column type instead and compare %s directly", colText)
		}
	case fnCoalesce:
		return model.R17,
			fmt.Sprintf("%s hides %s behind a null substitute", text, colText),
			fmt.Sprintf("(%s = :v OR %s IS NULL) or %s", colText, colText, index)
	case fnUnknown:
		return model.R15,
			fmt.Sprintf("user-defined function %s wraps %s; no index on that exact expression", w.name, colText),
			index
	}
	return model.R1,
		fmt.Sprintf("function %s applied to %s prevents index use", w.name, colText),
		index
}

// plainIndexFor returns the first usable index leading with the wrapped
// column, the one a rewrite would reach.
func plainIndexFor(ctx *Context, n expr.Node) *catalog.IndexDefinition {
	for _, col := range expr.Columns(n) {
		if c := ctx.candidates(col); len(c) > 0 {
			return c[0]
		}
	}
	return nil
}

// checkVolatileFunction flags volatile functions compared in a predicate when
// an index definition relies on the same function.
func checkVolatileFunction(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	var out []model.Finding
	seen := map[string]bool{}
	for _, child := range n.Children() {
		for c := range expr.Preorder(child) {
			fc, ok := c.(*expr.FunctionCall)
			if !ok || ctx.Options.Purity(fc.Name) != model.Volatile {
				continue
			}
			name := expr.Fold(fc.Name)
			if seen[name] {
				continue
			}
			seen[name] = true
			idxs := ctx.Catalog.UsesFunction(fc.Name)
			if len(idxs) == 0 {
				continue
			}
			f := ctx.finding(model.R12, model.SeverityBlocks, fc,
				fmt.Sprintf("%s is volatile but index %s is defined over it; its result differs per evaluation", fc.Name, idxs[0].Name))
			f = withRewrite(f, fmt.Sprintf("bind the value of %s as a parameter, or rebuild %s on an immutable expression", fc.Name, idxs[0].Name))
			out = append(out, withIndex(f, idxs[0]))
		}
	}
	return out
}

// checkCaseInsensitive flags ILIKE on a column and LOWER/UPPER wrappers in
// LIKE when no functional, trigram or case-insensitive collation index exists.
func checkCaseInsensitive(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	like := n.(*expr.LikePattern)
	if like.Regex {
		return nil
	}

	var target expr.Node
	var col *expr.Column
	switch op := like.Operand.(type) {
	case *expr.Column:
		if !like.CaseInsensitive {
			return nil
		}
		target, col = op, op
	case *expr.FunctionCall:
		if classify(op.Name) != fnCaseFold || len(op.Args) != 1 {
			return nil
		}
		c, ok := op.Args[0].(*expr.Column)
		if !ok {
			return nil
		}
		target, col = op, c
	default:
		return nil
	}

	var out []model.Finding
	if target != col && ctx.suppressed(model.R14, target, &out) {
		return out
	}
	if caseInsensitiveIndex(ctx, col) {
		return out
	}
	for _, fn := range []string{"lower", "upper"} {
		if ctx.suppressed(model.R14, expr.Call(fn, col), &out) {
			return out
		}
	}
	f := ctx.finding(model.R14, model.SeverityBlocks, target,
		fmt.Sprintf("case-insensitive match on %s has no functional or case-insensitive index", expr.Format(col)))
	f = withRewrite(f, fmt.Sprintf("CREATE INDEX ON ... ((LOWER(%s))) and compare LOWER(%s) LIKE LOWER(:pattern)", col.Name, col.Name))
	return append(out, f)
}

// caseInsensitiveIndex reports a usable index that already ignores case for
// col: a GIN (trigram) index or a key part with a case-insensitive collation.
func caseInsensitiveIndex(ctx *Context, col *expr.Column) bool {
	for _, idx := range ctx.candidates(col) {
		if idx.Kind == catalog.KindGIN || idx.Part(0).CaseInsensitive() {
			return true
		}
	}
	return false
}
