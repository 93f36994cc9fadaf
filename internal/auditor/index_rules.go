package auditor

import (
	"fmt"
	"strings"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

// joinComparison reports a JOIN ON comparison with columns on both sides.
// Those belong to checkJoinExpression alone.
func (ctx *Context) joinComparison(n expr.Node) bool {
	if ctx.Clause.Kind != model.ClauseJoinOn {
		return false
	}
	b, ok := n.(*expr.BinaryOp)
	return ok && expr.IsComparison(b.Op) && expr.HasColumn(b.Left) && expr.HasColumn(b.Right)
}

// checkJoinExpression flags JOIN ON comparisons where a side is an
// expression over columns rather than a bare column.
func checkJoinExpression(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	if !ctx.joinComparison(n) {
		return nil
	}
	b := n.(*expr.BinaryOp)
	var out []model.Finding
	for _, side := range []expr.Node{b.Left, b.Right} {
		if _, bare := side.(*expr.Column); bare {
			continue
		}
		if ctx.suppressed(model.R6, side, &out) {
			continue
		}
		cols := expr.Columns(side)
		f := ctx.finding(model.R6, model.SeverityBlocks, side,
			fmt.Sprintf("join condition computes %s per row; the index on %s cannot drive the join", expr.Format(side), expr.Format(cols[0])))
		f = withRewrite(f, fmt.Sprintf("join on the bare column, or CREATE INDEX ON ... ((%s))", expr.Format(side)))
		out = append(out, withIndex(f, plainIndexFor(ctx, side)))
	}
	return out
}

// checkLeftmostPrefix flags constraints on a column that only appears behind
// other key parts of composite indexes. An unconstrained leading key part
// blocks the index; a constrained one with a gap before the column degrades it.
func checkLeftmostPrefix(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	con, ok := expr.ConstraintOf(n)
	if !ok || len(ctx.candidates(con.Column)) > 0 {
		return nil
	}
	idxs := ctx.filter(ctx.Catalog.IndexesWith(con.Column))
	if len(idxs) == 0 {
		return nil
	}
	for _, idx := range idxs {
		if catalog.PrefixLength(idx, ctx.Bound) >= idx.Position(con.Column.Name) {
			return nil
		}
	}

	idx := idxs[0]
	pos := idx.Position(con.Column.Name)
	lead := idx.Part(0)
	var missing []string
	for i := 0; i < pos; i++ {
		if p := idx.Part(i); !ctx.Bound[catalog.PartKey(p)] {
			missing = append(missing, p.String())
		}
	}
	sev := model.SeverityBlocks
	msg := fmt.Sprintf("%s is key part %d of %s but the leading key %s is unconstrained", con.Column.Name, pos+1, idx.Name, lead.String())
	if ctx.Bound[catalog.PartKey(lead)] {
		sev = model.SeverityDegrades
		msg = fmt.Sprintf("%s is key part %d of %s; %s must also be constrained to use it", con.Column.Name, pos+1, idx.Name, strings.Join(missing, ", "))
	}
	f := ctx.finding(model.R9, sev, n, msg)
	f = withRewrite(f, fmt.Sprintf("constrain %s, or create an index leading with %s", strings.Join(missing, ", "), con.Column.Name))
	return []model.Finding{withIndex(f, idx)}
}

// checkSortKeys flags ORDER BY and GROUP BY lists no btree index can
// produce in order. Leading key parts fixed by WHERE equalities are skipped;
// a fully reversed ORDER BY is served by a backward scan.
func checkSortKeys(ctx *Context) []model.Finding {
	keys := ctx.Clause.Keys
	if len(keys) == 0 {
		return nil
	}
	for _, idx := range ctx.filter(ctx.Catalog.Indexes()) {
		if idx.Kind != catalog.KindBTree {
			continue
		}
		parts := sortableParts(idx, keys, ctx.EqBound)
		if len(parts) < len(keys) {
			continue
		}
		parts = parts[:len(keys)]
		if ctx.Clause.Kind == model.ClauseGroupBy && sameKeySet(parts, keys) {
			return nil
		}
		if ctx.Clause.Kind == model.ClauseOrderBy && sameKeySequence(parts, keys) {
			return nil
		}
	}

	spec := make([]string, len(keys))
	for i, k := range keys {
		spec[i] = expr.Format(k.Expr)
		if k.Desc {
			spec[i] += " DESC"
		}
	}
	what := "sort"
	if ctx.Clause.Kind == model.ClauseGroupBy {
		what = "grouping"
	}
	f := ctx.finding(model.R10, model.SeverityDegrades, keys[0].Expr,
		fmt.Sprintf("no index matches the %s keys (%s); rows are sorted after the scan", what, strings.Join(spec, ", ")))
	return []model.Finding{withRewrite(f, fmt.Sprintf("CREATE INDEX ON ... (%s)", strings.Join(spec, ", ")))}
}

// sortableParts drops leading key parts bound by equality, unless the part
// is itself the first sort key.
func sortableParts(idx *catalog.IndexDefinition, keys []model.OrderKey, eq catalog.Bound) []catalog.KeyPart {
	parts := idx.Parts()
	first := catalog.ExprKey(keys[0].Expr)
	i := 0
	for i < len(parts) {
		k := catalog.PartKey(parts[i])
		if !eq[k] || k == first {
			break
		}
		i++
	}
	return parts[i:]
}

func sameKeySequence(parts []catalog.KeyPart, keys []model.OrderKey) bool {
	forward, backward := true, true
	for i, k := range keys {
		if catalog.PartKey(parts[i]) != catalog.ExprKey(k.Expr) {
			return false
		}
		desc := parts[i].Direction == catalog.Desc
		forward = forward && desc == k.Desc
		backward = backward && desc != k.Desc
	}
	return forward || backward
}

func sameKeySet(parts []catalog.KeyPart, keys []model.OrderKey) bool {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[catalog.ExprKey(k.Expr)] = true
	}
	for _, p := range parts {
		if !want[catalog.PartKey(p)] {
			return false
		}
	}
	return true
}

// checkCoveringProjection reports projected columns that no index serving
// the WHERE clause stores, which forces a heap lookup per row. The finding
// names the best access path.
func checkCoveringProjection(ctx *Context) []model.Finding {
	if ctx.predicate == nil || len(ctx.Bound) == 0 {
		return nil
	}
	idx, cost := ctx.Catalog.BestPath(ctx.Bound, ctx.usable)
	if idx == nil || cost != 0 {
		return nil
	}
	for _, other := range ctx.Catalog.Indexes() {
		if other != idx && ctx.usable(other) && catalog.AdditionalPredicates(other, ctx.Bound) == 0 &&
			len(uncovered(ctx.Statement.Projection, other)) == 0 {
			return nil
		}
	}

	missing := uncovered(ctx.Statement.Projection, idx)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = m.col.Name
	}
	f := ctx.finding(model.R11, model.SeverityInformational, missing[0].col,
		fmt.Sprintf("%s serves the filter but does not store %s", idx.Name, strings.Join(names, ", ")))
	f.Seq = missing[0].pos
	rewrite := fmt.Sprintf("select only columns stored in %s", idx.Name)
	if !containsStar(names) {
		rewrite = fmt.Sprintf("add INCLUDE (%s) to %s", strings.Join(names, ", "), idx.Name)
	}
	return []model.Finding{withIndex(withRewrite(f, rewrite), idx)}
}

type projected struct {
	col *expr.Column
	pos int
}

// uncovered lists the projected columns idx does not store, in select-list
// order. A star is never covered.
func uncovered(projection []expr.Node, idx *catalog.IndexDefinition) []projected {
	var out []projected
	for i, p := range projection {
		for _, col := range expr.Columns(p) {
			if col.Name == "*" || !idx.Covers(col.Name) {
				out = append(out, projected{col: col, pos: i})
			}
		}
	}
	return out
}

func containsStar(cols []string) bool {
	for _, c := range cols {
		if c == "*" {
			return true
		}
	}
	return false
}

// checkJSONAccess flags JSON path extraction and array containment on a
// column without a GIN index on it or a functional index over the same
// path. Dialects with neither index kind get a notice instead.
func checkJSONAccess(ctx *Context, n expr.Node, ancestry []expr.Node) []model.Finding {
	for _, a := range ancestry {
		switch a.(type) {
		case *expr.JSONAccess, *expr.ArrayOp:
			return nil
		}
	}
	cols := expr.Columns(n)
	if len(cols) == 0 {
		return nil
	}
	col := cols[0]

	d := ctx.Options.Dialect
	if !d.Supports(catalog.KindGIN) && !d.SupportsFunctionalIndex() {
		err := fmt.Errorf("%w: %s offers neither GIN nor expression indexes", catalog.ErrInvalidCatalogReference, d)
		f := ctx.finding(model.R13, model.SeverityInformational, n,
			fmt.Sprintf("JSON access on %s not checked for %s", col.Name, d))
		return []model.Finding{withErr(f, err)}
	}

	for _, idx := range ctx.candidates(col) {
		if idx.Kind == catalog.KindGIN {
			return nil
		}
	}
	var out []model.Finding
	if ctx.suppressed(model.R13, n, &out) {
		return out
	}
	for _, idx := range ctx.filter(ctx.Catalog.Indexes()) {
		if idx.Len() == 0 || !idx.Part(0).IsExpression() {
			continue
		}
		for sub := range expr.Preorder(idx.Part(0).Expr) {
			if expr.Equal(sub, n) {
				return out
			}
		}
	}

	rewrite := fmt.Sprintf("CREATE INDEX ON ... ((%s))", expr.Format(n))
	if d.Supports(catalog.KindGIN) {
		rewrite = fmt.Sprintf("CREATE INDEX ON ... USING gin (%s)", col.Name)
	}
	f := ctx.finding(model.R13, model.SeverityBlocks, n,
		fmt.Sprintf("%s reads inside %s; no GIN or expression index matches", expr.Format(n), col.Name))
	return append(out, withRewrite(f, rewrite))
}
