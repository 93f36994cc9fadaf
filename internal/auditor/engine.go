package auditor

import (
	"fmt"

	"sarg-check/internal/catalog"
	"sarg-check/internal/classifier"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
	"sarg-check/internal/report"
)

// Analyze runs every enabled detector over stmt against cat and returns the
// classified report. It does not retain stmt or cat, and it is safe to call
// concurrently.
func Analyze(stmt *model.Statement, cat *catalog.Catalog, opts model.Options) *model.Report {
	if cat == nil {
		cat = catalog.Empty()
	}
	if opts.Dialect == "" {
		opts.Dialect = catalog.Postgres
	}
	view, rejected := cat.ForDialect(opts.Dialect)

	var stmtFindings []model.Finding
	for i, r := range rejected {
		stmtFindings = append(stmtFindings, model.Finding{
			Diagnostic:  model.DiagnosticIgnoredIndex,
			Severity:    model.SeverityInformational,
			Clause:      model.ClauseSelect,
			ClauseIndex: -1,
			Seq:         i,
			Expr:        r.Index.String(),
			Index:       r.Index.Name,
			Message:     fmt.Sprintf("index %s ignored", r.Index.Name),
			Error:       r.Err.Error(),
			Ref:         r.Index,
			Err:         r.Err,
		})
	}
	where := stmt.Where()
	clauses := make([]model.ClauseReport, 0, len(stmt.Clauses))
	for i := range stmt.Clauses {
		ctx := newContext(stmt, i, view, opts)
		findings := ctx.run()
		res := classifier.Classify(stmt.Clauses[i], findings, view, ctx.usable)
		clauses = append(clauses, model.ClauseReport{
			Kind:        stmt.Clauses[i].Kind,
			Index:       i,
			Sargability: res.Sargability,
			AccessPath:  indexName(res.AccessPath),
			Verdicts:    res.Verdicts,
			Findings:    findings,
		})
	}

	if opts.RuleEnabled(model.R11) && len(stmt.Projection) > 0 {
		ctx := newContext(stmt, -1, view, opts)
		ctx.predicate = where
		stmtFindings = append(stmtFindings, checkCoveringProjection(ctx)...)
	}

	return report.Build(stmt, string(opts.Dialect), clauses, stmtFindings)
}

func indexName(idx *catalog.IndexDefinition) string {
	if idx == nil {
		return ""
	}
	return idx.Name
}

// Context is the read-only state shared by the detectors of one clause.
type Context struct {
	Catalog   *catalog.Catalog
	Options   model.Options
	Statement *model.Statement
	Clause    model.Clause
	ClauseIdx int
	// Conjuncts are the top-level conjuncts of the clause predicate.
	Conjuncts []expr.Node
	// Bound holds columns constrained by WHERE and by the clause itself;
	// EqBound only the equality-constrained ones.
	Bound   catalog.Bound
	EqBound catalog.Bound

	predicate  expr.Node
	referenced map[string]bool
	seq        map[expr.Node]int
}

func newContext(stmt *model.Statement, idx int, cat *catalog.Catalog, opts model.Options) *Context {
	ctx := &Context{
		Catalog:    cat,
		Options:    opts,
		Statement:  stmt,
		ClauseIdx:  idx,
		Bound:      catalog.Bound{},
		EqBound:    catalog.Bound{},
		referenced: map[string]bool{},
		seq:        map[expr.Node]int{},
	}
	var preds []expr.Node
	if where := stmt.Where(); where != nil {
		preds = append(preds, where)
	}
	if idx >= 0 {
		ctx.Clause = stmt.Clauses[idx]
		ctx.predicate = ctx.Clause.Predicate
		if ctx.predicate != nil && ctx.Clause.Kind != model.ClauseWhere {
			preds = append(preds, ctx.predicate)
		}
		ctx.Conjuncts = expr.Conjuncts(ctx.predicate)
		n := 0
		for _, root := range ctx.roots() {
			for node := range expr.Preorder(root) {
				ctx.seq[node] = n
				n++
			}
		}
	} else {
		ctx.Clause = model.Clause{Kind: model.ClauseSelect}
	}
	for _, p := range preds {
		for col, eq := range expr.BoundColumns(p) {
			ctx.Bound[col] = true
			if eq {
				ctx.EqBound[col] = true
			}
		}
		for _, c := range expr.Columns(p) {
			ctx.referenced[expr.Fold(c.Name)] = true
		}
	}
	return ctx
}

// roots returns the trees of the clause in source order.
func (ctx *Context) roots() []expr.Node {
	if ctx.Clause.Predicate != nil {
		return []expr.Node{ctx.Clause.Predicate}
	}
	roots := make([]expr.Node, 0, len(ctx.Clause.Keys))
	for _, k := range ctx.Clause.Keys {
		roots = append(roots, k.Expr)
	}
	return roots
}

// usable reports whether idx can serve this clause. A partial index needs
// every column of its predicate to be referenced by the statement filters.
func (ctx *Context) usable(idx *catalog.IndexDefinition) bool {
	if idx.Where == nil {
		return true
	}
	for _, c := range expr.Columns(idx.Where) {
		if !ctx.referenced[expr.Fold(c.Name)] {
			return false
		}
	}
	return true
}

func (ctx *Context) filter(idxs []*catalog.IndexDefinition) []*catalog.IndexDefinition {
	out := idxs[:0:0]
	for _, idx := range idxs {
		if ctx.usable(idx) {
			out = append(out, idx)
		}
	}
	return out
}

// candidates is LookupCandidates restricted to usable indexes.
func (ctx *Context) candidates(n expr.Node) []*catalog.IndexDefinition {
	return ctx.filter(ctx.Catalog.LookupCandidates(n))
}

// topLevel reports whether the node at ancestry is a top-level conjunct.
func (ctx *Context) topLevel(ancestry []expr.Node) bool {
	for _, a := range ancestry {
		if _, ok := a.(*expr.LogicalAnd); !ok {
			return false
		}
	}
	return true
}

func (ctx *Context) finding(rule model.RuleID, sev model.Severity, n expr.Node, msg string) model.Finding {
	f := model.Finding{
		Rule:        rule,
		Severity:    sev,
		Clause:      ctx.Clause.Kind,
		ClauseIndex: ctx.ClauseIdx,
		Offset:      n.Span().Start,
		Seq:         ctx.seq[n],
		Expr:        expr.Format(n),
		Message:     msg,
		Node:        n,
	}
	return f
}

func withRewrite(f model.Finding, rewrite string) model.Finding {
	f.Rewrite = rewrite
	return f
}

func withIndex(f model.Finding, idx *catalog.IndexDefinition) model.Finding {
	if idx != nil {
		f.Ref = idx
		f.Index = idx.Name
	}
	return f
}

func withErr(f model.Finding, err error) model.Finding {
	f.Err = err
	f.Error = err.Error()
	return f
}

// matchFunctional looks for a usable functional index on n. ambiguous is set
// when a later index has the same key signature.
func (ctx *Context) matchFunctional(n expr.Node) (idx *catalog.IndexDefinition, ambiguous []*catalog.IndexDefinition) {
	found := ctx.candidates(n)
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], ctx.filter(ctx.Catalog.Duplicates(found[0]))
}

// suppressed reports whether a functional index covers n. A match shared by
// several identical indexes adds an informational finding.
func (ctx *Context) suppressed(rule model.RuleID, n expr.Node, out *[]model.Finding) bool {
	idx, ambiguous := ctx.matchFunctional(n)
	if idx == nil {
		return false
	}
	if len(ambiguous) > 0 {
		err := fmt.Errorf("%w: %s also matches %s", catalog.ErrAmbiguousStructuralMatch, indexName(ambiguous[0]), idx.Name)
		f := ctx.finding(rule, model.SeverityInformational, n,
			fmt.Sprintf("%s is served by %s; %d identical index(es) ignored", expr.Format(n), idx.Name, len(ambiguous)))
		*out = append(*out, withErr(withIndex(f, idx), err))
	}
	return true
}

// run walks the clause and dispatches every node to its detectors.
func (ctx *Context) run() []model.Finding {
	var out []model.Finding
	for _, root := range ctx.roots() {
		expr.Walk(root, func(n expr.Node, ancestry []expr.Node) bool {
			if op, ok := n.(*expr.Opaque); ok {
				f := ctx.finding("", model.SeverityInformational, n, fmt.Sprintf("%s not analyzed", op.Desc))
				f.Diagnostic = model.DiagnosticUnsupportedNode
				out = append(out, withErr(f, fmt.Errorf("%w: %s", model.ErrUnsupportedNodeKind, op.Desc)))
				return false
			}
			for _, r := range rulesFor(n) {
				out = append(out, ctx.apply(r, n, ancestry)...)
			}
			return true
		})
	}
	for _, r := range clauseRules {
		if ctx.Options.RuleEnabled(r.ID) && r.appliesTo(ctx.Clause.Kind) {
			out = append(out, r.checkClause(ctx)...)
		}
	}
	return out
}

func (ctx *Context) apply(r *Rule, n expr.Node, ancestry []expr.Node) []model.Finding {
	if !r.appliesTo(ctx.Clause.Kind) || (!r.fanOut && !ctx.Options.RuleEnabled(r.ID)) {
		return nil
	}
	return r.check(ctx, n, ancestry)
}
