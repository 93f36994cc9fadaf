// Package classifier turns detector findings into sargability verdicts.
package classifier

import (
	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

// Result is the classification of one clause.
type Result struct {
	Sargability model.Sargability
	// AccessPath is the index chosen for the sargable part of the clause, nil
	// when none applies.
	AccessPath *catalog.IndexDefinition
	Verdicts   []model.Verdict
}

// Classify assigns a verdict to every top-level conjunct (or sort key) of
// clause and combines them into the clause verdict. usable filters the
// indexes considered for the access path and may be nil.
func Classify(clause model.Clause, findings []model.Finding, cat *catalog.Catalog, usable func(*catalog.IndexDefinition) bool) Result {
	if clause.Predicate == nil {
		return classifyKeys(clause, findings)
	}

	conjuncts := expr.Conjuncts(clause.Predicate)
	verdicts := make([]model.Verdict, 0, len(conjuncts))
	bound := catalog.Bound{}
	sargable, blocked := 0, false
	for _, c := range conjuncts {
		v := verdictFor(c, findings)
		verdicts = append(verdicts, v)
		switch v.Sargability {
		case model.Sargable:
			sargable++
			if key, ok := boundKey(c); ok {
				bound[key] = true
			}
		case model.NonSargable:
			blocked = true
		}
	}

	res := Result{Verdicts: verdicts}
	if cat != nil && len(bound) > 0 {
		res.AccessPath, _ = cat.BestPath(bound, usable)
	}
	switch {
	case sargable == len(conjuncts):
		res.Sargability = model.Sargable
	case sargable > 0 && leadingPath(cat, bound, usable):
		res.Sargability = model.PartiallySargable
	case blocked:
		res.Sargability = model.NonSargable
	default:
		res.Sargability = model.PartiallySargable
	}
	return res
}

func classifyKeys(clause model.Clause, findings []model.Finding) Result {
	res := Result{Sargability: model.Sargable}
	for _, k := range clause.Keys {
		v := verdictFor(k.Expr, findings)
		res.Verdicts = append(res.Verdicts, v)
		res.Sargability = model.Worst(res.Sargability, v.Sargability)
	}
	return res
}

// verdictFor classifies one predicate from the worst finding inside it.
// Informational findings do not change the verdict.
func verdictFor(n expr.Node, findings []model.Finding) model.Verdict {
	v := model.Verdict{Expr: expr.Format(n), Sargability: model.Sargable, Node: n}
	worst := model.SeverityInformational
	for _, f := range findings {
		if f.Node == nil || !expr.Contains(n, f.Node) {
			continue
		}
		v.Findings = append(v.Findings, f)
		if f.Severity.Rank() > worst.Rank() {
			worst = f.Severity
		}
	}
	v.Sargability = model.FromSeverity(worst)
	return v
}

// leadingPath reports whether the sargable conjuncts alone satisfy the
// leftmost prefix of some index.
func leadingPath(cat *catalog.Catalog, bound catalog.Bound, usable func(*catalog.IndexDefinition) bool) bool {
	if cat == nil || len(bound) == 0 {
		return false
	}
	idx, cost := cat.BestPath(bound, usable)
	return idx != nil && cost == 0
}

// boundKey returns the catalog key a sargable conjunct constrains: a bare
// column, or the expression compared against a constant.
func boundKey(n expr.Node) (string, bool) {
	if con, ok := expr.ConstraintOf(n); ok {
		return catalog.ColumnKey(con.Column.Name), true
	}
	b, ok := n.(*expr.BinaryOp)
	if !ok || !expr.IsComparison(b.Op) || b.Op == expr.OpNE {
		return "", false
	}
	switch {
	case expr.IsConstant(b.Right) && expr.HasColumn(b.Left):
		return catalog.ExprKey(b.Left), true
	case expr.IsConstant(b.Left) && expr.HasColumn(b.Right):
		return catalog.ExprKey(b.Right), true
	}
	return "", false
}
