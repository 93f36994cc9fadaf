package auditor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

func whereStmt(pred expr.Node) *model.Statement {
	return &model.Statement{Clauses: []model.Clause{{Kind: model.ClauseWhere, Predicate: pred}}}
}

func btree(name string, cols ...string) *catalog.IndexDefinition {
	parts := make([]catalog.KeyPart, len(cols))
	for i, c := range cols {
		parts[i] = catalog.ColumnPart(c)
	}
	return catalog.NewIndex(name, "users", catalog.KindBTree, parts)
}

func functional(name string, n expr.Node, opts ...catalog.IndexOption) *catalog.IndexDefinition {
	return catalog.NewIndex(name, "users", catalog.KindBTree, []catalog.KeyPart{catalog.ExprPart(n)}, opts...)
}

func cat(idxs ...*catalog.IndexDefinition) *catalog.Catalog {
	return catalog.New(idxs, nil)
}

func TestAnalyze_FunctionOnIndexedColumn(t *testing.T) {
	pred := expr.Cmp(expr.OpEQ, expr.Call("LOWER", expr.Col("email")), expr.Str("x"))

	r := Analyze(whereStmt(pred), cat(btree("idx_email", "email")), model.Options{})
	assert.Equal(t, 1, r.Count(model.R1))
	assert.Len(t, r.AllFindings(), 1)
	assert.Equal(t, model.NonSargable, r.Clauses[0].Sargability)
	assert.Equal(t, model.NonSargable, r.Sargability)
	assert.Equal(t, "idx_email", r.Clauses[0].Findings[0].Index)

	withFn := cat(btree("idx_email", "email"), functional("idx_email_lower", expr.Call("lower", expr.Col("email"))))
	r = Analyze(whereStmt(pred), withFn, model.Options{})
	assert.Zero(t, r.Count(model.R1))
	assert.Equal(t, model.Sargable, r.Clauses[0].Sargability)
	assert.Equal(t, "idx_email_lower", r.Clauses[0].AccessPath)
}

func TestAnalyze_LeftmostPrefix(t *testing.T) {
	c := cat(btree("idx_ab", "a", "b"))
	a := func() expr.Node { return expr.Cmp(expr.OpEQ, expr.Col("a"), expr.Int(1)) }
	b := func() expr.Node { return expr.Cmp(expr.OpEQ, expr.Col("b"), expr.Int(2)) }

	tests := []struct {
		name string
		pred expr.Node
		want model.Sargability
		r9   int
	}{
		{"trailing key only", b(), model.NonSargable, 1},
		{"leading key only", a(), model.Sargable, 0},
		{"full key", expr.And(a(), b()), model.Sargable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Analyze(whereStmt(tt.pred), c, model.Options{})
			assert.Equal(t, tt.r9, r.Count(model.R9))
			assert.Equal(t, tt.want, r.Clauses[0].Sargability)
		})
	}
}

func TestAnalyze_LeftmostPrefixGap(t *testing.T) {
	c := cat(btree("idx_abc", "a", "b", "c"))
	pred := expr.And(
		expr.Cmp(expr.OpEQ, expr.Col("a"), expr.Int(1)),
		expr.Cmp(expr.OpEQ, expr.Col("c"), expr.Int(3)),
	)
	r := Analyze(whereStmt(pred), c, model.Options{})
	require.Equal(t, 1, r.Count(model.R9))
	f := r.Clauses[0].Findings[0]
	assert.Equal(t, model.SeverityDegrades, f.Severity)
	assert.Contains(t, f.Message, "b")
	assert.Equal(t, model.PartiallySargable, r.Clauses[0].Sargability)
	assert.Equal(t, "idx_abc", r.Clauses[0].AccessPath)
}

func TestAnalyze_WildcardPosition(t *testing.T) {
	r := Analyze(whereStmt(expr.Like(expr.Col("name"), "%x")), cat(btree("idx_name", "name")), model.Options{})
	require.Equal(t, 1, r.Count(model.R3))
	assert.Equal(t, model.SeverityBlocks, r.Clauses[0].Findings[0].Severity)
	assert.Equal(t, "REVERSE(name) LIKE 'x%' with an index on (REVERSE(name))", r.Clauses[0].Findings[0].Rewrite)

	r = Analyze(whereStmt(expr.Like(expr.Col("name"), "x%")), cat(btree("idx_name", "name")), model.Options{})
	assert.Zero(t, r.Count(model.R3))
	assert.Equal(t, model.Sargable, r.Sargability)
}

func TestAnalyze_ArithmeticIsolation(t *testing.T) {
	pred := expr.Cmp(expr.OpGT, expr.Arith(expr.OpMul, expr.Col("amount"), expr.Float("1.2")), expr.Int(100))
	r := Analyze(whereStmt(pred), cat(btree("idx_amount", "amount")), model.Options{})
	require.Equal(t, 1, r.Count(model.R2))
	f := r.Clauses[0].Findings[0]
	assert.Contains(t, f.Rewrite, "amount >")
	assert.Contains(t, f.Rewrite, "1.2")

	folded := expr.Cmp(expr.OpGT, expr.Col("amount"), expr.Arith(expr.OpDiv, expr.Int(100), expr.Float("1.2")))
	r = Analyze(whereStmt(folded), cat(btree("idx_amount", "amount")), model.Options{})
	assert.Zero(t, r.Count(model.R2))
}

func TestAnalyze_OrAcrossColumns(t *testing.T) {
	pred := expr.Or(
		expr.Cmp(expr.OpEQ, expr.Col("first_name"), expr.Str("A")),
		expr.Cmp(expr.OpEQ, expr.Col("last_name"), expr.Str("A")),
	)
	single := cat(btree("idx_first", "first_name"), btree("idx_last", "last_name"))
	r := Analyze(whereStmt(pred), single, model.Options{})
	assert.Equal(t, 1, r.Count(model.R8))
	assert.Equal(t, model.PartiallySargable, r.Clauses[0].Sargability)

	composite := cat(btree("idx_first", "first_name"), btree("idx_last", "last_name"),
		btree("idx_name", "first_name", "last_name"))
	r = Analyze(whereStmt(pred), composite, model.Options{})
	assert.Zero(t, r.Count(model.R8))
}

func TestAnalyze_Deterministic(t *testing.T) {
	pred := expr.And(
		expr.Cmp(expr.OpEQ, expr.Call("YEAR", expr.Col("created_at")), expr.Int(2024)),
		expr.Like(expr.Col("name"), "%son"),
		expr.Cmp(expr.OpNE, expr.Col("status"), expr.Str("x")),
		expr.Cmp(expr.OpEQ, expr.Col("b"), expr.Int(1)),
	)
	c := cat(btree("idx_ab", "a", "b"), btree("idx_created", "created_at"))
	first := Analyze(whereStmt(pred), c, model.Options{})
	second := Analyze(whereStmt(pred), c, model.Options{})
	assert.Equal(t, first, second)

	var seqs []int
	for _, f := range first.Clauses[0].Findings {
		seqs = append(seqs, f.Seq)
	}
	assert.IsNonDecreasing(t, seqs)
	assert.Equal(t, []model.RuleID{model.R5, model.R3, model.R7, model.R9}, rules(first.Clauses[0].Findings))
}

func rules(fs []model.Finding) []model.RuleID {
	out := make([]model.RuleID, len(fs))
	for i, f := range fs {
		out[i] = f.Rule
	}
	return out
}

func TestAnalyze_EnabledRules(t *testing.T) {
	pred := expr.And(
		expr.Cmp(expr.OpEQ, expr.Call("LOWER", expr.Col("email")), expr.Str("x")),
		expr.Cmp(expr.OpEQ, expr.Call("YEAR", expr.Col("created_at")), expr.Int(2024)),
	)
	r := Analyze(whereStmt(pred), nil, model.Options{EnabledRules: []model.RuleID{model.R5}})
	assert.Equal(t, []model.RuleID{model.R5}, rules(r.AllFindings()))
}

func TestAnalyze_OpaqueNode(t *testing.T) {
	pred := expr.And(
		&expr.Opaque{Desc: "EXISTS subquery"},
		expr.Cmp(expr.OpEQ, expr.Col("id"), expr.Int(1)),
	)
	r := Analyze(whereStmt(pred), nil, model.Options{})
	require.Len(t, r.AllFindings(), 1)
	f := r.AllFindings()[0]
	assert.Equal(t, model.SeverityInformational, f.Severity)
	assert.ErrorIs(t, f.Err, model.ErrUnsupportedNodeKind)
	assert.Empty(t, f.Rule)
	assert.Equal(t, model.DiagnosticUnsupportedNode, f.Diagnostic)
	assert.Equal(t, model.Sargable, r.Sargability)
}

func TestAnalyze_CatalogRejection(t *testing.T) {
	gin := catalog.NewIndex("idx_tags", "users", catalog.KindGIN, []catalog.KeyPart{catalog.ColumnPart("tags")})
	r := Analyze(whereStmt(expr.Cmp(expr.OpEQ, expr.Col("id"), expr.Int(1))), cat(gin),
		model.Options{Dialect: catalog.MySQL})
	require.Len(t, r.Statement, 1)
	assert.ErrorIs(t, r.Statement[0].Err, catalog.ErrInvalidCatalogReference)
	assert.Equal(t, model.DiagnosticIgnoredIndex, r.Statement[0].Diagnostic)
	assert.Equal(t, "ignored_index", r.Statement[0].Label())
	assert.Equal(t, "idx_tags", r.Statement[0].Index)
	assert.Equal(t, "mysql", r.Dialect)
}

func TestAnalyze_AmbiguousFunctionalMatch(t *testing.T) {
	lower := func() expr.Node { return expr.Call("lower", expr.Col("email")) }
	c := cat(functional("idx_a", lower()), functional("idx_b", lower()))
	pred := expr.Cmp(expr.OpEQ, lower(), expr.Str("x"))

	r := Analyze(whereStmt(pred), c, model.Options{})
	require.Len(t, r.AllFindings(), 1)
	f := r.AllFindings()[0]
	assert.Equal(t, model.SeverityInformational, f.Severity)
	assert.ErrorIs(t, f.Err, catalog.ErrAmbiguousStructuralMatch)
	assert.Equal(t, "idx_a", f.Index)
	assert.Equal(t, model.Sargable, r.Sargability)
}

func TestAnalyze_PartialIndex(t *testing.T) {
	lower := func() expr.Node { return expr.Call("lower", expr.Col("email")) }
	active := func() expr.Node { return expr.Cmp(expr.OpEQ, expr.Col("active"), &expr.Literal{Type: expr.LitBool, Value: "TRUE"}) }
	c := cat(functional("idx_active_email", lower(), catalog.WithWhere(active())))

	r := Analyze(whereStmt(expr.Cmp(expr.OpEQ, lower(), expr.Str("x"))), c, model.Options{})
	assert.Equal(t, 1, r.Count(model.R1))

	r = Analyze(whereStmt(expr.And(expr.Cmp(expr.OpEQ, lower(), expr.Str("x")), active())), c, model.Options{})
	assert.Zero(t, r.Count(model.R1))
}

func TestAnalyze_NilCatalogDefaultsDialect(t *testing.T) {
	r := Analyze(whereStmt(expr.Cmp(expr.OpEQ, expr.Col("id"), expr.Int(1))), nil, model.Options{})
	assert.Equal(t, "postgres", r.Dialect)
	assert.Equal(t, model.Sargable, r.Sargability)
	require.Len(t, r.Clauses, 1)
	assert.Empty(t, r.Clauses[0].Findings)
}
