package catalog

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarg-check/internal/expr"
)

func usersCatalog() *Catalog {
	return New([]*IndexDefinition{
		NewIndex("idx_ab", "users", KindBTree, []KeyPart{ColumnPart("a"), ColumnPart("b")}),
		NewIndex("idx_lower_email", "users", KindBTree, []KeyPart{ExprPart(expr.Call("lower", expr.Col("email")))}),
		NewIndex("idx_b", "users", KindBTree, []KeyPart{ColumnPart("b")}),
		NewIndex("idx_tags", "users", KindGIN, []KeyPart{ColumnPart("tags")}),
	}, []ColumnInfo{
		{Table: "users", Name: "email", Type: "varchar(255)"},
		{Table: "orders", Name: "id", Type: "bigint"},
	})
}

func names(idxs []*IndexDefinition) []string {
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = idx.Name
	}
	return out
}

func TestLookupCandidates(t *testing.T) {
	cat := usersCatalog()

	tests := []struct {
		name string
		node expr.Node
		want []string
	}{
		{"leading column", expr.Col("a"), []string{"idx_ab"}},
		{"non-leading column", expr.Col("c"), []string{}},
		{"second column only leads idx_b", expr.Col("B"), []string{"idx_b"}},
		{"functional match", expr.Call("LOWER", expr.TableCol("users", "Email")), []string{"idx_lower_email"}},
		{"different function", expr.Call("upper", expr.Col("email")), []string{}},
		{"other table", expr.TableCol("orders", "a"), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, names(cat.LookupCandidates(tt.node)))
		})
	}
}

func TestLeftmostPrefixSatisfied(t *testing.T) {
	abc := NewIndex("idx_abc", "t", KindBTree, []KeyPart{ColumnPart("a"), ColumnPart("b"), ColumnPart("c")})

	tests := []struct {
		bound []string
		want  bool
	}{
		{[]string{"a"}, true},
		{[]string{"a", "b"}, true},
		{[]string{"a", "b", "c"}, true},
		{[]string{"b"}, false},
		{[]string{"a", "c"}, false},
		{[]string{"A", "x"}, true},
		{nil, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.bound), func(t *testing.T) {
			assert.Equal(t, tt.want, LeftmostPrefixSatisfied(abc, BoundFromColumns(tt.bound...)))
		})
	}
}

func TestAdditionalPredicates(t *testing.T) {
	abc := NewIndex("idx_abc", "t", KindBTree, []KeyPart{ColumnPart("a"), ColumnPart("b"), ColumnPart("c")})
	assert.Equal(t, 0, AdditionalPredicates(abc, BoundFromColumns("a", "b")))
	assert.Equal(t, 1, AdditionalPredicates(abc, BoundFromColumns("a", "c")))
	assert.Equal(t, 2, AdditionalPredicates(abc, BoundFromColumns("c")))
	assert.Equal(t, -1, AdditionalPredicates(abc, BoundFromColumns("z")))
}

func TestBestPath_TieBreak(t *testing.T) {
	first := NewIndex("first", "t", KindBTree, []KeyPart{ColumnPart("x"), ColumnPart("a")})
	second := NewIndex("second", "t", KindBTree, []KeyPart{ColumnPart("a"), ColumnPart("y")})
	third := NewIndex("third", "t", KindBTree, []KeyPart{ColumnPart("a")})
	cat := New([]*IndexDefinition{first, second, third}, nil)

	best, cost := cat.BestPath(BoundFromColumns("a"), nil)
	require.NotNil(t, best)
	assert.Equal(t, "second", best.Name, "declaration order breaks the tie between second and third")
	assert.Equal(t, 0, cost)

	best, cost = cat.BestPath(BoundFromColumns("a"), func(idx *IndexDefinition) bool { return idx.Name == "first" })
	require.NotNil(t, best)
	assert.Equal(t, "first", best.Name)
	assert.Equal(t, 1, cost)

	best, _ = cat.BestPath(BoundFromColumns("zzz"), nil)
	assert.Nil(t, best)
}

func TestPartsAreImmutable(t *testing.T) {
	parts := []KeyPart{ColumnPart("a"), ColumnPart("b")}
	idx := NewIndex("idx", "t", KindBTree, parts)
	parts[0] = ColumnPart("z")
	got := idx.Parts()
	got[1] = ColumnPart("y")
	assert.Equal(t, "a", idx.Part(0).Column)
	assert.Equal(t, "b", idx.Part(1).Column)
}

func TestForDialect(t *testing.T) {
	cat := New([]*IndexDefinition{
		NewIndex("btree", "t", KindBTree, []KeyPart{ColumnPart("a")}),
		NewIndex("gin", "t", KindGIN, []KeyPart{ColumnPart("doc")}),
		NewIndex("fn", "t", KindBTree, []KeyPart{ExprPart(expr.Call("lower", expr.Col("a")))}),
		NewIndex("partial", "t", KindBTree, []KeyPart{ColumnPart("b")}, WithWhere(expr.Cmp(expr.OpEQ, expr.Col("active"), expr.Int(1)))),
	}, nil)

	tests := []struct {
		dialect  Dialect
		kept     []string
		rejected []string
	}{
		{Postgres, []string{"btree", "gin", "fn", "partial"}, nil},
		{MySQL, []string{"btree", "fn"}, []string{"gin", "partial"}},
		{SQLServer, []string{"btree", "partial"}, []string{"gin", "fn"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			view, rejected := cat.ForDialect(tt.dialect)
			assert.Equal(t, tt.kept, names(view.Indexes()))
			var got []string
			for _, r := range rejected {
				assert.True(t, errors.Is(r.Err, ErrInvalidCatalogReference))
				got = append(got, r.Index.Name)
			}
			assert.Equal(t, tt.rejected, got)
		})
	}
}

func TestDuplicates(t *testing.T) {
	a := NewIndex("a", "t", KindBTree, []KeyPart{ExprPart(expr.Call("lower", expr.Col("email")))})
	b := NewIndex("b", "t", KindBTree, []KeyPart{ExprPart(expr.Call("LOWER", expr.Col("EMAIL")))})
	c := NewIndex("c", "t", KindBTree, []KeyPart{ColumnPart("email")})
	cat := New([]*IndexDefinition{a, b, c}, nil)

	assert.Equal(t, []string{"b"}, names(cat.Duplicates(a)))
	assert.Empty(t, cat.Duplicates(b))
	assert.Empty(t, cat.Duplicates(c))
}

func TestColumnType(t *testing.T) {
	cat := usersCatalog()
	typ, ok := cat.ColumnType("users", "EMAIL")
	require.True(t, ok)
	assert.Equal(t, "varchar(255)", typ)

	typ, ok = cat.ColumnType("", "id")
	require.True(t, ok)
	assert.Equal(t, "bigint", typ)

	_, ok = cat.ColumnType("users", "missing")
	assert.False(t, ok)
}

func TestUsesFunction(t *testing.T) {
	cat := New([]*IndexDefinition{
		NewIndex("by_day", "t", KindBTree, []KeyPart{ExprPart(expr.Call("date_trunc", expr.Str("day"), expr.Col("ts")))}),
		NewIndex("recent", "t", KindBTree, []KeyPart{ColumnPart("id")}, WithWhere(expr.Cmp(expr.OpGT, expr.Col("ts"), expr.Call("now")))),
	}, nil)
	assert.Equal(t, []string{"by_day"}, names(cat.UsesFunction("DATE_TRUNC")))
	assert.Equal(t, []string{"recent"}, names(cat.UsesFunction("now")))
	assert.Empty(t, cat.UsesFunction("random"))
}

func fakeParser(text string) (expr.Node, error) {
	switch text {
	case "lower(email)":
		return expr.Call("lower", expr.Col("email")), nil
	case "deleted_at IS NULL":
		return &expr.UnaryOp{Op: expr.OpIsNull, Operand: expr.Col("deleted_at")}, nil
	case "(id)":
		return expr.Col("id"), nil
	}
	return nil, fmt.Errorf("cannot parse %q", text)
}

func TestLoadYAML(t *testing.T) {
	doc := `
columns:
  - {table: users, name: email, type: varchar(255)}
indexes:
  - name: users_lower_email
    table: users
    keys:
      - expr: lower(email)
    where: deleted_at IS NULL
  - name: users_doc
    table: users
    kind: gin
    keys:
      - column: doc
  - name: users_id
    table: users
    unique: true
    keys:
      - expr: (id)
        desc: true
    include: [email]
`
	cat, err := LoadYAML(strings.NewReader(doc), fakeParser)
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())

	idxs := cat.Indexes()
	assert.True(t, idxs[0].IsFunctional())
	assert.True(t, idxs[0].IsPartial())
	assert.Equal(t, KindGIN, idxs[1].Kind)
	assert.False(t, idxs[2].IsFunctional())
	assert.Equal(t, "id", idxs[2].Part(0).Column)
	assert.Equal(t, Desc, idxs[2].Part(0).Direction)
	assert.True(t, idxs[2].Unique)
	assert.True(t, idxs[2].Covers("email"))

	typ, ok := cat.ColumnType("users", "email")
	require.True(t, ok)
	assert.Equal(t, "varchar(255)", typ)
}

func TestLoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown kind", "indexes: [{name: x, kind: bitmap, keys: [{column: a}]}]", "unknown index kind"},
		{"no keys", "indexes: [{name: x}]", "no key parts"},
		{"both column and expr", "indexes: [{name: x, keys: [{column: a, expr: lower(email)}]}]", "sets both"},
		{"bad expression", "indexes: [{name: x, keys: [{expr: 'f(('}]}]", "parse expression"},
		{"unknown field", "indexes: [{name: x, colour: red, keys: [{column: a}]}]", "decode catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.doc), fakeParser)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadYAML_NoParser(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("indexes: [{name: x, keys: [{expr: lower(email)}]}]"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs an expression parser")
}

func TestIndexString(t *testing.T) {
	idx := NewIndex("idx", "users", KindBTree,
		[]KeyPart{ExprPart(expr.Call("lower", expr.Col("email"))), {Column: "id", Direction: Desc}},
		WithInclude("name"))
	assert.Equal(t, "idx ON users USING btree ((LOWER(email)), id DESC) INCLUDE (name)", idx.String())
}
