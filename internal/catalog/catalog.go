package catalog

import (
	"errors"
	"fmt"
	"strings"

	"sarg-check/internal/expr"
)

var (
	// ErrInvalidCatalogReference marks an index or rule that needs an index
	// kind the target dialect does not support.
	ErrInvalidCatalogReference = errors.New("invalid catalog reference")
	// ErrAmbiguousStructuralMatch marks two indexes with structurally
	// identical keys.
	ErrAmbiguousStructuralMatch = errors.New("ambiguous structural match")
)

// ColumnInfo is optional column metadata used for type checks.
type ColumnInfo struct {
	Table string
	Name  string
	Type  string
}

// Catalog is an immutable set of indexes in declaration order.
type Catalog struct {
	indexes []*IndexDefinition
	columns map[string]string
}

// New builds a catalog. Declaration order of indexes is preserved and used for
// tie-breaks.
func New(indexes []*IndexDefinition, columns []ColumnInfo) *Catalog {
	c := &Catalog{
		indexes: append([]*IndexDefinition(nil), indexes...),
		columns: make(map[string]string, len(columns)*2),
	}
	for _, col := range columns {
		name := expr.Fold(col.Name)
		if col.Table != "" {
			c.columns[expr.Fold(col.Table)+"."+name] = col.Type
		}
		if _, ok := c.columns[name]; !ok {
			c.columns[name] = col.Type
		}
	}
	return c
}

// Empty returns a catalog with no indexes.
func Empty() *Catalog {
	return New(nil, nil)
}

// Indexes returns the indexes in declaration order.
func (c *Catalog) Indexes() []*IndexDefinition {
	return append([]*IndexDefinition(nil), c.indexes...)
}

// Len is the number of indexes.
func (c *Catalog) Len() int {
	return len(c.indexes)
}

// Columns returns the column metadata known to the catalog.
func (c *Catalog) Columns() map[string]string {
	out := make(map[string]string, len(c.columns))
	for k, v := range c.columns {
		out[k] = v
	}
	return out
}

// ColumnType returns the declared type of table.name. An unqualified lookup
// falls back to the first column declared with that name.
func (c *Catalog) ColumnType(table, name string) (string, bool) {
	if table != "" {
		if t, ok := c.columns[expr.Fold(table)+"."+expr.Fold(name)]; ok {
			return t, true
		}
	}
	t, ok := c.columns[expr.Fold(name)]
	return t, ok
}

// LookupCandidates returns the indexes whose leading key part is the bare
// column n, or structurally equals the expression n.
func (c *Catalog) LookupCandidates(n expr.Node) []*IndexDefinition {
	var out []*IndexDefinition
	if col, ok := n.(*expr.Column); ok {
		for _, idx := range c.indexes {
			if idx.Len() > 0 && idx.OnTable(col.Table) && idx.Part(0).matchesColumn(col.Name) {
				out = append(out, idx)
			}
		}
		return out
	}
	key := expr.Canonical(n)
	table := tableOf(n)
	for _, idx := range c.indexes {
		if idx.Len() == 0 || !idx.OnTable(table) {
			continue
		}
		p := idx.Part(0)
		if p.IsExpression() && expr.Canonical(p.Expr) == key {
			out = append(out, idx)
		}
	}
	return out
}

// IndexesWith returns the indexes holding column as a key part at any
// position.
func (c *Catalog) IndexesWith(col *expr.Column) []*IndexDefinition {
	var out []*IndexDefinition
	for _, idx := range c.indexes {
		if idx.OnTable(col.Table) && idx.Position(col.Name) >= 0 {
			out = append(out, idx)
		}
	}
	return out
}

// UsesFunction reports whether any expression key part or partial predicate
// calls the named function.
func (c *Catalog) UsesFunction(name string) []*IndexDefinition {
	var out []*IndexDefinition
	fn := expr.Fold(name)
	for _, idx := range c.indexes {
		found := false
		for _, p := range idx.parts {
			if p.IsExpression() && callsFunction(p.Expr, fn) {
				found = true
			}
		}
		if idx.Where != nil && callsFunction(idx.Where, fn) {
			found = true
		}
		if found {
			out = append(out, idx)
		}
	}
	return out
}

func callsFunction(n expr.Node, folded string) bool {
	for c := range expr.Preorder(n) {
		if fc, ok := c.(*expr.FunctionCall); ok && expr.Fold(fc.Name) == folded {
			return true
		}
	}
	return false
}

func tableOf(n expr.Node) string {
	for _, col := range expr.Columns(n) {
		if col.Table != "" {
			return col.Table
		}
	}
	return ""
}

// Bound is the set of key parts constrained by a clause, keyed by PartKey.
type Bound map[string]bool

// BoundFromColumns builds a Bound from folded column names.
func BoundFromColumns(cols ...string) Bound {
	b := make(Bound, len(cols))
	for _, c := range cols {
		b[ColumnKey(c)] = true
	}
	return b
}

// ColumnKey is the Bound key of a bare column.
func ColumnKey(name string) string {
	return expr.Fold(name)
}

// ExprKey is the Bound key of an expression.
func ExprKey(n expr.Node) string {
	if col, ok := n.(*expr.Column); ok {
		return ColumnKey(col.Name)
	}
	return "expr:" + expr.Canonical(n)
}

// PartKey is the Bound key of an index key part.
func PartKey(p KeyPart) string {
	if p.IsExpression() {
		return ExprKey(p.Expr)
	}
	return ColumnKey(p.Column)
}

// PrefixLength is the number of leading key parts of idx present in bound.
func PrefixLength(idx *IndexDefinition, bound Bound) int {
	n := 0
	for _, p := range idx.parts {
		if !bound[PartKey(p)] {
			break
		}
		n++
	}
	return n
}

// LeftmostPrefixSatisfied reports whether the key parts of idx named in bound
// form a non-empty contiguous prefix starting at the first key part.
func LeftmostPrefixSatisfied(idx *IndexDefinition, bound Bound) bool {
	prefix := PrefixLength(idx, bound)
	if prefix == 0 {
		return false
	}
	for i := prefix; i < len(idx.parts); i++ {
		if bound[PartKey(idx.parts[i])] {
			return false
		}
	}
	return true
}

// AdditionalPredicates is the number of unbound key parts of idx that precede
// its last bound key part, i.e. how many more predicates the clause needs
// before every bound part sits in the leftmost prefix. It is -1 when idx has
// no bound part.
func AdditionalPredicates(idx *IndexDefinition, bound Bound) int {
	last := -1
	for i, p := range idx.parts {
		if bound[PartKey(p)] {
			last = i
		}
	}
	if last < 0 {
		return -1
	}
	missing := 0
	for i := 0; i < last; i++ {
		if !bound[PartKey(idx.parts[i])] {
			missing++
		}
	}
	return missing
}

// BestPath picks the index that needs the fewest additional predicates to
// satisfy the leftmost-prefix rule for bound. Ties go to declaration order.
// Indexes rejected by usable (when non-nil) are skipped.
func (c *Catalog) BestPath(bound Bound, usable func(*IndexDefinition) bool) (*IndexDefinition, int) {
	var best *IndexDefinition
	bestCost := -1
	for _, idx := range c.indexes {
		if usable != nil && !usable(idx) {
			continue
		}
		cost := AdditionalPredicates(idx, bound)
		if cost < 0 {
			continue
		}
		if best == nil || cost < bestCost {
			best, bestCost = idx, cost
		}
	}
	return best, bestCost
}

// Signature is a comparison key over the full key-part list.
func (d *IndexDefinition) Signature() string {
	keys := make([]string, len(d.parts))
	for i, p := range d.parts {
		keys[i] = PartKey(p) + "/" + p.Direction.String()
	}
	return expr.Fold(d.Table) + ":" + strings.Join(keys, ",")
}

// Duplicates returns, for idx, the later-declared functional indexes with the
// same signature.
func (c *Catalog) Duplicates(idx *IndexDefinition) []*IndexDefinition {
	if !idx.IsFunctional() {
		return nil
	}
	sig := idx.Signature()
	var out []*IndexDefinition
	seen := false
	for _, other := range c.indexes {
		if other == idx {
			seen = true
			continue
		}
		if seen && other.Signature() == sig {
			out = append(out, other)
		}
	}
	return out
}

// Rejection records an index dropped from a dialect view.
type Rejection struct {
	Index *IndexDefinition
	Err   error
}

// ForDialect returns the view of c usable under d, plus the indexes it had to
// drop.
func (c *Catalog) ForDialect(d Dialect) (*Catalog, []Rejection) {
	view := &Catalog{columns: c.columns}
	var rejected []Rejection
	for _, idx := range c.indexes {
		if err := d.Check(idx); err != nil {
			rejected = append(rejected, Rejection{Index: idx, Err: err})
			continue
		}
		view.indexes = append(view.indexes, idx)
	}
	return view, rejected
}

// Dialect is the target database family.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
)

// ParseDialect accepts the dialect names and a few common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb", "tidb":
		return MySQL, nil
	case "sqlserver", "mssql", "tsql":
		return SQLServer, nil
	}
	return "", fmt.Errorf("unknown dialect %q", s)
}

// Supports reports whether the dialect offers the index kind.
func (d Dialect) Supports(kind IndexKind) bool {
	switch kind {
	case KindBTree:
		return true
	case KindGIN:
		return d == Postgres
	case KindHash:
		return d == Postgres || d == MySQL
	case KindFullText:
		return d == MySQL || d == SQLServer
	}
	return false
}

// SupportsFunctionalIndex reports whether expression key parts are allowed.
// SQL Server indexes computed columns instead.
func (d Dialect) SupportsFunctionalIndex() bool {
	return d == Postgres || d == MySQL
}

// SupportsPartialIndex reports whether partial (filtered) indexes exist.
func (d Dialect) SupportsPartialIndex() bool {
	return d == Postgres || d == SQLServer
}

// Check returns an error wrapping ErrInvalidCatalogReference when idx cannot
// exist under d.
func (d Dialect) Check(idx *IndexDefinition) error {
	if !d.Supports(idx.Kind) {
		return fmt.Errorf("%w: %s index %s is not available on %s", ErrInvalidCatalogReference, idx.Kind, idx.Name, d)
	}
	if idx.IsFunctional() && !d.SupportsFunctionalIndex() {
		return fmt.Errorf("%w: functional index %s is not available on %s", ErrInvalidCatalogReference, idx.Name, d)
	}
	if idx.IsPartial() && !d.SupportsPartialIndex() {
		return fmt.Errorf("%w: partial index %s is not available on %s", ErrInvalidCatalogReference, idx.Name, d)
	}
	return nil
}
