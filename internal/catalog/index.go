// Package catalog describes the indexes available to an analysis.
//
// A Catalog is built once from caller-supplied metadata (DDL, YAML fixtures or
// code) and is read-only afterwards, so it can be shared by concurrent
// analyses.
package catalog

import (
	"fmt"
	"strings"

	"sarg-check/internal/expr"
)

// IndexKind is the access method of an index.
type IndexKind string

const (
	KindBTree    IndexKind = "btree"
	KindGIN      IndexKind = "gin"
	KindHash     IndexKind = "hash"
	KindFullText IndexKind = "fulltext"
)

// ParseIndexKind maps a user-facing kind name to an IndexKind. Empty means btree.
func ParseIndexKind(s string) (IndexKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "btree", "b-tree":
		return KindBTree, nil
	case "gin", "gist":
		return KindGIN, nil
	case "hash":
		return KindHash, nil
	case "fulltext":
		return KindFullText, nil
	}
	return "", fmt.Errorf("unknown index kind %q", s)
}

// Direction is the sort order of a key part.
type Direction uint8

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// KeyPart is one element of an index key: either a bare column or an
// expression (functional index).
type KeyPart struct {
	Column    string
	Expr      expr.Node
	Direction Direction
	// Collation is set when the key part declares one explicitly.
	Collation string
}

// ColumnPart is a shorthand for an ascending column key part.
func ColumnPart(name string) KeyPart {
	return KeyPart{Column: name}
}

// ExprPart is a shorthand for an ascending expression key part.
func ExprPart(n expr.Node) KeyPart {
	return KeyPart{Expr: n}
}

// IsExpression reports whether the key part is a functional expression.
func (k KeyPart) IsExpression() bool {
	return k.Expr != nil
}

// CaseInsensitive reports whether the key part's collation ignores case.
func (k KeyPart) CaseInsensitive() bool {
	c := strings.ToLower(k.Collation)
	return strings.HasSuffix(c, "_ci") || strings.Contains(c, "nocase") ||
		strings.Contains(c, "case_insensitive") || strings.Contains(c, "-ks-") ||
		c == "und-x-icu-ci"
}

func (k KeyPart) String() string {
	var s string
	if k.IsExpression() {
		s = "(" + expr.Format(k.Expr) + ")"
	} else {
		s = k.Column
	}
	if k.Collation != "" {
		s += " COLLATE " + k.Collation
	}
	if k.Direction == Desc {
		s += " DESC"
	}
	return s
}

// matchesColumn reports whether the key part is the bare column name.
func (k KeyPart) matchesColumn(name string) bool {
	return !k.IsExpression() && expr.Fold(k.Column) == expr.Fold(name)
}

// IndexDefinition describes one index. Key part order is fixed at
// construction.
type IndexDefinition struct {
	Name    string
	Table   string
	Kind    IndexKind
	Unique  bool
	Include []string
	// Where is the partial-index predicate, nil for a full index.
	Where expr.Node

	parts []KeyPart
}

// IndexOption configures optional index properties.
type IndexOption func(*IndexDefinition)

// WithInclude adds covering (INCLUDE) columns.
func WithInclude(cols ...string) IndexOption {
	return func(d *IndexDefinition) {
		d.Include = append(d.Include, cols...)
	}
}

// WithWhere makes the index partial.
func WithWhere(pred expr.Node) IndexOption {
	return func(d *IndexDefinition) {
		d.Where = pred
	}
}

// Unique marks the index unique.
func Unique() IndexOption {
	return func(d *IndexDefinition) {
		d.Unique = true
	}
}

// NewIndex builds an index definition. The parts slice is copied.
func NewIndex(name, table string, kind IndexKind, parts []KeyPart, opts ...IndexOption) *IndexDefinition {
	if kind == "" {
		kind = KindBTree
	}
	d := &IndexDefinition{
		Name:  name,
		Table: table,
		Kind:  kind,
		parts: append([]KeyPart(nil), parts...),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parts returns a copy of the key parts.
func (d *IndexDefinition) Parts() []KeyPart {
	return append([]KeyPart(nil), d.parts...)
}

// Len is the number of key parts.
func (d *IndexDefinition) Len() int {
	return len(d.parts)
}

// Part returns key part i.
func (d *IndexDefinition) Part(i int) KeyPart {
	return d.parts[i]
}

// IsFunctional reports whether any key part is an expression.
func (d *IndexDefinition) IsFunctional() bool {
	for _, p := range d.parts {
		if p.IsExpression() {
			return true
		}
	}
	return false
}

// IsPartial reports whether the index carries a predicate.
func (d *IndexDefinition) IsPartial() bool {
	return d.Where != nil
}

// Position returns the key position of a bare column, or -1.
func (d *IndexDefinition) Position(column string) int {
	for i, p := range d.parts {
		if p.matchesColumn(column) {
			return i
		}
	}
	return -1
}

// Covers reports whether column is stored in the index, as a key part or an
// INCLUDE column.
func (d *IndexDefinition) Covers(column string) bool {
	if d.Position(column) >= 0 {
		return true
	}
	for _, c := range d.Include {
		if expr.Fold(c) == expr.Fold(column) {
			return true
		}
	}
	return false
}

// OnTable reports whether the index may serve a column of table. An empty
// table on either side matches.
func (d *IndexDefinition) OnTable(table string) bool {
	return table == "" || d.Table == "" || expr.Fold(table) == expr.Fold(d.Table)
}

func (d *IndexDefinition) String() string {
	parts := make([]string, len(d.parts))
	for i, p := range d.parts {
		parts[i] = p.String()
	}
	s := fmt.Sprintf("%s ON %s USING %s (%s)", d.Name, d.Table, d.Kind, strings.Join(parts, ", "))
	if len(d.Include) > 0 {
		s += " INCLUDE (" + strings.Join(d.Include, ", ") + ")"
	}
	if d.Where != nil {
		s += " WHERE " + expr.Format(d.Where)
	}
	return s
}
