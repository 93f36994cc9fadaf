package model

import (
	"fmt"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
)

// Location represents the physical location of a code segment
type Location struct {
	FilePath string `json:"file"`
	Line     int    `json:"line"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.FilePath, l.Line)
}

// SQLSegment represents an extracted SQL statement from source code
type SQLSegment struct {
	SQL      string   `json:"sql"`
	Location Location `json:"location"`
	Language string   `json:"language,omitempty"` // e.g., "go", "python", "sql"
}

// ClauseKind names the part of a statement a predicate or key list came from.
type ClauseKind string

const (
	ClauseWhere   ClauseKind = "where"
	ClauseJoinOn  ClauseKind = "join_on"
	ClauseOrderBy ClauseKind = "order_by"
	ClauseGroupBy ClauseKind = "group_by"
	ClauseSelect  ClauseKind = "select"
)

// OrderKey is one ORDER BY or GROUP BY key.
type OrderKey struct {
	Expr expr.Node
	Desc bool
}

// Clause is one analyzable part of a statement. Predicate clauses (WHERE,
// JOIN ON) set Predicate; key clauses (ORDER BY, GROUP BY) set Keys.
type Clause struct {
	Kind      ClauseKind
	Predicate expr.Node
	Keys      []OrderKey
	// Table is the joined table for JOIN ON clauses.
	Table string
}

// Statement is a parsed statement split into clauses. Projection is the
// SELECT list; a `*` is represented by a column named "*".
type Statement struct {
	SQL        string
	Tables     []string
	Clauses    []Clause
	Projection []expr.Node
}

// Where returns the WHERE predicate, or nil.
func (s *Statement) Where() expr.Node {
	for _, c := range s.Clauses {
		if c.Kind == ClauseWhere {
			return c.Predicate
		}
	}
	return nil
}

// Purity classifies how deterministic a function is.
type Purity string

const (
	Immutable Purity = "immutable"
	Stable    Purity = "stable"
	Volatile  Purity = "volatile"
)

// ParsePurity accepts immutable, stable and volatile.
func ParsePurity(s string) (Purity, error) {
	switch p := Purity(s); p {
	case Immutable, Stable, Volatile:
		return p, nil
	}
	return "", fmt.Errorf("unknown function purity %q", s)
}

// Options configures one analysis.
type Options struct {
	Dialect catalog.Dialect
	// EnabledRules restricts the detectors that run. Empty means all.
	EnabledRules []RuleID
	// FunctionPurity maps folded function names to their purity.
	FunctionPurity map[string]Purity
	// DomainValues lists the complete value set of a column ("col" or
	// "table.col"), which makes negative predicates rewritable.
	DomainValues map[string][]string
	// DerivedColumns maps columns holding normalised copies of other data to
	// the expression they are derived from.
	DerivedColumns map[string]expr.Node
	// DerivedPatterns are name fragments marking derived columns.
	DerivedPatterns []string
}

// DefaultDerivedPatterns are the naming heuristics used when none are set.
var DefaultDerivedPatterns = []string{"_normalized", "_normalised", "_lower", "_upper", "_canonical", "_search", "_slug", "_digits"}

// RuleEnabled reports whether id runs under these options.
func (o Options) RuleEnabled(id RuleID) bool {
	if len(o.EnabledRules) == 0 {
		return true
	}
	for _, r := range o.EnabledRules {
		if r == id {
			return true
		}
	}
	return false
}

// Purity returns the configured purity of a function, defaulting to immutable.
func (o Options) Purity(fn string) Purity {
	if p, ok := o.FunctionPurity[expr.Fold(fn)]; ok {
		return p
	}
	return Immutable
}

// Domain returns the value set registered for a column.
func (o Options) Domain(col *expr.Column) ([]string, bool) {
	if col.Table != "" {
		if v, ok := o.DomainValues[expr.Fold(col.Table)+"."+expr.Fold(col.Name)]; ok {
			return v, true
		}
	}
	v, ok := o.DomainValues[expr.Fold(col.Name)]
	return v, ok
}

// Derivation returns the annotated source expression of a derived column.
func (o Options) Derivation(col *expr.Column) (expr.Node, bool) {
	if col.Table != "" {
		if v, ok := o.DerivedColumns[expr.Fold(col.Table)+"."+expr.Fold(col.Name)]; ok {
			return v, true
		}
	}
	v, ok := o.DerivedColumns[expr.Fold(col.Name)]
	return v, ok
}
