package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
)

// Diagnostics attached to informational findings. They never abort analysis.
var (
	// ErrUnsupportedNodeKind marks a sub-tree the engine could not inspect.
	ErrUnsupportedNodeKind = errors.New("unsupported node kind")

	ErrInvalidCatalogReference  = catalog.ErrInvalidCatalogReference
	ErrAmbiguousStructuralMatch = catalog.ErrAmbiguousStructuralMatch
)

// RuleID is one of the canonical detector codes R1..R20.
type RuleID string

const (
	R1  RuleID = "R1"
	R2  RuleID = "R2"
	R3  RuleID = "R3"
	R4  RuleID = "R4"
	R5  RuleID = "R5"
	R6  RuleID = "R6"
	R7  RuleID = "R7"
	R8  RuleID = "R8"
	R9  RuleID = "R9"
	R10 RuleID = "R10"
	R11 RuleID = "R11"
	R12 RuleID = "R12"
	R13 RuleID = "R13"
	R14 RuleID = "R14"
	R15 RuleID = "R15"
	R16 RuleID = "R16"
	R17 RuleID = "R17"
	R18 RuleID = "R18"
	R19 RuleID = "R19"
	R20 RuleID = "R20"
)

// AllRules lists every rule id in numeric order.
var AllRules = []RuleID{R1, R2, R3, R4, R5, R6, R7, R8, R9, R10, R11, R12, R13, R14, R15, R16, R17, R18, R19, R20}

// ParseRuleID accepts "R7", "r7" or "7".
func ParseRuleID(s string) (RuleID, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "R")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > len(AllRules) {
		return "", fmt.Errorf("unknown rule %q", s)
	}
	return AllRules[n-1], nil
}

// Number is the numeric part of the id, used for ordering.
func (r RuleID) Number() int {
	n, _ := strconv.Atoi(strings.TrimPrefix(string(r), "R"))
	return n
}

// Severity is how strongly a finding affects index use.
type Severity string

const (
	SeverityBlocks        Severity = "blocks_index_use"
	SeverityDegrades      Severity = "degrades_selectivity"
	SeverityInformational Severity = "informational"
)

// Rank orders severities, higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityBlocks:
		return 2
	case SeverityDegrades:
		return 1
	}
	return 0
}

// Sargability is the verdict for a predicate, clause or statement.
type Sargability string

const (
	Sargable          Sargability = "sargable"
	PartiallySargable Sargability = "partially_sargable"
	NonSargable       Sargability = "non_sargable"
)

// Rank orders verdicts, higher is worse.
func (s Sargability) Rank() int {
	switch s {
	case NonSargable:
		return 2
	case PartiallySargable:
		return 1
	}
	return 0
}

// Worst returns the weaker of two verdicts.
func Worst(a, b Sargability) Sargability {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// FromSeverity maps the worst finding severity of a predicate to a verdict.
func FromSeverity(s Severity) Sargability {
	switch s {
	case SeverityBlocks:
		return NonSargable
	case SeverityDegrades:
		return PartiallySargable
	}
	return Sargable
}

// Diagnostic names a finding that reports an analysis limit rather than a
// rule violation. Such findings carry no rule id.
type Diagnostic string

const (
	DiagnosticIgnoredIndex    Diagnostic = "ignored_index"
	DiagnosticUnsupportedNode Diagnostic = "unsupported_node"
)

// Finding is one detector result. Findings are created once and never
// modified. Exactly one of Rule and Diagnostic is set.
type Finding struct {
	Rule       RuleID     `json:"rule,omitempty"`
	Diagnostic Diagnostic `json:"diagnostic,omitempty"`
	Severity   Severity   `json:"severity"`
	Clause     ClauseKind `json:"clause"`
	// ClauseIndex is the position of the clause in the statement.
	ClauseIndex int `json:"clause_index"`
	// Offset is the source position of Node, Seq its pre-order number in the
	// clause. Together they give a stable order when spans are unknown.
	Offset  int                      `json:"offset"`
	Seq     int                      `json:"seq"`
	Expr    string                   `json:"expr"`
	Index   string                   `json:"index,omitempty"`
	Message string                   `json:"message"`
	Rewrite string                   `json:"rewrite,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Node    expr.Node                `json:"-"`
	Ref     *catalog.IndexDefinition `json:"-"`
	Err     error                    `json:"-"`
}

// Label is the rule id, or the diagnostic kind for findings without one.
func (f Finding) Label() string {
	if f.Rule != "" {
		return string(f.Rule)
	}
	return string(f.Diagnostic)
}

// Verdict is the classification of one top-level predicate.
type Verdict struct {
	Expr        string      `json:"expr"`
	Sargability Sargability `json:"sargability"`
	Findings    []Finding   `json:"findings,omitempty"`
	Node        expr.Node   `json:"-"`
}

// ClauseReport holds the findings and verdict of one clause.
type ClauseReport struct {
	Kind        ClauseKind  `json:"kind"`
	Index       int         `json:"index"`
	Sargability Sargability `json:"sargability"`
	// AccessPath is the index the classifier expects the clause to use.
	AccessPath string    `json:"access_path,omitempty"`
	Verdicts   []Verdict `json:"verdicts,omitempty"`
	Findings   []Finding `json:"findings"`
}

// Report is the result of analyzing one statement.
type Report struct {
	SQL         string         `json:"sql"`
	Dialect     string         `json:"dialect"`
	Sargability Sargability    `json:"sargability"`
	Clauses     []ClauseReport `json:"clauses"`
	// Findings not tied to a clause (catalog rejections, projection checks).
	Statement []Finding `json:"statement_findings,omitempty"`
}

// AllFindings returns every finding in report order.
func (r *Report) AllFindings() []Finding {
	var out []Finding
	for _, c := range r.Clauses {
		out = append(out, c.Findings...)
	}
	return append(out, r.Statement...)
}

// Count returns how many findings carry the rule id.
func (r *Report) Count(id RuleID) int {
	n := 0
	for _, f := range r.AllFindings() {
		if f.Rule == id {
			n++
		}
	}
	return n
}

// SegmentReport ties a report to the source segment it came from.
type SegmentReport struct {
	Segment SQLSegment `json:"segment"`
	Report  *Report    `json:"report"`
}
