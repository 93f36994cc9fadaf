// Package report assembles clause results into the statement report.
package report

import (
	"cmp"
	"slices"

	"sarg-check/internal/model"
)

// Build assembles the report for stmt. Findings are ordered by source
// offset, pre-order sequence and rule id, so equal inputs always give equal
// reports. The statement verdict is the weakest clause verdict.
func Build(stmt *model.Statement, dialect string, clauses []model.ClauseReport, statement []model.Finding) *model.Report {
	r := &model.Report{
		SQL:         stmt.SQL,
		Dialect:     dialect,
		Sargability: model.Sargable,
		Clauses:     make([]model.ClauseReport, len(clauses)),
		Statement:   sorted(statement),
	}
	for i, c := range clauses {
		c.Findings = sorted(c.Findings)
		if c.Findings == nil {
			c.Findings = []model.Finding{}
		}
		verdicts := make([]model.Verdict, len(c.Verdicts))
		for j, v := range c.Verdicts {
			v.Findings = sorted(v.Findings)
			verdicts[j] = v
		}
		c.Verdicts = verdicts
		r.Clauses[i] = c
		r.Sargability = model.Worst(r.Sargability, c.Sargability)
	}
	return r
}

// Compare orders findings by offset, sequence, rule number and message.
func Compare(a, b model.Finding) int {
	return cmp.Or(
		cmp.Compare(a.Offset, b.Offset),
		cmp.Compare(a.Seq, b.Seq),
		cmp.Compare(a.Rule.Number(), b.Rule.Number()),
		cmp.Compare(a.Message, b.Message),
	)
}

func sorted(fs []model.Finding) []model.Finding {
	if len(fs) == 0 {
		return nil
	}
	out := slices.Clone(fs)
	slices.SortStableFunc(out, Compare)
	return out
}

// Summary counts findings per severity across a report.
type Summary struct {
	Blocking      int `json:"blocking"`
	Degrading     int `json:"degrading"`
	Informational int `json:"informational"`
}

// Summarize counts the findings of r.
func Summarize(r *model.Report) Summary {
	var s Summary
	for _, f := range r.AllFindings() {
		switch f.Severity {
		case model.SeverityBlocks:
			s.Blocking++
		case model.SeverityDegrades:
			s.Degrading++
		default:
			s.Informational++
		}
	}
	return s
}
