package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarg-check/internal/model"
)

func TestBuild_OrdersFindings(t *testing.T) {
	findings := []model.Finding{
		{Rule: model.R9, Offset: 30, Seq: 4, Severity: model.SeverityBlocks},
		{Rule: model.R3, Offset: 10, Seq: 2, Severity: model.SeverityBlocks},
		{Rule: model.R14, Offset: 10, Seq: 2, Severity: model.SeverityBlocks},
		{Rule: model.R2, Offset: 10, Seq: 1, Severity: model.SeverityBlocks},
		{Rule: model.R10, Offset: 10, Seq: 2, Severity: model.SeverityDegrades},
	}
	clauses := []model.ClauseReport{{Kind: model.ClauseWhere, Sargability: model.NonSargable, Findings: findings}}

	r := Build(&model.Statement{SQL: "SELECT 1"}, "postgres", clauses, nil)
	var got []model.RuleID
	for _, f := range r.Clauses[0].Findings {
		got = append(got, f.Rule)
	}
	assert.Equal(t, []model.RuleID{model.R2, model.R3, model.R10, model.R14, model.R9}, got)
	// the input is left untouched
	assert.Equal(t, model.R9, findings[0].Rule)
}

func TestBuild_StatementVerdict(t *testing.T) {
	tests := []struct {
		name    string
		clauses []model.Sargability
		want    model.Sargability
	}{
		{"no clauses", nil, model.Sargable},
		{"all sargable", []model.Sargability{model.Sargable, model.Sargable}, model.Sargable},
		{"one partial", []model.Sargability{model.Sargable, model.PartiallySargable}, model.PartiallySargable},
		{"worst wins", []model.Sargability{model.NonSargable, model.PartiallySargable}, model.NonSargable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var clauses []model.ClauseReport
			for i, s := range tt.clauses {
				clauses = append(clauses, model.ClauseReport{Index: i, Sargability: s})
			}
			r := Build(&model.Statement{}, "postgres", clauses, nil)
			assert.Equal(t, tt.want, r.Sargability)
		})
	}
}

func TestBuild_JSON(t *testing.T) {
	clauses := []model.ClauseReport{{
		Kind:        model.ClauseWhere,
		Sargability: model.NonSargable,
		Findings: []model.Finding{{
			Rule: model.R1, Severity: model.SeverityBlocks, Clause: model.ClauseWhere,
			Expr: "LOWER(email)", Message: "m", Rewrite: "r",
		}},
	}}
	r := Build(&model.Statement{SQL: "SELECT * FROM users WHERE LOWER(email) = 'x'"}, "postgres", clauses, nil)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "non_sargable", decoded["sargability"])
	clause := decoded["clauses"].([]any)[0].(map[string]any)
	finding := clause["findings"].([]any)[0].(map[string]any)
	assert.Equal(t, "R1", finding["rule"])
	assert.Equal(t, "blocks_index_use", finding["severity"])
	assert.NotContains(t, finding, "error")
	assert.NotContains(t, finding, "diagnostic")
	assert.NotContains(t, decoded, "statement_findings")
}

func TestBuild_JSONDiagnostic(t *testing.T) {
	diag := model.Finding{
		Diagnostic: model.DiagnosticUnsupportedNode, Severity: model.SeverityInformational,
		Clause: model.ClauseWhere, Expr: "EXISTS (SELECT 1)", Message: "not analyzed", Error: "unsupported node kind",
	}
	clauses := []model.ClauseReport{{Kind: model.ClauseWhere, Sargability: model.Sargable, Findings: []model.Finding{diag}}}
	data, err := json.Marshal(Build(&model.Statement{}, "postgres", clauses, nil))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	finding := decoded["clauses"].([]any)[0].(map[string]any)["findings"].([]any)[0].(map[string]any)
	assert.NotContains(t, finding, "rule")
	assert.Equal(t, "unsupported_node", finding["diagnostic"])
}

func TestSummarize(t *testing.T) {
	r := &model.Report{
		Clauses: []model.ClauseReport{{Findings: []model.Finding{
			{Severity: model.SeverityBlocks}, {Severity: model.SeverityDegrades}, {Severity: model.SeverityBlocks},
		}}},
		Statement: []model.Finding{{Severity: model.SeverityInformational}},
	}
	assert.Equal(t, Summary{Blocking: 2, Degrading: 1, Informational: 1}, Summarize(r))
}
