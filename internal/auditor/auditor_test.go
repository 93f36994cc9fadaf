package auditor

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarg-check/internal/catalog"
	"sarg-check/internal/model"
	"sarg-check/internal/parser"
)

const schema = `
CREATE TABLE users (
	id INT PRIMARY KEY,
	email VARCHAR(255),
	first_name VARCHAR(100),
	last_name VARCHAR(100),
	created_at DATETIME,
	KEY idx_email (email),
	KEY idx_name (last_name, first_name),
	KEY idx_created (created_at)
);
`

func newAuditor(t *testing.T, log *slog.Logger) *Auditor {
	t.Helper()
	p := parser.NewSQLParser()
	cat, err := p.LoadSchemaSQL(schema)
	require.NoError(t, err)
	return NewAuditor(cat, p, model.Options{Dialect: catalog.MySQL}, log)
}

func TestAuditor_Audit(t *testing.T) {
	a := newAuditor(t, nil)

	segments := []model.SQLSegment{
		{SQL: "SELECT id FROM users WHERE LOWER(email) = 'x'", Location: model.Location{FilePath: "repo.go", Line: 10}},
		{SQL: "SELECT id FROM users WHERE id = 1", Location: model.Location{FilePath: "repo.go", Line: 12}},
	}

	reports, err := a.Audit(segments)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	first := reports[0]
	assert.Equal(t, 10, first.Segment.Location.Line)
	assert.Equal(t, model.NonSargable, first.Report.Sargability)
	assert.Equal(t, 1, first.Report.Count(model.R1))
	assert.Equal(t, "mysql", first.Report.Dialect)

	assert.Equal(t, model.Sargable, reports[1].Report.Sargability)
}

func TestAuditor_Audit_ParseError(t *testing.T) {
	var buf bytes.Buffer
	a := newAuditor(t, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	segments := []model.SQLSegment{
		{SQL: "INVALID SQL syntax", Location: model.Location{FilePath: "a.go", Line: 3}},
		{SQL: "INSERT INTO users (id) VALUES (1)", Location: model.Location{FilePath: "a.go", Line: 4}},
	}

	reports, err := a.Audit(segments)
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Contains(t, buf.String(), "failed to parse SQL")
	assert.Contains(t, buf.String(), "a.go:3")
	assert.Contains(t, buf.String(), "skipping statement")
}

func TestAuditor_AuditSQL_SecondKeyOnly(t *testing.T) {
	a := newAuditor(t, nil)

	r, err := a.AuditSQL("SELECT id FROM users WHERE first_name = 'Ada'")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count(model.R9))
	assert.Equal(t, model.NonSargable, r.Sargability)

	r, err = a.AuditSQL("SELECT id FROM users WHERE last_name = 'Lovelace' AND first_name = 'Ada'")
	require.NoError(t, err)
	assert.Zero(t, r.Count(model.R9))
	assert.Equal(t, model.Sargable, r.Sargability)
}

func TestAuditor_AuditSQL_Offsets(t *testing.T) {
	a := newAuditor(t, nil)

	sql := "SELECT id FROM users WHERE id = 1 AND YEAR(created_at) = 2024 AND email LIKE '%x'"
	r, err := a.AuditSQL(sql)
	require.NoError(t, err)

	fs := r.AllFindings()
	require.Len(t, fs, 2)
	assert.Equal(t, model.R5, fs[0].Rule)
	assert.Equal(t, strings.Index(sql, "YEAR("), fs[0].Offset)
	assert.Equal(t, model.R3, fs[1].Rule)
	assert.Equal(t, strings.Index(sql, "email LIKE"), fs[1].Offset)
	assert.Greater(t, fs[1].Offset, fs[0].Offset)
}
