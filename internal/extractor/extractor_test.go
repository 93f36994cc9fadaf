package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarg-check/internal/model"
)

func sqlOf(segments []model.SQLSegment) []string {
	var out []string
	for _, s := range segments {
		out = append(out, s.SQL)
	}
	return out
}

func TestRegexExtractor_Extract(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{
			name:     "Double quoted SQL",
			content:  `db.Exec("SELECT * FROM users")`,
			expected: []string{"SELECT * FROM users"},
		},
		{
			name:     "Single quoted SQL",
			content:  `cursor.execute('DELETE FROM logs WHERE id = 1')`,
			expected: []string{"DELETE FROM logs WHERE id = 1"},
		},
		{
			name:     "Backtick quoted SQL",
			content:  "`UPDATE users SET name='test'`",
			expected: []string{"UPDATE users SET name='test'"},
		},
		{
			name:     "CTE",
			content:  `q := "WITH t AS (SELECT 1) SELECT * FROM t"`,
			expected: []string{"WITH t AS (SELECT 1) SELECT * FROM t"},
		},
		{
			name:     "No SQL",
			content:  `fmt.Println("Hello world")`,
			expected: nil,
		},
		{
			name:     "Mixed quotes",
			content:  `db.Exec("DELETE FROM users"); log.Info('SELECT * FROM logs')`,
			expected: []string{"DELETE FROM users", "SELECT * FROM logs"},
		},
	}

	extractor := NewRegexExtractor("go")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := extractor.Extract("test.go", []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sqlOf(segments))
		})
	}
}

func TestRegexExtractor_MultilineRawString(t *testing.T) {
	content := "package repo\n\n" +
		"const q1 = \"SELECT id FROM a\"\n" +
		"const q2 = `\n\tSELECT *\n\tFROM users\n\tWHERE LOWER(email) = ?\n`\n" +
		"const q3 = \"SELECT id FROM b\"\n"

	segments, err := NewRegexExtractor("go").Extract("repo.go", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, "SELECT id FROM a", segments[0].SQL)
	assert.Equal(t, 3, segments[0].Location.Line)
	assert.Equal(t, "SELECT *\n\tFROM users\n\tWHERE LOWER(email) = ?", segments[1].SQL)
	assert.Equal(t, 4, segments[1].Location.Line)
	assert.Equal(t, "go", segments[1].Language)
	assert.Equal(t, 9, segments[2].Location.Line)
}

func TestSQLFileExtractor_Extract(t *testing.T) {
	content := "-- header\n" +
		"SELECT 1;\n" +
		"\n" +
		"/* c; */ SELECT 'a;b'\n" +
		"FROM t;\n" +
		"UPDATE t SET a = 1"

	segments, err := NewSQLFileExtractor().Extract("q.sql", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, "SELECT 1", segments[0].SQL)
	assert.Equal(t, 2, segments[0].Location.Line)
	assert.Equal(t, "SELECT 'a;b'\nFROM t", segments[1].SQL)
	assert.Equal(t, 4, segments[1].Location.Line)
	assert.Equal(t, "UPDATE t SET a = 1", segments[2].SQL)
	assert.Equal(t, 6, segments[2].Location.Line)
	assert.Equal(t, "sql", segments[2].Language)
}

func TestSQLFileExtractor_EscapedQuote(t *testing.T) {
	content := `SELECT id FROM t WHERE a = 'a\';b' AND c = "x\";y";` + "\nSELECT 2;"

	segments, err := NewSQLFileExtractor().Extract("q.sql", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, `SELECT id FROM t WHERE a = 'a\';b' AND c = "x\";y"`, segments[0].SQL)
	assert.Equal(t, "SELECT 2", segments[1].SQL)
	assert.Equal(t, 2, segments[1].Location.Line)
}

func TestSQLFileExtractor_Empty(t *testing.T) {
	segments, err := NewSQLFileExtractor().Extract("q.sql", []byte("-- nothing\n;;\n"))
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestManager_Extract(t *testing.T) {
	dir := t.TempDir()
	goFile := filepath.Join(dir, "a.go")
	sqlFile := filepath.Join(dir, "b.SQL")
	txtFile := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(goFile, []byte(`db.Query("SELECT 1")`), 0o644))
	require.NoError(t, os.WriteFile(sqlFile, []byte("SELECT 2; SELECT 3;"), 0o644))
	require.NoError(t, os.WriteFile(txtFile, []byte(`"SELECT 4"`), 0o644))

	m := NewDefaultManager()
	assert.Contains(t, m.Extensions(), "sql")
	assert.IsIncreasing(t, m.Extensions())

	segs, err := m.Extract(goFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 1"}, sqlOf(segs))

	segs, err = m.Extract(sqlFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 2", "SELECT 3"}, sqlOf(segs))

	segs, err = m.Extract(txtFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 4"}, sqlOf(segs))

	_, err = m.Extract(filepath.Join(dir, "missing.go"))
	assert.Error(t, err)
}
