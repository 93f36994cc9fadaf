package parser

import (
	"strings"

	"github.com/pingcap/tidb/parser/ast"
)

// ExtractTableNames extracts all table names mentioned in a SQL statement.
// Supports Select, Update, Delete and Insert statements.
func ExtractTableNames(node ast.StmtNode) []string {
	var tables []string
	add := func(_ *ast.TableSource, tn *ast.TableName) {
		tables = append(tables, tn.Name.O)
	}

	switch stmt := node.(type) {
	case *ast.SelectStmt:
		if stmt.From != nil {
			collectSources(stmt.From.TableRefs, add)
		}
	case *ast.UpdateStmt:
		if stmt.TableRefs != nil && stmt.TableRefs.TableRefs != nil {
			collectSources(stmt.TableRefs.TableRefs, add)
		}
	case *ast.DeleteStmt:
		if stmt.TableRefs != nil && stmt.TableRefs.TableRefs != nil {
			collectSources(stmt.TableRefs.TableRefs, add)
		}
	case *ast.InsertStmt:
		if stmt.Table != nil {
			collectSources(stmt.Table.TableRefs, add)
		}
	}

	return tables
}

// NormalizePlaceholders rewrites `$1` and `:name` bind parameters to `?` so
// that statements written for other drivers parse. The `?` is padded with
// spaces to the parameter's width, keeping byte offsets unchanged. Quoted
// text and `::` casts are left alone.
func NormalizePlaceholders(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))

	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if quote != 0 {
			sb.WriteByte(ch)
			if ch == '\\' && quote != '`' && i+1 < len(sql) {
				i++
				sb.WriteByte(sql[i])
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '$':
			if j := scan(sql, i+1, isDigit); j > i+1 {
				placeholder(&sb, j-i)
				i = j - 1
				continue
			}
		case ':':
			if i+1 < len(sql) && sql[i+1] == ':' {
				sb.WriteString("::")
				i++
				continue
			}
			if i > 0 && sql[i-1] == ':' {
				break
			}
			if j := scan(sql, i+1, isIdent); j > i+1 && !isDigit(sql[i+1]) {
				placeholder(&sb, j-i)
				i = j - 1
				continue
			}
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

func placeholder(sb *strings.Builder, width int) {
	sb.WriteByte('?')
	sb.WriteString(strings.Repeat(" ", width-1))
}

func scan(s string, from int, ok func(byte) bool) int {
	j := from
	for j < len(s) && ok(s[j]) {
		j++
	}
	return j
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
