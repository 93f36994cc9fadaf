package extractor

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"sarg-check/internal/model"
)

// RegexExtractor finds quoted SQL literals in host-language sources.
type RegexExtractor struct {
	language string
}

func NewRegexExtractor(language string) *RegexExtractor {
	return &RegexExtractor{language: language}
}

// Patterns for different quote types. Double and single quoted strings are
// matched line by line; backtick (raw) strings may span lines.
// We can't use backreferences in Go regexp (RE2)
var (
	doubleQuoteSQL = regexp.MustCompile(`"(?i)(?:SELECT|INSERT|UPDATE|DELETE|WITH)\b.*?"`)
	singleQuoteSQL = regexp.MustCompile(`'(?i)(?:SELECT|INSERT|UPDATE|DELETE|WITH)\b.*?'`)
	backTickSQL    = regexp.MustCompile("`(?is)\\s*(?:SELECT|INSERT|UPDATE|DELETE|WITH)\\b[^`]*`")
)

func (e *RegexExtractor) Extract(filePath string, content []byte) ([]model.SQLSegment, error) {
	var segments []model.SQLSegment
	add := func(match string, line int) {
		if len(match) < 2 {
			return
		}
		segments = append(segments, model.SQLSegment{
			SQL:      strings.TrimSpace(match[1 : len(match)-1]),
			Location: model.Location{FilePath: filePath, Line: line},
			Language: e.language,
		})
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, re := range []*regexp.Regexp{doubleQuoteSQL, singleQuoteSQL} {
			for _, match := range re.FindAllString(line, -1) {
				add(match, lineNo)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, loc := range backTickSQL.FindAllIndex(content, -1) {
		add(string(content[loc[0]:loc[1]]), 1+bytes.Count(content[:loc[0]], []byte("\n")))
	}

	// keep source order when raw strings interleave with quoted ones
	slices.SortStableFunc(segments, func(a, b model.SQLSegment) int {
		return a.Location.Line - b.Location.Line
	})
	return segments, nil
}

// SQLFileExtractor splits .sql files into statements.
type SQLFileExtractor struct{}

func NewSQLFileExtractor() *SQLFileExtractor {
	return &SQLFileExtractor{}
}

// Extract returns one segment per semicolon-terminated statement. Semicolons
// inside quotes and comments do not split. Each segment records the line its
// first token is on.
func (e *SQLFileExtractor) Extract(filePath string, content []byte) ([]model.SQLSegment, error) {
	var (
		segments []model.SQLSegment
		sb       strings.Builder
		line     = 1
		start    = 0
		quote    byte
	)
	flush := func() {
		if sql := strings.TrimSpace(sb.String()); sql != "" {
			segments = append(segments, model.SQLSegment{
				SQL:      sql,
				Location: model.Location{FilePath: filePath, Line: start},
				Language: "sql",
			})
		}
		sb.Reset()
		start = 0
	}

	src := string(content)
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if ch == '\n' {
			line++
		}
		switch {
		case quote != 0:
			if ch == '\\' && quote != '`' && i+1 < len(src) {
				// the escaped byte never closes the quote
				sb.WriteByte(ch)
				i++
				ch = src[i]
				if ch == '\n' {
					line++
				}
			} else if ch == quote {
				quote = 0
			}
		case ch == '-' && strings.HasPrefix(src[i:], "--"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				line++
				sb.WriteByte('\n')
			}
			continue
		case ch == '/' && strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
				continue
			}
			line += strings.Count(src[i:i+2+end+2], "\n")
			i += 2 + end + 1
			sb.WriteByte(' ')
			continue
		case ch == ';':
			flush()
			continue
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		}
		if start == 0 && !isSpace(ch) {
			start = line
		}
		sb.WriteByte(ch)
	}
	flush()
	return segments, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Manager selects the appropriate extractor based on file extension
type Manager struct {
	extractors map[string]model.Extractor
}

func NewManager() *Manager {
	return &Manager{
		extractors: make(map[string]model.Extractor),
	}
}

// NewDefaultManager registers the regex extractor for common host languages
// and the statement splitter for .sql files.
func NewDefaultManager() *Manager {
	m := NewManager()
	for ext, lang := range map[string]string{
		"go": "go", "py": "python", "java": "java", "kt": "kotlin", "js": "javascript",
		"ts": "typescript", "rb": "ruby", "php": "php", "cs": "csharp", "cpp": "cpp",
	} {
		m.Register(ext, NewRegexExtractor(lang))
	}
	m.Register("sql", NewSQLFileExtractor())
	return m
}

func (m *Manager) Register(ext string, extr model.Extractor) {
	m.extractors[strings.ToLower(strings.TrimPrefix(ext, "."))] = extr
}

// Extensions lists the registered extensions in sorted order.
func (m *Manager) Extensions() []string {
	exts := make([]string, 0, len(m.extractors))
	for ext := range m.extractors {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

func (m *Manager) Extract(filePath string) ([]model.SQLSegment, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	if extr, ok := m.extractors[ext]; ok {
		return extr.Extract(filePath, content)
	}
	return NewRegexExtractor(ext).Extract(filePath, content)
}
