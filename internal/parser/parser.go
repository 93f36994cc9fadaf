package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

var (
	// ErrUnsupportedStatement is returned for statements without analyzable
	// predicates (DDL, plain INSERT, SET ...).
	ErrUnsupportedStatement = errors.New("unsupported statement")
	// ErrNoStatement is returned when the input holds no SQL.
	ErrNoStatement = errors.New("no valid SQL found")
)

// SQLParser wraps the TiDB parser. A TiDB parser is not safe for concurrent
// use, so instances are pooled.
type SQLParser struct {
	pool sync.Pool
}

func NewSQLParser() *SQLParser {
	return &SQLParser{
		pool: sync.Pool{New: func() any { return parser.New() }},
	}
}

func (sp *SQLParser) parse(sql string) ([]ast.StmtNode, error) {
	p := sp.pool.Get().(*parser.Parser)
	defer sp.pool.Put(p)
	stmts, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, err
	}
	return stmts, nil
}

// Parse converts the first statement of sql into a model.Statement.
func (sp *SQLParser) Parse(sql string) (*model.Statement, error) {
	stmts, err := sp.parse(NormalizePlaceholders(sql))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(stmts) == 0 {
		return nil, ErrNoStatement
	}
	stmt, err := build(stmts[0], sql)
	if err != nil {
		return nil, err
	}
	stmt.SQL = sql
	return stmt, nil
}

// ParseExpr parses a standalone scalar expression such as an index key or a
// partial-index predicate. Column references stay unqualified. Spans are
// relative to text.
func (sp *SQLParser) ParseExpr(text string) (expr.Node, error) {
	const prefix = "SELECT "
	stmts, err := sp.parse(prefix + text)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", text, err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("parse expression %q: %w", text, ErrNoStatement)
	}
	sel, ok := stmts[0].(*ast.SelectStmt)
	if !ok || sel.Fields == nil || len(sel.Fields.Fields) != 1 || sel.Fields.Fields[0].Expr == nil {
		return nil, fmt.Errorf("parse expression %q: not a single expression", text)
	}
	c := &converter{src: prefix + text}
	n := c.convert(sel.Fields.Fields[0].Expr)
	for m := range expr.Preorder(n) {
		if span := m.Span(); span != (expr.Span{}) {
			expr.SetSpan(m, expr.Span{Start: span.Start - len(prefix), End: span.End - len(prefix)})
		}
	}
	return n, nil
}

// build converts node; src is the text it was parsed from.
func build(node ast.StmtNode, src string) (*model.Statement, error) {
	switch stmt := node.(type) {
	case *ast.SelectStmt:
		return buildSelect(stmt, src), nil
	case *ast.UpdateStmt:
		c := newConverter(stmt.TableRefs, src)
		s := &model.Statement{Tables: ExtractTableNames(stmt)}
		if stmt.TableRefs != nil {
			c.joins(stmt.TableRefs.TableRefs, s)
		}
		c.where(stmt.Where, s)
		c.orderBy(stmt.Order, s)
		return s, nil
	case *ast.DeleteStmt:
		c := newConverter(stmt.TableRefs, src)
		s := &model.Statement{Tables: ExtractTableNames(stmt)}
		if stmt.TableRefs != nil {
			c.joins(stmt.TableRefs.TableRefs, s)
		}
		c.where(stmt.Where, s)
		c.orderBy(stmt.Order, s)
		return s, nil
	case *ast.InsertStmt:
		if sel, ok := stmt.Select.(*ast.SelectStmt); ok {
			return buildSelect(sel, src), nil
		}
	}
	return nil, fmt.Errorf("%T: %w", node, ErrUnsupportedStatement)
}

func buildSelect(stmt *ast.SelectStmt, src string) *model.Statement {
	c := newConverter(stmt.From, src)
	s := &model.Statement{Tables: ExtractTableNames(stmt)}
	if stmt.From != nil {
		c.joins(stmt.From.TableRefs, s)
	}
	c.where(stmt.Where, s)
	if stmt.GroupBy != nil {
		s.Clauses = append(s.Clauses, model.Clause{Kind: model.ClauseGroupBy, Keys: c.keys(stmt.GroupBy.Items)})
	}
	c.orderBy(stmt.OrderBy, s)
	if stmt.Fields != nil {
		for _, f := range stmt.Fields.Fields {
			if f.WildCard != nil {
				s.Projection = append(s.Projection, expr.Col("*"))
				continue
			}
			s.Projection = append(s.Projection, c.convert(f.Expr))
		}
	}
	return s
}

// newConverter collects table aliases from a FROM clause.
func newConverter(refs *ast.TableRefsClause, src string) *converter {
	c := &converter{aliases: make(map[string]string), src: src}
	if refs == nil {
		return c
	}
	collectSources(refs.TableRefs, func(ts *ast.TableSource, tn *ast.TableName) {
		if ts.AsName.L != "" {
			c.aliases[ts.AsName.L] = tn.Name.O
		}
	})
	return c
}

func collectSources(r ast.ResultSetNode, fn func(*ast.TableSource, *ast.TableName)) {
	switch n := r.(type) {
	case *ast.Join:
		if n.Left != nil {
			collectSources(n.Left, fn)
		}
		if n.Right != nil {
			collectSources(n.Right, fn)
		}
	case *ast.TableSource:
		if tn, ok := n.Source.(*ast.TableName); ok {
			fn(n, tn)
		}
	}
}

// joins appends one JOIN ON clause per ON condition, left to right.
func (c *converter) joins(r ast.ResultSetNode, s *model.Statement) {
	j, ok := r.(*ast.Join)
	if !ok || j == nil {
		return
	}
	if j.Left != nil {
		c.joins(j.Left, s)
	}
	if j.Right != nil {
		c.joins(j.Right, s)
	}
	if j.On == nil || j.On.Expr == nil {
		return
	}
	var table string
	if ts, ok := j.Right.(*ast.TableSource); ok {
		if tn, ok := ts.Source.(*ast.TableName); ok {
			table = tn.Name.O
		}
	}
	s.Clauses = append(s.Clauses, model.Clause{Kind: model.ClauseJoinOn, Predicate: c.convert(j.On.Expr), Table: table})
}

func (c *converter) where(w ast.ExprNode, s *model.Statement) {
	if w == nil {
		return
	}
	s.Clauses = append(s.Clauses, model.Clause{Kind: model.ClauseWhere, Predicate: c.convert(w)})
}

func (c *converter) orderBy(o *ast.OrderByClause, s *model.Statement) {
	if o == nil || len(o.Items) == 0 {
		return
	}
	s.Clauses = append(s.Clauses, model.Clause{Kind: model.ClauseOrderBy, Keys: c.keys(o.Items)})
}

func (c *converter) keys(items []*ast.ByItem) []model.OrderKey {
	keys := make([]model.OrderKey, 0, len(items))
	for _, it := range items {
		keys = append(keys, model.OrderKey{Expr: c.convert(it.Expr), Desc: it.Desc})
	}
	return keys
}

// LoadSchema reads a DDL file and builds a catalog from its CREATE TABLE and
// CREATE INDEX statements.
func (sp *SQLParser) LoadSchema(path string) (*catalog.Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return sp.LoadSchemaSQL(string(content))
}

// LoadSchemaSQL is LoadSchema over DDL text.
func (sp *SQLParser) LoadSchemaSQL(ddl string) (*catalog.Catalog, error) {
	stmts, err := sp.parse(ddl)
	if err != nil {
		return nil, fmt.Errorf("schema parse error: %w", err)
	}

	var (
		indexes []*catalog.IndexDefinition
		columns []catalog.ColumnInfo
	)
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.CreateTableStmt:
			cols, idxs := parseCreateTable(s)
			columns = append(columns, cols...)
			indexes = append(indexes, idxs...)
		case *ast.CreateIndexStmt:
			indexes = append(indexes, parseCreateIndex(s))
		}
	}
	return catalog.New(indexes, columns), nil
}

func parseCreateTable(node *ast.CreateTableStmt) ([]catalog.ColumnInfo, []*catalog.IndexDefinition) {
	table := node.Table.Name.O
	c := &converter{}

	var (
		cols []catalog.ColumnInfo
		idxs []*catalog.IndexDefinition
	)
	for _, col := range node.Cols {
		name := col.Name.Name.O
		typ := ""
		if col.Tp != nil {
			typ = strings.ToLower(col.Tp.String())
		}
		cols = append(cols, catalog.ColumnInfo{Table: table, Name: name, Type: typ})
		for _, opt := range col.Options {
			switch opt.Tp {
			case ast.ColumnOptionPrimaryKey:
				idxs = append(idxs, catalog.NewIndex("PRIMARY", table, catalog.KindBTree,
					[]catalog.KeyPart{catalog.ColumnPart(name)}, catalog.Unique()))
			case ast.ColumnOptionUniqKey:
				idxs = append(idxs, catalog.NewIndex(name, table, catalog.KindBTree,
					[]catalog.KeyPart{catalog.ColumnPart(name)}, catalog.Unique()))
			}
		}
	}

	for _, cons := range node.Constraints {
		kind := indexKind(cons.Option)
		var opts []catalog.IndexOption
		switch cons.Tp {
		case ast.ConstraintPrimaryKey, ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			opts = append(opts, catalog.Unique())
		case ast.ConstraintKey, ast.ConstraintIndex:
		case ast.ConstraintFulltext:
			kind = catalog.KindFullText
		default:
			continue
		}
		parts := c.keyParts(cons.Keys)
		name := cons.Name
		if cons.Tp == ast.ConstraintPrimaryKey {
			name = "PRIMARY"
		} else if name == "" && len(parts) > 0 {
			name = parts[0].String()
		}
		idxs = append(idxs, catalog.NewIndex(name, table, kind, parts, opts...))
	}
	return cols, idxs
}

func parseCreateIndex(node *ast.CreateIndexStmt) *catalog.IndexDefinition {
	table := node.Table.Name.O
	c := &converter{}
	kind := indexKind(node.IndexOption)
	var opts []catalog.IndexOption
	switch node.KeyType {
	case ast.IndexKeyTypeUnique:
		opts = append(opts, catalog.Unique())
	case ast.IndexKeyTypeFullText:
		kind = catalog.KindFullText
	}
	return catalog.NewIndex(node.IndexName, table, kind, c.keyParts(node.IndexPartSpecifications), opts...)
}

func (c *converter) keyParts(specs []*ast.IndexPartSpecification) []catalog.KeyPart {
	parts := make([]catalog.KeyPart, 0, len(specs))
	for _, spec := range specs {
		var part catalog.KeyPart
		if spec.Expr != nil {
			part = catalog.ExprPart(c.convert(spec.Expr))
		} else if spec.Column != nil {
			part = catalog.ColumnPart(spec.Column.Name.O)
		} else {
			continue
		}
		if spec.Desc {
			part.Direction = catalog.Desc
		}
		parts = append(parts, part)
	}
	return parts
}

// indexKind maps USING BTREE/HASH to a catalog kind. Anything else, including
// no USING clause, is a btree.
func indexKind(opt *ast.IndexOption) catalog.IndexKind {
	if opt == nil {
		return catalog.KindBTree
	}
	kind, err := catalog.ParseIndexKind(opt.Tp.String())
	if err != nil {
		return catalog.KindBTree
	}
	return kind
}
