package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"sarg-check/internal/expr"
)

// ExprParser turns SQL expression text into a tree. The parser adapter
// provides one; catalogs without expression keys may pass nil.
type ExprParser func(text string) (expr.Node, error)

type fileColumn struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
}

type fileKey struct {
	Column    string `yaml:"column"`
	Expr      string `yaml:"expr"`
	Desc      bool   `yaml:"desc"`
	Collation string `yaml:"collation"`
}

type fileIndex struct {
	Name    string    `yaml:"name"`
	Table   string    `yaml:"table"`
	Kind    string    `yaml:"kind"`
	Unique  bool      `yaml:"unique"`
	Keys    []fileKey `yaml:"keys"`
	Include []string  `yaml:"include"`
	Where   string    `yaml:"where"`
}

type file struct {
	Columns []fileColumn `yaml:"columns"`
	Indexes []fileIndex  `yaml:"indexes"`
}

// LoadYAML reads a catalog fixture.
//
//	columns:
//	  - {table: users, name: email, type: varchar(255)}
//	indexes:
//	  - name: users_lower_email
//	    table: users
//	    keys: [{expr: "lower(email)"}]
//	    where: "deleted_at IS NULL"
func LoadYAML(r io.Reader, parse ExprParser) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	columns := make([]ColumnInfo, 0, len(f.Columns))
	for _, c := range f.Columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column without name in table %q", c.Table)
		}
		columns = append(columns, ColumnInfo{Table: c.Table, Name: c.Name, Type: c.Type})
	}

	indexes := make([]*IndexDefinition, 0, len(f.Indexes))
	for i, fi := range f.Indexes {
		idx, err := fi.build(parse)
		if err != nil {
			return nil, fmt.Errorf("index #%d (%s): %w", i+1, fi.Name, err)
		}
		indexes = append(indexes, idx)
	}
	return New(indexes, columns), nil
}

// LoadFile reads a catalog fixture from path.
func LoadFile(path string, parse ExprParser) (*Catalog, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return LoadYAML(fh, parse)
}

func (fi fileIndex) build(parse ExprParser) (*IndexDefinition, error) {
	kind, err := ParseIndexKind(fi.Kind)
	if err != nil {
		return nil, err
	}
	if len(fi.Keys) == 0 {
		return nil, fmt.Errorf("no key parts")
	}
	parts := make([]KeyPart, 0, len(fi.Keys))
	for _, k := range fi.Keys {
		var part KeyPart
		switch {
		case k.Column != "" && k.Expr != "":
			return nil, fmt.Errorf("key part sets both column %q and expr %q", k.Column, k.Expr)
		case k.Column != "":
			part.Column = k.Column
		case k.Expr != "":
			n, err := parseExpr(parse, k.Expr)
			if err != nil {
				return nil, err
			}
			// A parenthesised bare column is still a column key part.
			if col, ok := n.(*expr.Column); ok {
				part.Column = col.Name
			} else {
				part.Expr = n
			}
		default:
			return nil, fmt.Errorf("empty key part")
		}
		if k.Desc {
			part.Direction = Desc
		}
		part.Collation = k.Collation
		parts = append(parts, part)
	}

	var opts []IndexOption
	if fi.Unique {
		opts = append(opts, Unique())
	}
	if len(fi.Include) > 0 {
		opts = append(opts, WithInclude(fi.Include...))
	}
	if fi.Where != "" {
		n, err := parseExpr(parse, fi.Where)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithWhere(n))
	}
	name := fi.Name
	if name == "" {
		name = fmt.Sprintf("%s_idx", fi.Table)
	}
	return NewIndex(name, fi.Table, kind, parts, opts...), nil
}

func parseExpr(parse ExprParser, text string) (expr.Node, error) {
	if parse == nil {
		return nil, fmt.Errorf("expression %q needs an expression parser", text)
	}
	n, err := parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", text, err)
	}
	return n, nil
}
