package auditor

import (
	"fmt"
	"strconv"
	"strings"

	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

// columnType returns the declared type of col from the tree or the catalog.
func columnType(ctx *Context, col *expr.Column) string {
	if col.Type != "" {
		return col.Type
	}
	t, _ := ctx.Catalog.ColumnType(col.Table, col.Name)
	return t
}

// conversionNeeded reports whether comparing a column of declared type decl
// with lit makes the database convert the column.
func conversionNeeded(decl string, lit *expr.Literal) bool {
	colClass, litClass := columnTypeClass(decl), literalTypeClass(lit)
	if colClass == typeUnknown || litClass == typeUnknown || colClass == typeJSON {
		return false
	}
	switch colClass {
	case typeString:
		return litClass == typeNumeric
	case typeNumeric:
		if litClass == typeString {
			_, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
			return err != nil
		}
		return lit.Type == expr.LitFloat && integerType(decl)
	case typeTemporal:
		return litClass == typeNumeric || litClass == typeBool
	case typeBool:
		return litClass == typeString
	}
	return false
}

func integerType(decl string) bool {
	t := strings.ToLower(decl)
	return strings.Contains(t, "int") || strings.Contains(t, "serial")
}

// checkImplicitConversion flags comparisons between a typed column and a
// literal of another type, which cast the column instead of the constant.
func checkImplicitConversion(ctx *Context, n expr.Node, _ []expr.Node) []model.Finding {
	var col *expr.Column
	var lits []expr.Node
	switch p := n.(type) {
	case *expr.BinaryOp:
		if c, ok := p.Left.(*expr.Column); ok {
			col, lits = c, []expr.Node{p.Right}
		} else if c, ok := p.Right.(*expr.Column); ok {
			col, lits = c, []expr.Node{p.Left}
		}
	case *expr.InList:
		if c, ok := p.Operand.(*expr.Column); ok {
			col, lits = c, p.List
		}
	}
	if col == nil {
		return nil
	}
	decl := columnType(ctx, col)
	if decl == "" {
		return nil
	}
	for _, l := range lits {
		lit, ok := l.(*expr.Literal)
		if !ok || !conversionNeeded(decl, lit) {
			continue
		}
		f := ctx.finding(model.R4, model.SeverityBlocks, n,
			fmt.Sprintf("%s is %s but is compared with %s literal %s; the column is converted per row",
				expr.Format(col), decl, literalTypeClass(lit), expr.Format(lit)))
		f = withRewrite(f, fmt.Sprintf("write the constant as a %s value", columnTypeClass(decl)))
		return []model.Finding{withIndex(f, plainIndexFor(ctx, col))}
	}
	return nil
}
