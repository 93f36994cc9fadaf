package expr

import "strconv"

// Shorthand constructors for building trees by hand.

func Col(name string) *Column { return &Column{Name: name} }

func TableCol(table, name string) *Column { return &Column{Table: table, Name: name} }

func Str(v string) *Literal { return &Literal{Type: LitString, Value: v} }

func Int(v int64) *Literal { return &Literal{Type: LitInt, Value: strconv.FormatInt(v, 10)} }

func Float(v string) *Literal { return &Literal{Type: LitFloat, Value: v} }

func Param(name string) *Literal { return &Literal{Type: LitParam, Value: name} }

func Null() *Literal { return &Literal{Type: LitNull, Value: "NULL"} }

func Call(name string, args ...Node) *FunctionCall { return &FunctionCall{Name: name, Args: args} }

func Cmp(op string, left, right Node) *BinaryOp { return &BinaryOp{Op: op, Left: left, Right: right} }

func Arith(op string, left, right Node) *BinaryOp { return &BinaryOp{Op: op, Left: left, Right: right} }

func And(terms ...Node) *LogicalAnd { return &LogicalAnd{Terms: terms} }

func Or(terms ...Node) *LogicalOr { return &LogicalOr{Terms: terms} }

func Not(n Node) *LogicalNot { return &LogicalNot{Operand: n} }

func In(operand Node, list ...Node) *InList { return &InList{Operand: operand, List: list} }

func NotIn(operand Node, list ...Node) *InList {
	return &InList{Operand: operand, List: list, Negated: true}
}

func Like(operand Node, pattern string) *LikePattern {
	return &LikePattern{Operand: operand, Pattern: Str(pattern)}
}
