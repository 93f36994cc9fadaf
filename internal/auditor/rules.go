package auditor

import (
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

// Rule is one canonical detector. Node rules inspect a single node with its
// ancestry; clause rules look at the clause as a whole.
type Rule struct {
	ID       model.RuleID
	Name     string
	Severity model.Severity
	// Clauses limits the clause kinds the rule runs on.
	Clauses []model.ClauseKind

	// fanOut rules emit findings under several ids and check the enabled
	// set per finding.
	fanOut bool

	check       func(ctx *Context, n expr.Node, ancestry []expr.Node) []model.Finding
	checkClause func(ctx *Context) []model.Finding
}

func (r *Rule) appliesTo(kind model.ClauseKind) bool {
	for _, k := range r.Clauses {
		if k == kind {
			return true
		}
	}
	return false
}

var predicateClauses = []model.ClauseKind{model.ClauseWhere, model.ClauseJoinOn}

var (
	ruleFunctionOnColumn = &Rule{ID: model.R1, Name: "function_on_column", Severity: model.SeverityBlocks,
		Clauses: predicateClauses}
	ruleArithmeticOnColumn = &Rule{ID: model.R2, Name: "arithmetic_on_column", Severity: model.SeverityBlocks,
		Clauses: predicateClauses, check: checkArithmetic}
	ruleLeadingWildcard = &Rule{ID: model.R3, Name: "leading_wildcard", Severity: model.SeverityBlocks,
		Clauses: predicateClauses, check: checkLeadingWildcard}
	ruleImplicitConversion = &Rule{ID: model.R4, Name: "implicit_conversion", Severity: model.SeverityBlocks,
		Clauses: predicateClauses, check: checkImplicitConversion}
	ruleDatePartExtraction = &Rule{ID: model.R5, Name: "date_part_extraction", Severity: model.SeverityBlocks,
		Clauses: predicateClauses}
	ruleJoinExpression = &Rule{ID: model.R6, Name: "join_on_expression", Severity: model.SeverityBlocks,
		Clauses: []model.ClauseKind{model.ClauseJoinOn}, check: checkJoinExpression}
	ruleNegation = &Rule{ID: model.R7, Name: "negative_predicate", Severity: model.SeverityDegrades,
		Clauses: predicateClauses, check: checkNegation}
	ruleOrAcrossColumns = &Rule{ID: model.R8, Name: "or_across_indexes", Severity: model.SeverityDegrades,
		Clauses: predicateClauses, check: checkOrAcrossColumns}
	ruleLeftmostPrefix = &Rule{ID: model.R9, Name: "leftmost_prefix", Severity: model.SeverityBlocks,
		Clauses: predicateClauses, check: checkLeftmostPrefix}
	ruleSortWithoutIndex = &Rule{ID: model.R10, Name: "sort_without_index", Severity: model.SeverityDegrades,
		Clauses: []model.ClauseKind{model.ClauseOrderBy, model.ClauseGroupBy}, checkClause: checkSortKeys}
	ruleCoveringProjection = &Rule{ID: model.R11, Name: "uncovered_projection", Severity: model.SeverityInformational,
		Clauses: []model.ClauseKind{model.ClauseSelect}}
	ruleVolatileFunction = &Rule{ID: model.R12, Name: "volatile_function", Severity: model.SeverityBlocks,
		Clauses: predicateClauses, check: checkVolatileFunction}
	ruleJSONAccess = &Rule{ID: model.R13, Name: "json_or_array_access", Severity: model.SeverityBlocks,
		Clauses: predicateClauses, check: checkJSONAccess}
	ruleCaseInsensitive = &Rule{ID: model.R14, Name: "case_insensitive_match", Severity: model.SeverityBlocks,
		Clauses: predicateClauses, check: checkCaseInsensitive}
	ruleUserFunction = &Rule{ID: model.R15, Name: "user_defined_function", Severity: model.SeverityBlocks,
		Clauses: predicateClauses}
	ruleFormatting = &Rule{ID: model.R16, Name: "formatted_comparison", Severity: model.SeverityBlocks,
		Clauses: predicateClauses}
	ruleNullCoalesce = &Rule{ID: model.R17, Name: "null_coalesce", Severity: model.SeverityBlocks,
		Clauses: predicateClauses}
	ruleFixedWildcard = &Rule{ID: model.R18, Name: "fixed_position_wildcard", Severity: model.SeverityDegrades,
		Clauses: predicateClauses, check: checkFixedWildcard}
	ruleDisjointRanges = &Rule{ID: model.R19, Name: "disjoint_ranges", Severity: model.SeverityInformational,
		Clauses: predicateClauses, check: checkDisjointRanges}
	ruleDerivedValue = &Rule{ID: model.R20, Name: "derived_value", Severity: model.SeverityInformational,
		Clauses: predicateClauses, check: checkDerivedValue}
)

// Rules returns every rule in id order.
func Rules() []*Rule {
	return []*Rule{
		ruleFunctionOnColumn, ruleArithmeticOnColumn, ruleLeadingWildcard, ruleImplicitConversion,
		ruleDatePartExtraction, ruleJoinExpression, ruleNegation, ruleOrAcrossColumns, ruleLeftmostPrefix,
		ruleSortWithoutIndex, ruleCoveringProjection, ruleVolatileFunction, ruleJSONAccess, ruleCaseInsensitive,
		ruleUserFunction, ruleFormatting, ruleNullCoalesce, ruleFixedWildcard, ruleDisjointRanges, ruleDerivedValue,
	}
}

var clauseRules = []*Rule{ruleSortWithoutIndex}

// The function wrapper detectors (R1, R5, R15, R16, R17) share one pass that
// picks the most specific rule per wrapper, so they are dispatched once.
var (
	comparisonRules = []*Rule{
		ruleWrappers, ruleArithmeticOnColumn, ruleImplicitConversion, ruleJoinExpression,
		ruleNegation, ruleLeftmostPrefix, ruleVolatileFunction, ruleDerivedValue,
	}
	inListRules = []*Rule{
		ruleWrappers, ruleArithmeticOnColumn, ruleImplicitConversion, ruleNegation,
		ruleLeftmostPrefix, ruleVolatileFunction, ruleDerivedValue,
	}
	likeRules = []*Rule{
		ruleWrappers, ruleLeadingWildcard, ruleFixedWildcard, ruleCaseInsensitive, ruleNegation,
		ruleLeftmostPrefix, ruleVolatileFunction,
	}
	nullTestRules = []*Rule{ruleLeftmostPrefix}
	notRules      = []*Rule{ruleNegation}
	orRules       = []*Rule{ruleOrAcrossColumns, ruleDisjointRanges}
	jsonRules     = []*Rule{ruleJSONAccess}
)

// ruleWrappers fans out to R1/R5/R15/R16/R17; each emitted finding carries its
// own id and is filtered against the enabled set there.
var ruleWrappers = &Rule{ID: model.R1, Name: "function_wrappers", Clauses: predicateClauses, fanOut: true, check: checkFunctionWrappers}

// rulesFor maps a node variant to the detectors that inspect it. Variants
// returning nil are inspected through their parents.
func rulesFor(n expr.Node) []*Rule {
	switch n := n.(type) {
	case *expr.BinaryOp:
		if expr.IsComparison(n.Op) {
			return comparisonRules
		}
		return nil
	case *expr.InList:
		return inListRules
	case *expr.LikePattern:
		return likeRules
	case *expr.UnaryOp:
		if n.Op == expr.OpIsNull || n.Op == expr.OpIsNotNull {
			return nullTestRules
		}
		return nil
	case *expr.LogicalNot:
		return notRules
	case *expr.LogicalOr:
		return orRules
	case *expr.JSONAccess, *expr.ArrayOp:
		return jsonRules
	case *expr.Column, *expr.Literal, *expr.FunctionCall, *expr.Cast, *expr.LogicalAnd, *expr.Opaque:
		return nil
	}
	panic("auditor: unhandled expression variant")
}
