package auditor

import (
	"strings"

	"sarg-check/internal/expr"
)

type functionClass uint8

const (
	fnUnknown functionClass = iota
	fnBuiltin
	fnDatePart
	fnFormat
	fnCoalesce
	fnCaseFold
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var (
	datePartFunctions = set(
		"extract", "date", "year", "month", "day", "dayofmonth", "dayofweek", "dayofyear", "week",
		"weekofyear", "weekday", "quarter", "hour", "minute", "second", "date_part", "datepart",
		"date_trunc", "datetrunc", "trunc", "yearweek", "to_days", "unix_timestamp", "eomonth", "last_day",
	)
	formatFunctions = set(
		"date_format", "to_char", "format", "convert", "str", "to_varchar", "time_format", "strftime",
		"lpad", "rpad", "hex", "to_hex",
	)
	coalesceFunctions = set("coalesce", "ifnull", "isnull", "nvl", "nvl2", "nullif")
	caseFoldFunctions = set("lower", "upper", "lcase", "ucase")
	builtinFunctions  = set(
		"abs", "ceil", "ceiling", "floor", "round", "sign", "sqrt", "power", "pow", "mod", "ln", "log", "exp",
		"length", "char_length", "character_length", "octet_length", "substr", "substring", "left", "right",
		"trim", "ltrim", "rtrim", "btrim", "replace", "reverse", "concat", "concat_ws", "md5", "sha1", "sha2",
		"crc32", "ascii", "position", "locate", "instr", "strpos", "split_part", "regexp_replace",
		"translate", "unaccent", "initcap", "greatest", "least", "if", "iif", "case", "cast", "now",
		"current_timestamp", "current_date", "sysdate", "getdate", "rand", "random", "uuid", "gen_random_uuid",
		"newid", "clock_timestamp", "age", "datediff", "date_add", "date_sub", "adddate", "subdate",
		"timestampdiff", "timestampadd", "dateadd", "interval", "from_unixtime", "str_to_date", "to_date",
		"to_timestamp", "json_unquote", "json_value", "json_extract", "json_length", "soundex", "metaphone",
		"bit_length", "inet_aton", "inet_ntoa", "uuid_to_bin", "bin_to_uuid", "digest", "encode", "decode",
	)
)

func classify(name string) functionClass {
	fn := expr.Fold(name)
	switch {
	case datePartFunctions[fn]:
		return fnDatePart
	case formatFunctions[fn]:
		return fnFormat
	case coalesceFunctions[fn]:
		return fnCoalesce
	case caseFoldFunctions[fn]:
		return fnCaseFold
	case builtinFunctions[fn]:
		return fnBuiltin
	}
	return fnUnknown
}

// castClass places a CAST target type among the function classes: string
// targets format, date targets extract, the rest are generic.
func castClass(typ string) functionClass {
	t := strings.ToLower(typ)
	switch {
	case strings.Contains(t, "char"), strings.Contains(t, "text"), strings.Contains(t, "string"):
		return fnFormat
	case t == "date" || strings.HasPrefix(t, "date("):
		return fnDatePart
	}
	return fnBuiltin
}

// typeClass buckets declared column types.
type typeClass uint8

const (
	typeUnknown typeClass = iota
	typeString
	typeNumeric
	typeTemporal
	typeBool
	typeJSON
)

func columnTypeClass(decl string) typeClass {
	t := strings.ToLower(decl)
	switch {
	case t == "":
		return typeUnknown
	case strings.Contains(t, "json"):
		return typeJSON
	case strings.Contains(t, "char"), strings.Contains(t, "text"), strings.Contains(t, "enum"),
		strings.Contains(t, "string"), strings.Contains(t, "uuid"), strings.Contains(t, "citext"):
		return typeString
	case strings.Contains(t, "bool"), t == "bit", t == "bit(1)":
		return typeBool
	case strings.Contains(t, "date"), strings.Contains(t, "time"), strings.HasPrefix(t, "year"):
		return typeTemporal
	case strings.Contains(t, "int"), strings.Contains(t, "dec"), strings.Contains(t, "numeric"),
		strings.Contains(t, "float"), strings.Contains(t, "double"), strings.Contains(t, "real"),
		strings.Contains(t, "money"), strings.Contains(t, "serial"):
		return typeNumeric
	}
	return typeUnknown
}

func (c typeClass) String() string {
	switch c {
	case typeString:
		return "string"
	case typeNumeric:
		return "numeric"
	case typeTemporal:
		return "temporal"
	case typeBool:
		return "boolean"
	case typeJSON:
		return "json"
	}
	return "unknown"
}

func literalTypeClass(l *expr.Literal) typeClass {
	switch l.Type {
	case expr.LitString:
		return typeString
	case expr.LitInt, expr.LitFloat:
		return typeNumeric
	case expr.LitBool:
		return typeBool
	}
	return typeUnknown
}
