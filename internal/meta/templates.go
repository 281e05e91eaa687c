package meta

import (
	"maps"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Template keys with fixed meaning.
const (
	KeySelect          = "statements/select"
	KeyFrom            = "statements/from"
	KeyColumnReference = "expressions/column_reference"
	KeyAlias           = "expressions/alias"
	KeyBinary          = "expressions/binary"
	KeySort            = "expressions/sort"
	KeyWithinGroup     = "expressions/within_group"
	KeyWindowFunction  = "expressions/window_function"
	KeyQuoteIdentifier = "quotes/identifiers"
	KeyQuoteEscape     = "quotes/escape"
)

// FunctionKey returns the template key of a function.
func FunctionKey(name string) string { return "functions/" + name }

// FunctionName normalizes a function name to its template spelling. A
// Caser keeps state between calls, so each call builds its own.
func FunctionName(name string) string { return cases.Upper(language.Und).String(name) }

// AggregateFunctionKey returns the template key an aggregate call renders
// with. A distinct COUNT has its own key; other distinct aggregates use the
// plain key and receive the flag as an argument.
func AggregateFunctionKey(name string, distinct bool) string {
	n := FunctionName(name)
	if distinct && n == "COUNT" {
		n = "COUNT_DISTINCT"
	}
	return FunctionKey(n)
}

var ansiTemplates = map[string]string{
	KeySelect: `SELECT {{if .distinct}}DISTINCT {{end}}{{.select_concat}} FROM {{.from}}` +
		`{{if .where}} WHERE {{.where}}{{end}}` +
		`{{if .group_by}} GROUP BY {{.group_by}}{{end}}` +
		`{{if .having}} HAVING {{.having}}{{end}}` +
		`{{if .order_by}} ORDER BY {{.order_by}}{{end}}` +
		`{{if .limit}} LIMIT {{.limit}}{{end}}` +
		`{{if .offset}} OFFSET {{.offset}}{{end}}`,
	KeyFrom:            `{{.source}} AS {{.alias}}`,
	KeyColumnReference: `{{if .table_name}}{{.table_name}}.{{end}}{{.name}}`,
	KeyAlias:           `{{.expr}} AS {{.quoted_alias}}`,
	KeyBinary:          `({{.left}} {{.op}} {{.right}})`,
	KeySort:            `{{.expr}} {{if .asc}}ASC{{else}}DESC{{end}}{{if .nulls_first}} NULLS FIRST{{else}} NULLS LAST{{end}}`,
	KeyWithinGroup:     `{{.fun_sql}} WITHIN GROUP (ORDER BY {{.within_group_concat}})`,
	KeyWindowFunction: `{{.fun_call}} OVER (` +
		`{{if .partition_by_concat}}PARTITION BY {{.partition_by_concat}}{{end}}` +
		`{{if and .partition_by_concat .order_by_concat}} {{end}}` +
		`{{if .order_by_concat}}ORDER BY {{.order_by_concat}}{{end}})`,
	KeyQuoteIdentifier: `"`,
	KeyQuoteEscape:     `""`,

	FunctionKey("SUM"):            `SUM({{if .distinct}}DISTINCT {{end}}{{.args_concat}})`,
	FunctionKey("AVG"):            `AVG({{if .distinct}}DISTINCT {{end}}{{.args_concat}})`,
	FunctionKey("MIN"):            `MIN({{.args_concat}})`,
	FunctionKey("MAX"):            `MAX({{.args_concat}})`,
	FunctionKey("COUNT"):          `COUNT({{.args_concat}})`,
	FunctionKey("COUNT_DISTINCT"): `COUNT(DISTINCT {{.args_concat}})`,
	FunctionKey("PERCENTILE"):     `PERCENTILE_CONT({{.args_concat}})`,
	FunctionKey("ROW_NUMBER"):     `ROW_NUMBER({{.args_concat}})`,
	FunctionKey("RANK"):           `RANK({{.args_concat}})`,
	FunctionKey("LAG"):            `LAG({{.args_concat}})`,
	FunctionKey("UPPER"):          `UPPER({{.args_concat}})`,
	FunctionKey("LOWER"):          `LOWER({{.args_concat}})`,
	FunctionKey("COALESCE"):       `COALESCE({{.args_concat}})`,
}

// DefaultTemplates returns a fresh copy of the ANSI template set.
func DefaultTemplates() map[string]string {
	return maps.Clone(ansiTemplates)
}
