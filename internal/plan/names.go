package plan

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// OutputName returns the name under which a select-list expression is
// visible to the operator above it. Columns keep their name and aliases
// their alias; anything else is known by its display name, so
// SUM(orders.amount) over an aggregate is referenced by an operator above as
// the column "SUM(orders.amount)".
func OutputName(e *Expr) string {
	switch e.Op {
	case OpColumn:
		if c, ok := e.Payload.(Column); ok {
			return c.Name
		}
	case OpAliasExpr:
		if name, ok := e.Child(1).Payload.(String); ok {
			return string(name)
		}
	}
	return DisplayName(e)
}

// DisplayName renders an expression the way a plan printer would.
func DisplayName(e *Expr) string {
	var b strings.Builder
	display(&b, e)
	return b.String()
}

func display(b *strings.Builder, e *Expr) {
	if e == nil {
		return
	}
	switch e.Op {
	case OpColumn, OpName:
		if c, ok := e.Payload.(Column); ok {
			b.WriteString(c.String())
		} else if s, ok := e.Payload.(String); ok {
			b.WriteString(string(s))
		}
	case OpLiteral:
		if s, ok := e.Payload.(String); ok {
			b.WriteString("'" + strings.ReplaceAll(string(s), "'", "''") + "'")
		} else if e.Payload != nil {
			b.WriteString(strings.ToUpper(e.Payload.String()))
		}
	case OpBinary:
		display(b, e.Child(0))
		b.WriteString(" ")
		display(b, e.Child(1))
		b.WriteString(" ")
		display(b, e.Child(2))
	case OpAliasExpr:
		display(b, e.Child(0))
		b.WriteString(" AS ")
		display(b, e.Child(1))
	case OpSortExpr:
		display(b, e.Child(0))
		if e.Child(1).Payload == Bool(true) {
			b.WriteString(" ASC")
		} else {
			b.WriteString(" DESC")
		}
		if e.Child(2).Payload == Bool(true) {
			b.WriteString(" NULLS FIRST")
		} else {
			b.WriteString(" NULLS LAST")
		}
	case OpScalarFun, OpAggFun, OpWindowFun:
		name, _ := e.Child(0).Payload.(String)
		b.WriteString(cases.Upper(language.Und).String(string(name)))
		b.WriteString("(")
		if e.Op == OpAggFun && e.Child(2).Payload == Bool(true) {
			b.WriteString("DISTINCT ")
		}
		join(b, e.Child(1).Children, ", ")
		b.WriteString(")")
		switch {
		case e.Op == OpAggFun && len(e.Child(3).Children) > 0:
			b.WriteString(" WITHIN GROUP (ORDER BY ")
			join(b, e.Child(3).Children, ", ")
			b.WriteString(")")
		case e.Op == OpWindowFun:
			b.WriteString(" OVER (")
			if part := e.Child(2).Children; len(part) > 0 {
				b.WriteString("PARTITION BY ")
				join(b, part, ", ")
				if len(e.Child(3).Children) > 0 {
					b.WriteString(" ")
				}
			}
			if order := e.Child(3).Children; len(order) > 0 {
				b.WriteString("ORDER BY ")
				join(b, order, ", ")
			}
			b.WriteString(")")
		}
	default:
		b.WriteString(e.Op.String())
	}
}

func join(b *strings.Builder, es []*Expr, sep string) {
	for i, e := range es {
		if i > 0 {
			b.WriteString(sep)
		}
		display(b, e)
	}
}
