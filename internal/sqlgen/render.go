package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/rewrite"
)

// RenderError reports a wrapper that cannot be turned into SQL.
type RenderError struct {
	Op      plan.Op
	Message string
	Err     error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("render %s: %s", e.Op, e.Message)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer turns finalized wrappers into SQLScan payloads. It is stateless
// and safe for concurrent use.
type Renderer struct {
	meta *meta.Context
}

// NewRenderer returns a Renderer resolving cubes and generators through m.
func NewRenderer(m *meta.Context) *Renderer {
	return &Renderer{meta: m}
}

// Render renders a finalized CubeScanWrapper.
func (r *Renderer) Render(wrapper *plan.Expr) (plan.PushedSQL, error) {
	if wrapper == nil || wrapper.Op != plan.OpCubeScanWrapper {
		return plan.PushedSQL{}, &RenderError{Op: opOf(wrapper), Message: "not a cube scan wrapper"}
	}
	if !isTrue(wrapper.Child(1)) {
		return plan.PushedSQL{}, &RenderError{Op: wrapper.Op, Message: "wrapper is not finalized"}
	}
	ws := wrapper.Child(0)
	if ws == nil || ws.Op != plan.OpWrappedSelect || len(ws.Children) != plan.WSNumFields {
		return plan.PushedSQL{}, &RenderError{Op: opOf(ws), Message: "wrapper does not hold a wrapped select"}
	}
	atc, err := bindingOf(ws)
	if err != nil {
		return plan.PushedSQL{}, err
	}
	source, ok := r.meta.DataSourceFor(atc)
	if !ok {
		return plan.PushedSQL{}, &RenderError{Op: ws.Op, Message: fmt.Sprintf("no single data source for %s", atc)}
	}
	gen, _ := r.meta.Generator(source)
	s := &session{meta: r.meta, gen: gen, atc: atc}
	sql, err := s.selectStmt(ws, false)
	if err != nil {
		return plan.PushedSQL{}, err
	}
	return plan.PushedSQL{DataSource: source, SQL: sql, AliasToCube: atc}, nil
}

func opOf(e *plan.Expr) plan.Op {
	if e == nil {
		return plan.OpInvalid
	}
	return e.Op
}

// bindingOf returns the alias binding of the scan under a select.
func bindingOf(ws *plan.Expr) (plan.AliasToCube, error) {
	in := ws.Child(plan.WSInput)
	for in != nil && in.Op == plan.OpWrappedSelect {
		in = in.Child(plan.WSInput)
	}
	if in == nil || in.Op != plan.OpCubeScan {
		return nil, &RenderError{Op: opOf(in), Message: "select input is not a cube scan"}
	}
	atc, ok := in.Child(0).Payload.(plan.AliasToCube)
	if !ok || len(atc) == 0 {
		return nil, &RenderError{Op: in.Op, Message: "cube scan has no alias binding"}
	}
	return atc, nil
}

// session renders one statement against one generator.
type session struct {
	meta *meta.Context
	gen  meta.SQLGenerator
	atc  plan.AliasToCube
}

func (s *session) render(op plan.Op, key string, args map[string]any) (string, error) {
	out, err := s.gen.Render(key, args)
	if err != nil {
		return "", &RenderError{Op: op, Message: "template " + key, Err: err}
	}
	return out, nil
}

func (s *session) quote(ident string) string {
	q, esc := `"`, `""`
	if s.gen.ContainsKey(meta.KeyQuoteIdentifier) {
		if v, err := s.gen.Render(meta.KeyQuoteIdentifier, nil); err == nil {
			q = v
		}
	}
	if s.gen.ContainsKey(meta.KeyQuoteEscape) {
		if v, err := s.gen.Render(meta.KeyQuoteEscape, nil); err == nil {
			esc = v
		}
	}
	return q + strings.ReplaceAll(ident, q, esc) + q
}

// selectStmt renders a select. A subquery names every output that is not a
// column or an alias by plan.OutputName, so the select above can reference it.
func (s *session) selectStmt(ws *plan.Expr, subquery bool) (string, error) {
	selectType, _ := ws.Child(plan.WSSelectType).Payload.(plan.String)

	// A projection select without a projection list keeps every input
	// column; window expressions are appended either way.
	var items []*plan.Expr
	star := false
	switch string(selectType) {
	case rewrite.SelectAggregate:
		items = append(items, ws.Child(plan.WSGroup).Children...)
		items = append(items, ws.Child(plan.WSAggr).Children...)
	case rewrite.SelectProjection:
		items = append(items, ws.Child(plan.WSProjection).Children...)
		star = len(items) == 0
	default:
		return "", &RenderError{Op: ws.Op, Message: fmt.Sprintf("unknown select type %s", selectType)}
	}
	items = append(items, ws.Child(plan.WSWindow).Children...)

	selectList, err := s.selectList(items, subquery)
	if err != nil {
		return "", err
	}
	switch {
	case star && selectList != "":
		selectList = "*, " + selectList
	case selectList == "":
		selectList = "*"
	}

	from, err := s.from(ws)
	if err != nil {
		return "", err
	}
	where, err := s.list(ws.Child(plan.WSFilter).Children, " AND ")
	if err != nil {
		return "", err
	}
	having, err := s.list(ws.Child(plan.WSHaving).Children, " AND ")
	if err != nil {
		return "", err
	}
	orderBy, err := s.list(ws.Child(plan.WSOrder).Children, ", ")
	if err != nil {
		return "", err
	}
	groupBy := ""
	if string(selectType) == rewrite.SelectAggregate {
		if groupBy, err = s.list(ws.Child(plan.WSGroup).Children, ", "); err != nil {
			return "", err
		}
	}

	return s.render(ws.Op, meta.KeySelect, map[string]any{
		"distinct":      isTrue(ws.Child(plan.WSDistinct)),
		"select_concat": selectList,
		"from":          from,
		"where":         where,
		"group_by":      groupBy,
		"having":        having,
		"order_by":      orderBy,
		"limit":         number(ws.Child(plan.WSLimit)),
		"offset":        number(ws.Child(plan.WSOffset)),
	})
}

func number(e *plan.Expr) string {
	if n, ok := e.Payload.(plan.Int); ok {
		return strconv.FormatInt(int64(n), 10)
	}
	return ""
}

func (s *session) selectList(items []*plan.Expr, subquery bool) (string, error) {
	if !subquery {
		return s.list(items, ", ")
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		sql, err := s.expr(item)
		if err != nil {
			return "", err
		}
		if item.Op != plan.OpColumn && item.Op != plan.OpAliasExpr {
			sql, err = s.render(item.Op, meta.KeyAlias, map[string]any{
				"expr":         sql,
				"quoted_alias": s.quote(plan.OutputName(item)),
			})
			if err != nil {
				return "", err
			}
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, ", "), nil
}

// from renders the FROM clause. A select input becomes a subquery aliased as
// the scan below it, unless the inner select carries its own alias.
func (s *session) from(ws *plan.Expr) (string, error) {
	in := ws.Child(plan.WSInput)
	if len(s.atc) != 1 {
		return "", &RenderError{Op: in.Op, Message: fmt.Sprintf("scan over %d aliases needs a join", len(s.atc))}
	}
	if in.Op == plan.OpWrappedSelect {
		sub, err := s.selectStmt(in, true)
		if err != nil {
			return "", err
		}
		alias := s.atc[0].Alias
		if name, ok := in.Child(plan.WSAlias).Payload.(plan.String); ok {
			alias = string(name)
		}
		return s.render(in.Op, meta.KeyFrom, map[string]any{"source": "(" + sub + ")", "alias": s.quote(alias)})
	}
	cube, ok := s.meta.Cube(s.atc[0].Cube)
	if !ok {
		return "", &RenderError{Op: in.Op, Message: fmt.Sprintf("unknown cube %q", s.atc[0].Cube)}
	}
	return s.render(in.Op, meta.KeyFrom, map[string]any{
		"source": cube.SQLTable,
		"alias":  s.quote(s.atc[0].Alias),
	})
}

func (s *session) list(items []*plan.Expr, sep string) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		sql, err := s.expr(item)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, sep), nil
}

func (s *session) expr(e *plan.Expr) (string, error) {
	if e == nil {
		return "", &RenderError{Op: plan.OpInvalid, Message: "missing expression"}
	}
	switch e.Op {
	case plan.OpColumn:
		col, ok := e.Payload.(plan.Column)
		if !ok {
			return "", &RenderError{Op: e.Op, Message: "column without a column payload"}
		}
		table := ""
		if col.Relation != "" {
			table = s.quote(col.Relation)
		}
		return s.render(e.Op, meta.KeyColumnReference, map[string]any{"table_name": table, "name": s.quote(col.Name)})

	case plan.OpLiteral:
		return literal(e)

	case plan.OpBinary:
		left, err := s.expr(e.Child(0))
		if err != nil {
			return "", err
		}
		right, err := s.expr(e.Child(2))
		if err != nil {
			return "", err
		}
		return s.render(e.Op, meta.KeyBinary, map[string]any{"left": left, "op": name(e.Child(1)), "right": right})

	case plan.OpScalarFun:
		args, err := s.list(e.Child(1).Children, ", ")
		if err != nil {
			return "", err
		}
		return s.render(e.Op, meta.FunctionKey(meta.FunctionName(name(e.Child(0)))),
			map[string]any{"args_concat": args, "distinct": false})

	case plan.OpAggFun:
		args, err := s.list(e.Child(1).Children, ", ")
		if err != nil {
			return "", err
		}
		distinct := isTrue(e.Child(2))
		call, err := s.render(e.Op, meta.AggregateFunctionKey(name(e.Child(0)), distinct),
			map[string]any{"args_concat": args, "distinct": distinct})
		if err != nil {
			return "", err
		}
		within := e.Child(3).Children
		if len(within) == 0 {
			return call, nil
		}
		order, err := s.list(within, ", ")
		if err != nil {
			return "", err
		}
		return s.render(e.Op, meta.KeyWithinGroup, map[string]any{"fun_sql": call, "within_group_concat": order})

	case plan.OpWindowFun:
		args, err := s.list(e.Child(1).Children, ", ")
		if err != nil {
			return "", err
		}
		call, err := s.render(e.Op, meta.FunctionKey(meta.FunctionName(name(e.Child(0)))),
			map[string]any{"args_concat": args, "distinct": false})
		if err != nil {
			return "", err
		}
		partition, err := s.list(e.Child(2).Children, ", ")
		if err != nil {
			return "", err
		}
		order, err := s.list(e.Child(3).Children, ", ")
		if err != nil {
			return "", err
		}
		return s.render(e.Op, meta.KeyWindowFunction, map[string]any{
			"fun_call":            call,
			"partition_by_concat": partition,
			"order_by_concat":     order,
		})

	case plan.OpSortExpr:
		inner, err := s.expr(e.Child(0))
		if err != nil {
			return "", err
		}
		return s.render(e.Op, meta.KeySort, map[string]any{
			"expr":        inner,
			"asc":         isTrue(e.Child(1)),
			"nulls_first": isTrue(e.Child(2)),
		})

	case plan.OpAliasExpr:
		inner, err := s.expr(e.Child(0))
		if err != nil {
			return "", err
		}
		return s.render(e.Op, meta.KeyAlias, map[string]any{"expr": inner, "quoted_alias": s.quote(name(e.Child(1)))})

	default:
		return "", &RenderError{Op: e.Op, Message: "not an expression"}
	}
}

func isTrue(e *plan.Expr) bool {
	return e != nil && e.Payload == plan.Bool(true)
}

func name(e *plan.Expr) string {
	if e == nil {
		return ""
	}
	if v, ok := e.Payload.(plan.String); ok {
		return string(v)
	}
	return ""
}

func literal(e *plan.Expr) (string, error) {
	switch v := e.Payload.(type) {
	case plan.Null:
		return "NULL", nil
	case plan.Bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case plan.Int:
		return strconv.FormatInt(int64(v), 10), nil
	case plan.String:
		return "'" + strings.ReplaceAll(string(v), "'", "''") + "'", nil
	default:
		return "", &RenderError{Op: e.Op, Message: fmt.Sprintf("unsupported literal %T", e.Payload)}
	}
}
