package testutil

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
)

// OrdersBinding binds the alias "orders" to the Orders cube.
var OrdersBinding = plan.AliasToCube{{Alias: "orders", Cube: "Orders"}}

// OrdersMeta returns a meta context holding the Orders cube over
// public.orders, served by ds. An unnamed ds is the "default" source.
func OrdersMeta(t testing.TB, ds meta.DataSource) *meta.Context {
	t.Helper()
	if ds.Name == "" {
		ds.Name = "default"
	}
	ctx, err := meta.New(
		[]meta.Cube{{Name: "Orders", SQLTable: "public.orders", DataSource: ds.Name}},
		[]meta.DataSource{ds},
	)
	require.NoError(t, err)
	return ctx
}

// Meta is OrdersMeta with the ANSI templates minus disable.
func Meta(t testing.TB, disable ...string) *meta.Context {
	t.Helper()
	return OrdersMeta(t, meta.DataSource{Disable: disable})
}

// Scan is an ungated, grouped scan of Orders.
func Scan() *plan.Expr { return plan.NewCubeScan(OrdersBinding, nil, false) }

// Col references a column of the orders alias.
func Col(name string) *plan.Expr { return plan.NewColumn("orders", name) }

// Aggregate applies aggregates to Scan without grouping.
func Aggregate(aggr ...*plan.Expr) *plan.Expr {
	return plan.NewAggregate(Scan(), nil, aggr)
}

// SumAmount is SUM(orders.amount) over Scan.
func SumAmount() *plan.Expr {
	return Aggregate(plan.NewAggFun("sum", false, []*plan.Expr{Col("amount")}, nil))
}

// WriteFile writes content to path or fails the test.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// WritePlan writes e as plan JSON to path.
func WritePlan(t testing.TB, path string, e *plan.Expr) {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	WriteFile(t, path, string(data))
}
