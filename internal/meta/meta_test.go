package meta

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yautze/cube/internal/plan"
)

func TestTemplateGenerator_Render(t *testing.T) {
	g, err := NewTemplateGenerator("default", DefaultTemplates())
	require.NoError(t, err)

	assert.True(t, g.ContainsKey(FunctionKey("SUM")))
	assert.False(t, g.ContainsKey(FunctionKey("MEDIAN")))

	out, err := g.Render(FunctionKey("SUM"), map[string]any{"args_concat": `"o"."amount"`, "distinct": true})
	require.NoError(t, err)
	assert.Equal(t, `SUM(DISTINCT "o"."amount")`, out)

	out, err = g.Render(KeyWindowFunction, map[string]any{
		"fun_call":            "RANK()",
		"partition_by_concat": `"o"."status"`,
		"order_by_concat":     "",
	})
	require.NoError(t, err)
	assert.Equal(t, `RANK() OVER (PARTITION BY "o"."status")`, out)
}

func TestTemplateGenerator_UnknownKey(t *testing.T) {
	g, err := NewTemplateGenerator("default", map[string]string{})
	require.NoError(t, err)

	_, err = g.Render(KeyBinary, nil)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KeyBinary, te.Key)
}

func TestTemplateGenerator_ParseError(t *testing.T) {
	_, err := NewTemplateGenerator("broken", map[string]string{KeyBinary: "{{.left"})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "broken", te.DataSource)
}

func testContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := New(
		[]Cube{
			{Name: "Orders", SQLTable: "public.orders", DataSource: "default", Members: []string{"Orders.amount"}},
			{Name: "Users", SQLTable: "public.users", DataSource: "default"},
			{Name: "Events", SQLTable: "events", DataSource: "warehouse"},
		},
		[]DataSource{
			{Name: "default"},
			{Name: "warehouse", Disable: []string{KeyWithinGroup}},
		},
	)
	require.NoError(t, err)
	return ctx
}

func TestContext_GeneratorByAliasToCube(t *testing.T) {
	ctx := testContext(t)

	tests := []struct {
		name   string
		atc    plan.AliasToCube
		source string
		ok     bool
	}{
		{"single cube", plan.AliasToCube{{Alias: "o", Cube: "Orders"}}, "default", true},
		{"two cubes one source", plan.AliasToCube{{Alias: "o", Cube: "Orders"}, {Alias: "u", Cube: "Users"}}, "default", true},
		{"two sources", plan.AliasToCube{{Alias: "o", Cube: "Orders"}, {Alias: "e", Cube: "Events"}}, "", false},
		{"unknown cube", plan.AliasToCube{{Alias: "x", Cube: "Nope"}}, "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, ok := ctx.DataSourceFor(tt.atc)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.source, source)

			gen, ok := ctx.SQLGeneratorByAliasToCube(tt.atc)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.NotNil(t, gen)
			}
		})
	}
}

func TestContext_DisableRemovesCapability(t *testing.T) {
	ctx := testContext(t)

	warehouse, ok := ctx.Generator("warehouse")
	require.True(t, ok)
	assert.False(t, warehouse.ContainsKey(KeyWithinGroup))
	assert.True(t, warehouse.ContainsKey(KeySelect))

	def, ok := ctx.Generator("default")
	require.True(t, ok)
	assert.True(t, def.ContainsKey(KeyWithinGroup))
}

func TestNew_Errors(t *testing.T) {
	_, err := New([]Cube{{Name: "A", DataSource: "missing"}}, []DataSource{{Name: "default"}})
	assert.ErrorContains(t, err, "unknown data source")

	_, err = New(nil, []DataSource{{Name: "a"}, {Name: "a"}})
	assert.ErrorContains(t, err, "duplicate data source")

	_, err = New(nil, []DataSource{{Name: "a", Dialect: "klingon"}})
	assert.ErrorContains(t, err, "unknown dialect")
}

const sampleMeta = `
data_sources: {
	default: {
		templates: "functions/MEDIAN": "MEDIAN({{.args_concat}})"
	}
	bare: {
		dialect: "none"
		templates: "statements/select": "SELECT {{.select_concat}} FROM {{.from}}"
	}
}
cubes: {
	Orders: {
		sql_table: "public.orders"
		members: ["Orders.amount", "Orders.status"]
	}
	Logs: {
		sql_table:   "logs"
		data_source: "bare"
	}
}
`

func TestParse(t *testing.T) {
	ctx, err := Parse(sampleMeta)
	require.NoError(t, err)

	orders, ok := ctx.Cube("Orders")
	require.True(t, ok)
	assert.Equal(t, "public.orders", orders.SQLTable)
	assert.Equal(t, "default", orders.DataSource)
	assert.Equal(t, []string{"Orders.amount", "Orders.status"}, orders.Members)

	def, ok := ctx.Generator("default")
	require.True(t, ok)
	assert.True(t, def.ContainsKey(FunctionKey("MEDIAN")))
	assert.True(t, def.ContainsKey(FunctionKey("SUM")))

	bare, ok := ctx.Generator("bare")
	require.True(t, ok)
	assert.Equal(t, []string{KeySelect}, bare.Keys())

	names := []string{}
	for _, c := range ctx.Cubes() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Logs", "Orders"}, names)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"syntax", `cubes: {`, ErrCodeBuildFailed},
		{"missing table", `cubes: Orders: members: []`, ErrCodeInvalid},
		{"members not strings", `cubes: Orders: { sql_table: "t", members: [1] }`, ErrCodeInvalid},
		{"unknown source", `cubes: Orders: { sql_table: "t", data_source: "nope" }`, ErrCodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoad_FileAndDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.cue")
	require.NoError(t, os.WriteFile(path, []byte("package meta\n"+sampleMeta), 0o644))

	fromFile, err := Load(path)
	require.NoError(t, err)
	_, ok := fromFile.Cube("Logs")
	assert.True(t, ok)

	fromDir, err := Load(dir)
	require.NoError(t, err)
	_, ok = fromDir.Cube("Orders")
	assert.True(t, ok)

	_, err = Load(filepath.Join(dir, "missing.cue"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestAggregateFunctionKey(t *testing.T) {
	assert.Equal(t, "functions/SUM", AggregateFunctionKey("sum", false))
	assert.Equal(t, "functions/SUM", AggregateFunctionKey("Sum", true))
	assert.Equal(t, "functions/COUNT", AggregateFunctionKey("count", false))
	assert.Equal(t, "functions/COUNT_DISTINCT", AggregateFunctionKey("count", true))
}

func TestFunctionName_Concurrent(t *testing.T) {
	names := map[string]string{"sum": "SUM", "count": "COUNT", "Percentile_Cont": "PERCENTILE_CONT", "avg": "AVG"}
	var wg sync.WaitGroup
	for range 16 {
		for in, want := range names {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.Equal(t, want, FunctionName(in))
			}()
		}
	}
	wg.Wait()
}
