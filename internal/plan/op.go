package plan

import "fmt"

// Op identifies a node kind in the plan language. The set is closed: every
// switch over Op ends in a default branch that reports an unknown kind, and
// opInfo is sized by NumOps so a new kind cannot be added without an entry.
type Op uint8

const (
	OpInvalid Op = iota

	// Payload leaves. They carry literal context and are never wrapped in a
	// replacer.
	OpAliasToCube
	OpCubeMembers
	OpFlag
	OpName
	OpNumber

	// Expressions.
	OpColumn
	OpLiteral
	OpBinary
	OpScalarFun
	OpAggFun
	OpWindowFun
	OpSortExpr
	OpAliasExpr

	// Lists of the local operators.
	OpProjectionExprs
	OpGroupExprs
	OpAggrExprs
	OpWindowExprs
	OpSortExprs
	OpScalarFunArgs
	OpAggFunArgs
	OpWithinGroup
	OpWindowFunArgs
	OpPartitionBy
	OpWindowOrderBy

	// Lists of a wrapped select.
	OpWrappedProjectionExprs
	OpWrappedSubqueries
	OpWrappedGroupExprs
	OpWrappedAggrExprs
	OpWrappedWindowExprs
	OpWrappedJoins
	OpWrappedFilterExprs
	OpWrappedHavingExprs
	OpWrappedOrderExprs

	// Plan operators.
	OpCubeScan
	OpProjection
	OpFilter
	OpAggregate
	OpWindow
	OpSort
	OpLimit
	OpJoin
	OpCubeScanWrapper
	OpWrappedSelect
	OpSQLScan

	// Replacers.
	OpPushdownReplacer
	OpPullupReplacer

	NumOps
)

// Child slot markers of OpInfo.SlotOps. They are never node kinds.
const (
	// AnyExpr accepts any expression.
	AnyExpr Op = NumOps + iota
	// AnyPlan accepts any plan operator.
	AnyPlan
)

// Kind groups ops by role.
type Kind uint8

const (
	KindLeaf Kind = iota + 1
	KindExpr
	KindList
	KindPlan
	KindReplacer
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindExpr:
		return "expr"
	case KindList:
		return "list"
	case KindPlan:
		return "plan"
	case KindReplacer:
		return "replacer"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Slot describes one fixed child position of an op.
type Slot uint8

const (
	// SlotChild is an expression, list or plan input. Replacers distribute
	// into it.
	SlotChild Slot = iota + 1
	// SlotPayload must hold a payload leaf of the op named by the slot's
	// entry in OpInfo.SlotOps.
	SlotPayload
)

// OpInfo is the static description of an op.
type OpInfo struct {
	Name string
	Kind Kind
	// Slots lists fixed child positions; nil for leaves and lists.
	Slots []Slot
	// SlotOps names the op expected in each position. Payload slots always
	// name a leaf op; child slots name a list kind, AnyExpr or AnyPlan.
	// Replacers name OpInvalid: their inner child may be of any kind.
	SlotOps []Op
	// Substitute is the list kind produced when a list of this kind is pulled
	// up into a wrapped select. Lists that keep their kind name themselves.
	Substitute Op
	// HasPayload reports whether the node itself carries a payload value.
	HasPayload bool
	// Upstream reports whether the op may appear in a plan handed in by the
	// caller. Rewrite products are rejected there.
	Upstream bool
}

// Replacer children: inner, alias_to_cube, ungrouped, in_projection,
// cube_members.
const (
	ReplacerInner = iota
	ReplacerAliasToCube
	ReplacerUngrouped
	ReplacerInProjection
	ReplacerCubeMembers
)

// WrappedSelect child positions.
const (
	WSSelectType = iota
	WSProjection
	WSSubqueries
	WSGroup
	WSAggr
	WSWindow
	WSInput
	WSJoins
	WSFilter
	WSHaving
	WSLimit
	WSOffset
	WSOrder
	WSAlias
	WSDistinct
	WSUngrouped
	WSUngroupedScan
	WSNumFields
)

var opInfo = func() [NumOps]OpInfo {
	c, p := SlotChild, SlotPayload
	x, q, r := AnyExpr, AnyPlan, OpInvalid
	return [NumOps]OpInfo{
		OpInvalid: {Name: "Invalid"},

		OpAliasToCube: {Name: "AliasToCube", Kind: KindLeaf, HasPayload: true, Upstream: true},
		OpCubeMembers: {Name: "CubeMembers", Kind: KindLeaf, HasPayload: true, Upstream: true},
		OpFlag:        {Name: "Flag", Kind: KindLeaf, HasPayload: true, Upstream: true},
		OpName:        {Name: "Name", Kind: KindLeaf, HasPayload: true, Upstream: true},
		OpNumber:      {Name: "Number", Kind: KindLeaf, HasPayload: true, Upstream: true},

		OpColumn:  {Name: "Column", Kind: KindExpr, HasPayload: true, Upstream: true},
		OpLiteral: {Name: "Literal", Kind: KindExpr, HasPayload: true, Upstream: true},
		OpBinary: {Name: "Binary", Kind: KindExpr, Upstream: true,
			Slots: []Slot{c, p, c}, SlotOps: []Op{x, OpName, x}},
		OpScalarFun: {Name: "ScalarFun", Kind: KindExpr, Upstream: true,
			Slots: []Slot{p, c}, SlotOps: []Op{OpName, OpScalarFunArgs}},
		OpAggFun: {Name: "AggFun", Kind: KindExpr, Upstream: true,
			Slots: []Slot{p, c, p, c}, SlotOps: []Op{OpName, OpAggFunArgs, OpFlag, OpWithinGroup}},
		OpWindowFun: {Name: "WindowFun", Kind: KindExpr, Upstream: true,
			Slots: []Slot{p, c, c, c}, SlotOps: []Op{OpName, OpWindowFunArgs, OpPartitionBy, OpWindowOrderBy}},
		OpSortExpr: {Name: "SortExpr", Kind: KindExpr, Upstream: true,
			Slots: []Slot{c, p, p}, SlotOps: []Op{x, OpFlag, OpFlag}},
		OpAliasExpr: {Name: "AliasExpr", Kind: KindExpr, Upstream: true,
			Slots: []Slot{c, p}, SlotOps: []Op{x, OpName}},

		OpProjectionExprs: {Name: "ProjectionExprs", Kind: KindList, Substitute: OpWrappedProjectionExprs, Upstream: true},
		OpGroupExprs:      {Name: "GroupExprs", Kind: KindList, Substitute: OpWrappedGroupExprs, Upstream: true},
		OpAggrExprs:       {Name: "AggrExprs", Kind: KindList, Substitute: OpWrappedAggrExprs, Upstream: true},
		OpWindowExprs:     {Name: "WindowExprs", Kind: KindList, Substitute: OpWrappedWindowExprs, Upstream: true},
		OpSortExprs:       {Name: "SortExprs", Kind: KindList, Substitute: OpWrappedOrderExprs, Upstream: true},
		OpScalarFunArgs:   {Name: "ScalarFunArgs", Kind: KindList, Substitute: OpScalarFunArgs, Upstream: true},
		OpAggFunArgs:      {Name: "AggFunArgs", Kind: KindList, Substitute: OpAggFunArgs, Upstream: true},
		OpWithinGroup:     {Name: "WithinGroup", Kind: KindList, Substitute: OpWithinGroup, Upstream: true},
		OpWindowFunArgs:   {Name: "WindowFunArgs", Kind: KindList, Substitute: OpWindowFunArgs, Upstream: true},
		OpPartitionBy:     {Name: "PartitionBy", Kind: KindList, Substitute: OpPartitionBy, Upstream: true},
		OpWindowOrderBy:   {Name: "WindowOrderBy", Kind: KindList, Substitute: OpWindowOrderBy, Upstream: true},

		OpWrappedProjectionExprs: {Name: "WrappedProjectionExprs", Kind: KindList, Substitute: OpWrappedProjectionExprs},
		OpWrappedSubqueries:      {Name: "WrappedSubqueries", Kind: KindList, Substitute: OpWrappedSubqueries},
		OpWrappedGroupExprs:      {Name: "WrappedGroupExprs", Kind: KindList, Substitute: OpWrappedGroupExprs},
		OpWrappedAggrExprs:       {Name: "WrappedAggrExprs", Kind: KindList, Substitute: OpWrappedAggrExprs},
		OpWrappedWindowExprs:     {Name: "WrappedWindowExprs", Kind: KindList, Substitute: OpWrappedWindowExprs},
		OpWrappedJoins:           {Name: "WrappedJoins", Kind: KindList, Substitute: OpWrappedJoins},
		OpWrappedFilterExprs:     {Name: "WrappedFilterExprs", Kind: KindList, Substitute: OpWrappedFilterExprs},
		OpWrappedHavingExprs:     {Name: "WrappedHavingExprs", Kind: KindList, Substitute: OpWrappedHavingExprs},
		OpWrappedOrderExprs:      {Name: "WrappedOrderExprs", Kind: KindList, Substitute: OpWrappedOrderExprs},

		OpCubeScan: {Name: "CubeScan", Kind: KindPlan, Upstream: true,
			Slots: []Slot{p, p, p}, SlotOps: []Op{OpAliasToCube, OpCubeMembers, OpFlag}},
		OpProjection: {Name: "Projection", Kind: KindPlan, Upstream: true,
			Slots: []Slot{c, c, p}, SlotOps: []Op{OpProjectionExprs, q, OpName}},
		OpFilter: {Name: "Filter", Kind: KindPlan, Upstream: true,
			Slots: []Slot{c, c}, SlotOps: []Op{x, q}},
		OpAggregate: {Name: "Aggregate", Kind: KindPlan, Upstream: true,
			Slots: []Slot{c, c, c}, SlotOps: []Op{q, OpGroupExprs, OpAggrExprs}},
		OpWindow: {Name: "Window", Kind: KindPlan, Upstream: true,
			Slots: []Slot{c, c}, SlotOps: []Op{q, OpWindowExprs}},
		OpSort: {Name: "Sort", Kind: KindPlan, Upstream: true,
			Slots: []Slot{c, c}, SlotOps: []Op{OpSortExprs, q}},
		OpLimit: {Name: "Limit", Kind: KindPlan, Upstream: true,
			Slots: []Slot{p, p, c}, SlotOps: []Op{OpNumber, OpNumber, q}},
		OpJoin: {Name: "Join", Kind: KindPlan, Upstream: true,
			Slots: []Slot{c, c, c, p}, SlotOps: []Op{q, q, x, OpName}},
		OpCubeScanWrapper: {Name: "CubeScanWrapper", Kind: KindPlan,
			Slots: []Slot{c, p}, SlotOps: []Op{q, OpFlag}},
		OpWrappedSelect: {Name: "WrappedSelect", Kind: KindPlan,
			Slots: []Slot{
				p, c, c, c, c, c, c, c, c, c, p, p, c, p, p, p, p,
			},
			SlotOps: []Op{
				OpName, OpWrappedProjectionExprs, OpWrappedSubqueries, OpWrappedGroupExprs,
				OpWrappedAggrExprs, OpWrappedWindowExprs, q, OpWrappedJoins, OpWrappedFilterExprs,
				OpWrappedHavingExprs, OpNumber, OpNumber, OpWrappedOrderExprs, OpName,
				OpFlag, OpFlag, OpFlag,
			}},
		OpSQLScan: {Name: "SQLScan", Kind: KindPlan, HasPayload: true, Upstream: true},

		OpPushdownReplacer: {Name: "PushdownReplacer", Kind: KindReplacer,
			Slots:   []Slot{c, p, p, p, p},
			SlotOps: []Op{r, OpAliasToCube, OpFlag, OpFlag, OpCubeMembers}},
		OpPullupReplacer: {Name: "PullupReplacer", Kind: KindReplacer,
			Slots:   []Slot{c, p, p, p, p},
			SlotOps: []Op{r, OpAliasToCube, OpFlag, OpFlag, OpCubeMembers}},
	}
}()

var opByName = func() map[string]Op {
	m := make(map[string]Op, NumOps)
	for op := OpInvalid + 1; op < NumOps; op++ {
		m[opInfo[op].Name] = op
	}
	return m
}()

// Info returns the static description of op.
func (op Op) Info() OpInfo {
	if op >= NumOps {
		return OpInfo{}
	}
	return opInfo[op]
}

func (op Op) String() string {
	if op < NumOps && opInfo[op].Name != "" {
		return opInfo[op].Name
	}
	switch op {
	case AnyExpr:
		return "expression"
	case AnyPlan:
		return "plan"
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// Kind returns the role of op.
func (op Op) Kind() Kind { return op.Info().Kind }

// IsList reports whether op is a variadic list kind.
func (op Op) IsList() bool { return op.Kind() == KindList }

// IsLeaf reports whether op is a payload leaf.
func (op Op) IsLeaf() bool { return op.Kind() == KindLeaf }

// Substitute returns the list kind produced on pull-up.
func (op Op) Substitute() Op { return op.Info().Substitute }

// Arity returns the fixed child count, or -1 for lists.
func (op Op) Arity() int {
	info := op.Info()
	if info.Kind == KindList {
		return -1
	}
	return len(info.Slots)
}

// Lookup resolves an op by name.
func Lookup(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Ops returns every valid op in declaration order.
func Ops() []Op {
	out := make([]Op, 0, NumOps-1)
	for op := OpInvalid + 1; op < NumOps; op++ {
		out = append(out, op)
	}
	return out
}
