// Package harness runs compilation scenarios described in YAML.
//
// A scenario names a plan, a meta definition and optionally a compiler
// configuration, and states what the compilation must produce:
//
//	name: sum_pushed
//	description: "A SUM over one cube becomes one SQL query"
//	plan: plans/sum_amount.json
//	meta: meta/orders.cue
//	config:
//	  list_mode: cons
//	expect:
//	  outcome: pushed
//	  pushed:
//	    - SELECT SUM("orders"."amount") FROM public.orders AS "orders"
//	assertions:
//	  - type: rule_applied
//	    rule: wrapper-aggregate
//	  - type: plan_op
//	    op: Aggregate
//	    count: 0
//	  - type: replay_match
//
// Paths are relative to the scenario file. Every run compiles with a fixed
// compilation id, records the compilation in a fresh in-memory log and
// replays it, so golden files and replay assertions are deterministic.
//
// Assertion types:
//   - sql_contains: some pushed query contains text
//   - rule_applied: rule changed the graph at least min times (default 1)
//   - plan_op: the output plan holds exactly count nodes of op
//   - replay_match: recompiling the logged input reproduces the output hash
//
// Golden files live in testdata/golden/<name>.golden; regenerate them with
//
//	go test ./internal/harness -update
package harness
