// Package saturate runs a rule set over an e-graph until nothing changes or
// a budget runs out, and extracts the cheapest plan afterwards.
//
// The loop is the classic search, apply, rebuild cycle. Searches see a
// rebuilt graph; every match found in one iteration is applied before the
// next rebuild. A match that already fired under the same canonical
// bindings is skipped.
//
// The budget is mandatory. The rule set does not bound itself, so a Runner
// without a budget is never constructed; Run reports exhaustion as a
// *BudgetExceededError and the caller decides what to fall back to.
package saturate
