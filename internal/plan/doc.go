// Package plan defines the node language of the rewriting core.
//
// A plan exists in two forms. Expr is an owned tree used at the edges:
// upstream input, the JSON file format and the extracted result. Node is the
// e-graph form, whose children are class handles (ID) rather than pointers.
//
// Key design constraints:
//   - The set of ops is closed; OpInfo is an array sized by NumOps
//   - Payloads are sealed values, never floats
//   - Literal context (names, flags, alias bindings) lives in leaf nodes so
//     that rewrite patterns bind it like any other child
//   - plan imports nothing internal
package plan
