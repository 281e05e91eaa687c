// Package egraph implements the e-graph used for equality saturation: an
// arena of hash-consed nodes, a union-find over class handles, congruence
// closure on Rebuild, and per-class analysis data kept consistent under
// merges.
//
// Handles are plan.ID values. A handle stays valid for the life of the
// graph; Find maps it to the canonical class after merges.
package egraph
