// Package compiler runs one plan through the rewrite pipeline:
//
//	validate → insert → saturate → extract → render → lower
//
// Pushed regions come back as SQLScan leaves; everything else stays an
// operator tree for the local engine. When saturation cannot finish within
// its budget, or a pushed region fails to render, the input plan is returned
// unchanged with a diagnostic, unless the configuration requires push-down.
//
// A Compiler is built once per MetaContext and configuration and may be used
// by many goroutines; each call owns a fresh e-graph.
package compiler
