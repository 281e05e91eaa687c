// Package testutil holds the fixtures shared by package tests: the Orders
// cube, its meta context and small plans over it.
package testutil
