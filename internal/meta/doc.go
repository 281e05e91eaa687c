// Package meta holds the semantic-layer context of a compilation: cubes,
// their members and data sources, and the SQL template set of each data
// source. Template keys double as capability flags; a rule that needs a
// feature asks the generator whether the key is present.
//
// A Context is immutable once built and may be shared across goroutines.
package meta
