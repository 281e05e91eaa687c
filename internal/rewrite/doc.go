// Package rewrite holds the rule set of the push-down rewriter.
//
// Rules are written as pattern pairs over the plan language. Two replacer
// kinds carry the rewrite context through a plan: a PushdownReplacer around
// a term asks for the term to be moved into SQL, and a PullupReplacer around
// a term records that it already is. Push-down rules distribute a replacer
// into the children of a node unconditionally; pull-up rules collapse a node
// whose children are all pulled up, but only when the destination data
// source can render it.
//
// The wrapper rules build a WrappedSelect around a CubeScan and absorb the
// operators above it one at a time. A CubeScanWrapper whose select is fully
// pulled up is finalized and becomes a candidate for extraction.
package rewrite
