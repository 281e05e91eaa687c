// Package sqlgen renders finalized cube-scan wrappers into SQL text using
// the templates of the destination data source.
//
// Every construct is rendered through a template key; a key the generator
// lacks is an error here, because the rewrite rules only pull a construct up
// when its key is present.
package sqlgen
