// Package api defines the data model and contracts of the weft engine:
// tool descriptors and schemas, workflow graphs, run instances and their
// context, execution events, and the error taxonomy.
//
// Most applications import the root weft package, which re-exports the
// types defined here.
package api
