// Package graph builds the immutable graph model of an ensemble from the
// record lists produced by the spec parser.
//
// The builder is purely constructive: duplicate connection sources merge
// last-wins and dangling references are left for the instantiator to reject.
package graph
