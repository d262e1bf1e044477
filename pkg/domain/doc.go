// Package domain holds the shared data model of the ensemble supervisor:
// the graph of performer specs and connection edges, worker messages,
// lifecycle events, and the error taxonomy.
//
// Everything here is plain data. Behavior lives in the application packages.
package domain
