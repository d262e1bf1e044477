// Package ensemble implements the top-level supervisor for one dataflow
// ensemble.
//
// The supervisor coordinates the whole lifecycle:
//   - Building the graph model from parsed spec records
//   - Materializing workers dependency-first via the plugin loader
//   - Supervising worker liveness with a bounded restart budget
//   - Escalating unrecoverable failures to the owning host for a full rebuild
//
// The ensemble is the unit of fault recovery above the single worker: there
// is no partial rebuild of a failed subtree.
package ensemble
