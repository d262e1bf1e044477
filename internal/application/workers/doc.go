// Package workers implements the concurrent worker runtime: one goroutine per
// worker with a private mailbox, stable handles whose execution context can be
// replaced on restart, elastic pools of homogeneous workers, and the
// sliding-window restart budget used by the supervision policy.
package workers
