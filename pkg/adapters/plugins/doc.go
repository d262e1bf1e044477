// Package plugins resolves performer implementations from plugin references.
//
// Factories register themselves under a reference name at init time; the
// loader resolves a reference plus an artifact location into a worker factory
// and verifies the artifact exists when configured to.
package plugins
