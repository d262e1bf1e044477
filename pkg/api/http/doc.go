// Package http exposes the diagnostic REST API for a running ensemble.
package http
