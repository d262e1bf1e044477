// Package websocket streams ensemble lifecycle events to diagnostic clients.
package websocket
