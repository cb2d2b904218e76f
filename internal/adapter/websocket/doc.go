// Package websocket streams live readings to WebSocket clients.
//
// Every accepted connection becomes one broadcast subscriber. Readings are
// written as JSON text frames; the server pings idle connections and drops
// the subscriber as soon as a write fails or the client goes away.
package websocket
