// Package server provides the HTTP API over a workspace snapshot.
//
//   - REST API: "/api/stats" for the current snapshot and
//     "/api/channels/{name}" for channel ID lookups
//   - Server-Sent Events: real-time snapshots at "/api/sse"
//   - Health: "/healthz" answers 503 until the first fetch succeeded
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
