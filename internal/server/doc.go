// Package server implements the HTTP listener for the fullsync webhook
// receiver.
//
// The server accepts GitHub push webhooks on POST / and:
//   - verifies the HMAC-SHA1 X-Hub-Signature header
//   - answers pushes to the source branch and triggers the update job
//   - answers other pushes with an "Ignoring push" message
//   - drops everything else (wrong method or path, bad signature, malformed
//     body, rate limited) by closing the connection without a response
//
// Each request logs into its own joblog buffer, which is written to the
// rolling log once per request.
//
// A failed job moves the server from accepting to shutting down: further
// requests are dropped, the listener is closed and Serve returns
// ErrJobFailed.
package server
