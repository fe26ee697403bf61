// Package api implements the HTTP surface of the Rachio bridge.
//
// This package provides:
//   - The webhook intake the Rachio cloud posts events to, with an optional
//     source IP allow-list
//   - REST endpoints for devices, zones, zone run history and commands
//   - WebSocket hub broadcasting model changes in real time
//   - Optional JWT bearer authentication on everything except health and
//     the webhook intake
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Webhook bodies are handed to the bridge, which routes them to the account
// that registered the webhook. Commands go straight to the bridge's command
// façade and are answered synchronously. Model changes reach WebSocket
// clients through a per-account listener the hub hands to the bridge.
//
// # Security
//
// When security.jwt.secret is empty the API is open, which is only
// appropriate on an isolated control network. The webhook intake is never
// behind JWT because the cloud cannot present a token; use rachio.ip_filter
// to restrict it.
package api
