// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the chat orchestrator as a local JSON API with a
// websocket stream of session changes.
//
// The server listens on loopback unless configured otherwise. Remote
// listening requires a bearer token.
//
// # Endpoints
//
//   - GET    /health                       - status, configured providers, counters
//   - GET    /api/models                   - catalog with key availability and prices
//   - GET    /api/costs?days=N             - current session cost and trends
//   - GET    /api/chats                    - chat list with date buckets
//   - POST   /api/chats                    - create and select a chat
//   - PATCH  /api/chats/{id}               - rename
//   - DELETE /api/chats/{id}               - delete with its messages
//   - GET    /api/chats/{id}/messages      - select the chat and list its messages
//   - POST   /api/chats/{id}/messages      - send a message and wait for the reply
//   - POST   /api/chats/{id}/cancel        - cancel the in-flight send
//   - GET    /api/chats/{id}/usage         - priced token usage
//   - GET    /api/chats/{id}/export?format - markdown, html or json download
//   - GET    /api/events                   - websocket of state events
//
// # Errors
//
// Failures are JSON objects of the form {"error": {"message": ..., "field": ...}}.
// Validation failures are 400, unknown chats 404, a cancelled send 409 and
// provider failures 502.
//
// # Key Types
//
//   - Server: routes, middleware and lifecycle; implements service.Service
//   - EventFrame: one websocket frame
//   - RateLimiter: per-client token buckets
//
// # Usage
//
//	srv := server.New(orch, server.Options{Addr: "127.0.0.1:7878", Logger: log})
//	if err := srv.Run(ctx); err != nil {
//		log.Error("server failed", "error", err)
//	}
package server
