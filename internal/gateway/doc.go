// Package gateway runs the dm-gateway server.
//
// # Overview
//
// The gateway package wires the storage, messaging, presence and delivery
// packages together and exposes them over HTTP. It owns the HTTP server, the
// optional gRPC health server and the optional tailnet listener.
//
// # HTTP API
//
// All /api routes require "Authorization: Bearer <jwt>" and answer JSON:
//
//   - GET  /api/chat/conversations - Conversation summaries, newest first
//   - GET  /api/chat/messages/{userId} - One page of history (?page=&limit=); marks it read
//   - POST /api/chat/messages - Send a message ({receiverId, content})
//   - GET  /api/chat/unread-count - Total unread ({"count": n})
//   - GET  /health - Liveness check
//   - GET  /health/ready - Readiness check
//   - GET  /metrics - Prometheus metrics (when enabled)
//
// Errors are {"error": "..."} with 400, 401, 404 or 500.
//
// # Real-time Channel
//
// GET /ws upgrades to a WebSocket. The token comes from ?token= or the
// Authorization header. Frames are JSON text:
//
//	{"event": "sendMessage", "data": {"receiverId": 9, "content": "hi"}}
//
// Clients send sendMessage and markAsRead. The server sends receiveMessage,
// messageSent, messagesMarkedAsRead, messagesRead and error.
//
// A user has at most one live connection; a newer one replaces and closes
// the older. Each connection has a 64-event outbound queue. When the queue
// is full, pushed events are dropped; the data is already stored and the
// client picks it up from the REST history.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//	...
//	cancel() // Run shuts down and returns
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown, listeners
//   - api.go: REST handlers
//   - socket.go: WebSocket connection handling
//   - middleware.go: request metrics
//   - validation.go: payload validation messages
package gateway
