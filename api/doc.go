// Package api provides the admin HTTP API of the virtual office.
//
// The admin API runs on its own port next to the realtime WebSocket
// listener and only reads from or announces through the hub. It never
// speaks the realtime protocol itself.
//
// Endpoints:
//   - GET /healthz - liveness and uptime
//   - GET /metrics - activity counters
//   - GET /api/office - office dimensions and occupancy
//   - GET /api/players - introduced players, oldest first
//   - GET /api/players/{id} - one player
//   - GET /api/messages?limit=N - general chat history, oldest first
//   - POST /api/announcements - post a system message to the general chat
//
// Announcements accept a JSON body:
//
//	{"content": "La reunión empieza en 5 minutos"}
//
// Content is trimmed and capped like any chat message; blank content is
// rejected with 400.
//
// Errors are returned as:
//
//	{"error": "message"}
package api
