// Package mcp exposes the virtual office to AI agents over the Model
// Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a request to the
// admin REST API, so the MCP surface never touches the hub directly.
//
// Tools:
//   - list_players: players currently in the office
//   - chat_history: recent general chat, with optional limit
//   - announce: post a system message to the general chat
//   - office_stats: dimensions, occupancy and activity counters
//
// Transport modes:
//   - HTTP: mount the Client as a POST handler, one JSON-RPC message per request
//   - Stdio: server.ServeStdio(client.GetMCPServer())
package mcp
