package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/hub"
	"github.com/wricardo/virtual-office/office/presence"
)

// Client is a thin MCP client that proxies to the admin REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the admin API at baseURL
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Virtual Office",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Virtual Office - MCP Interface

Read-mostly view of a shared 2D office where people walk around, chat and
play rock-paper-scissors. This is a thin client that proxies every request
to the admin REST API.

AVAILABLE TOOLS:
- list_players: Who is in the office and where
- chat_history: Recent general chat messages
- announce: Post a system message to the general chat
- office_stats: Office dimensions, occupancy and activity counters`),
	)

	c.registerTools()
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_players",
		Description: "List the players currently in the office with their positions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListPlayers)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "chat_history",
		Description: "Get the most recent general chat messages, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum number of messages (optional, default all retained)",
				},
			},
		},
	}, c.handleChatHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "announce",
		Description: "Post a system announcement to the general chat of everyone in the office",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "Announcement text, at most 500 characters",
				},
			},
			Required: []string{"content"},
		},
	}, c.handleAnnounce)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "office_stats",
		Description: "Get office dimensions, occupancy and activity counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleOfficeStats)
}

// GetMCPServer returns the underlying MCP server, e.g. for server.ServeStdio.
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST request.
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func (c *Client) apiCall(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// Tool handlers

func (c *Client) handleListPlayers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count   int               `json:"count"`
		Players []presence.Player `json:"players"`
	}
	if err := c.apiCall(ctx, "GET", "/api/players", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if response.Count == 0 {
		return mcp.NewToolResultText("The office is empty."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Players in the office (%d):\n\n", response.Count)
	for _, p := range response.Players {
		fmt.Fprintf(&b, "- %s (%s) at (%.0f, %.0f) facing %s, avatar %s/%s, since %s\n",
			p.Name, p.ID, p.X, p.Y, p.Direction, p.Avatar.ID, p.Avatar.Tone, p.ConnectedAt.Format("15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleChatHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/messages"
	if limit := request.GetInt("limit", 0); limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	var response struct {
		Count    int            `json:"count"`
		Messages []chat.Message `json:"messages"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if response.Count == 0 {
		return mcp.NewToolResultText("No messages yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Chat history (%d):\n\n", response.Count)
	for _, m := range response.Messages {
		author := m.AuthorName
		if m.System {
			author = "[" + author + "]"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", m.CreatedAt.Format("15:04:05"), author, m.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleAnnounce(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := request.GetString("content", "")
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content is required"), nil
	}

	var msg chat.Message
	if err := c.apiCall(ctx, "POST", "/api/announcements", map[string]string{"content": content}, &msg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Announcement %s posted: %s", msg.ID, msg.Content)), nil
}

func (c *Client) handleOfficeStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats hub.Stats
	if err := c.apiCall(ctx, "GET", "/api/office", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var counters map[string]int64
	if err := c.apiCall(ctx, "GET", "/metrics", nil, &counters); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Office %.0fx%.0f (padding %.0f)\n", stats.Office.Width, stats.Office.Height, stats.Office.Padding)
	fmt.Fprintf(&b, "Connections: %d, players: %d\n", stats.Connections, stats.Players)
	fmt.Fprintf(&b, "Chat history: %d/%d\n\n", stats.Messages, stats.HistoryLimit)
	b.WriteString("Counters:\n")
	for _, name := range counterOrder {
		fmt.Fprintf(&b, "  %s: %d\n", name, counters[name])
	}
	return mcp.NewToolResultText(b.String()), nil
}

var counterOrder = []string{
	"connections_total",
	"connections_active",
	"frames_in",
	"messages_out",
	"send_failures",
	"malformed_frames",
	"chat_messages",
	"private_messages",
	"game_relays",
	"errors_sent",
}
