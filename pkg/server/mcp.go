package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const mcpProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeBadSession     = -32000
)

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type mcpToolArgs struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	TopK      int    `json:"topK"`
	Source    string `json:"source"`
}

// mcpTools are read-only views over research sessions.
var mcpTools = []mcpTool{
	{
		Name:        "get_report",
		Description: "Get the written report of a research session as markdown.",
		InputSchema: objectSchema(nil),
	},
	{
		Name:        "list_sources",
		Description: "List the sources gathered by a research session.",
		InputSchema: objectSchema(nil),
	},
	{
		Name:        "search_content",
		Description: "Search the indexed sources of a research session using semantic search.",
		InputSchema: objectSchema(map[string]any{
			"query":  map[string]any{"type": "string", "description": "The search query."},
			"topK":   map[string]any{"type": "number", "description": "The number of top results to return.", "default": 5},
			"source": map[string]any{"type": "string", "description": "The source URL to filter results by."},
		}, "query"),
	},
}

// objectSchema adds the session_id property every tool takes.
func objectSchema(props map[string]any, required ...string) map[string]any {
	all := map[string]any{
		"session_id": map[string]any{"type": "string", "description": "The research session ID."},
	}
	for k, v := range props {
		all[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": all,
		"required":   append([]string{"session_id"}, required...),
	}
}

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			Error:   &MCPError{Code: codeParseError, Message: "Parse error"},
		})
		return
	}

	sessionID := c.GetHeader("Mcp-Session-Id")
	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = uuid.New().String()
			h.mcpMu.Lock()
			h.mcpSessions[sessionID] = &MCPSession{ID: sessionID, Created: time.Now().Unix()}
			h.mcpMu.Unlock()
			c.Header("Mcp-Session-Id", sessionID)
		}
		h.rpcResult(c, req.ID, map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"serverInfo":      map[string]any{"name": "research-canvas-mcp", "version": "1.0.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		})
		return
	}

	if sessionID == "" {
		h.rpcError(c, req.ID, codeBadSession, "Bad Request: No valid session ID provided")
		return
	}
	h.mcpMu.RLock()
	_, exists := h.mcpSessions[sessionID]
	h.mcpMu.RUnlock()
	if !exists {
		h.rpcError(c, req.ID, codeBadSession, "Invalid session ID")
		return
	}

	switch req.Method {
	case "tools/list":
		h.rpcResult(c, req.ID, map[string]any{"tools": mcpTools})
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		h.rpcResult(c, req.ID, map[string]any{})
	default:
		h.rpcError(c, req.ID, codeMethodNotFound, "Method not found")
	}
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.rpcError(c, req.ID, codeInvalidParams, "Invalid params")
		return
	}
	var args mcpToolArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil || args.SessionID == "" {
		h.rpcError(c, req.ID, codeInvalidParams, "Invalid arguments")
		return
	}

	ctx := c.Request.Context()
	var text string
	var err error
	switch params.Name {
	case "get_report":
		text, err = h.Service.Report(ctx, args.SessionID)
	case "list_sources":
		text, err = h.listSources(c, args.SessionID)
	case "search_content":
		if args.Query == "" {
			h.rpcError(c, req.ID, codeInvalidParams, "Invalid arguments")
			return
		}
		text, err = h.Service.SearchContent(ctx, args.SessionID, args.Query, args.TopK, args.Source)
	default:
		h.rpcError(c, req.ID, codeMethodNotFound, fmt.Sprintf("Tool not found: %s", params.Name))
		return
	}
	if err != nil {
		h.rpcError(c, req.ID, codeInternal, err.Error())
		return
	}
	h.rpcResult(c, req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
}

func (h *Handler) listSources(c *gin.Context, id string) (string, error) {
	sess, err := h.Service.GetSession(c.Request.Context(), id)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, src := range sess.State.SortedSources() {
		fmt.Fprintf(&b, "- [%s](%s) score: %.2f\n", src.Title, src.URL, src.Score)
	}
	if b.Len() == 0 {
		return "No sources gathered yet.", nil
	}
	return b.String(), nil
}

func (h *Handler) rpcResult(c *gin.Context, id interface{}, result interface{}) {
	c.JSON(http.StatusOK, MCPResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (h *Handler) rpcError(c *gin.Context, id interface{}, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{JSONRPC: "2.0", ID: id, Error: &MCPError{Code: code, Message: msg}})
}
