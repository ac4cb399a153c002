package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikeboe/research-analyst/pkg/fusion"
	"github.com/mikeboe/research-analyst/pkg/research"
	"github.com/mikeboe/research-analyst/pkg/retrieval"
)

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*MCPSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*MCPSession)}
}

func (s *sessionStore) open() string {
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = &MCPSession{ID: id, Created: time.Now().Unix()}
	s.mu.Unlock()
	return id
}

func (s *sessionStore) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type AnalyzeQueryArgs struct {
	Query string `json:"query"`
}

type SearchEvidenceArgs struct {
	Query  string `json:"query"`
	TopK   int    `json:"topK"`
	Source string `json:"source"`
}

const (
	rpcParseError     = -32700
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
	rpcBadSession     = -32000
)

func rpcResult(id any, result any) MCPResponse {
	return MCPResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcError(id any, code int, msg string) MCPResponse {
	return MCPResponse{JSONRPC: "2.0", ID: id, Error: &MCPError{Code: code, Message: msg}}
}

// toolSpec describes one tool for tools/list.
type toolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

var mcpTools = []toolSpec{
	{
		Name:        "analyze_query",
		Description: "Retrieve vector and graph evidence for a query, gate it and, when sufficient, synthesize research directions.",
		InputSchema: objectSchema([]string{"query"}, map[string]any{
			"query": prop("string", "The research question."),
		}),
	},
	{
		Name:        "search_evidence",
		Description: "Semantic search over indexed evidence chunks.",
		InputSchema: objectSchema([]string{"query"}, map[string]any{
			"query":  prop("string", "The search query."),
			"topK":   map[string]any{"type": "number", "description": "The number of top results to return.", "default": 5},
			"source": prop("string", "Only return chunks indexed from this source URL."),
		}),
	},
}

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, rpcError(nil, rpcParseError, "Parse error"))
		return
	}

	if req.Method == "initialize" {
		h.initialize(c, req)
		return
	}
	if !h.checkSession(c, req) {
		return
	}

	switch req.Method {
	case "tools/list":
		c.JSON(http.StatusOK, rpcResult(req.ID, map[string]any{"tools": mcpTools}))
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		c.JSON(http.StatusOK, rpcResult(req.ID, map[string]any{}))
	default:
		h.sendError(c, req.ID, rpcMethodNotFound, "Method not found")
	}
}

func (h *Handler) initialize(c *gin.Context, req MCPRequest) {
	if c.GetHeader("Mcp-Session-Id") == "" {
		c.Header("Mcp-Session-Id", h.sessions.open())
	}
	c.JSON(http.StatusOK, rpcResult(req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo":      map[string]any{"name": "research-analyst-mcp", "version": "1.0.0"},
		"capabilities":    map[string]any{"tools": map[string]any{}},
	}))
}

// checkSession rejects requests without a session opened by initialize.
func (h *Handler) checkSession(c *gin.Context, req MCPRequest) bool {
	sessionID := c.GetHeader("Mcp-Session-Id")
	switch {
	case sessionID == "":
		c.JSON(http.StatusBadRequest, rpcError(req.ID, rpcBadSession, "Bad Request: No valid session ID provided"))
		return false
	case !h.sessions.exists(sessionID):
		c.JSON(http.StatusBadRequest, rpcError(req.ID, rpcBadSession, "Invalid session ID"))
		return false
	}
	return true
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, rpcInvalidParams, "Invalid params")
		return
	}

	ctx := c.Request.Context()
	switch params.Name {
	case "analyze_query":
		var args AnalyzeQueryArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, rpcInvalidParams, "Invalid arguments")
			return
		}
		state, err := h.Service.NewAnalyst().Run(ctx, args.Query)
		if err != nil {
			h.sendError(c, req.ID, rpcInternalError, err.Error())
			return
		}
		h.sendResult(c, req.ID, formatState(state))

	case "search_evidence":
		var args SearchEvidenceArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, rpcInvalidParams, "Invalid arguments")
			return
		}
		text, err := h.searchEvidence(c, args)
		if err != nil {
			h.sendError(c, req.ID, rpcInternalError, err.Error())
			return
		}
		h.sendResult(c, req.ID, text)

	default:
		h.sendError(c, req.ID, rpcMethodNotFound, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

func (h *Handler) searchEvidence(c *gin.Context, args SearchEvidenceArgs) (string, error) {
	if strings.TrimSpace(args.Query) == "" {
		return "", research.ErrEmptyQuery
	}
	if args.TopK <= 0 {
		args.TopK = 5
	}

	ctx := c.Request.Context()
	var (
		results []retrieval.VectorHit
		err     error
	)
	if args.Source != "" {
		scoped, ok := h.Vector.(SourceSearcher)
		if !ok {
			return "", fmt.Errorf("source filtering is not supported")
		}
		results, err = scoped.SearchSource(ctx, args.Query, args.TopK, args.Source)
	} else {
		results, err = h.Vector.Search(ctx, args.Query, args.TopK)
	}
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No evidence found.", nil
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("%s\n(score %.3f)", fusion.SourceBlock(r), r.Score)
	}
	return strings.Join(blocks, "\n\n"), nil
}

// formatState renders a run for an MCP client: decision first, then whatever text the run produced.
func formatState(s *research.ResearchState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decision: %s (avg score %.3f)\n", s.AnalysisDecision, s.AvgScore)
	if s.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", s.Reason)
	}
	if s.SynthesisOutput != "" {
		fmt.Fprintf(&b, "\n%s\n", s.SynthesisOutput)
	}
	if s.HasContext {
		fmt.Fprintf(&b, "\nContext:\n%s\n", s.AssembledContext)
	}
	return b.String()
}

func (h *Handler) sendError(c *gin.Context, id any, code int, msg string) {
	c.JSON(http.StatusOK, rpcError(id, code, msg))
}

func (h *Handler) sendResult(c *gin.Context, id any, text string) {
	c.JSON(http.StatusOK, rpcResult(id, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}))
}
