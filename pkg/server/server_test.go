package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mikeboe/research-analyst/pkg/fusion"
	"github.com/mikeboe/research-analyst/pkg/graphstore"
	"github.com/mikeboe/research-analyst/pkg/research"
	"github.com/mikeboe/research-analyst/pkg/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVector struct {
	hits   []retrieval.VectorHit
	source string
}

func (f *fakeVector) Search(_ context.Context, _ string, k int) ([]retrieval.VectorHit, error) {
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeVector) SearchSource(ctx context.Context, query string, k int, source string) ([]retrieval.VectorHit, error) {
	f.source = source
	return f.Search(ctx, query, k)
}

type fakeGraph struct{}

func (fakeGraph) QueryEntities(_ context.Context, token string) ([]retrieval.Triple, error) {
	if token == "graphene" {
		return []retrieval.Triple{{Source: "graphene", Relation: "is_a", Target: "material"}}, nil
	}
	return nil, nil
}

type fakeEdges struct {
	edges []graphstore.Edge
}

func (f *fakeEdges) AddEdges(_ context.Context, edges []graphstore.Edge) error {
	f.edges = append(f.edges, edges...)
	return nil
}

type fakeIndexer struct {
	source string
	err    error
}

func (f *fakeIndexer) IndexText(_ context.Context, source, _, _ string) (int, error) {
	f.source = source
	return 3, f.err
}

type testServer struct {
	router  *gin.Engine
	vector  *fakeVector
	edges   *fakeEdges
	indexer *fakeIndexer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	vector := &fakeVector{hits: []retrieval.VectorHit{
		{Chunk: "graphene conducts heat well", Score: 0.9},
		{Chunk: "graphene is a carbon allotrope", Score: 0.8},
		{Chunk: "thermal transport in 2D materials", Score: 0.7},
	}}
	newAnalyst := func() *research.Analyst {
		a := research.NewAnalyst(vector, fakeGraph{}, nil, fusion.DefaultThresholds(), research.DefaultOptions())
		a.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return a
	}

	ts := &testServer{
		router:  gin.New(),
		vector:  vector,
		edges:   &fakeEdges{},
		indexer: &fakeIndexer{},
	}
	h := NewHandler(NewService(nil, newAnalyst), fusion.NewEngine(fusion.DefaultThresholds()), vector, ts.edges, ts.indexer)
	h.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) do(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestAnalyzeReady(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{
		VectorResults: []retrieval.VectorHit{{Chunk: "a", Score: 0.9}, {Chunk: "b", Score: 0.8}, {Chunk: "c", Score: 0.7}},
		GraphResults:  []retrieval.Triple{{Source: "x", Relation: "r", Target: "y"}},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got fusion.Assessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, fusion.DecisionReady, got.Decision)
	assert.True(t, got.HasContext)
	assert.Equal(t, "[SOURCE]\na\n\n[SOURCE]\nb\n\n[SOURCE]\nc\n\n[GRAPH] x --r--> y", got.Context)
}

func TestAnalyzeEmptyNeedsMoreInfo(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got fusion.Assessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, fusion.DecisionNeedMoreInfo, got.Decision)
	assert.False(t, got.HasContext)
}

func TestAnalyzeRejectsMalformedEvidence(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{
		VectorResults: []retrieval.VectorHit{{Chunk: "", Score: 0.9}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/analyze", AnalyzeRequest{
		VectorResults: []retrieval.VectorHit{{Chunk: "ok", Score: 0.9}},
		GraphResults:  []retrieval.Triple{{Source: "x", Target: "y"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddTriples(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/triples", AddTriplesRequest{Triples: []retrieval.Triple{
		{Source: "graphene", Relation: "is_a", Target: "material"},
		{Source: "graphene", Relation: "made_of", Target: "carbon"},
	}}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"stored":2}`, w.Body.String())
	require.Len(t, ts.edges.edges, 2)
	assert.Equal(t, "carbon", ts.edges.edges[1].Target)

	w = ts.do(http.MethodPost, "/api/triples", AddTriplesRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/triples", AddTriplesRequest{Triples: []retrieval.Triple{{Source: "a"}}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddDocument(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/documents", AddDocumentRequest{Source: "notes.md", Text: "graphene"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"chunks":3}`, w.Body.String())
	assert.Equal(t, "notes.md", ts.indexer.source)

	w = ts.do(http.MethodPost, "/api/documents", AddDocumentRequest{Source: "notes.md"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.indexer.err = fmt.Errorf("embed: %w", retrieval.ErrRetrievalUnavailable)
	w = ts.do(http.MethodPost, "/api/documents", AddDocumentRequest{Source: "notes.md", Text: "graphene"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJobRoutesRejectInvalidID(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/research/not-a-uuid", "/api/research/not-a-uuid/logs"} {
		w := ts.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestCreateJobRejectsEmptyQuery(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/research", CreateJobRequest{Query: "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{research.ErrEmptyQuery, http.StatusBadRequest},
		{fmt.Errorf("hit 0: %w", retrieval.ErrMalformedHit), http.StatusBadRequest},
		{ErrJobNotFound, http.StatusNotFound},
		{errors.Join(retrieval.ErrRetrievalUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func mcpCall(ts *testServer, session, method string, params any) (*httptest.ResponseRecorder, MCPResponse) {
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	header := http.Header{}
	if session != "" {
		header.Set("Mcp-Session-Id", session)
	}
	w := ts.do(http.MethodPost, "/mcp", req, header)

	var resp MCPResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func toolText(t *testing.T, resp MCPResponse) string {
	t.Helper()
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	return content[0].(map[string]any)["text"].(string)
}

func TestMCPSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	w, _ := mcpCall(ts, "", "tools/list", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = mcpCall(ts, uuid.NewString(), "tools/list", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := mcpCall(ts, "", "initialize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := w.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, session)
	assert.Nil(t, resp.Error)

	_, resp = mcpCall(ts, session, "tools/list", nil)
	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, 2)
	assert.Equal(t, "analyze_query", tools[0].(map[string]any)["name"])
	assert.Equal(t, "search_evidence", tools[1].(map[string]any)["name"])

	_, resp = mcpCall(ts, session, "ping", nil)
	assert.Nil(t, resp.Error)

	_, resp = mcpCall(ts, session, "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestMCPTools(t *testing.T) {
	ts := newTestServer(t)
	w, _ := mcpCall(ts, "", "initialize", nil)
	session := w.Header().Get("Mcp-Session-Id")

	_, resp := mcpCall(ts, session, "tools/call", map[string]any{
		"name":      "analyze_query",
		"arguments": map[string]any{"query": "graphene heat"},
	})
	text := toolText(t, resp)
	assert.Contains(t, text, "Decision: ready")
	assert.Contains(t, text, "[GRAPH] graphene --is_a--> material")

	_, resp = mcpCall(ts, session, "tools/call", map[string]any{
		"name":      "search_evidence",
		"arguments": map[string]any{"query": "graphene", "topK": 1, "source": "https://example.org"},
	})
	text = toolText(t, resp)
	assert.Contains(t, text, "[SOURCE]\ngraphene conducts heat well")
	assert.NotContains(t, text, "carbon allotrope")
	assert.Equal(t, "https://example.org", ts.vector.source)

	_, resp = mcpCall(ts, session, "tools/call", map[string]any{
		"name":      "analyze_query",
		"arguments": map[string]any{"query": ""},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)

	_, resp = mcpCall(ts, session, "tools/call", map[string]any{"name": "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

type fakeExecer struct {
	args [][]any
}

func (f *fakeExecer) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, nil
}

func TestDBLogHandlerPersistsAttrs(t *testing.T) {
	db := &fakeExecer{}
	jobID := uuid.New()
	h := &DBLogHandler{db: db, jobID: jobID, level: slog.LevelInfo}

	logger := slog.New(h).With("query", "graphene").WithGroup("pass")
	logger.Debug("dropped")
	logger.Warn("Evidence insufficient", "hits", 2, "error", errors.New("boom"))

	require.Len(t, db.args, 1)
	args := db.args[0]
	assert.Equal(t, jobID, args[0])
	assert.Equal(t, "WARN", args[2])
	assert.Equal(t, "Evidence insufficient", args[3])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(args[4].([]byte), &meta))
	assert.Equal(t, map[string]any{"query": "graphene", "pass.hits": float64(2), "pass.error": "boom"}, meta)
}

func TestMCPToolSchemasAndParseError(t *testing.T) {
	ts := newTestServer(t)
	w, _ := mcpCall(ts, "", "initialize", nil)
	session := w.Header().Get("Mcp-Session-Id")

	_, resp := mcpCall(ts, session, "tools/list", nil)
	require.Nil(t, resp.Error)
	for _, tool := range resp.Result.(map[string]any)["tools"].([]any) {
		schema := tool.(map[string]any)["inputSchema"].(map[string]any)
		assert.Equal(t, "object", schema["type"])
		assert.Equal(t, []any{"query"}, schema["required"])
		assert.Contains(t, schema["properties"], "query")
	}

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var parsed MCPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, rpcParseError, parsed.Error.Code)
}
