package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikeboe/research-analyst/pkg/fusion"
	"github.com/mikeboe/research-analyst/pkg/ingest"
	"github.com/mikeboe/research-analyst/pkg/research"
	"github.com/mikeboe/research-analyst/pkg/retrieval"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SourceSearcher is a vector searcher that can scope results to one indexed source.
type SourceSearcher interface {
	SearchSource(ctx context.Context, query string, k int, source string) ([]retrieval.VectorHit, error)
}

// DocumentIndexer splits, embeds and stores a document.
type DocumentIndexer interface {
	IndexText(ctx context.Context, source, title, text string) (int, error)
}

type Handler struct {
	Service *Service
	Engine  *fusion.Engine
	Vector  retrieval.VectorSearcher
	Edges   ingest.EdgeWriter
	Indexer DocumentIndexer

	sessions *sessionStore
}

func NewHandler(s *Service, engine *fusion.Engine, vector retrieval.VectorSearcher, edges ingest.EdgeWriter, indexer DocumentIndexer) *Handler {
	return &Handler{
		Service:  s,
		Engine:   engine,
		Vector:   vector,
		Edges:    edges,
		Indexer:  indexer,
		sessions: newSessionStore(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/mcp", h.MCPHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api := r.Group("/api")
	{
		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)

		api.POST("/analyze", h.analyze)
		api.POST("/triples", h.addTriples)
		api.POST("/documents", h.addDocument)
	}
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, research.ErrEmptyQuery), errors.Is(err, retrieval.ErrMalformedHit):
		return http.StatusBadRequest
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, retrieval.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.CreateJob(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Service.ListJobs(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

type AnalyzeRequest struct {
	VectorResults []retrieval.VectorHit `json:"vector_results"`
	GraphResults  []retrieval.Triple    `json:"graph_results"`
}

// analyze gates caller-supplied evidence without touching any store.
func (h *Handler) analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := retrieval.ValidateHits(req.VectorResults); err != nil {
		abortWithError(c, err)
		return
	}
	if err := retrieval.ValidateTriples(req.GraphResults); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.Engine.Evaluate(req.VectorResults, req.GraphResults))
}

type AddTriplesRequest struct {
	Triples []retrieval.Triple `json:"triples"`
}

func (h *Handler) addTriples(c *gin.Context) {
	var req AddTriplesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Triples) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no triples provided"})
		return
	}

	if err := ingest.StoreTriples(c.Request.Context(), h.Edges, req.Triples); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"stored": len(req.Triples)})
}

type AddDocumentRequest struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

func (h *Handler) addDocument(c *gin.Context) {
	var req AddDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source and text are required"})
		return
	}

	n, err := h.Indexer.IndexText(c.Request.Context(), req.Source, req.Title, req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chunks": n})
}
