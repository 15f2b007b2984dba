// Package httpapi serves the graph query API over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/export"
	"github.com/dusk-indust/codegraph/internal/graph"
)

// Option configures the router.
type Option func(*routerConfig)

type routerConfig struct {
	logger *zap.Logger
	mcp    http.Handler
}

// WithLogger logs each request at info.
func WithLogger(l *zap.Logger) Option {
	return func(c *routerConfig) { c.logger = l }
}

// WithMCP mounts an MCP streamable HTTP handler at /mcp.
func WithMCP(h http.Handler) Option {
	return func(c *routerConfig) { c.mcp = h }
}

// NewRouter returns a gin engine serving the query API backed by q.
func NewRouter(q *graph.QueryService, opts ...Option) *gin.Engine {
	cfg := routerConfig{logger: zap.NewNop()}
	for _, o := range opts {
		o(&cfg)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.logger))

	h := &handlers{query: q, logger: cfg.logger}

	router.GET("/healthz", healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.mcp != nil {
		router.Any("/mcp", gin.WrapH(cfg.mcp))
	}

	v1 := router.Group("/v1")
	{
		projects := v1.Group("/projects/:projectID")
		{
			projects.GET("/summary", h.projectSummary)
			projects.GET("/latest-graph", h.latestGraph)
		}
		graphs := v1.Group("/graphs/:graphID")
		{
			graphs.GET("/summary", h.graphSummary)
			graphs.GET("/visualization", h.visualization)
		}
	}
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type handlers struct {
	query  *graph.QueryService
	logger *zap.Logger
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) projectSummary(c *gin.Context) {
	projectID := c.Param("projectID")
	sum, gid, err := h.query.ProjectSummaryForProject(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "graph_id": gid, "summary": sum})
}

func (h *handlers) latestGraph(c *gin.Context) {
	projectID := c.Param("projectID")
	gid, err := h.query.ResolveLatestGraphID(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "graph_id": gid})
}

func (h *handlers) graphSummary(c *gin.Context) {
	sum, err := h.query.ProjectSummary(c.Request.Context(), c.Param("graphID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// visualization answers JSON by default and Mermaid text for ?format=mermaid.
func (h *handlers) visualization(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "mermaid" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or mermaid"})
		return
	}
	g, err := h.query.ProjectGraphForVisualization(c.Request.Context(), c.Param("graphID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if format == "mermaid" {
		c.String(http.StatusOK, export.GenerateMermaid(g))
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, graph.ErrStoreConnection) {
		status = http.StatusServiceUnavailable
	}
	h.logger.Error("query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

// Serve runs handler on addr until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
