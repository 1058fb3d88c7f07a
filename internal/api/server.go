package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmcdole/b4/internal/metrics"
	"github.com/mmcdole/b4/internal/pipeline"
	"github.com/mmcdole/b4/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// Operations is the bundle behaviour the HTTP surface exposes
type Operations interface {
	Create(ctx context.Context, name string) pipeline.Result
	Fetch(ctx context.Context, id string) pipeline.Result
	Rename(ctx context.Context, id, name string) pipeline.Result
	AddBook(ctx context.Context, id, bookID string) pipeline.Result
	RemoveBook(ctx context.Context, id, bookID string) pipeline.Result
	SearchBooks(ctx context.Context, id, query string) pipeline.Result
}

// Options configures a Server
type Options struct {
	Addr    string
	Limiter *ratelimit.Limiter // nil disables rate limiting
	Metrics *metrics.Metrics   // nil disables /metrics
	Logger  *slog.Logger
}

// Server is the bundle REST API
type Server struct {
	ops    Operations
	addr   string
	engine *gin.Engine
	logger *slog.Logger
}

// NewServer wires the bundle routes onto a gin engine
func NewServer(ops Operations, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(requestID(), requestLogger(logger), recovery(logger), rateLimit(opts.Limiter))

	s := &Server{ops: ops, addr: opts.Addr, engine: engine, logger: logger}

	engine.GET("/health", s.health)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := engine.Group("/api/bundle")
	api.POST("", s.createBundle)
	api.GET("/:id", s.fetchBundle)
	api.GET("/:id/books", s.searchBooks)
	api.PUT("/:id/name/:name", s.renameBundle)
	api.PUT("/:id/book/:pgid", s.addBook)
	api.DELETE("/:id/book/:pgid", s.removeBook)

	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// opContext detaches an operation from client disconnects: once a step's
// call is issued it runs to completion.
func opContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// POST /api/bundle?name=<name>
func (s *Server) createBundle(c *gin.Context) {
	render(c, s.ops.Create(opContext(c), c.Query("name")))
}

// GET /api/bundle/:id
func (s *Server) fetchBundle(c *gin.Context) {
	render(c, s.ops.Fetch(opContext(c), c.Param("id")))
}

// GET /api/bundle/:id/books?q=<query>
func (s *Server) searchBooks(c *gin.Context) {
	render(c, s.ops.SearchBooks(opContext(c), c.Param("id"), c.Query("q")))
}

// PUT /api/bundle/:id/name/:name
func (s *Server) renameBundle(c *gin.Context) {
	render(c, s.ops.Rename(opContext(c), c.Param("id"), c.Param("name")))
}

// PUT /api/bundle/:id/book/:pgid
func (s *Server) addBook(c *gin.Context) {
	render(c, s.ops.AddBook(opContext(c), c.Param("id"), c.Param("pgid")))
}

// DELETE /api/bundle/:id/book/:pgid
func (s *Server) removeBook(c *gin.Context) {
	render(c, s.ops.RemoveBook(opContext(c), c.Param("id"), c.Param("pgid")))
}
