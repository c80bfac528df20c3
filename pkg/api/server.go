// Package api exposes the toy simulations and the iterative reconstructor
// over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	serviceName     = "ctraysim"
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 32 << 20
)

// Server is the HTTP front end.
type Server struct {
	addr      string
	logger    *slog.Logger
	metrics   *Metrics
	router    *gin.Engine
	newSource func() rand.Source
}

// Option configures a Server.
type Option func(*Server)

// WithSourceFactory sets the random source used per Monte Carlo request.
func WithSourceFactory(f func() rand.Source) Option {
	return func(s *Server) {
		if f != nil {
			s.newSource = f
		}
	}
}

// NewServer builds the router. A nil logger uses slog.Default().
func NewServer(addr string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    addr,
		logger:  logger,
		metrics: NewMetrics(),
		newSource: func() rand.Source {
			seed := uint64(time.Now().UnixNano())
			return rand.NewPCG(seed, seed>>1|1)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Metrics returns the service collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) setupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(bodyLimitMiddleware(maxBodyBytes))
	router.Use(s.metrics.middleware())
	router.Use(accessLogMiddleware(s.logger))

	router.GET("/", HandleRoot())
	router.GET("/health", HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	router.POST("/simulate_rays", HandleSimulateRays(s.logger, s.metrics))
	router.POST("/monte_carlo", HandleMonteCarlo(s.logger, s.metrics, s.newSource))
	router.POST("/reconstruct", HandleReconstruct(s.logger, s.metrics))
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
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

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestIDMiddleware propagates or assigns an X-Request-ID.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func accessLogMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"request_id", requestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
