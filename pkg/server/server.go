// Package server exposes the knowledge base over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
)

const (
	ServiceName            = "ragdrive"
	DefaultShutdownTimeout = 10 * time.Second
)

// Server serves the query API
type Server struct {
	echo      *echo.Echo
	retriever interfaces.Retriever
	logger    *slog.Logger

	shutdownTimeout time.Duration
	requestSchema   *jsonschema.Schema
}

// Option is a functional option for Server
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// New creates a Server and registers its routes
func New(retriever interfaces.Retriever, opts ...Option) *Server {
	s := &Server{
		echo:            echo.New(),
		retriever:       retriever,
		logger:          logging.Default(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	schema, err := jsonschema.For[QueryRequest](nil)
	if err != nil {
		s.logger.Warn("failed to build request schema", "error", err)
	}
	s.requestSchema = schema

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(s.injectLogger)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			s.logger.Info("request", attrs...)
			return nil
		},
	}))

	e.GET("/health", s.health)
	api := e.Group("/api")
	api.GET("/stats", s.stats)
	api.POST("/query", s.query)
	api.POST("/chat", s.query)
	api.GET("/docs", s.docs)

	return s
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) injectLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		c.SetRequest(req.WithContext(logging.With(req.Context(), s.logger)))
		return next(c)
	}
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("API server started", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "failed to start API server", goerr.V("addr", addr))
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down API server")
	}
	return nil
}
