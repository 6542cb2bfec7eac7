// Package http serves the docqa session API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/operations"
	"github.com/fyrsmithlabs/docqa/internal/qa"
	"github.com/fyrsmithlabs/docqa/internal/session"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

// Server provides HTTP endpoints for docqa.
type Server struct {
	echo     *echo.Echo
	sessions *session.Manager
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
	// MaxBodyBytes caps request bodies. Zero disables the limit.
	MaxBodyBytes int64
}

// NewServer creates a new HTTP server over sessions.
func NewServer(sessions *session.Manager, logger *logging.Logger, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8420,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		sessions: sessions,
		logger:   logger.Named("http"),
		config:   cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxBodyBytes, 10)))
	}
	e.Use(s.requestContext)
	e.Use(NewHTTPMetrics(s.logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// requestContext attaches the request id and timeout to the request context
// and logs every request.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := req.Context()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidateID(id, "request id") == nil {
			ctx = logging.WithRequestID(ctx, id)
		}
		if s.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
			defer cancel()
		}
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/languages", s.handleLanguages)
	v1.GET("/sessions", s.handleListSessions)
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleEndSession)
	v1.POST("/sessions/:id/documents", s.handleIngest)
	v1.POST("/sessions/:id/translations", s.handleTranslation)
	v1.POST("/sessions/:id/reset", s.handleReset)
	v1.POST("/sessions/:id/context", s.handleContext)
	v1.POST("/sessions/:id/ask", s.handleAsk)
	v1.GET("/operations/:id", s.handleGetOperation)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Sessions: s.sessions.Len()})
}

func (s *Server) handleLanguages(c echo.Context) error {
	tags := language.All()
	resp := LanguagesResponse{Languages: make([]LanguageInfo, len(tags))}
	for i, t := range tags {
		resp.Languages[i] = LanguageInfo{Name: t.String(), Code: t.OCRCode()}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, SessionListResponse{Sessions: s.sessions.List()})
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	info, err := s.sessions.Create(c.Request().Context(), req.InputLanguage, req.TranslationLanguage)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, info)
}

func (s *Server) handleGetSession(c echo.Context) error {
	info, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleGetOperation(c echo.Context) error {
	op, err := s.sessions.Operation(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, op)
}

func (s *Server) handleEndSession(c echo.Context) error {
	if err := s.sessions.End(c.Request().Context(), c.Param("id")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req DocumentRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	report, err := s.sessions.Ingest(c.Request().Context(), c.Param("id"), session.IngestRequest{
		Language: req.Language,
		Pages:    req.Pages,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleTranslation(c echo.Context) error {
	var req DocumentRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	report, err := s.sessions.AddTranslation(c.Request().Context(), c.Param("id"), req.Language, req.Pages)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleReset(c echo.Context) error {
	id := c.Param("id")
	if err := s.sessions.Reset(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	info, err := s.sessions.Get(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleContext(c echo.Context) error {
	var req QuestionRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	bundle, err := s.sessions.Context(c.Request().Context(), c.Param("id"), req.Question)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ContextResponse{
		Context:             bundle.Context,
		QuestionLanguage:    bundle.QuestionLanguage,
		PredominantLanguage: bundle.PredominantLanguage,
		Sources:             bundle.Sources,
		Insufficient:        bundle.Insufficient(),
	})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req QuestionRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	answer, err := s.sessions.Ask(c.Request().Context(), c.Param("id"), req.Question)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid request body", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// fail maps a service error to an HTTP error. Unexpected errors are logged
// and their detail is not sent to the client.
func (s *Server) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, operations.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidLanguage),
		errors.Is(err, session.ErrEmptyDocument),
		errors.Is(err, session.ErrInvalidPage),
		errors.Is(err, session.ErrExtractionFailed),
		errors.Is(err, qa.ErrEmptyQuestion),
		errors.Is(err, language.ErrUnknownLanguage):
		return http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
