// Package server exposes the pipeline over HTTP: POST /chat for questions,
// GET /health for readiness, GET /metrics for chat log aggregates.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"ragserver/internal/domain"
	"ragserver/internal/service"
)

type chatRequest struct {
	Question  string         `json:"question"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
}

type Server struct {
	pipeline *service.Pipeline
	log      *zap.Logger
	echo     *echo.Echo
}

func New(pipeline *service.Pipeline, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{pipeline: pipeline, log: log, echo: e}
	e.POST("/chat", s.handleChat)
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	s.log.Info("http server listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
	}

	resp, err := s.pipeline.Ask(c.Request().Context(), service.AskRequest{
		Question:  req.Question,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Metadata:  req.Metadata,
	})
	switch {
	case errors.Is(err, domain.ErrEmptyQuestion):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "question must not be empty"})
	case errors.Is(err, domain.ErrNotReady):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "system is initializing, try again shortly"})
	case err != nil:
		s.log.Error("chat request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	s.log.Info("chat served",
		zap.String("request_id", resp.RequestID),
		zap.String("session_id", resp.SessionID),
		zap.Float64("latency_ms", resp.LatencyMS),
		zap.Float64("retrieval_score", resp.RetrievalScore))
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	ready := s.pipeline.Ready()
	status := "ok"
	code := http.StatusOK
	if !ready {
		status = "initializing"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status":           status,
		"rag_system_ready": ready,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(c echo.Context) error {
	m, err := s.pipeline.Metrics()
	if err != nil {
		s.log.Error("metrics aggregation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, m)
}
