// Package server exposes a running environment over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/signalenv/internal/signals"
	"github.com/danielpatrickdp/signalenv/internal/state"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// #region server-struct
// Server serves the live environment, its sample stream and stored runs.
type Server struct {
	env    *signals.Environment
	hub    *Hub
	store  *state.Store
	logger *slog.Logger
	router *gin.Engine
}

// New builds the router. store may be nil, in which case /runs is absent.
func New(env *signals.Environment, hub *Hub, store *state.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{env: env, hub: hub, store: store, logger: logger, router: gin.New()}
	s.router.Use(gin.Recovery(), s.requestLogger())

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/history", s.handleHistory)
	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if store != nil {
		s.router.GET("/runs", s.handleRuns)
		s.router.GET("/runs/:id/samples", s.handleRunSamples)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// #endregion server-struct

// #region run
// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// #endregion run

// #region handlers
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "steps": s.env.Len()})
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Seed         uint64    `json:"seed"`
	Precision    float64   `json:"precision"`
	State        float64   `json:"state"`
	History      []float64 `json:"history"`
	Observations []float64 `json:"observations"`
}

func (s *Server) handleHistory(c *gin.Context) {
	history, observations := s.env.Snapshot()
	c.JSON(http.StatusOK, HistoryResponse{
		Seed:         s.env.Seed(),
		Precision:    s.env.Precision(),
		State:        s.env.State(),
		History:      history,
		Observations: observations,
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	samples, unregister := s.hub.Register()
	defer unregister()
	s.logger.Debug("websocket client connected", "clients", s.hub.Clients())

	// Reads only detect the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			if err := ws.WriteJSON(sample); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) handleRuns(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}
	if runs == nil {
		runs = []state.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleRunSamples(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.GetRun(id); err != nil {
		if errors.Is(err, state.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		s.logger.Error("get run", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get run failed"})
		return
	}
	samples, err := s.store.Samples(id)
	if err != nil {
		s.logger.Error("list samples", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list samples failed"})
		return
	}
	if samples == nil {
		samples = []signals.Sample{}
	}
	c.JSON(http.StatusOK, samples)
}

// #endregion handlers
