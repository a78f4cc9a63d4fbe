// Package server exposes health, metrics and conversation history over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/lattice-discord/pkg/metrics"
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

// HistoryReader returns the stored messages of a thread.
type HistoryReader interface {
	History(ctx context.Context, threadID string) ([]models.Message, error)
}

// StatusFunc reports whether the Discord session is connected.
type StatusFunc func() bool

type Options struct {
	Address string
	Metrics *metrics.Metrics
	History HistoryReader
	// ExposeHistory mounts /threads/:id. Stored threads hold user messages
	// and ids, so the route is off unless asked for.
	ExposeHistory bool
	Connected     StatusFunc
	Logger        *zap.Logger
}

type Server struct {
	echo    *echo.Echo
	addr    string
	started time.Time
	opts    Options
	logger  *zap.Logger
}

type healthResponse struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime_seconds"`
	Connected bool    `json:"discord_connected"`
	Runs      int64   `json:"agent_runs"`
	Failed    int64   `json:"agent_runs_failed"`
}

type historyResponse struct {
	ThreadID string           `json:"thread_id"`
	Messages []models.Message `json:"messages"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	s := &Server{echo: e, addr: opts.Address, started: time.Now(), opts: opts, logger: logger.Named("http")}
	e.GET("/healthz", s.health)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}
	if opts.ExposeHistory && opts.History != nil {
		e.GET("/threads/:id", s.history)
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("address", s.addr))
		errCh <- s.echo.Start(s.addr)
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
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) health(c echo.Context) error {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Seconds(),
	}
	if s.opts.Connected != nil {
		resp.Connected = s.opts.Connected()
		if !resp.Connected {
			resp.Status = "degraded"
		}
	}
	snap := s.opts.Metrics.Snapshot()
	resp.Runs, resp.Failed = snap.Runs, snap.Failed
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) history(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread id required")
	}
	msgs, err := s.opts.History.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(msgs) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return c.JSON(http.StatusOK, historyResponse{ThreadID: id, Messages: msgs})
}
