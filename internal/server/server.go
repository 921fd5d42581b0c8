package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/metrics"
	appmw "storefront/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Product  *handler.ProductHandler
	Category *handler.CategoryHandler
	Cart     *handler.CartHandler
	Order    *handler.OrderHandler
	Health   *handler.HealthHandler
}

type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

func New(cfg config.Config, logger *slog.Logger, m *metrics.Metrics, h Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmw.RequestLogger(logger))
	if m != nil {
		e.Use(m.Middleware())
	}

	RegisterRoutes(e, cfg, m, h)

	return &Server{echo: e, addr: cfg.Addr(), logger: logger}
}

// Echo はテスト用
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start は Shutdown されるまで戻らない。
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("address", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("shutting down server")
	return s.echo.Shutdown(ctx)
}
