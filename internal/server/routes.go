package server

import (
	"storefront/internal/config"
	"storefront/internal/metrics"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, cfg config.Config, m *metrics.Metrics, h Handlers) {
	h.Health.RegisterRoutes(e)
	h.Auth.RegisterRoutes(e, cfg)
	h.Product.RegisterRoutes(e)
	h.Category.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg)
	h.Order.RegisterRoutes(e, cfg)

	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}
