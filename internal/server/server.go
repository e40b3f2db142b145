package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ghepes/checkout-ui-app/internal/client"
	"github.com/Ghepes/checkout-ui-app/internal/handler"
	"github.com/Ghepes/checkout-ui-app/internal/repository"
	"github.com/Ghepes/checkout-ui-app/internal/service"
)

type Server struct {
	echo              *echo.Echo
	checkoutHandler   *handler.CheckoutHandler
	webhookHandler    *handler.WebhookHandler
	settlementHandler *handler.SettlementHandler
}

func NewServer(
	gateway client.Gateway,
	checkoutService service.CheckoutService,
	settlementService service.SettlementService,
	attemptRepo repository.TransferAttemptRepository,
	allowedOrigins []string,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				slog.Error("request", "method", v.Method, "uri", v.URI, "status", v.Status, "err", v.Error)
			} else {
				slog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			}
			return nil
		},
	}))

	s := &Server{
		echo:              e,
		checkoutHandler:   handler.NewCheckoutHandler(checkoutService),
		webhookHandler:    handler.NewWebhookHandler(gateway, settlementService),
		settlementHandler: handler.NewSettlementHandler(attemptRepo),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/checkout", s.checkoutHandler.CreateCheckout)
	s.echo.POST("/webhooks", s.webhookHandler.HandleWebhook)

	// -------- operator --------
	s.echo.GET("/settlements/failed", s.settlementHandler.ListFailedTransfers)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
