package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Route mounts additional routes on the server.
type Route interface {
	Register(e *echo.Echo, authToken string)
}

// Options configure New.
type Options struct {
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// TwilioAuthToken is handed to every Route for webhook signature checks.
	TwilioAuthToken string
	Routes          []Route
}

// New creates a configured Echo server instance.
func New(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	for _, r := range opts.Routes {
		r.Register(e, opts.TwilioAuthToken)
	}
	return e
}
