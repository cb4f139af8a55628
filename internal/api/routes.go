// Package api exposes the photo pipeline over HTTP.
package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"

	"github.com/menta2k/idphoto/internal/api/handlers"
	"github.com/menta2k/idphoto/internal/app"
	"github.com/menta2k/idphoto/internal/metrics"
)

// NewServer creates the fiber app with every route registered
func NewServer(a *app.App, logger zerolog.Logger) *fiber.App {
	metrics.Init()
	cfg := a.Config.Server

	server := fiber.New(fiber.Config{
		AppName:               "idphoto " + app.Version,
		BodyLimit:             max(1, cfg.BodyLimitMB) << 20,
		ReadTimeout:           time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	server.Use(requestLogger(logger))

	h := handlers.New(a, logger)
	h.RegisterHealthRoutes(server)

	v1 := server.Group("/v1")
	h.RegisterCatalogRoutes(v1)
	h.RegisterLayoutRoutes(v1)
	h.RegisterCropRoutes(v1)
	h.RegisterPhotoRoutes(v1)

	server.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	return server
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// requestLogger counts and logs every request by matched route
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		route := c.Route().Path
		metrics.IncHTTP(route, strconv.Itoa(status))
		logger.Debug().
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("request")
		return err
	}
}
