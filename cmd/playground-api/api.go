package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/playground/pkg/middleware"
	"github.com/dukex/playground/pkg/services"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/web"
)

type API struct {
	logger   *slog.Logger
	hook     middleware.Hook
	store    *state.Store
	variants *services.Variants
	validate *validator.Validate
	app      *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	hook middleware.Hook,
	store *state.Store,
	variants *services.Variants,
) *API {
	return &API{
		logger:   logger,
		hook:     hook,
		store:    store,
		variants: variants,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.hook, a.store, a.variants, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(_ fiber.Ctx) bool {
			return a.store.Snapshot().Error == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Playground API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	a.app = a.App()

	return a.app.Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.app == nil {
		return nil
	}

	return a.app.ShutdownWithContext(ctx)
}
