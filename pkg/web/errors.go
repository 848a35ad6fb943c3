package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/playground/pkg/middleware"
	"github.com/dukex/playground/pkg/openapi"
	"github.com/dukex/playground/pkg/persistence"
	"github.com/dukex/playground/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps store, middleware and service errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), errors.Is(err, middleware.ErrInvalidValue):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, middleware.ErrVariantNotFound), persistence.IsVariantNotFound(err):
		return notFound(c, "variant_not_found", err.Error())

	case errors.Is(err, middleware.ErrPropertyNotFound):
		return notFound(c, "property_not_found", err.Error())

	case errors.Is(err, middleware.ErrRowNotFound):
		return notFound(c, "row_not_found", err.Error())

	case errors.Is(err, openapi.ErrNoSpec), errors.Is(err, openapi.ErrSchemaNotFound):
		return notFound(c, "no_spec", err.Error())

	case errors.Is(err, middleware.ErrNoService):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("service_unavailable").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		return internalError(c, err)
	}
}
