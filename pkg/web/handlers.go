package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/playground/pkg/middleware"
	"github.com/dukex/playground/pkg/services"
	"github.com/dukex/playground/pkg/state"
)

// APIHandlers serves the session over HTTP. Every request reads and mutates through a
// subscription of the middleware chain, the same way an in-process UI consumer would.
type APIHandlers struct {
	hook      middleware.Hook
	store     *state.Store
	variants  *services.Variants
	validator *validator.Validate
}

func NewAPIHandlers(
	hook middleware.Hook,
	store *state.Store,
	variants *services.Variants,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		hook:      hook,
		store:     store,
		variants:  variants,
		validator: validator,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/state", h.GetState)
	router.Post("/revalidate", h.Revalidate)

	v := router.Group("/variants")
	v.Get("/", h.GetVariants)
	v.Post("/", h.CreateVariant)
	v.Get("/:id", h.GetVariant)
	v.Delete("/:id", h.DeleteVariant)
	v.Get("/:id/dirty", h.GetVariantDirty)
	v.Post("/:id/save", h.SaveVariant)
	v.Patch("/:id/properties/:propertyId", h.UpdateProperty)

	router.Put("/selection", h.SetSelection)

	r := router.Group("/rows")
	r.Post("/", h.AddRow)
	r.Patch("/:id", h.UpdateRow)
	r.Delete("/:id", h.DeleteRow)

	router.Post("/runs", h.Run)
}

func (h *APIHandlers) subscribe(c fiber.Ctx, variantID string) *middleware.Subscription {
	return h.hook("http:"+c.Method()+" "+c.Path(), middleware.Config{VariantID: variantID})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.variants.HealthCheck(c.Context())

	stateCheck, stateOk := "State loaded", true
	if err := h.store.Snapshot().Error; err != nil {
		stateCheck, stateOk = "Last revalidation failed: "+err.Error(), false
	}

	status := "unhealthy"
	message := "Playground API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk && stateOk {
		status = "healthy"
		message = "Playground API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"state":      stateCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetState(c fiber.Ctx) error {
	return c.JSON(TransformState(h.store.Snapshot()))
}

func (h *APIHandlers) Revalidate(c fiber.Ctx) error {
	sub := h.subscribe(c, "")

	if err := sub.Schema.Revalidate(c.Context()); err != nil {
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("revalidate_failed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)
	}

	return c.JSON(TransformState(h.store.Snapshot()))
}

func (h *APIHandlers) GetVariants(c fiber.Ctx) error {
	sub := h.subscribe(c, "")
	st := h.store.Snapshot()

	list := sub.Variants.List()
	out := make([]VariantSummary, 0, len(list))

	for _, v := range list {
		out = append(out, TransformVariantSummary(v, st))
	}

	return c.JSON(out)
}

func (h *APIHandlers) GetVariant(c fiber.Ctx) error {
	id := c.Params("id")

	variant := h.subscribe(c, id).Variant.Get()
	if variant == nil {
		return notFound(c, "variant_not_found", "Variant not found")
	}

	return c.JSON(variant)
}

func (h *APIHandlers) GetVariantDirty(c fiber.Ctx) error {
	id := c.Params("id")
	sub := h.subscribe(c, id)

	if sub.Variant.Get() == nil {
		return notFound(c, "variant_not_found", "Variant not found")
	}

	resp := DirtyResponse{VariantID: id, Dirty: sub.Dirty.IsDirty(id)}

	if resp.Dirty {
		changes, err := sub.Dirty.Changes(id)

		switch {
		case err == nil:
			resp.Changes = &changes
		case !errors.Is(err, middleware.ErrNoService):
			return handleServiceError(c, err)
		}
	}

	return c.JSON(resp)
}

func (h *APIHandlers) UpdateProperty(c fiber.Ctx) error {
	var req UpdatePropertyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	sub := h.subscribe(c, c.Params("id"))

	variant, err := sub.Variant.UpdateProperty(c.Context(), c.Params("propertyId"), req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(variant)
}

func (h *APIHandlers) SaveVariant(c fiber.Ctx) error {
	variant, err := h.subscribe(c, c.Params("id")).Variant.Save(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(variant)
}

func (h *APIHandlers) DeleteVariant(c fiber.Ctx) error {
	err := h.subscribe(c, c.Params("id")).Variant.Delete(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateVariant(c fiber.Ctx) error {
	var req CreateVariantRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.subscribe(c, "").Variants.CreateFromBase(c.Context(), req.BaseVariantID, req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) SetSelection(c fiber.Ctx) error {
	var req SelectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sub := h.subscribe(c, "")

	if err := sub.UI.SetDisplayedVariants(c.Context(), req.VariantIDs); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"selected": sub.UI.DisplayedVariantIDs()})
}

func (h *APIHandlers) AddRow(c fiber.Ctx) error {
	var req AddRowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sub := h.subscribe(c, "")

	var (
		id  string
		err error
	)

	if req.ChatRowID != "" {
		role := req.Role
		if role == "" {
			role = "user"
		}

		id, err = sub.UI.AddChatMessage(c.Context(), req.ChatRowID, role, req.Content)
	} else {
		id, err = sub.UI.AddRow(c.Context())
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *APIHandlers) UpdateRow(c fiber.Ctx) error {
	var req UpdateRowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.subscribe(c, "").UI.UpdateRowVariable(c.Context(), c.Params("id"), req.Key, req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeleteRow(c fiber.Ctx) error {
	if err := h.subscribe(c, "").UI.DeleteRow(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Run dispatches jobs and returns without waiting for results; the run slots report progress.
func (h *APIHandlers) Run(c fiber.Ctx) error {
	var req RunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.subscribe(c, "").UI.RunTests(c.Context(), req.RowID, req.VariantIDs...); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"dispatched": true})
}
