package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/treatment-api/internal/platform/auth"
	"github.com/ehr/treatment-api/internal/platform/docstore"
	"github.com/ehr/treatment-api/internal/platform/httperr"
	"github.com/ehr/treatment-api/internal/platform/validation"
)

const missingCreateFields = "name, gender, symptoms, identity or birth"

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts /patient on a group already guarded by auth.Protect.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patient", h.List)
	g.POST("/patient", h.Create)
	g.GET("/patient/:id", h.Get)
	g.PUT("/patient/:id", h.Update)
	g.DELETE("/patient/:id", h.Delete)
}

func fail(kind httperr.Kind, key, msg string) error {
	return httperr.New(kind, echo.Map{"success": false, key: msg})
}

func (h *Handler) upstream(op string, err error) error {
	h.logger.Warn().Err(err).Str("op", op).Msg("patient store failure")
	return httperr.Upstream(err)
}

func (h *Handler) List(c echo.Context) error {
	caller := auth.CallerFromContext(c.Request().Context())

	patients, err := h.svc.List(c.Request().Context(), caller)
	switch {
	case errors.Is(err, ErrForbidden):
		return fail(httperr.Forbidden, "message", "Unauthorized. Patients does not correspond with doctor "+caller)
	case docstore.IsNotFound(err):
		return fail(httperr.NotFound, "message", docstore.Reason(err))
	case err != nil:
		return h.upstream("list", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": patients})
}

func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	caller := auth.CallerFromContext(c.Request().Context())

	p, err := h.svc.Get(c.Request().Context(), caller, id)
	switch {
	case errors.Is(err, ErrForbidden):
		return fail(httperr.Forbidden, "message", "You are not authorized to access this patient")
	case errors.Is(err, ErrNotFound):
		return fail(httperr.NotFound, "response", "Patient not found with id of "+id)
	case err != nil:
		return h.upstream("get", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": p})
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return fail(httperr.InvalidInput, "missing_data", missingCreateFields)
	}
	if err := c.Validate(&req); err != nil {
		h.logger.Debug().Strs("fields", validation.Fields(err)).Msg("patient create rejected")
		return fail(httperr.InvalidInput, "missing_data", missingCreateFields)
	}

	caller := auth.CallerFromContext(c.Request().Context())
	res, err := h.svc.Create(c.Request().Context(), caller, req)

	var dup *DuplicateError
	switch {
	case errors.As(err, &dup):
		return fail(httperr.InvalidInput, "message", dup.Error())
	case docstore.IsNotFound(err):
		return fail(httperr.NotFound, "message", docstore.Reason(err))
	case err != nil:
		return h.upstream("create", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": res})
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return fail(httperr.InvalidInput, "message", "invalid request body")
	}

	caller := auth.CallerFromContext(c.Request().Context())
	res, err := h.svc.Update(c.Request().Context(), caller, id, req)
	var dup *DuplicateError
	switch {
	case errors.As(err, &dup):
		return fail(httperr.InvalidInput, "message", dup.Error())
	case errors.Is(err, ErrNotFound):
		return fail(httperr.NotFound, "message", "Patient id "+id+" not found")
	case errors.Is(err, ErrForbidden):
		return fail(httperr.Forbidden, "message", "You are not authorized to update this patient")
	case docstore.IsConflict(err):
		return fail(httperr.Conflict, "message", docstore.Reason(err))
	case errors.Is(err, ErrUnexpectedStatus):
		h.logger.Error().Str("patient", id).Msg("unexpected status from patient update")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false})
	case err != nil:
		return h.upstream("update", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": res})
}

func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")
	caller := auth.CallerFromContext(c.Request().Context())

	res, err := h.svc.Delete(c.Request().Context(), caller, id)
	switch {
	case errors.Is(err, ErrForbidden):
		return fail(httperr.Forbidden, "message", "You are not authorized to delete this patient")
	case errors.Is(err, ErrNotFound):
		return fail(httperr.NotFound, "message", "Patient not found")
	case docstore.IsBadRequest(err):
		return fail(httperr.InvalidInput, "message", docstore.Reason(err))
	case err != nil:
		return h.upstream("delete", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": res})
}
