package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"trove/internal/api/v1/dto"
	"trove/internal/service"
)

// TemplateHandler exposes the schema registry
type TemplateHandler struct {
	templateService service.TemplateService
	validate        *validator.Validate
	logger          zerolog.Logger
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(templateService service.TemplateService, validate *validator.Validate, logger zerolog.Logger) *TemplateHandler {
	return &TemplateHandler{
		templateService: templateService,
		validate:        validate,
		logger:          logger,
	}
}

// RegisterRoutes mounts template routes
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Post("/duplicate", h.duplicate)
		})
	})
}

// list godoc
// @Summary List templates
// @Description Built-in templates first, then custom templates by usage.
// @Tags templates
// @Produce json
// @Param include_inactive query bool false "Include soft-deleted templates"
// @Success 200 {array} dto.TemplateResponseDTO
// @Router /templates [get]
func (h *TemplateHandler) list(w http.ResponseWriter, r *http.Request) {
	includeInactive := false
	if raw := r.URL.Query().Get("include_inactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "include_inactive must be a boolean")
			return
		}
		includeInactive = v
	}
	ts, err := h.templateService.ListAll(r.Context(), includeInactive)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Templates(ts))
}

func (h *TemplateHandler) create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req dto.TemplateRequestDTO
	if !decode(w, r, h.validate, h.logger, &req) {
		return
	}
	t, err := h.templateService.Create(r.Context(), uid, req.Definition())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.Template(t))
}

func (h *TemplateHandler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.templateService.Resolve(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Template(t))
}

func (h *TemplateHandler) update(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req dto.TemplateRequestDTO
	if !decode(w, r, h.validate, h.logger, &req) {
		return
	}
	t, err := h.templateService.Update(r.Context(), uid, chi.URLParam(r, "templateID"), req.Definition())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Template(t))
}

func (h *TemplateHandler) delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.templateService.SoftDelete(r.Context(), uid, chi.URLParam(r, "templateID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// duplicate godoc
// @Summary Copy a template
// @Description Creates "<name> (Copy)" owned by the caller.
// @Tags templates
// @Produce json
// @Param templateID path string true "Source template"
// @Success 201 {object} dto.TemplateResponseDTO
// @Failure 403 {object} dto.ErrorResponseDTO
// @Router /templates/{templateID}/duplicate [post]
func (h *TemplateHandler) duplicate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	t, err := h.templateService.Duplicate(r.Context(), uid, chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.Template(t))
}
