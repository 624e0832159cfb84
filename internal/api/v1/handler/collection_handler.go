package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"trove/internal/api/v1/dto"
	"trove/internal/service"
)

// CollectionHandler handles collection and sub-collection endpoints
type CollectionHandler struct {
	collectionService service.CollectionService
	validate          *validator.Validate
	logger            zerolog.Logger
}

// NewCollectionHandler creates a new CollectionHandler
func NewCollectionHandler(collectionService service.CollectionService, validate *validator.Validate, logger zerolog.Logger) *CollectionHandler {
	return &CollectionHandler{
		collectionService: collectionService,
		validate:          validate,
		logger:            logger,
	}
}

// RegisterRoutes mounts collection routes. Item routes live on ItemHandler.
func (h *CollectionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/collections", h.list)
	r.Post("/collections", h.create)
	r.Get("/collections/{collectionID}", h.get)
	r.Patch("/collections/{collectionID}", h.update)
	r.Delete("/collections/{collectionID}", h.delete)
	r.Get("/collections/{collectionID}/stats", h.stats)

	r.Get("/collections/{collectionID}/subcollections", h.listSubs)
	r.Post("/collections/{collectionID}/subcollections", h.createSub)
	r.Get("/collections/{collectionID}/subcollections/{subID}", h.getSub)
	r.Delete("/collections/{collectionID}/subcollections/{subID}", h.deleteSub)
}

func (h *CollectionHandler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	cs, err := h.collectionService.ListCollections(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Collections(cs))
}

// create godoc
// @Summary Create a collection
// @Description Admits CreateCollection against the caller's tier before writing.
// @Tags collections
// @Accept json
// @Produce json
// @Param collection body dto.CollectionCreateDTO true "Collection"
// @Success 201 {object} dto.CollectionResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO
// @Failure 403 {object} dto.ErrorResponseDTO "Quota exceeded"
// @Router /collections [post]
func (h *CollectionHandler) create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req dto.CollectionCreateDTO
	if !decode(w, r, h.validate, h.logger, &req) {
		return
	}
	c, err := h.collectionService.CreateCollection(r.Context(), uid, req.Input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.Collection(c))
}

func (h *CollectionHandler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	c, err := h.collectionService.GetCollection(r.Context(), uid, chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Collection(c))
}

func (h *CollectionHandler) update(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req dto.CollectionUpdateDTO
	if !decode(w, r, h.validate, h.logger, &req) {
		return
	}
	c, err := h.collectionService.UpdateCollection(r.Context(), uid, chi.URLParam(r, "collectionID"), req.Patch())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Collection(c))
}

func (h *CollectionHandler) delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.collectionService.DeleteCollection(r.Context(), uid, chi.URLParam(r, "collectionID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CollectionHandler) stats(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	s, err := h.collectionService.GetStats(r.Context(), uid, chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Stats(s))
}

func (h *CollectionHandler) listSubs(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	subs, err := h.collectionService.ListSubCollections(r.Context(), uid, chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SubCollections(subs))
}

func (h *CollectionHandler) createSub(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req dto.CollectionCreateDTO
	if !decode(w, r, h.validate, h.logger, &req) {
		return
	}
	s, err := h.collectionService.CreateSubCollection(r.Context(), uid, chi.URLParam(r, "collectionID"), req.Input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.SubCollection(s))
}

func (h *CollectionHandler) getSub(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	s, err := h.collectionService.GetSubCollection(r.Context(), uid, chi.URLParam(r, "collectionID"), chi.URLParam(r, "subID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SubCollection(s))
}

func (h *CollectionHandler) deleteSub(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	err := h.collectionService.DeleteSubCollection(r.Context(), uid, chi.URLParam(r, "collectionID"), chi.URLParam(r, "subID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
