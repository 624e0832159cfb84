package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"trove/internal/api/v1/dto"
	"trove/internal/model"
	"trove/internal/repository"
	"trove/internal/service"
)

const (
	maxPhotoUpload = 50 << 20
	photoMemory    = 8 << 20
)

// ItemHandler handles items and photo uploads in collections and
// sub-collections
type ItemHandler struct {
	itemService service.ItemService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewItemHandler creates a new ItemHandler
func NewItemHandler(itemService service.ItemService, validate *validator.Validate, logger zerolog.Logger) *ItemHandler {
	return &ItemHandler{
		itemService: itemService,
		validate:    validate,
		logger:      logger,
	}
}

// RegisterRoutes mounts item routes under both container kinds
func (h *ItemHandler) RegisterRoutes(r chi.Router) {
	for _, base := range []string{
		"/collections/{collectionID}/items",
		"/collections/{collectionID}/subcollections/{subID}/items",
	} {
		r.Get(base, h.list)
		r.Post(base, h.create)
		r.Get(base+"/{itemID}", h.get)
		r.Delete(base+"/{itemID}", h.delete)
		r.Post(base+"/{itemID}/photos", h.uploadPhoto)
	}
}

func container(r *http.Request, uid string) repository.Container {
	return repository.Container{
		UserID:          uid,
		CollectionID:    chi.URLParam(r, "collectionID"),
		SubCollectionID: chi.URLParam(r, "subID"),
	}
}

// response signs every photo url. A signing failure leaves that url empty.
func (h *ItemHandler) response(ctx context.Context, it *model.Item) dto.ItemResponseDTO {
	urls := make([]string, len(it.Photos))
	for i, p := range it.Photos {
		url, err := h.itemService.PhotoURL(ctx, p)
		if err != nil {
			h.logger.Warn().Err(err).Str("item_id", it.ID).Str("photo_id", p.ID).Msg("Failed to sign photo url")
			continue
		}
		urls[i] = url
	}
	return dto.Item(it, urls)
}

func (h *ItemHandler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	items, err := h.itemService.ListItems(r.Context(), uid, container(r, uid))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]dto.ItemResponseDTO, 0, len(items))
	for i := range items {
		resp = append(resp, h.response(r.Context(), &items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// create godoc
// @Summary Add an item
// @Description Validates attributes against the resolved template, coerces them and reserves quota.
// @Tags items
// @Accept json
// @Produce json
// @Param item body dto.ItemCreateDTO true "Item"
// @Success 201 {object} dto.ItemResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO "Every violation is listed"
// @Failure 403 {object} dto.ErrorResponseDTO "Quota exceeded"
// @Router /collections/{collectionID}/items [post]
func (h *ItemHandler) create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req dto.ItemCreateDTO
	if !decode(w, r, h.validate, h.logger, &req) {
		return
	}
	it, err := h.itemService.CreateItem(r.Context(), uid, container(r, uid), req.Input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.response(r.Context(), it))
}

func (h *ItemHandler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	it, err := h.itemService.GetItem(r.Context(), uid, container(r, uid), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.response(r.Context(), it))
}

func (h *ItemHandler) delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.itemService.DeleteItem(r.Context(), uid, container(r, uid), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadPhoto godoc
// @Summary Attach a photo to an item
// @Tags items
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Photo"
// @Success 201 {object} dto.PhotoResponseDTO
// @Failure 403 {object} dto.ErrorResponseDTO "Quota exceeded"
// @Failure 413 {object} dto.ErrorResponseDTO
// @Router /collections/{collectionID}/items/{itemID}/photos [post]
func (h *ItemHandler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoUpload)
	if err := r.ParseMultipartForm(photoMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, dto.ErrorResponseDTO{Error: "photo too large"})
			return
		}
		badRequest(w, "invalid multipart form: %v", err)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file part")
		return
	}
	defer file.Close()

	up := service.PhotoUpload{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        file,
	}
	p, err := h.itemService.UploadPhoto(r.Context(), uid, container(r, uid), chi.URLParam(r, "itemID"), up)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	url, err := h.itemService.PhotoURL(r.Context(), *p)
	if err != nil {
		h.logger.Warn().Err(err).Str("photo_id", p.ID).Msg("Failed to sign photo url")
	}
	writeJSON(w, http.StatusCreated, dto.Photo(*p, url))
}
