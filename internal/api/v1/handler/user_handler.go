package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"trove/internal/api/v1/dto"
	"trove/internal/middleware"
	"trove/internal/service"
)

// UserHandler handles the caller's profile and tier endpoints
type UserHandler struct {
	userService service.UserService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService service.UserService, validate *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		validate:    validate,
		logger:      logger,
	}
}

// RegisterRoutes mounts user routes
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users/me", func(r chi.Router) {
		r.Post("/", h.bootstrap)
		r.Get("/", h.getMe)
		r.Get("/tier", h.getTier)
	})
}

// bootstrap godoc
// @Summary Create the caller's profile
// @Description Creates users/{uid} on the free tier with zeroed usage. Idempotent.
// @Tags users
// @Accept json
// @Produce json
// @Param user body dto.UserCreateDTO false "Profile overrides"
// @Success 200 {object} dto.UserResponseDTO
// @Router /users/me [post]
func (h *UserHandler) bootstrap(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req dto.UserCreateDTO
	if r.ContentLength != 0 {
		if !decode(w, r, h.validate, h.logger, &req) {
			return
		}
	}
	profile := service.Profile{Name: req.Name, Email: req.Email, AvatarURL: req.AvatarURL}
	if claims, ok := middleware.ClaimsFrom(r.Context()); ok {
		if profile.Name == "" {
			profile.Name = claims.Name
		}
		if profile.Email == "" {
			profile.Email = claims.Email
		}
		if profile.AvatarURL == "" {
			profile.AvatarURL = claims.Picture
		}
	}

	u, err := h.userService.Bootstrap(r.Context(), uid, profile)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.User(u))
}

func (h *UserHandler) getMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := h.userService.Get(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.User(u))
}

// getTier godoc
// @Summary Get tier limits and current usage
// @Tags users
// @Produce json
// @Success 200 {object} dto.TierInfoResponseDTO
// @Failure 404 {object} dto.ErrorResponseDTO
// @Router /users/me/tier [get]
func (h *UserHandler) getTier(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	info, err := h.userService.GetUserTierInfo(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TierInfo(info))
}
