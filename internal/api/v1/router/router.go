package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"trove/internal/api/v1/handler"
	"trove/internal/app"
	"trove/internal/metrics"
	"trove/internal/middleware"
)

// New builds the HTTP handler for the API. jwtKey is the HS256 secret or PEM
// public key that bearer tokens are verified against.
func New(a *app.App, jwtKey string, logger zerolog.Logger) http.Handler {
	logger.Info().Str("environment", a.Config.Environment).Msg("Router initialized")

	validate := handler.NewValidator()

	userHandler := handler.NewUserHandler(a.Users, validate, logger)
	templateHandler := handler.NewTemplateHandler(a.Templates, validate, logger)
	collectionHandler := handler.NewCollectionHandler(a.Collections, validate, logger)
	itemHandler := handler.NewItemHandler(a.Items, validate, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LoggerMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtKey, logger))
		userHandler.RegisterRoutes(r)
		templateHandler.RegisterRoutes(r)
		collectionHandler.RegisterRoutes(r)
		itemHandler.RegisterRoutes(r)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
