package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/util"
)

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, _ := UserID(r.Context())
	claims, _ := ClaimsFrom(r.Context())
	w.Write([]byte(id + "|" + claims.Email))
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware("secret", zerolog.Nop())(http.HandlerFunc(echoUser))
	token, err := util.SignHS256("secret", "u1", "u1@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + token, http.StatusOK, "u1|u1@example.com"},
		{"lowercase scheme", "bearer " + token, http.StatusOK, "u1|u1@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestLoggerMiddlewarePassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(LoggerMiddleware(zerolog.Nop()))
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/1", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
