package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gigmarket/internal/handlers"

	"github.com/stretchr/testify/require"
)

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func TestRouter(t *testing.T) {
	logout := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	router := newRouter(handlers.NewHandler(nil, nil, 0), denyAll, logout)

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/api/ping", http.StatusOK},
		{http.MethodGet, "/api/tasks", http.StatusUnauthorized},
		{http.MethodPost, "/api/bids/3/accept", http.StatusUnauthorized},
		{http.MethodGet, "/api/bids/summary", http.StatusUnauthorized},
		{http.MethodPost, "/api/auth/logout", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, tt.status, w.Code, "%s %s", tt.method, tt.path)
	}
}

func TestRouter_RegisterIsPublic(t *testing.T) {
	router := newRouter(handlers.NewHandler(nil, nil, 0), denyAll, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/register", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// пустое тело отклоняется разбором JSON, а не аутентификацией
	require.Equal(t, http.StatusBadRequest, w.Code)
}
