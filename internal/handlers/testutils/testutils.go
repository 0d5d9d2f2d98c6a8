package testutils

import (
	"context"
	"net/http"

	"gigmarket/internal/identity"
	"gigmarket/models"

	"github.com/go-chi/chi/v5"
)

// WithChiURLParams подставляет параметры пути в контекст chi запроса для тестов.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// WithActor кладёт пользователя в контекст так же, как это делает middleware аутентификации.
func WithActor(req *http.Request, user *models.User) *http.Request {
	return req.WithContext(identity.WithActor(req.Context(), user))
}
