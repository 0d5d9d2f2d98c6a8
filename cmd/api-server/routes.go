package main

import (
	"net/http"

	"gigmarket/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// newRouter собирает маршруты API; auth оборачивает все маршруты, кроме ping и регистрации
func newRouter(h *handlers.Handler, auth func(http.Handler) http.Handler, logout http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		r.Post("/register", h.RegisterHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/auth/logout", logout)

			// задачи
			r.Get("/tasks", h.ListTasksHandler)
			r.Post("/tasks", h.CreateTaskHandler)
			r.Get("/tasks/{taskId}", h.GetTaskHandler)
			r.Patch("/tasks/{taskId}", h.UpdateTaskHandler)
			r.Delete("/tasks/{taskId}", h.DeleteTaskHandler)
			r.Get("/tasks/{taskId}/subtasks", h.ListSubTasksHandler)

			// заявки (bids)
			r.Get("/bids", h.ListBidsHandler)
			r.Post("/bids", h.CreateBidHandler)
			r.Get("/bids/summary", h.ListBidSummaryHandler)
			r.Get("/bids/{bidId}", h.GetBidHandler)
			r.Patch("/bids/{bidId}", h.EditBidHandler)
			r.Delete("/bids/{bidId}", h.DeleteBidHandler)
			r.Post("/bids/{bidId}/accept", h.SubmitBidDecisionHandler(true))
			r.Post("/bids/{bidId}/reject", h.SubmitBidDecisionHandler(false))

			// подзадачи и счета
			r.Post("/subtasks", h.CreateSubTaskHandler)
			r.Patch("/subtasks/{subTaskId}", h.UpdateSubTaskHandler)
			r.Delete("/subtasks/{subTaskId}", h.DeleteSubTaskHandler)
		})
	})
	return r
}
