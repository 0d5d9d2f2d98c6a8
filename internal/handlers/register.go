package handlers

import (
	"net/http"

	"gigmarket/internal/service"
)

// RegisterHandler обрабатывает POST /api/register; доступен без токена
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if !h.decode(w, r, &in) {
		return
	}
	user, err := h.Service.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
