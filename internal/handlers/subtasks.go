package handlers

import (
	"net/http"

	"gigmarket/internal/service"
)

func (h *Handler) CreateSubTaskHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.SubTaskInput
	if !h.decode(w, r, &in) {
		return
	}
	st, err := h.Service.CreateSubTask(r.Context(), u, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) UpdateSubTaskHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "subTaskId")
	if !ok {
		return
	}
	var in service.SubTaskInput
	if !h.decode(w, r, &in) {
		return
	}
	st, err := h.Service.UpdateSubTask(r.Context(), u, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) DeleteSubTaskHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "subTaskId")
	if !ok {
		return
	}
	if err := h.Service.DeleteSubTask(r.Context(), u, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubTasksHandler обрабатывает GET /api/tasks/{taskId}/subtasks
func (h *Handler) ListSubTasksHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	taskID, ok := urlID(w, r, "taskId")
	if !ok {
		return
	}
	summary, ok := queryFlag(r, "summary")
	if !ok {
		http.Error(w, "Invalid summary", http.StatusBadRequest)
		return
	}
	list, err := h.Service.ListSubTasks(r.Context(), u, taskID, summary != nil && *summary, parsePaginationParams(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
