package handlers

import (
	"net/http"

	"gigmarket/internal/service"
)

// CreateTaskHandler обрабатывает POST /api/tasks
func (h *Handler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.TaskInput
	if !h.decode(w, r, &in) {
		return
	}
	task, err := h.Service.CreateTask(r.Context(), u, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTaskHandler обрабатывает PATCH /api/tasks/{taskId}
func (h *Handler) UpdateTaskHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "taskId")
	if !ok {
		return
	}
	var in service.TaskInput
	if !h.decode(w, r, &in) {
		return
	}
	task, err := h.Service.UpdateTask(r.Context(), u, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "taskId")
	if !ok {
		return
	}
	if err := h.Service.DeleteTask(r.Context(), u, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "taskId")
	if !ok {
		return
	}
	task, err := h.Service.GetTask(r.Context(), u, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListTasksHandler обрабатывает GET /api/tasks?mode=origin|worker&summary=1&keyword=...
func (h *Handler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	q, ok := parseTaskQuery(r)
	if !ok {
		http.Error(w, "Invalid query parameters", http.StatusBadRequest)
		return
	}
	list, err := h.Service.ListTasks(r.Context(), u, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func parseTaskQuery(r *http.Request) (service.TaskQuery, bool) {
	query := r.URL.Query()
	q := service.TaskQuery{
		Keyword:         query.Get("keyword"),
		JobType:         query.Get("job_type"),
		ExperienceLevel: query.Get("experience_level"),
		Page:            parsePaginationParams(r),
	}
	var ok bool
	if q.Origin, q.Worker, ok = mode(r); !ok {
		return q, false
	}
	summary, ok := queryFlag(r, "summary")
	if !ok {
		return q, false
	}
	q.Summary = summary != nil && *summary

	for key, dst := range map[string]**int{"min_bids": &q.MinBids, "max_bids": &q.MaxBids} {
		if *dst, ok = queryInt(r, key); !ok {
			return q, false
		}
	}
	flags := map[string]**bool{
		"is_post_approved":  &q.IsPostApproved,
		"is_post_rejected":  &q.IsPostRejected,
		"manager_assigned":  &q.ManagerAssigned,
		"assignee_assigned": &q.AssigneeAssigned,
	}
	for key, dst := range flags {
		if *dst, ok = queryFlag(r, key); !ok {
			return q, false
		}
	}
	return q, true
}
