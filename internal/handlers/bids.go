package handlers

import (
	"net/http"
	"strconv"

	"gigmarket/internal/projection"
	"gigmarket/internal/service"
	"gigmarket/models"
)

func (h *Handler) CreateBidHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	var in service.BidInput
	if !h.decode(w, r, &in) {
		return
	}
	bid, err := h.Service.SubmitBid(r.Context(), u, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// EditBidHandler обрабатывает PATCH /api/bids/{bidId}; решённые заявки не меняются
func (h *Handler) EditBidHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "bidId")
	if !ok {
		return
	}
	var in service.BidInput
	if !h.decode(w, r, &in) {
		return
	}
	bid, err := h.Service.UpdateBid(r.Context(), u, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (h *Handler) DeleteBidHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "bidId")
	if !ok {
		return
	}
	if err := h.Service.DeleteBid(r.Context(), u, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitBidDecisionHandler обрабатывает POST /api/bids/{bidId}/accept и /reject
func (h *Handler) SubmitBidDecisionHandler(accept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := actor(w, r)
		if !ok {
			return
		}
		id, ok := urlID(w, r, "bidId")
		if !ok {
			return
		}
		var (
			bid projection.Fields
			err error
		)
		if accept {
			bid, err = h.Service.AcceptBid(r.Context(), u, id)
		} else {
			bid, err = h.Service.RejectBid(r.Context(), u, id)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bid)
	}
}

func (h *Handler) GetBidHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "bidId")
	if !ok {
		return
	}
	bid, err := h.Service.GetBid(r.Context(), u, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// ListBidsHandler обрабатывает GET /api/bids?mode=origin&task_id=1&bid_type=pending
func (h *Handler) ListBidsHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	q := service.BidQuery{
		Bucket:  models.Bucket(r.URL.Query().Get("bid_type")),
		Keyword: r.URL.Query().Get("keyword"),
		Page:    parsePaginationParams(r),
	}
	if q.Origin, q.Worker, ok = mode(r); !ok {
		http.Error(w, "Invalid mode", http.StatusBadRequest)
		return
	}
	if v := r.URL.Query().Get("task_id"); v != "" {
		taskID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || taskID <= 0 {
			http.Error(w, "Invalid task_id", http.StatusBadRequest)
			return
		}
		q.TaskID = &taskID
	}
	list, err := h.Service.ListBids(r.Context(), u, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ListBidSummaryHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := actor(w, r)
	if !ok {
		return
	}
	q := service.SummaryQuery{
		Bucket:  models.Bucket(r.URL.Query().Get("bid_type")),
		Keyword: r.URL.Query().Get("keyword"),
		Page:    parsePaginationParams(r),
	}
	list, err := h.Service.ListBidSummary(r.Context(), u, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
