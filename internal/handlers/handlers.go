package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"gigmarket/internal/apperr"
	"gigmarket/internal/identity"
	"gigmarket/models"

	"github.com/go-chi/chi/v5"
)

const defaultMaxBody = 1048576

// Handler оборачивает сервис для HTTP-слоя
type Handler struct {
	Service ServiceInterface
	logger  *log.Logger
	maxBody int64
}

// NewHandler создает новый Handler
func NewHandler(svc ServiceInterface, logger *log.Logger, maxBody int64) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Handler{Service: svc, logger: logger, maxBody: maxBody}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// decode читает тело запроса с ограничением размера
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError отдаёт ошибку предметной области; подробности внутренних ошибок только в лог
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Internal server error"})
		return
	}
	body := errorBody{Message: err.Error()}
	var e *apperr.Error
	if errors.As(err, &e) {
		body.Message, body.Errors = e.Message, e.Fields
	}
	writeJSON(w, kind.Status(), body)
}

// actor достаёт пользователя из контекста; без него запрос не обслуживается
func actor(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u := identity.ActorFrom(r.Context())
	if u == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return u, true
}

func urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// parsePaginationParams парсит page и limit из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) models.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return models.NewPage(page, limit)
}

// queryFlag понимает 1/0 и true/false; пустое значение означает «не задано»
func queryFlag(r *http.Request, key string) (*bool, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, false
	}
	return &b, true
}

func queryInt(r *http.Request, key string) (*int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil, false
	}
	return &n, true
}

// mode разбирает режим выдачи origin/worker
func mode(r *http.Request) (origin, worker, ok bool) {
	switch r.URL.Query().Get("mode") {
	case "":
		return false, false, true
	case "origin":
		return true, false, true
	case "worker":
		return false, true, true
	}
	return false, false, false
}
