// Package api exposes the debate registry over REST.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/debate"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/httpserver"
)

const maxBodyBytes = 64 << 10

// Detacher tears down a participant's signaling route. *signaling.Hub
// implements it.
type Detacher interface {
	Detach(sessionID, userID string)
}

type Handler struct {
	registry *debate.Registry
	routes   Detacher
	log      *slog.Logger
}

// NewHandler returns the REST handler. routes may be nil, in which case
// leave requests asking to disconnect only leave.
func NewHandler(registry *debate.Registry, routes Detacher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{registry: registry, routes: routes, log: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/debates", h.handleList)
	mux.HandleFunc("POST /api/debates", h.handleCreate)
	mux.HandleFunc("GET /api/debates/{id}", h.handleGet)
	mux.HandleFunc("POST /api/debates/{id}/join", h.handleJoin)
	mux.HandleFunc("POST /api/debates/{id}/leave", h.handleLeave)
}

type createRequest struct {
	Title       string `json:"title"`
	OwnerID     string `json:"owner_id"`
	OwnerName   string `json:"owner_name"`
	OwnerAge    int    `json:"owner_age"`
	OwnerGender string `json:"owner_gender"`
}

type joinRequest struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	UserAge    int    `json:"user_age"`
	UserGender string `json:"user_gender"`
}

type leaveRequest struct {
	UserID string `json:"user_id"`
	// Disconnect also detaches the caller's signaling route.
	Disconnect bool `json:"disconnect"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, h.registry.ListSessions())
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := h.registry.CreateSession(req.Title, debate.User{
		ID:     req.OwnerID,
		Name:   req.OwnerName,
		Age:    req.OwnerAge,
		Gender: req.OwnerGender,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.registry.GetSession(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := h.registry.JoinSession(r.PathValue("id"), debate.User{
		ID:     req.UserID,
		Name:   req.UserName,
		Age:    req.UserAge,
		Gender: req.UserGender,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	d, err := h.registry.LeaveSession(id, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Disconnect && h.routes != nil {
		h.routes.Detach(id, req.UserID)
	}
	httpserver.WriteJSON(w, http.StatusOK, d)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	httpserver.WriteJSON(w, status, errorResponse{Code: code, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error("api_error", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSONError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, debate.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, debate.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, debate.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, debate.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, debate.ErrTooManySessions):
		return http.StatusServiceUnavailable, "too_many_sessions"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
