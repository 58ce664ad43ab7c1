// Package api exposes the daemon's control surface as JSON over the session
// unix socket. The CLI is the only intended client.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pbaptista/rally/internal/auth"
	"github.com/pbaptista/rally/internal/conn"
	"github.com/pbaptista/rally/internal/outbox"
	intsync "github.com/pbaptista/rally/internal/sync"
	"github.com/pbaptista/rally/internal/views"
)

// Status is the GET /v1/status response.
type Status struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	UserID        int64  `json:"userId,omitempty"`
	TotalUnread   int    `json:"totalUnread"`
	DroppedEvents uint64 `json:"droppedEvents"`
	StoreVersion  uint64 `json:"storeVersion"`
}

type sendRequest struct {
	ConversationID int64  `json:"conversationId"`
	Text           string `json:"text"`
}

type loginRequest struct {
	Token string `json:"token"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler routes control requests to the daemon's components.
type Handler struct {
	auth     *auth.Source
	machine  *conn.Machine
	engine   *intsync.Engine
	views    *views.Views
	sender   *outbox.Sender
	pageSize int
	logger   *zap.Logger
}

// NewHandler wires the control surface.
func NewHandler(src *auth.Source, machine *conn.Machine, engine *intsync.Engine, v *views.Views, sender *outbox.Sender, pageSize int, logger *zap.Logger) *Handler {
	return &Handler{
		auth:     src,
		machine:  machine,
		engine:   engine,
		views:    v,
		sender:   sender,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Mux returns the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", h.status)
	mux.HandleFunc("GET /v1/conversations", h.conversations)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", h.messages)
	mux.HandleFunc("POST /v1/conversations/{id}/read", h.markRead)
	mux.HandleFunc("POST /v1/messages", h.send)
	mux.HandleFunc("POST /v1/auth/login", h.login)
	mux.HandleFunc("POST /v1/auth/logout", h.logout)
	return mux
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	snap := h.auth.Snapshot()
	writeJSON(w, http.StatusOK, Status{
		State:         string(h.machine.Current()),
		Authenticated: snap.Authenticated,
		UserID:        snap.UserID,
		TotalUnread:   h.views.TotalUnread(),
		DroppedEvents: h.engine.Dropped(),
		StoreVersion:  h.engine.StoreVersion(),
	})
}

func (h *Handler) conversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.views.InboxPage(queryPage(r), h.pageSize))
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	convID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	page := queryPage(r)
	// Pull the requested page from the server on demand; the store merge
	// is idempotent so re-requests are cheap.
	if err := h.engine.LoadHistory(r.Context(), convID, page); err != nil {
		h.logger.Warn("history load failed",
			zap.Int64("conversation", convID),
			zap.Int("page", page),
			zap.Error(err))
	}
	writeJSON(w, http.StatusOK, h.views.Thread(convID, page, h.pageSize))
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	convID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	if err := h.engine.MarkRead(r.Context(), convID); err != nil {
		if errors.Is(err, intsync.ErrUnknownConversation) {
			writeError(w, http.StatusNotFound, "unknown conversation")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == 0 || req.Text == "" {
		writeError(w, http.StatusBadRequest, "conversationId and text are required")
		return
	}
	if !h.auth.Snapshot().Authenticated {
		writeError(w, http.StatusConflict, "not logged in")
		return
	}
	clientID := h.sender.Queue(req.ConversationID, req.Text)
	writeJSON(w, http.StatusAccepted, map[string]string{"clientId": clientID})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.auth.SetToken(req.Token); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func queryPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}
