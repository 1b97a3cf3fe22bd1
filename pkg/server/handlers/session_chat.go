package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/doctors"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/server/mw"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

// SessionChatHandler serves /api/session-chat.
//
//	GET  ?sessionId=<id>   one record owned by the caller
//	GET  ?sessionId=all    every record owned by the caller, newest first
//	POST {notes, selectedDoctor}
type SessionChatHandler struct {
	Config config.Config
	Store  sessions.Store
	Logger *slog.Logger
}

type createSessionRequest struct {
	Notes          string          `json:"notes"`
	SelectedDoctor json.RawMessage `json:"selectedDoctor"`
}

// doctorRef is the part of a client-sent selectedDoctor the server trusts.
// Other fields are ignored and the stored agent comes from the catalog.
type doctorRef struct {
	Specialist string `json:"specialist"`
}

func resolveDoctor(raw json.RawMessage) (doctors.Agent, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return doctors.Agent{}, core.NewInvalidRequestErrorWithParam("selectedDoctor is required", "selectedDoctor")
	}
	var ref doctorRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return doctors.Agent{}, core.NewInvalidRequestErrorWithParam("selectedDoctor must be an object", "selectedDoctor")
	}
	if strings.TrimSpace(ref.Specialist) == "" {
		return doctors.Agent{}, core.NewInvalidRequestErrorWithParam("selectedDoctor is required", "selectedDoctor")
	}
	agent, ok := doctors.Lookup(ref.Specialist)
	if !ok {
		return doctors.Agent{}, core.NewInvalidRequestErrorWithParam("unknown specialist "+strconv.Quote(strings.TrimSpace(ref.Specialist)), "selectedDoctor")
	}
	return agent, nil
}

func (h SessionChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		writeMethodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (h SessionChatHandler) get(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeSignInRequired(w, r)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		writeErrorFrom(w, r, core.NewInvalidRequestErrorWithParam("sessionId is required", "sessionId"))
		return
	}

	if sessionID == sessions.All {
		recs, err := h.Store.ListByOwner(r.Context(), owner)
		if err != nil {
			h.logError(r, "list sessions failed", err)
			writeErrorFrom(w, r, err)
			return
		}
		if recs == nil {
			recs = []sessions.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}

	rec, err := h.Store.Get(r.Context(), sessionID)
	if err == nil && rec.CreatedBy != owner {
		// Another user's session is indistinguishable from a missing one.
		err = sessions.ErrNotFound
	}
	if err != nil {
		h.logError(r, "get session failed", err)
		writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h SessionChatHandler) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeSignInRequired(w, r)
		return
	}

	var req createSessionRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeErrorFrom(w, r, err)
		return
	}
	agent, err := resolveDoctor(req.SelectedDoctor)
	if err != nil {
		writeErrorFrom(w, r, err)
		return
	}
	if h.Config.MaxNotesBytes > 0 && len(req.Notes) > h.Config.MaxNotesBytes {
		writeErrorFrom(w, r, core.NewInvalidRequestErrorWithParam("notes are too long", "notes"))
		return
	}
	if !utf8.ValidString(req.Notes) {
		writeErrorFrom(w, r, core.NewInvalidRequestErrorWithParam("notes must be valid UTF-8", "notes"))
		return
	}

	rec, err := h.Store.Create(r.Context(), sessions.NewSession{
		Notes:          req.Notes,
		SelectedDoctor: agent,
		CreatedBy:      owner,
	})
	if err != nil {
		h.logError(r, "create session failed", err)
		writeErrorFrom(w, r, err)
		return
	}
	h.logger().Info("session created",
		"request_id", requestID(r),
		"session_id", rec.SessionID,
		"specialist", rec.SelectedDoctor.Specialist,
	)
	writeJSON(w, http.StatusOK, rec)
}

func (h SessionChatHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h SessionChatHandler) logError(r *http.Request, msg string, err error) {
	if core.IsNotFound(err) || isSessionNotFound(err) {
		return
	}
	h.logger().Error(msg, "request_id", requestID(r), "error", err)
}

func requestID(r *http.Request) string {
	id, _ := mw.RequestIDFrom(r.Context())
	return id
}
