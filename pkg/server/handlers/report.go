package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/report"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

// MedicalReportHandler serves POST /api/medical-report: it builds a report
// from the finished transcript and stores it on the caller's session.
type MedicalReportHandler struct {
	Config    config.Config
	Store     sessions.Store
	Generator report.Generator
	Logger    *slog.Logger
}

type medicalReportRequest struct {
	SessionID string               `json:"sessionId"`
	Messages  []sessions.Utterance `json:"messages"`
}

func (h MedicalReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	owner, ok := ownerFrom(r)
	if !ok {
		writeSignInRequired(w, r)
		return
	}

	var req medicalReportRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeErrorFrom(w, r, err)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" || req.SessionID == sessions.All {
		writeErrorFrom(w, r, core.NewInvalidRequestErrorWithParam("sessionId is required", "sessionId"))
		return
	}
	if h.Config.MaxTranscriptEntries > 0 && len(req.Messages) > h.Config.MaxTranscriptEntries {
		writeErrorFrom(w, r, core.NewInvalidRequestErrorWithParam("too many transcript messages", "messages"))
		return
	}

	rec, err := h.Store.Get(r.Context(), req.SessionID)
	if err == nil && rec.CreatedBy != owner {
		err = sessions.ErrNotFound
	}
	if err != nil {
		writeErrorFrom(w, r, err)
		return
	}

	ctx := r.Context()
	if h.Config.ReportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.ReportTimeout)
		defer cancel()
	}

	logger := h.logger().With("request_id", requestID(r), "session_id", rec.SessionID)
	raw, err := h.Generator.Generate(ctx, rec, req.Messages)
	if err != nil {
		logger.Error("report generation failed", "error", err)
		var coreErr *core.Error
		if !errors.As(err, &coreErr) && !errors.Is(err, sessions.ErrBadReport) && !errors.Is(err, report.ErrEmptyReport) {
			err = core.NewAPIError("report generation failed").WithCause(err)
		}
		writeErrorFrom(w, r, err)
		return
	}
	if err := sessions.ValidateReport(raw); err != nil {
		logger.Error("generator returned a non-object report", "error", err)
		writeErrorFrom(w, r, err)
		return
	}

	updated, err := h.Store.SetReport(r.Context(), rec.SessionID, raw)
	if err != nil {
		logger.Error("store report failed", "error", err)
		writeErrorFrom(w, r, err)
		return
	}
	logger.Info("report stored", "messages", len(req.Messages))
	writeJSON(w, http.StatusOK, updated)
}

func (h MedicalReportHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func isSessionNotFound(err error) bool {
	return errors.Is(err, sessions.ErrNotFound)
}
