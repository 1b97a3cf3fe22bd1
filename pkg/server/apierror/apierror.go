package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/report"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError maps err to the canonical error body and HTTP status.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "request body too large",
			Code:      "request_too_large",
			RequestID: requestID,
		}, http.StatusRequestEntityTooLarge
	}

	switch {
	case errors.Is(err, sessions.ErrNotFound):
		return &core.Error{
			Type:      core.ErrNotFound,
			Message:   "session not found",
			Param:     "sessionId",
			RequestID: requestID,
		}, http.StatusNotFound
	case errors.Is(err, sessions.ErrConflict):
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "session already exists",
			Code:      "conflict",
			RequestID: requestID,
		}, http.StatusConflict
	case errors.Is(err, sessions.ErrNoOwner):
		return &core.Error{
			Type:      core.ErrAuthentication,
			Message:   "sign in required",
			RequestID: requestID,
		}, http.StatusUnauthorized
	case errors.Is(err, sessions.ErrNoDoctor):
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "selected doctor is required",
			Param:     "selectedDoctor",
			RequestID: requestID,
		}, http.StatusBadRequest
	case errors.Is(err, sessions.ErrBadReport), errors.Is(err, report.ErrEmptyReport):
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "report generation returned an unusable result",
			Code:      "bad_report",
			RequestID: requestID,
		}, http.StatusBadGateway
	}

	// Unknown errors: internal API error without leaking details.
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrOverloaded:
		return http.StatusServiceUnavailable
	case core.ErrAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
