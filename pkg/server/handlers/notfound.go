package handlers

import (
	"net/http"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/server/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeCoreErrorJSON(w, reqID, &core.Error{
		Type:    core.ErrNotFound,
		Message: "not found",
	}, http.StatusNotFound)
}
