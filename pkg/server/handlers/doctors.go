package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/echodoc-ai/echodoc/pkg/doctors"
)

// DoctorsHandler serves the specialist catalog.
type DoctorsHandler struct{}

func (h DoctorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_ = json.NewEncoder(w).Encode(doctors.Catalog())
}
