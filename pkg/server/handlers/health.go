package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/server/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	// Store is checked with a short ping when it implements Pinger.
	Store any
	// Backend names the session store ("memory" or "postgres").
	Backend string
	// ReportEngine names the report generator ("gemini" or "transcript").
	ReportEngine string
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		AuthMode      string   `json:"auth_mode"`
		Store         string   `json:"store,omitempty"`
		Reports       string   `json:"reports,omitempty"`
		LimitsEnabled bool     `json:"limits_enabled"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Lifecycle.IsDraining() {
		issues = append(issues, "draining")
	}
	if err := h.Config.Validate(); err != nil {
		issues = append(issues, err.Error())
	}
	if p, ok := h.Store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			issues = append(issues, "store unreachable")
		}
	}

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		h.Config.LimitMaxConcurrentRequests > 0

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		AuthMode:      string(h.Config.AuthMode),
		Store:         h.Backend,
		Reports:       h.ReportEngine,
		LimitsEnabled: limitsEnabled,
		Issues:        issues,
	})
}
