package mw

import (
	"net/http"
	"slices"
	"strings"

	"github.com/echodoc-ai/echodoc/pkg/server/config"
)

// corsRoutes lists the browser-callable routes and the methods each accepts.
// Health probes and unknown paths get no CORS headers.
var corsRoutes = map[string][]string{
	"/api/doctors":        {http.MethodGet},
	"/api/session-chat":   {http.MethodGet, http.MethodPost},
	"/api/medical-report": {http.MethodPost},
}

// corsRequestHeaders are the headers the session client sends.
var corsRequestHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}

// Clients read the request id for support and Retry-After on 429s.
const corsExposedHeaders = "X-Request-ID, Retry-After"

// CORS answers preflights for the session API and tags responses to
// allowlisted origins.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	origins := cfg.CORSAllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		_, originOK := origins[origin]
		methods, routeOK := corsRoutes[r.URL.Path]

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			want := strings.ToUpper(strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")))
			if origin == "" || !originOK || !routeOK || !slices.Contains(methods, want) ||
				!corsHeadersAllowed(r.Header.Get("Access-Control-Request-Headers")) {
				http.Error(w, "cors preflight not allowed", http.StatusForbidden)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", strings.Join(append(slices.Clone(methods), http.MethodOptions), ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(corsRequestHeaders, ", "))
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if origin != "" && originOK && routeOK {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
		}
		next.ServeHTTP(w, r)
	})
}

// corsHeadersAllowed reports whether every header named in an
// Access-Control-Request-Headers value is one the session client uses.
func corsHeadersAllowed(requested string) bool {
	for _, name := range strings.Split(requested, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !slices.ContainsFunc(corsRequestHeaders, func(h string) bool { return strings.EqualFold(h, name) }) {
			return false
		}
	}
	return true
}
