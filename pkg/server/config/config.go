package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

const minSigningKeyBytes = 32

type Config struct {
	Addr string

	AuthMode AuthMode
	// SigningKey verifies HS256 identity tokens from the identity provider.
	SigningKey []byte
	// Issuer, when set, must match the token iss claim.
	Issuer string
	// DevUserEmail is the owner assigned to every request when auth is disabled.
	DevUserEmail string

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// Only enable behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes         int64
	MaxTranscriptEntries int
	MaxNotesBytes        int

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Persistence. Empty DatabaseURL selects the in-memory store.
	DatabaseURL      string
	MigrateOnStart   bool
	DBConnectTimeout time.Duration

	// Report generation. Empty GeminiAPIKey selects the transcript-only generator.
	GeminiAPIKey  string
	ReportModel   string
	ReportTimeout time.Duration

	// Outbound voice service used by `echodoc consult`.
	VoiceBaseURL     string
	VoiceAPIKey      string
	VoiceAssistantID string

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Per-owner budget for POST /api/medical-report, on top of the limits above.
	ReportLimitPerMinute float64
	ReportLimitBurst     int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("ECHODOC_ADDR", ":8080"),
		AuthMode:                   AuthMode(envOr("ECHODOC_AUTH_MODE", string(AuthModeRequired))),
		SigningKey:                 []byte(strings.TrimSpace(os.Getenv("ECHODOC_AUTH_SIGNING_KEY"))),
		Issuer:                     envOr("ECHODOC_AUTH_ISSUER", ""),
		DevUserEmail:               envOr("ECHODOC_DEV_USER_EMAIL", "dev@localhost"),
		TrustProxyHeaders:          envBoolOr("ECHODOC_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:               envInt64Or("ECHODOC_MAX_BODY_BYTES", 1<<20), // 1 MiB
		MaxTranscriptEntries:       envIntOr("ECHODOC_MAX_TRANSCRIPT_ENTRIES", 2000),
		MaxNotesBytes:              envIntOr("ECHODOC_MAX_NOTES_BYTES", 8<<10),
		CORSAllowedOrigins:         make(map[string]struct{}),
		DatabaseURL:                envOr("ECHODOC_DATABASE_URL", ""),
		MigrateOnStart:             envBoolOr("ECHODOC_MIGRATE_ON_START", false),
		DBConnectTimeout:           envDurationOr("ECHODOC_DB_CONNECT_TIMEOUT", 10*time.Second),
		GeminiAPIKey:               envOr("ECHODOC_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY")),
		ReportModel:                envOr("ECHODOC_REPORT_MODEL", "gemini-2.5-flash"),
		ReportTimeout:              envDurationOr("ECHODOC_REPORT_TIMEOUT", 90*time.Second),
		VoiceBaseURL:               envOr("ECHODOC_VOICE_BASE_URL", ""),
		VoiceAPIKey:                envOr("ECHODOC_VOICE_API_KEY", ""),
		VoiceAssistantID:           envOr("ECHODOC_VOICE_ASSISTANT_ID", ""),
		LimitRPS:                   envFloat64Or("ECHODOC_RATE_LIMIT_RPS", 5.0),
		LimitBurst:                 envIntOr("ECHODOC_RATE_LIMIT_BURST", 10),
		LimitMaxConcurrentRequests: envIntOr("ECHODOC_MAX_CONCURRENT_REQUESTS", 8),
		ReportLimitPerMinute:       envFloat64Or("ECHODOC_REPORT_RATE_LIMIT_PER_MINUTE", 6),
		ReportLimitBurst:           envIntOr("ECHODOC_REPORT_RATE_LIMIT_BURST", 3),
		ReadHeaderTimeout:          envDurationOr("ECHODOC_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("ECHODOC_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:             envDurationOr("ECHODOC_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:        envDurationOr("ECHODOC_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("ECHODOC_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants LoadFromEnv enforces. It is exported so that
// hand-built configs (tests, the CLI) get the same checks.
func (cfg Config) Validate() error {
	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return fmt.Errorf("ECHODOC_AUTH_MODE must be one of required|optional|disabled")
	}
	if cfg.AuthMode != AuthModeDisabled && len(cfg.SigningKey) < minSigningKeyBytes {
		return fmt.Errorf("ECHODOC_AUTH_SIGNING_KEY must be at least %d bytes when ECHODOC_AUTH_MODE=%s", minSigningKeyBytes, cfg.AuthMode)
	}
	if cfg.AuthMode == AuthModeDisabled && strings.TrimSpace(cfg.DevUserEmail) == "" {
		return fmt.Errorf("ECHODOC_DEV_USER_EMAIL must not be empty when ECHODOC_AUTH_MODE=disabled")
	}
	if cfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("ECHODOC_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxTranscriptEntries <= 0 {
		return fmt.Errorf("ECHODOC_MAX_TRANSCRIPT_ENTRIES must be > 0")
	}
	if cfg.MaxNotesBytes <= 0 {
		return fmt.Errorf("ECHODOC_MAX_NOTES_BYTES must be > 0")
	}
	if cfg.DatabaseURL != "" {
		if u, err := url.Parse(cfg.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			return fmt.Errorf("ECHODOC_DATABASE_URL must be a postgres:// URL")
		}
	}
	if cfg.MigrateOnStart && cfg.DatabaseURL == "" {
		return fmt.Errorf("ECHODOC_MIGRATE_ON_START requires ECHODOC_DATABASE_URL")
	}
	if cfg.DBConnectTimeout <= 0 {
		return fmt.Errorf("ECHODOC_DB_CONNECT_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.ReportModel) == "" {
		return fmt.Errorf("ECHODOC_REPORT_MODEL must not be empty")
	}
	if cfg.ReportTimeout <= 0 {
		return fmt.Errorf("ECHODOC_REPORT_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("ECHODOC_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("ECHODOC_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return fmt.Errorf("ECHODOC_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("ECHODOC_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return fmt.Errorf("ECHODOC_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return fmt.Errorf("ECHODOC_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return fmt.Errorf("ECHODOC_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.ReportLimitPerMinute < 0 {
		return fmt.Errorf("ECHODOC_REPORT_RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	if cfg.ReportLimitBurst < 0 {
		return fmt.Errorf("ECHODOC_REPORT_RATE_LIMIT_BURST must be >= 0")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
