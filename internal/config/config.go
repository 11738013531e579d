// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database path, the relay webhook
// credentials, rate limiting, the advisory engine, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-task-assistant")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AdvisoryConfig defines the optional suggestion engine (Ollama). The engine
// is read-only: it receives a snapshot of the sender's open items and returns
// plain text. It never executes commands.
type AdvisoryConfig struct {
	Enabled bool          // ADVISORY_ENABLED
	BaseURL string        // OLLAMA_BASE_URL (e.g. "http://127.0.0.1:11434")
	Model   string        // OLLAMA_MODEL (exact name from /api/tags)
	Timeout time.Duration // ADVISORY_TIMEOUT
}

// CalendarConfig defines the optional read-only free/busy source used to
// enrich advisory suggestions with free time blocks.
type CalendarConfig struct {
	Enabled     bool          // CALENDAR_ENABLED
	FreeBusyURL string        // FREEBUSY_URL (Google freebusy query endpoint)
	Token       string        // CALENDAR_TOKEN (bearer token, read-only scope)
	Timezone    string        // TZ_NAME (IANA name, e.g. "America/New_York")
	WorkStart   string        // WORKDAY_START "HH:MM"
	WorkEnd     string        // WORKDAY_END   "HH:MM"
	LateStart   string        // LATE_START    "HH:MM"
	LateEnd     string        // LATE_END      "HH:MM"
	MinBlock    time.Duration // MIN_BLOCK (shortest free block worth reporting)
	Horizon     time.Duration // CALENDAR_HORIZON (how far ahead to look)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath string // SQLite path

	// Relay webhook trust boundary
	RelaySecret    string   // RELAY_SIGNING_SECRET, shared with the relay; required
	AllowedSenders []string // ALLOWED_SENDERS, CSV of sender IDs; required

	// Per-sender fixed window (the pipeline gate)
	RateWindowLimit int           // accepted messages per sender per window
	RateWindowSize  time.Duration // window length

	// Edge token bucket (per client, abuse control in front of the pipeline)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Advisory engine and its calendar enrichment
	Advisory AdvisoryConfig
	Calendar CalendarConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath: getenv("DB_PATH", "assistant.db"),

		// Relay trust boundary
		RelaySecret:    getenv("RELAY_SIGNING_SECRET", ""),
		AllowedSenders: splitCSV(getenv("ALLOWED_SENDERS", "")),

		// Rate limiting
		RateWindowLimit: getint("RATE_LIMIT_PER_WINDOW", 30),
		RateWindowSize:  getdur("RATE_WINDOW", time.Minute),
		RateRPS:         getfloat("RATE_RPS", 5.0),
		RateBurst:       getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Advisory engine
		Advisory: AdvisoryConfig{
			Enabled: getbool("ADVISORY_ENABLED", false),
			BaseURL: strings.TrimRight(getenv("OLLAMA_BASE_URL", "http://127.0.0.1:11434"), "/"),
			Model:   getenv("OLLAMA_MODEL", ""),
			Timeout: getdur("ADVISORY_TIMEOUT", 2*time.Minute),
		},
		Calendar: CalendarConfig{
			Enabled:     getbool("CALENDAR_ENABLED", false),
			FreeBusyURL: getenv("FREEBUSY_URL", "https://www.googleapis.com/calendar/v3/freeBusy"),
			Token:       getenv("CALENDAR_TOKEN", ""),
			Timezone:    getenv("TZ_NAME", "America/New_York"),
			WorkStart:   getenv("WORKDAY_START", "09:00"),
			WorkEnd:     getenv("WORKDAY_END", "19:00"),
			LateStart:   getenv("LATE_START", "21:00"),
			LateEnd:     getenv("LATE_END", "02:00"),
			MinBlock:    getdur("MIN_BLOCK", 30*time.Minute),
			Horizon:     getdur("CALENDAR_HORIZON", 48*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-task-assistant"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	// A missing secret or an empty allowlist would leave the webhook open;
	// both are fatal at startup, never a per-request failure.
	if strings.TrimSpace(cfg.RelaySecret) == "" {
		return cfg, errors.New("RELAY_SIGNING_SECRET must not be empty")
	}
	if len(cfg.AllowedSenders) == 0 {
		return cfg, errors.New("ALLOWED_SENDERS must list at least one sender")
	}
	if cfg.RateWindowLimit < 1 {
		return cfg, errors.New("RATE_LIMIT_PER_WINDOW must be >= 1")
	}
	if cfg.RateWindowSize <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Advisory.Enabled && strings.TrimSpace(cfg.Advisory.Model) == "" {
		return cfg, errors.New("OLLAMA_MODEL must be set when ADVISORY_ENABLED=true")
	}
	if cfg.Advisory.Timeout <= 0 {
		return cfg, errors.New("ADVISORY_TIMEOUT must be > 0")
	}
	if cfg.Calendar.Enabled && strings.TrimSpace(cfg.Calendar.Token) == "" {
		return cfg, errors.New("CALENDAR_TOKEN must be set when CALENDAR_ENABLED=true")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// IsSenderAllowed reports whether sender is on the configured allowlist.
// The allowlist is immutable for the process lifetime; changing it requires
// a restart.
func (c Config) IsSenderAllowed(sender string) bool {
	for _, s := range c.AllowedSenders {
		if s == sender {
			return true
		}
	}
	return false
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
