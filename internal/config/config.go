// Package config collects the server's configuration surface. Values come
// from the environment with defaults suitable for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport selects which protocol surfaces the server exposes.
type Transport string

const (
	TransportLine Transport = "line"
	TransportHTTP Transport = "http"
	TransportBoth Transport = "both"
)

// SessionMode selects the HTTP session model.
type SessionMode string

const (
	SessionStateless SessionMode = "stateless"
	SessionStateful  SessionMode = "stateful"
)

// Config is the full recognized option surface.
type Config struct {
	Transport    Transport
	Host         string
	Port         int
	EndpointPath string
	HealthPath   string

	AllowedOrigins []string
	AllowedHosts   []string
	APIKey         string

	SessionMode SessionMode
	SessionTTL  time.Duration
	MaxSessions int

	OpenAlexBaseURL        string
	CrossrefBaseURL        string
	SemanticScholarBaseURL string
	SemanticScholarAPIKey  string
	ScholarBaseURL         string

	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestDelay   time.Duration

	AllowRemotePDFs     bool
	AllowLocalPDFs      bool
	StructuredParserURL string
	IngestWorkers       int

	GraphCacheTTL            time.Duration
	GraphMaxCacheEntries     int
	GraphProviderMultiplier  float64
	GraphFuzzyTitleThreshold float64

	LogLevel  string
	LogFormat string
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Transport:    TransportHTTP,
		Host:         "127.0.0.1",
		Port:         8700,
		EndpointPath: "/mcp",
		HealthPath:   "/health",

		SessionMode: SessionStateful,
		SessionTTL:  30 * time.Minute,
		MaxSessions: 64,

		OpenAlexBaseURL:        "https://api.openalex.org",
		CrossrefBaseURL:        "https://api.crossref.org",
		SemanticScholarBaseURL: "https://api.semanticscholar.org/graph/v1",
		ScholarBaseURL:         "https://scholar.google.com",

		RequestTimeout: 30 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     750 * time.Millisecond,
		RequestDelay:   350 * time.Millisecond,

		AllowRemotePDFs: true,
		AllowLocalPDFs:  false,
		IngestWorkers:   0, // 0 means NumCPU

		GraphCacheTTL:            60 * time.Second,
		GraphMaxCacheEntries:     128,
		GraphProviderMultiplier:  2.0,
		GraphFuzzyTitleThreshold: 0.82,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// FromEnv overlays environment variables onto the defaults.
func FromEnv() *Config {
	c := Default()

	c.Transport = Transport(getEnv("SCHOLARGRAPH_TRANSPORT", string(c.Transport)))
	c.Host = getEnv("SCHOLARGRAPH_HOST", c.Host)
	c.Port = getEnvInt("SCHOLARGRAPH_PORT", c.Port)
	c.EndpointPath = getEnv("SCHOLARGRAPH_ENDPOINT_PATH", c.EndpointPath)
	c.HealthPath = getEnv("SCHOLARGRAPH_HEALTH_PATH", c.HealthPath)

	c.AllowedOrigins = getEnvList("SCHOLARGRAPH_ALLOWED_ORIGINS", c.AllowedOrigins)
	c.AllowedHosts = getEnvList("SCHOLARGRAPH_ALLOWED_HOSTS", c.AllowedHosts)
	c.APIKey = getEnv("SCHOLARGRAPH_API_KEY", c.APIKey)

	c.SessionMode = SessionMode(getEnv("SCHOLARGRAPH_SESSION_MODE", string(c.SessionMode)))
	c.SessionTTL = getEnvMillis("SCHOLARGRAPH_SESSION_TTL_MS", c.SessionTTL)
	c.MaxSessions = getEnvInt("SCHOLARGRAPH_MAX_SESSIONS", c.MaxSessions)

	c.OpenAlexBaseURL = getEnv("OPENALEX_BASE_URL", c.OpenAlexBaseURL)
	c.CrossrefBaseURL = getEnv("CROSSREF_BASE_URL", c.CrossrefBaseURL)
	c.SemanticScholarBaseURL = getEnv("SEMANTIC_SCHOLAR_BASE_URL", c.SemanticScholarBaseURL)
	c.SemanticScholarAPIKey = getEnv("SEMANTIC_SCHOLAR_API_KEY", c.SemanticScholarAPIKey)
	c.ScholarBaseURL = getEnv("SCHOLAR_BASE_URL", c.ScholarBaseURL)

	c.RequestTimeout = getEnvMillis("SCHOLARGRAPH_REQUEST_TIMEOUT_MS", c.RequestTimeout)
	c.RetryAttempts = getEnvInt("SCHOLARGRAPH_RETRY_ATTEMPTS", c.RetryAttempts)
	c.RetryDelay = getEnvMillis("SCHOLARGRAPH_RETRY_DELAY_MS", c.RetryDelay)
	c.RequestDelay = getEnvMillis("SCHOLARGRAPH_REQUEST_DELAY_MS", c.RequestDelay)

	c.AllowRemotePDFs = getEnvBool("SCHOLARGRAPH_ALLOW_REMOTE_PDFS", c.AllowRemotePDFs)
	c.AllowLocalPDFs = getEnvBool("SCHOLARGRAPH_ALLOW_LOCAL_PDFS", c.AllowLocalPDFs)
	c.StructuredParserURL = getEnv("SCHOLARGRAPH_STRUCTURED_PARSER_URL", c.StructuredParserURL)
	c.IngestWorkers = getEnvInt("SCHOLARGRAPH_INGEST_WORKERS", c.IngestWorkers)

	c.GraphCacheTTL = getEnvMillis("SCHOLARGRAPH_GRAPH_CACHE_TTL_MS", c.GraphCacheTTL)
	c.GraphMaxCacheEntries = getEnvInt("SCHOLARGRAPH_GRAPH_MAX_CACHE_ENTRIES", c.GraphMaxCacheEntries)
	c.GraphProviderMultiplier = getEnvFloat("SCHOLARGRAPH_GRAPH_PROVIDER_MULTIPLIER", c.GraphProviderMultiplier)
	c.GraphFuzzyTitleThreshold = getEnvFloat("SCHOLARGRAPH_GRAPH_FUZZY_TITLE_THRESHOLD", c.GraphFuzzyTitleThreshold)

	c.LogLevel = getEnv("SCHOLARGRAPH_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("SCHOLARGRAPH_LOG_FORMAT", c.LogFormat)

	return c
}

// LoopbackBind reports whether the configured bind address is loopback.
func (c *Config) LoopbackBind() bool {
	return c.Host == "127.0.0.1" || c.Host == "::1" || c.Host == "localhost"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
