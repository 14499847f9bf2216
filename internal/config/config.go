package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	MatcherAddr string
	CORSOrigin  string

	// Document API
	AccessToken      string
	DraftDocID       string
	ReferenceDocIDs  []string
	ReferenceTitles  []string
	LogDocID         string
	PollInterval     time.Duration
	ClearOnReject    bool
	StrictMatchKinds bool
	LogRejections    bool
	LogTimeZone      string
	WebhookRoutes    map[string]string

	// Match oracle
	OracleMode  string
	MatcherURL  string
	LLMProvider string
	LLMModel    string
	LLMAPIKey   string

	// Optional backends, disabled when empty
	RedisURL        string
	DatabaseURL     string
	MeiliURL        string
	MeiliMasterKey  string
	DraftArchiveDir string
	ChromeMirror    bool

	LogLevel string
	LogJSON  bool
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() Config {
	provider := strings.ToLower(getenv("LLM_PROVIDER", "anthropic"))
	return Config{
		Addr:        getenv("API_ADDR", ":4000"),
		MatcherAddr: getenv("MATCHER_ADDR", ":3000"),
		CORSOrigin:  getenv("CORS_ORIGIN", "*"),

		AccessToken:      getenv("ACCESS_TOKEN", ""),
		DraftDocID:       strings.TrimSpace(getenv("DOCUMENT_ID", "")),
		ReferenceDocIDs:  splitList(getenv("REFERENCE_DOCUMENT_IDS", "")),
		ReferenceTitles:  splitAligned(getenv("REFERENCE_DOCUMENT_TITLES", "")),
		LogDocID:         strings.TrimSpace(getenv("LOG_DOC_ID", "")),
		PollInterval:     time.Duration(getenvInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		ClearOnReject:    getenvBool("CLEAR_ON_REJECT", true),
		StrictMatchKinds: getenvBool("STRICT_MATCH_KINDS", false),
		LogRejections:    getenvBool("LOG_REJECTIONS", false),
		LogTimeZone:      getenv("LOG_TIME_ZONE", "America/Los_Angeles"),
		WebhookRoutes:    parseRoutes(getenv("WEBHOOK_ROUTES", "")),

		OracleMode:  strings.ToLower(getenv("ORACLE_MODE", "http")),
		MatcherURL:  getenv("MATCHER_URL", "http://localhost:3000"),
		LLMProvider: provider,
		LLMModel:    getenv("LLM_MODEL", defaultModel(provider)),
		LLMAPIKey:   getenv(apiKeyEnv(provider), ""),

		RedisURL:        getenv("REDIS_URL", ""),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		MeiliURL:        getenv("MEILI_URL", ""),
		MeiliMasterKey:  getenv("MEILI_MASTER_KEY", ""),
		DraftArchiveDir: getenv("DRAFT_ARCHIVE_DIR", ""),
		ChromeMirror:    getenvBool("CHROME_MIRROR", false),

		LogLevel: getenv("LOG_LEVEL", "info"),
		LogJSON:  getenvBool("LOG_JSON", false),
	}
}

// Validate checks the settings the bridge backend cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.AccessToken == "" {
		missing = append(missing, "ACCESS_TOKEN")
	}
	if c.DraftDocID == "" {
		missing = append(missing, "DOCUMENT_ID")
	}
	if len(c.ReferenceDocIDs) == 0 {
		missing = append(missing, "REFERENCE_DOCUMENT_IDS")
	}
	if c.LogDocID == "" {
		missing = append(missing, "LOG_DOC_ID")
	}
	if c.OracleMode == "direct" && c.LLMAPIKey == "" {
		missing = append(missing, apiKeyEnv(c.LLMProvider))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.OracleMode != "http" && c.OracleMode != "direct" {
		return fmt.Errorf("ORACLE_MODE must be http or direct, got %q", c.OracleMode)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if _, err := time.LoadLocation(c.LogTimeZone); err != nil {
		return fmt.Errorf("LOG_TIME_ZONE: %w", err)
	}
	return nil
}

// ReferenceTitle returns the title configured at the same position as docID.
func (c Config) ReferenceTitle(docID string) (string, bool) {
	docID = strings.TrimSpace(docID)
	for i, id := range c.ReferenceDocIDs {
		if id == docID && i < len(c.ReferenceTitles) {
			return c.ReferenceTitles[i], true
		}
	}
	return "", false
}

func defaultModel(provider string) string {
	if provider == "openai" {
		return "gpt-4o-mini"
	}
	return "claude-3-5-sonnet-20240620"
}

func apiKeyEnv(provider string) string {
	if provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitAligned splits a comma list keeping empty entries, so position i
// still lines up with REFERENCE_DOCUMENT_IDS[i].
func splitAligned(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

// parseRoutes reads "Title=URL,Title=URL" pairs.
func parseRoutes(value string) map[string]string {
	routes := make(map[string]string)
	for _, pair := range splitList(value) {
		title, url, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		title, url = strings.TrimSpace(title), strings.TrimSpace(url)
		if title != "" && url != "" {
			routes[title] = url
		}
	}
	return routes
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
