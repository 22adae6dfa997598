package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment     string
	HTTPAddr        string
	DataDir         string
	DBPath          string
	PermissionsPath string

	PythonCommand           string
	InstallTimeoutSec       int
	VerifyTimeoutSec        int
	VersionLookupTimeoutSec int
	MaxOutputBytes          int

	LLMEnabled    bool
	LLMProvider   string // openai | anthropic
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int

	SweepSchedule        string
	SweepPendingStaleSec int

	AllowedPackagesPreview int
}

func FromEnv() Config {
	dataDir := stringOrDefault("SETUP_DESK_DATA_DIR", "/data")
	dbPath := stringOrDefault("SETUP_DESK_DB_PATH", filepath.Join(dataDir, "setup-desk", "setup_desk.sqlite"))
	permissionsPath := stringOrDefault("SETUP_DESK_PERMISSIONS_PATH", filepath.Join(dataDir, "setup-desk", "permissions.csv"))

	return Config{
		Environment:     stringOrDefault("SETUP_DESK_ENV", "development"),
		HTTPAddr:        stringOrDefault("SETUP_DESK_HTTP_ADDR", ":8080"),
		DataDir:         dataDir,
		DBPath:          dbPath,
		PermissionsPath: permissionsPath,

		PythonCommand:           stringOrDefault("SETUP_DESK_PYTHON_COMMAND", "python3"),
		InstallTimeoutSec:       intOrDefault("SETUP_DESK_INSTALL_TIMEOUT_SECONDS", 300),
		VerifyTimeoutSec:        intOrDefault("SETUP_DESK_VERIFY_TIMEOUT_SECONDS", 20),
		VersionLookupTimeoutSec: intOrDefault("SETUP_DESK_VERSION_LOOKUP_TIMEOUT_SECONDS", 30),
		MaxOutputBytes:          intOrDefault("SETUP_DESK_MAX_OUTPUT_BYTES", 128*1024),

		LLMEnabled:    boolOrDefault("SETUP_DESK_LLM_ENABLED", true),
		LLMProvider:   stringOrDefault("SETUP_DESK_LLM_PROVIDER", "openai"),
		LLMBaseURL:    stringOrDefault("SETUP_DESK_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("SETUP_DESK_LLM_API_KEY")),
		LLMModel:      stringOrDefault("SETUP_DESK_LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: intOrDefault("SETUP_DESK_LLM_TIMEOUT_SECONDS", 60),

		SweepSchedule:        stringOrDefault("SETUP_DESK_SWEEP_SCHEDULE", "*/15 * * * *"),
		SweepPendingStaleSec: intOrDefault("SETUP_DESK_SWEEP_PENDING_STALE_SECONDS", 3600),

		AllowedPackagesPreview: intOrDefault("SETUP_DESK_ALLOWED_PACKAGES_PREVIEW", 10),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
