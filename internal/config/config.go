package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	HTTPAddr string
	DataDir  string
	DBPath   string
	WebDir   string

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string

	// ShowToolDetails toggles the full tool-call summaries in responses.
	// When false, only compact progress status fragments are emitted.
	ShowToolDetails bool

	// PostgresDSN, when set, enables the Postgres query runner for tools.
	PostgresDSN string
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("GOLGUE_DATA_DIR", "data")
	return Config{
		HTTPAddr: getEnv("GOLGUE_HTTP_ADDR", ":8080"),
		DataDir:  dataDir,
		DBPath:   getEnv("GOLGUE_DB_PATH", filepath.Join(dataDir, "golgue.db")),
		WebDir:   getEnv("GOLGUE_WEB_DIR", "web"),

		LLMProvider: getEnv("GOLGUE_LLM_PROVIDER", "openai"),
		LLMModel:    getEnv("GOLGUE_LLM_MODEL", ""),
		LLMAPIKey:   getEnv("GOLGUE_LLM_API_KEY", ""),

		ShowToolDetails: getEnv("GOLGUE_SHOW_TOOL_DETAILS", "true") != "false",

		PostgresDSN: getEnv("GOLGUE_POSTGRES_DSN", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
