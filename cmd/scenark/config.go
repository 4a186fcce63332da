package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all scenark configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath          string   `json:"db_path"`
	LogLevel        string   `json:"log_level"`
	ConnectionsFile string   `json:"connections_file"`
	ScenariosDir    string   `json:"scenarios_dir"`
	Enabled         bool     `json:"enabled"`
	AllowedTenants  []string `json:"allowed_tenants"`
	DailyQuota      int      `json:"daily_quota"`
	StepDelayMs     int      `json:"step_delay_ms"`
	PanelAddr       string   `json:"panel_addr"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(scenarkDir(), "scenark.db"),
		LogLevel:        "info",
		ConnectionsFile: filepath.Join(scenarkDir(), "connections.yaml"),
		Enabled:         true,
		DailyQuota:      20,
		StepDelayMs:     500,
		PanelAddr:       ":4700",
	}
}

func scenarkDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scenark"
	}
	return filepath.Join(home, ".scenark")
}

func settingsPath() string {
	return filepath.Join(scenarkDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SCENARK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SCENARK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SCENARK_CONNECTIONS_FILE"); v != "" {
		cfg.ConnectionsFile = v
	}
	if v := os.Getenv("SCENARK_SCENARIOS_DIR"); v != "" {
		cfg.ScenariosDir = v
	}
	if v := os.Getenv("SCENARK_ENABLED"); v != "" {
		cfg.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SCENARK_ALLOWED_TENANTS"); v != "" {
		cfg.AllowedTenants = splitList(v)
	}
	if v := os.Getenv("SCENARK_DAILY_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DailyQuota = n
		}
	}
	if v := os.Getenv("SCENARK_STEP_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StepDelayMs = n
		}
	}
	if v := os.Getenv("SCENARK_PANEL_ADDR"); v != "" {
		cfg.PanelAddr = v
	}

	return cfg
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// vaultKey returns the credential vault key from the environment, or nil
// when sealed tokens are not in use. Accepts a raw 32-byte key or a longer
// passphrase (derived with the fixed application salt).
func vaultKey() string {
	return os.Getenv("SCENARK_VAULT_KEY")
}
