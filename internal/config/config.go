package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Discord
	BotToken string
	GuildID  string // optional: register commands per-guild for instant sync
	Owners   []string

	// Ops HTTP API; empty disables it
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/dispenser.db"

	// Distribution policy
	CooldownSeconds   int
	LowStockThreshold int

	// Issued-row retention (how far back restock can reach)
	RetentionDays      int // 0 = keep forever
	JanitorIntervalHrs int // how often the janitor runs (default 6)
}

// fileConfig mirrors Config for the optional YAML file.  Environment
// variables override anything set here.
type fileConfig struct {
	BotToken           string   `yaml:"bot_token"`
	GuildID            string   `yaml:"guild_id"`
	Owners             []string `yaml:"owners"`
	HTTPAddr           string   `yaml:"http_addr"`
	Env                string   `yaml:"env"`
	DBPath             string   `yaml:"db_path"`
	CooldownSeconds    *int     `yaml:"cooldown_seconds"`
	LowStockThreshold  *int     `yaml:"low_stock_threshold"`
	RetentionDays      *int     `yaml:"retention_days"`
	JanitorIntervalHrs *int     `yaml:"janitor_interval_hours"`
}

// Load builds the config from the optional YAML file named by
// DISPENSER_CONFIG, then applies DISPENSER_* environment variables on top.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:           ":8085",
		Env:                "dev",
		DBPath:             "./data/dispenser.db",
		CooldownSeconds:    30,
		LowStockThreshold:  5,
		RetentionDays:      7,
		JanitorIntervalHrs: 6,
	}

	if path := strings.TrimSpace(os.Getenv("DISPENSER_CONFIG")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.BotToken != "" {
		cfg.BotToken = fc.BotToken
	}
	if fc.GuildID != "" {
		cfg.GuildID = fc.GuildID
	}
	if len(fc.Owners) > 0 {
		cfg.Owners = fc.Owners
	}
	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	if fc.Env != "" {
		cfg.Env = strings.ToLower(fc.Env)
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.CooldownSeconds != nil {
		cfg.CooldownSeconds = *fc.CooldownSeconds
	}
	if fc.LowStockThreshold != nil {
		cfg.LowStockThreshold = *fc.LowStockThreshold
	}
	if fc.RetentionDays != nil {
		cfg.RetentionDays = *fc.RetentionDays
	}
	if fc.JanitorIntervalHrs != nil {
		cfg.JanitorIntervalHrs = *fc.JanitorIntervalHrs
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.BotToken = getenvDefault("DISPENSER_BOT_TOKEN", cfg.BotToken)
	cfg.GuildID = getenvDefault("DISPENSER_GUILD_ID", cfg.GuildID)
	if owners := splitCSV(os.Getenv("DISPENSER_OWNERS")); len(owners) > 0 {
		cfg.Owners = owners
	}
	cfg.HTTPAddr = getenvDefault("DISPENSER_HTTP_ADDR", cfg.HTTPAddr)
	cfg.Env = strings.ToLower(getenvDefault("DISPENSER_ENV", cfg.Env))
	cfg.DBPath = getenvDefault("DISPENSER_DB_PATH", cfg.DBPath)
	cfg.CooldownSeconds = getenvInt("DISPENSER_COOLDOWN_SECONDS", cfg.CooldownSeconds)
	cfg.LowStockThreshold = getenvInt("DISPENSER_LOW_STOCK_THRESHOLD", cfg.LowStockThreshold)
	cfg.RetentionDays = getenvInt("DISPENSER_RETENTION_DAYS", cfg.RetentionDays)
	cfg.JanitorIntervalHrs = getenvInt("DISPENSER_JANITOR_INTERVAL_HOURS", cfg.JanitorIntervalHrs)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
