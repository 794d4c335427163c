// Package config layers defaults, an optional JSON file, SCHEMASYNC_*
// environment variables and command-line flags, in that order.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      string `json:"port"`
	Backend   string `json:"backend"` // "postgresql" | "sqlite3"
	DBURL     string `json:"dbUrl"`
	SchemaDir string `json:"schemaDir"`
	AutoSync  bool   `json:"autoSync"` // sync once at startup
	Watch     bool   `json:"watch"`    // re-sync when schema files change
	LogLevel  string `json:"logLevel"`

	ExtractTimeout time.Duration `json:"-"`
}

func def() Config {
	return Config{
		Port:           "8080",
		Backend:        "postgresql",
		DBURL:          "",
		SchemaDir:      "schema",
		AutoSync:       false,
		Watch:          false,
		LogLevel:       "info",
		ExtractTimeout: 30 * time.Second,
	}
}

// fileConfig carries ExtractTimeout as a duration string ("30s").
type fileConfig struct {
	Config
	ExtractTimeout string `json:"extractTimeout"`
}

func loadJSON(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	fc := fileConfig{Config: base}
	if err := json.Unmarshal(b, &fc); err != nil {
		return base, fmt.Errorf("config %s: %w", path, err)
	}
	c := fc.Config
	if fc.ExtractTimeout != "" {
		d, err := time.ParseDuration(fc.ExtractTimeout)
		if err != nil {
			return base, fmt.Errorf("config %s: extractTimeout: %w", path, err)
		}
		c.ExtractTimeout = d
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// Load reads jsonPath (skipped when absent), then the environment, then
// args. A -config flag naming another file restarts loading from it.
func Load(jsonPath string, args []string) (Config, error) {
	cfg := def()

	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		c, err := loadJSON(jsonPath, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}

	cfg.Port = getenv("SCHEMASYNC_PORT", cfg.Port)
	cfg.Backend = getenv("SCHEMASYNC_BACKEND", cfg.Backend)
	cfg.DBURL = getenv("SCHEMASYNC_DB_URL", cfg.DBURL)
	cfg.SchemaDir = getenv("SCHEMASYNC_SCHEMA_DIR", cfg.SchemaDir)
	cfg.AutoSync = getenvBool("SCHEMASYNC_AUTO_SYNC", cfg.AutoSync)
	cfg.Watch = getenvBool("SCHEMASYNC_WATCH", cfg.Watch)
	cfg.LogLevel = getenv("SCHEMASYNC_LOG_LEVEL", cfg.LogLevel)
	cfg.ExtractTimeout = getenvDuration("SCHEMASYNC_EXTRACT_TIMEOUT", cfg.ExtractTimeout)

	fs := flag.NewFlagSet("schemasync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", jsonPath, "Path to config JSON")
	port := fs.String("port", cfg.Port, "HTTP port")
	backend := fs.String("backend", cfg.Backend, "Database kind (postgresql/sqlite3)")
	db := fs.String("db", cfg.DBURL, "Database URL or SQLite path")
	schemaDir := fs.String("schema", cfg.SchemaDir, "Directory with .dsl/.yaml schema files")
	auto := fs.String("auto-sync", strconv.FormatBool(cfg.AutoSync), "Synchronize once at startup (true/false)")
	watch := fs.String("watch", strconv.FormatBool(cfg.Watch), "Re-sync when schema files change (true/false)")
	level := fs.String("log-level", cfg.LogLevel, "debug|info|warn|error")
	timeout := fs.Duration("extract-timeout", cfg.ExtractTimeout, "Timeout for connecting and reading the catalog")

	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("flags: %w", err)
	}

	if *configPath != jsonPath {
		return Load(*configPath, args)
	}

	cfg.Port = strings.TrimSpace(*port)
	cfg.Backend = strings.TrimSpace(*backend)
	cfg.DBURL = strings.TrimSpace(*db)
	cfg.SchemaDir = strings.TrimSpace(*schemaDir)
	if b, ok := parseBool(*auto); ok {
		cfg.AutoSync = b
	}
	if b, ok := parseBool(*watch); ok {
		cfg.Watch = b
	}
	cfg.LogLevel = strings.TrimSpace(*level)
	cfg.ExtractTimeout = *timeout

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Backend == "" {
		errs = append(errs, errors.New("backend is empty"))
	}
	if c.DBURL == "" {
		errs = append(errs, errors.New("db url is empty"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level maps LogLevel to a slog level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
