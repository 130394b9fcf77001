// Package config manages application configuration from environment variables and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const envPrefix = "DOCSITE_"

// Config holds runtime configuration for the documentation server.
type Config struct {
	RootDir       string
	AssetsDir     string
	ExcludeDirs   []string
	D2Timeout     time.Duration
	D2CacheTTL    time.Duration
	Port          int
	AutoOpen      bool
	DarkModeFirst bool
	IncludeHidden bool
	Verbose       bool
}

// Default returns ready-to-use defaults prior to env/flag overrides.
func Default() Config {
	return Config{
		RootDir:       ".",
		Port:          0, // 0 = auto-select random available port
		AutoOpen:      true,
		DarkModeFirst: true,
		AssetsDir:     "static",
		D2Timeout:     12 * time.Second,
		D2CacheTTL:    30 * time.Minute,
	}
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.RootDir, "root", "r", cfg.RootDir, "root directory containing markdown files")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to bind the HTTP server (0 = auto-assign, default: auto)")
	fs.BoolVar(&cfg.AutoOpen, "auto-open", cfg.AutoOpen, "open the browser automatically after start")
	fs.BoolVar(&cfg.DarkModeFirst, "dark", cfg.DarkModeFirst, "enable dark theme by default")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "directory containing frontend assets (embedded copy used when missing)")
	fs.BoolVar(&cfg.IncludeHidden, "include-hidden", cfg.IncludeHidden, "serve dot-prefixed files and directories")
	fs.StringSliceVar(&cfg.ExcludeDirs, "exclude", cfg.ExcludeDirs, "additional directory names to leave out of the tree")
	fs.DurationVar(&cfg.D2Timeout, "d2-timeout", cfg.D2Timeout, "maximum time to compile a single d2 diagram")
	fs.DurationVar(&cfg.D2CacheTTL, "d2-cache-ttl", cfg.D2CacheTTL, "how long compiled d2 diagrams stay cached")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging (HTTP requests)")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("ROOT", func(v string) { cfg.RootDir = v })
	applyIntEnv("PORT", func(v int) { cfg.Port = v })
	applyBoolEnv("AUTO_OPEN", func(v bool) { cfg.AutoOpen = v })
	applyBoolEnv("DARK", func(v bool) { cfg.DarkModeFirst = v })
	applyStringEnv("ASSETS", func(v string) { cfg.AssetsDir = v })
	applyBoolEnv("INCLUDE_HIDDEN", func(v bool) { cfg.IncludeHidden = v })
	applyStringEnv("EXCLUDE", func(v string) { cfg.ExcludeDirs = splitList(v) })
	applyDurationEnv("D2_TIMEOUT", func(v time.Duration) { cfg.D2Timeout = v })
	applyDurationEnv("D2_CACHE_TTL", func(v time.Duration) { cfg.D2CacheTTL = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func applyDurationEnv(key string, apply func(time.Duration)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := time.ParseDuration(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Finalize validates and normalizes paths.
func Finalize(cfg *Config) error {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}
	cfg.RootDir = root

	// Allow port 0 for dynamic allocation, otherwise validate range
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if cfg.D2Timeout <= 0 {
		return fmt.Errorf("invalid d2 timeout: %s", cfg.D2Timeout)
	}
	if cfg.D2CacheTTL < 0 {
		return fmt.Errorf("invalid d2 cache ttl: %s", cfg.D2CacheTTL)
	}

	if cfg.AssetsDir == "" {
		cfg.AssetsDir = "static"
	}
	assets, err := filepath.Abs(cfg.AssetsDir)
	if err != nil {
		return fmt.Errorf("resolve assets directory: %w", err)
	}
	cfg.AssetsDir = assets

	return nil
}
