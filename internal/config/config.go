// Package config provides client configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// Config holds the client configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Data      DataConfig
	Downloads DownloadConfig
	Sync      SyncConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"required,oneof=debug info warn error"`
}

// ServerConfig holds the remote catalog server connection settings.
type ServerConfig struct {
	// URL is the base URL of the catalog server, e.g. https://audiobooks.example.com.
	URL string `validate:"required,url"`
	// Token is the API bearer token for this profile.
	Token string `validate:"required"`
	// PingInterval is how often the connectivity monitor probes the server.
	PingInterval time.Duration `validate:"min=1s"`
}

// DataConfig holds local persistence configuration.
type DataConfig struct {
	// Path is the directory holding the badger database.
	Path string `validate:"required"`
}

// DownloadConfig holds download orchestration configuration.
type DownloadConfig struct {
	// Root is the directory downloads are written to, laid out as
	// <Root>/<Author> - <Title>/<original filename>.
	Root string `validate:"required"`
	// MaxConcurrent is the admission-control cap on simultaneous transfers (default: 2).
	MaxConcurrent int `validate:"min=1,max=8"`
	// MaxRetries is the per-item retry cap before a download is terminally failed (default: 3).
	MaxRetries int `validate:"min=0"`
	// BackoffBase is the base delay for exponential retry backoff (default: 2s).
	BackoffBase time.Duration `validate:"min=100ms"`
}

// SyncConfig holds reconciliation scheduling configuration.
type SyncConfig struct {
	// Interval between automatic sync passes (default: 15m).
	Interval time.Duration `validate:"min=1m"`
	// DrainInterval between periodic progress-queue drain attempts (default: 1m).
	DrainInterval time.Duration `validate:"min=5s"`
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := newFlagSet(args)

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(fs.envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(fs.env, "LISTENUP_ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(fs.logLevel, "LISTENUP_LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			URL:   getConfigValue(fs.serverURL, "LISTENUP_SERVER_URL", ""),
			Token: getConfigValue(fs.token, "LISTENUP_TOKEN", ""),
		},
		Data: DataConfig{
			Path: getConfigValue(fs.dataPath, "LISTENUP_DATA_PATH", ""),
		},
		Downloads: DownloadConfig{
			Root:          getConfigValue(fs.downloadRoot, "LISTENUP_DOWNLOAD_ROOT", ""),
			MaxConcurrent: getIntConfigValue(fs.maxConcurrent, "LISTENUP_MAX_CONCURRENT_DOWNLOADS", 2),
			MaxRetries:    getIntConfigValue(fs.maxRetries, "LISTENUP_DOWNLOAD_MAX_RETRIES", domain.MaxDownloadRetries),
		},
	}

	// Parse durations.
	var err error
	cfg.Server.PingInterval, err = parseDurationValue(fs.pingInterval, "LISTENUP_PING_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	cfg.Downloads.BackoffBase, err = parseDurationValue(fs.backoffBase, "LISTENUP_DOWNLOAD_BACKOFF_BASE", "2s")
	if err != nil {
		return nil, err
	}
	cfg.Sync.Interval, err = parseDurationValue(fs.syncInterval, "LISTENUP_SYNC_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	cfg.Sync.DrainInterval, err = parseDurationValue(fs.drainInterval, "LISTENUP_DRAIN_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}

	// Expand and default local paths.
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// flagSet holds parsed command-line flag values.
type flagSet struct {
	env           string
	logLevel      string
	serverURL     string
	token         string
	dataPath      string
	downloadRoot  string
	maxConcurrent string
	maxRetries    string
	backoffBase   string
	pingInterval  string
	syncInterval  string
	drainInterval string
	envFile       string
}

func newFlagSet(args []string) *flagSet {
	// A tiny flag parser over --key=value / --key value pairs. The client is
	// a long-running daemon with few flags; env vars are the primary surface.
	fs := &flagSet{envFile: ".env"}
	known := map[string]*string{
		"env":            &fs.env,
		"log-level":      &fs.logLevel,
		"server-url":     &fs.serverURL,
		"token":          &fs.token,
		"data-path":      &fs.dataPath,
		"download-root":  &fs.downloadRoot,
		"max-concurrent": &fs.maxConcurrent,
		"max-retries":    &fs.maxRetries,
		"backoff-base":   &fs.backoffBase,
		"ping-interval":  &fs.pingInterval,
		"sync-interval":  &fs.syncInterval,
		"drain-interval": &fs.drainInterval,
		"env-file":       &fs.envFile,
	}
	for i := 0; i < len(args); i++ {
		arg := strings.TrimLeft(args[i], "-")
		name, value, hasEq := strings.Cut(arg, "=")
		dest, ok := known[name]
		if !ok {
			continue
		}
		if hasEq {
			*dest = value
		} else if i+1 < len(args) {
			i++
			*dest = args[i]
		}
	}
	return fs
}

// expandPaths expands ~ and fills in defaults for local directories.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	c.Data.Path, err = expandPath(c.Data.Path, filepath.Join(homeDir, "ListenUp", "client"))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}

	c.Downloads.Root, err = expandPath(c.Downloads.Root, filepath.Join(homeDir, "ListenUp", "downloads"))
	if err != nil {
		return fmt.Errorf("invalid download root: %w", err)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
