package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/amaumene/debridstrm/internal/errors"
	"github.com/spf13/viper"
)

// DefaultAPIBaseURL is the Real-Debrid REST root
const DefaultAPIBaseURL = "https://api.real-debrid.com/rest/1.0"

// Config holds all application configuration. It is built once by Load and never mutated.
type Config struct {
	// Real-Debrid
	APIKey             string
	APIBaseURL         string
	HTTPTimeoutSeconds int
	RateLimitPerMinute int
	ConcurrencyLimit   int
	Retry503Attempts   int
	Retry429Attempts   int

	// Cycle
	CycleIntervalMinutes int
	FileExpiryDays       int
	CleanupOrphans       bool

	// Filtering
	MinVideoSizeMB     int
	VideoExtensions    []string
	SubtitleExtensions []string

	// Paths
	MediaPath      string
	UnorganizedDir string // $MEDIA_PATH/unorganized
	OutputDir      string
	IgnoreFile     string // $OUTPUT_DIR/ignore.txt
	SettingsFile   string // $OUTPUT_DIR/settings.yaml

	// Server
	ServerPort string

	// Logging
	LogLevel string
	LogFile  string
}

// Built-in extension sets. Settings may add to them but never remove.
var (
	defaultVideoExtensions    = []string{".mkv", ".mp4", ".avi", ".mov", ".wmv", ".m4v", ".webm", ".flv"}
	defaultSubtitleExtensions = []string{".srt", ".ass", ".vtt", ".sub", ".idx", ".ssa", ".smi"}
)

// Load loads configuration from environment variables, a .env file and the optional settings file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = v.ReadInConfig()

	v.SetDefault("API_BASE_URL", DefaultAPIBaseURL)
	v.SetDefault("MEDIA_PATH", "/media")
	v.SetDefault("OUTPUT_DIR", "/app/output")
	v.SetDefault("CYCLE_INTERVAL_MINUTES", 20)
	v.SetDefault("FILE_EXPIRY_DAYS", 14)
	v.SetDefault("RETRY_503_ATTEMPTS", 2)
	v.SetDefault("RETRY_429_ATTEMPTS", 3)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 200)
	v.SetDefault("CONCURRENCY_LIMIT", 3)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("CLEANUP_ORPHANS", false)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	apiKey := v.GetString("API_KEY")
	if apiKey == "" {
		apiKey = v.GetString("REAL_DEBRID_API_KEY")
	}

	mediaPath, err := filepath.Abs(v.GetString("MEDIA_PATH"))
	if err != nil {
		return nil, apperrors.NewConfigError("invalid MEDIA_PATH", err)
	}
	outputDir, err := filepath.Abs(v.GetString("OUTPUT_DIR"))
	if err != nil {
		return nil, apperrors.NewConfigError("invalid OUTPUT_DIR", err)
	}

	ignoreFile := v.GetString("IGNORE_FILE")
	if ignoreFile == "" {
		ignoreFile = filepath.Join(outputDir, "ignore.txt")
	}
	settingsFile := v.GetString("SETTINGS_FILE")
	if settingsFile == "" {
		settingsFile = filepath.Join(outputDir, "settings.yaml")
	}

	config := &Config{
		// Real-Debrid
		APIKey:             apiKey,
		APIBaseURL:         strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		HTTPTimeoutSeconds: v.GetInt("HTTP_TIMEOUT_SECONDS"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		ConcurrencyLimit:   v.GetInt("CONCURRENCY_LIMIT"),
		Retry503Attempts:   v.GetInt("RETRY_503_ATTEMPTS"),
		Retry429Attempts:   v.GetInt("RETRY_429_ATTEMPTS"),

		// Cycle
		CycleIntervalMinutes: v.GetInt("CYCLE_INTERVAL_MINUTES"),
		FileExpiryDays:       v.GetInt("FILE_EXPIRY_DAYS"),
		CleanupOrphans:       v.GetBool("CLEANUP_ORPHANS"),

		// Paths
		MediaPath:      mediaPath,
		UnorganizedDir: filepath.Join(mediaPath, "unorganized"),
		OutputDir:      outputDir,
		IgnoreFile:     ignoreFile,
		SettingsFile:   settingsFile,

		// Server
		ServerPort: v.GetString("SERVER_PORT"),

		// Logging
		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}

	if err := config.applySettings(v.GetString("MIN_VIDEO_SIZE_MB")); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	// Create working directories if they don't exist
	for _, dir := range []string{config.UnorganizedDir, config.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	return config, nil
}

// CycleInterval returns the pause between two cycles
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalMinutes) * time.Minute
}

// ExpiryWindow returns how long a pointer file stays fresh
func (c *Config) ExpiryWindow() time.Duration {
	return time.Duration(c.FileExpiryDays) * 24 * time.Hour
}

// HTTPTimeout returns the per-request timeout for remote calls
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ServerEnabled reports whether the local HTTP server should listen
func (c *Config) ServerEnabled() bool {
	return c.ServerPort != "" && !strings.EqualFold(c.ServerPort, "off")
}

// MinVideoSizeBytes returns the inclusive size threshold for accepted videos
func (c *Config) MinVideoSizeBytes() int64 {
	return int64(c.MinVideoSizeMB) * 1024 * 1024
}

// applySettings merges the optional YAML settings file. An explicit MIN_VIDEO_SIZE_MB wins over the file.
func (c *Config) applySettings(minSizeEnv string) error {
	c.MinVideoSizeMB = 300
	c.VideoExtensions = append([]string(nil), defaultVideoExtensions...)
	c.SubtitleExtensions = append([]string(nil), defaultSubtitleExtensions...)

	s := viper.New()
	s.SetConfigFile(c.SettingsFile)
	s.SetConfigType("yaml")
	if _, err := os.Stat(c.SettingsFile); err == nil {
		if err := s.ReadInConfig(); err != nil {
			return apperrors.NewConfigError("failed to read settings file", err)
		}
	}

	if s.IsSet("filtering.min_video_size_mb") {
		c.MinVideoSizeMB = s.GetInt("filtering.min_video_size_mb")
	}
	if minSizeEnv != "" {
		size, err := strconv.Atoi(strings.TrimSpace(minSizeEnv))
		if err != nil {
			return apperrors.NewConfigError("MIN_VIDEO_SIZE_MB must be an integer", err)
		}
		c.MinVideoSizeMB = size
	}

	c.VideoExtensions = mergeExtensions(c.VideoExtensions, s.GetStringSlice("filtering.video_extensions"))
	c.SubtitleExtensions = mergeExtensions(c.SubtitleExtensions, s.GetStringSlice("filtering.subtitle_extensions"))
	return nil
}

func mergeExtensions(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, ext := range base {
		seen[ext] = true
	}
	for _, ext := range extra {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !seen[ext] {
			seen[ext] = true
			base = append(base, ext)
		}
	}
	return base
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return apperrors.NewConfigError("API_KEY is required", nil)
	}
	if c.CycleIntervalMinutes <= 0 {
		return apperrors.NewConfigError("CYCLE_INTERVAL_MINUTES must be positive", nil)
	}
	if c.FileExpiryDays <= 0 {
		return apperrors.NewConfigError("FILE_EXPIRY_DAYS must be positive", nil)
	}
	if c.RateLimitPerMinute <= 0 {
		return apperrors.NewConfigError("RATE_LIMIT_PER_MINUTE must be positive", nil)
	}
	if c.ConcurrencyLimit <= 0 {
		return apperrors.NewConfigError("CONCURRENCY_LIMIT must be positive", nil)
	}
	if c.Retry503Attempts < 0 || c.Retry429Attempts < 0 {
		return apperrors.NewConfigError("retry attempts cannot be negative", nil)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return apperrors.NewConfigError("HTTP_TIMEOUT_SECONDS must be positive", nil)
	}
	if c.MinVideoSizeMB < 0 {
		return apperrors.NewConfigError("MIN_VIDEO_SIZE_MB cannot be negative", nil)
	}
	return nil
}
