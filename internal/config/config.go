package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pdf-compressor-go/internal/preset"
)

// Config represents the main configuration structure.
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Backends    BackendsConfig    `mapstructure:"backends"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Thumbnails  ThumbnailConfig   `mapstructure:"thumbnails"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains the default compression request settings.
type CompressionConfig struct {
	Quality        string `mapstructure:"quality"` // high, medium, low
	MaxDPI         int    `mapstructure:"max_dpi"` // 0 means tier default
	ImageQuality   int    `mapstructure:"image_quality"`
	UseGhostscript bool   `mapstructure:"use_ghostscript"`
	UseQPDF        bool   `mapstructure:"use_qpdf"`
	AllowFallback  bool   `mapstructure:"allow_fallback"`
	OutputSuffix   string `mapstructure:"output_suffix"`
}

// BackendsConfig contains external tool locations and timeouts.
type BackendsConfig struct {
	GhostscriptPath string        `mapstructure:"ghostscript_path"`
	QPDFPath        string        `mapstructure:"qpdf_path"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	ScratchDir      string        `mapstructure:"scratch_dir"`
}

// PerformanceConfig contains batch tuning settings.
type PerformanceConfig struct {
	WorkerThreads int  `mapstructure:"worker_threads"` // 0 means host CPU count
	ShowProgress  bool `mapstructure:"show_progress"`
}

// ThumbnailConfig controls preview generation after successful compression.
type ThumbnailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	MaxWidth int    `mapstructure:"max_width"`
	Quality  int    `mapstructure:"quality"`
	Dir      string `mapstructure:"dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			Quality:        string(preset.TierMedium),
			UseGhostscript: true,
			UseQPDF:        true,
			AllowFallback:  true,
			OutputSuffix:   "_compressed",
		},
		Backends: BackendsConfig{
			ProbeTimeout:   2 * time.Second,
			AttemptTimeout: 60 * time.Second,
		},
		Performance: PerformanceConfig{
			WorkerThreads: 0,
			ShowProgress:  true,
		},
		Thumbnails: ThumbnailConfig{
			Enabled:  false,
			MaxWidth: 320,
			Quality:  80,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "pdf-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.pdf-compressor")
		viper.AddConfigPath("/etc/pdf-compressor")
	}

	viper.SetEnvPrefix("PDF_COMPRESSOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates and normalizes the configuration.
func (c *Config) Validate() error {
	if _, err := preset.ParseTier(c.Compression.Quality); err != nil {
		return err
	}

	if c.Compression.MaxDPI < 0 {
		return fmt.Errorf("max_dpi must not be negative: %d", c.Compression.MaxDPI)
	}
	if c.Compression.ImageQuality < 0 || c.Compression.ImageQuality > 100 {
		return fmt.Errorf("image_quality must be 0-100: %d", c.Compression.ImageQuality)
	}
	if !c.Compression.UseGhostscript && !c.Compression.UseQPDF && !c.Compression.AllowFallback {
		return fmt.Errorf("all backends are disabled; enable at least one of use_ghostscript, use_qpdf, allow_fallback")
	}
	if c.Compression.OutputSuffix == "" {
		c.Compression.OutputSuffix = "_compressed"
	}

	if c.Backends.ProbeTimeout <= 0 {
		c.Backends.ProbeTimeout = 2 * time.Second
	}
	if c.Backends.AttemptTimeout <= 0 {
		c.Backends.AttemptTimeout = 60 * time.Second
	}

	if c.Performance.WorkerThreads < 0 {
		c.Performance.WorkerThreads = 0
	}

	if c.Thumbnails.MaxWidth <= 0 {
		c.Thumbnails.MaxWidth = 320
	}
	if c.Thumbnails.Quality <= 0 || c.Thumbnails.Quality > 100 {
		c.Thumbnails.Quality = 80
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// Tier returns the configured quality tier.
func (c *Config) Tier() preset.Tier {
	tier, err := preset.ParseTier(c.Compression.Quality)
	if err != nil {
		return preset.TierMedium
	}
	return tier
}

// Overrides returns the configured explicit overrides, nil fields for
// settings left at tier defaults.
func (c *Config) Overrides() preset.Overrides {
	var ov preset.Overrides
	if c.Compression.MaxDPI > 0 {
		dpi := c.Compression.MaxDPI
		ov.MaxDPI = &dpi
	}
	if c.Compression.ImageQuality > 0 {
		q := c.Compression.ImageQuality
		ov.ImageQuality = &q
	}
	return ov
}
