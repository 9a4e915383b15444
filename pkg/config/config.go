package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. MAPAREAS_WEB_MAP_ID.
const EnvPrefix = "MAPAREAS"

// Config holds all application configuration settings.
type Config struct {
	PortalURL string `mapstructure:"portal_url" validate:"required,url"`
	APIKey    string `mapstructure:"api_key"`
	WebMapID  string `mapstructure:"web_map_id" validate:"required"`

	CacheDir  string        `mapstructure:"cache_dir" validate:"required"`
	CacheSize int           `mapstructure:"cache_size" validate:"min=1"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"min=0"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`
	LogFile   string `mapstructure:"log_file"`

	WebMapTitle   string `mapstructure:"web_map_title" validate:"required"`
	MapAreasTitle string `mapstructure:"map_areas_title" validate:"required"`
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".mapareas"
	}
	return filepath.Join(dir, "mapareas")
}

// SetDefaults registers a default for every key so environment variables
// are picked up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("portal_url", "https://www.arcgis.com")
	v.SetDefault("api_key", "")
	v.SetDefault("web_map_id", "")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("cache_size", 32)
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("web_map_title", "Web Map")
	v.SetDefault("map_areas_title", "Map Areas")
}

// Load reads .env, the environment and the optional config file into a
// validated Config. Flags bound to v before Load take precedence.
func Load(v *viper.Viper, envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate reports the first invalid setting by its config key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid %s: failed %q check", keyOf(fe.StructField()), fe.Tag())
	}
	return err
}

var keys = map[string]string{
	"PortalURL":     "portal_url",
	"WebMapID":      "web_map_id",
	"CacheDir":      "cache_dir",
	"CacheSize":     "cache_size",
	"CacheTTL":      "cache_ttl",
	"LogLevel":      "log_level",
	"LogFormat":     "log_format",
	"WebMapTitle":   "web_map_title",
	"MapAreasTitle": "map_areas_title",
}

func keyOf(field string) string {
	if k, ok := keys[field]; ok {
		return k
	}
	return field
}

// CatalogPath is the DuckDB file holding the offline catalog snapshot.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.CacheDir, "catalog.db")
}

// AreasDir holds one directory per downloaded area.
func (c *Config) AreasDir() string {
	return filepath.Join(c.CacheDir, "areas")
}

// LogPath is where the TUI writes its log.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.CacheDir, "mapareas.log")
}
