package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jrschumacher/authsync/internal/logger"
)

const (
	EnvProd = "production"
	EnvDev  = "development"
	EnvTest = "test"
)

// Storage and lock backends.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSQL    = "sql"

	LockProcess = "process"
	LockFile    = "file"
)

// envPrefix namespaces environment overrides, e.g. AUTHSYNC_TOKEN_URL.
const envPrefix = "authsync"

// Config holds application configuration loaded from environment variables or config file.
type Config struct {
	AppEnv   string `mapstructure:"app_env" default:"development" validate:"required"`
	LogLevel string `mapstructure:"log_level" default:"INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	// Token endpoint
	TokenURL     string        `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret" secret:"true"`
	Scopes       []string      `mapstructure:"scopes"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout" default:"10s" validate:"gt=0"`

	// Session storage
	StorageBackend string `mapstructure:"storage_backend" default:"file" validate:"oneof=memory file sql"`
	StorageDir     string `mapstructure:"storage_dir"`
	DatabaseURL    string `mapstructure:"database_url" secret:"true" validate:"required_if=StorageBackend sql"`
	StorageKey     string `mapstructure:"storage_key" default:"authsync.session" validate:"required"`

	// Locking
	LockBackend        string        `mapstructure:"lock_backend" default:"file" validate:"oneof=process file"`
	LockDir            string        `mapstructure:"lock_dir"`
	LockAcquireTimeout time.Duration `mapstructure:"lock_acquire_timeout" default:"10s"`

	// Refresh policy
	ExpiryMargin    time.Duration `mapstructure:"expiry_margin" default:"60s" validate:"gt=0"`
	AutoRefresh     bool          `mapstructure:"auto_refresh" default:"true"`
	AutoRefreshTick time.Duration `mapstructure:"auto_refresh_tick" default:"30s" validate:"gt=0"`

	// Observability
	MetricsAddr string `mapstructure:"metrics_addr" default:":9090"`
}

// Load loads configuration from config file and environment variables using viper.
func Load() *Config {
	cfg := Config{}

	// Initialize viper
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))

	// Set defaults for the config struct
	if err := defaults.Set(&cfg); err != nil {
		panic("failed to set struct defaults: " + err.Error())
	}

	// Bind env vars for each field
	typeOfCfg := reflect.TypeOf(cfg)
	for i := 0; i < typeOfCfg.NumField(); i++ {
		field := typeOfCfg.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			key = toSnakeCase(field.Name)
		}
		_ = v.BindEnv(key)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Error("Error read config file", "error", err)
		}
		logger.Debug("No config file found, using environment variables")
	}

	if err := v.Unmarshal(&cfg); err != nil {
		logger.Warn("Could not unmarshal config", "error", err)
	}

	logger.Debug("Loaded config", "config", cfg.String())

	return &cfg
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

// String returns a string representation of the config with secret fields redacted.
func (c *Config) String() string {
	v := reflect.ValueOf(*c)
	t := reflect.TypeOf(*c)
	var sb strings.Builder
	sb.WriteString("Config{")
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Name
		value := v.Field(i).Interface()
		if field.Tag.Get("secret") == "true" {
			value = "***REDACTED***"
		}
		sb.WriteString(name + ": " + toString(value))
		if i < t.NumField()-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// toString converts interface{} to string for String
func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toSnakeCase converts CamelCase to snake_case
func toSnakeCase(str string) string {
	runes := []rune(str)
	var out []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				out = append(out, '_')
			}
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}
