package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "GAMESHOP"

var (
	// GlobalConfig holds the global configuration instance
	GlobalConfig *Config

	activeViper *viper.Viper
)

// LoadConfig loads configuration from file, .env and environment variables.
// Environment variables use the GAMESHOP_ prefix with "." replaced by "_",
// e.g. GAMESHOP_DATABASE_PASSWORD.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	config := &Config{}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath("/etc/gameshop")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Overlay config.<env>.yaml next to the base file
	if used := v.ConfigFileUsed(); used != "" {
		envConfigPath := filepath.Join(filepath.Dir(used), fmt.Sprintf("config.%s.yaml", CurrentEnv()))
		if _, err := os.Stat(envConfigPath); err == nil {
			v.SetConfigFile(envConfigPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to merge env config: %w", err)
			}
			v.SetConfigFile(used)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	GlobalConfig = config
	activeViper = v

	return config, nil
}

// bindEnvKeys makes AutomaticEnv see keys that are absent from the file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"database.driver", "database.host", "database.port", "database.username",
		"database.password", "database.dbname", "database.path",
		"redis.enabled", "redis.host", "redis.port", "redis.password",
		"kafka.enabled", "kafka.brokers",
		"security.jwt.secret", "security.encryption.key",
		"server.port", "server.mode", "log.level",
	} {
		_ = v.BindEnv(key)
	}
}

// MustLoadConfig loads configuration and panics on error
func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return config
}

// GetConfig returns the global configuration instance
func GetConfig() *Config {
	if GlobalConfig == nil {
		panic("Config not loaded. Call LoadConfig first.")
	}
	return GlobalConfig
}

// WatchConfig reloads the configuration whenever the file changes. The
// callback receives the freshly validated config; invalid edits are ignored.
func WatchConfig(callback func(*Config)) {
	if activeViper == nil || activeViper.ConfigFileUsed() == "" {
		return
	}
	v := activeViper
	v.OnConfigChange(func(e fsnotify.Event) {
		reloaded, err := LoadConfig(e.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config reload failed: %v\n", err)
			return
		}
		if callback != nil {
			callback(reloaded)
		}
	})
	v.WatchConfig()
}

// GetEnv returns environment variable value with fallback
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// CurrentEnv returns the deployment environment name, dev by default
func CurrentEnv() string {
	return GetEnv(envPrefix+"_ENV", "dev")
}

// IsProduction returns true if running in production mode
func IsProduction() bool {
	env := CurrentEnv()
	return env == "prod" || env == "production"
}
