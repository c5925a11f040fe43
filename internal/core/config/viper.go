package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// Environment variables carry the QF_ prefix: QF_API_PORT, QF_API_DATABASE_URL.
func LoadConfig(configPath string) (*APIConfig, error) {
	v := viper.New()

	// Defaults matching DefaultAPIConfig
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.request_timeout", "30s")
	v.SetDefault("api.database_url", "sqlite://qualifier.db")
	v.SetDefault("api.max_preview_batch", 5000)
	v.SetDefault("api.max_group_depth", 32)

	v.SetEnvPrefix("QF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &APIConfig{
		Host:            v.GetString("api.host"),
		Port:            v.GetInt("api.port"),
		RequestTimeout:  v.GetDuration("api.request_timeout"),
		DatabaseURL:     v.GetString("api.database_url"),
		MaxPreviewBatch: v.GetInt("api.max_preview_batch"),
		MaxGroupDepth:   v.GetInt("api.max_group_depth"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
