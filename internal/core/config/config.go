// Package config provides configuration management for qualifier services.
package config

import (
	"fmt"
	"time"
)

// APIConfig holds configuration for the HTTP admin API service.
type APIConfig struct {
	Host            string
	Port            int
	RequestTimeout  time.Duration
	DatabaseURL     string
	MaxPreviewBatch int
	MaxGroupDepth   int
}

// DefaultAPIConfig returns configuration with default values.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		RequestTimeout:  30 * time.Second,
		DatabaseURL:     "sqlite://qualifier.db",
		MaxPreviewBatch: 5000,
		MaxGroupDepth:   32,
	}
}

// Validate checks port range and positive limits.
func (cfg *APIConfig) Validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if cfg.MaxPreviewBatch <= 0 {
		return fmt.Errorf("max_preview_batch must be positive, got %d", cfg.MaxPreviewBatch)
	}
	if cfg.MaxGroupDepth <= 0 {
		return fmt.Errorf("max_group_depth must be positive, got %d", cfg.MaxGroupDepth)
	}
	return nil
}
