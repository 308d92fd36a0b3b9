package qdrant

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// HNSW build parameters for new collections.
	HNSWM           int
	HNSWEfConstruct int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL  ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL  ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidHNSW ConfigErrorCode = "invalid_hnsw"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorInvalidHNSW:
		return fmt.Sprintf("invalid HNSW parameters %s; expected positive integers", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:             envutil.String("QDRANT_URL", ""),
		APIKey:          envutil.String("QDRANT_API_KEY", ""),
		Timeout:         envutil.Duration("QDRANT_TIMEOUT", 30*time.Second),
		HNSWM:           envutil.Int("QDRANT_HNSW_M", 8),
		HNSWEfConstruct: envutil.Int("QDRANT_HNSW_EF_CONSTRUCT", 64),
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if cfg.HNSWM <= 0 || cfg.HNSWEfConstruct <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidHNSW,
			Value: fmt.Sprintf("m=%d ef_construct=%d", cfg.HNSWM, cfg.HNSWEfConstruct),
		}
	}
	return nil
}
