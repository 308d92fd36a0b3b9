package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
	"github.com/yungbote/knowledge-indexer/internal/services"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderS3    = "s3"
	StorageProviderLocal = "local"

	VectorProviderQdrant   = "qdrant"
	VectorProviderPgvector = "pgvector"
)

type Config struct {
	LogMode     string
	Environment string
	Version     string
	ServiceName string

	HTTPAddr    string
	MetricsAddr string
	AutoMigrate bool

	StorageProvider string
	LocalBlobRoot   string
	ScratchDir      string
	VectorProvider  string

	JobExecutor string
	JWTSecret   string
	ServiceKey  string

	TokenEncoding      string
	DocconvReadability bool
	VisionEnabled      bool
	SpeechEnabled      bool
	SpeechLanguage     string
}

func LoadConfig() Config {
	return Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("VERSION", ""),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "knowledge-indexer"),

		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080"),
		MetricsAddr: envutil.String("METRICS_ADDR", ""),
		AutoMigrate: envutil.Bool("AUTO_MIGRATE", false),

		StorageProvider: strings.ToLower(envutil.String("BLOB_STORAGE_PROVIDER", StorageProviderGCS)),
		LocalBlobRoot:   envutil.String("LOCAL_BLOB_ROOT", "./data/blobs"),
		ScratchDir:      envutil.String("SCRATCH_DIR", ""),
		VectorProvider:  strings.ToLower(envutil.String("VECTOR_PROVIDER", VectorProviderQdrant)),

		JobExecutor: strings.ToLower(envutil.String("JOB_EXECUTOR", services.ExecutorLocal)),
		JWTSecret:   envutil.String("SERVICE_JWT_SECRET", ""),
		ServiceKey:  envutil.String("INTERNAL_SERVICE_KEY", ""),

		TokenEncoding:      envutil.String("SEGMENT_TOKEN_ENCODING", ""),
		DocconvReadability: envutil.Bool("DOCCONV_READABILITY", false),
		VisionEnabled:      envutil.Bool("GCP_VISION_ENABLED", false),
		SpeechEnabled:      envutil.Bool("GCP_SPEECH_ENABLED", false),
		SpeechLanguage:     envutil.String("SPEECH_LANGUAGE_CODE", "en-US"),
	}
}

func (c Config) Validate() error {
	switch c.StorageProvider {
	case StorageProviderGCS, StorageProviderS3, StorageProviderLocal:
	default:
		return fmt.Errorf("BLOB_STORAGE_PROVIDER must be gcs, s3 or local, got %q", c.StorageProvider)
	}
	switch c.VectorProvider {
	case VectorProviderQdrant, VectorProviderPgvector:
	default:
		return fmt.Errorf("VECTOR_PROVIDER must be qdrant or pgvector, got %q", c.VectorProvider)
	}
	switch c.JobExecutor {
	case services.ExecutorLocal, services.ExecutorTemporal:
	default:
		return fmt.Errorf("JOB_EXECUTOR must be local or temporal, got %q", c.JobExecutor)
	}
	return nil
}

// validateAuth is only enforced for processes that serve HTTP.
func (c Config) validateAuth() error {
	if c.JWTSecret == "" && c.ServiceKey == "" {
		return fmt.Errorf("one of SERVICE_JWT_SECRET or INTERNAL_SERVICE_KEY is required")
	}
	return nil
}
