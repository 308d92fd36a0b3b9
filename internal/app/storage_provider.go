package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/knowledge-indexer/internal/platform/blob"
	"github.com/yungbote/knowledge-indexer/internal/platform/gcp"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/platform/s3"
)

var (
	newBucketStore = func(ctx context.Context, cfg gcp.ObjectStorageConfig, log *logger.Logger) (blob.Store, error) {
		return gcp.NewBucketStore(ctx, cfg, log)
	}
	newS3Store = func(ctx context.Context, cfg s3.Config, log *logger.Logger) (blob.Store, error) {
		return s3.New(ctx, cfg, log)
	}
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidProvider     StorageProviderBootstrapErrorCode = "invalid_provider"
	StorageProviderBootstrapErrorInvalidConfig       StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code     StorageProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBlobStore opens the document store selected by BLOB_STORAGE_PROVIDER.
func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg Config) (blob.Store, error) {
	provider := cfg.StorageProvider
	log.Info("Selecting object storage provider", "provider", provider)

	var (
		store blob.Store
		err   error
	)
	switch provider {
	case StorageProviderGCS:
		var gcsCfg gcp.ObjectStorageConfig
		gcsCfg, err = gcp.ResolveObjectStorageConfigFromEnv()
		if err == nil {
			log.Info("GCS object storage", "mode", gcsCfg.Mode, "bucket", gcsCfg.Bucket, "emulator_host", gcsCfg.EmulatorHost)
			store, err = newBucketStore(ctx, gcsCfg, log)
		}
	case StorageProviderS3:
		s3Cfg := s3.ConfigFromEnv()
		if err = s3Cfg.Validate(); err == nil {
			store, err = newS3Store(ctx, s3Cfg, log)
		} else {
			err = &StorageProviderBootstrapError{Code: StorageProviderBootstrapErrorInvalidConfig, Provider: provider, Cause: err}
		}
	case StorageProviderLocal:
		store, err = blob.NewLocal(cfg.LocalBlobRoot)
	default:
		err = &StorageProviderBootstrapError{
			Code:     StorageProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported object storage provider %q", provider),
		}
	}
	if err != nil {
		classified := classifyStorageProviderBootstrapError(provider, err)
		log.Error("Object storage provider bootstrap failed",
			"provider", provider,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageProviderBootstrapError(provider string, err error) error {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		return err
	}
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		code := StorageProviderBootstrapErrorInvalidConfig
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		}
		return &StorageProviderBootstrapError{Code: code, Provider: provider, Cause: err}
	}
	return &StorageProviderBootstrapError{Code: StorageProviderBootstrapErrorConnectFailed, Provider: provider, Cause: err}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageProviderBootstrapErrorConnectFailed
}
