package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/knowledge-indexer/internal/platform/blob"
	"github.com/yungbote/knowledge-indexer/internal/platform/gcp"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/platform/s3"
)

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageProviderBootstrapErrorCode
	}{
		{"missing emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{"invalid emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidEmulatorHost, Value: "fake-gcs:4443"}, StorageProviderBootstrapErrorInvalidEmulatorHost},
		{"missing bucket", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingBucket}, StorageProviderBootstrapErrorInvalidConfig},
		{"connect", errors.New("dial tcp: connection refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		err := classifyStorageProviderBootstrapError(StorageProviderGCS, tc.err)
		var got *StorageProviderBootstrapError
		if !errors.As(err, &got) {
			t.Fatalf("%s: expected StorageProviderBootstrapError, got=%T", tc.name, err)
		}
		if got.Code != tc.want {
			t.Fatalf("%s: code want=%q got=%q", tc.name, tc.want, got.Code)
		}
		if !errors.Is(err, tc.err) {
			t.Fatalf("%s: cause not wrapped", tc.name)
		}
	}
}

func TestResolveBlobStoreLocal(t *testing.T) {
	root := t.TempDir()
	store, err := resolveBlobStore(context.Background(), logger.Nop(), Config{StorageProvider: StorageProviderLocal, LocalBlobRoot: root})
	if err != nil {
		t.Fatalf("resolveBlobStore: %v", err)
	}
	if _, ok := store.(*blob.Local); !ok {
		t.Fatalf("want *blob.Local got=%T", store)
	}
	if err := store.Upload(context.Background(), "docs/a.txt", strings.NewReader("hi"), "text/plain"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestResolveBlobStoreUnknownProvider(t *testing.T) {
	_, err := resolveBlobStore(context.Background(), logger.Nop(), Config{StorageProvider: "ftp"})
	if got := storageProviderBootstrapErrorCode(err); got != StorageProviderBootstrapErrorInvalidProvider {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidProvider, got)
	}
}

func TestResolveBlobStoreS3(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("S3_BUCKET_NAME", "docs")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	orig := newS3Store
	t.Cleanup(func() { newS3Store = orig })
	var seen s3.Config
	newS3Store = func(_ context.Context, cfg s3.Config, _ *logger.Logger) (blob.Store, error) {
		seen = cfg
		return &blob.Local{Root: t.TempDir()}, nil
	}

	if _, err := resolveBlobStore(context.Background(), logger.Nop(), Config{StorageProvider: StorageProviderS3}); err != nil {
		t.Fatalf("resolveBlobStore: %v", err)
	}
	if seen.Bucket != "docs" || seen.Region != "eu-west-1" {
		t.Fatalf("s3 config: got=%+v", seen)
	}
}

func TestResolveBlobStoreGCSConnectFailure(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("DOCUMENT_GCS_BUCKET_NAME", "docs")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	orig := newBucketStore
	t.Cleanup(func() { newBucketStore = orig })
	newBucketStore = func(context.Context, gcp.ObjectStorageConfig, *logger.Logger) (blob.Store, error) {
		return nil, errors.New("credentials: could not find default credentials")
	}

	_, err := resolveBlobStore(context.Background(), logger.Nop(), Config{StorageProvider: StorageProviderGCS})
	if got := storageProviderBootstrapErrorCode(err); got != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorConnectFailed, got)
	}
}
