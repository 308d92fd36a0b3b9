package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/yungbote/knowledge-indexer/internal/indexing/vector"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/platform/pgvector"
	"github.com/yungbote/knowledge-indexer/internal/platform/qdrant"
)

type qdrantSink interface {
	vector.Sink
	Ready(ctx context.Context) error
}

var (
	newQdrantSink = func(log *logger.Logger, cfg qdrant.Config) (qdrantSink, error) {
		return qdrant.NewSink(log, cfg)
	}
	openPgvectorSink = pgvector.Open
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider    VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL   VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL   VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorQdrantConfigFailed VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorMissingPgvectorDSN VectorProviderBootstrapErrorCode = "missing_pgvector_dsn"
	VectorProviderBootstrapErrorConnectFailed      VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorSink opens the sink selected by VECTOR_PROVIDER and wraps it
// with metrics. The returned closer is never nil.
func resolveVectorSink(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (vector.Sink, func() error, error) {
	noop := func() error { return nil }
	provider := strings.TrimSpace(strings.ToLower(cfg.VectorProvider))

	fail := func(err error) (vector.Sink, func() error, error) {
		classified := classifyVectorProviderBootstrapError(provider, err)
		log.Error("Vector sink bootstrap failed",
			"provider", provider,
			"error_code", vectorProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, noop, classified
	}

	switch provider {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return fail(err)
		}
		log.Info("Selecting vector sink", "provider", provider, "qdrant_url", qcfg.URL)
		sink, err := newQdrantSink(log, qcfg)
		if err != nil {
			return fail(err)
		}
		if err := sink.Ready(ctx); err != nil {
			return fail(fmt.Errorf("ready check failed: %w", err))
		}
		return vector.Instrument(provider, sink, metrics), noop, nil

	case VectorProviderPgvector:
		pcfg := pgvector.ConfigFromEnv()
		if strings.TrimSpace(pcfg.DSN) == "" {
			return fail(&VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingPgvectorDSN,
				Provider: provider,
				Cause:    errors.New("PGVECTOR_DSN is required"),
			})
		}
		log.Info("Selecting vector sink", "provider", provider, "table_prefix", pcfg.TablePrefix)
		sink, err := openPgvectorSink(ctx, pcfg, log)
		if err != nil {
			return fail(err)
		}
		return vector.Instrument(provider, sink, metrics), sink.Close, nil

	default:
		return fail(&VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		})
	}
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		return err
	}
	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		code := VectorProviderBootstrapErrorQdrantConfigFailed
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderBootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderBootstrapErrorInvalidQdrantURL
		}
		return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
	}

	var urlErr *neturl.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}

	return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorProviderInitFailed, Provider: provider, Cause: err}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
