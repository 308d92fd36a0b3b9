package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/knowledge-indexer/internal/bridges"
	"github.com/yungbote/knowledge-indexer/internal/clients/redis"
	"github.com/yungbote/knowledge-indexer/internal/indexing/vector"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/pkg/keylock"
	"github.com/yungbote/knowledge-indexer/internal/platform/blob"
	"github.com/yungbote/knowledge-indexer/internal/platform/gcp"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/services"
	"github.com/yungbote/knowledge-indexer/internal/temporalx"
)

type Clients struct {
	Blob   blob.Store
	Vector vector.Sink

	Redis  *goredis.Client
	Locker keylock.Locker
	Status redis.StatusBus

	Integration *bridges.IntegrationBridge
	Vault       *bridges.VaultBridge

	Temporal       temporalsdkclient.Client
	TemporalConfig temporalx.Config

	DocumentAI *gcp.DocumentAI
	Vision     *gcp.Vision
	Speech     *gcp.Speech

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients
	fail := func(err error) (Clients, error) {
		c.Close()
		return Clients{}, err
	}

	store, err := resolveBlobStore(ctx, log, cfg)
	if err != nil {
		return fail(fmt.Errorf("init blob store: %w", err))
	}
	c.Blob = store
	if closer, ok := store.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}

	sink, closeSink, err := resolveVectorSink(ctx, log, cfg, metrics)
	if err != nil {
		return fail(fmt.Errorf("init vector sink: %w", err))
	}
	c.Vector = sink
	c.closers = append(c.closers, closeSink)

	// Redis is optional: without it locks are process-local and status events
	// are only logged.
	c.Locker = keylock.NewLocal()
	if rcfg := redis.ConfigFromEnv(); rcfg.Enabled() {
		rdb, err := redis.NewClient(rcfg)
		if err != nil {
			return fail(fmt.Errorf("init redis: %w", err))
		}
		c.Redis = rdb
		c.closers = append(c.closers, rdb.Close)
		c.Locker = redis.NewLocker(rdb, rcfg.LockTTL, log)
		c.Status = redis.NewStatusBus(rdb, rcfg.Channel, log)
	} else {
		log.Warn("REDIS_ADDR not set; using in-process document locks")
	}

	bcfg := bridges.ConfigFromEnv()
	integrationConn, err := bridges.Dial(bcfg.IntegrationHost)
	if err != nil {
		return fail(fmt.Errorf("dial integration api: %w", err))
	}
	c.closers = append(c.closers, integrationConn.Close)
	webConn, err := bridges.Dial(bcfg.WebHost)
	if err != nil {
		return fail(fmt.Errorf("dial web api: %w", err))
	}
	c.closers = append(c.closers, webConn.Close)
	c.Integration = bridges.NewIntegrationBridge(integrationConn, bcfg, log)
	c.Vault = bridges.NewVaultBridge(webConn, bcfg, log)

	if cfg.JobExecutor == services.ExecutorTemporal {
		tcfg := temporalx.LoadConfig()
		tc, err := temporalx.NewClient(log, tcfg)
		if err != nil {
			return fail(fmt.Errorf("init temporal client: %w", err))
		}
		if tc == nil {
			return fail(fmt.Errorf("JOB_EXECUTOR=temporal requires TEMPORAL_ADDRESS"))
		}
		c.Temporal = tc
		c.TemporalConfig = tcfg
		c.closers = append(c.closers, func() error { tc.Close(); return nil })
	}

	if dcfg := gcp.DocumentAIConfigFromEnv(); dcfg.Enabled() {
		d, err := gcp.NewDocumentAI(ctx, dcfg, log)
		if err != nil {
			return fail(fmt.Errorf("init documentai: %w", err))
		}
		c.DocumentAI = d
		c.closers = append(c.closers, d.Close)
	}
	if cfg.VisionEnabled {
		v, err := gcp.NewVision(ctx, log)
		if err != nil {
			return fail(fmt.Errorf("init vision: %w", err))
		}
		c.Vision = v
		c.closers = append(c.closers, v.Close)
	}
	if cfg.SpeechEnabled {
		s, err := gcp.NewSpeech(ctx, gcp.SpeechConfig{LanguageCode: cfg.SpeechLanguage}, log)
		if err != nil {
			return fail(fmt.Errorf("init speech: %w", err))
		}
		c.Speech = s
		c.closers = append(c.closers, s.Close)
	}

	return c, nil
}

// Close releases clients in reverse order of creation.
func (c *Clients) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
