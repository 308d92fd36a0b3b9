package temporalx

import (
	"time"

	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout        time.Duration
	DialMaxWait        time.Duration
	Backoff            time.Duration
	BackoffMax         time.Duration
	AutoRegister       bool
	RetentionDays      int
	WorkerConcurrency  int
	WorkerStartMaxWait time.Duration
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "knowledge-indexer"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "knowledge-indexer"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout:        envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait:        envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", time.Minute),
		Backoff:            envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond),
		BackoffMax:         envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second),
		AutoRegister:       envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:      envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
		WorkerConcurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		WorkerStartMaxWait: envutil.Duration("TEMPORAL_WORKER_START_MAX_WAIT", time.Minute),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

// ClampBackoff doubles base per attempt, capped at max.
func ClampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}
