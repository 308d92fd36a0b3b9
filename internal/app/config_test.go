package app

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"BLOB_STORAGE_PROVIDER", "VECTOR_PROVIDER", "JOB_EXECUTOR", "HTTP_ADDR"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.StorageProvider != StorageProviderGCS || cfg.VectorProvider != VectorProviderQdrant || cfg.JobExecutor != "local" {
		t.Fatalf("defaults: got=%+v", cfg)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr: want=:8080 got=%q", cfg.HTTPAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{StorageProvider: "local", VectorProvider: "pgvector", JobExecutor: "temporal"}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for name, mutate := range map[string]func(*Config){
		"storage":  func(c *Config) { c.StorageProvider = "ftp" },
		"vector":   func(c *Config) { c.VectorProvider = "pinecone" },
		"executor": func(c *Config) { c.JobExecutor = "celery" },
	} {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: invalid config accepted", name)
		}
	}
	if err := base.validateAuth(); err == nil {
		t.Fatalf("server config without credentials accepted")
	}
	base.ServiceKey = "k"
	if err := base.validateAuth(); err != nil {
		t.Fatalf("validateAuth: %v", err)
	}
}
