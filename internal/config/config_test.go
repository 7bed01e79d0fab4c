package config

import (
	"testing"
	"time"
)

func TestEnvConfigToAppConfig(t *testing.T) {
	env := EnvConfig{
		Host:                    "127.0.0.1",
		Port:                    9090,
		LogLevel:                "DEBUG",
		LogFormat:               "json",
		Environment:             "production",
		DBURL:                   "postgres://u:p@localhost/matcat",
		RequestTimeoutSeconds:   15,
		EnableFallbackDatabases: false,
		Search: SearchEnv{
			VectorThreshold:    0.1,
			FuzzyThreshold:     0.6,
			HybridVectorWeight: 0.6,
			HybridSQLWeight:    0.4,
			SKURecallK:         20,
			SKUMinCosine:       0.70,
		},
		Cache: CacheEnv{RedisAddr: "localhost:6379", MaterialTTLSeconds: 3600, SearchTTLSeconds: 300, SuggestTTLSeconds: 3600, CombinedTTLSeconds: 86400},
		Batch: BatchEnv{MaxItemsPerRequest: 10000, WorkerPool: 5, ChunkSize: 50, ItemTimeoutSeconds: 60},
	}

	cfg := env.ToAppConfig()
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
	if !cfg.IsProduction() {
		t.Fatal("IsProduction() must be true")
	}
	if cfg.LogFormat() != LogFormatJSON {
		t.Fatalf("LogFormat() = %q", cfg.LogFormat())
	}
	if cfg.RequestTimeout() != 15*time.Second {
		t.Fatalf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
	if cfg.EnableFallbackDatabases() {
		t.Fatal("fallback databases must be disabled")
	}
	if cfg.Cache().MaterialTTL() != time.Hour {
		t.Fatalf("MaterialTTL() = %v", cfg.Cache().MaterialTTL())
	}
	if cfg.DBURL() != "postgres://u:p@localhost/matcat" {
		t.Fatalf("DBURL() = %q", cfg.DBURL())
	}
}

func TestEmptyDBURLKeepsDefault(t *testing.T) {
	cfg := EnvConfig{Host: "h", Port: 1}.ToAppConfig()
	if cfg.DBURL() != "sqlite:///:memory:" {
		t.Fatalf("DBURL() = %q", cfg.DBURL())
	}
}

func TestMaskedDBURL(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithDBURL("postgres://user:secret@db/matcat"))
	for _, a := range cfg.LogAttrs() {
		if a.Key == "db_url" && a.Value.String() != "postgres://***@***" {
			t.Fatalf("db_url attr = %q", a.Value.String())
		}
	}
}

func TestParseLogFormat(t *testing.T) {
	if ParseLogFormat("JSON") != LogFormatJSON {
		t.Fatal("JSON must parse case-insensitively")
	}
	if ParseLogFormat("anything") != LogFormatText {
		t.Fatal("unknown formats fall back to text")
	}
}
