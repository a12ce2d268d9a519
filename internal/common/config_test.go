package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("TICKWATCH_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_DataPathEnvOverride(t *testing.T) {
	t.Setenv("TICKWATCH_DATA_PATH", "/var/lib/tickwatch")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Storage.Path != "/var/lib/tickwatch" {
		t.Errorf("Storage.Path = %q after env override, want %q", cfg.Storage.Path, "/var/lib/tickwatch")
	}
}

func TestConfig_RedisEnvOverride(t *testing.T) {
	t.Setenv("TICKWATCH_REDIS_ADDR", "redis:6379")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Cache.Addr != "redis:6379" {
		t.Errorf("Cache.Addr = %q after env override, want %q", cfg.Cache.Addr, "redis:6379")
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickwatch.toml")
	content := `
environment = "production"

[server]
port = 9999

[cache]
addr = "localhost:6379"
quote_ttl = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if !cfg.IsProduction() {
		t.Errorf("IsProduction() = false, want true")
	}
	if cfg.Cache.GetQuoteTTL() != 5*time.Second {
		t.Errorf("GetQuoteTTL() = %v, want 5s", cfg.Cache.GetQuoteTTL())
	}
	// unset file values keep defaults
	if cfg.Provider.RateLimit != 10 {
		t.Errorf("Provider.RateLimit = %d, want default 10", cfg.Provider.RateLimit)
	}
}

func TestConfig_LoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("does-not-exist.toml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
}

func TestCacheConfig_TTLInvalidFallsBack(t *testing.T) {
	cfg := &CacheConfig{QuoteTTL: "not-a-duration"}
	if d := cfg.GetQuoteTTL(); d != 15*time.Second {
		t.Errorf("GetQuoteTTL() = %v, want 15s (fallback for invalid)", d)
	}
}

func TestProviderConfig_TimeoutDefault(t *testing.T) {
	cfg := &ProviderConfig{}
	if d := cfg.GetTimeout(); d != 10*time.Second {
		t.Errorf("GetTimeout() = %v, want 10s", d)
	}
}
