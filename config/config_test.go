package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Database.DSN == "" {
		t.Error("expected a default database DSN")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing server addr",
			modify:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "missing database dsn",
			modify:  func(c *Config) { c.Database.DSN = "" },
			wantErr: true,
		},
		{
			name:    "datacenter id too large",
			modify:  func(c *Config) { c.Snowflake.DatacenterID = 32 },
			wantErr: true,
		},
		{
			name:    "worker id negative",
			modify:  func(c *Config) { c.Snowflake.WorkerID = -1 },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  addr: ":9090"
  read_timeout: 5s
database:
  dsn: "postgres://test:test@db:5432/test"
  max_open_conns: 20
snowflake:
  datacenter_id: 2
  worker_id: 7
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("unexpected dsn %s", cfg.Database.DSN)
	}
	if cfg.Database.MaxOpenConns != 20 {
		t.Errorf("expected 20 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Snowflake.DatacenterID != 2 || cfg.Snowflake.WorkerID != 7 {
		t.Errorf("unexpected snowflake ids %d/%d", cfg.Snowflake.DatacenterID, cfg.Snowflake.WorkerID)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Server: ServerConfig{
			Addr: ":7070",
		},
		Snowflake: SnowflakeConfig{
			WorkerID: 3,
		},
	}

	base.Merge(override)

	if base.Server.Addr != ":7070" {
		t.Errorf("expected addr :7070, got %s", base.Server.Addr)
	}
	// Timeouts should remain from base since override didn't set them
	if base.Server.ReadTimeout != 15*time.Second {
		t.Errorf("expected read timeout to remain default, got %v", base.Server.ReadTimeout)
	}
	if base.Snowflake.WorkerID != 3 {
		t.Errorf("expected worker id 3, got %d", base.Snowflake.WorkerID)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Addr = ":6060"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Server.Addr != ":6060" {
		t.Errorf("expected addr :6060, got %s", loaded.Server.Addr)
	}
}
