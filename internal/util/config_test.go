package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dataDir := t.TempDir()
	path := writeConfig(t, "data_dir: "+dataDir+"\nmonitored_callsigns:\n  - k2abc\n  - N4QRS\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Listen.Port != 4739 {
		t.Fatalf("expected default port 4739, got %d", cfg.Listen.Port)
	}
	if cfg.Listen.ReceiveTimeout != 10*time.Second {
		t.Fatalf("expected default receive timeout 10s, got %s", cfg.Listen.ReceiveTimeout)
	}
	if cfg.Alert.SNRThreshold != 10 || cfg.Alert.DistanceThreshold != 1000 {
		t.Fatalf("unexpected thresholds %+v", cfg.Alert)
	}
	if !cfg.Alert.Enabled {
		t.Fatal("alerts should be enabled by default")
	}
	if len(cfg.MonitoredCallsigns) != 2 || cfg.MonitoredCallsigns[1] != "N4QRS" {
		t.Fatalf("unexpected callsigns %v", cfg.MonitoredCallsigns)
	}
	if cfg.LogFile != filepath.Join(dataDir, "pskwatch.log") {
		t.Fatalf("log file should follow data dir, got %s", cfg.LogFile)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeConfig(t, `
data_dir: `+t.TempDir()+`
listen:
  host: 127.0.0.1
  port: 14739
  receive_timeout: 2s
  queue_size: 10
alert:
  enabled: false
  snr_threshold: -5
  distance_threshold: 3000
  recipients: [ops@example.com]
  sweep_interval: 1m
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Listen.Addr() != "127.0.0.1:14739" {
		t.Fatalf("unexpected addr %s", cfg.Listen.Addr())
	}
	if cfg.Listen.ReceiveTimeout != 2*time.Second || cfg.Listen.QueueSize != 10 {
		t.Fatalf("unexpected listen config %+v", cfg.Listen)
	}
	if cfg.Listen.Workers != 2 {
		t.Fatalf("unset keys should keep defaults, got workers=%d", cfg.Listen.Workers)
	}
	if cfg.Alert.Enabled || cfg.Alert.SNRThreshold != -5 || cfg.Alert.DistanceThreshold != 3000 {
		t.Fatalf("unexpected alert config %+v", cfg.Alert)
	}
	if len(cfg.Alert.Recipients) != 1 || cfg.Alert.SweepInterval != time.Minute {
		t.Fatalf("unexpected alert config %+v", cfg.Alert)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("PSKWATCH_LISTEN_PORT", "5000")

	cfg, err := LoadConfig(writeConfig(t, "data_dir: "+t.TempDir()+"\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Listen.Port != 5000 {
		t.Fatalf("expected env override, got %d", cfg.Listen.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Listen.Port = 70000 }},
		{"timeout", func(c *Config) { c.Listen.ReceiveTimeout = 0 }},
		{"queue", func(c *Config) { c.Listen.QueueSize = 0 }},
		{"workers", func(c *Config) { c.Listen.Workers = 0 }},
		{"sweep", func(c *Config) { c.Alert.SweepInterval = 0 }},
		{"status", func(c *Config) { c.StatusInterval = 0 }},
		{"retention", func(c *Config) { c.ReportRetention = -time.Hour }},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
