// Package util provides common utilities for pskwatch.
package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	Listen ListenConfig `mapstructure:"listen"`

	// Seeded into the watch-list at daemon start.
	MonitoredCallsigns []string `mapstructure:"monitored_callsigns"`

	Alert AlertConfig `mapstructure:"alert"`
	SMTP  SMTPConfig  `mapstructure:"smtp"`
	MQTT  MQTTConfig  `mapstructure:"mqtt"`

	WatchlistRefreshInterval time.Duration `mapstructure:"watchlist_refresh_interval"`
	StatusInterval           time.Duration `mapstructure:"status_interval"`

	// Reports older than this are deleted. Zero keeps everything.
	ReportRetention time.Duration `mapstructure:"report_retention"`

	WebPort int           `mapstructure:"web_port"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ListenConfig configures the UDP listener.
type ListenConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"`
	ReadBuffer     int           `mapstructure:"read_buffer"`
	SocketBuffer   int           `mapstructure:"socket_buffer"`
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
}

// Addr returns host:port for binding.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// AlertConfig holds global alert thresholds and recipients.
type AlertConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	SNRThreshold      int           `mapstructure:"snr_threshold"`
	DistanceThreshold int           `mapstructure:"distance_threshold"`
	Recipients        []string      `mapstructure:"recipients"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

// SMTPConfig configures the email notifier. Empty Host disables it.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// MQTTConfig configures the MQTT notifier. Empty Broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".pskwatch")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "pskwatch.log"),

		Listen: ListenConfig{
			Host:           "0.0.0.0",
			Port:           4739,
			ReceiveTimeout: 10 * time.Second,
			ReadBuffer:     65535,
			SocketBuffer:   1 << 20,
			QueueSize:      4096,
			Workers:        2,
		},

		Alert: AlertConfig{
			Enabled:           true,
			SNRThreshold:      10,
			DistanceThreshold: 1000,
			SweepInterval:     5 * time.Minute,
		},

		SMTP: SMTPConfig{Port: 587},
		MQTT: MQTTConfig{Topic: "pskwatch/alerts", ClientID: "pskwatch"},

		WatchlistRefreshInterval: 30 * time.Second,
		StatusInterval:           15 * time.Second,

		WebPort: 8080,
		Tracing: TracingConfig{Exporter: "stdout"},
	}
}

// LoadConfig loads configuration from file and environment. An empty
// cfgFile searches the data directory and the working directory.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetEnvPrefix("PSKWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(cfg.DataDir)
		viper.AddConfigPath(".")
	}

	setDefaults(cfg)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !viper.IsSet("log_file") || cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "pskwatch.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so environment overrides and Unmarshal see them.
func setDefaults(cfg *Config) {
	viper.SetDefault("data_dir", cfg.DataDir)
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("listen.host", cfg.Listen.Host)
	viper.SetDefault("listen.port", cfg.Listen.Port)
	viper.SetDefault("listen.receive_timeout", cfg.Listen.ReceiveTimeout)
	viper.SetDefault("listen.read_buffer", cfg.Listen.ReadBuffer)
	viper.SetDefault("listen.socket_buffer", cfg.Listen.SocketBuffer)
	viper.SetDefault("listen.queue_size", cfg.Listen.QueueSize)
	viper.SetDefault("listen.workers", cfg.Listen.Workers)
	viper.SetDefault("monitored_callsigns", []string{})
	viper.SetDefault("alert.enabled", cfg.Alert.Enabled)
	viper.SetDefault("alert.snr_threshold", cfg.Alert.SNRThreshold)
	viper.SetDefault("alert.distance_threshold", cfg.Alert.DistanceThreshold)
	viper.SetDefault("alert.recipients", []string{})
	viper.SetDefault("alert.sweep_interval", cfg.Alert.SweepInterval)
	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", cfg.SMTP.Port)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")
	viper.SetDefault("mqtt.broker", "")
	viper.SetDefault("mqtt.topic", cfg.MQTT.Topic)
	viper.SetDefault("mqtt.client_id", cfg.MQTT.ClientID)
	viper.SetDefault("watchlist_refresh_interval", cfg.WatchlistRefreshInterval)
	viper.SetDefault("status_interval", cfg.StatusInterval)
	viper.SetDefault("report_retention", cfg.ReportRetention)
	viper.SetDefault("web_port", cfg.WebPort)
	viper.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", cfg.Tracing.Exporter)
}

// Validate rejects configuration the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port out of range: %d", c.Listen.Port)
	}
	if c.Listen.ReceiveTimeout <= 0 {
		return fmt.Errorf("listen.receive_timeout must be positive")
	}
	if c.Listen.ReadBuffer < 16 {
		return fmt.Errorf("listen.read_buffer too small: %d", c.Listen.ReadBuffer)
	}
	if c.Listen.QueueSize <= 0 {
		return fmt.Errorf("listen.queue_size must be positive")
	}
	if c.Listen.Workers <= 0 {
		return fmt.Errorf("listen.workers must be positive")
	}
	if c.Alert.SweepInterval <= 0 {
		return fmt.Errorf("alert.sweep_interval must be positive")
	}
	if c.WatchlistRefreshInterval <= 0 {
		return fmt.Errorf("watchlist_refresh_interval must be positive")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive")
	}
	if c.ReportRetention < 0 {
		return fmt.Errorf("report_retention must not be negative")
	}
	switch c.Tracing.Exporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("unknown tracing.exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
