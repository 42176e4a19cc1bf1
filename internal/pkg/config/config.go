package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Viewport  ViewportConfig  `mapstructure:"viewport"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Session   SessionConfig   `mapstructure:"session"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// ViewportConfig tunes the camera-to-fetch pipeline shared by all sessions.
type ViewportConfig struct {
	// BufferFraction widens every fetch beyond the visible box, per side.
	BufferFraction float64 `mapstructure:"buffer_fraction"`
	// UnchangedThreshold is the per-edge jitter tolerance in degrees.
	UnchangedThreshold float64 `mapstructure:"unchanged_threshold"`
	// MinOverlapRatio is the covered fraction below which a refetch runs.
	MinOverlapRatio float64 `mapstructure:"min_overlap_ratio"`
	AutoRefresh     bool    `mapstructure:"auto_refresh"`
	MarkerLimit     int     `mapstructure:"marker_limit"`
	// RefreshMinMS floors how often marker events may force a refetch.
	RefreshMinMS int `mapstructure:"refresh_min_ms"`
}

// ClusterConfig mirrors the clustering options sent to the map client.
type ClusterConfig struct {
	RadiusPx int `mapstructure:"radius_px"`
	MaxZoom  int `mapstructure:"max_zoom"`
}

// SessionConfig tunes the per-connection websocket machinery.
type SessionConfig struct {
	// OpTimeoutMS bounds each surface command round trip.
	OpTimeoutMS int     `mapstructure:"op_timeout_ms"`
	FlyToMS     int     `mapstructure:"fly_to_ms"`
	TapZoomStep float64 `mapstructure:"tap_zoom_step"`
	MaxZoom     float64 `mapstructure:"max_zoom"`
	// EventBuffer is the per-session queue between the read loop and the
	// worker applying viewport changes.
	EventBuffer int `mapstructure:"event_buffer"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bilbowatch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "bilbowatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.key_prefix", "bilbowatch:")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("viewport.buffer_fraction", 0.3)
	v.SetDefault("viewport.unchanged_threshold", 0.001)
	v.SetDefault("viewport.min_overlap_ratio", 0.8)
	v.SetDefault("viewport.auto_refresh", true)
	v.SetDefault("viewport.marker_limit", 500)
	v.SetDefault("viewport.refresh_min_ms", 2000)
	v.SetDefault("cluster.radius_px", 50)
	v.SetDefault("cluster.max_zoom", 14)
	v.SetDefault("session.op_timeout_ms", 5000)
	v.SetDefault("session.fly_to_ms", 500)
	v.SetDefault("session.tap_zoom_step", 2)
	v.SetDefault("session.max_zoom", 20)
	v.SetDefault("session.event_buffer", 32)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: BILBOWATCH_DATABASE_HOST → database.host
	v.SetEnvPrefix("BILBOWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Viewport.BufferFraction < 0 || c.Viewport.BufferFraction >= 1 {
		errs = append(errs, fmt.Sprintf("viewport.buffer_fraction must be in [0, 1), got %g", c.Viewport.BufferFraction))
	}
	if c.Viewport.UnchangedThreshold <= 0 {
		errs = append(errs, "viewport.unchanged_threshold must be positive")
	}
	if c.Viewport.MinOverlapRatio <= 0 || c.Viewport.MinOverlapRatio > 1 {
		errs = append(errs, fmt.Sprintf("viewport.min_overlap_ratio must be in (0, 1], got %g", c.Viewport.MinOverlapRatio))
	}
	if c.Viewport.MarkerLimit <= 0 {
		errs = append(errs, "viewport.marker_limit must be positive")
	}
	if c.Cluster.RadiusPx <= 0 {
		errs = append(errs, "cluster.radius_px must be positive")
	}
	if c.Cluster.MaxZoom < 0 || c.Cluster.MaxZoom > 24 {
		errs = append(errs, fmt.Sprintf("cluster.max_zoom must be 0-24, got %d", c.Cluster.MaxZoom))
	}
	if c.Session.OpTimeoutMS <= 0 {
		errs = append(errs, "session.op_timeout_ms must be positive")
	}
	if c.Session.MaxZoom <= 0 || c.Session.MaxZoom > 24 {
		errs = append(errs, fmt.Sprintf("session.max_zoom must be in (0, 24], got %g", c.Session.MaxZoom))
	}
	if c.Session.EventBuffer <= 0 {
		errs = append(errs, "session.event_buffer must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
