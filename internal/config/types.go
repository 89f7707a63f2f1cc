package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Broker    BrokerConfig    `yaml:"broker" mapstructure:"broker"`
	Replace   ReplaceConfig   `yaml:"replace" mapstructure:"replace"`
	Capture   CaptureConfig   `yaml:"capture" mapstructure:"capture"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	LoadTest  LoadTestConfig  `yaml:"loadtest" mapstructure:"loadtest"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// BrokerConfig contains the message broker connection settings
type BrokerConfig struct {
	URL          string        `yaml:"url" mapstructure:"url"`
	Mode         string        `yaml:"mode" mapstructure:"mode"` // stream or pubsub
	Stream       string        `yaml:"stream" mapstructure:"stream"`
	Group        string        `yaml:"group" mapstructure:"group"`
	Consumer     string        `yaml:"consumer" mapstructure:"consumer"`
	Channels     []string      `yaml:"channels" mapstructure:"channels"`
	BatchSize    int64         `yaml:"batch_size" mapstructure:"batch_size"`
	BlockTimeout time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // messages per second, 0 disables
	RateBurst    int           `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ReplaceConfig contains the JSON path replacement settings
type ReplaceConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Rules   []ReplaceRule `yaml:"rules" mapstructure:"rules"`
}

// ReplaceRule describes a single path replacement rule
type ReplaceRule struct {
	JSONPath    string `yaml:"json_path" mapstructure:"json_path"`
	Placeholder string `yaml:"placeholder" mapstructure:"placeholder"`
	Description string `yaml:"description" mapstructure:"description"`
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
}

// CaptureConfig contains the in-memory event buffer settings
type CaptureConfig struct {
	MaxEvents    int `yaml:"max_events" mapstructure:"max_events"`
	PreviewBytes int `yaml:"preview_bytes" mapstructure:"preview_bytes"`
}

// ArchiveConfig contains the optional PostgreSQL event archive settings
type ArchiveConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
}

// LoadTestConfig contains JMeter test plan generation settings
type LoadTestConfig struct {
	TargetURL     string `yaml:"target_url" mapstructure:"target_url"`
	Threads       int    `yaml:"threads" mapstructure:"threads"`
	RampUpSeconds int    `yaml:"ramp_up_seconds" mapstructure:"ramp_up_seconds"`
	LoopCount     int    `yaml:"loop_count" mapstructure:"loop_count"`
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool            `yaml:"enabled" mapstructure:"enabled"`
	Path            string          `yaml:"path" mapstructure:"path"`
	MaxConnections  int             `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int             `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int             `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration   `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration   `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64           `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string        `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Username        string          `yaml:"username" mapstructure:"username"` // empty disables auth
	Password        string          `yaml:"password" mapstructure:"password"`
	Events          BroadcastConfig `yaml:"events" mapstructure:"events"`
}

// BroadcastConfig selects which event categories are pushed to WebSocket clients
type BroadcastConfig struct {
	BroadcastMessages     bool `yaml:"broadcast_messages" mapstructure:"broadcast_messages"`
	BroadcastReplacements bool `yaml:"broadcast_replacements" mapstructure:"broadcast_replacements"`
	BroadcastSystem       bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	BroadcastConnections  bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string        `yaml:"level" mapstructure:"level"`
	Format string        `yaml:"format" mapstructure:"format"` // json or console
	File   FileLogConfig `yaml:"file" mapstructure:"file"`
}

// FileLogConfig contains file logging configuration
type FileLogConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
	MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
	Compress bool   `yaml:"compress" mapstructure:"compress"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:          "redis://localhost:6379/0",
			Mode:         "stream",
			Stream:       "mqtap:events",
			Group:        "mqtap",
			Consumer:     "mqtap-1",
			Channels:     []string{"mqtap.events"},
			BatchSize:    32,
			BlockTimeout: 5 * time.Second,
			RateLimit:    0,
			RateBurst:    1,
		},
		Replace: ReplaceConfig{
			Enabled: true,
			Rules:   []ReplaceRule{},
		},
		Capture: CaptureConfig{
			MaxEvents:    500,
			PreviewBytes: 256,
		},
		Archive: ArchiveConfig{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/mqtap?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			BatchSize:       100,
		},
		LoadTest: LoadTestConfig{
			TargetURL:     "http://localhost:8080/api/echo",
			Threads:       10,
			RampUpSeconds: 5,
			LoopCount:     1,
			OutputDir:     "loadtests",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"}, // Allow all origins for development
			Events: BroadcastConfig{
				BroadcastMessages:     true,
				BroadcastReplacements: true,
				BroadcastSystem:       true,
				BroadcastConnections:  true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: FileLogConfig{
				Enabled:  false,
				Path:     "logs/mqtap.log",
				MaxSize:  100, // MB
				MaxAge:   30,  // days
				Compress: true,
			},
		},
	}
}
