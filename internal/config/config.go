package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/conduit/internal/core/observability/log"
	"github.com/zeusync/conduit/internal/core/protocol/quic"
	"github.com/zeusync/conduit/internal/core/protocol/websocket"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration of a conduit server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	QUIC      QUICConfig      `yaml:"quic"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	Path            string        `yaml:"path"`
	MetricsPath     string        `yaml:"metrics_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CertFile and KeyFile enable TLS (wss://) on the HTTP listener.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// AuthToken, when set, must accompany every WebSocket upgrade.
	AuthToken string `yaml:"auth_token"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	Binary          bool          `yaml:"binary"`
	SendQueueSize   int           `yaml:"send_queue_size"`
}

type QUICConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	ws := websocket.DefaultConfig()
	q := quic.DefaultConfig()
	return Config{
		Server: ServerConfig{
			HTTPAddr:        "127.0.0.1:8080",
			Path:            "/ws",
			MetricsPath:     "/metrics",
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  ws.ReadBufferSize,
			WriteBufferSize: ws.WriteBufferSize,
			WriteTimeout:    ws.WriteTimeout,
			PingInterval:    ws.PingInterval,
			PongTimeout:     ws.PongTimeout,
			MaxMessageSize:  ws.MaxMessageSize,
			SendQueueSize:   ws.SendQueueSize,
		},
		QUIC: QUICConfig{
			Addr:           "127.0.0.1:8443",
			MaxIdleTimeout: q.MaxIdleTimeout,
			KeepAlive:      q.KeepAlivePeriod,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML file on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.Wrap(ErrInvalidConfig, "server.http_addr is required")
	}
	if c.Server.Path == "" || c.Server.Path[0] != '/' {
		return errors.Wrapf(ErrInvalidConfig, "server.path %q must start with /", c.Server.Path)
	}
	if c.Server.MetricsPath != "" && c.Server.MetricsPath == c.Server.Path {
		return errors.Wrap(ErrInvalidConfig, "server.metrics_path collides with server.path")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.Wrap(ErrInvalidConfig, "server.cert_file and server.key_file must be set together")
	}
	if c.WebSocket.SendQueueSize < 0 || c.WebSocket.MaxMessageSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "websocket sizes must not be negative")
	}
	if c.QUIC.Enabled && c.QUIC.Addr == "" {
		return errors.Wrap(ErrInvalidConfig, "quic.addr is required when quic is enabled")
	}
	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown log level %q", c.Log.Level)
	}
	return nil
}

// WebSocketHandleConfig converts the YAML section into handle settings.
func (c Config) WebSocketHandleConfig() websocket.Config {
	return websocket.Config{
		ReadBufferSize:  c.WebSocket.ReadBufferSize,
		WriteBufferSize: c.WebSocket.WriteBufferSize,
		WriteTimeout:    c.WebSocket.WriteTimeout,
		PingInterval:    c.WebSocket.PingInterval,
		PongTimeout:     c.WebSocket.PongTimeout,
		MaxMessageSize:  c.WebSocket.MaxMessageSize,
		Binary:          c.WebSocket.Binary,
		SendQueueSize:   c.WebSocket.SendQueueSize,
	}
}

// QUICHandleConfig converts the YAML section into connection settings.
func (c Config) QUICHandleConfig() quic.Config {
	q := quic.DefaultConfig()
	if c.QUIC.MaxIdleTimeout > 0 {
		q.MaxIdleTimeout = c.QUIC.MaxIdleTimeout
	}
	if c.QUIC.KeepAlive > 0 {
		q.KeepAlivePeriod = c.QUIC.KeepAlive
	}
	return q
}

// LogLevel returns the configured level, falling back to info.
func (c Config) LogLevel() log.Level {
	level, _ := log.ParseLevel(c.Log.Level)
	return level
}
