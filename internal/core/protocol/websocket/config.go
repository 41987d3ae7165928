package websocket

import "time"

// Config tunes a WebSocket Handle.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// WriteTimeout bounds each frame write; zero disables the deadline.
	WriteTimeout time.Duration
	// PingInterval enables keepalive pings when positive. The peer must answer
	// within PongTimeout or the read side fails.
	PingInterval time.Duration
	PongTimeout  time.Duration
	// MaxMessageSize limits inbound frames; zero means no limit.
	MaxMessageSize int64
	// Binary sends payloads as binary frames instead of text frames.
	Binary        bool
	SendQueueSize int
}

func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageSize:  1 << 20,
		SendQueueSize:   256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.PingInterval > 0 && c.PongTimeout <= c.PingInterval {
		c.PongTimeout = 2 * c.PingInterval
	}
	return c
}
