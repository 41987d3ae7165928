package quic

import (
	"time"

	"github.com/quic-go/quic-go"
)

// NextProto is the ALPN identifier both ends negotiate.
const NextProto = "conduit-quic"

// Config tunes QUIC connections carrying transport payloads as datagrams.
type Config struct {
	MaxIdleTimeout       time.Duration
	KeepAlivePeriod      time.Duration
	HandshakeIdleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxIdleTimeout:       30 * time.Second,
		KeepAlivePeriod:      15 * time.Second,
		HandshakeIdleTimeout: 10 * time.Second,
	}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       c.MaxIdleTimeout,
		KeepAlivePeriod:      c.KeepAlivePeriod,
		HandshakeIdleTimeout: c.HandshakeIdleTimeout,
		EnableDatagrams:      true,
	}
}
