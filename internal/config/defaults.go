package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultPingInterval   = 20 * time.Second
	DefaultPongTimeout    = 10 * time.Second
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 60 * time.Second
	DefaultMaxInflight    = 16
	DefaultWriteTimeout   = 5 * time.Second
	DefaultBufferSize     = 256
)

// ApplyDefaults fills zero-valued optional fields.
func (c *ClientConfig) ApplyDefaults() {
	if c.Project.Timeout == 0 {
		c.Project.Timeout = DefaultRequestTimeout
	}
	if c.Heartbeat.PingInterval == 0 {
		c.Heartbeat.PingInterval = DefaultPingInterval
	}
	if c.Heartbeat.PongTimeout == 0 {
		c.Heartbeat.PongTimeout = DefaultPongTimeout
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Outbound.MaxInflight == 0 {
		c.Outbound.MaxInflight = DefaultMaxInflight
	}
	if c.Outbound.WriteTimeout == 0 {
		c.Outbound.WriteTimeout = DefaultWriteTimeout
	}
	if c.Outbound.BufferSize == 0 {
		c.Outbound.BufferSize = DefaultBufferSize
	}
}
