package config

import "time"

// ClientConfig is the root configuration for a channel client instance.
type ClientConfig struct {
	Project    ProjectConfig    `yaml:"project"`
	Channel    ChannelConfig    `yaml:"channel"`
	Auth       AuthConfig       `yaml:"auth"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Outbound   OutboundConfig   `yaml:"outbound"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// ProjectConfig identifies the remote project and its endpoints.
type ProjectConfig struct {
	ID          string        `yaml:"id"`
	RealtimeURL string        `yaml:"realtime_url"` // wss:// endpoint
	RestURL     string        `yaml:"rest_url"`     // https:// fallback endpoint
	Timeout     time.Duration `yaml:"timeout"`      // HTTP fallback request timeout
}

// ChannelConfig names the logical channel to attach to.
type ChannelConfig struct {
	Class string `yaml:"class"`
	ID    string `yaml:"id"`
}

// AuthConfig holds either Basic credentials or a bearer token, plus an
// optional identity signature.
type AuthConfig struct {
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	Token                 string `yaml:"token"`
	IDSignature           string `yaml:"id_signature"`
	IDSignatureKeyVersion int    `yaml:"id_signature_key_version"`
}

// HeartbeatConfig controls liveness probing.
type HeartbeatConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

// ReconnectConfig controls the backoff retry loop.
type ReconnectConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	Disabled  bool          `yaml:"disabled"`
}

// OutboundConfig controls send-side backpressure.
type OutboundConfig struct {
	MaxInflight  int           `yaml:"max_inflight"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// EncryptionConfig configures the provided key ring. Leave Secret empty to
// run the channel in plaintext mode.
type EncryptionConfig struct {
	Secret         string `yaml:"secret"` // master secret, ${VAR} expanded
	CurrentVersion int    `yaml:"current_version"`
}
