package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Project.ID == "" {
		return errors.New("project.id is required")
	}
	if c.Project.RealtimeURL == "" {
		return errors.New("project.realtime_url is required")
	}
	if !strings.HasPrefix(c.Project.RealtimeURL, "wss://") && !strings.HasPrefix(c.Project.RealtimeURL, "ws://") {
		return fmt.Errorf("project.realtime_url must be a ws:// or wss:// URL, got %q", c.Project.RealtimeURL)
	}

	if c.Channel.Class == "" {
		return errors.New("channel.class is required")
	}
	if c.Channel.ID == "" {
		return errors.New("channel.id is required")
	}

	if c.Auth.Token == "" && c.Auth.Username == "" {
		return errors.New("auth requires either a token or basic credentials")
	}

	if c.Heartbeat.PongTimeout >= c.Heartbeat.PingInterval {
		return fmt.Errorf("heartbeat.pong_timeout (%s) must be shorter than heartbeat.ping_interval (%s)",
			c.Heartbeat.PongTimeout, c.Heartbeat.PingInterval)
	}

	if c.Reconnect.BaseDelay > c.Reconnect.MaxDelay {
		return errors.New("reconnect.base_delay must not exceed reconnect.max_delay")
	}

	if c.Outbound.MaxInflight < 1 {
		return errors.New("outbound.max_inflight must be >= 1")
	}

	if c.Encryption.Secret != "" && c.Encryption.CurrentVersion < 0 {
		return errors.New("encryption.current_version must be >= 0")
	}

	return nil
}
