package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	defaultGatewayPort        = 18790
	defaultAPITimeoutSeconds  = 60
	defaultSendTimeoutSeconds = 90
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		API: APIConfig{
			TimeoutSeconds: defaultAPITimeoutSeconds,
			Service:        "puma",
		},
		Chat: ChatConfig{
			SendTimeoutSeconds: defaultSendTimeoutSeconds,
		},
		Session: SessionConfig{
			Store: "sqlite",
		},
		Gateway: GatewayConfig{
			Port: defaultGatewayPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// APITimeout returns the HTTP timeout for chat API requests.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// SendTimeout returns the bound on a single message send.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Chat.SendTimeoutSeconds) * time.Second
}

// LoginURL returns the endpoint that receives login requests.
func (c *Config) LoginURL() string {
	if c.API.AuthURL != "" {
		return c.API.AuthURL
	}
	return c.API.BaseURL
}
