package config

import "time"

// Config holds client configuration values.
type Config struct {
	// ServerURL is the websocket endpoint of the chat service.
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
	// User is the identity announced in the hello handshake.
	User string `mapstructure:"user" yaml:"user"`
	// Token is an optional auth token passed through in the hello envelope.
	Token string `mapstructure:"token" yaml:"token"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	SendTimeout  time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// ReadTimeout bounds a single stream read. Zero disables it, which is
	// the default: a quiet room stays connected indefinitely.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:    "ws://localhost:8080/ws",
		LogLevel:     "info",
		DialTimeout:  10 * time.Second,
		SendTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.User != "" {
		c.User = other.User
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.SendTimeout != 0 {
		c.SendTimeout = other.SendTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.ReadTimeout != 0 {
		c.ReadTimeout = other.ReadTimeout
	}
}
