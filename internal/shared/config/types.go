package config

import "fmt"

// AppConfig carries the engine's own auth token and sweep cadence.
type AppConfig struct {
	AuthToken       string `mapstructure:"auth_token"`
	CleanupInterval int    `mapstructure:"cleanup_interval"`
}

// CacheConfig points at the shared KV store. An empty URL selects the
// in-memory index (useful for local development and tests).
type CacheConfig struct {
	URL string `mapstructure:"url"`
}

// MasterConfig carries the tunnel master's base URL and the credentials
// used to obtain a bearer token from it.
type MasterConfig struct {
	APIBase  string `mapstructure:"api_base"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PortRange is an inclusive [Lo, Hi] remote-port range on a tunnel server,
// written in config as a two-element array: port_range = [10000, 20000].
// internal/infrastructure/config registers a decode hook that maps that
// array onto this struct; mapstructure cannot do so on its own.
type PortRange struct {
	Lo int
	Hi int
}

// ServerConfig describes one locally-known tunnel server: the node name
// used to derive its server id, the remote port range it offers, and the
// public host callers should be told to connect to.
type ServerConfig struct {
	NodeName   string    `mapstructure:"node_name"`
	PortRange  PortRange `mapstructure:"port_range"`
	RemoteAddr string    `mapstructure:"remote_addr"`
}

// LoggerConfig controls the ambient slog/tint logging pipeline.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// HTTPConfig is the listen address for the controller's own API.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (h *HTTPConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}
