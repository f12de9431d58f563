package application

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TransportMode selects how the MQTT connection reaches the broker.
type TransportMode string

const (
	TransportTCP TransportMode = "tcp" // plain TCP (insecure)
	TransportTLS TransportMode = "tls" // TCP with TLS
	TransportWS  TransportMode = "ws"  // plain WebSocket
	TransportWSS TransportMode = "wss" // WebSocket with TLS
)

func ParseTransportMode(s string) (TransportMode, error) {
	switch TransportMode(s) {
	case TransportTCP, TransportTLS, TransportWS, TransportWSS:
		return TransportMode(s), nil
	}
	return "", fmt.Errorf("invalid transport mode: %q (one of: tcp, tls, ws, wss)", s)
}

const (
	DefaultServer  = "mqtt.vwire.io"
	DefaultPortTCP = 1883
	DefaultPortTLS = 8883

	DefaultKeepalive         = 30 // seconds
	DefaultReconnectInterval = 5  // seconds
	DefaultHeartbeatInterval = 30 // seconds
)

// Config describes one broker connection. It is built once, before a
// session is constructed, and never mutated afterwards.
type Config struct {
	Server    string        `yaml:"server"`
	Port      int           `yaml:"port"`
	Transport TransportMode `yaml:"transport"`

	Keepalive            int `yaml:"keepalive"`              // seconds
	ReconnectInterval    int `yaml:"reconnect_interval"`     // seconds
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"` // 0 = unlimited
	HeartbeatInterval    int `yaml:"heartbeat_interval"`     // seconds

	VerifySSL  bool   `yaml:"verify_ssl"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`

	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the production defaults: TLS to mqtt.vwire.io:8883
// with certificate verification on.
func DefaultConfig() Config {
	return Config{
		Server:            DefaultServer,
		Port:              DefaultPortTLS,
		Transport:         TransportTLS,
		Keepalive:         DefaultKeepalive,
		ReconnectInterval: DefaultReconnectInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		VerifySSL:         true,
	}
}

// DevelopmentConfig targets a local broker over plain TCP. Not for
// production use; traffic is unencrypted.
func DevelopmentConfig(server string) Config {
	cfg := DefaultConfig()
	cfg.Server = server
	cfg.Port = DefaultPortTCP
	cfg.Transport = TransportTCP
	cfg.VerifySSL = false
	cfg.Debug = true
	return cfg
}

// WebsocketConfig uses MQTT over secure WebSocket on port 443, for
// networks where the MQTT ports are blocked.
func WebsocketConfig(server string) Config {
	cfg := DefaultConfig()
	cfg.Server = server
	cfg.Port = 443
	cfg.Transport = TransportWSS
	return cfg
}

// LoadConfig reads a YAML config file over the defaults, so absent keys
// keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if _, err := ParseTransportMode(string(cfg.Transport)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) EnsureDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.Transport == "" {
		c.Transport = TransportTLS
	}
	if c.Port == 0 {
		if c.UseTLS() {
			c.Port = DefaultPortTLS
		} else {
			c.Port = DefaultPortTCP
		}
	}
	if c.Keepalive == 0 {
		c.Keepalive = DefaultKeepalive
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

func (c Config) UseTLS() bool {
	return c.Transport == TransportTLS || c.Transport == TransportWSS
}

func (c Config) UseWebsocket() bool {
	return c.Transport == TransportWS || c.Transport == TransportWSS
}

// BrokerURL renders the paho broker URL for the configured transport.
// WebSocket transports use the broker's /mqtt endpoint.
func (c Config) BrokerURL() string {
	var scheme string
	switch c.Transport {
	case TransportTLS:
		scheme = "ssl"
	case TransportWS:
		scheme = "ws"
	case TransportWSS:
		scheme = "wss"
	default:
		scheme = "tcp"
	}

	url := fmt.Sprintf("%s://%s:%d", scheme, c.Server, c.Port)
	if c.UseWebsocket() {
		url += "/mqtt"
	}
	return url
}

func (c Config) String() string {
	security := "insecure"
	if c.UseTLS() {
		security = "TLS"
	}
	return fmt.Sprintf("Config(%s:%d, %s, %s)", c.Server, c.Port, c.Transport, security)
}
