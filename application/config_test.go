package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransportMode(t *testing.T) {
	for _, s := range []string{"tcp", "tls", "ws", "wss"} {
		mode, err := ParseTransportMode(s)
		require.NoError(t, err)
		assert.Equal(t, TransportMode(s), mode)
	}

	_, err := ParseTransportMode("udp")
	require.Error(t, err)
	_, err = ParseTransportMode("")
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mqtt.vwire.io", cfg.Server)
	assert.Equal(t, 8883, cfg.Port)
	assert.Equal(t, TransportTLS, cfg.Transport)
	assert.True(t, cfg.VerifySSL)
	assert.True(t, cfg.UseTLS())
	assert.False(t, cfg.UseWebsocket())
	assert.False(t, cfg.Debug)
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := DevelopmentConfig("localhost")

	assert.Equal(t, "localhost", cfg.Server)
	assert.Equal(t, 1883, cfg.Port)
	assert.Equal(t, TransportTCP, cfg.Transport)
	assert.False(t, cfg.VerifySSL)
	assert.True(t, cfg.Debug)
}

func TestWebsocketConfig(t *testing.T) {
	cfg := WebsocketConfig("mqtt.example.com")

	assert.Equal(t, 443, cfg.Port)
	assert.Equal(t, TransportWSS, cfg.Transport)
	assert.True(t, cfg.UseTLS())
	assert.True(t, cfg.UseWebsocket())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte("server: broker.local\ntransport: tcp\nport: 1884\ndebug: true\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.Server)
	assert.Equal(t, 1884, cfg.Port)
	assert.Equal(t, TransportTCP, cfg.Transport)
	assert.True(t, cfg.Debug)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, DefaultKeepalive, cfg.Keepalive)
	assert.Equal(t, DefaultReconnectInterval, cfg.ReconnectInterval)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("transport: udp\n"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("port: [not a number\n"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestConfig_EnsureDefaults(t *testing.T) {
	var cfg Config
	cfg.EnsureDefaults()

	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Equal(t, TransportTLS, cfg.Transport)
	assert.Equal(t, DefaultPortTLS, cfg.Port)
	assert.Equal(t, DefaultKeepalive, cfg.Keepalive)

	cfg = Config{Transport: TransportTCP}
	cfg.EnsureDefaults()
	assert.Equal(t, DefaultPortTCP, cfg.Port)

	// Explicit values are left alone.
	cfg = Config{Port: 9001, Transport: TransportTLS}
	cfg.EnsureDefaults()
	assert.Equal(t, 9001, cfg.Port)
}

func TestConfig_BrokerURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "ssl://mqtt.vwire.io:8883", cfg.BrokerURL())

	cfg = DevelopmentConfig("localhost")
	assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL())

	cfg = WebsocketConfig("mqtt.example.com")
	assert.Equal(t, "wss://mqtt.example.com:443/mqtt", cfg.BrokerURL())

	cfg.Transport = TransportWS
	cfg.Port = 8080
	assert.Equal(t, "ws://mqtt.example.com:8080/mqtt", cfg.BrokerURL())
}
