package adapters

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/rs/zerolog"

	"github.com/vwireiot/vwire-go/application"
)

const (
	MQTTDefaultConnectTimeout = 30 * time.Second
	MQTTDefaultPublishTimeout = 5 * time.Second

	// disconnectQuiesce is how long paho waits for in-flight work on
	// Disconnect, in milliseconds.
	disconnectQuiesce = 250

	// duplicateSessionWindow bounds how close together two unexpected
	// disconnects must be to suggest duplicate-session contention.
	duplicateSessionWindow = 10 * time.Second

	clientIDPrefix = "vwire-go-"
)

var (
	ErrMQTTNotConnected     = fmt.Errorf("not connected")
	ErrMQTTConnectTimeout   = fmt.Errorf("connect timeout")
	ErrMQTTPublishTimeout   = fmt.Errorf("publish timeout")
	ErrMQTTConnectionFailed = fmt.Errorf("connection failed")
)

var (
	statusOnlinePayload  = []byte(`{"status":"online"}`)
	statusOfflinePayload = []byte(`{"status":"offline"}`)
)

type MQTTClientParams struct {
	AuthToken string
	DeviceID  string
	Config    application.Config

	PublishTimeout time.Duration

	NewClientFunc func(options *mqtt.ClientOptions) mqtt.Client

	Log zerolog.Logger
}

func (m *MQTTClientParams) EnsureDefaults() {
	if m.PublishTimeout == 0 {
		m.PublishTimeout = MQTTDefaultPublishTimeout
	}

	if m.NewClientFunc == nil {
		m.NewClientFunc = mqtt.NewClient
	}
}

// MQTTClient maintains one logical connection to the vwire broker on top
// of paho. It owns the retained online/offline status, the last will, the
// command-topic subscription, and connection diagnostics; the reconnect
// policy is driven from outside by the device session.
type MQTTClient struct {
	params MQTTClientParams
	topics application.Topics

	client mqtt.Client

	mu                  sync.Mutex
	state               application.ConnectionState
	lastDisconnect      time.Time
	disconnectsInWindow int

	onConnected    func()
	onDisconnected func(err error)
	onMessage      application.MessageHandler

	msgCount           uint64
	msgCountUpdateTime atomic.Pointer[time.Time]

	nowFunc func() time.Time

	log zerolog.Logger
}

func NewMQTTClient(params MQTTClientParams) (*MQTTClient, error) {
	if params.AuthToken == "" {
		return nil, fmt.Errorf("auth token is required")
	}
	if params.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	params.EnsureDefaults()
	params.Config.EnsureDefaults()

	m := &MQTTClient{
		params:  params,
		topics:  application.Topics{DeviceID: params.DeviceID},
		state:   application.StateDisconnected,
		nowFunc: time.Now,
		log:     params.Log,
	}

	opts, err := m.buildClientOptions()
	if err != nil {
		return nil, err
	}
	m.client = params.NewClientFunc(opts)

	t := time.Unix(0, 0)
	m.msgCountUpdateTime.Store(&t)

	return m, nil
}

func (m *MQTTClient) buildClientOptions() (*mqtt.ClientOptions, error) {
	cfg := m.params.Config

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(clientIDPrefix + m.params.DeviceID)

	// The auth token doubles as username and password, matching the
	// dashboard's device provisioning.
	opts.SetUsername(m.params.AuthToken)
	opts.SetPassword(m.params.AuthToken)

	opts.SetCleanSession(true)
	opts.SetKeepAlive(time.Duration(cfg.Keepalive) * time.Second)

	// Reconnection is owned by the device session loop, not by paho.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	if cfg.UseTLS() {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	// Last will so the dashboard sees the device go offline on an unclean
	// disconnect.
	opts.SetBinaryWill(m.topics.Status(), statusOfflinePayload, application.QoSAtLeastOnce, true)

	opts.SetOnConnectHandler(m.handleConnect)
	opts.SetConnectionLostHandler(m.handleConnectionLost)

	return opts, nil
}

func newTLSConfig(cfg application.Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !cfg.VerifySSL,
	}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read ca certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca certificate %s contains no certificates", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect initiates the broker handshake and blocks until it completes or
// timeout elapses. Connecting while already connected is a no-op.
func (m *MQTTClient) Connect(timeout time.Duration) error {
	m.mu.Lock()
	if m.state == application.StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.state = application.StateConnecting
	m.mu.Unlock()

	if timeout <= 0 {
		timeout = MQTTDefaultConnectTimeout
	}

	m.log.Info().Str("broker", m.params.Config.BrokerURL()).Msg("connecting")

	token := m.client.Connect()
	if !token.WaitTimeout(timeout) {
		m.setState(application.StateDisconnected)
		return ErrMQTTConnectTimeout
	}
	if err := token.Error(); err != nil {
		m.setState(application.StateDisconnected)
		m.log.Error().Err(err).Str("reason", connackReason(err)).Msg("connection refused")
		return fmt.Errorf("%w: %w", ErrMQTTConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; set the state here so
	// IsConnected is true as soon as Connect returns.
	m.setState(application.StateConnected)
	return nil
}

// connackReason maps broker CONNACK rejections to actionable text.
func connackReason(err error) string {
	switch {
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion):
		return "incorrect protocol version"
	case errors.Is(err, packets.ErrorRefusedIDRejected):
		return "invalid client identifier"
	case errors.Is(err, packets.ErrorRefusedServerUnavailable):
		return "server unavailable"
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword):
		return "bad auth token"
	case errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return "not authorized"
	default:
		return "network or broker error"
	}
}

// Disconnect publishes the retained offline status best-effort, then tears
// the connection down. Disconnecting while disconnected is a no-op.
func (m *MQTTClient) Disconnect() {
	m.mu.Lock()
	if m.state == application.StateDisconnected {
		m.mu.Unlock()
		return
	}
	// Flip the state first so the connection-lost handler treats the
	// teardown as expected.
	m.state = application.StateDisconnected
	m.mu.Unlock()

	m.log.Info().Msg("disconnecting")

	token := m.client.Publish(m.topics.Status(), application.QoSAtLeastOnce, true, statusOfflinePayload)
	token.WaitTimeout(m.params.PublishTimeout)

	m.client.Disconnect(disconnectQuiesce)
}

func (m *MQTTClient) setState(state application.ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *MQTTClient) IsConnected() bool {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	return state == application.StateConnected && m.client.IsConnected()
}

func (m *MQTTClient) State() application.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MQTTClient) Status() application.MQTTStatus {
	return application.MQTTStatus{
		MessageCount:      atomic.LoadUint64(&m.msgCount),
		LastTimePublished: *m.msgCountUpdateTime.Load(),
		Connected:         m.IsConnected(),
	}
}

func (m *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !m.IsConnected() {
		return ErrMQTTNotConnected
	}

	token := m.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(m.params.PublishTimeout) {
		return ErrMQTTPublishTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}

	t := m.nowFunc()
	m.msgCountUpdateTime.Store(&t)
	atomic.AddUint64(&m.msgCount, 1)
	return nil
}

func (m *MQTTClient) SetOnConnected(f func()) {
	m.mu.Lock()
	m.onConnected = f
	m.mu.Unlock()
}

func (m *MQTTClient) SetOnDisconnected(f func(err error)) {
	m.mu.Lock()
	m.onDisconnected = f
	m.mu.Unlock()
}

func (m *MQTTClient) SetOnMessage(f application.MessageHandler) {
	m.mu.Lock()
	m.onMessage = f
	m.mu.Unlock()
}

// handleConnect runs on paho's delivery goroutine after every successful
// handshake: subscribe to the command topic, publish the retained online
// status, then notify the session.
func (m *MQTTClient) handleConnect(client mqtt.Client) {
	m.mu.Lock()
	m.state = application.StateConnected
	onConnected := m.onConnected
	m.mu.Unlock()

	m.log.Info().Msg("connected")

	token := client.Subscribe(m.topics.Command(), application.QoSAtLeastOnce, m.dispatchMessage)
	if token.WaitTimeout(m.params.PublishTimeout) && token.Error() != nil {
		m.log.Error().Err(token.Error()).Str("topic", m.topics.Command()).Msg("command subscription failed")
	}

	client.Publish(m.topics.Status(), application.QoSAtLeastOnce, true, statusOnlinePayload)

	if onConnected != nil {
		onConnected()
	}
}

// handleConnectionLost runs only for unexpected disconnects; Disconnect
// flips the state beforehand so a clean teardown never reaches the window
// accounting below.
func (m *MQTTClient) handleConnectionLost(client mqtt.Client, err error) {
	m.mu.Lock()
	if m.state == application.StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = application.StateDisconnected

	now := m.nowFunc()
	if now.Sub(m.lastDisconnect) <= duplicateSessionWindow {
		m.disconnectsInWindow++
	} else {
		m.disconnectsInWindow = 1
	}
	m.lastDisconnect = now
	duplicateSuspected := m.disconnectsInWindow >= 2
	onDisconnected := m.onDisconnected
	m.mu.Unlock()

	evt := m.log.Warn().Err(err)
	if duplicateSuspected {
		evt = evt.Str("hint", "the broker enforces one active connection per auth token; "+
			"another client using the same token will keep kicking this one off. "+
			"Provision a separate token per client.")
	}
	evt.Msg("unexpected disconnect")

	if onDisconnected != nil {
		onDisconnected(err)
	}
}

// dispatchMessage hands an inbound command to the session's router. A
// panic here must never escape into paho's delivery goroutine.
func (m *MQTTClient) dispatchMessage(client mqtt.Client, msg mqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("topic", msg.Topic()).Interface("panic", r).Msg("message handler panicked")
		}
	}()

	m.mu.Lock()
	onMessage := m.onMessage
	m.mu.Unlock()

	if onMessage != nil {
		onMessage(msg.Topic(), msg.Payload())
	}
}

var _ application.MQTTClient = &MQTTClient{}
