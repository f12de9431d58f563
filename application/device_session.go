package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const reconnectTimeout = 10 * time.Second

var (
	ErrNotConnected      = errors.New("not connected")
	ErrNoValues          = errors.New("no values provided")
	ErrTimerLoopConflict = errors.New("timer set is already driven by its background loop")
)

type DeviceSessionParams struct {
	AuthToken string
	DeviceID  string
	Config    Config

	MQTTClient MQTTClient

	Log zerolog.Logger
}

// DeviceSession composes the transport session, the command router and a
// TimerSet behind a single connect/run/disconnect contract.
//
// Registration methods (OnVirtualReceive, OnConnected, OnDisconnected) are
// configuration-time operations: call them before Connect. Registering
// while a session is active races with the delivery goroutine.
type DeviceSession struct {
	params DeviceSessionParams
	topics Topics
	router *CommandRouter
	timers *TimerSet

	mu                   sync.Mutex
	reconnectCount       int
	lastReconnectAttempt time.Time
	onConnected          func()
	onDisconnected       func()

	startedAt time.Time
	nowFunc   func() time.Time

	log zerolog.Logger
}

func NewDeviceSession(params DeviceSessionParams) (*DeviceSession, error) {
	if params.MQTTClient == nil {
		return nil, fmt.Errorf("MQTTClient is nil")
	}
	if params.AuthToken == "" {
		return nil, fmt.Errorf("auth token is required")
	}
	if params.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	params.Config.EnsureDefaults()

	s := &DeviceSession{
		params:    params,
		topics:    Topics{DeviceID: params.DeviceID},
		router:    NewCommandRouter(params.Log.With().Str("module", "command-router").Logger()),
		timers:    NewTimerSet(params.Log.With().Str("module", "timers").Logger()),
		startedAt: time.Now(),
		nowFunc:   time.Now,
		log:       params.Log,
	}

	params.MQTTClient.SetOnConnected(s.handleConnected)
	params.MQTTClient.SetOnDisconnected(s.handleDisconnected)
	params.MQTTClient.SetOnMessage(s.router.HandleMessage)

	return s, nil
}

// ========== Registration ==========

// OnVirtualReceive registers a handler for dashboard commands on a pin.
// The last registration for a pin wins.
func (s *DeviceSession) OnVirtualReceive(pin int, handler PinHandler) {
	s.router.Register(pin, handler)
}

func (s *DeviceSession) OnConnected(f func()) {
	s.onConnected = f
}

func (s *DeviceSession) OnDisconnected(f func()) {
	s.onDisconnected = f
}

// ========== Lifecycle ==========

// Connect blocks until the broker acknowledges the session or timeout
// elapses. Connecting an already connected session is a no-op.
func (s *DeviceSession) Connect(timeout time.Duration) error {
	return s.params.MQTTClient.Connect(timeout)
}

// Disconnect stops the session's timers and tears the connection down.
func (s *DeviceSession) Disconnect() {
	s.timers.Stop()
	s.params.MQTTClient.Disconnect()
}

// Run blocks until ctx is cancelled, driving due timers while connected
// and the reconnect policy while not. The session is always disconnected
// cleanly when Run returns.
func (s *DeviceSession) Run(ctx context.Context) error {
	if s.timers.IsRunning() {
		return ErrTimerLoopConflict
	}
	defer s.Disconnect()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(defaultPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.runOnce()
			}
		}
	})

	g.Go(func() error {
		s.heartbeatLoop(ctx)
		return nil
	})

	return g.Wait()
}

// runOnce is a single loop iteration: drive timers while connected,
// otherwise drive the reconnect policy. It never blocks on network I/O.
func (s *DeviceSession) runOnce() {
	if s.params.MQTTClient.IsConnected() {
		s.timers.Run()
		return
	}
	s.maybeReconnect()
}

func (s *DeviceSession) maybeReconnect() {
	cfg := s.params.Config

	s.mu.Lock()
	if cfg.MaxReconnectAttempts > 0 && s.reconnectCount >= cfg.MaxReconnectAttempts {
		s.mu.Unlock()
		return
	}
	now := s.nowFunc()
	if now.Sub(s.lastReconnectAttempt) < time.Duration(cfg.ReconnectInterval)*time.Second {
		s.mu.Unlock()
		return
	}
	s.lastReconnectAttempt = now
	s.reconnectCount++
	attempt := s.reconnectCount
	s.mu.Unlock()

	s.log.Info().Int("attempt", attempt).Msg("reconnecting")
	if err := s.params.MQTTClient.Connect(reconnectTimeout); err != nil {
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
		return
	}
	s.resetReconnects()
}

func (s *DeviceSession) resetReconnects() {
	s.mu.Lock()
	s.reconnectCount = 0
	s.mu.Unlock()
}

func (s *DeviceSession) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(s.params.Config.HeartbeatInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishHeartbeat()
		}
	}
}

type heartbeatPayload struct {
	Uptime    int64 `json:"uptime"`
	Timestamp int64 `json:"timestamp"`
}

func (s *DeviceSession) publishHeartbeat() {
	status := s.params.MQTTClient.Status()
	s.log.Debug().
		Uint64("messages_published", status.MessageCount).
		Bool("is_connected", status.Connected).
		Time("last_time_published", status.LastTimePublished).
		Msg("heartbeat report")

	if !status.Connected {
		return
	}

	now := s.nowFunc()
	payload, err := json.Marshal(heartbeatPayload{
		Uptime:    int64(now.Sub(s.startedAt).Seconds()),
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return
	}

	if err := s.params.MQTTClient.Publish(s.topics.Heartbeat(), QoSAtLeastOnce, false, payload); err != nil {
		s.log.Warn().Err(err).Msg("heartbeat publish failed")
	}
}

// Connected reports whether the broker session is established.
func (s *DeviceSession) Connected() bool {
	return s.params.MQTTClient.IsConnected()
}

// Timers exposes the session's TimerSet for scheduling local work.
func (s *DeviceSession) Timers() *TimerSet {
	return s.timers
}

// ========== Virtual pin operations ==========

// VirtualSend publishes one or more values to a virtual pin. Multiple
// values are joined with commas.
func (s *DeviceSession) VirtualSend(pin int, values ...any) error {
	if len(values) == 0 {
		return ErrNoValues
	}
	if !s.Connected() {
		return ErrNotConnected
	}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatValue(v)
	}
	payload := strings.Join(parts, ",")

	return s.params.MQTTClient.Publish(s.topics.Pin(pin), QoSAtLeastOnce, false, []byte(payload))
}

// PinValue returns the last value received for a pin from the dashboard.
func (s *DeviceSession) PinValue(pin int) (string, bool) {
	return s.router.PinValue(pin)
}

// SyncVirtual asks the server to re-send the last value of one pin.
func (s *DeviceSession) SyncVirtual(pin int) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return s.params.MQTTClient.Publish(s.topics.SyncPin(pin), QoSAtLeastOnce, false, nil)
}

// SyncAll asks the server to re-send the last values of all pins.
func (s *DeviceSession) SyncAll() error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return s.params.MQTTClient.Publish(s.topics.Sync(), QoSAtLeastOnce, false, nil)
}

// ========== Notifications ==========

// Notify sends a push notification to the device owner.
func (s *DeviceSession) Notify(message string) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return s.params.MQTTClient.Publish(s.topics.Notify(), QoSAtLeastOnce, false, []byte(message))
}

type alarmPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	AlarmID   string `json:"alarmId"`
	Sound     string `json:"sound"`
	Priority  int    `json:"priority"`
	Timestamp int64  `json:"timestamp"`
}

// Alarm triggers a persistent alarm on the owner's mobile device. Each
// alarm gets a locally unique id built from the current time and a random
// component.
func (s *DeviceSession) Alarm(message, sound string, priority int) error {
	if !s.Connected() {
		return ErrNotConnected
	}

	now := s.nowFunc()
	alarmID := fmt.Sprintf("alarm_%d_%s", now.UnixMilli(), uuid.NewString()[:8])

	payload, err := json.Marshal(alarmPayload{
		Type:      "alarm",
		Message:   message,
		AlarmID:   alarmID,
		Sound:     sound,
		Priority:  priority,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return err
	}

	return s.params.MQTTClient.Publish(s.topics.Alarm(), QoSAtLeastOnce, false, payload)
}

// Email sends an email notification to the device owner.
func (s *DeviceSession) Email(subject, body string) error {
	if !s.Connected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(map[string]string{"subject": subject, "body": body})
	if err != nil {
		return err
	}
	return s.params.MQTTClient.Publish(s.topics.Email(), QoSAtLeastOnce, false, payload)
}

// Log ships a log line to the server for remote debugging.
func (s *DeviceSession) Log(message string) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return s.params.MQTTClient.Publish(s.topics.Log(), QoSAtLeastOnce, false, []byte(message))
}

// ========== Connection event handlers ==========

func (s *DeviceSession) handleConnected() {
	s.resetReconnects()

	cb := s.onConnected
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("connected callback panicked")
		}
	}()
	cb()
}

func (s *DeviceSession) handleDisconnected(err error) {
	if err != nil {
		s.log.Warn().Err(err).Msg("connection lost")
	}

	cb := s.onDisconnected
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("disconnected callback panicked")
		}
	}()
	cb()
}
