package application

import "time"

// QoSAtLeastOnce is the delivery level used for every publish in this
// client.
const QoSAtLeastOnce byte = 1

// ConnectionState is the transport session lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type MQTTStatus struct {
	MessageCount      uint64
	LastTimePublished time.Time
	Connected         bool
}

// MessageHandler receives inbound messages on the transport's delivery
// goroutine.
type MessageHandler func(topic string, payload []byte)

// MQTTClient is the transport session: one logical broker connection with
// connect/disconnect lifecycle, publish with local delivery result, and
// connection event hooks. Callback setters must be called before Connect.
type MQTTClient interface {
	Connect(timeout time.Duration) error
	Disconnect()

	Publish(topic string, qos byte, retained bool, payload []byte) error

	IsConnected() bool
	State() ConnectionState
	Status() MQTTStatus

	SetOnConnected(func())
	SetOnDisconnected(func(err error))
	SetOnMessage(MessageHandler)
}
