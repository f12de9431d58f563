package application

import "fmt"

const topicNamespace = "vwire"

// Topics builds the MQTT topic names for one device identity. Every topic
// lives under vwire/<device-id>/.
type Topics struct {
	DeviceID string
}

func (t Topics) prefix() string {
	return topicNamespace + "/" + t.DeviceID
}

// Pin is the telemetry topic for a virtual pin, e.g. vwire/dev-1/pin/V0.
func (t Topics) Pin(pin int) string {
	return fmt.Sprintf("%s/pin/%s", t.prefix(), pinName(pin))
}

// Command is the wildcard filter for inbound dashboard commands.
func (t Topics) Command() string {
	return t.prefix() + "/cmd/#"
}

func (t Topics) Sync() string {
	return t.prefix() + "/sync"
}

func (t Topics) SyncPin(pin int) string {
	return fmt.Sprintf("%s/sync/%s", t.prefix(), pinName(pin))
}

// Status carries the retained online/offline JSON, also used as the last
// will topic.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

func (t Topics) Notify() string {
	return t.prefix() + "/notify"
}

func (t Topics) Alarm() string {
	return t.prefix() + "/alarm"
}

func (t Topics) Email() string {
	return t.prefix() + "/email"
}

func (t Topics) Log() string {
	return t.prefix() + "/log"
}

func (t Topics) Heartbeat() string {
	return t.prefix() + "/heartbeat"
}
