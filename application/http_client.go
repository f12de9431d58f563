package application

import "context"

// DeviceInfo is the device record returned by the platform's REST API.
type DeviceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen"`
}

// HTTPClient is the stateless HTTP fallback: simple request/response
// operations with a local timeout and no retained state. Use it for
// one-off sends where a persistent MQTT session is not worth holding.
type HTTPClient interface {
	WritePin(ctx context.Context, pin string, value any) error
	WriteBatch(ctx context.Context, values map[string]any) error
	ReadPin(ctx context.Context, pin string) (string, error)
	DeviceInfo(ctx context.Context) (*DeviceInfo, error)
	Ping(ctx context.Context) bool
}
