package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vwireiot/vwire-go/application"
)

const (
	HTTPDefaultServer  = "api.vwire.io"
	HTTPDefaultPort    = 443
	HTTPDefaultTimeout = 10 * time.Second
)

var ErrHTTPStatus = errors.New("unexpected http status")

type HTTPClientParams struct {
	AuthToken string

	Server string
	Port   int
	// Insecure switches the base URL to plain http, for local development
	// servers only.
	Insecure bool

	Timeout time.Duration

	// Client overrides the underlying http.Client, mainly for tests.
	Client *http.Client

	Log zerolog.Logger
}

func (p *HTTPClientParams) EnsureDefaults() {
	if p.Server == "" {
		p.Server = HTTPDefaultServer
	}
	if p.Port == 0 {
		p.Port = HTTPDefaultPort
	}
	if p.Timeout == 0 {
		p.Timeout = HTTPDefaultTimeout
	}
	if p.Client == nil {
		p.Client = &http.Client{Timeout: p.Timeout}
	}
}

// HTTPClient talks to the platform's REST API for one-off operations
// without a persistent broker session. Every call is a single
// request/response with a local timeout; retrying is up to the caller.
type HTTPClient struct {
	params  HTTPClientParams
	baseURL string
	client  *http.Client

	log zerolog.Logger
}

func NewHTTPClient(params HTTPClientParams) (*HTTPClient, error) {
	if params.AuthToken == "" {
		return nil, fmt.Errorf("auth token is required")
	}
	params.EnsureDefaults()

	scheme := "https"
	if params.Insecure {
		scheme = "http"
	}

	return &HTTPClient{
		params:  params,
		baseURL: fmt.Sprintf("%s://%s:%d/api/v1", scheme, params.Server, params.Port),
		client:  params.Client,
		log:     params.Log,
	}, nil
}

type writePinRequest struct {
	Pin   string `json:"pin"`
	Value string `json:"value"`
}

// WritePin writes a single value to a pin such as "V0".
func (c *HTTPClient) WritePin(ctx context.Context, pin string, value any) error {
	url := fmt.Sprintf("%s/webhooks/device/%s", c.baseURL, c.params.AuthToken)
	body := writePinRequest{Pin: pin, Value: application.FormatValue(value)}
	return c.do(ctx, http.MethodPost, url, body, nil)
}

// VirtualSend writes a value to a virtual pin by number.
func (c *HTTPClient) VirtualSend(ctx context.Context, pin int, value any) error {
	return c.WritePin(ctx, fmt.Sprintf("V%d", pin), value)
}

// WriteBatch writes a mapping of pin name to value. All pins are
// attempted; failures are joined into the returned error.
func (c *HTTPClient) WriteBatch(ctx context.Context, values map[string]any) error {
	var errs []error
	for pin, value := range values {
		if err := c.WritePin(ctx, pin, value); err != nil {
			c.log.Warn().Str("pin", pin).Err(err).Msg("batch write failed for pin")
			errs = append(errs, fmt.Errorf("pin %s: %w", pin, err))
		}
	}
	return errors.Join(errs...)
}

type readPinResponse struct {
	Value string `json:"value"`
}

// ReadPin fetches the server-side value of a pin.
func (c *HTTPClient) ReadPin(ctx context.Context, pin string) (string, error) {
	url := fmt.Sprintf("%s/device/%s/pin/%s", c.baseURL, c.params.AuthToken, pin)

	var resp readPinResponse
	if err := c.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

// VirtualRead fetches the server-side value of a virtual pin by number.
func (c *HTTPClient) VirtualRead(ctx context.Context, pin int) (string, error) {
	return c.ReadPin(ctx, fmt.Sprintf("V%d", pin))
}

// DeviceInfo fetches the device record from the server.
func (c *HTTPClient) DeviceInfo(ctx context.Context) (*application.DeviceInfo, error) {
	url := fmt.Sprintf("%s/device/%s/info", c.baseURL, c.params.AuthToken)

	var info application.DeviceInfo
	if err := c.do(ctx, http.MethodGet, url, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Ping reports whether the API server is reachable and healthy.
func (c *HTTPClient) Ping(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, nil)
	return err == nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.params.AuthToken)
	req.Header.Set("X-Auth-Token", c.params.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
	}

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// QuickWrite sends a single pin value using default settings, without
// keeping a client around.
func QuickWrite(ctx context.Context, authToken, pin string, value any) error {
	client, err := NewHTTPClient(HTTPClientParams{AuthToken: authToken, Log: zerolog.Nop()})
	if err != nil {
		return err
	}
	return client.WritePin(ctx, pin, value)
}

var _ application.HTTPClient = &HTTPClient{}
