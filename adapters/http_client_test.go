package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client, err := NewHTTPClient(HTTPClientParams{
		AuthToken: "0123456789abcdef0123456789abcdef",
		Server:    u.Hostname(),
		Port:      port,
		Insecure:  true,
		Client:    srv.Client(),
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return client
}

func TestNewHTTPClient_Validation(t *testing.T) {
	_, err := NewHTTPClient(HTTPClientParams{})
	require.Error(t, err)
}

func TestHTTPClient_WritePin(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody writePinRequest

	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.WritePin(context.Background(), "V5", 20.567)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/webhooks/device/0123456789abcdef0123456789abcdef", gotPath)
	assert.Equal(t, "Bearer 0123456789abcdef0123456789abcdef", gotAuth)
	assert.Equal(t, writePinRequest{Pin: "V5", Value: "20.567"}, gotBody)
}

func TestHTTPClient_VirtualSend(t *testing.T) {
	var gotBody writePinRequest

	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))

	err := client.VirtualSend(context.Background(), 3, true)
	require.NoError(t, err)

	assert.Equal(t, writePinRequest{Pin: "V3", Value: "1"}, gotBody)
}

func TestHTTPClient_WritePin_ServerError(t *testing.T) {
	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))

	err := client.WritePin(context.Background(), "V0", 1)
	require.ErrorIs(t, err, ErrHTTPStatus)
}

func TestHTTPClient_WriteBatch_PartialFailure(t *testing.T) {
	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req writePinRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Pin == "V1" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := client.WriteBatch(context.Background(), map[string]any{
		"V0": 1,
		"V1": 2,
		"V2": 3,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pin V1")
	assert.NotContains(t, err.Error(), "pin V0")
	assert.NotContains(t, err.Error(), "pin V2")
}

func TestHTTPClient_ReadPin(t *testing.T) {
	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/device/0123456789abcdef0123456789abcdef/pin/V7", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(readPinResponse{Value: "42"}))
	}))

	value, err := client.ReadPin(context.Background(), "V7")
	require.NoError(t, err)
	assert.Equal(t, "42", value)

	value, err = client.VirtualRead(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "42", value)
}

func TestHTTPClient_DeviceInfo(t *testing.T) {
	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/device/0123456789abcdef0123456789abcdef/info", r.URL.Path)
		w.Write([]byte(`{"id":"dev-1","name":"Greenhouse","online":true}`))
	}))

	info, err := client.DeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-1", info.ID)
	assert.Equal(t, "Greenhouse", info.Name)
	assert.True(t, info.Online)
}

func TestHTTPClient_Ping(t *testing.T) {
	healthy := true
	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}
	}))

	assert.True(t, client.Ping(context.Background()))

	healthy = false
	assert.False(t, client.Ping(context.Background()))
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	client := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.WritePin(ctx, "V0", 1)
	require.Error(t, err)
}
