package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestDeviceCodeParsesSuccessResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/devicecode", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-123", r.Form.Get("client_id"))
		assert.Equal(t, "User.Read offline_access", r.Form.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"device_code":"device-auth-id","user_code":"A1B2C3D4","verification_uri":"https://example.com/devicelogin","expires_in":900,"interval":5,"message":"To sign in, use a web browser"}`))
	}))
	t.Cleanup(server.Close)

	before := time.Now()
	result, err := testClient(server).RequestDeviceCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/devicelogin", result.VerificationURL)
	assert.Equal(t, "A1B2C3D4", result.UserCode)
	assert.Equal(t, 5*time.Second, result.Interval)
	assert.Equal(t, "device-auth-id", result.DeviceCode)
	assert.Equal(t, "To sign in, use a web browser", result.Message)
	assert.WithinDuration(t, before.Add(900*time.Second), result.ExpiresAt, 5*time.Second)
}

func TestRequestDeviceCodeTimesOutWithoutCallerDeadline(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"device_code":"device-auth-id","user_code":"A1B2-C3D4","verification_uri":"https://example.com/activate","interval":5}`))
	}))
	t.Cleanup(server.Close)

	client := testClient(server)
	client.RequestTimeout = 20 * time.Millisecond

	_, err := client.RequestDeviceCode(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request device code")
}

func TestRequestDeviceCodeRequiresClientID(t *testing.T) {
	t.Parallel()

	_, err := Client{API: NewAPI("https://login.example.com", "")}.RequestDeviceCode(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id is required")
}

func TestPollDeviceTokenReturnsSuccessAfterPending(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, deviceCodeGrantType, r.Form.Get("grant_type"))
		assert.Equal(t, "device-auth-id", r.Form.Get("device_code"))

		count := attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if count == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
			return
		}

		_, _ = w.Write([]byte(`{"access_token":"token-abc","refresh_token":"refresh-abc","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)

	grant, err := testClient(server).PollDeviceToken(context.Background(), ports.DeviceCode{
		DeviceCode: "device-auth-id",
		Interval:   5 * time.Millisecond,
		ExpiresAt:  time.Now().Add(500 * time.Millisecond),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("token-abc"), []byte(grant.AccessToken))
	assert.Equal(t, []byte("refresh-abc"), []byte(grant.RefreshToken))
	assert.Equal(t, int64(3600), grant.ExpiresIn)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestPollDeviceTokenTimesOutWhenStillPending(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
	}))
	t.Cleanup(server.Close)

	_, err := testClient(server).PollDeviceToken(context.Background(), ports.DeviceCode{
		DeviceCode: "device-auth-id",
		Interval:   5 * time.Millisecond,
		ExpiresAt:  time.Now().Add(25 * time.Millisecond),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceFlowTimeout))
	assert.True(t, errors.Is(err, domain.ErrFlowTimeout))
}

func TestPollDeviceTokenHandlesSlowDownAndEventuallySucceeds(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if count == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"slow_down","interval":0}`))
			return
		}

		_, _ = w.Write([]byte(`{"access_token":"token-slow","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)

	grant, err := testClient(server).PollDeviceToken(context.Background(), ports.DeviceCode{
		DeviceCode: "device-auth-id",
		Interval:   5 * time.Millisecond,
		ExpiresAt:  time.Now().Add(7 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("token-slow"), []byte(grant.AccessToken))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestPollDeviceTokenMapsTerminalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		want error
	}{
		{name: "declined", code: "authorization_declined", want: domain.ErrFlowDenied},
		{name: "denied", code: "access_denied", want: domain.ErrFlowDenied},
		{name: "expired", code: "expired_token", want: domain.ErrFlowTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"` + tt.code + `"}`))
			}))
			t.Cleanup(server.Close)

			_, err := testClient(server).PollDeviceToken(context.Background(), ports.DeviceCode{
				DeviceCode: "device-auth-id",
				Interval:   5 * time.Millisecond,
				ExpiresAt:  time.Now().Add(time.Second),
			})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPollDeviceTokenStopsOnCancel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := testClient(server).PollDeviceToken(ctx, ports.DeviceCode{
		DeviceCode: "device-auth-id",
		Interval:   5 * time.Millisecond,
		ExpiresAt:  time.Now().Add(5 * time.Second),
	})
	require.ErrorIs(t, err, context.Canceled)
}
