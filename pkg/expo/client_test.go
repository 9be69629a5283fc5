package expo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestIsValidToken(t *testing.T) {
	require.True(t, IsValidToken("ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"))
	require.True(t, IsValidToken("ExpoPushToken[abc-123]"))
	require.True(t, IsValidToken("  ExpoPushToken[abc-123] "))
	require.False(t, IsValidToken("ExponentPushToken[]"))
	require.False(t, IsValidToken("ExpoPushToken[a b]"))
	require.False(t, IsValidToken("fcm:abcdef"))
	require.False(t, IsValidToken(""))
}

func TestSplitPushURL(t *testing.T) {
	host, api := splitPushURL("")
	require.Equal(t, sdk.DefaultHost, host)
	require.Equal(t, sdk.DefaultBaseAPIURL, api)

	host, api = splitPushURL("http://127.0.0.1:9000/--/api/v2/push/send")
	require.Equal(t, "http://127.0.0.1:9000", host)
	require.Equal(t, "/--/api/v2", api)
}

func pushServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handle))
	t.Cleanup(server.Close)
	return server
}

func TestClientSendPublishesThroughSDK(t *testing.T) {
	var path string
	var received []map[string]any
	server := pushServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"ticket-1"}]}`))
	})

	badge := int64(3)
	client := NewClient(Config{URL: server.URL + "/--/api/v2/push/send", AccessToken: "secret"}, zerolog.Nop())
	tickets, err := client.Send(context.Background(), []Message{{To: "ExpoPushToken[abc]", Title: "Hi", Body: "New message", Badge: &badge}})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, "ticket-1", tickets[0].ID)

	require.Equal(t, "/--/api/v2/push/send", path)
	require.Len(t, received, 1)
	require.Equal(t, "New message", received[0]["body"])
	require.Equal(t, []any{"ExpoPushToken[abc]"}, received[0]["to"])
	require.EqualValues(t, 3, received[0]["badge"])
}

func TestClientSendReportsRejectedTickets(t *testing.T) {
	server := pushServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`))
	})

	client := NewClient(Config{URL: server.URL + "/--/api/v2/push/send"}, zerolog.Nop())
	_, err := client.Send(context.Background(), []Message{{To: "ExpoPushToken[abc]"}})
	var ticketErr *TicketError
	require.ErrorAs(t, err, &ticketErr)
	require.Contains(t, err.Error(), "DeviceNotRegistered")

	var unregistered *sdk.DeviceNotRegisteredError
	require.True(t, errors.As(err, &unregistered))
}

func TestClientSendRejectsBadTokenWithoutRequest(t *testing.T) {
	calls := 0
	server := pushServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	client := NewClient(Config{URL: server.URL + "/--/api/v2/push/send"}, zerolog.Nop())
	_, err := client.Send(context.Background(), []Message{{To: "ExpoPushToken[abc]"}, {To: "not-a-token"}})
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Zero(t, calls)
}

func TestClientSendSurfacesHTTPErrors(t *testing.T) {
	server := pushServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := NewClient(Config{URL: server.URL + "/--/api/v2/push/send"}, zerolog.Nop())
	_, err := client.Send(context.Background(), []Message{{To: "ExpoPushToken[abc]"}})
	require.ErrorContains(t, err, "expo push request failed")
}
