package inbox_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/internal/adapters/inbox"
	"github.com/stretchr/testify/require"
)

func TestHTTP_Poll_DecodesMessagesAndForwardsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "wm-1", r.URL.Query().Get("watermark"))
		require.Equal(t, "3600", r.URL.Query().Get("lookback_seconds"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"external_id":    "msg-1",
				"received_at":    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
				"sender_address": "hr@acme.com",
				"subject":        "Your application",
				"plain_body":     "Thanks for applying",
			},
		})
	}))
	defer srv.Close()

	h := inbox.NewHTTP(srv.URL, nil)
	msgs, err := h.Poll(context.Background(), "wm-1", time.Hour)

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "msg-1", msgs[0].ExternalID)
	require.Equal(t, "hr@acme.com", msgs[0].SenderAddress)
}

func TestHTTP_Poll_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := inbox.NewHTTP(srv.URL, nil)
	_, err := h.Poll(context.Background(), "", time.Hour)

	require.Error(t, err)
}

func TestHTTP_Poll_EmptyWatermarkOmitsQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.Query().Get("watermark"))
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	h := inbox.NewHTTP(srv.URL, nil)
	msgs, err := h.Poll(context.Background(), "", time.Minute)

	require.NoError(t, err)
	require.Empty(t, msgs)
}
