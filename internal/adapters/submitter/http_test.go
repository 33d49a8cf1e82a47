package submitter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/internal/adapters/submitter"
	"github.com/kazimov/jobtrail/ports"
	"github.com/stretchr/testify/require"
)

func plan() ports.ApplicationPlan {
	return ports.ApplicationPlan{
		ListingID:        "listing-1",
		Archetype:        domain.Builder,
		VariantPath:      "/resumes/builder.pdf",
		VariantVersionID: "v3",
		ProfileState:     domain.Builder,
	}
}

func TestHTTP_Submit_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "listing-1", req["listing_id"])
		require.Equal(t, "builder", req["archetype"])
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	h := submitter.NewHTTP(srv.URL, nil)
	outcome := h.Submit(context.Background(), plan())

	require.True(t, outcome.Success)
	require.NoError(t, outcome.Err)
}

func TestHTTP_Submit_AuthFailureIsPermanentNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := submitter.NewHTTP(srv.URL, nil)
	outcome := h.Submit(context.Background(), plan())

	require.False(t, outcome.Success)
	require.False(t, outcome.Transient)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "a permanent failure must not be retried")
}

func TestHTTP_Submit_ServerErrorRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := submitter.NewHTTP(srv.URL, nil)
	outcome := h.Submit(context.Background(), plan())

	require.False(t, outcome.Success)
	require.True(t, outcome.Transient)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls), "transient failures retry up to maxAttempts")
}

func TestHTTP_Submit_AgentReportedFailureIsNotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "captcha required"})
	}))
	defer srv.Close()

	h := submitter.NewHTTP(srv.URL, nil)
	outcome := h.Submit(context.Background(), plan())

	require.False(t, outcome.Success)
	require.False(t, outcome.Transient)
	require.ErrorContains(t, outcome.Err, "captcha required")
}
