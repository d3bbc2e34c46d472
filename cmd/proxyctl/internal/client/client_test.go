package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/proxy"
	"github.com/getgoodtape/videoproc/internal/service"
)

func TestClient_Diagnostics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/diagnostics", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		json.NewEncoder(w).Encode(service.Diagnostics{
			Conflict: conflict.State{Reason: conflict.ReasonClear},
			Outcomes: []proxy.EndpointStats{{EndpointID: "a:1", Total: 2, SuccessCount: 2, SuccessRate: 1}},
		})
	}))
	defer srv.Close()

	d, err := New(srv.URL+"/", "k", time.Second).Diagnostics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conflict.ReasonClear, d.Conflict.Reason)
	require.Len(t, d.Outcomes, 1)
	assert.Equal(t, 1.0, d.Outcomes[0].SuccessRate)
}

func TestClient_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"detected":true,"reason":"auth","provider":"decodo"}`))
	}))
	defer srv.Close()

	s, err := New(srv.URL, "", time.Second).Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Detected)
	assert.Equal(t, conflict.ReasonAuth, s.Reason)
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid API key"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "bad", time.Second).Diagnostics(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Contains(t, err.Error(), "invalid API key")
}
