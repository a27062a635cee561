package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallFallsBackOnUnknownOrigin(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.URL.Query().Get("origin")
		calls = append(calls, origin)
		if origin == "AI_EDITOR" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"unknown origin value"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), BaseURL: srv.URL}
	body := BuildBody("c1", nil, kiromodel.UserInputMessage{Content: "hi"}, "", nil)

	resp, err := c.Call(context.Background(), "tok", "fp", body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"AI_EDITOR", "CLI"}, calls)
}

func TestCallStopsAtFirstNonOriginError(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Query().Get("origin"))
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), BaseURL: srv.URL}
	body := BuildBody("c1", nil, kiromodel.UserInputMessage{Content: "hi"}, "", nil)

	resp, err := c.Call(context.Background(), "tok", "fp", body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{"AI_EDITOR"}, calls, "a non-origin 4xx must not trigger origin fallback")
}

func TestStreamHitsFirstOriginOnly(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Query().Get("origin"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), BaseURL: srv.URL}
	body := BuildBody("c1", nil, kiromodel.UserInputMessage{Content: "hi"}, "", nil)

	resp, err := c.Stream(context.Background(), "tok", "fp", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{Origins[0]}, calls)
}

func TestUnknownOriginErrorOnlyMatches4xxWithOriginInBody(t *testing.T) {
	assert.True(t, unknownOriginError(400, []byte(`{"message":"unknown Origin value"}`)))
	assert.False(t, unknownOriginError(500, []byte(`{"message":"origin"}`)))
	assert.False(t, unknownOriginError(400, []byte(`{"message":"token expired"}`)))
}
