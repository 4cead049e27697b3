package webtool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallReturnsGroundedSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(searchResponse{
			Summary:   "the sky is blue",
			Citations: []searchCitation{{Title: "Sky facts", URL: "https://example.com"}},
		})
	}))
	defer srv.Close()

	a := New(Config{ProjectEndpoint: srv.URL, ConnectionName: "bing"})
	result, err := a.Call(context.Background(), map[string]any{"query": "why is the sky blue"})
	require.NoError(t, err)
	assert.Equal(t, "the sky is blue", result.TextSummary)
	require.Len(t, result.Citations, 1)
}

func TestCallTimeoutIsSuccessNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer srv.Close()

	a := New(Config{ProjectEndpoint: srv.URL})
	a.timeout = 10 * time.Millisecond
	result, err := a.Call(context.Background(), map[string]any{"query": "slow query"})
	require.NoError(t, err)
	assert.Equal(t, "search timed out", result.TextSummary)
	assert.Empty(t, result.Citations)
}

func TestCallRejectsEmptyQuery(t *testing.T) {
	a := New(Config{ProjectEndpoint: "http://unused"})
	_, err := a.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestCallPropagatesTurnCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := New(Config{ProjectEndpoint: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Call(ctx, map[string]any{"query": "x"})
	assert.Error(t, err)
}
