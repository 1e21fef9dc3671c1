package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Options{Retries: 2, RetryDelay: time.Millisecond})
	res, err := c.Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(3), calls.Load())
	assert.Contains(t, res.ContentType, "application/json")
}

func TestFetchExhaustedRetriesReturnProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("catalog offline"))
	}))
	defer srv.Close()

	c := New(Options{Retries: 1, RetryDelay: time.Millisecond})
	_, err := c.Fetch(context.Background(), Request{URL: srv.URL, Provider: scholar.ProviderCrossref})
	require.Error(t, err)

	var provErr *scholar.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, scholar.ProviderCrossref, provErr.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, provErr.HTTPStatus)
	assert.Contains(t, provErr.BodySnippet, "catalog offline")
}

func TestFetchPacingSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	spacing := 40 * time.Millisecond
	c := New(Options{MinSpacing: spacing})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), Request{URL: srv.URL})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 2*spacing,
		"three paced requests need at least two spacing intervals")
}

func TestFetchPacingHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Options{MinSpacing: 5 * time.Second})
	_, err := c.Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Fetch(ctx, Request{URL: srv.URL})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoJSONRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer srv.Close()

	c := New(Options{})
	var out map[string]any
	err := c.DoJSON(context.Background(), Request{URL: srv.URL}, &out)
	require.Error(t, err)

	var provErr *scholar.ProviderError
	assert.True(t, errors.As(err, &provErr))
}

func TestDoJSONDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"message":"hello"}`))
	}))
	defer srv.Close()

	c := New(Options{})
	var out struct {
		Message string `json:"message"`
	}
	require.NoError(t, c.DoJSON(context.Background(), Request{URL: srv.URL}, &out))
	assert.Equal(t, "hello", out.Message)
}

func TestThrottledTransportLimits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Options{
		Transport: ThrottledTransport{Limiter: rate.NewLimiter(rate.Every(30*time.Millisecond), 1)},
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), Request{URL: srv.URL})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
