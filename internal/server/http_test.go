package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholartech/scholargraph/internal/config"
)

func newHTTPFixture(t *testing.T, mutate func(*config.Config)) *HTTPServer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	dispatcher, aggregator, engine := newTestStack(t)
	return NewHTTPServer(cfg, dispatcher, aggregator, engine)
}

func postMessage(t *testing.T, s *HTTPServer, body string, header map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) *Response {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out Response
	require.NoError(t, json.Unmarshal(raw, &out))
	return &out
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
const pingBody = `{"jsonrpc":"2.0","id":2,"method":"ping"}`

func TestHTTPStatefulInitializeAssignsSession(t *testing.T) {
	s := newHTTPFixture(t, nil)

	resp := postMessage(t, s, initializeBody, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(SessionHeader))
	assert.Equal(t, 1, s.Sessions().Len())

	body := decodeResponse(t, resp)
	require.Nil(t, body.Error)
	result, ok := body.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
}

func TestHTTPStatefulRequiresSessionForNonInitialize(t *testing.T) {
	s := newHTTPFixture(t, nil)

	resp := postMessage(t, s, pingBody, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeResponse(t, resp)
	require.NotNil(t, body.Error)
	assert.Equal(t, codeInvalidRequest, body.Error.Code)
	assert.Equal(t, "Missing session id; send initialize first", body.Error.Message)
}

func TestHTTPStatefulUnknownSession(t *testing.T) {
	s := newHTTPFixture(t, nil)

	resp := postMessage(t, s, pingBody, map[string]string{SessionHeader: "no-such-session"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPStatefulRoundTrip(t *testing.T) {
	s := newHTTPFixture(t, nil)

	init := postMessage(t, s, initializeBody, nil)
	id := init.Header.Get(SessionHeader)
	require.NotEmpty(t, id)

	resp := postMessage(t, s, pingBody, map[string]string{SessionHeader: id})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, resp.Header.Get(SessionHeader), "session id is echoed on every response")

	body := decodeResponse(t, resp)
	require.Nil(t, body.Error)
	assert.Equal(t, 1, s.Sessions().Len(), "follow-up requests reuse the session")
}

func TestHTTPStatelessServesWithoutSession(t *testing.T) {
	s := newHTTPFixture(t, func(cfg *config.Config) { cfg.SessionMode = config.SessionStateless })

	resp := postMessage(t, s, pingBody, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(SessionHeader))
	assert.Equal(t, 0, s.Sessions().Len())
}

func TestHTTPNotificationAccepted(t *testing.T) {
	s := newHTTPFixture(t, func(cfg *config.Config) { cfg.SessionMode = config.SessionStateless })

	resp := postMessage(t, s, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHTTPMalformedBody(t *testing.T) {
	s := newHTTPFixture(t, nil)

	resp := postMessage(t, s, "{broken", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeResponse(t, resp)
	require.NotNil(t, body.Error)
	assert.Equal(t, codeParseError, body.Error.Code)
}

func TestHTTPDeleteSession(t *testing.T) {
	s := newHTTPFixture(t, nil)

	init := postMessage(t, s, initializeBody, nil)
	id := init.Header.Get(SessionHeader)
	require.NotEmpty(t, id)

	del := httptest.NewRequest(http.MethodDelete, "http://127.0.0.1/mcp", nil)
	del.Header.Set(SessionHeader, id)
	resp, err := s.App().Test(del)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, s.Sessions().Len())

	again := httptest.NewRequest(http.MethodDelete, "http://127.0.0.1/mcp", nil)
	again.Header.Set(SessionHeader, id)
	resp, err = s.App().Test(again)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPDeleteStatelessAlwaysNoContent(t *testing.T) {
	s := newHTTPFixture(t, func(cfg *config.Config) { cfg.SessionMode = config.SessionStateless })

	del := httptest.NewRequest(http.MethodDelete, "http://127.0.0.1/mcp", nil)
	resp, err := s.App().Test(del)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHTTPGetRejected(t *testing.T) {
	s := newHTTPFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1/mcp", nil)
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	body := decodeResponse(t, resp)
	require.NotNil(t, body.Error)
	assert.Contains(t, body.Error.Message, "Streaming is not supported")
}

func TestHTTPPreflight(t *testing.T) {
	s := newHTTPFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "http://127.0.0.1/mcp", nil)
	req.Header.Set("Origin", "http://127.0.0.1:5173")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://127.0.0.1:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), SessionHeader)
	assert.Equal(t, SessionHeader, resp.Header.Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "Origin", resp.Header.Get("Vary"))
}

func TestHTTPVaryHeaderAlwaysSet(t *testing.T) {
	s := newHTTPFixture(t, nil)

	resp := postMessage(t, s, initializeBody, nil)
	assert.Equal(t, "Origin", resp.Header.Get("Vary"))
}

func TestHTTPOriginRejected(t *testing.T) {
	s := newHTTPFixture(t, nil)

	resp := postMessage(t, s, initializeBody, map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTPOriginAllowList(t *testing.T) {
	s := newHTTPFixture(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"https://app.example.org"}
	})

	allowed := postMessage(t, s, initializeBody, map[string]string{"Origin": "https://app.example.org"})
	assert.Equal(t, http.StatusOK, allowed.StatusCode)

	denied := postMessage(t, s, initializeBody, map[string]string{"Origin": "https://other.example.org"})
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)
}

func TestHTTPHostRejected(t *testing.T) {
	s := newHTTPFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "http://evil.example/mcp", strings.NewReader(initializeBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTPHostAllowList(t *testing.T) {
	s := newHTTPFixture(t, func(cfg *config.Config) {
		cfg.AllowedHosts = []string{"api.example.org"}
	})

	req := httptest.NewRequest(http.MethodPost, "http://api.example.org/mcp", strings.NewReader(initializeBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPBearerToken(t *testing.T) {
	s := newHTTPFixture(t, func(cfg *config.Config) { cfg.APIKey = "secret" })

	missing := postMessage(t, s, initializeBody, nil)
	assert.Equal(t, http.StatusUnauthorized, missing.StatusCode)

	wrong := postMessage(t, s, initializeBody, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	right := postMessage(t, s, initializeBody, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, right.StatusCode)

	// Preflights never carry credentials.
	preflight := httptest.NewRequest(http.MethodOptions, "http://127.0.0.1/mcp", nil)
	resp, err := s.App().Test(preflight)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHTTPHealth(t *testing.T) {
	s := newHTTPFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1/health", nil)
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))

	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, ServerName, body["service"])
	assert.Equal(t, ServerVersion, body["version"])
	assert.Equal(t, float64(0), body["openSessions"])
	assert.Equal(t, float64(0), body["jobs"])
	assert.Equal(t, float64(0), body["documents"])
	assert.Equal(t, float64(0), body["cacheEntries"])
	assert.Contains(t, body, "uptimeSeconds")
}
