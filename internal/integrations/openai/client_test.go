package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeToken is a minimal TokenSource stub for use within this package.
type fakeToken struct {
	val   string
	err   error
	calls int
}

func (f *fakeToken) Value(_ context.Context) (string, error) {
	f.calls++
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *fakeToken) {
	t.Helper()
	tok := &fakeToken{val: "sk-test"}
	c, err := NewClient(tok, "gpt-mock",
		WithBaseURL(srv.URL+"/v1"),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c, tok
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient(nil, "gpt-mock")
	require.ErrorContains(t, err, "nil")

	_, err = NewClient(&fakeToken{}, " ")
	require.ErrorContains(t, err, "model")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(&fakeToken{}, "gpt-mock", WithBaseURL(" "))
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.NotNil(t, c.httpClient)
}

// ---------------------------------------------------------------------------
// Client.Generate
// ---------------------------------------------------------------------------

func TestClient_Generate_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"model":"gpt-mock"`)
		require.Contains(t, string(reqBody), `"max_completion_tokens":128`)
		require.Contains(t, string(reqBody), `"content":"hi"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "  やっほー！  " }
			}]
		}`))
	}))
	defer srv.Close()

	c, tok := newTestClient(t, srv)
	out, err := c.Generate(context.Background(), "hi", 128)
	require.NoError(t, err)
	require.Equal(t, "やっほー！", out)

	_, err = c.Generate(context.Background(), "hi", 128)
	require.NoError(t, err)
	require.Equal(t, 1, tok.calls, "API key must only be resolved once")
}

func TestClient_Generate_StatusErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"requests"}}`},
		{"server error", http.StatusInternalServerError, `not-json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv)
			_, err := c.Generate(context.Background(), "hi", 16)
			require.Error(t, err)

			var statusErr *HTTPStatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, tc.status, statusErr.HTTPStatusCode())
		})
	}
}

func TestClient_Generate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	_, err := c.Generate(context.Background(), "hi", 16)
	require.ErrorContains(t, err, "no choices")
}

func TestClient_Generate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Generate(context.Background(), "hi", 16)
	require.ErrorContains(t, err, "request failed")
}

func TestClient_Generate_TokenError(t *testing.T) {
	c, err := NewClient(&fakeToken{err: errors.New("ssm unavailable")}, "gpt-mock")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi", 16)
	require.ErrorContains(t, err, "ssm unavailable")
	require.Nil(t, c.api)
}
