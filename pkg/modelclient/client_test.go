package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beargallbladder/domain-runner-sub003/internal/config"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

func TestOpenAICompatibleCall(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		want          string
		wantTransient bool
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"id":"cmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"}}]}`,
			want:   "Hello!",
		},
		{
			name:          "rate_limit",
			status:        http.StatusTooManyRequests,
			body:          `{"error":"rate limit exceeded"}`,
			wantErr:       "unexpected status 429",
			wantTransient: true,
		},
		{
			name:          "server_error",
			status:        http.StatusInternalServerError,
			body:          `{"error":"internal server error"}`,
			wantErr:       "unexpected status 500",
			wantTransient: true,
		},
		{
			name:    "bad_request",
			status:  http.StatusBadRequest,
			body:    `{"error":"model not found"}`,
			wantErr: "unexpected status 400",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
		{
			name:    "no_choices",
			status:  http.StatusOK,
			body:    `{"id":"cmpl-1","choices":[]}`,
			wantErr: "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewOpenAICompatible("test-key", "gpt-4o", WithBaseURL(srv.URL))
			got, err := client.Call(context.Background(), "Hi")

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAICompatibleRequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral-large", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "What does openai.com do?", req.Messages[0].Content)
		require.NotNil(t, req.MaxTokens)
		assert.Equal(t, 512, *req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAICompatible("test-key", "mistral-large", WithBaseURL(srv.URL), WithMaxTokens(512))
	got, err := client.Call(context.Background(), "What does openai.com do?")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestOpenAICompatibleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"late"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAICompatible("test-key", "gpt-4o", WithBaseURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, "Hi")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTimeout(nil))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(eris.Wrap(context.DeadlineExceeded, "modelclient: send request")))
	assert.False(t, IsTimeout(errors.New("connection refused")))
	assert.False(t, IsTimeout(eris.New("modelclient: unexpected status 500")))
}

func TestMockTimeoutRecovers(t *testing.T) {
	t.Parallel()

	m := &MockTimeout{Failures: 2}

	_, err := m.Call(context.Background(), "x")
	assert.True(t, IsTimeout(err))
	_, err = m.Call(context.Background(), "x")
	assert.True(t, IsTimeout(err))

	got, err := m.Call(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, 3, m.Calls())
}

func TestBuildRegistry(t *testing.T) {
	entries := []config.ModelEntry{
		{Name: "claude-3", Provider: "anthropic", Key: "sk-a", Model: "claude-3-5-sonnet"},
		{Provider: "openai", Key: "sk-b", Model: "gpt-4o"},
		{Name: "no-key", Provider: "openai"},
		{Name: "weird", Provider: "quantum", Key: "sk-c"},
	}

	reg := BuildRegistry(entries)

	assert.Len(t, reg, 2)
	assert.Contains(t, reg, "claude-3")
	// Name falls back to the model id
	assert.Contains(t, reg, "gpt-4o")
	assert.NotContains(t, reg, "no-key")
	assert.NotContains(t, reg, "weird")
}
