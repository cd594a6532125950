package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobfitai/jobfit-api/internal/core"
)

func TestClassifyStatus(t *testing.T) {
	assert.True(t, errors.Is(classifyStatus(401), core.ErrInvalidCredentials))
	assert.True(t, errors.Is(classifyStatus(403), core.ErrInvalidCredentials))
	assert.True(t, errors.Is(classifyStatus(404), core.ErrModelNotFound))
	assert.True(t, errors.Is(classifyStatus(429), core.ErrRateLimited))
	assert.True(t, errors.Is(classifyStatus(500), core.ErrProviderUnavailable))
	assert.True(t, errors.Is(classifyStatus(503), core.ErrProviderUnavailable))
}

func TestPostJSONStatusMapping(t *testing.T) {
	for status, want := range map[int]error{
		http.StatusTooManyRequests: core.ErrRateLimited,
		http.StatusUnauthorized:    core.ErrInvalidCredentials,
		http.StatusNotFound:        core.ErrModelNotFound,
		http.StatusBadGateway:      core.ErrProviderUnavailable,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		var out struct{}
		err := postJSON(context.Background(), srv.Client(), srv.URL, nil, map[string]string{}, &out)
		assert.True(t, errors.Is(err, want), "status %d", status)
		srv.Close()
	}
}

func TestPostJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	var out struct {
		Text string `json:"text"`
	}
	err := postJSON(context.Background(), srv.Client(), srv.URL,
		map[string]string{"Authorization": "Bearer k"}, map[string]string{"q": "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
}

func TestOpenAIProviderRequiresCredential(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})

	_, err := p.Complete(context.Background(), core.CompletionRequest{Model: "gpt-4o", Prompt: "hi"})
	assert.True(t, errors.Is(err, core.ErrInvalidCredentials))

	_, err = p.EmbedTexts(context.Background(), []string{"hi"}, "")
	assert.True(t, errors.Is(err, core.ErrInvalidCredentials))
}
