package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, body any, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusOK, map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "llama-3.1-8b-instant",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": "Light rain expected."},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 40, "completion_tokens": 5, "total_tokens": 45},
	}, &calls)

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "llama-3.1-8b-instant", Timeout: 2 * time.Second})
	resp, err := c.Complete(context.Background(), CompletionRequest{Purpose: "synthesis", SystemPrompt: "s", UserPrompt: "u"})

	require.NoError(t, err)
	assert.Equal(t, "Light rain expected.", resp.Content)
	assert.Equal(t, 45, resp.Usage.TotalTokens)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestComplete_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusBadRequest, map[string]any{
		"error": map[string]string{"message": "bad model", "type": "invalid_request_error"},
	}, &calls)

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "m", Timeout: 2 * time.Second})
	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "u"})

	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestComplete_ServerErrorIsRetriedOnce(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusServiceUnavailable, map[string]any{
		"error": map[string]string{"message": "overloaded", "type": "server_error"},
	}, &calls)

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "m", Timeout: 5 * time.Second, MaxAttempts: 2})
	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "u"})

	require.Error(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "m", Timeout: 50 * time.Millisecond})
	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "u"})

	assert.ErrorIs(t, err, ErrTimeout)
}
