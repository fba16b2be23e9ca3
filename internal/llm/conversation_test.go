package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKeepsHistory(t *testing.T) {
	var lastRequest ChatRequest
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequest))

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"id": "resp-%d",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "answer %d"},
				"finish_reason": "stop"
			}]
		}`, calls, calls)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	conv := NewConversation(client, "You write storyboards.", 10)
	assert.True(t, conv.IsEmpty())

	first, err := conv.SendMessage(context.Background(), "plan the beats")
	require.NoError(t, err)
	assert.Equal(t, "answer 1", first)

	second, err := conv.SendMessage(context.Background(), "that was invalid, fix it")
	require.NoError(t, err)
	assert.Equal(t, "answer 2", second)

	// The second request carries the system prompt plus the full exchange.
	require.Len(t, lastRequest.Messages, 4)
	assert.Equal(t, "system", lastRequest.Messages[0].Role)
	assert.Equal(t, "plan the beats", lastRequest.Messages[1].Content)
	assert.Equal(t, "answer 1", lastRequest.Messages[2].Content)
	assert.Equal(t, "that was invalid, fix it", lastRequest.Messages[3].Content)

	assert.Equal(t, 4, conv.GetMessageCount())
}

func TestConversationTrimsHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "r",
			"choices": [{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	conv := NewConversation(client, "", 3)
	for i := 0; i < 4; i++ {
		_, err := conv.SendMessage(context.Background(), fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	history := conv.GetHistory()
	assert.Len(t, history, 3)
	// Oldest messages fall off first.
	assert.Equal(t, "ok", history[len(history)-1].Content)
}
