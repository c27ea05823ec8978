package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCollectionName(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/knowledge/kb-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "kb-1", "name": "oh:p:s:20240501-abc123"})
	}))

	name, err := client.ResolveCollectionName(context.Background(), "kb-1")
	require.NoError(t, err)
	assert.Equal(t, "oh:p:s:20240501-abc123", name)
}

func TestResolveCollectionName_FallsBackToID(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "kb-1"})
	}))

	name, err := client.ResolveCollectionName(context.Background(), "kb-1")
	require.NoError(t, err)
	assert.Equal(t, "kb-1", name)
}

func TestResolveCollectionName_DryRun(t *testing.T) {
	client, err := NewClient(dryRunSettings())
	require.NoError(t, err)

	name, err := client.ResolveCollectionName(context.Background(), "kb-9")
	require.NoError(t, err)
	assert.Equal(t, "kb-9", name)
}

// chatCompletionServer serves the whole status-variant flow: chat creation,
// linking, the assistant placeholder update, the completion request, and the
// completed notification.
type chatCompletionServer struct {
	t               *testing.T
	completions     int
	completed       int
	lastChatUpdate  map[string]any
	completionReply map[string]any
}

func (s *chatCompletionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/chats/new":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "chat-1"})
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/chats/chat-1":
		chat := map[string]any{
			"messages": []any{map[string]any{"id": "u1", "role": "user", "content": "hi"}},
			"history":  map[string]any{"messages": map[string]any{"u1": map[string]any{"id": "u1", "role": "user"}}},
		}
		if s.lastChatUpdate != nil {
			chat = s.lastChatUpdate
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"chat": chat})
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/chats/chat-1":
		var update map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&update))
		s.lastChatUpdate, _ = update["chat"].(map[string]any)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "chat-1"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/chat/completions":
		s.completions++
		var payload map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(s.t, "chat-1", payload["chat_id"])
		assert.Equal(s.t, false, payload["stream"])
		_ = json.NewEncoder(w).Encode(s.completionReply)
	case r.Method == http.MethodGet && r.URL.Path == "/api/tasks/chat/chat-1":
		_ = json.NewEncoder(w).Encode(map[string]any{"task_ids": []any{}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/chat/completed":
		s.completed++
		_ = json.NewEncoder(w).Encode(map[string]any{})
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/knowledge/kb-1":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "kb-1", "name": "oh:resolved"})
	default:
		s.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	}
}

func TestCompleteChat(t *testing.T) {
	server := &chatCompletionServer{
		t: t,
		completionReply: map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "All steps look healthy."}}},
		},
	}
	client := testClient(t, server)

	err := client.CompleteChat(context.Background(), "chat-1", "u1", "sess-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, server.completions)
	assert.Equal(t, 1, server.completed)

	// The generated text must land on the assistant message.
	require.NotNil(t, server.lastChatUpdate)
	found := false
	for _, raw := range server.lastChatUpdate["messages"].([]any) {
		message := raw.(map[string]any)
		if message["role"] == "assistant" {
			assert.Equal(t, "All steps look healthy.\n", message["content"])
			assert.Equal(t, true, message["done"])
			found = true
		}
	}
	assert.True(t, found, "assistant message missing from final chat update")
}

func TestCreateChat_StatusVariantTriggersCompletion(t *testing.T) {
	server := &chatCompletionServer{
		t: t,
		completionReply: map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "done"}}},
		},
	}
	client := testClient(t, server)

	chatID, err := client.CreateChat(context.Background(), ChatParams{
		CollectionID: "kb-1",
		Variant:      VariantStatus,
		Prefill:      "hello",
		SessionID:    "sess-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "chat-1", chatID)
	assert.Equal(t, 1, server.completions)
	assert.Equal(t, 1, server.completed)
}

func TestCreateChat_PrefillVariantSkipsCompletion(t *testing.T) {
	server := &chatCompletionServer{t: t}
	client := testClient(t, server)

	_, err := client.CreateChat(context.Background(), ChatParams{
		CollectionID: "kb-1",
		Variant:      VariantPrefillOnly,
		Prefill:      "hello",
		SessionID:    "sess-1",
	})
	require.NoError(t, err)
	assert.Zero(t, server.completions)
	assert.Zero(t, server.completed)
}

func TestDownloadChatExport(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chats/chat-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"chat": map[string]any{"title": "t"}})
	}))

	destination := filepath.Join(t.TempDir(), "chat-export-chat-1.json")
	path, err := client.DownloadChatExport(context.Background(), "chat-1", destination)
	require.NoError(t, err)
	assert.Equal(t, destination, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Contains(t, payload, "chat")
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}
