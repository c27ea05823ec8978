package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
)

// ResolveCollectionName looks up the display name of a knowledge
// collection. Falls back to the id when the server does not report one.
func (c *Client) ResolveCollectionName(ctx context.Context, collectionID string) (string, error) {
	if c.DryRun {
		return collectionID, nil
	}

	status, data, err := c.getJSON(ctx, "/api/v1/knowledge/"+collectionID)
	if err != nil {
		return "", uploadErrorf("collection lookup failed: %v", err)
	}
	if status >= 400 {
		return "", uploadErrorf("collection lookup failed with status %d", status)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", uploadErrorf("collection payload is not JSON: %v", err)
	}
	if name := firstString(payload, "name"); name != "" {
		return name, nil
	}
	if nested, ok := payload["data"].(map[string]any); ok {
		if name := firstString(nested, "name"); name != "" {
			return name, nil
		}
	}
	return collectionID, nil
}

// fetchChat retrieves the stored chat object, unwrapping the optional
// top-level "chat" envelope.
func (c *Client) fetchChat(ctx context.Context, chatID string) (map[string]any, error) {
	status, data, err := c.getJSON(ctx, "/api/v1/chats/"+chatID)
	if err != nil {
		return nil, uploadErrorf("fetching chat failed: %v", err)
	}
	if status >= 400 {
		return nil, uploadErrorf("fetching chat failed with status %d", status)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, uploadErrorf("chat payload is not JSON: %v", err)
	}
	if chat, ok := payload["chat"].(map[string]any); ok {
		return chat, nil
	}
	return payload, nil
}

func (c *Client) updateChat(ctx context.Context, chatID string, chat map[string]any) error {
	status, data, err := c.postJSON(ctx, "/api/v1/chats/"+chatID, map[string]any{"chat": chat})
	if err != nil {
		return uploadErrorf("chat update failed: %v", err)
	}
	if status >= 400 {
		return uploadErrorf("chat update failed with status %d: %s", status, string(data))
	}
	return nil
}

// CompleteChat asks the server to generate the assistant reply to the seed
// message: it stores an assistant placeholder, requests a completion, waits
// for the background task, and writes the generated text back into the chat.
func (c *Client) CompleteChat(ctx context.Context, chatID, userMsgID, sessionID, userMessage string) error {
	if c.DryRun {
		return nil
	}

	chat, err := c.fetchChat(ctx, chatID)
	if err != nil {
		return err
	}

	assistantID := hexID()
	timestamp := time.Now().Unix()
	placeholder := map[string]any{
		"id":            assistantID,
		"role":          "assistant",
		"content":       "",
		"parentId":      userMsgID,
		"model":         c.settings.Model,
		"modelName":     c.settings.Model,
		"modelIdx":      0,
		"timestamp":     timestamp,
		"done":          false,
		"statusHistory": []any{},
		"childrenIds":   []any{},
	}

	messages, _ := chat["messages"].([]any)
	chat["messages"] = append(messages, placeholder)
	appendChildID(messages, userMsgID, assistantID)

	history, ok := chat["history"].(map[string]any)
	if !ok {
		history = map[string]any{}
		chat["history"] = history
	}
	historyMessages, ok := history["messages"].(map[string]any)
	if !ok {
		historyMessages = map[string]any{}
		history["messages"] = historyMessages
	}
	historyMessages[assistantID] = placeholder
	if parent, ok := historyMessages[userMsgID].(map[string]any); ok {
		appendChildID([]any{parent}, userMsgID, assistantID)
	}
	history["current_id"] = assistantID
	history["currentId"] = assistantID
	chat["currentId"] = assistantID

	if err := c.updateChat(ctx, chatID, chat); err != nil {
		return err
	}

	conversation := conversationFromChat(chat)
	if len(conversation) == 0 {
		conversation = []map[string]any{{"role": "user", "content": userMessage}}
	}

	completionPayload := map[string]any{
		"chat_id":  chatID,
		"id":       assistantID,
		"messages": conversation,
		"model":    c.settings.Model,
		"stream":   false,
		"background_tasks": map[string]any{
			"title_generation":     false,
			"tags_generation":      false,
			"follow_up_generation": false,
		},
		"features": map[string]any{
			"code_interpreter": false,
			"web_search":       false,
			"image_generation": false,
			"memory":           false,
		},
		"variables": map[string]any{
			"{{USER_NAME}}":        "",
			"{{USER_LANGUAGE}}":    "en-US",
			"{{CURRENT_DATETIME}}": time.Now().UTC().Format(time.RFC3339),
			"{{CURRENT_TIMEZONE}}": "UTC",
		},
		"session_id": sessionID,
	}
	status, data, err := c.postCompletion(ctx, completionPayload)
	if err != nil {
		return uploadErrorf("chat completion request failed: %v", err)
	}
	if status >= 400 {
		return uploadErrorf("chat completion failed with status %d: %s", status, string(data))
	}

	var completionData map[string]any
	_ = json.Unmarshal(data, &completionData)
	if taskID := firstString(completionData, "task_id", "id"); taskID != "" {
		if err := c.waitForCompletion(ctx, chatID, taskID); err != nil {
			return err
		}
	}

	refreshed, err := c.fetchChat(ctx, chatID)
	if err != nil {
		return err
	}
	assistantText := assistantTextFromCompletion(completionData)
	if assistantText == "" {
		assistantText = assistantTextFromChat(refreshed, assistantID)
	}
	if assistantText != "" {
		if assistantText[len(assistantText)-1] != '\n' {
			assistantText += "\n"
		}
		setAssistantText(refreshed, assistantID, assistantText)
		if err := c.updateChat(ctx, chatID, refreshed); err != nil {
			return err
		}
	}

	status, data, err = c.postJSON(ctx, "/api/chat/completed", map[string]any{
		"chat_id":    chatID,
		"id":         assistantID,
		"session_id": sessionID,
		"model":      c.settings.Model,
	})
	if err != nil {
		return uploadErrorf("chat completed notification failed: %v", err)
	}
	if status >= 400 {
		return uploadErrorf("chat completed notification failed with status %d: %s", status, string(data))
	}
	return nil
}

// postCompletion uses the long-timeout client; generation can exceed the
// regular request deadline.
func (c *Client) postCompletion(ctx context.Context, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/chat/completions", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doWith(c.longc, req)
}

// waitForCompletion polls the chat task list until the completion task is no
// longer pending.
func (c *Client) waitForCompletion(ctx context.Context, chatID, taskID string) error {
	backoff := retry.WithMaxRetries(90, retry.NewConstant(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, data, err := c.getJSON(ctx, "/api/tasks/chat/"+chatID)
		if err != nil {
			return err
		}
		if status >= 400 {
			return uploadErrorf("task status check failed (%d)", status)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil
		}
		ids, ok := payload["task_ids"].([]any)
		if !ok {
			return nil
		}
		for _, id := range ids {
			if fmt.Sprint(id) == taskID {
				return retry.RetryableError(fmt.Errorf("completion task %s still running", taskID))
			}
		}
		return nil
	})
	if err != nil {
		return uploadErrorf("completion task did not finish in time: %v", err)
	}
	return nil
}

// DownloadChatExport saves the server's view of a chat as pretty-printed
// JSON at destination and returns the written path.
func (c *Client) DownloadChatExport(ctx context.Context, chatID, destination string) (string, error) {
	status, data, err := c.getJSON(ctx, "/api/v1/chats/"+chatID)
	if err != nil {
		return "", uploadErrorf("chat export failed: %v", err)
	}
	if status >= 400 {
		return "", uploadErrorf("chat export failed with status %d", status)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", uploadErrorf("chat export is not JSON: %v", err)
	}
	pretty, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(destination, append(pretty, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing chat export: %w", err)
	}
	return destination, nil
}

// appendChildID links assistantID under the user message with id parentID.
func appendChildID(messages []any, parentID, assistantID string) {
	for _, raw := range messages {
		message, ok := raw.(map[string]any)
		if !ok || fmt.Sprint(message["id"]) != parentID {
			continue
		}
		children, _ := message["childrenIds"].([]any)
		for _, child := range children {
			if fmt.Sprint(child) == assistantID {
				return
			}
		}
		message["childrenIds"] = append(children, assistantID)
		return
	}
}

// conversationFromChat flattens stored messages into the completion request
// shape, dropping empty assistant placeholders.
func conversationFromChat(chat map[string]any) []map[string]any {
	var conversation []map[string]any
	messages, _ := chat["messages"].([]any)
	for _, raw := range messages {
		message, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := message["role"].(string)
		content, hasContent := message["content"].(string)
		if role != "user" && role != "assistant" {
			continue
		}
		if role == "assistant" && content == "" {
			continue
		}
		if !hasContent {
			continue
		}
		conversation = append(conversation, map[string]any{"role": role, "content": content})
	}
	return conversation
}

func assistantTextFromCompletion(payload map[string]any) string {
	choices, ok := payload["choices"].([]any)
	if !ok {
		return ""
	}
	var parts string
	for _, raw := range choices {
		choice, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if message, ok := choice["message"].(map[string]any); ok {
			if content, ok := message["content"].(string); ok {
				parts += content
			}
		}
		if delta, ok := choice["delta"].(map[string]any); ok {
			if content, ok := delta["content"].(string); ok {
				parts += content
			}
		}
		if content, ok := choice["content"].(string); ok {
			parts += content
		}
	}
	return parts
}

func assistantTextFromChat(chat map[string]any, assistantID string) string {
	messages, _ := chat["messages"].([]any)
	for _, raw := range messages {
		message, ok := raw.(map[string]any)
		if !ok || fmt.Sprint(message["id"]) != assistantID {
			continue
		}
		if content, ok := message["content"].(string); ok && content != "" {
			return content
		}
	}
	if history, ok := chat["history"].(map[string]any); ok {
		if historyMessages, ok := history["messages"].(map[string]any); ok {
			if entry, ok := historyMessages[assistantID].(map[string]any); ok {
				if content, ok := entry["content"].(string); ok {
					return content
				}
			}
		}
	}
	return ""
}

func setAssistantText(chat map[string]any, assistantID, text string) {
	messages, _ := chat["messages"].([]any)
	for _, raw := range messages {
		if message, ok := raw.(map[string]any); ok && fmt.Sprint(message["id"]) == assistantID {
			message["content"] = text
			message["done"] = true
		}
	}
	if history, ok := chat["history"].(map[string]any); ok {
		if historyMessages, ok := history["messages"].(map[string]any); ok {
			if entry, ok := historyMessages[assistantID].(map[string]any); ok {
				entry["content"] = text
				entry["done"] = true
			}
		}
	}
}
