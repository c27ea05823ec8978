// Package webui talks to the Open WebUI knowledge-base and chat API.
package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"oh2webui/internal/config"
)

// UploadError indicates a failure talking to the Open WebUI API.
type UploadError struct {
	msg string
	err error
}

func (e *UploadError) Error() string { return e.msg }
func (e *UploadError) Unwrap() error { return e.err }

func uploadErrorf(format string, args ...any) *UploadError {
	return &UploadError{msg: fmt.Sprintf(format, args...)}
}

// terminalStatuses are file-processing states that count as done.
var terminalStatuses = map[string]bool{
	"processed": true,
	"ready":     true,
	"completed": true,
	"success":   true,
}

// Client is a thin Open WebUI API client. In dry-run mode every method
// succeeds locally with synthetic identifiers and no network access.
type Client struct {
	settings *config.Settings
	base     string
	httpc    *http.Client
	// longc serves completion requests, which can outlive the regular
	// request deadline while the model generates.
	longc *http.Client

	// DryRun mirrors the settings flag for callers that report it.
	DryRun bool

	pollAttempts uint64
	pollDelay    time.Duration
}

// NewClient builds a client from settings. Outside dry-run mode a base URL
// is required.
func NewClient(settings *config.Settings) (*Client, error) {
	c := &Client{
		settings:     settings,
		DryRun:       settings.DryRun,
		pollAttempts: 40,
		pollDelay:    2500 * time.Millisecond,
	}
	if !c.DryRun {
		if settings.BaseURL == "" {
			return nil, uploadErrorf("OPENWEBUI_BASE_URL is required when not in dry-run mode")
		}
		c.base = settings.BaseURL
		c.httpc = &http.Client{Timeout: 60 * time.Second}
		c.longc = &http.Client{Timeout: 180 * time.Second}
	}
	return c, nil
}

// UploadMarkdown submits one artifact file for processing and returns the
// remote file id. Several upload endpoint paths are tried in order; a
// 404/405 moves on to the next candidate.
func (c *Client) UploadMarkdown(ctx context.Context, filePath string) (string, error) {
	if c.DryRun {
		return "dry-file-" + hexID()[:8], nil
	}

	endpoints := []string{
		"/api/v1/files/",
		"/api/v1/files",
		"/api/v1/files/upload",
	}
	params := url.Values{"process": {"true"}, "process_in_background": {"false"}}

	var lastErr error
	for i, endpoint := range endpoints {
		status, data, err := c.postMultipart(ctx, endpoint+"?"+params.Encode(), filePath)
		if err != nil {
			return "", uploadErrorf("upload request failed: %v", err)
		}
		if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
			if i < len(endpoints)-1 {
				lastErr = uploadErrorf("upload failed with status %d at %s", status, endpoint)
				continue
			}
		}
		if status >= 400 {
			return "", uploadErrorf("upload failed with status %d at %s: %s", status, endpoint, string(data))
		}

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", uploadErrorf("upload response is not JSON: %v", err)
		}
		fileID := firstString(payload, "id", "file_id")
		if fileID == "" {
			if nested, ok := payload["data"].(map[string]any); ok {
				fileID = firstString(nested, "id", "file_id")
			}
		}
		if fileID == "" {
			return "", uploadErrorf("upload response missing file id")
		}
		return fileID, nil
	}
	return "", &UploadError{msg: "upload failed; no compatible endpoint found", err: lastErr}
}

// PollFile waits for a file to reach a terminal processing state, backing
// off between attempts with a bounded retry budget.
func (c *Client) PollFile(ctx context.Context, fileID string) (string, error) {
	if c.DryRun {
		return "processed", nil
	}

	var final string
	backoff := retry.WithMaxRetries(c.pollAttempts, retry.NewConstant(c.pollDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, perr := c.fileStatus(ctx, fileID)
		if perr != nil {
			return perr
		}
		if terminalStatuses[status] || status == "error" {
			final = status
			return nil
		}
		if status == "" {
			status = "unknown"
		}
		return retry.RetryableError(fmt.Errorf("file %s still %s", fileID, status))
	})
	if err != nil {
		return "", uploadErrorf("file %s did not finish processing: %v", fileID, err)
	}
	return final, nil
}

// fileStatus queries the processing-status endpoint, falling back to the
// plain file resource when the server predates it.
func (c *Client) fileStatus(ctx context.Context, fileID string) (string, error) {
	status, data, err := c.getJSON(ctx, "/api/v1/files/"+fileID+"/process/status")
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		status, data, err = c.getJSON(ctx, "/api/v1/files/"+fileID)
		if err != nil {
			return "", err
		}
	}
	if status >= 400 {
		return "", uploadErrorf("file status check failed (%d)", status)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", nil
	}
	state := firstString(payload, "status", "processing_status")
	nested, _ := payload["data"].(map[string]any)
	if state == "" && nested != nil {
		state = firstString(nested, "status")
	}
	processed := payload["processed"] == true
	if nested != nil {
		processed = processed || nested["processed"] == true || nested["status"] == "processed"
	}
	if processed && state == "" {
		state = "processed"
	}
	return state, nil
}

// CreateCollection creates a knowledge collection and returns its id.
func (c *Client) CreateCollection(ctx context.Context, name, description string) (string, error) {
	if c.DryRun {
		return "dry-collection-" + hexID()[:6], nil
	}

	payload := map[string]any{"name": name, "description": description}
	endpoints := []string{"/api/v1/knowledge/create", "/api/v1/knowledge"}

	data, err := c.postWithFallback(ctx, endpoints, payload, "knowledge creation")
	if err != nil {
		return "", err
	}
	var body any
	_ = json.Unmarshal(data, &body)
	collectionID := ""
	if m, ok := body.(map[string]any); ok {
		collectionID = firstString(m, "id", "collection_id", "knowledge_id")
	}
	if collectionID == "" {
		collectionID = extractFirstID(body)
	}
	if collectionID == "" {
		return "", uploadErrorf("knowledge creation response missing id")
	}
	return collectionID, nil
}

// AttachFile adds an uploaded file to a knowledge collection.
func (c *Client) AttachFile(ctx context.Context, collectionID, fileID string) error {
	if c.DryRun {
		return nil
	}
	endpoint := "/api/v1/knowledge/" + collectionID + "/file/add"
	status, data, err := c.postJSON(ctx, endpoint, map[string]any{"file_id": fileID})
	if err != nil {
		return uploadErrorf("file attach failed: %v", err)
	}
	if status >= 400 {
		return uploadErrorf("file attach failed with status %d: %s", status, string(data))
	}
	return nil
}

// ChatParams carries everything needed to create a chat referencing a
// knowledge collection.
type ChatParams struct {
	CollectionID string
	Title        string
	Variant      string
	Prefill      string
	SessionID    string
}

// CreateChat creates a chat whose first user message references the
// collection, then best-effort links the knowledge collection into the
// stored chat payload.
func (c *Client) CreateChat(ctx context.Context, p ChatParams) (string, error) {
	if c.DryRun {
		return "dry-chat-" + hexID()[:6], nil
	}

	userMsgID := hexID()
	payload := c.chatPayload(p, userMsgID)

	endpoints := []string{"/api/v1/chats/new", "/api/v1/chats"}
	data, err := c.postWithFallback(ctx, endpoints, payload, "chat creation")
	if err != nil {
		return "", err
	}

	var body any
	_ = json.Unmarshal(data, &body)
	chatID := ""
	if m, ok := body.(map[string]any); ok {
		chatID = firstString(m, "chat_id", "id")
		if chatID == "" {
			if chat, ok := m["chat"].(map[string]any); ok {
				chatID = firstString(chat, "id")
			}
		}
	}
	if chatID == "" {
		chatID = extractFirstID(body)
	}
	if chatID == "" {
		return "", uploadErrorf("chat creation response missing id")
	}

	if err := c.LinkKnowledge(ctx, chatID, p.CollectionID); err != nil {
		slog.Debug("knowledge link skipped", "chat", chatID, "error", err)
	}
	if p.Variant == VariantStatus {
		if err := c.CompleteChat(ctx, chatID, userMsgID, p.SessionID, p.Prefill); err != nil {
			slog.Debug("chat completion skipped", "chat", chatID, "error", err)
		}
	}
	return chatID, nil
}

func (c *Client) chatPayload(p ChatParams, userMsgID string) map[string]any {
	collectionRef := map[string]any{"id": p.CollectionID, "type": "collection"}
	timestamp := time.Now().Unix()
	message := map[string]any{
		"id":          userMsgID,
		"role":        "user",
		"content":     p.Prefill,
		"timestamp":   timestamp,
		"models":      []string{c.settings.Model},
		"parentId":    nil,
		"childrenIds": []string{},
		"files":       []any{collectionRef},
		"metadata":    map[string]any{"collection_id": p.CollectionID},
	}
	return map[string]any{
		"chat": map[string]any{
			"title":         p.Title,
			"metadata":      map[string]any{"collection_id": p.CollectionID, "variant": p.Variant},
			"models":        []string{c.settings.Model},
			"messages":      []any{message},
			"knowledge_ids": []string{p.CollectionID},
			"files":         []any{collectionRef},
			"history": map[string]any{
				"current_id": userMsgID,
				"currentId":  userMsgID,
				"messages":   map[string]any{userMsgID: message},
			},
			"currentId": userMsgID,
		},
	}
}

// LinkKnowledge merges the knowledge collection into an already stored
// chat: knowledge_ids, the chat file list, and the first user message.
func (c *Client) LinkKnowledge(ctx context.Context, chatID, knowledgeID string) error {
	if c.DryRun {
		return nil
	}

	chat, err := c.fetchChat(ctx, chatID)
	if err != nil {
		return err
	}

	entry := map[string]any{"id": knowledgeID, "type": "collection"}

	var ids []string
	if raw, ok := chat["knowledge_ids"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				ids = append(ids, s)
			}
		}
	}
	found := false
	for _, id := range ids {
		if id == knowledgeID {
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, knowledgeID)
	}
	chat["knowledge_ids"] = ids

	files, _ := chat["files"].([]any)
	chat["files"] = mergeEntries(files, entry)

	if messages, ok := chat["messages"].([]any); ok {
		for _, raw := range messages {
			message, ok := raw.(map[string]any)
			if !ok || message["role"] != "user" {
				continue
			}
			msgFiles, _ := message["files"].([]any)
			message["files"] = mergeEntries(msgFiles, entry)
			meta, ok := message["metadata"].(map[string]any)
			if !ok {
				meta = map[string]any{}
				message["metadata"] = meta
			}
			if _, ok := meta["collection_id"]; !ok {
				meta["collection_id"] = knowledgeID
			}
			break
		}
	}

	return c.updateChat(ctx, chatID, chat)
}

// mergeEntries appends entry to items, dropping duplicates by id.
func mergeEntries(items []any, entry map[string]any) []any {
	seen := map[string]struct{}{}
	var merged []any
	for _, candidate := range append(append([]any{}, items...), any(entry)) {
		m, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, m)
	}
	return merged
}

// postWithFallback posts payload to each endpoint in order, moving on at
// 404/405 and failing hard on any other error status.
func (c *Client) postWithFallback(ctx context.Context, endpoints []string, payload any, what string) ([]byte, error) {
	var lastErr error
	for i, endpoint := range endpoints {
		status, data, err := c.postJSON(ctx, endpoint, payload)
		if err != nil {
			return nil, uploadErrorf("%s failed: %v", what, err)
		}
		if (status == http.StatusNotFound || status == http.StatusMethodNotAllowed) && i < len(endpoints)-1 {
			lastErr = uploadErrorf("%s failed with status %d at %s", what, status, endpoint)
			continue
		}
		if status >= 400 {
			return nil, uploadErrorf("%s failed with status %d: %s", what, status, string(data))
		}
		return data, nil
	}
	return nil, &UploadError{msg: what + " failed; no endpoint available", err: lastErr}
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	return c.do(req)
}

func (c *Client) postMultipart(ctx context.Context, endpoint, filePath string) (int, []byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filePath)))
	header.Set("Content-Type", "text/markdown")
	part, err := writer.CreatePart(header)
	if err != nil {
		return 0, nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, nil, err
	}
	if err := writer.Close(); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+endpoint, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	return c.doWith(c.httpc, req)
}

func (c *Client) doWith(client *http.Client, req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	for k, v := range c.settings.AuthHeader() {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// extractFirstID digs through arbitrary response shapes for something that
// looks like an identifier.
func extractFirstID(payload any) string {
	switch v := payload.(type) {
	case map[string]any:
		if id := firstString(v, "id", "_id", "knowledge_id", "collection_id", "file_id"); id != "" {
			return id
		}
		for _, value := range v {
			if id := extractFirstID(value); id != "" {
				return id
			}
		}
	case []any:
		for _, item := range v {
			if id := extractFirstID(item); id != "" {
				return id
			}
		}
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func hexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
